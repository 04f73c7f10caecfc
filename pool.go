package reposdk

import (
	"context"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"
	base "github.com/omegaup/go-base/v3"
	"github.com/omegaup/go-base/v3/logging"
	"github.com/omegaup/go-base/v3/tracing"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Sdk is the process-wide cache of opened repository handles. It owns a
// KeyedPool[*RepoHandle], a lockfile manager so reads never race an
// external writer's flock, and a decoded-object cache shared by every
// handle it hands out.
type Sdk struct {
	pool        *base.KeyedPool[*RepoHandle]
	lockfiles   *LockfileManager
	openPermits *semaphore.Weighted
	cache       *ristretto.Cache[string, any]
	log         logging.Logger
}

// New creates an Sdk. The returned Sdk owns its pool's cached repositories
// until Close is called; handles obtained from it remain valid until
// every holder releases them.
func New(config SdkConfig) (*Sdk, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: int64(config.maxOpenRepos()) * 20,
		MaxCost:     int64(config.maxOpenRepos()) * 1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, ioError(err, "failed to initialize object cache")
	}

	s := &Sdk{
		lockfiles: NewLockfileManager(),
		cache:     cache,
		log:       config.Log,
	}
	if config.OpenPermits > 0 {
		s.openPermits = semaphore.NewWeighted(int64(config.OpenPermits))
	}
	s.pool = base.NewKeyedPool(base.KeyedPoolOptions[*RepoHandle]{
		MaxEntries: config.maxOpenRepos(),
		New: func(path string) (*RepoHandle, error) {
			return s.openHandle(path)
		},
		OnEvicted: func(path string, value *RepoHandle) {
			value.free()
		},
	})
	return s, nil
}

// Open returns a handle to the repository rooted at path, opening it if
// it is not already cached. Repeated Open calls for the same canonical
// path observe the same underlying repository state.
func (s *Sdk) Open(ctx context.Context, path string) (*RepoHandle, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("Sdk.Open").End()

	canonical, err := canonicalizePath(path)
	if err != nil {
		return nil, repoNotFound(path, err)
	}

	handle, err := s.pool.Get(canonical)
	if err != nil {
		logError(s.log, "failed to open a repository", map[string]any{"path": canonical, "err": err})
		return nil, err
	}

	defer txn.StartSegment("acquire lockfile").End()
	if ok, lockErr := handle.Lockfile.TryRLock(); !ok {
		logInfo(s.log, "waiting for the lockfile", map[string]any{"path": canonical, "err": lockErr})
		// A failed non-blocking read lock means some other handle is
		// currently writing to the repository externally. The cached
		// handle's in-memory state can no longer be trusted, so it's
		// discarded rather than reused.
		handle.doNotReturnToPool = true
		handle.Release()

		handle, err = s.openHandle(canonical)
		if err != nil {
			return nil, err
		}
		if err := handle.Lockfile.RLock(); err != nil {
			handle.Release()
			return nil, ioError(err, "failed to acquire the lockfile at %q", canonical)
		}
	}

	return handle, nil
}

// Evict removes any cached handle for path from the pool. A subsequent
// Open will re-open the repository from scratch. Useful when the caller
// knows the on-disk repository changed underneath the SDK.
func (s *Sdk) Evict(path string) {
	canonical, err := canonicalizePath(path)
	if err != nil {
		return
	}
	logDebug(s.log, "evicting a repository", map[string]any{"path": canonical})
	s.pool.Remove(canonical)
}

// Close tears down the pool, freeing every cached repository. In-flight
// handles obtained before Close remain valid until released.
func (s *Sdk) Close() {
	s.pool.Clear()
	s.lockfiles.Clear()
	s.cache.Close()
}

func (s *Sdk) openHandle(path string) (*RepoHandle, error) {
	if s.openPermits != nil {
		if err := s.openPermits.Acquire(context.Background(), 1); err != nil {
			return nil, ioError(err, "failed to acquire an open permit")
		}
		defer s.openPermits.Release(1)
	}
	handle, err := newRepositoryHandle(s.lockfiles, path, s.cache, s.log)
	if err != nil {
		return nil, err
	}
	handle.pool = s.pool
	return handle, nil
}

func canonicalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %q to an absolute path", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to canonicalize %q", path)
	}
	return resolved, nil
}
