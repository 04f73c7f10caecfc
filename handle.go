package reposdk

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	base "github.com/omegaup/go-base/v3"
	"github.com/omegaup/go-base/v3/logging"
	git "github.com/libgit2/git2go/v33"
)

// RepoHandle is a cheap-to-copy reference to a shared, opened repository
// state held by the Sdk's pool. It is the only legitimate way to invoke
// the operations in objects.go, refs.go, revision.go, submodule.go and
// blame.go. All such operations are safe to invoke concurrently on the
// same handle.
type RepoHandle struct {
	// Repository is the underlying git2go handle. Operations in this
	// package use it directly; callers embedding this SDK may too, but
	// must never call Repository.Free (Release owns that).
	Repository *git.Repository
	Lockfile   *Lockfile

	doNotReturnToPool bool

	path  string
	cache *ristretto.Cache[string, any]
	log   logging.Logger
	pool  *base.KeyedPool[*RepoHandle]
}

func newRepositoryHandle(m *LockfileManager, path string, cache *ristretto.Cache[string, any], log logging.Logger) (*RepoHandle, error) {
	logInfo(log, "opening a repository handle", map[string]any{"path": path})

	repository, err := git.OpenRepository(path)
	if err != nil {
		return nil, repoNotFound(path, err)
	}

	return &RepoHandle{
		Repository: repository,
		Lockfile:   m.NewLockfile(repository.Path()),
		path:       path,
		cache:      cache,
		log:        log,
	}, nil
}

// Release relinquishes the lockfile and returns the handle to the pool it
// came from, unless it was marked doNotReturnToPool (e.g. because an
// external writer held the lockfile), in which case its resources are
// freed immediately.
func (h *RepoHandle) Release() {
	h.Lockfile.Unlock()
	if h.doNotReturnToPool || h.pool == nil {
		h.free()
		return
	}
	h.pool.Put(h.path, h)
}

func (h *RepoHandle) free() {
	logInfo(h.log, "releasing a repository handle", map[string]any{"path": h.path})
	h.Repository.Free()
}

// cacheKey scopes a cache entry to this handle's repository path, so one
// Sdk-wide ristretto.Cache can be shared by every open repository without
// oid collisions between repositories.
func (h *RepoHandle) cacheKey(oid *git.Oid) string {
	return fmt.Sprintf("%s\x00%s", h.path, oid.String())
}

func (h *RepoHandle) cachedCommit(oid *git.Oid) (*git.Commit, bool) {
	if h.cache == nil {
		return nil, false
	}
	v, ok := h.cache.Get(h.cacheKey(oid))
	if !ok {
		return nil, false
	}
	commit, ok := v.(*git.Commit)
	return commit, ok
}

func (h *RepoHandle) storeCommit(oid *git.Oid, commit *git.Commit) {
	if h.cache == nil {
		return
	}
	h.cache.Set(h.cacheKey(oid), commit, 1)
}

// lookupCommit fetches a commit, consulting the handle's decoded-object
// cache first. This avoids re-parsing the same commit repeatedly during a
// blame traversal or repeated submodule lookups (which read the HEAD
// commit) against the same handle.
func (h *RepoHandle) lookupCommit(oid *git.Oid) (*git.Commit, error) {
	if commit, ok := h.cachedCommit(oid); ok {
		return commit, nil
	}
	commit, err := h.Repository.LookupCommit(oid)
	if err != nil {
		if git.IsErrorCode(err, git.ErrorCodeNotFound) {
			return nil, objectNotFound(objectIDFromGit(oid))
		}
		return nil, gitError(err, "failed to look up commit %s", oid)
	}
	h.storeCommit(oid, commit)
	return commit, nil
}
