package reposdk

import (
	base "github.com/omegaup/go-base/v3"
	"github.com/pkg/errors"
)

// The SDK's error taxonomy is a closed set of category sentinels. Every
// error returned from New and from the Sdk and RepoHandle operations can
// be tested against exactly one of these (the Lockfile methods return
// the underlying syscall errors as they are): a plain sentinel attached with
// base.ErrorWithCategory so the category survives wrapping while the
// original message and source chain are preserved.
var (
	// ErrRepoNotFound means the supplied path is not a repository or could
	// not be opened.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrObjectNotFound means the object store reports the id absent.
	ErrObjectNotFound = errors.New("object not found")

	// ErrRefNotFound means no reference with the given name exists.
	ErrRefNotFound = errors.New("reference not found")

	// ErrTreeEntryNotFound means a path traversal failed within a tree.
	ErrTreeEntryNotFound = errors.New("tree entry not found")

	// ErrInvalidObjectType means a typed getter was called against an
	// object of a different kind.
	ErrInvalidObjectType = errors.New("invalid object type")

	// ErrInvalidRevision means a revision spec could not be parsed or
	// resolved.
	ErrInvalidRevision = errors.New("invalid revision")

	// ErrOperation is a synthesised failure from higher-level logic, e.g. a
	// submodule that does not exist.
	ErrOperation = errors.New("operation failed")

	// ErrIo surfaces a filesystem-level failure.
	ErrIo = errors.New("i/o error")

	// ErrGit surfaces a decoder, format, or traversal failure from git2go.
	// Corruption of on-disk data always produces this category, never
	// ErrObjectNotFound.
	ErrGit = errors.New("git error")
)

// repoNotFound wraps err (which may be nil) under ErrRepoNotFound, naming path.
func repoNotFound(path string, err error) error {
	return base.ErrorWithCategory(ErrRepoNotFound, errors.Wrapf(nonNil(err, ErrRepoNotFound), "repository not found at %q", path))
}

func objectNotFound(id ObjectId) error {
	return base.ErrorWithCategory(ErrObjectNotFound, errors.Errorf("object %s not found", id))
}

func refNotFound(name string) error {
	return base.ErrorWithCategory(ErrRefNotFound, errors.Errorf("reference %q not found", name))
}

func treeEntryNotFound(path string) error {
	return base.ErrorWithCategory(ErrTreeEntryNotFound, errors.Errorf("tree entry %q not found", path))
}

func invalidObjectType(expected, actual ObjectKind) error {
	return base.ErrorWithCategory(ErrInvalidObjectType, errors.Errorf(
		"invalid object type: expected %s, got %s",
		expected, actual,
	))
}

func invalidRevision(spec string) error {
	return base.ErrorWithCategory(ErrInvalidRevision, errors.Errorf("invalid revision %q", spec))
}

func operationError(format string, args ...any) error {
	return base.ErrorWithCategory(ErrOperation, errors.Errorf(format, args...))
}

func ioError(err error, format string, args ...any) error {
	return base.ErrorWithCategory(ErrIo, errors.Wrapf(err, format, args...))
}

// gitError boxes any foreign error from git2go without leaking its
// originating type name into the message. A nil err means the failure
// originates here; Wrapf(nil, ...) would discard the message entirely,
// so that case builds a message-only error instead.
func gitError(err error, format string, args ...any) error {
	if err == nil {
		return base.ErrorWithCategory(ErrGit, errors.Errorf(format, args...))
	}
	return base.ErrorWithCategory(ErrGit, errors.Wrapf(err, format, args...))
}

func nonNil(err error, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
