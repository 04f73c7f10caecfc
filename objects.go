package reposdk

import (
	"context"

	"github.com/omegaup/go-base/v3/tracing"

	git "github.com/libgit2/git2go/v33"
)

// GetObject reads the full object addressed by id. It fails with
// ErrObjectNotFound when the id is absent, or ErrGit when the stored
// bytes don't decode (corruption is never reported as "not found").
func (h *RepoHandle) GetObject(ctx context.Context, id ObjectId) (*Object, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.GetObject").End()

	odb, err := h.Repository.Odb()
	if err != nil {
		return nil, gitError(err, "failed to get odb for repository")
	}
	defer odb.Free()

	oid := id.toGit()
	odbObj, err := odb.Read(oid)
	if err != nil {
		if git.IsErrorCode(err, git.ErrorCodeNotFound) {
			return nil, objectNotFound(id)
		}
		return nil, gitError(err, "failed to read object %s", id)
	}
	defer odbObj.Free()

	kind, ok := kindFromGit(odbObj.Type())
	if !ok {
		return nil, gitError(nil, "object %s has an unrecognized type", id)
	}

	// odbObj.Data() is only valid for the lifetime of odbObj; copy it out.
	data := odbObj.Data()
	out := make([]byte, len(data))
	copy(out, data)

	return &Object{Id: id, Kind: kind, Data: out}, nil
}

// GetObjectHeader returns the kind and size of the object addressed by id
// without necessarily reading its body.
func (h *RepoHandle) GetObjectHeader(ctx context.Context, id ObjectId) (*ObjectHeader, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.GetObjectHeader").End()

	odb, err := h.Repository.Odb()
	if err != nil {
		return nil, gitError(err, "failed to get odb for repository")
	}
	defer odb.Free()

	size, otype, err := odb.ReadHeader(id.toGit())
	if err != nil {
		if git.IsErrorCode(err, git.ErrorCodeNotFound) {
			return nil, objectNotFound(id)
		}
		return nil, gitError(err, "failed to read header for object %s", id)
	}
	kind, ok := kindFromGit(otype)
	if !ok {
		return nil, gitError(nil, "object %s has an unrecognized type", id)
	}

	return &ObjectHeader{Id: id, Kind: kind, Size: size}, nil
}

// ObjectExists reports whether id is present in the store. This is a
// best-effort probe: an underlying I/O error is swallowed and reported
// as false. Callers that need to distinguish "absent" from "failed to
// check" should use GetObjectHeader instead.
func (h *RepoHandle) ObjectExists(ctx context.Context, id ObjectId) bool {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.ObjectExists").End()

	odb, err := h.Repository.Odb()
	if err != nil {
		return false
	}
	defer odb.Free()

	return odb.Exists(id.toGit())
}

// GetBlob reads a blob's contents. If the object exists but isn't a
// blob, it fails InvalidObjectType{"blob", actual}. Blob payloads are
// returned byte-exact, including every byte value.
func (h *RepoHandle) GetBlob(ctx context.Context, id ObjectId) ([]byte, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.GetBlob").End()

	blob, err := h.lookupBlob(id)
	if err != nil {
		return nil, err
	}
	defer blob.Free()

	contents := blob.Contents()
	out := make([]byte, len(contents))
	copy(out, contents)
	return out, nil
}

// GetBlobSize returns the size of a blob without necessarily reading its
// full contents. It equals len(GetBlob(id)) and
// GetObjectHeader(id).Size for the same id.
func (h *RepoHandle) GetBlobSize(ctx context.Context, id ObjectId) (uint64, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.GetBlobSize").End()

	header, err := h.GetObjectHeader(ctx, id)
	if err != nil {
		return 0, err
	}
	if header.Kind != KindBlob {
		return 0, invalidObjectType(KindBlob, header.Kind)
	}
	return header.Size, nil
}

// lookupBlob resolves id to a *git.Blob, translating git2go's
// not-found/type-mismatch errors into our taxonomy.
func (h *RepoHandle) lookupBlob(id ObjectId) (*git.Blob, error) {
	blob, err := h.Repository.LookupBlob(id.toGit())
	if err == nil {
		return blob, nil
	}
	// libgit2 reports ErrorCodeNotFound both when the object is absent and
	// when it exists but is the wrong type; disambiguate by reading the
	// header ourselves before classifying the failure.
	odb, odbErr := h.Repository.Odb()
	if odbErr == nil {
		defer odb.Free()
		if _, otype, headerErr := odb.ReadHeader(id.toGit()); headerErr == nil {
			if kind, ok := kindFromGit(otype); ok && kind != KindBlob {
				return nil, invalidObjectType(KindBlob, kind)
			}
		}
	}
	if git.IsErrorCode(err, git.ErrorCodeNotFound) {
		return nil, objectNotFound(id)
	}
	return nil, gitError(err, "failed to look up blob %s", id)
}
