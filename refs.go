package reposdk

import (
	"context"
	"strings"

	"github.com/omegaup/go-base/v3/tracing"

	git "github.com/libgit2/git2go/v33"
)

// ListRefs enumerates every reference whose fully-qualified name starts
// with prefix (pass "" for every reference). Loose and packed references
// are merged transparently by git2go's reference iterator, with a loose
// entry shadowing a packed one of the same name.
func (h *RepoHandle) ListRefs(ctx context.Context, prefix string) ([]RefInfo, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.ListRefs").End()

	it, err := h.Repository.NewReferenceIterator()
	if err != nil {
		return nil, gitError(err, "failed to create a reference iterator")
	}
	defer it.Free()

	out := []RefInfo{}
	for {
		ref, err := it.Next()
		if err != nil {
			if git.IsErrorCode(err, git.ErrorCodeIterOver) {
				break
			}
			return nil, gitError(err, "failed to read next reference")
		}

		name := ref.Name()
		if !strings.HasPrefix(name, prefix) {
			ref.Free()
			continue
		}

		info, err := h.resolveNamedRef(ref)
		ref.Free()
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// ListBranches is shorthand for ListRefs(ctx, "refs/heads/").
func (h *RepoHandle) ListBranches(ctx context.Context) ([]RefInfo, error) {
	return h.ListRefs(ctx, "refs/heads/")
}

// ListTags is shorthand for ListRefs(ctx, "refs/tags/").
func (h *RepoHandle) ListTags(ctx context.Context) ([]RefInfo, error) {
	return h.ListRefs(ctx, "refs/tags/")
}

// ResolveRef accepts a fully-qualified name, a short branch/tag name
// (searched in the order refs/heads/<name>, refs/tags/<name>,
// refs/<name>), or the literal HEAD.
func (h *RepoHandle) ResolveRef(ctx context.Context, name string) (*RefInfo, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.ResolveRef").End()

	if name == "HEAD" {
		return h.GetHead(ctx)
	}

	ref, err := h.lookupRefByName(name)
	if err != nil {
		return nil, err
	}
	defer ref.Free()

	info, err := h.resolveNamedRef(ref)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetHead resolves the HEAD pseudo-reference. A normal repository
// yields a symbolic RefInfo whose Target is the branch tip; a detached
// HEAD yields a non-symbolic RefInfo pointing directly at a commit; an
// unborn HEAD (symbolic ref to a branch that doesn't exist yet) yields
// IsSymbolic=true with Target equal to NullObjectId — the only
// non-error case that produces a null target.
func (h *RepoHandle) GetHead(ctx context.Context) (*RefInfo, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.GetHead").End()

	ref, err := h.Repository.References.Lookup("HEAD")
	if err != nil {
		return nil, gitError(err, "failed to look up HEAD")
	}
	defer ref.Free()

	info, err := h.resolveNamedRef(ref)
	if err != nil {
		return nil, err
	}
	info.Name = "HEAD"
	return &info, nil
}

// lookupRefByName tries name as a fully-qualified reference first, then
// falls back to the standard short-name search order.
func (h *RepoHandle) lookupRefByName(name string) (*git.Reference, error) {
	if ref, err := h.Repository.References.Lookup(name); err == nil {
		return ref, nil
	} else if !git.IsErrorCode(err, git.ErrorCodeNotFound) {
		return nil, gitError(err, "failed to look up reference %s", name)
	}

	for _, prefix := range []string{"refs/heads/", "refs/tags/", "refs/"} {
		candidate := prefix + name
		ref, err := h.Repository.References.Lookup(candidate)
		if err == nil {
			return ref, nil
		}
		if !git.IsErrorCode(err, git.ErrorCodeNotFound) {
			return nil, gitError(err, "failed to look up reference %s", candidate)
		}
	}
	return nil, refNotFound(name)
}

// resolveNamedRef materializes a RefInfo for ref. A direct (non-symbolic)
// reference's target is reported exactly as stored, even when it
// addresses an annotated tag object: a tag reference resolves to the
// tag object's own id, not the pointed-to commit, and no peeling
// happens unless a symbolic chain is actually followed. A symbolic
// reference's target is
// the peeled object id following the chain and any intermediate tag
// objects at its terminus; if the chain terminates at a name that
// doesn't exist (unborn), the result carries NullObjectId and no error.
func (h *RepoHandle) resolveNamedRef(ref *git.Reference) (RefInfo, error) {
	info := RefInfo{Name: ref.Name()}
	if ref.Type() != git.ReferenceSymbolic {
		info.Target = objectIDFromGit(ref.Target())
		return info, nil
	}

	info.IsSymbolic = true
	info.SymbolicTarget = ref.SymbolicTarget()

	direct, unborn, err := h.followSymbolicChain(ref)
	if err != nil {
		return RefInfo{}, err
	}
	if unborn {
		info.Target = NullObjectId
		return info, nil
	}
	defer direct.Free()

	target, err := h.peelToNonTag(direct.Target())
	if err != nil {
		return RefInfo{}, err
	}
	info.Target = target
	return info, nil
}

// followSymbolicChain follows ref's symbolic chain to the direct
// reference it ultimately names. The returned reference is a new lookup
// the caller must Free; ref itself is left untouched. unborn is true if
// the chain terminates at a name that doesn't exist.
func (h *RepoHandle) followSymbolicChain(ref *git.Reference) (*git.Reference, bool, error) {
	visited := map[string]bool{ref.Name(): true}
	name := ref.SymbolicTarget()

	for {
		if visited[name] {
			return nil, false, gitError(nil, "symbolic reference cycle detected at %s", name)
		}
		visited[name] = true

		next, err := h.Repository.References.Lookup(name)
		if err != nil {
			if git.IsErrorCode(err, git.ErrorCodeNotFound) {
				return nil, true, nil
			}
			return nil, false, gitError(err, "failed to resolve symbolic reference %s", name)
		}
		if next.Type() != git.ReferenceSymbolic {
			return next, false, nil
		}
		name = next.SymbolicTarget()
		next.Free()
	}
}

// peelToNonTag follows a chain of annotated tag objects (a tag may point
// to another tag) down to the first non-tag object. Ownership of each
// intermediate object passes through the loop, so each is freed exactly
// once as the walk moves past it.
func (h *RepoHandle) peelToNonTag(oid *git.Oid) (ObjectId, error) {
	obj, err := h.Repository.Lookup(oid)
	if err != nil {
		return ObjectId{}, gitError(err, "failed to look up %s", oid)
	}

	for obj.Type() == git.ObjectTag {
		tag, err := obj.AsTag()
		if err != nil {
			wrapped := gitError(err, "failed to read tag %s", obj.Id())
			obj.Free()
			return ObjectId{}, wrapped
		}
		next, err := h.Repository.Lookup(tag.TargetId())
		if err != nil {
			wrapped := gitError(err, "failed to peel tag %s", obj.Id())
			obj.Free()
			return ObjectId{}, wrapped
		}
		obj.Free()
		obj = next
	}

	id := objectIDFromGit(obj.Id())
	obj.Free()
	return id, nil
}
