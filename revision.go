package reposdk

import (
	"context"
	"strings"

	"github.com/omegaup/go-base/v3/tracing"
)

// ResolveRevision parses and resolves a git revision spec: HEAD/@,
// fully-qualified or short ref names, full or unambiguous short hex
// object ids, ancestry operators (~N, ^, ^N), and peel operators
// (^{commit}, ^{tree}, ^{blob}, ^{tag}, ^{}). It delegates the grammar
// itself to git2go's RevparseSingle, which implements the
// gitrevisions(7) syntax, and translates any failure (empty spec,
// invalid hex, ambiguous prefix, unresolvable name) into a single
// InvalidRevision rather than inspecting git2go's specific error code.
func (h *RepoHandle) ResolveRevision(ctx context.Context, spec string) (ObjectId, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.ResolveRevision").End()

	if strings.TrimSpace(spec) == "" {
		return ObjectId{}, invalidRevision(spec)
	}

	obj, err := h.Repository.RevparseSingle(spec)
	if err != nil {
		return ObjectId{}, invalidRevision(spec)
	}
	defer obj.Free()

	return objectIDFromGit(obj.Id()), nil
}
