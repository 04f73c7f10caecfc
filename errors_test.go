package reposdk

import (
	"strings"
	"testing"

	base "github.com/omegaup/go-base/v3"
	"github.com/pkg/errors"
)

// isCategory is a thin, test-only wrapper so test files read naturally;
// base.HasErrorCategory is the actual check.
func isCategory(err error, sentinel error) bool {
	return base.HasErrorCategory(err, sentinel)
}

func TestErrorMessagesCarryTheDiscriminatingDatum(t *testing.T) {
	var id ObjectId
	id.raw[0] = 0xab

	for _, tt := range []struct {
		err  error
		want string
	}{
		{objectNotFound(id), id.String()},
		{refNotFound("refs/heads/main"), "refs/heads/main"},
		{treeEntryNotFound("src/lib.rs"), "src/lib.rs"},
		{invalidObjectType(KindBlob, KindTree), "expected blob, got tree"},
		{invalidRevision("HEAD~~oops"), "HEAD~~oops"},
		{operationError("submodule %q not found", "vendor"), "vendor"},
	} {
		if !strings.Contains(tt.err.Error(), tt.want) {
			t.Errorf("expected %v to mention %q", tt.err, tt.want)
		}
	}
}

func TestErrorSourceChainIsPreserved(t *testing.T) {
	source := errors.New("disk on fire")

	wrapped := ioError(source, "failed to read %q", "objects/ab")
	if !isCategory(wrapped, ErrIo) {
		t.Fatalf("expected an ErrIo category, got %v", wrapped)
	}
	if !errors.Is(wrapped, source) {
		t.Fatalf("expected the source error to remain reachable, got %v", wrapped)
	}

	gitWrapped := gitError(source, "pack decode failed")
	if !isCategory(gitWrapped, ErrGit) {
		t.Fatalf("expected an ErrGit category, got %v", gitWrapped)
	}
	if !errors.Is(gitWrapped, source) {
		t.Fatalf("expected the source error to remain reachable through ErrGit")
	}
}

func TestErrorCategoriesAreDisjoint(t *testing.T) {
	err := objectNotFound(ObjectId{})
	if isCategory(err, ErrRefNotFound) || isCategory(err, ErrGit) {
		t.Fatalf("expected exactly one category on %v", err)
	}
}
