package reposdk

import (
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	git "github.com/libgit2/git2go/v33"
	log15 "github.com/omegaup/go-base/logging/log15"
)

// newBareTestRepo creates an empty bare repository in a fresh temporary
// directory, cleaned up automatically when the test ends.
func newBareTestRepo(t *testing.T) (*git.Repository, string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "reposdk_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	repo, err := git.InitRepository(dir, true)
	if err != nil {
		t.Fatalf("failed to init repository: %v", err)
	}
	t.Cleanup(func() { repo.Free() })

	return repo, dir
}

// buildTree writes files (a flat map of path -> contents) as blobs and
// assembles the tree structure they imply, returning the root tree id.
func buildTree(t *testing.T, repo *git.Repository, files map[string]string) *git.Oid {
	t.Helper()

	oid, err := buildTreeLevel(repo, files)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}
	return oid
}

func buildTreeLevel(repo *git.Repository, files map[string]string) (*git.Oid, error) {
	builder, err := repo.TreeBuilder()
	if err != nil {
		return nil, err
	}
	defer builder.Free()

	children := map[string]map[string]string{}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		contents := files[name]
		parts := strings.SplitN(name, "/", 2)
		if len(parts) == 2 {
			sub := children[parts[0]]
			if sub == nil {
				sub = map[string]string{}
				children[parts[0]] = sub
			}
			sub[parts[1]] = contents
			continue
		}

		blobID, err := repo.CreateBlobFromBuffer([]byte(contents))
		if err != nil {
			return nil, err
		}
		if err := builder.Insert(name, blobID, git.FilemodeBlob); err != nil {
			return nil, err
		}
	}

	for name, sub := range children {
		subID, err := buildTreeLevel(repo, sub)
		if err != nil {
			return nil, err
		}
		if err := builder.Insert(name, subID, git.FilemodeTree); err != nil {
			return nil, err
		}
	}

	return builder.Write()
}

func testSignature(name string, offsetSeconds int) *git.Signature {
	return &git.Signature{
		Name:  name,
		Email: name + "@test.test",
		When:  time.Unix(int64(offsetSeconds), 0),
	}
}

// commitTree creates a commit from files on top of parents (none for a
// root commit) and, when refname is non-empty, moves that reference to
// point at it.
func commitTree(t *testing.T, repo *git.Repository, refname, author, message string, files map[string]string, parents ...*git.Commit) *git.Oid {
	t.Helper()

	treeID := buildTree(t, repo, files)
	tree, err := repo.LookupTree(treeID)
	if err != nil {
		t.Fatalf("failed to look up tree: %v", err)
	}
	defer tree.Free()

	sig := testSignature(author, 0)
	commitID, err := repo.CreateCommit(refname, sig, sig, message, tree, parents...)
	if err != nil {
		t.Fatalf("failed to create commit: %v", err)
	}
	return commitID
}

func lookupTestCommit(t *testing.T, repo *git.Repository, id *git.Oid) *git.Commit {
	t.Helper()
	commit, err := repo.LookupCommit(id)
	if err != nil {
		t.Fatalf("failed to look up commit %s: %v", id, err)
	}
	return commit
}

// newTestSdk builds an Sdk with default configuration, cleaned up
// automatically when the test ends.
func newTestSdk(t *testing.T) *Sdk {
	t.Helper()

	log, err := log15.New("info", false)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	sdk, err := New(SdkConfig{Log: log})
	if err != nil {
		t.Fatalf("failed to build sdk: %v", err)
	}
	t.Cleanup(func() { sdk.Close() })
	return sdk
}
