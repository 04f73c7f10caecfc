package reposdk

import (
	"context"
	"testing"
)

func TestGetHeadAndResolveRef(t *testing.T) {
	repo, dir := newBareTestRepo(t)

	commitID := commitTree(t, repo, "refs/heads/master", "author", "initial", map[string]string{
		"a.txt": "1\n",
	})

	sdk := newTestSdk(t)
	ctx := context.Background()
	handle, err := sdk.Open(ctx, dir)
	if err != nil {
		t.Fatalf("failed to open handle: %v", err)
	}
	defer handle.Release()

	head, err := handle.GetHead(ctx)
	if err != nil {
		t.Fatalf("GetHead failed: %v", err)
	}
	if !head.IsSymbolic {
		t.Fatalf("expected HEAD to be symbolic")
	}
	if head.SymbolicTarget != "refs/heads/master" {
		t.Fatalf("expected symbolic target refs/heads/master, got %q", head.SymbolicTarget)
	}
	if head.Target != objectIDFromGit(commitID) {
		t.Fatalf("expected HEAD to resolve to the initial commit")
	}

	ref, err := handle.ResolveRef(ctx, "master")
	if err != nil {
		t.Fatalf("ResolveRef(master) failed: %v", err)
	}
	if ref.Name != "refs/heads/master" {
		t.Fatalf("expected refs/heads/master, got %q", ref.Name)
	}
	if ref.Target != objectIDFromGit(commitID) {
		t.Fatalf("expected resolved ref to match the initial commit")
	}

	branches, err := handle.ListBranches(ctx)
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if len(branches) != 1 || branches[0].Name != "refs/heads/master" {
		t.Fatalf("unexpected branches: %+v", branches)
	}
}

func TestUnbornHead(t *testing.T) {
	_, dir := newBareTestRepo(t)

	sdk := newTestSdk(t)
	ctx := context.Background()
	handle, err := sdk.Open(ctx, dir)
	if err != nil {
		t.Fatalf("failed to open handle: %v", err)
	}
	defer handle.Release()

	head, err := handle.GetHead(ctx)
	if err != nil {
		t.Fatalf("GetHead on an empty repository should not fail: %v", err)
	}
	if !head.IsSymbolic {
		t.Fatalf("expected an unborn HEAD to still be symbolic")
	}
	if !head.Target.IsNull() {
		t.Fatalf("expected an unborn HEAD to resolve to the null id")
	}
}

// TestUnbornHeadWithOtherBranchesPresent: HEAD can be unborn (points
// at a branch name that doesn't exist yet) even when the repository
// already has other, real branches — the contract isn't conditioned on
// the repository being otherwise empty.
func TestUnbornHeadWithOtherBranchesPresent(t *testing.T) {
	repo, dir := newBareTestRepo(t)

	_ = commitTree(t, repo, "refs/heads/other", "author", "initial", map[string]string{
		"a.txt": "1\n",
	})

	sdk := newTestSdk(t)
	ctx := context.Background()
	handle, err := sdk.Open(ctx, dir)
	if err != nil {
		t.Fatalf("failed to open handle: %v", err)
	}
	defer handle.Release()

	branches, err := handle.ListBranches(ctx)
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if len(branches) != 1 || branches[0].Name != "refs/heads/other" {
		t.Fatalf("expected exactly refs/heads/other to exist, got %+v", branches)
	}

	head, err := handle.GetHead(ctx)
	if err != nil {
		t.Fatalf("GetHead should not fail while HEAD's branch doesn't exist yet: %v", err)
	}
	if !head.IsSymbolic {
		t.Fatalf("expected HEAD to still be symbolic")
	}
	if !head.Target.IsNull() {
		t.Fatalf("expected HEAD's target branch to not exist yet, got target %s", head.Target)
	}
	if head.SymbolicTarget == "refs/heads/other" {
		t.Fatalf("HEAD should not already point at the branch that was created directly")
	}
}

func TestResolveRefMissing(t *testing.T) {
	_, dir := newBareTestRepo(t)

	sdk := newTestSdk(t)
	ctx := context.Background()
	handle, err := sdk.Open(ctx, dir)
	if err != nil {
		t.Fatalf("failed to open handle: %v", err)
	}
	defer handle.Release()

	_, err = handle.ResolveRef(ctx, "does-not-exist")
	if err == nil {
		t.Fatalf("expected an error resolving a missing reference")
	}
	if !isCategory(err, ErrRefNotFound) {
		t.Fatalf("expected ErrRefNotFound, got %v", err)
	}
}

// TestDirectTagRefIsNotPeeled verifies the annotated-tag contract:
// resolving a direct (non-symbolic) tag reference by name
// yields is_symbolic=false with Target equal to the tag object's own id,
// never peeled to the commit it points to — even through a tag-of-a-tag
// chain.
func TestDirectTagRefIsNotPeeled(t *testing.T) {
	repo, dir := newBareTestRepo(t)

	commitID := commitTree(t, repo, "refs/heads/master", "author", "initial", map[string]string{
		"a.txt": "1\n",
	})
	commit := lookupTestCommit(t, repo, commitID)
	defer commit.Free()

	sig := testSignature("tagger", 0)
	innerTagID, err := repo.Tags.Create("v1-inner", commit, sig, "inner tag")
	if err != nil {
		t.Fatalf("failed to create inner tag: %v", err)
	}
	innerTag, err := repo.LookupTag(innerTagID)
	if err != nil {
		t.Fatalf("failed to look up inner tag: %v", err)
	}
	defer innerTag.Free()

	outerTagID, err := repo.Tags.Create("v1", innerTag, sig, "outer tag")
	if err != nil {
		t.Fatalf("failed to create outer tag: %v", err)
	}

	sdk := newTestSdk(t)
	ctx := context.Background()
	handle, err := sdk.Open(ctx, dir)
	if err != nil {
		t.Fatalf("failed to open handle: %v", err)
	}
	defer handle.Release()

	ref, err := handle.ResolveRef(ctx, "v1")
	if err != nil {
		t.Fatalf("ResolveRef(v1) failed: %v", err)
	}
	if ref.IsSymbolic {
		t.Fatalf("expected a direct tag reference to be non-symbolic")
	}
	if ref.Target != objectIDFromGit(outerTagID) {
		t.Fatalf("expected a direct tag ref to resolve to the tag object itself, got %s want %s", ref.Target, objectIDFromGit(outerTagID))
	}
	if ref.Target == objectIDFromGit(commitID) {
		t.Fatalf("a direct tag ref must not be peeled down to the pointed-to commit")
	}
}

// TestSymbolicRefThroughTagIsPeeled verifies the complementary case: a
// symbolic reference chain that terminates at a direct tag ref does peel
// through the tag chain to the non-tag object.
func TestSymbolicRefThroughTagIsPeeled(t *testing.T) {
	repo, dir := newBareTestRepo(t)

	commitID := commitTree(t, repo, "refs/heads/master", "author", "initial", map[string]string{
		"a.txt": "1\n",
	})
	commit := lookupTestCommit(t, repo, commitID)
	defer commit.Free()

	sig := testSignature("tagger", 0)
	innerTagID, err := repo.Tags.Create("v1-inner", commit, sig, "inner tag")
	if err != nil {
		t.Fatalf("failed to create inner tag: %v", err)
	}
	innerTag, err := repo.LookupTag(innerTagID)
	if err != nil {
		t.Fatalf("failed to look up inner tag: %v", err)
	}
	defer innerTag.Free()

	if _, err := repo.Tags.Create("v1", innerTag, sig, "outer tag"); err != nil {
		t.Fatalf("failed to create outer tag: %v", err)
	}

	headRef, err := repo.References.CreateSymbolic("HEAD", "refs/tags/v1", true, "point HEAD at the tag")
	if err != nil {
		t.Fatalf("failed to point HEAD at the tag: %v", err)
	}
	headRef.Free()

	sdk := newTestSdk(t)
	ctx := context.Background()
	handle, err := sdk.Open(ctx, dir)
	if err != nil {
		t.Fatalf("failed to open handle: %v", err)
	}
	defer handle.Release()

	head, err := handle.GetHead(ctx)
	if err != nil {
		t.Fatalf("GetHead failed: %v", err)
	}
	if !head.IsSymbolic {
		t.Fatalf("expected HEAD to remain symbolic")
	}
	if head.Target != objectIDFromGit(commitID) {
		t.Fatalf("expected a symbolic ref through a tag-of-a-tag chain to peel to the commit, got %s", head.Target)
	}
}
