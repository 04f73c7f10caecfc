package reposdk

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/omegaup/go-base/v3/tracing"

	git "github.com/libgit2/git2go/v33"
)


// ListSubmodules enumerates every submodule declared in the HEAD
// revision's .gitmodules file. A repository with no .gitmodules
// file at HEAD (including an unborn HEAD) returns an empty slice, not an
// error — a tracked-but-absent file is a legitimate "no submodules"
// state, distinct from a malformed one.
func (h *RepoHandle) ListSubmodules(ctx context.Context) ([]SubmoduleInfo, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.ListSubmodules").End()

	sections, err := h.readGitmodules()
	if err != nil {
		return nil, err
	}

	out := make([]SubmoduleInfo, 0, len(sections))
	for _, section := range sections {
		info, err := h.buildSubmoduleInfo(section)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// GetSubmodule looks up a single submodule by the name it is declared
// under in .gitmodules. Absence is ErrOperation, a synthesised
// not-found from higher-level logic rather than a dedicated sentinel.
func (h *RepoHandle) GetSubmodule(ctx context.Context, name string) (*SubmoduleInfo, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.GetSubmodule").End()

	all, err := h.ListSubmodules(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, operationError("submodule %q not found", name)
}

// readGitmodules locates and parses the .gitmodules blob tracked at
// HEAD. An unborn HEAD or a HEAD tree with no .gitmodules entry both
// yield (nil, nil): no submodules, no error. Any other failure —
// .gitmodules present but not a blob, or unparseable content — is ErrGit.
func (h *RepoHandle) readGitmodules() ([]gitmoduleSection, error) {
	tree, err := h.headTree()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, nil
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(".gitmodules")
	if err != nil {
		return nil, nil
	}
	if entry.Filemode == git.FilemodeCommit || entry.Type != git.ObjectBlob {
		return nil, gitError(nil, ".gitmodules is not a blob")
	}

	blob, err := h.Repository.LookupBlob(entry.Id)
	if err != nil {
		return nil, gitError(err, "failed to read .gitmodules blob")
	}
	defer blob.Free()

	sections, err := parseGitmodules(blob.Contents())
	if err != nil {
		return nil, gitError(err, "failed to parse .gitmodules")
	}
	return sections, nil
}

// headTree returns the tree of the HEAD commit, or (nil, nil) for an
// unborn HEAD.
func (h *RepoHandle) headTree() (*git.Tree, error) {
	head, err := h.Repository.Head()
	if err != nil {
		if git.IsErrorCode(err, git.ErrorCodeUnbornBranch) || git.IsErrorCode(err, git.ErrorCodeNotFound) {
			return nil, nil
		}
		return nil, gitError(err, "failed to resolve HEAD")
	}
	defer head.Free()

	commit, err := h.lookupCommit(head.Target())
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, gitError(err, "failed to read HEAD tree")
	}
	return tree, nil
}

// buildSubmoduleInfo merges the four sources into one
// SubmoduleInfo: section gives name/path/url default; repository config
// can override url and resolve is_active; the index and HEAD tree each
// independently contribute a gitlink commit id, if any.
func (h *RepoHandle) buildSubmoduleInfo(section gitmoduleSection) (SubmoduleInfo, error) {
	if !section.hasPath || section.path == "" {
		return SubmoduleInfo{}, gitError(nil, "submodule %q has no path", section.name)
	}
	if path.IsAbs(section.path) {
		return SubmoduleInfo{}, gitError(nil, "submodule %q has an absolute path %q", section.name, section.path)
	}

	info := SubmoduleInfo{Name: section.name, Path: section.path}
	if section.hasURL {
		info.URL = section.url
		info.HasURL = true
	}

	cfg, err := h.Repository.Config()
	if err != nil {
		return SubmoduleInfo{}, gitError(err, "failed to read repository configuration")
	}
	defer cfg.Free()

	if url, err := cfg.LookupString(fmt.Sprintf("submodule.%s.url", section.name)); err == nil {
		info.URL = url
		info.HasURL = true
	}

	active, hasActive, err := h.resolveSubmoduleActive(cfg, section)
	if err != nil {
		return SubmoduleInfo{}, err
	}

	if commit, ok, err := h.indexGitlink(section.path); err != nil {
		return SubmoduleInfo{}, err
	} else if ok {
		info.IndexCommit = commit
		info.HasIndex = true
	}

	if commit, ok, err := h.headTreeGitlink(section.path); err != nil {
		return SubmoduleInfo{}, err
	} else if ok {
		info.HeadCommit = commit
		info.HasHead = true
	}

	switch {
	case hasActive:
		info.IsActive = active
	case section.hasActive:
		info.IsActive = section.active
	default:
		info.IsActive = info.HasIndex || info.HasHead
	}

	return info, nil
}

// resolveSubmoduleActive resolves a submodule's active state: an
// explicit submodule.<name>.active config value wins when present;
// otherwise the submodule.active pathspec is checked; otherwise ok is
// false and the caller falls back to the .gitmodules declaration or
// "present in index or HEAD".
//
// Real git config keys are multi-valued and submodule.active can be
// repeated with negating (!pattern) entries evaluated last-match-wins;
// LookupString only ever returns the single last-set value, so a
// repository relying on multiple submodule.active entries is only
// partially honoured here. Nothing in the retrieval pack exercises
// git2go's multivar iteration, so rather than invent an untested API
// against it this keeps to the single-value case.
func (h *RepoHandle) resolveSubmoduleActive(cfg *git.Config, section gitmoduleSection) (active bool, ok bool, err error) {
	key := fmt.Sprintf("submodule.%s.active", section.name)
	if v, lookupErr := cfg.LookupString(key); lookupErr == nil {
		b, parseErr := parseConfigBool(v)
		if parseErr != nil {
			return false, false, gitError(parseErr, "invalid boolean for %s", key)
		}
		return b, true, nil
	}

	if pattern, lookupErr := cfg.LookupString("submodule.active"); lookupErr == nil && pattern != "" {
		if matchesSubmodulePathspec(pattern, section.path) {
			return true, true, nil
		}
	}

	return false, false, nil
}

// matchesSubmodulePathspec reports whether a single submodule.active
// pathspec entry selects path. Supports exact match, shell-style glob,
// and directory-prefix match; a leading "!" (negation) is stripped
// rather than interpreted, consistent with the single-value limitation
// documented on resolveSubmoduleActive.
func matchesSubmodulePathspec(pattern, p string) bool {
	pattern = strings.TrimPrefix(pattern, "!")
	if pattern == p {
		return true
	}
	if matched, _ := path.Match(pattern, p); matched {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(pattern, "/")+"/")
}

// indexGitlink reports the commit id recorded for submodulePath in the
// index, if the index carries a gitlink entry there.
func (h *RepoHandle) indexGitlink(submodulePath string) (ObjectId, bool, error) {
	index, err := h.Repository.Index()
	if err != nil {
		return ObjectId{}, false, gitError(err, "failed to read repository index")
	}
	defer index.Free()

	entry, err := index.EntryByPath(submodulePath, 0)
	if err != nil {
		return ObjectId{}, false, nil
	}
	if entry.Mode != git.FilemodeCommit {
		return ObjectId{}, false, nil
	}
	return objectIDFromGit(entry.Id), true, nil
}

// headTreeGitlink reports the commit id recorded for submodulePath in
// the HEAD tree, if HEAD has a gitlink entry there.
func (h *RepoHandle) headTreeGitlink(submodulePath string) (ObjectId, bool, error) {
	tree, err := h.headTree()
	if err != nil {
		return ObjectId{}, false, err
	}
	if tree == nil {
		return ObjectId{}, false, nil
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(submodulePath)
	if err != nil {
		return ObjectId{}, false, nil
	}
	if entry.Filemode != git.FilemodeCommit {
		return ObjectId{}, false, nil
	}
	return objectIDFromGit(entry.Id), true, nil
}
