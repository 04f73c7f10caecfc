package reposdk

import (
	"bytes"
	"context"
	"sort"

	"github.com/omegaup/go-base/v3/tracing"

	git "github.com/libgit2/git2go/v33"
)

// blameHunk is a still-unattributed span of lines carried through the
// walk. outputStart/count are fixed in the coordinate space of the
// queried file — the BlameEntry.start_line the caller ultimately sees.
// curStart tracks the same span's position within the file as it
// exists at whichever commit is currently under examination, which
// shifts every time the walk steps to a parent.
type blameHunk struct {
	outputStart int
	curStart    int
	count       int
}

// BlameFile computes per-line authorship for path as it exists at
// commitID. It walks strictly first-parent history — the
// algorithm diffs each commit's version of the file against its first
// parent's, never branches into other parents — optionally following a
// rename across that step via tree-level rename detection.
func (h *RepoHandle) BlameFile(ctx context.Context, commitID ObjectId, path string, options BlameOptions) (*BlameResult, error) {
	txn := tracing.FromContext(ctx)
	defer txn.StartSegment("RepoHandle.BlameFile").End()

	commit, err := h.lookupCommit(commitID.toGit())
	if err != nil {
		return nil, err
	}

	blob, err := h.blobAtPath(commit, path)
	if err != nil {
		return nil, err
	}
	allLines := splitLines(blob.Contents())
	blob.Free()

	blameRange, err := resolveBlameRange(options.Range, len(allLines))
	if err != nil {
		return nil, err
	}

	blamedCount := 0
	if blameRange.End >= blameRange.Start {
		blamedCount = int(blameRange.End-blameRange.Start) + 1
	}
	lines := make([][]byte, blamedCount)
	for i := range lines {
		src := allLines[int(blameRange.Start)-1+i]
		dst := make([]byte, len(src))
		copy(dst, src)
		lines[i] = dst
	}

	var pending []blameHunk
	if len(lines) > 0 {
		pending = append(pending, blameHunk{
			outputStart: int(blameRange.Start),
			curStart:    int(blameRange.Start),
			count:       len(lines),
		})
	}

	var entries []BlameEntry
	var stats BlameStats

	currentCommit := commit
	currentPath := path

	for len(pending) > 0 {
		stats.CommitsTraversed++

		parentCommit, parentPath, ok, err := h.firstParentPredecessor(currentCommit, currentPath, options.followRenames())
		if err != nil {
			return nil, err
		}
		if !ok {
			entries = append(entries, attributeAll(pending, currentCommit.Id())...)
			break
		}

		currentBlob, err := h.blobAtPath(currentCommit, currentPath)
		if err != nil {
			return nil, err
		}
		parentBlob, err := h.blobAtPath(parentCommit, parentPath)
		if err != nil {
			currentBlob.Free()
			// The predecessor path resolved above turned out not to be a
			// blob in the parent's tree; nothing further back to walk for
			// this hunk set, so it all originates at the current commit.
			entries = append(entries, attributeAll(pending, currentCommit.Id())...)
			break
		}

		// Identical blobs produce no diff callbacks at all; every pending
		// hunk propagates to the parent with its coordinates unchanged.
		if *currentBlob.Id() == *parentBlob.Id() {
			currentBlob.Free()
			parentBlob.Free()
			currentCommit = parentCommit
			currentPath = parentPath
			continue
		}

		mapping, err := buildLineDiffMapping(parentBlob, currentBlob, parentPath, currentPath)
		currentBlob.Free()
		parentBlob.Free()
		if err != nil {
			return nil, err
		}

		var next []blameHunk
		for _, hunk := range pending {
			propagated, attributed := splitHunk(hunk, mapping)
			entries = append(entries, attributeAll(attributed, currentCommit.Id())...)
			next = append(next, propagated...)
		}
		pending = next

		currentCommit = parentCommit
		currentPath = parentPath
	}

	if stats.CommitsTraversed == 0 {
		// The starting commit is always examined, even when the file has
		// no lines to attribute.
		stats.CommitsTraversed = 1
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].StartLine < entries[j].StartLine })
	entries = mergeAdjacentBlameEntries(entries)

	return &BlameResult{Entries: entries, Lines: lines, Statistics: stats}, nil
}

// attributeAll finalises every hunk in hunks as a BlameEntry owned by
// commitID.
func attributeAll(hunks []blameHunk, commitID *git.Oid) []BlameEntry {
	out := make([]BlameEntry, 0, len(hunks))
	id := objectIDFromGit(commitID)
	for _, hunk := range hunks {
		out = append(out, BlameEntry{
			CommitId:          id,
			StartLine:         uint(hunk.outputStart),
			LineCount:         uint(hunk.count),
			OriginalStartLine: uint(hunk.curStart),
		})
	}
	return out
}

// firstParentPredecessor resolves currentCommit's first parent and, if
// childPath doesn't exist as a blob there, optionally looks for a
// rename match. ok is false only at a root commit (no parents) or when
// childPath has no counterpart in the parent (a genuine introduction,
// or a rename the caller chose not to follow).
func (h *RepoHandle) firstParentPredecessor(currentCommit *git.Commit, childPath string, followRenames bool) (*git.Commit, string, bool, error) {
	if currentCommit.ParentCount() == 0 {
		return nil, "", false, nil
	}

	parentCommit, err := h.lookupCommit(currentCommit.ParentId(0))
	if err != nil {
		return nil, "", false, err
	}

	parentTree, err := parentCommit.Tree()
	if err != nil {
		return nil, "", false, gitError(err, "failed to read tree for %s", parentCommit.Id())
	}
	if entry, entryErr := parentTree.EntryByPath(childPath); entryErr == nil && entry.Type == git.ObjectBlob {
		parentTree.Free()
		return parentCommit, childPath, true, nil
	}
	parentTree.Free()

	if !followRenames {
		return nil, "", false, nil
	}

	predecessor, found, err := h.findRenamedPredecessor(currentCommit, parentCommit, childPath)
	if err != nil {
		return nil, "", false, err
	}
	if !found {
		return nil, "", false, nil
	}
	return parentCommit, predecessor, true, nil
}

// findRenamedPredecessor diffs currentCommit's tree against parent's
// tree with rename detection enabled and reports the old-side path of
// whatever delta's new side is childPath, if any.
func (h *RepoHandle) findRenamedPredecessor(currentCommit, parentCommit *git.Commit, childPath string) (string, bool, error) {
	childTree, err := currentCommit.Tree()
	if err != nil {
		return "", false, gitError(err, "failed to read tree for %s", currentCommit.Id())
	}
	defer childTree.Free()

	parentTree, err := parentCommit.Tree()
	if err != nil {
		return "", false, gitError(err, "failed to read tree for %s", parentCommit.Id())
	}
	defer parentTree.Free()

	diff, err := h.Repository.DiffTreeToTree(parentTree, childTree, nil)
	if err != nil {
		return "", false, gitError(err, "failed to diff %s against %s", currentCommit.Id(), parentCommit.Id())
	}
	defer diff.Free()

	findOpts, err := git.DefaultDiffFindOptions()
	if err != nil {
		return "", false, gitError(err, "failed to build rename-detection options")
	}
	findOpts.Flags = git.DiffFindRenames
	if err := diff.FindSimilar(&findOpts); err != nil {
		return "", false, gitError(err, "failed to run rename detection between %s and %s", currentCommit.Id(), parentCommit.Id())
	}

	count, err := diff.NumDeltas()
	if err != nil {
		return "", false, gitError(err, "failed to read diff delta count")
	}
	for i := 0; i < count; i++ {
		delta, err := diff.GetDelta(i)
		if err != nil {
			return "", false, gitError(err, "failed to read diff delta %d", i)
		}
		if delta.Status == git.DeltaRenamed && delta.NewFile.Path == childPath {
			return delta.OldFile.Path, true, nil
		}
	}
	return "", false, nil
}

// blobAtPath resolves path within commit's tree and returns its blob,
// failing TreeEntryNotFound or InvalidObjectType.
func (h *RepoHandle) blobAtPath(commit *git.Commit, path string) (*git.Blob, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, gitError(err, "failed to read tree for %s", commit.Id())
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(path)
	if err != nil {
		return nil, treeEntryNotFound(path)
	}
	if entry.Type != git.ObjectBlob {
		kind, ok := kindFromGit(entry.Type)
		if !ok {
			kind = KindTree
		}
		return nil, invalidObjectType(KindBlob, kind)
	}

	blob, err := h.Repository.LookupBlob(entry.Id)
	if err != nil {
		return nil, gitError(err, "failed to read blob %s", path)
	}
	return blob, nil
}

// splitLines splits data on '\n', dropping at most one trailing empty
// element produced by a final newline. An empty file has zero lines; a
// file consisting of a single newline has one, empty, line.
func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	trimmed := data
	if trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return bytes.Split(trimmed, []byte{'\n'})
}

// resolveBlameRange validates and defaults the requested range: the
// zero value means the whole file; otherwise start must be within
// bounds and end may not precede it. An end past the last line is
// clamped rather than rejected.
func resolveBlameRange(r BlameRange, totalLines int) (BlameRange, error) {
	if r.Start == 0 {
		return BlameRange{Start: 1, End: uint(totalLines)}, nil
	}
	if r.End < r.Start {
		return BlameRange{}, operationError("blame range end %d precedes start %d", r.End, r.Start)
	}
	if int(r.Start) > totalLines {
		return BlameRange{}, operationError("blame range start %d exceeds %d lines", r.Start, totalLines)
	}
	end := r.End
	if int(end) > totalLines {
		end = uint(totalLines)
	}
	return BlameRange{Start: r.Start, End: end}, nil
}

// splitHunk partitions hunk's current-coordinate line span into
// maximal runs that are either all mapped to contiguous lines in the
// old file (propagated to the parent) or all unmapped (attributed to
// the commit under examination).
func splitHunk(hunk blameHunk, mapping lineDiffMapping) (propagated, attributed []blameHunk) {
	type run struct {
		mapped      bool
		outputStart int
		curStart    int
		count       int
		nextOld     int
	}
	var current *run

	flush := func() {
		if current == nil {
			return
		}
		out := blameHunk{outputStart: current.outputStart, curStart: current.curStart, count: current.count}
		if current.mapped {
			propagated = append(propagated, out)
		} else {
			attributed = append(attributed, out)
		}
		current = nil
	}

	for i := 0; i < hunk.count; i++ {
		pos := hunk.curStart + i
		outputPos := hunk.outputStart + i
		oldPos, known := mapping[pos]
		mapped := known && oldPos > 0

		if current != nil && current.mapped == mapped && (!mapped || oldPos == current.nextOld) {
			current.count++
			if mapped {
				current.nextOld++
			}
			continue
		}

		flush()
		current = &run{mapped: mapped, outputStart: outputPos, count: 1}
		if mapped {
			current.curStart = oldPos
			current.nextOld = oldPos + 1
		} else {
			current.curStart = pos
		}
	}
	flush()

	return propagated, attributed
}

// mergeAdjacentBlameEntries merges consecutive entries that share a
// commit and whose original-file coordinates are themselves contiguous
// — purely cosmetic: callers only rely on contiguity and full coverage
// of entries, not minimality.
func mergeAdjacentBlameEntries(entries []BlameEntry) []BlameEntry {
	if len(entries) == 0 {
		return entries
	}
	merged := make([]BlameEntry, 0, len(entries))
	merged = append(merged, entries[0])
	for _, e := range entries[1:] {
		last := &merged[len(merged)-1]
		if e.CommitId == last.CommitId &&
			last.StartLine+last.LineCount == e.StartLine &&
			last.OriginalStartLine+last.LineCount == e.OriginalStartLine {
			last.LineCount += e.LineCount
			continue
		}
		merged = append(merged, e)
	}
	return merged
}
