package reposdk

import (
	git "github.com/libgit2/git2go/v33"
)

// lineDiffMapping maps each 1-based line number of the "new" blob to
// the 1-based line number of its counterpart in the "old" blob. A line
// introduced in new (no old counterpart) maps to 0.
type lineDiffMapping map[int]int

// buildLineDiffMapping diffs oldBlob against newBlob as a single
// logical file, widening the context far enough that the whole file
// comes back as one hunk — every line, changed or not, is reported
// through the line callback exactly once, which is what the blame
// walk's hunk-splitting in splitHunk needs.
func buildLineDiffMapping(oldBlob, newBlob *git.Blob, oldPath, newPath string) (lineDiffMapping, error) {
	opts, err := git.DefaultDiffOptions()
	if err != nil {
		return nil, gitError(err, "failed to build diff options")
	}
	opts.ContextLines = fullFileContextLines(oldBlob, newBlob)

	mapping := lineDiffMapping{}
	lineCallback := func(line git.DiffLine) error {
		switch line.Origin {
		case git.DiffLineContext:
			if line.NewLineno > 0 && line.OldLineno > 0 {
				mapping[line.NewLineno] = line.OldLineno
			}
		case git.DiffLineAddition:
			if line.NewLineno > 0 {
				mapping[line.NewLineno] = 0
			}
		}
		return nil
	}
	err = git.DiffBlobs(oldBlob, oldPath, newBlob, newPath, &opts,
		func(delta git.DiffDelta, progress float64) (git.DiffForEachHunkCallback, error) {
			return func(hunk git.DiffHunk) (git.DiffForEachLineCallback, error) {
				return lineCallback, nil
			}, nil
		},
		git.DiffDetailLines,
	)
	if err != nil {
		return nil, gitError(err, "failed to diff %s against %s", newPath, oldPath)
	}
	return mapping, nil
}

// fullFileContextLines picks a ContextLines value guaranteed to be at
// least as large as either blob's line count, using byte size as a
// cheap upper bound (a file never has more lines than bytes). The
// value is capped so that it still fits a uint32.
func fullFileContextLines(blobs ...*git.Blob) uint32 {
	const maxContextLines = 1<<32 - 2

	var max int64
	for _, b := range blobs {
		if size := b.Size(); size > max {
			max = size
		}
	}
	if max > maxContextLines {
		max = maxContextLines
	}
	return uint32(max) + 1
}
