package reposdk

import (
	"encoding/hex"

	git "github.com/libgit2/git2go/v33"
)

// ObjectId is a content-addressed identifier. git2go (and the libgit2 it
// binds) addresses objects with 20-byte SHA-1 ids; this type exists so the
// exported API never spells git.Oid directly, keeping the conversion
// to/from the underlying library in one place (objectIDFromGit and
// toGit in types.go).
type ObjectId struct {
	raw [20]byte
}

// NullObjectId is the distinguished all-zero id that is never the address
// of a real object; it represents "no target yet" for an unborn HEAD.
var NullObjectId = ObjectId{}

func objectIDFromGit(oid *git.Oid) ObjectId {
	var id ObjectId
	copy(id.raw[:], oid[:])
	return id
}

func (id ObjectId) toGit() *git.Oid {
	oid := git.Oid(id.raw)
	return &oid
}

// String renders the id as lowercase hexadecimal, twice the byte width.
func (id ObjectId) String() string {
	return hex.EncodeToString(id.raw[:])
}

// IsNull reports whether this is the distinguished null id.
func (id ObjectId) IsNull() bool {
	return id == NullObjectId
}

// Bytes returns a copy of the id's raw bytes.
func (id ObjectId) Bytes() []byte {
	out := make([]byte, len(id.raw))
	copy(out, id.raw[:])
	return out
}

// ParseObjectId parses a full-width lowercase (or uppercase) hex string
// into an ObjectId. It does not consult any repository; short prefixes
// must go through ResolveRevision instead.
func ParseObjectId(s string) (ObjectId, error) {
	oid, err := git.NewOid(s)
	if err != nil {
		return ObjectId{}, invalidRevision(s)
	}
	return objectIDFromGit(oid), nil
}

// ObjectKind is the closed set of object kinds in the store.
type ObjectKind int

const (
	// KindBlob identifies a blob object.
	KindBlob ObjectKind = iota
	// KindTree identifies a tree object.
	KindTree
	// KindCommit identifies a commit object.
	KindCommit
	// KindTag identifies an annotated tag object.
	KindTag
)

// String returns the lowercase kind name, as used in InvalidObjectType
// error messages.
func (k ObjectKind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindCommit:
		return "commit"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

func kindFromGit(t git.ObjectType) (ObjectKind, bool) {
	switch t {
	case git.ObjectBlob:
		return KindBlob, true
	case git.ObjectTree:
		return KindTree, true
	case git.ObjectCommit:
		return KindCommit, true
	case git.ObjectTag:
		return KindTag, true
	default:
		return 0, false
	}
}

// Object is the typed, decoded form of an object read from the store.
type Object struct {
	Id   ObjectId
	Kind ObjectKind
	Data []byte
}

// ObjectHeader is the kind and size of an object, obtainable without
// necessarily reading the full body.
type ObjectHeader struct {
	Id   ObjectId
	Kind ObjectKind
	Size uint64
}

// RefInfo is a single named reference, fully resolved.
type RefInfo struct {
	Name           string
	Target         ObjectId
	IsSymbolic     bool
	SymbolicTarget string // only meaningful when IsSymbolic
}

// SubmoduleInfo is the merged view of a single submodule, combining
// .gitmodules, repository config overrides, the index, and the HEAD tree.
type SubmoduleInfo struct {
	Name        string
	Path        string
	URL         string // empty if absent
	HasURL      bool
	HeadCommit  ObjectId
	HasHead     bool
	IndexCommit ObjectId
	HasIndex    bool
	IsActive    bool
}

// BlameEntry attributes a contiguous line range of the blamed file to the
// commit that introduced it.
type BlameEntry struct {
	CommitId          ObjectId
	StartLine         uint
	LineCount         uint
	OriginalStartLine uint
}

// BlameStats carries summary statistics about a blame traversal.
type BlameStats struct {
	CommitsTraversed uint
}

// BlameResult is the outcome of a blame_file call.
type BlameResult struct {
	Entries    []BlameEntry
	Lines      [][]byte
	Statistics BlameStats
}

// BlameRange restricts a blame to a 1-based, inclusive line range. The
// zero value (Start == 0) means "the whole file".
type BlameRange struct {
	Start uint
	End   uint
}

// BlameOptions configures a blame_file call.
type BlameOptions struct {
	// Range restricts the blame to a line range. Zero value blames the
	// whole file.
	Range BlameRange

	// DisableRenameFollowing turns off rename detection across commit
	// boundaries. Rename following is on by default.
	DisableRenameFollowing bool
}

func (o BlameOptions) followRenames() bool {
	return !o.DisableRenameFollowing
}
