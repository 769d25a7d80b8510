// Package snapshot defines the duplicate-group data model (Checksum,
// FileOp, FilePath, Snapshot) and the text-format codec that renders and
// parses it.
package snapshot

import (
	"os"
	"strconv"
	"time"

	"github.com/ivoronin/dupenukem/internal/errs"
	"github.com/ivoronin/dupenukem/internal/pathutil"
)

// Checksum is an opaque wrapper over a 64-bit content fingerprint. The
// wrapper exists so the underlying hashing algorithm can change without
// touching callers; equality and ordering are defined by the wrapped value.
type Checksum struct {
	value uint64
}

// NewChecksum wraps a raw fingerprint value.
func NewChecksum(value uint64) Checksum { return Checksum{value} }

// Value returns the wrapped fingerprint.
func (c Checksum) Value() uint64 { return c.value }

// String renders the checksum as a decimal string.
func (c Checksum) String() string { return strconv.FormatUint(c.value, 10) }

// ParseChecksum parses a decimal string into a Checksum.
func ParseChecksum(s string) (Checksum, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Checksum{}, errs.Newf(errs.ChecksumParsing, "invalid checksum %q: %v", s, err)
	}
	return Checksum{v}, nil
}

// FileOpKind tags the case of a FileOp.
type FileOpKind int

const (
	// OpKeep retains the file as is.
	OpKeep FileOpKind = iota
	// OpSymlink replaces the file with a symbolic link.
	OpSymlink
	// OpDelete removes the file.
	OpDelete
)

// FileOp is a tagged union of the three operations a snapshot line can
// carry: Keep, Symlink (with an optional explicit source), or Delete.
type FileOp struct {
	Kind FileOpKind

	// Source is only meaningful when Kind == OpSymlink. A nil Source means
	// the user did not specify one — the validator must resolve an
	// implicit source. A non-nil Source is the path exactly as written in
	// the snapshot (relative or absolute, never canonicalized).
	Source *string
}

// Keep returns a Keep FileOp.
func Keep() FileOp { return FileOp{Kind: OpKeep} }

// Symlink returns a Symlink FileOp. Pass nil for an implicit source.
func Symlink(source *string) FileOp { return FileOp{Kind: OpSymlink, Source: source} }

// Delete returns a Delete FileOp.
func Delete() FileOp { return FileOp{Kind: OpDelete} }

// FilePath pairs an absolute path with the operation the user (or the
// scanner, for a freshly-created snapshot) assigned to it.
type FilePath struct {
	AbsPath string
	Op      FileOp
}

// Size lazily stats the filesystem for the file's current size.
func (fp *FilePath) Size() (int64, error) {
	info, err := os.Lstat(fp.AbsPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// NewScannedFilePath builds the FilePath for a freshly scanned entry: if
// the on-disk entry is itself a symlink, its FileOp starts as
// Symlink{Source: readlink(absPath)}; otherwise it starts as Keep.
func NewScannedFilePath(absPath string) (*FilePath, error) {
	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(absPath)
		if err != nil {
			return nil, err
		}
		return &FilePath{AbsPath: absPath, Op: Symlink(&target)}, nil
	}
	return &FilePath{AbsPath: absPath, Op: Keep()}, nil
}

// Snapshot is an immutable set of duplicate-file groups discovered under
// RootDir at GeneratedAt.
type Snapshot struct {
	RootDir     string
	GeneratedAt time.Time
	Duplicates  map[Checksum][]*FilePath
}

// AllowFullDeletion controls whether a group may contain zero Keep
// entries, as long as every entry in it is Delete. It is not a Snapshot
// field because it is a validation-time policy choice, not a property of
// the snapshot's content; see the validator package.

// Validate checks the two invariants that hold regardless of whether the
// snapshot is about to be validated for execution: every path lies under
// RootDir, and every group has at least two entries. (The "at least one
// Keep per group" invariant is validation policy, checked by the
// validator package together with AllowFullDeletion.)
func (s *Snapshot) Validate() error {
	for cs, paths := range s.Duplicates {
		if len(paths) < 2 {
			return errs.Validation(errs.CorruptSnapshot, "", "group "+cs.String()+" has fewer than 2 entries")
		}
		for _, fp := range paths {
			if !pathutil.WithinRootDir(s.RootDir, fp.AbsPath) {
				return errs.Validation(errs.CorruptSnapshot, fp.AbsPath, "path is not under root directory "+s.RootDir)
			}
		}
	}
	return nil
}
