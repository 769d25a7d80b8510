// Package validator checks a parsed snapshot against the invariants in
// spec §4.5 and turns it into an ordered list of filesystem actions.
package validator

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ivoronin/dupenukem/internal/errs"
	"github.com/ivoronin/dupenukem/internal/hashutil"
	"github.com/ivoronin/dupenukem/internal/pathutil"
	"github.com/ivoronin/dupenukem/internal/snapshot"
)

// ActionKind tags the case of an Action.
type ActionKind int

const (
	ActionKeep ActionKind = iota
	ActionSymlink
	ActionDelete
)

// Action is one concrete filesystem operation derived from a validated
// snapshot entry. Source and IsExplicit are only meaningful for
// ActionSymlink.
type Action struct {
	Kind       ActionKind
	Path       string // absolute path of the entry this action concerns
	Source     string // intended symlink source (raw, not yet normalized)
	IsExplicit bool   // symlink source was written by the user, not derived
	IsNoOp     bool   // the action's effect is already present on disk
}

// Validate checks every invariant in spec §4.5 against s and, if it holds,
// returns the ordered action list the executor should perform.
// allowFullDeletion permits a group whose every entry is Delete (normally
// forbidden, since a group must keep a survivor).
func Validate(s *snapshot.Snapshot, allowFullDeletion bool) ([]Action, error) {
	if _, err := os.Stat(s.RootDir); err != nil {
		return nil, errs.Validation(errs.RootDir, s.RootDir, "root directory does not exist")
	}

	var actions []Action
	for _, cs := range sortedChecksums(s.Duplicates) {
		paths := s.Duplicates[cs]
		groupActions, err := validateGroup(s.RootDir, cs, paths, allowFullDeletion)
		if err != nil {
			return nil, err
		}
		actions = append(actions, groupActions...)
	}
	return actions, nil
}

func sortedChecksums(groups map[snapshot.Checksum][]*snapshot.FilePath) []snapshot.Checksum {
	out := make([]snapshot.Checksum, 0, len(groups))
	for cs := range groups {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value() < out[j].Value() })
	return out
}

func validateGroup(root string, cs snapshot.Checksum, paths []*snapshot.FilePath, allowFullDeletion bool) ([]Action, error) {
	if len(paths) < 2 {
		return nil, errs.Validation(errs.CorruptSnapshot, "", "group "+cs.String()+" has fewer than 2 entries")
	}

	keeper, err := selectKeeper(cs, paths, allowFullDeletion)
	if err != nil {
		return nil, err
	}

	actions := make([]Action, 0, len(paths))
	for _, fp := range paths {
		if !pathutil.WithinRootDir(root, fp.AbsPath) {
			return nil, errs.Validation(errs.CorruptSnapshot, fp.AbsPath, "path is not under root directory "+root)
		}

		var action Action
		var err error
		switch fp.Op.Kind {
		case snapshot.OpKeep:
			action, err = validateKeep(cs, fp)
		case snapshot.OpSymlink:
			action, err = validateSymlink(cs, fp, keeper)
		case snapshot.OpDelete:
			action, err = validateDelete(cs, fp)
		}
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// selectKeeper returns the group's keeper: the first Keep entry in the
// list sorted by path, chosen so independent users editing the same
// snapshot tend to resolve implicit symlink sources to the same target.
// The pointer returned always comes from the original (unsorted) slice,
// preserving entry identity for the caller.
func selectKeeper(cs snapshot.Checksum, paths []*snapshot.FilePath, allowFullDeletion bool) (*snapshot.FilePath, error) {
	sorted := make([]*snapshot.FilePath, len(paths))
	copy(sorted, paths)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AbsPath < sorted[j].AbsPath })

	for _, fp := range sorted {
		if fp.Op.Kind == snapshot.OpKeep {
			return fp, nil
		}
	}

	allDelete := true
	for _, fp := range paths {
		if fp.Op.Kind != snapshot.OpDelete {
			allDelete = false
			break
		}
	}
	if allDelete && allowFullDeletion {
		return nil, nil
	}
	return nil, errs.Validation(errs.OpNotAllowed, "", "group "+cs.String()+" has no keep entry")
}

func validateKeep(cs snapshot.Checksum, fp *snapshot.FilePath) (Action, error) {
	info, err := os.Lstat(fp.AbsPath)
	if os.IsNotExist(err) {
		return Action{}, errs.Validation(errs.OpNotPossible, fp.AbsPath, "path does not exist")
	}
	if err != nil {
		return Action{}, errs.ValidationIoErr(fp.AbsPath, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return Action{}, errs.Validation(errs.OpNotPossible, fp.AbsPath, "cannot keep a symlink")
	}

	actual, err := hashutil.FastFingerprint(fp.AbsPath)
	if err != nil {
		return Action{}, errs.ValidationIoErr(fp.AbsPath, err)
	}
	if actual != cs.Value() {
		return Action{}, errs.Mismatch(fp.AbsPath, cs.String(), strconv.FormatUint(actual, 10))
	}
	return Action{Kind: ActionKeep, Path: fp.AbsPath}, nil
}

func validateSymlink(cs snapshot.Checksum, fp *snapshot.FilePath, keeper *snapshot.FilePath) (Action, error) {
	isExplicit := fp.Op.Source != nil

	var intendedSource string
	if isExplicit {
		source := *fp.Op.Source
		resolved := source
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Clean(filepath.Join(filepath.Dir(fp.AbsPath), resolved))
		}
		actual, err := hashutil.FastFingerprint(resolved)
		if err != nil || actual != cs.Value() {
			return Action{}, errs.Validation(errs.OpNotPossible, fp.AbsPath, "hash mismatch for specified source")
		}
		intendedSource = source
	} else {
		if keeper == nil {
			return Action{}, errs.Validation(errs.OpNotAllowed, fp.AbsPath, "no keeper to derive an implicit symlink source from")
		}
		intendedSource = keeper.AbsPath
	}

	if sourceIsSymlink(fp.AbsPath, intendedSource) {
		return Action{}, errs.Validation(errs.OpNotAllowed, fp.AbsPath, "intended symlink source is itself a symlink")
	}

	info, err := os.Lstat(fp.AbsPath)
	switch {
	case os.IsNotExist(err):
		return Action{}, errs.Validation(errs.OpNotPossible, fp.AbsPath, "path does not exist")
	case err != nil:
		return Action{}, errs.ValidationIoErr(fp.AbsPath, err)
	case info.Mode()&os.ModeSymlink != 0:
		return validateExistingSymlink(fp.AbsPath, intendedSource, isExplicit)
	default:
		actual, err := hashutil.FastFingerprint(fp.AbsPath)
		if err != nil {
			return Action{}, errs.ValidationIoErr(fp.AbsPath, err)
		}
		if actual != cs.Value() {
			return Action{}, errs.Mismatch(fp.AbsPath, cs.String(), strconv.FormatUint(actual, 10))
		}
		return Action{Kind: ActionSymlink, Path: fp.AbsPath, Source: intendedSource, IsExplicit: isExplicit}, nil
	}
}

// sourceIsSymlink reports whether the intended source, resolved relative
// to target's parent when not absolute, is itself a symlink.
func sourceIsSymlink(target, source string) bool {
	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Clean(filepath.Join(filepath.Dir(target), path))
	}
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

func validateExistingSymlink(target, intendedSource string, isExplicit bool) (Action, error) {
	actualRaw, err := os.Readlink(target)
	if err != nil {
		return Action{}, errs.ValidationIoErr(target, err)
	}

	match, err := symlinkMatches(target, intendedSource, actualRaw, isExplicit)
	if err != nil {
		return Action{}, err
	}
	if !match {
		return Action{}, errs.Validation(errs.OpNotAllowed, target, "updating a symlink source is not supported")
	}
	return Action{Kind: ActionSymlink, Path: target, Source: intendedSource, IsExplicit: isExplicit, IsNoOp: true}, nil
}

func symlinkMatches(target, intended, actual string, isExplicit bool) (bool, error) {
	intendedAbs := filepath.IsAbs(intended)
	actualAbs := filepath.IsAbs(actual)

	if isExplicit || (intendedAbs && actualAbs) {
		return actual == intended, nil
	}

	if intendedAbs && !actualAbs {
		resolved := filepath.Clean(filepath.Join(filepath.Dir(target), actual))
		return resolved == intended, nil
	}

	if !intendedAbs {
		// Implicit intended sources are always the keeper's absolute
		// path; a relative implicit source would indicate a bug upstream.
		return false, errs.Validation(errs.OpNotAllowed, target, "implicit intended source cannot be relative")
	}

	return actual == intended, nil
}

func validateDelete(cs snapshot.Checksum, fp *snapshot.FilePath) (Action, error) {
	if _, err := os.Lstat(fp.AbsPath); os.IsNotExist(err) {
		return Action{Kind: ActionDelete, Path: fp.AbsPath, IsNoOp: true}, nil
	}

	actual, err := hashutil.FastFingerprint(fp.AbsPath)
	if err != nil {
		return Action{}, errs.Validation(errs.OpNotAllowed, fp.AbsPath, "path exists but cannot be resolved: "+err.Error())
	}
	if actual != cs.Value() {
		return Action{}, errs.Mismatch(fp.AbsPath, cs.String(), strconv.FormatUint(actual, 10))
	}
	return Action{Kind: ActionDelete, Path: fp.AbsPath}, nil
}
