// Package pathutil normalizes paths relative to a snapshot's root directory
// and computes symlink source paths, preserving the user's choice between
// relative and absolute forms.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/ivoronin/dupenukem/internal/errs"
)

// NormalizePath reconciles path against base, in the form mustBeRelative
// dictates.
//
//   - mustBeRelative && path is absolute: strip the base prefix, failing if
//     path does not lie under base.
//   - !mustBeRelative && path is relative: join base and path.
//   - Already in the requested form: returned unchanged.
//   - Absolute and not under base (when an absolute result was wanted):
//     failure.
func NormalizePath(path string, mustBeRelative bool, base string) (string, error) {
	isAbs := filepath.IsAbs(path)

	switch {
	case mustBeRelative && isAbs:
		rel, err := filepath.Rel(base, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", errs.Newf(errs.Fs, "%s is not under %s", path, base)
		}
		return rel, nil
	case !mustBeRelative && !isAbs:
		return filepath.Join(base, path), nil
	case mustBeRelative && !isAbs:
		return path, nil
	default: // !mustBeRelative && isAbs
		if !WithinRootDir(base, path) {
			return "", errs.Newf(errs.Fs, "%s is not under %s", path, base)
		}
		return path, nil
	}
}

// NormalizeSymlinkSrcPath computes the string to store (or display) as a
// symlink's source.
//
// If isExplicit, source is returned unchanged — the user's choice of
// relative or absolute form carries intent and must not be rewritten.
// Otherwise source is an implicit source (always the keeper's absolute
// path) and the function computes the path from targetAbs's parent
// directory to source, i.e. the relative path a symlink created at
// targetAbs would need to resolve to source.
func NormalizeSymlinkSrcPath(targetAbs, source string, isExplicit bool) (string, error) {
	if isExplicit {
		return source, nil
	}

	if !filepath.IsAbs(source) {
		return "", errs.Newf(errs.Fs, "implicit symlink source %s must be absolute", source)
	}

	parent := filepath.Dir(targetAbs)
	if parent == targetAbs {
		return "", errs.Newf(errs.Fs, "%s has no parent directory", targetAbs)
	}

	rel, err := filepath.Rel(parent, source)
	if err != nil {
		return "", errs.WrapPath(errs.Fs, targetAbs, err)
	}
	return rel, nil
}

// WithinRootDir reports whether root appears among path's ancestors. This
// is a pure string/path-component comparison: neither argument is
// canonicalized (symlinks are not resolved).
func WithinRootDir(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)

	if root == path {
		return true
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
