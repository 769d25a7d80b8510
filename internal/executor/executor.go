// Package executor performs the filesystem side effects described by a
// validated action list: deleting files, replacing them with symlinks, and
// optionally preserving a backup copy of anything removed.
//
// # Overview
//
// The executor is the final stage of the pipeline. It consumes the ordered
// Action list the validator produced and either prints a dry-run plan or
// performs the operations in sequence, stopping at the first error and
// leaving whatever has already happened in place — backups are the
// recovery mechanism, not a rollback log.
package executor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupenukem/internal/errs"
	"github.com/ivoronin/dupenukem/internal/pathutil"
	"github.com/ivoronin/dupenukem/internal/progress"
	"github.com/ivoronin/dupenukem/internal/validator"
)

// Options configures a run of Execute.
type Options struct {
	RootDir      string // snapshot root, for root-relative display and backup layout
	DryRun       bool   // print the plan instead of performing it
	BackupDir    string // if set, removed content is copied here first
	Verbose      bool   // print each action as it's performed
	ShowProgress bool   // display a progress bar while executing
}

// Stats tracks what Execute has done so far.
type Stats struct {
	totalActions     int
	processedActions int
	bytesRemoved     int64
	startTime        time.Time
}

func (s *Stats) String() string {
	return fmt.Sprintf("Applied %d/%d actions, reclaimed %s in %.1fs",
		s.processedActions, s.totalActions,
		humanize.IBytes(uint64(s.bytesRemoved)),
		time.Since(s.startTime).Seconds())
}

// Execute runs the filtered action list according to opts. In dry-run
// mode it only prints a plan to standard error. Execution stops at the
// first error.
func Execute(actions []validator.Action, opts Options) (*Stats, error) {
	filtered := filterActions(actions, opts.DryRun)

	if opts.DryRun {
		for _, a := range filtered {
			printDryRun(a, opts.RootDir)
		}
		return &Stats{totalActions: len(filtered), processedActions: len(filtered)}, nil
	}

	bar := progress.New(opts.ShowProgress, int64(len(filtered)))
	st := &Stats{totalActions: len(filtered), startTime: time.Now()}
	bar.Describe(st)

	for _, a := range filtered {
		bytesRemoved, err := perform(a, opts)
		if err != nil {
			return st, err
		}
		st.bytesRemoved += bytesRemoved
		st.processedActions++
		if opts.Verbose {
			fmt.Fprintf(os.Stderr, "\r\033[K")
			fmt.Fprintln(os.Stdout, describeAction(a, opts.RootDir))
		}
		bar.Set(uint64(st.processedActions))
		bar.Describe(st)
	}

	bar.Finish(st)
	return st, nil
}

// filterActions drops Keep actions always, and drops no-op Symlink/Delete
// actions unless dryRun is set (a dry-run plan shows no-ops too, so the
// user can see why nothing will happen to that path).
func filterActions(actions []validator.Action, dryRun bool) []validator.Action {
	out := make([]validator.Action, 0, len(actions))
	for _, a := range actions {
		if a.Kind == validator.ActionKeep {
			continue
		}
		if !dryRun && a.IsNoOp {
			continue
		}
		out = append(out, a)
	}
	return out
}

func printDryRun(a validator.Action, root string) {
	prefix := "[DRY RUN]"
	if a.IsNoOp {
		prefix += " [NO-OP]"
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", prefix, describeAction(a, root))
}

func describeAction(a validator.Action, root string) string {
	rel := relDisplay(root, a.Path)
	switch a.Kind {
	case validator.ActionSymlink:
		source, err := pathutil.NormalizeSymlinkSrcPath(a.Path, a.Source, a.IsExplicit)
		if err != nil {
			source = a.Source
		}
		return fmt.Sprintf("symlink %s -> %s", rel, source)
	case validator.ActionDelete:
		return fmt.Sprintf("delete %s", rel)
	default:
		return fmt.Sprintf("keep %s", rel)
	}
}

func relDisplay(root, path string) string {
	rel, err := pathutil.NormalizePath(path, true, root)
	if err != nil {
		return path
	}
	return rel
}

// perform executes a single non-Keep action and returns the number of
// bytes its removal reclaimed. A Symlink action's removal sub-step is
// counted the same way a Delete is.
func perform(a validator.Action, opts Options) (int64, error) {
	switch a.Kind {
	case validator.ActionDelete:
		return removeWithBackup(a.Path, opts)
	case validator.ActionSymlink:
		bytesRemoved, err := removeWithBackup(a.Path, opts)
		if err != nil {
			return 0, err
		}
		source, err := pathutil.NormalizeSymlinkSrcPath(a.Path, a.Source, a.IsExplicit)
		if err != nil {
			return 0, errs.WrapPath(errs.Io, a.Path, err)
		}
		if err := createSymlinkAtomic(a.Path, source); err != nil {
			return 0, errs.WrapPath(errs.Io, a.Path, err)
		}
		return bytesRemoved, nil
	default:
		return 0, nil
	}
}

// removeWithBackup backs up path (if opts.BackupDir is set) then removes
// the path itself — unlinking only the entry if it is a symlink, never
// following it.
func removeWithBackup(path string, opts Options) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, errs.WrapPath(errs.Io, path, err)
	}

	var size int64
	if info.Mode()&os.ModeSymlink == 0 {
		size = info.Size()
	}

	if opts.BackupDir != "" {
		if err := backupFile(path, opts.RootDir, opts.BackupDir); err != nil {
			return 0, errs.WrapPath(errs.Io, path, err)
		}
	}

	if err := os.Remove(path); err != nil {
		return 0, errs.WrapPath(errs.Io, path, err)
	}
	return size, nil
}

// backupFile copies path's content into backupDir, mirroring path's
// location relative to rootDir. For a symlink entry the backup holds the
// target's content, not the link itself, since the point of a backup is
// to preserve data that would otherwise be lost.
func backupFile(path, rootDir, backupDir string) error {
	rel, err := pathutil.NormalizePath(path, true, rootDir)
	if err != nil {
		return err
	}
	dest := filepath.Join(backupDir, rel)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}
