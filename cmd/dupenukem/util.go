package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivoronin/dupenukem/internal/errs"
)

// resolveRoot turns a user-supplied root directory argument into a clean
// absolute path and confirms it exists and is a directory.
func resolveRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.Validation(errs.RootDir, path, err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errs.Validation(errs.RootDir, abs, "does not exist")
	}
	if !info.IsDir() {
		return "", errs.Validation(errs.RootDir, abs, "is not a directory")
	}
	return abs, nil
}

// resolveExcludes turns a set of --exclude arguments (relative to root, per
// spec §6) into the exact absolute paths the scanner's exclusion set wants.
func resolveExcludes(root string, relExcludes []string) []string {
	abs := make([]string, 0, len(relExcludes))
	for _, rel := range relExcludes {
		abs = append(abs, filepath.Clean(filepath.Join(root, rel)))
	}
	return abs
}

// readSnapshotInput reads snapshot text from path, or from stdin when
// fromStdin is true (path is then ignored).
func readSnapshotInput(path string, fromStdin bool) ([]string, error) {
	var r io.Reader
	if fromStdin {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errs.WrapPath(errs.Io, path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.WrapPath(errs.Io, path, err)
	}
	return lines, nil
}

// defaultBackupDir returns the default --backup-dir value: a timestamped
// directory under the user's home, falling back to the current directory
// when $HOME is unset.
func defaultBackupDir(now time.Time) string {
	base, err := os.UserHomeDir()
	if err != nil || base == "" {
		base = "."
	}
	return filepath.Join(base, ".dupenukem", "backups", now.Format("20060102150405"))
}

// confirm prompts the user with a yes/no question on stdout/stdin,
// defaulting to "no" on EOF or anything other than an explicit "y"/"yes".
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// drainErrors consumes non-fatal errors from a channel and writes them to
// stderr, clearing the progress bar's line first to avoid visual collision.
func drainErrors(errCh <-chan error) {
	for err := range errCh {
		fmt.Fprintf(os.Stderr, "\r\033[Kwarning: %v\n", err)
	}
}
