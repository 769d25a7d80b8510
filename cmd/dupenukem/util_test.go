package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// resolveRoot
// =============================================================================

func TestResolveRootAcceptsExistingDirectory(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveRoot(dir)
	if err != nil {
		t.Fatalf("resolveRoot(%q) error: %v", dir, err)
	}
	want, _ := filepath.Abs(dir)
	if got != want {
		t.Errorf("resolveRoot(%q) = %q, want %q", dir, got, want)
	}
}

func TestResolveRootRejectsMissingPath(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope")

	if _, err := resolveRoot(missing); err == nil {
		t.Errorf("resolveRoot(%q) should return error for missing path", missing)
	}
}

func TestResolveRootRejectsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}

	if _, err := resolveRoot(file); err == nil {
		t.Errorf("resolveRoot(%q) should return error for a regular file", file)
	}
}

func TestResolveRootMakesRelativePathAbsolute(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", sub, err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()

	got, err := resolveRoot("sub")
	if err != nil {
		t.Fatalf("resolveRoot(\"sub\") error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("resolveRoot(\"sub\") = %q, want an absolute path", got)
	}
}

// =============================================================================
// resolveExcludes
// =============================================================================

func TestResolveExcludesJoinsAgainstRoot(t *testing.T) {
	root := string(filepath.Separator) + filepath.Join("tmp", "root")
	tests := []struct {
		name string
		rel  []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"single relative", []string{"a/b"}, []string{filepath.Join(root, "a", "b")}},
		{
			"multiple and messy",
			[]string{"a/b", "./c", "d/../e"},
			[]string{
				filepath.Join(root, "a", "b"),
				filepath.Join(root, "c"),
				filepath.Join(root, "e"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveExcludes(root, tt.rel)
			if len(got) != len(tt.want) {
				t.Fatalf("resolveExcludes(%q, %v) = %v, want %v", root, tt.rel, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("resolveExcludes(%q, %v)[%d] = %q, want %q", root, tt.rel, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// =============================================================================
// defaultBackupDir
// =============================================================================

func TestDefaultBackupDirUsesHomeAndTimestamp(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	now := time.Date(2026, 7, 30, 9, 5, 3, 0, time.UTC)
	got := defaultBackupDir(now)

	want := filepath.Join(home, ".dupenukem", "backups", "20260730090503")
	if got != want {
		t.Errorf("defaultBackupDir(%v) = %q, want %q", now, got, want)
	}
}

// =============================================================================
// confirm
// =============================================================================

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"lowercase y", "y\n", true},
		{"lowercase yes", "yes\n", true},
		{"uppercase Y", "Y\n", true},
		{"uppercase YES", "YES\n", true},
		{"padded", "  y  \n", true},
		{"no", "n\n", false},
		{"empty line", "\n", false},
		{"garbage", "sure\n", false},
		{"eof (no input at all)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreStdin := redirectStdin(t, tt.input)
			defer restoreStdin()

			got := confirm("proceed?")
			if got != tt.want {
				t.Errorf("confirm() with input %q = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// redirectStdin replaces os.Stdin with a pipe fed with s for the duration
// of the test, returning a func to restore the original.
func redirectStdin(t *testing.T, s string) func() {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if _, err := w.WriteString(s); err != nil {
		t.Fatalf("write to pipe: %v", err)
	}
	_ = w.Close()

	orig := os.Stdin
	os.Stdin = r
	return func() {
		os.Stdin = orig
		_ = r.Close()
	}
}

// =============================================================================
// drainErrors
// =============================================================================

func TestDrainErrorsWritesEachErrorToStderr(t *testing.T) {
	origStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w
	defer func() { os.Stderr = origStderr }()

	errCh := make(chan error, 2)
	errCh <- errors.New("first")
	errCh <- fmt.Errorf("second: %w", errors.New("wrapped"))
	close(errCh)

	done := make(chan struct{})
	go func() {
		drainErrors(errCh)
		_ = w.Close()
		close(done)
	}()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("read pipe: %v", err)
	}
	<-done

	out := buf.String()
	if !strings.Contains(out, "first") || !strings.Contains(out, "second: wrapped") {
		t.Errorf("drainErrors output = %q, want it to mention both errors", out)
	}
	if strings.Count(out, "warning:") != 2 {
		t.Errorf("drainErrors output = %q, want two %q-prefixed lines", out, "warning:")
	}
}
