package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ivoronin/dupenukem/internal/validator"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestExecuteDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "b.txt")
	writeFile(t, target, "hello")

	actions := []validator.Action{{Kind: validator.ActionDelete, Path: target}}
	if _, err := Execute(actions, Options{RootDir: dir}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Lstat(target); !os.IsNotExist(err) {
		t.Errorf("expected target to be removed, lstat err = %v", err)
	}
}

func TestExecuteDeleteWithBackupPreservesContent(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backup")
	target := filepath.Join(dir, "sub", "b.txt")
	writeFile(t, target, "hello")

	actions := []validator.Action{{Kind: validator.ActionDelete, Path: target}}
	if _, err := Execute(actions, Options{RootDir: dir, BackupDir: backupDir}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backed, err := os.ReadFile(filepath.Join(backupDir, "sub", "b.txt"))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backed) != "hello" {
		t.Errorf("backup content = %q, want hello", backed)
	}
}

func TestExecuteSymlinkReplacesFileWithLink(t *testing.T) {
	dir := t.TempDir()
	keeper := filepath.Join(dir, "a.txt")
	target := filepath.Join(dir, "b.txt")
	writeFile(t, keeper, "hello")
	writeFile(t, target, "hello")

	actions := []validator.Action{{Kind: validator.ActionSymlink, Path: target, Source: keeper}}
	if _, err := Execute(actions, Options{RootDir: dir}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Lstat(target)
	if err != nil {
		t.Fatalf("lstat target: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected target to be a symlink")
	}

	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatalf("eval symlink: %v", err)
	}
	want, err := filepath.EvalSymlinks(keeper)
	if err != nil {
		t.Fatalf("eval symlink keeper: %v", err)
	}
	if resolved != want {
		t.Errorf("symlink resolves to %q, want %q", resolved, want)
	}
}

func TestExecuteSkipsKeepAndNoOpActions(t *testing.T) {
	dir := t.TempDir()
	keeper := filepath.Join(dir, "a.txt")
	gone := filepath.Join(dir, "gone.txt")
	writeFile(t, keeper, "hello")

	actions := []validator.Action{
		{Kind: validator.ActionKeep, Path: keeper},
		{Kind: validator.ActionDelete, Path: gone, IsNoOp: true},
	}
	st, err := Execute(actions, Options{RootDir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.totalActions != 0 {
		t.Errorf("expected 0 filtered actions, got %d", st.totalActions)
	}
}

func TestExecuteDryRunPerformsNoChanges(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "b.txt")
	writeFile(t, target, "hello")

	actions := []validator.Action{{Kind: validator.ActionDelete, Path: target}}
	if _, err := Execute(actions, Options{RootDir: dir, DryRun: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Lstat(target); err != nil {
		t.Errorf("expected target to survive dry run, got err = %v", err)
	}
}

func TestExecuteStopsAtFirstError(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.txt")
	keeper := filepath.Join(dir, "a.txt")
	writeFile(t, keeper, "hello")

	actions := []validator.Action{
		{Kind: validator.ActionDelete, Path: missing},
		{Kind: validator.ActionDelete, Path: keeper},
	}
	if _, err := Execute(actions, Options{RootDir: dir}); err == nil {
		t.Fatal("expected error for deleting a missing path")
	}
	if _, err := os.Lstat(keeper); err != nil {
		t.Errorf("expected second action to not run after first failed, keeper err = %v", err)
	}
}
