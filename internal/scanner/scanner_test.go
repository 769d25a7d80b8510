package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRunGroupsFilesByContent(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "hello")
	write(t, filepath.Join(root, "b.txt"), "hello")
	write(t, filepath.Join(root, "c.txt"), "different")

	s, err := New(root, nil, 2, true, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	for _, paths := range groups {
		if len(paths) != 2 {
			t.Errorf("expected 2 paths in group, got %d", len(paths))
		}
	}
}

func TestRunDiscardsSingletons(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "unique-one")
	write(t, filepath.Join(root, "b.txt"), "unique-two")

	s, err := New(root, nil, 2, true, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected 0 groups, got %d", len(groups))
	}
}

func TestRunSkipsIconArtifact(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "hello")
	write(t, filepath.Join(root, "Icon\r"), "hello")

	s, err := New(root, nil, 2, true, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected Icon\\r file excluded from grouping, got %d groups", len(groups))
	}
}

func TestRunHonorsExcludeSet(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	write(t, a, "hello")
	write(t, b, "hello")

	s, err := New(root, []string{b}, 2, true, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected excluded file to break the duplicate pair, got %d groups", len(groups))
	}
}

func TestRunIncludesValidSymlinkUnderRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a.txt")
	link := filepath.Join(root, "b.txt")
	write(t, target, "hello")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	s, err := New(root, nil, 2, true, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group including the symlink, got %d", len(groups))
	}
}

func TestRunExcludesSymlinkEscapingRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "a.txt")
	write(t, target, "hello")
	write(t, filepath.Join(root, "b.txt"), "hello")
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	s, err := New(root, nil, 2, true, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected symlink escaping root to be excluded, got %d groups", len(groups))
	}
}

func TestRunSkipsBrokenSymlink(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "hello")
	write(t, filepath.Join(root, "b.txt"), "hello")
	broken := filepath.Join(root, "broken.txt")
	if err := os.Symlink(filepath.Join(root, "does-not-exist"), broken); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	errCh := make(chan error, 1)
	s, err := New(root, nil, 2, true, nil, false, errCh)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected broken symlink skipped, duplicate pair intact, got %d groups", len(groups))
	}
}

func TestRunRecursesIntoSubdirectories(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "hello")
	write(t, filepath.Join(root, "sub", "b.txt"), "hello")

	s, err := New(root, nil, 2, true, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group across subdirectories, got %d", len(groups))
	}
}

func TestRunConfirmationKeepsRealDuplicatePair(t *testing.T) {
	// Without a real collision we can't force two different contents to
	// share a fingerprint, so this exercises the non-quick path end to
	// end and checks it still finds the real duplicate pair.
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "hello")
	write(t, filepath.Join(root, "b.txt"), "hello")

	s, err := New(root, nil, 2, false, nil, false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	groups, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 confirmed group, got %d", len(groups))
	}
}
