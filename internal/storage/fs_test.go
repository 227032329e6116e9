package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempLibrary(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempLibrary(t)
	content := []byte("<p>hello</p>")
	if err := s.Write("page.html", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("page.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempLibrary(t)
	if err := s.Write("a/b/c.html", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestList(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("a.html", []byte("a"))
	_ = s.Write("sub/b.HTM", []byte("b"))
	_ = s.Write("secret.gpg", []byte("not a document"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	paths := map[string]bool{}
	for _, it := range items {
		paths[it.Path] = true
		if it.Checksum == "" {
			t.Errorf("%s: empty checksum", it.Path)
		}
	}
	if !paths["a.html"] || !paths["sub/b.HTM"] {
		t.Errorf("paths = %v", paths)
	}
}

func TestReadNonDocument(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("media/clip.gpg", []byte{1, 2, 3})
	got, err := s.Read("media/clip.gpg")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d", len(got))
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempLibrary(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.html",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("atomic.html", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.html", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.html")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".decryptor-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "decryptor-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
