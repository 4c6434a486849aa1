package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSupported(t *testing.T) {
	cases := map[string]bool{
		"notes.txt":    true,
		"README.md":    true,
		"UPPER.TXT":    true,
		"report.pdf":   false,
		"image.png":    false,
		"no-extension": false,
	}
	for path, want := range cases {
		if got := Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestLoadReadsText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	text, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Load = %q", text)
	}
}

func TestLoadDropsInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte{'a', 0xff, 0xfe, 'b'}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	text, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if text != "ab" {
		t.Errorf("Load = %q, want invalid bytes dropped", text)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Load missing file = %v, want ErrUnreadable", err)
	}
	if _, err := Load("report.pdf"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Load .pdf = %v, want ErrUnsupported", err)
	}
}

func TestWalkFindsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.txt":          "b",
		"a.md":           "a",
		"skip.pdf":       "x",
		"nested/c.txt":   "c",
		"nested/skip.go": "x",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	paths, err := Walk(dir)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "nested", "c.txt"),
	}
	if len(paths) != len(want) {
		t.Fatalf("Walk = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("Walk[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestWalkMissingRoot(t *testing.T) {
	if _, err := Walk(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Walk missing root = %v, want ErrUnreadable", err)
	}
}
