package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trackcache/internal/domain"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func writeArtifact(t *testing.T, d *Dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(d.Root(), name), make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "music")
	d, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := os.Stat(d.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("   "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestResolveContainment(t *testing.T) {
	d := newTestDir(t)

	good, err := d.Resolve("track.opus")
	if err != nil {
		t.Fatalf("Resolve(track.opus): %v", err)
	}
	if filepath.Dir(good) != d.Root() {
		t.Errorf("resolved path %q not directly under root %q", good, d.Root())
	}

	bad := []string{
		"",
		".",
		"..",
		"../escape.opus",
		"a/b.opus",
		`a\b.opus`,
		"/etc/passwd",
		"..\\up.opus",
	}
	for _, name := range bad {
		if _, err := d.Resolve(name); !errors.Is(err, domain.ErrUnsafeName) {
			t.Errorf("Resolve(%q): got %v, want ErrUnsafeName", name, err)
		}
	}
}

func TestExistsSizeRemove(t *testing.T) {
	d := newTestDir(t)
	writeArtifact(t, d, "a.opus", 2048)

	if !d.Exists("a.opus") {
		t.Error("Exists(a.opus) = false")
	}
	if d.Exists("missing.opus") {
		t.Error("Exists(missing.opus) = true")
	}
	if d.Exists("../a.opus") {
		t.Error("Exists with separator should be false")
	}

	size, err := d.Size("a.opus")
	if err != nil || size != 2048 {
		t.Errorf("Size = %d, %v; want 2048, nil", size, err)
	}
	if _, err := d.Size("missing.opus"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Size(missing) = %v, want ErrNotFound", err)
	}

	if err := d.Remove("a.opus"); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if d.Exists("a.opus") {
		t.Error("artifact still present after Remove")
	}
	if err := d.Remove("a.opus"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestRename(t *testing.T) {
	d := newTestDir(t)
	src := filepath.Join(d.Root(), "tmp-download")
	if err := os.WriteFile(src, []byte("opusdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst, err := d.Rename(src, "final.opus")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if !d.Exists("final.opus") {
		t.Error("renamed artifact missing")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still present after rename")
	}
	if filepath.Base(dst) != "final.opus" {
		t.Errorf("dst = %q", dst)
	}

	if _, err := d.Rename(src, "../out.opus"); !errors.Is(err, domain.ErrUnsafeName) {
		t.Errorf("Rename with traversal name = %v, want ErrUnsafeName", err)
	}
}

func TestTotalSize(t *testing.T) {
	d := newTestDir(t)
	if total, err := d.TotalSize(); err != nil || total != 0 {
		t.Fatalf("empty dir TotalSize = %d, %v", total, err)
	}

	writeArtifact(t, d, "a.opus", 1000)
	writeArtifact(t, d, "b.opus", 500)
	if err := os.Mkdir(filepath.Join(d.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	total, err := d.TotalSize()
	if err != nil {
		t.Fatalf("TotalSize: %v", err)
	}
	if total != 1500 {
		t.Errorf("TotalSize = %d, want 1500", total)
	}
}
