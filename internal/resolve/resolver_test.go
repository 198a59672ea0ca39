package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Flower.TIF", "flower.tif"},
		{"Café.tif", "cafe.tif"},
		{"cafe\u0301.tif", "cafe.tif"}, // decomposed input
		{"Über  Größe.tif", "uber große.tif"},
		{"two   words .tif", "two words .tif"},
	}
	for _, tt := range tests {
		if got := CanonicalKey(tt.in); got != tt.want {
			t.Errorf("CanonicalKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitReference(t *testing.T) {
	tests := []struct {
		in   string
		want []string
		mac  bool
	}{
		{`C:\images\flower.tif`, []string{"images", "flower.tif"}, false},
		{"HD:images:flower.tif", []string{"images", "flower.tif"}, true},
		{"/srv/images/flower.tif", []string{"srv", "images", "flower.tif"}, false},
		{"flower.tif", []string{"flower.tif"}, false},
	}
	for _, tt := range tests {
		got, mac := SplitReference(tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("SplitReference(%q) (-want +got):\n%s", tt.in, diff)
		}
		if mac != tt.mac {
			t.Errorf("SplitReference(%q) mac = %v, want %v", tt.in, mac, tt.mac)
		}
	}
}

func touch(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(parts...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestResolver(t *testing.T, root string) *Resolver {
	t.Helper()
	idx, err := NewIndex(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(idx, "/srv/opi/lores", root, nil)
}

func TestResolveCaseAndAccentFolding(t *testing.T) {
	root := t.TempDir()
	want := touch(t, root, "images", "Blüte.TIF")
	r := newTestResolver(t, root)

	for _, ref := range []string{
		"HD:images:blute.tif",
		`D:\images\BLÜTE.tif`,
		"vol/images/Blüte.TIF",
	} {
		got, err := r.Resolve(ref)
		if err != nil {
			t.Errorf("Resolve(%q): %v", ref, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestResolveLoresPrefixStripped(t *testing.T) {
	root := t.TempDir()
	want := touch(t, root, "flower.tif")
	r := newTestResolver(t, root)

	got, err := r.Resolve("HD:lores:flower.tif")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}

	// Deeper proxy reference matching more of the configured tree tail.
	got, err = r.Resolve("HD:opi:lores:flower.tif")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "café.tif")
	touch(t, root, "cafe.tif")
	r := newTestResolver(t, root)

	_, err := r.Resolve("HD:cafe.tif")
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "present.tif")
	r := newTestResolver(t, root)

	_, err := r.Resolve("HD:absent.tif")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// Cached failure comes back identically.
	_, err2 := r.Resolve("HD:absent.tif")
	if !errors.Is(err2, ErrNotFound) {
		t.Fatalf("cached err = %v, want ErrNotFound", err2)
	}
}

func TestResolveMacShortName(t *testing.T) {
	root := t.TempDir()
	want := touch(t, root, "scans", "flower.tif")
	r := newTestResolver(t, root)

	got, err := r.Resolve("HD:scans:flower#0aBc.tif")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}

	// The retry only applies to colon-syntax references.
	if _, err := r.Resolve("/vol/scans/flower#0aBc.tif"); !errors.Is(err, ErrNotFound) {
		t.Errorf("posix short-name err = %v, want ErrNotFound", err)
	}
}

func TestResolveIdempotent(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.tif")
	r := newTestResolver(t, root)

	first, err := r.Resolve("HD:a.tif")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve("HD:a.tif")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("resolution not stable: %q vs %q", first, second)
	}
}
