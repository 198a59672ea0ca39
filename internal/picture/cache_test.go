package picture

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCacheLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "a.png", 4, 4)
	c := NewCache(0)

	first, err := c.Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second load did not hit the cache")
	}
}

func TestCacheLoadConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "a.png", 8, 8)
	c := NewCache(0)

	const workers = 16
	pics := make([]*Picture, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pics[i], _ = c.Load(path, nil)
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if pics[i] != pics[0] {
			t.Fatal("concurrent loads decoded more than once")
		}
	}
}

func TestCacheFailureCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.tif")
	if err := os.WriteFile(path, []byte("II*\x00garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCache(0)
	_, err1 := c.Load(path, nil)
	if err1 == nil {
		t.Fatal("broken file decoded")
	}
	_, err2 := c.Load(path, nil)
	if !errors.Is(err2, err1) && err2.Error() != err1.Error() {
		t.Errorf("failure not cached: %v vs %v", err1, err2)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCacheBudgetPurge(t *testing.T) {
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png", 16, 16) // 256 bytes decoded
	b := writeTestPNG(t, dir, "b.png", 16, 16)
	c := NewCache(300)

	if _, err := c.Load(a, nil); err != nil {
		t.Fatal(err)
	}
	// Loading b exceeds the budget; the colder entry (a) is purged.
	if _, err := c.Load(b, nil); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	_, aResident := c.entries[a]
	_, bResident := c.entries[b]
	used := c.used
	c.mu.Unlock()
	if aResident || !bResident {
		t.Errorf("residency a=%v b=%v, want only b", aResident, bResident)
	}
	if used > 300 {
		t.Errorf("used = %d, over budget", used)
	}
}

func TestCacheClear(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "a.png", 2, 2)
	c := NewCache(0)
	if _, err := c.Load(path, nil); err != nil {
		t.Fatal(err)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
}
