package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fhoech/goopi/internal/oplog"
)

var (
	// ErrNotFound reports a reference with no candidate in the index.
	ErrNotFound = errors.New("image file not found")

	// ErrAmbiguous reports a reference whose canonical key matches more
	// than one real file.
	ErrAmbiguous = errors.New("ambiguous image reference")
)

// macShortName matches Mac OS 9 mangled names: stem#hexid with an
// optional extension. The hex id is the file's catalog number and
// meaningless on any other volume.
var macShortName = regexp.MustCompile(`#[0-9a-fA-F]+(\..*)?$`)

// Index is the canonical-key lookup table over the hires tree. Built
// once per run, read-only afterwards.
type Index struct {
	root    string
	entries map[string][]string // canonical relative path -> absolute paths
}

// NewIndex walks root and indexes every regular file. Unreadable
// subtrees are skipped with a warning rather than failing the build.
func NewIndex(root string, log oplog.Logger) (*Index, error) {
	if log == nil {
		log = oplog.NopLogger{}
	}
	root = filepath.Clean(root)
	idx := &Index{root: root, entries: make(map[string][]string)}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn("skipping unreadable entry", oplog.String("path", path), oplog.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := canonicalPath(strings.Split(filepath.ToSlash(rel), "/"))
		idx.entries[key] = append(idx.entries[key], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", root, err)
	}
	log.Info("hires index built", oplog.String("root", root), oplog.Int("files", idx.Len()))
	return idx, nil
}

// Len returns the number of distinct canonical keys in the index.
func (x *Index) Len() int { return len(x.entries) }

func (x *Index) lookup(components []string) ([]string, bool) {
	paths, ok := x.entries[canonicalPath(components)]
	return paths, ok
}

// Resolver matches cleaned reference names against an Index. Safe for
// concurrent use; results are cached for the lifetime of the Resolver.
type Resolver struct {
	idx   *Index
	lores []string // prefix components of the proxy tree
	hires []string // prefix components of the hires tree
	log   oplog.Logger

	mu    sync.Mutex
	cache map[string]result
}

type result struct {
	path string
	err  error
}

// NewResolver returns a Resolver over idx. loresPath and hiresPath are
// the configured tree locations as the layout application would have
// written them; their trailing components are stripped from reference
// heads so proxy-relative references land in the hires tree.
func NewResolver(idx *Index, loresPath, hiresPath string, log oplog.Logger) *Resolver {
	if log == nil {
		log = oplog.NopLogger{}
	}
	return &Resolver{
		idx:   idx,
		lores: pathComponents(loresPath),
		hires: pathComponents(hiresPath),
		log:   log,
		cache: make(map[string]result),
	}
}

// Resolve maps a cleaned reference name to the absolute path of the
// hires file. Fails with ErrNotFound or ErrAmbiguous.
func (r *Resolver) Resolve(ref string) (string, error) {
	r.mu.Lock()
	if res, ok := r.cache[ref]; ok {
		r.mu.Unlock()
		return res.path, res.err
	}
	r.mu.Unlock()

	path, err := r.resolve(ref)

	r.mu.Lock()
	r.cache[ref] = result{path, err}
	r.mu.Unlock()
	return path, err
}

func (r *Resolver) resolve(ref string) (string, error) {
	components, mac := SplitReference(ref)
	components = stripPrefix(components, r.lores, r.hires)
	if len(components) == 0 {
		return "", fmt.Errorf("%w: %q names no file", ErrNotFound, ref)
	}

	if path, ok, err := r.match(components); ok {
		return path, err
	}

	// Mac OS 9 volumes shorten long names to stem#hexid.ext; the real
	// file has the full name. Retrying with the id stripped finds it
	// when the stem alone is unique.
	if mac {
		retry := make([]string, len(components))
		changed := false
		for i, c := range components {
			if macShortName.MatchString(c) {
				ext := filepath.Ext(c)
				stem := strings.TrimSuffix(c, ext)
				if j := strings.LastIndex(stem, "#"); j >= 0 {
					retry[i] = stem[:j] + ext
					changed = true
					continue
				}
			}
			retry[i] = c
		}
		if changed {
			r.log.Debug("retrying Mac OS 9 short name",
				oplog.String("ref", ref),
				oplog.String("retry", strings.Join(retry, ":")))
			if path, ok, err := r.match(retry); ok {
				return path, err
			}
		}
	}

	return "", fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// match looks up components; ok is false only on a clean miss.
func (r *Resolver) match(components []string) (path string, ok bool, err error) {
	paths, ok := r.idx.lookup(components)
	if !ok {
		return "", false, nil
	}
	if len(paths) > 1 {
		return "", true, fmt.Errorf("%w: %q matches %s",
			ErrAmbiguous, strings.Join(components, "/"), strings.Join(paths, ", "))
	}
	return paths[0], true, nil
}

// SplitReference splits a cleaned reference name into path components
// by its native separator and drops the volume component. mac reports
// the Mac OS 9 colon syntax.
func SplitReference(ref string) (components []string, mac bool) {
	switch {
	case strings.Contains(ref, `\`):
		components = strings.Split(ref, `\`)
	case strings.Contains(ref, ":"):
		components = strings.Split(ref, ":")
		mac = true
	default:
		components = strings.Split(ref, "/")
	}
	// The leading component is a drive letter, share or volume name on
	// Windows and Mac; on Posix an absolute path starts with an empty
	// component. A bare filename keeps its single component.
	if len(components) > 1 {
		components = components[1:]
	}
	out := components[:0]
	for _, c := range components {
		if c != "" {
			out = append(out, c)
		}
	}
	return out, mac
}

// stripPrefix removes the leading components naming the proxy tree, or
// failing that the hires tree, so the remainder is tree-relative. The
// reference head is matched against trailing components of the
// configured tree path: a reference like "HD:opi:lores:flower.tif" loses
// "opi:lores" when the proxy tree lives at /srv/opi/lores.
func stripPrefix(components, lores, hires []string) []string {
	if n := prefixLen(components, lores); n > 0 {
		return components[n:]
	}
	return components[prefixLen(components, hires):]
}

func prefixLen(components, tree []string) int {
	for start := 0; start < len(tree); start++ {
		suffix := tree[start:]
		if len(suffix) > len(components)-1 {
			continue // must leave at least the filename
		}
		match := true
		for i, p := range suffix {
			if CanonicalKey(p) != CanonicalKey(components[i]) {
				match = false
				break
			}
		}
		if match {
			return len(suffix)
		}
	}
	return 0
}

func pathComponents(p string) []string {
	var out []string
	for _, c := range strings.FieldsFunc(filepath.ToSlash(p), func(r rune) bool { return r == '/' }) {
		out = append(out, c)
	}
	return out
}
