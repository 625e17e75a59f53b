package digest

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by reverse lookups for a digest no path produced.
var ErrNotFound = errors.New("digest not found")

// Index maps relative paths to digests and digests back to one
// representative path. When several paths share content, the first path
// inserted with that digest stays the representative.
//
// An Index is built by a single goroutine and read-only afterwards; reads
// may then happen concurrently.
type Index struct {
	byPath   map[string]string
	byDigest map[string]string
	order    []string
}

func NewIndex() *Index {
	return &Index{
		byPath:   make(map[string]string),
		byDigest: make(map[string]string),
	}
}

// Insert records path → digest. Re-inserting a path with a new digest moves
// it; if it was the representative of its old digest, the earliest remaining
// path with that digest takes over, or the digest is dropped.
func (i *Index) Insert(path, digest string) {
	old, seen := i.byPath[path]
	if seen && old == digest {
		return
	}
	if !seen {
		i.order = append(i.order, path)
	}
	i.byPath[path] = digest

	if seen && i.byDigest[old] == path {
		delete(i.byDigest, old)
		for _, p := range i.order {
			if i.byPath[p] == old {
				i.byDigest[old] = p
				break
			}
		}
	}
	if _, ok := i.byDigest[digest]; !ok {
		i.byDigest[digest] = path
	}
}

// Lookup returns the digest recorded for path.
func (i *Index) Lookup(path string) (string, bool) {
	d, ok := i.byPath[path]
	return d, ok
}

// PathFor returns the representative path for digest, or an error wrapping
// ErrNotFound.
func (i *Index) PathFor(digest string) (string, error) {
	if p, ok := i.byDigest[digest]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, digest)
}

// Len is the number of paths.
func (i *Index) Len() int { return len(i.byPath) }

// DistinctDigests is the number of distinct contents.
func (i *Index) DistinctDigests() int { return len(i.byDigest) }

// Paths returns every path in insertion order.
func (i *Index) Paths() []string {
	return append([]string(nil), i.order...)
}

// Files returns a copy of the path → digest map.
func (i *Index) Files() map[string]string {
	out := make(map[string]string, len(i.byPath))
	for p, d := range i.byPath {
		out[p] = d
	}
	return out
}

// Duplicates lists, per shared digest, every path carrying it in insertion
// order. Digests owned by a single path are omitted.
func (i *Index) Duplicates() map[string][]string {
	groups := make(map[string][]string)
	for _, p := range i.order {
		d := i.byPath[p]
		groups[d] = append(groups[d], p)
	}
	for d, ps := range groups {
		if len(ps) < 2 {
			delete(groups, d)
		}
	}
	return groups
}
