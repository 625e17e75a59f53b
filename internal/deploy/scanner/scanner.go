// Package scanner enumerates the regular files under a deploy root and
// digests their contents.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	"github.com/dl-alexandre/netdeploy/internal/deploy/exclude"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
)

// SymlinkPolicy decides what happens when the walk meets a symlink or any
// other non-regular, non-directory entry.
type SymlinkPolicy string

const (
	SymlinksError SymlinkPolicy = "error"
	SymlinksSkip  SymlinkPolicy = "skip"
)

func ParseSymlinkPolicy(s string) (SymlinkPolicy, error) {
	switch SymlinkPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SymlinksError:
		return SymlinksError, nil
	case SymlinksSkip:
		return SymlinksSkip, nil
	}
	return "", fmt.Errorf("unknown symlink policy %q (want error or skip)", s)
}

// RacyWindow is the coarsest mtime granularity assumed for the filesystem.
// A file modified this close to the scan that hashed it could be rewritten
// again without its mtime moving, so its digest must not be cached.
const RacyWindow = 2 * time.Second

// Cacheable reports whether a digest computed for an entry by a scan that
// started at scanStart may be reused by later scans.
func Cacheable(e FileEntry, scanStart time.Time) bool {
	return e.ModTime < scanStart.Add(-RacyWindow).UnixNano()
}

// Cached is a previously computed digest, reused while size, mtime and
// algorithm are unchanged.
type Cached struct {
	Size      int64
	ModTime   int64
	Algorithm digest.Algorithm
	Digest    string
}

type Options struct {
	Algorithm digest.Algorithm
	Matcher   *exclude.Matcher
	Symlinks  SymlinkPolicy
	Cache     map[string]Cached
}

// FileEntry describes one regular file. ModTime is in Unix nanoseconds.
// Digest is empty for entries yielded by Walk.
type FileEntry struct {
	RelativePath string
	AbsPath      string
	Size         int64
	ModTime      int64
	Digest       string
	FromCache    bool
}

type Scanner struct {
	root string
	fs   billy.Filesystem
	opts Options
}

// ResolveRoot returns root as an absolute path with symlinks resolved. A
// missing root, or one that is not a directory, fails with a ScanError.
func ResolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &apperrors.ScanError{Path: root, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &apperrors.ScanError{Path: abs, Err: err}
	}
	info, err := os.Lstat(resolved)
	if err != nil {
		return "", &apperrors.ScanError{Path: resolved, Err: err}
	}
	if !info.IsDir() {
		return "", &apperrors.ScanError{Path: resolved, Err: fmt.Errorf("not a directory")}
	}
	return resolved, nil
}

// New opens root on the OS filesystem. A root that is a symlink is followed
// once; links inside the tree are subject to opts.Symlinks.
func New(root string, opts Options) (*Scanner, error) {
	resolved, err := ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	return NewWithFS(osfs.New(resolved), resolved, opts), nil
}

// NewWithFS scans fsys, reporting absolute paths under root.
func NewWithFS(fsys billy.Filesystem, root string, opts Options) *Scanner {
	if opts.Algorithm == "" {
		opts.Algorithm = digest.DefaultAlgorithm
	}
	if opts.Symlinks == "" {
		opts.Symlinks = SymlinksError
	}
	return &Scanner{root: root, fs: fsys, opts: opts}
}

func (s *Scanner) Root() string { return s.root }

// Filesystem is the billy filesystem rooted at Root; relative paths from
// FileEntry open directly against it.
func (s *Scanner) Filesystem() billy.Filesystem { return s.fs }

// Walk calls fn for each regular file in lexical depth-first order without
// reading contents. Excluded directories are pruned. Any unreadable entry
// aborts the walk with a ScanError; errors from fn are returned unchanged.
func (s *Scanner) Walk(ctx context.Context, fn func(FileEntry) error) error {
	return util.Walk(s.fs, "/", func(p string, info fs.FileInfo, walkErr error) error {
		rel := relative(p)
		if rel != "" && info != nil && s.opts.Matcher.IsExcluded(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if walkErr != nil {
			return &apperrors.ScanError{Path: rel, Err: walkErr}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if rel == "" {
			if !info.IsDir() {
				return &apperrors.ScanError{Path: s.root, Err: fmt.Errorf("root is not a directory")}
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if !info.Mode().IsRegular() {
			if s.opts.Symlinks == SymlinksSkip {
				return nil
			}
			kind := "special file"
			if info.Mode()&fs.ModeSymlink != 0 {
				kind = "symlink"
			}
			return &apperrors.ScanError{Path: rel, Err: fmt.Errorf("unsupported %s", kind)}
		}

		return fn(FileEntry{
			RelativePath: rel,
			AbsPath:      filepath.Join(s.root, filepath.FromSlash(rel)),
			Size:         info.Size(),
			ModTime:      info.ModTime().UnixNano(),
		})
	})
}

// Scan walks the tree and digests every file, reusing cached digests when
// allowed. Entries come back in walk order.
func (s *Scanner) Scan(ctx context.Context) ([]FileEntry, error) {
	var entries []FileEntry
	err := s.Walk(ctx, func(e FileEntry) error {
		if c, ok := s.opts.Cache[e.RelativePath]; ok && c.Digest != "" &&
			c.Size == e.Size && c.ModTime == e.ModTime && c.Algorithm == s.opts.Algorithm {
			e.Digest = c.Digest
			e.FromCache = true
		} else {
			d, err := s.digestFile(e.RelativePath)
			if err != nil {
				return &apperrors.ScanError{Path: e.RelativePath, Err: err}
			}
			e.Digest = d
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Scanner) digestFile(rel string) (sum string, err error) {
	f, err := s.fs.Open(rel)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return s.opts.Algorithm.Reader(f)
}

// BuildIndex inserts entries in order, so the first path of each shared
// digest becomes its representative.
func BuildIndex(entries []FileEntry) *digest.Index {
	idx := digest.NewIndex()
	for _, e := range entries {
		idx.Insert(e.RelativePath, e.Digest)
	}
	return idx
}

func relative(p string) string {
	rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
	if rel == "" || rel == "." {
		return ""
	}
	return path.Clean(rel)
}
