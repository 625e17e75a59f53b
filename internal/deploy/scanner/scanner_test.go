package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	"github.com/dl-alexandre/netdeploy/internal/deploy/exclude"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func relPaths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RelativePath
	}
	return out
}

func TestScan_ListsRegularFilesWithDigests(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html":     "hello",
		"css/site.css":   "",
		"img/deep/a.txt": "hello",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	s, err := New(root, Options{})
	require.NoError(t, err)
	entries, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"css/site.css", "img/deep/a.txt", "index.html"}, relPaths(entries))
	for _, e := range entries {
		assert.Equal(t, filepath.Join(s.Root(), filepath.FromSlash(e.RelativePath)), e.AbsPath)
		assert.False(t, e.FromCache)
	}
	assert.Equal(t, digest.SHA1.Sum([]byte("hello")), entries[2].Digest)
	assert.Equal(t, digest.SHA1.Sum(nil), entries[0].Digest)

	idx := BuildIndex(entries)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.DistinctDigests())
	rep, err := idx.PathFor(digest.SHA1.Sum([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "img/deep/a.txt", rep)
}

func TestScan_EmptyRoot(t *testing.T) {
	s, err := New(t.TempDir(), Options{})
	require.NoError(t, err)
	entries, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNew_RootMustBeDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorIs(t, err, apperrors.ErrScan)
	assert.ErrorIs(t, err, os.ErrNotExist)

	root := writeTree(t, map[string]string{"f": "x"})
	_, err = New(filepath.Join(root, "f"), Options{})
	assert.ErrorIs(t, err, apperrors.ErrScan)
}

func TestScan_Excludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html":    "a",
		"drafts/x.html": "b",
		"js/app.js.map": "c",
		"js/app.js":     "d",
	})
	m, err := exclude.New([]string{"drafts/", "*.map"}, false)
	require.NoError(t, err)

	s, err := New(root, Options{Matcher: m})
	require.NoError(t, err)
	entries, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "js/app.js"}, relPaths(entries))
}

func TestScan_SymlinkPolicy(t *testing.T) {
	root := writeTree(t, map[string]string{"real.txt": "x"})
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s, err := New(root, Options{})
	require.NoError(t, err)
	_, err = s.Scan(context.Background())
	require.ErrorIs(t, err, apperrors.ErrScan)
	var scanErr *apperrors.ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, "link.txt", scanErr.Path)

	s, err = New(root, Options{Symlinks: SymlinksSkip})
	require.NoError(t, err)
	entries, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"real.txt"}, relPaths(entries))
}

func TestScan_UnreadableFileAborts(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := writeTree(t, map[string]string{"a.txt": "x", "b.txt": "y"})
	require.NoError(t, os.Chmod(filepath.Join(root, "b.txt"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "b.txt"), 0o644) })

	s, err := New(root, Options{})
	require.NoError(t, err)
	_, err = s.Scan(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrScan)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestScan_ReusesCacheOnlyWhenUnchanged(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello"})
	info, err := os.Stat(filepath.Join(root, "a.txt"))
	require.NoError(t, err)

	cache := map[string]Cached{"a.txt": {
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		Algorithm: digest.SHA1,
		Digest:    "cached-digest",
	}}
	s, err := New(root, Options{Cache: cache})
	require.NoError(t, err)
	entries, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cached-digest", entries[0].Digest)
	assert.True(t, entries[0].FromCache)

	later := info.ModTime().Add(time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.txt"), later, later))
	entries, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, digest.SHA1.Sum([]byte("hello")), entries[0].Digest)

	s, err = New(root, Options{Cache: cache, Algorithm: digest.SHA256})
	require.NoError(t, err)
	entries, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, digest.SHA256.Sum([]byte("hello")), entries[0].Digest)
}

func TestNew_FollowsSymlinkedRoot(t *testing.T) {
	target := writeTree(t, map[string]string{
		"index.html": "hello",
		"css/a.css":  "body{}",
	})
	link := filepath.Join(t.TempDir(), "public")
	require.NoError(t, os.Symlink(target, link))

	s, err := New(link, Options{})
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, resolved, s.Root())

	entries, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "css/a.css", entries[0].RelativePath)
	assert.Equal(t, "index.html", entries[1].RelativePath)
}

func TestNew_SymlinkToFileIsScanError(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "x"})
	link := filepath.Join(t.TempDir(), "file-link")
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), link))

	_, err := New(link, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrScan)
}

func TestCacheable(t *testing.T) {
	start := time.Now()
	tests := []struct {
		name    string
		modTime time.Time
		want    bool
	}{
		{"old file", start.Add(-time.Hour), true},
		{"just outside window", start.Add(-RacyWindow - time.Millisecond), true},
		{"inside window", start.Add(-RacyWindow / 2), false},
		{"modified during scan", start.Add(time.Millisecond), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FileEntry{ModTime: tt.modTime.UnixNano()}
			assert.Equal(t, tt.want, Cacheable(e, start))
		})
	}
}

func TestScan_CanceledContext(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(root, Options{})
	require.NoError(t, err)
	_, err = s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_InMemoryFilesystem(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "b/c.txt", []byte("hello"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "a.txt", []byte("hello"), 0o644))

	s := NewWithFS(fsys, "/site", Options{Algorithm: digest.SHA256})
	entries, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b/c.txt"}, relPaths(entries))
	assert.Equal(t, filepath.Join("/site", "b", "c.txt"), entries[1].AbsPath)
	assert.Equal(t, entries[0].Digest, entries[1].Digest)
}

func TestParseSymlinkPolicy(t *testing.T) {
	p, err := ParseSymlinkPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SymlinksError, p)
	p, err = ParseSymlinkPolicy("SKIP")
	require.NoError(t, err)
	assert.Equal(t, SymlinksSkip, p)
	_, err = ParseSymlinkPolicy("follow")
	assert.Error(t, err)
}
