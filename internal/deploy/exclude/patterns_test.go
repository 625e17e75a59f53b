package exclude

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_IsExcluded(t *testing.T) {
	m, err := New([]string{"drafts/", "*.map", "CNAME", " ", "./private/notes.txt"}, false)
	require.NoError(t, err)

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"drafts", true, true},
		{"drafts/post.html", false, true},
		{"blog/drafts", true, true},
		{"drafts-old/post.html", false, false},
		{"js/app.js.map", false, true},
		{"app.js.map", false, true},
		{"js/app.js", false, false},
		{"CNAME", false, true},
		{"sub/CNAME", false, true},
		{"private/notes.txt", false, true},
		{"private/other.txt", false, false},
		{"index.html", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsExcluded(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_CommonPatterns(t *testing.T) {
	m, err := New(nil, true)
	require.NoError(t, err)
	assert.True(t, m.IsExcluded(".git", true))
	assert.True(t, m.IsExcluded(".git/HEAD", false))
	assert.True(t, m.IsExcluded("img/.DS_Store", false))
	assert.True(t, m.IsExcluded(".env.production", false))
	assert.False(t, m.IsExcluded("index.html", false))
}

func TestMatcher_NilAndEmpty(t *testing.T) {
	var m *Matcher
	assert.False(t, m.IsExcluded("anything", false))

	empty, err := New(nil, false)
	require.NoError(t, err)
	assert.False(t, empty.IsExcluded(".git/HEAD", false))
}

func TestNew_RejectsMalformedGlob(t *testing.T) {
	_, err := New([]string{"[a-"}, false)
	assert.Error(t, err)
}
