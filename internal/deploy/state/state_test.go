package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var nilDB *DB
	assert.NoError(t, nilDB.Close())
}

func TestCache_ReplaceAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ReplaceCache(ctx, "/site", []CacheEntry{
		{RelativePath: "a.txt", Size: 5, ModTimeNs: 100, Algorithm: "sha1", Digest: "d1"},
		{RelativePath: "b.txt", Size: 6, ModTimeNs: 200, Algorithm: "sha1", Digest: "d2"},
	}))
	require.NoError(t, db.ReplaceCache(ctx, "/other", []CacheEntry{
		{RelativePath: "a.txt", Size: 1, ModTimeNs: 1, Algorithm: "sha256", Digest: "zz"},
	}))

	got, err := db.ListCache(ctx, "/site")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, CacheEntry{Root: "/site", RelativePath: "a.txt", Size: 5, ModTimeNs: 100, Algorithm: "sha1", Digest: "d1"}, got["a.txt"])

	require.NoError(t, db.ReplaceCache(ctx, "/site", []CacheEntry{
		{RelativePath: "b.txt", Size: 7, ModTimeNs: 300, Algorithm: "sha1", Digest: "d3"},
	}))
	got, err = db.ListCache(ctx, "/site")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "d3", got["b.txt"].Digest)

	other, err := db.ListCache(ctx, "/other")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	require.NoError(t, db.ClearCache(ctx, "/site"))
	got, err = db.ListCache(ctx, "/site")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_InsertAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	_, err := db.InsertDeploy(ctx, DeployRecord{
		DeployID: "d1", SiteID: "s", Root: "/site", Draft: true,
		Files: 3, DistinctDigests: 2, Required: 2, Uploaded: 2, State: "Complete",
		StartedAt: base, FinishedAt: base.Add(time.Second),
	})
	require.NoError(t, err)
	id, err := db.InsertDeploy(ctx, DeployRecord{
		SiteID: "s", Root: "/site", State: "Failed", Error: "negotiation failed",
		StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	all, err := db.ListDeploys(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Failed", all[0].State)
	assert.Empty(t, all[0].DeployID)
	assert.Equal(t, "negotiation failed", all[0].Error)
	assert.False(t, all[0].Draft)
	assert.Equal(t, "d1", all[1].DeployID)
	assert.True(t, all[1].Draft)
	assert.True(t, all[1].StartedAt.Equal(base))

	recent, err := db.ListDeploys(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].ID)
}
