package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cav/asset-vault/internal/config"
	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.FileStoreConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func personalScope(userKey string) storage.Scope {
	return storage.Scope{UserKey: userKey}
}

func testAsset(id, userKey string) *domain.Asset {
	return &domain.Asset{
		ID:       id,
		Filename: id + ".jpg",
		FileType: domain.FileTypeImage,
		FileSize: 1024,
		FileHash: "hash-" + id,
		UserKey:  userKey,
	}
}

func TestSaveAndGetRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.SaveAsset(ctx, testAsset("a1", "alice"))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.False(t, res.Asset.CreatedAt.IsZero())

	got, err := s.GetAsset(ctx, "a1", personalScope("alice"))
	require.NoError(t, err)
	assert.Equal(t, "a1.jpg", got.Filename)

	page, err := s.GetAssets(ctx, storage.Filter{Scope: personalScope("alice")})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestPartitionIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveAsset(ctx, testAsset("a1", "alice"))
	require.NoError(t, err)
	_, err = s.SaveAsset(ctx, testAsset("b1", "bob"))
	require.NoError(t, err)

	alicePage, err := s.GetAssets(ctx, storage.Filter{Scope: personalScope("alice")})
	require.NoError(t, err)
	require.Len(t, alicePage.Assets, 1)
	assert.Equal(t, "a1", alicePage.Assets[0].ID)

	_, err = s.GetAsset(ctx, "b1", personalScope("alice"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Duplicate detection never crosses partitions either.
	dup, err := s.CheckDuplicate(ctx, "hash-b1", personalScope("alice"))
	require.NoError(t, err)
	assert.False(t, dup.IsDuplicate)
}

func TestSaveStripsVideoPayload(t *testing.T) {
	s := newTestStore(t)

	video := testAsset("v1", "alice")
	video.FileType = domain.FileTypeVideo
	video.VideoURL = "data:video/mp4;base64,AAAA"
	video.HasVideoBlob = true

	res, err := s.SaveAsset(context.Background(), video)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Empty(t, res.Asset.VideoURL)
	assert.True(t, res.Asset.VideoStripped)
	assert.False(t, res.Asset.HasVideoBlob)

	usage, err := s.VideoUsage(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestSaveRejectedWhenFileWouldExceedQuota(t *testing.T) {
	s, err := New(config.FileStoreConfig{Dir: t.TempDir(), MaxFileBytes: 1024})
	require.NoError(t, err)
	ctx := context.Background()

	small := testAsset("small", "alice")
	res, err := s.SaveAsset(ctx, small)
	require.NoError(t, err)
	require.True(t, res.Success)

	big := testAsset("big", "alice")
	big.ThumbnailURL = strings.Repeat("x", 4096)
	res, err = s.SaveAsset(ctx, big)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Storage full. Unable to save asset.", res.Message)

	// The rejected write left the partition exactly as it was.
	page, err := s.GetAssets(ctx, storage.Filter{Scope: personalScope("alice")})
	require.NoError(t, err)
	require.Len(t, page.Assets, 1)
	assert.Equal(t, "small", page.Assets[0].ID)
}

func TestViews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	active := testAsset("active", "alice")
	fav := testAsset("fav", "alice")
	fav.IsFavorite = true
	trashed := testAsset("trashed", "alice")
	trashed.IsArchived = true
	trashedFav := testAsset("trashedfav", "alice")
	trashedFav.IsArchived = true
	trashedFav.IsFavorite = true

	for _, a := range []*domain.Asset{active, fav, trashed, trashedFav} {
		res, err := s.SaveAsset(ctx, a)
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	ids := func(view storage.View) []string {
		page, err := s.GetAssets(ctx, storage.Filter{Scope: scope, View: view, SortBy: "filename", SortDir: "asc"})
		require.NoError(t, err)
		var out []string
		for _, a := range page.Assets {
			out = append(out, a.ID)
		}
		return out
	}

	assert.Equal(t, []string{"active", "fav"}, ids(storage.ViewAll))
	assert.Equal(t, []string{"fav"}, ids(storage.ViewFavorites))
	assert.Equal(t, []string{"trashed", "trashedfav"}, ids(storage.ViewTrash))
}

func TestStatusFilterAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	for i, status := range []string{"draft", "review", "draft"} {
		a := testAsset(string(rune('a'+i)), "alice")
		a.Tags = map[string]string{domain.TagStatus: status}
		a.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		res, err := s.SaveAsset(ctx, a)
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	page, err := s.GetAssets(ctx, storage.Filter{Scope: scope, Status: "draft"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.GetAssets(ctx, storage.Filter{Scope: scope, SortBy: "created_at", SortDir: "asc", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Assets, 1)
	assert.Equal(t, "b", page.Assets[0].ID)
}

func TestUpdateMergesTagsAndAppendsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	a := testAsset("a1", "alice")
	a.Tags = map[string]string{"campaign": "spring", "client": "acme"}
	_, err := s.SaveAsset(ctx, a)
	require.NoError(t, err)

	res, err := s.UpdateAsset(ctx, "a1", storage.UpdatePatch{
		Tags:     map[string]string{"campaign": "summer"},
		UserName: "Alice",
	}, scope)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "summer", res.Asset.Tags["campaign"])
	assert.Equal(t, "acme", res.Asset.Tags["client"])
	require.Len(t, res.Asset.History, 1)
	assert.Equal(t, "updated", res.Asset.History[0].Action)
	assert.Equal(t, "Alice", res.Asset.History[0].UserName)
}

func TestUpdateArchiveSetsTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	_, err := s.SaveAsset(ctx, testAsset("a1", "alice"))
	require.NoError(t, err)

	archived := true
	res, err := s.UpdateAsset(ctx, "a1", storage.UpdatePatch{IsArchived: &archived, Action: "archived"}, scope)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, res.Asset.IsArchived)
	require.NotNil(t, res.Asset.ArchivedAt)

	restored := false
	res, err = s.UpdateAsset(ctx, "a1", storage.UpdatePatch{IsArchived: &restored, Action: "restored"}, scope)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.False(t, res.Asset.IsArchived)
	assert.Nil(t, res.Asset.ArchivedAt)
}

func TestUpdateMissingAsset(t *testing.T) {
	s := newTestStore(t)

	res, err := s.UpdateAsset(context.Background(), "ghost", storage.UpdatePatch{}, personalScope("alice"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Asset not found", res.Message)
}

func TestMoveToTeamRelocatesPartitionFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(config.FileStoreConfig{Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	a := testAsset("a1", "alice")
	a.TeamKey = "corp_com"
	_, err = s.SaveAsset(ctx, a)
	require.NoError(t, err)

	toTeam := true
	res, err := s.UpdateAsset(ctx, "a1", storage.UpdatePatch{
		SetTeam: &toTeam,
		TeamKey: "corp_com",
		Action:  "moved_to_team",
	}, personalScope("alice"))
	require.NoError(t, err)
	require.True(t, res.Success)

	// Gone from the personal file, present in the team file.
	_, err = s.GetAsset(ctx, "a1", personalScope("alice"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	teamScope := storage.Scope{IsTeam: true, TeamKey: "corp_com"}
	got, err := s.GetAsset(ctx, "a1", teamScope)
	require.NoError(t, err)
	assert.True(t, got.IsTeam)

	_, err = os.Stat(filepath.Join(dir, "cav_assets_team_corp_com.json"))
	assert.NoError(t, err)
}

func TestMoveKeepsSourceWhenDestinationFull(t *testing.T) {
	s, err := New(config.FileStoreConfig{Dir: t.TempDir(), MaxFileBytes: 4096})
	require.NoError(t, err)
	ctx := context.Background()

	// Fill the team partition close to the cap.
	occupant := testAsset("t1", "alice")
	occupant.IsTeam = true
	occupant.TeamKey = "corp_com"
	occupant.ThumbnailURL = strings.Repeat("x", 3400)
	res, err := s.SaveAsset(ctx, occupant)
	require.NoError(t, err)
	require.True(t, res.Success)

	mover := testAsset("p1", "alice")
	mover.TeamKey = "corp_com"
	mover.ThumbnailURL = strings.Repeat("y", 600)
	res, err = s.SaveAsset(ctx, mover)
	require.NoError(t, err)
	require.True(t, res.Success)

	toTeam := true
	res, err = s.UpdateAsset(ctx, "p1", storage.UpdatePatch{
		SetTeam: &toTeam,
		TeamKey: "corp_com",
		Action:  "moved_to_team",
	}, personalScope("alice"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Storage full")

	// The aborted move must leave the asset in exactly one partition.
	got, err := s.GetAsset(ctx, "p1", personalScope("alice"))
	require.NoError(t, err)
	assert.False(t, got.IsTeam)

	teamScope := storage.Scope{IsTeam: true, TeamKey: "corp_com"}
	_, err = s.GetAsset(ctx, "p1", teamScope)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSortDescendingKeepsTieOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"a1", "a2", "a3"} {
		a := testAsset(id, "alice")
		a.CreatedAt = ts
		_, err := s.SaveAsset(ctx, a)
		require.NoError(t, err)
	}

	page, err := s.GetAssets(ctx, storage.Filter{
		Scope:   personalScope("alice"),
		SortBy:  "created_at",
		SortDir: "desc",
	})
	require.NoError(t, err)
	require.Len(t, page.Assets, 3)

	ids := []string{page.Assets[0].ID, page.Assets[1].ID, page.Assets[2].ID}
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids)
}

func TestDeleteAsset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	_, err := s.SaveAsset(ctx, testAsset("a1", "alice"))
	require.NoError(t, err)

	res, err := s.DeleteAsset(ctx, "a1", scope)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = s.DeleteAsset(ctx, "a1", scope)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Asset not found", res.Message)
}

func TestCheckDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	_, err := s.SaveAsset(ctx, testAsset("a1", "alice"))
	require.NoError(t, err)

	dup, err := s.CheckDuplicate(ctx, "hash-a1", scope)
	require.NoError(t, err)
	assert.True(t, dup.IsDuplicate)
	assert.Equal(t, "a1", dup.ExistingID)
	assert.Equal(t, "a1.jpg", dup.ExistingFilename)

	dup, err = s.CheckDuplicate(ctx, "", scope)
	require.NoError(t, err)
	assert.False(t, dup.IsDuplicate)
}

func TestBulkOperation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	for _, id := range []string{"a1", "a2"} {
		_, err := s.SaveAsset(ctx, testAsset(id, "alice"))
		require.NoError(t, err)
	}

	res, err := s.BulkOperation(ctx, storage.BulkUpdateStatus, []string{"a1", "a2", "ghost"}, storage.BulkData{Status: "approved"}, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)

	got, err := s.GetAsset(ctx, "a1", scope)
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Tags[domain.TagStatus])
}

func TestAddComment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := personalScope("alice")

	_, err := s.SaveAsset(ctx, testAsset("a1", "alice"))
	require.NoError(t, err)

	res, err := s.AddComment(ctx, "a1", domain.Comment{
		ID:         "c1",
		Text:       "needs a second pass",
		AuthorName: "Alice",
		CreatedAt:  time.Now().UTC(),
	}, scope)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Len(t, res.Asset.Comments, 1)
	require.Len(t, res.Asset.History, 1)
	assert.Equal(t, "comment_added", res.Asset.History[0].Action)
}

func TestMalformedPartitionFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := New(config.FileStoreConfig{Dir: dir})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cav_assets_alice.json"), []byte("{not json"), 0o644))

	page, err := s.GetAssets(context.Background(), storage.Filter{Scope: personalScope("alice")})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestPreferencesAndAPIKeysRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prefs, err := s.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, prefs)

	require.NoError(t, s.SavePreferences(ctx, "alice", map[string]any{"view": "grid"}))
	prefs, err = s.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "grid", prefs["view"])

	require.NoError(t, s.SaveAPIKeys(ctx, "alice", map[string]string{"openai": "sk-test"}))
	keys, err := s.GetAPIKeys(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", keys["openai"])

	// Other users never see them.
	keys, err = s.GetAPIKeys(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
