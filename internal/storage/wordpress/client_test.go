package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cav/asset-vault/internal/config"
	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(config.WordPressConfig{}))
	assert.False(t, Enabled(config.WordPressConfig{APIURL: "   "}))
	assert.True(t, Enabled(config.WordPressConfig{APIURL: "https://example.com/wp-json/cav/v1"}))
}

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(config.WordPressConfig{APIURL: srv.URL + "/", Nonce: "nonce-123"})
	return c, srv
}

func TestGetAssetsSendsNonceAndScope(t *testing.T) {
	var gotNonce string
	var gotQuery map[string]string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotNonce = r.Header.Get("X-WP-Nonce")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(storage.AssetPage{
			Assets: []domain.Asset{{ID: "a1", Filename: "one.jpg"}},
			Total:  1,
		})
	}))
	defer srv.Close()

	page, err := c.GetAssets(context.Background(), storage.Filter{
		Scope:   storage.Scope{IsTeam: true, UserKey: "alice", TeamKey: "corp_com"},
		View:    storage.ViewFavorites,
		SortBy:  "filename",
		SortDir: "asc",
		Limit:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	assert.Equal(t, "nonce-123", gotNonce)
	assert.Equal(t, "true", gotQuery["is_team"])
	assert.Equal(t, "corp_com", gotQuery["team_key"])
	assert.Equal(t, "favorites", gotQuery["view"])
	assert.Equal(t, "20", gotQuery["limit"])
}

func TestNonSuccessStatusIsError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := c.GetAssets(context.Background(), storage.Filter{Scope: storage.Scope{UserKey: "alice"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTransportFailureIsError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := c.GetAssets(context.Background(), storage.Filter{Scope: storage.Scope{UserKey: "alice"}})
	assert.Error(t, err)
}

func TestGetAssetEmptyIDMeansNotFound(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	_, err := c.GetAsset(context.Background(), "missing", storage.Scope{UserKey: "alice"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveAssetPostsRecord(t *testing.T) {
	var gotPath, gotMethod string
	var gotAsset domain.Asset
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotAsset))
		json.NewEncoder(w).Encode(storage.SaveResult{Success: true, Asset: &gotAsset})
	}))
	defer srv.Close()

	res, err := c.SaveAsset(context.Background(), &domain.Asset{ID: "a1", Filename: "one.jpg", UserKey: "alice"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/assets", gotPath)
	assert.Equal(t, "one.jpg", gotAsset.Filename)
}

func TestUpdateAssetSendsPatchAndScope(t *testing.T) {
	var got struct {
		Patch storage.UpdatePatch `json:"patch"`
		Scope storage.Scope       `json:"scope"`
	}
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/assets/a1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(storage.SaveResult{Success: true})
	}))
	defer srv.Close()

	fav := true
	_, err := c.UpdateAsset(context.Background(), "a1", storage.UpdatePatch{
		IsFavorite: &fav,
		Tags:       map[string]string{"campaign": "spring"},
	}, storage.Scope{UserKey: "alice"})
	require.NoError(t, err)

	require.NotNil(t, got.Patch.IsFavorite)
	assert.True(t, *got.Patch.IsFavorite)
	assert.Equal(t, "spring", got.Patch.Tags["campaign"])
	assert.Equal(t, "alice", got.Scope.UserKey)
}

func TestBulkOperationRequestShape(t *testing.T) {
	var got struct {
		Operation storage.BulkOp   `json:"operation"`
		IDs       []string         `json:"ids"`
		Data      storage.BulkData `json:"data"`
	}
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/bulk", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(storage.BulkResult{Success: 2})
	}))
	defer srv.Close()

	res, err := c.BulkOperation(context.Background(), storage.BulkUpdateStatus, []string{"a1", "a2"},
		storage.BulkData{Status: "approved"}, storage.Scope{UserKey: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, storage.BulkUpdateStatus, got.Operation)
	assert.Equal(t, []string{"a1", "a2"}, got.IDs)
	assert.Equal(t, "approved", got.Data.Status)
}

func TestCheckDuplicateRequestShape(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/check-duplicate", r.URL.Path)
		var got struct {
			Hash string `json:"hash"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(storage.DuplicateResult{
			IsDuplicate:      got.Hash == "known",
			ExistingFilename: "one.jpg",
		})
	}))
	defer srv.Close()

	res, err := c.CheckDuplicate(context.Background(), "known", storage.Scope{UserKey: "alice"})
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)

	res, err = c.CheckDuplicate(context.Background(), "unknown", storage.Scope{UserKey: "alice"})
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}

func TestAddCommentPathAndBody(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/a1/comments", r.URL.Path)
		var got struct {
			Comment domain.Comment `json:"comment"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "looks good", got.Comment.Text)
		json.NewEncoder(w).Encode(storage.SaveResult{Success: true})
	}))
	defer srv.Close()

	res, err := c.AddComment(context.Background(), "a1", domain.Comment{ID: "c1", Text: "looks good"},
		storage.Scope{UserKey: "alice"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
