// Package wordpress proxies storage operations to a WordPress REST
// collaborator. Every request carries the X-WP-Nonce header and is tried
// exactly once: any transport failure or non-2xx status comes back as an
// error, which is the manager's signal to fall back to local storage. Remote
// failures are never hard errors for the caller.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cav/asset-vault/internal/config"
	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/storage"
)

// Enabled reports whether the remote backend should be used at all. The
// bar is deliberately conservative: only a non-empty API URL activates it;
// everything else means local storage exclusively.
func Enabled(cfg config.WordPressConfig) bool {
	return strings.TrimSpace(cfg.APIURL) != ""
}

// Client implements storage.Backend against the WordPress REST contract.
type Client struct {
	apiURL     string
	nonce      string
	httpClient *http.Client
}

// New creates the remote backend client. Callers should check Enabled first.
func New(cfg config.WordPressConfig) *Client {
	return &Client{
		apiURL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		nonce:      cfg.Nonce,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Name() string { return "wordpress" }

// doJSON performs one request. No retries, no backoff: a single failed
// attempt is enough to trigger local fallback upstream.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("wordpress: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("wordpress: build request: %w", err)
	}
	req.Header.Set("X-WP-Nonce", c.nonce)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wordpress: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("wordpress: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("wordpress: decode response: %w", err)
		}
	}
	return nil
}

func scopeQuery(scope storage.Scope) url.Values {
	q := url.Values{}
	q.Set("is_team", strconv.FormatBool(scope.IsTeam))
	q.Set("user_key", scope.UserKey)
	if scope.TeamKey != "" {
		q.Set("team_key", scope.TeamKey)
	}
	return q
}

func (c *Client) GetAssets(ctx context.Context, f storage.Filter) (*storage.AssetPage, error) {
	q := scopeQuery(f.Scope)
	if f.View != "" {
		q.Set("view", string(f.View))
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.SortBy != "" {
		q.Set("sort_by", f.SortBy)
	}
	if f.SortDir != "" {
		q.Set("sort_dir", f.SortDir)
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var page storage.AssetPage
	if err := c.doJSON(ctx, http.MethodGet, "/assets", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetAsset(ctx context.Context, id string, scope storage.Scope) (*domain.Asset, error) {
	var asset domain.Asset
	if err := c.doJSON(ctx, http.MethodGet, "/assets/"+url.PathEscape(id), scopeQuery(scope), nil, &asset); err != nil {
		return nil, err
	}
	if asset.ID == "" {
		return nil, storage.ErrNotFound
	}
	return &asset, nil
}

func (c *Client) SaveAsset(ctx context.Context, asset *domain.Asset) (*storage.SaveResult, error) {
	var res storage.SaveResult
	if err := c.doJSON(ctx, http.MethodPost, "/assets", nil, asset, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type updateRequest struct {
	Patch storage.UpdatePatch `json:"patch"`
	Scope storage.Scope       `json:"scope"`
}

func (c *Client) UpdateAsset(ctx context.Context, id string, patch storage.UpdatePatch, scope storage.Scope) (*storage.SaveResult, error) {
	var res storage.SaveResult
	body := updateRequest{Patch: patch, Scope: scope}
	if err := c.doJSON(ctx, http.MethodPut, "/assets/"+url.PathEscape(id), nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteAsset(ctx context.Context, id string, scope storage.Scope) (*storage.OpResult, error) {
	var res storage.OpResult
	if err := c.doJSON(ctx, http.MethodDelete, "/assets/"+url.PathEscape(id), scopeQuery(scope), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type bulkRequest struct {
	Operation storage.BulkOp   `json:"operation"`
	IDs       []string         `json:"ids"`
	Data      storage.BulkData `json:"data"`
	Scope     storage.Scope    `json:"scope"`
}

func (c *Client) BulkOperation(ctx context.Context, op storage.BulkOp, ids []string, data storage.BulkData, scope storage.Scope) (*storage.BulkResult, error) {
	var res storage.BulkResult
	body := bulkRequest{Operation: op, IDs: ids, Data: data, Scope: scope}
	if err := c.doJSON(ctx, http.MethodPost, "/assets/bulk", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type duplicateRequest struct {
	Hash  string        `json:"hash"`
	Scope storage.Scope `json:"scope"`
}

func (c *Client) CheckDuplicate(ctx context.Context, hash string, scope storage.Scope) (*storage.DuplicateResult, error) {
	var res storage.DuplicateResult
	body := duplicateRequest{Hash: hash, Scope: scope}
	if err := c.doJSON(ctx, http.MethodPost, "/assets/check-duplicate", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type commentRequest struct {
	Comment domain.Comment `json:"comment"`
	Scope   storage.Scope  `json:"scope"`
}

func (c *Client) AddComment(ctx context.Context, id string, comment domain.Comment, scope storage.Scope) (*storage.SaveResult, error) {
	var res storage.SaveResult
	body := commentRequest{Comment: comment, Scope: scope}
	if err := c.doJSON(ctx, http.MethodPost, "/assets/"+url.PathEscape(id)+"/comments", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
