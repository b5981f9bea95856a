package storage

import (
	"context"

	"cav/asset-vault/internal/domain"
)

// Error constants for the storage layer. A non-nil error from a backend
// means the backend itself failed (engine or transport) and is what triggers
// remote-to-local fallback; domain-level rejections travel inside the result
// types with Success=false instead.
var (
	ErrNotFound    = StorageError("not found")
	ErrUnavailable = StorageError("backend unavailable")
)

// StorageError helps distinguish storage errors
type StorageError string

func (e StorageError) Error() string {
	return string(e)
}

// Scope names the partition an operation runs against: the caller's personal
// partition, or the team partition shared by everyone on the same domain.
type Scope struct {
	IsTeam  bool   `json:"is_team"`
	UserKey string `json:"user_key"`
	TeamKey string `json:"team_key,omitempty"`
}

// Key returns the partition key the scope addresses.
func (s Scope) Key() string {
	if s.IsTeam {
		return s.TeamKey
	}
	return s.UserKey
}

// Matches reports whether the asset belongs to the scope's partition. The
// match is strict: the team flag and the corresponding key must both agree.
func (s Scope) Matches(a *domain.Asset) bool {
	if a.IsTeam != s.IsTeam {
		return false
	}
	if s.IsTeam {
		return s.TeamKey != "" && a.TeamKey == s.TeamKey
	}
	return s.UserKey != "" && a.UserKey == s.UserKey
}

// View selects which lifecycle slice of a partition GetAssets returns.
type View string

const (
	ViewAll       View = "all"
	ViewFavorites View = "favorites"
	ViewTrash     View = "trash"
)

// Filter narrows and orders a GetAssets query.
type Filter struct {
	Scope
	View    View   `json:"view,omitempty"`
	Status  string `json:"status,omitempty"`
	SortBy  string `json:"sort_by,omitempty"`  // created_at | filename | file_size
	SortDir string `json:"sort_dir,omitempty"` // asc | desc
	Offset  int    `json:"offset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// AssetPage is the result of a GetAssets query. Total counts the assets
// matching the filter before offset/limit.
type AssetPage struct {
	Assets []domain.Asset `json:"assets"`
	Total  int            `json:"total"`
}

// SaveResult reports the outcome of a save/update. When Success is false,
// Message carries the user-facing reason.
type SaveResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Asset   *domain.Asset `json:"asset,omitempty"`
}

// OpResult reports the outcome of a delete.
type OpResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DuplicateResult reports whether byte-identical content already exists in
// the partition.
type DuplicateResult struct {
	IsDuplicate      bool   `json:"is_duplicate"`
	ExistingID       string `json:"existing_id,omitempty"`
	ExistingFilename string `json:"existing_filename,omitempty"`
}

// BulkOp is one of the batch operations applied over a list of asset ids.
type BulkOp string

const (
	BulkDelete         BulkOp = "delete"
	BulkUpdateStatus   BulkOp = "update_status"
	BulkUpdateTags     BulkOp = "update_tags"
	BulkMoveToTeam     BulkOp = "move_to_team"
	BulkMoveToPersonal BulkOp = "move_to_personal"
	BulkToggleFavorite BulkOp = "toggle_favorite"
)

// BulkData carries the per-operation payload for a bulk call.
type BulkData struct {
	Status   string            `json:"status,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	TeamKey  string            `json:"team_key,omitempty"`
	UserKey  string            `json:"user_key,omitempty"`
	UserName string            `json:"user_name,omitempty"`
}

// BulkResult summarizes a best-effort bulk run. A failure on one id never
// aborts the rest.
type BulkResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Backend is the contract all three storage backends implement. Backends
// are interchangeable wholes; the manager picks one per call.
type Backend interface {
	Name() string
	GetAssets(ctx context.Context, f Filter) (*AssetPage, error)
	GetAsset(ctx context.Context, id string, scope Scope) (*domain.Asset, error)
	SaveAsset(ctx context.Context, asset *domain.Asset) (*SaveResult, error)
	UpdateAsset(ctx context.Context, id string, patch UpdatePatch, scope Scope) (*SaveResult, error)
	DeleteAsset(ctx context.Context, id string, scope Scope) (*OpResult, error)
	BulkOperation(ctx context.Context, op BulkOp, ids []string, data BulkData, scope Scope) (*BulkResult, error)
	CheckDuplicate(ctx context.Context, hash string, scope Scope) (*DuplicateResult, error)
	AddComment(ctx context.Context, id string, comment domain.Comment, scope Scope) (*SaveResult, error)
}

// PreferenceStore holds per-user preferences and AI provider API keys. Only
// the local backends carry these; the remote contract has no counterpart.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userKey string) (map[string]any, error)
	SavePreferences(ctx context.Context, userKey string, prefs map[string]any) error
	GetAPIKeys(ctx context.Context, userKey string) (map[string]string, error)
	SaveAPIKeys(ctx context.Context, userKey string, keys map[string]string) error
}

// LocalBackend is what the manager requires of its local storage: the asset
// contract plus preferences and the video usage accounting the quota gate
// reads.
type LocalBackend interface {
	Backend
	PreferenceStore
	// VideoUsage returns the total bytes of stored video payloads for a
	// user key.
	VideoUsage(ctx context.Context, userKey string) (int64, error)
}
