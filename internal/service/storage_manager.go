package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cav/asset-vault/internal/cache"
	"cav/asset-vault/internal/config"
	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/namespace"
	"cav/asset-vault/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StorageManager is the single entry point for all asset storage. It hides
// backend selection (WordPress REST if configured, else the local backend
// chosen at startup) and enforces the cross-cutting policy: partition
// isolation, permission gates, the video quota, and duplicate detection.
type StorageManager struct {
	remote storage.Backend // nil unless WordPress is configured
	local  storage.LocalBackend
	cache  *cache.AssetCache // nil-safe, optional
	quota  config.QuotaConfig
}

// StorageManagerDependencies collects the manager's collaborators.
type StorageManagerDependencies struct {
	Remote storage.Backend
	Local  storage.LocalBackend
	Cache  *cache.AssetCache
	Quota  config.QuotaConfig
}

// NewStorageManager creates the facade.
func NewStorageManager(deps StorageManagerDependencies) *StorageManager {
	if deps.Local == nil {
		panic("storage manager requires a local backend")
	}
	return &StorageManager{
		remote: deps.Remote,
		local:  deps.Local,
		cache:  deps.Cache,
		quota:  deps.Quota,
	}
}

// ScopeFor derives the partition an operation targets from the session
// identity. Team scope requires a team-capable session; otherwise the
// request silently stays personal.
func (m *StorageManager) ScopeFor(sess domain.Session, isTeam bool) storage.Scope {
	userKey := namespace.UserKeyFor(sess.Email)
	teamKey := ""
	if sess.CanAccessTeam {
		teamKey = namespace.TeamKeyFor(sess.Email)
	}
	if isTeam && teamKey == "" {
		isTeam = false
	}
	return storage.Scope{IsTeam: isTeam, UserKey: userKey, TeamKey: teamKey}
}

// remoteFailed logs a remote error once; the caller then retries the same
// operation locally. Remote failures never surface to the end user.
func remoteFailed(op string, err error) {
	log.Warn().Err(err).Str("operation", op).Msg("Remote backend failed; falling back to local storage")
}

// GetAssetsParams narrows a listing request.
type GetAssetsParams struct {
	IsTeam  bool
	View    storage.View
	Status  string
	SortBy  string
	SortDir string
	Offset  int
	Limit   int
}

// GetAssets lists one partition slice, remote first, cached when possible.
func (m *StorageManager) GetAssets(ctx context.Context, sess domain.Session, p GetAssetsParams) (*storage.AssetPage, error) {
	f := storage.Filter{
		Scope:   m.ScopeFor(sess, p.IsTeam),
		View:    p.View,
		Status:  p.Status,
		SortBy:  p.SortBy,
		SortDir: p.SortDir,
		Offset:  p.Offset,
		Limit:   p.Limit,
	}

	if page, ok := m.cache.GetPage(ctx, f); ok {
		return page, nil
	}

	if m.remote != nil {
		page, err := m.remote.GetAssets(ctx, f)
		if err == nil {
			m.cache.SetPage(ctx, f, page)
			return page, nil
		}
		remoteFailed("get_assets", err)
	}

	page, err := m.local.GetAssets(ctx, f)
	if err != nil {
		return nil, err
	}
	m.cache.SetPage(ctx, f, page)
	return page, nil
}

// GetAsset fetches a single asset within the session's partition.
func (m *StorageManager) GetAsset(ctx context.Context, sess domain.Session, id string, isTeam bool) (*domain.Asset, error) {
	scope := m.ScopeFor(sess, isTeam)

	if m.remote != nil {
		asset, err := m.remote.GetAsset(ctx, id, scope)
		if err == nil {
			return asset, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		remoteFailed("get_asset", err)
	}
	return m.local.GetAsset(ctx, id, scope)
}

// UploadRequest is a processed file ready to be stored. Bytes are the raw
// file content; the hash and size derive from them. PreviewDataURL is the
// inline image preview or video thumbnail frame; VideoDataURL the inline
// video payload (built from Bytes when absent).
type UploadRequest struct {
	Filename       string
	FileType       domain.FileType
	ContentType    string
	Bytes          []byte
	Width          int
	Height         int
	Duration       float64
	IsTeam         bool
	Tags           map[string]string
	PreviewDataURL string
	VideoDataURL   string
}

// UploadResult reports an upload outcome: a saved asset, a duplicate
// short-circuit, or a rejection reason.
type UploadResult struct {
	Success   bool                     `json:"success"`
	Message   string                   `json:"message,omitempty"`
	Asset     *domain.Asset            `json:"asset,omitempty"`
	Duplicate *storage.DuplicateResult `json:"duplicate,omitempty"`
}

// ProcessUpload runs the full intake pipeline: permission gate, content
// hash, duplicate check, video quota gate, then the backend save. The
// duplicate and quota checks run before any write and short-circuit it.
func (m *StorageManager) ProcessUpload(ctx context.Context, sess domain.Session, req UploadRequest) (*UploadResult, error) {
	if !sess.CanUpload() {
		return &UploadResult{Success: false, Message: "Permission denied"}, nil
	}
	if req.Filename == "" || len(req.Bytes) == 0 {
		return &UploadResult{Success: false, Message: "Filename and file content are required"}, nil
	}

	scope := m.ScopeFor(sess, req.IsTeam)
	sum := sha256.Sum256(req.Bytes)
	hash := hex.EncodeToString(sum[:])
	size := int64(len(req.Bytes))

	dup, err := m.checkDuplicate(ctx, hash, scope)
	if err != nil {
		return nil, err
	}
	if dup.IsDuplicate {
		return &UploadResult{
			Success:   false,
			Message:   fmt.Sprintf("Duplicate of %s", dup.ExistingFilename),
			Duplicate: dup,
		}, nil
	}

	if req.FileType == domain.FileTypeVideo {
		decision, err := m.CanStoreVideo(ctx, sess, size)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return &UploadResult{Success: false, Message: decision.Reason}, nil
		}
	}

	asset := &domain.Asset{
		ID:           uuid.NewString(),
		Filename:     req.Filename,
		FileType:     req.FileType,
		FileSize:     size,
		Width:        req.Width,
		Height:       req.Height,
		Duration:     req.Duration,
		FileHash:     hash,
		ThumbnailURL: req.PreviewDataURL,
		IsTeam:       scope.IsTeam,
		UserKey:      scope.UserKey,
		TeamKey:      scope.TeamKey,
		CreatedBy:    sess.Email,
		Tags:         map[string]string{domain.TagStatus: string(domain.StatusDraft)},
	}
	asset.MergeTags(req.Tags)
	if !domain.ValidStatus(asset.Tags[domain.TagStatus]) {
		asset.Tags[domain.TagStatus] = string(domain.StatusDraft)
	}
	if req.FileType == domain.FileTypeVideo {
		asset.VideoURL = req.VideoDataURL
		if asset.VideoURL == "" {
			contentType := req.ContentType
			if contentType == "" {
				contentType = "video/mp4"
			}
			asset.VideoURL = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(req.Bytes)
		}
	}
	asset.AppendHistory("created", sess.Name, "uploaded "+req.Filename)

	res, err := m.saveAsset(ctx, asset)
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, scope)
	return &UploadResult{Success: res.Success, Message: res.Message, Asset: res.Asset}, nil
}

func (m *StorageManager) saveAsset(ctx context.Context, asset *domain.Asset) (*storage.SaveResult, error) {
	if m.remote != nil {
		res, err := m.remote.SaveAsset(ctx, asset)
		if err == nil {
			return res, nil
		}
		remoteFailed("save_asset", err)
	}
	return m.local.SaveAsset(ctx, asset)
}

func (m *StorageManager) checkDuplicate(ctx context.Context, hash string, scope storage.Scope) (*storage.DuplicateResult, error) {
	if m.remote != nil {
		res, err := m.remote.CheckDuplicate(ctx, hash, scope)
		if err == nil {
			return res, nil
		}
		remoteFailed("check_duplicate", err)
	}
	return m.local.CheckDuplicate(ctx, hash, scope)
}

// CheckDuplicate reports whether byte-identical content already exists in
// the session's partition.
func (m *StorageManager) CheckDuplicate(ctx context.Context, sess domain.Session, hash string, isTeam bool) (*storage.DuplicateResult, error) {
	return m.checkDuplicate(ctx, hash, m.ScopeFor(sess, isTeam))
}

// QuotaDecision is the outcome of the video storage gate.
type QuotaDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanStoreVideo checks both caps before a video write: the per-upload limit
// and the user's total video storage. Both are hard rejections; no partial
// upload is attempted.
func (m *StorageManager) CanStoreVideo(ctx context.Context, sess domain.Session, fileSize int64) (QuotaDecision, error) {
	maxUpload := m.quota.MaxVideoUploadBytes()
	if maxUpload > 0 && fileSize > maxUpload {
		return QuotaDecision{
			Allowed: false,
			Reason: fmt.Sprintf("Video size %.1fMB exceeds the %dMB per-upload limit",
				float64(fileSize)/(1024*1024), m.quota.MaxVideoUploadMB),
		}, nil
	}

	maxTotal := m.quota.MaxVideoTotalBytes()
	if maxTotal > 0 {
		userKey := namespace.UserKeyFor(sess.Email)
		usage, err := m.videoUsage(ctx, userKey)
		if err != nil {
			return QuotaDecision{}, err
		}
		if usage+fileSize > maxTotal {
			return QuotaDecision{
				Allowed: false,
				Reason: fmt.Sprintf("Storage full: adding this video exceeds the %dMB total video limit",
					m.quota.MaxVideoTotalMB),
			}, nil
		}
	}
	return QuotaDecision{Allowed: true}, nil
}

func (m *StorageManager) videoUsage(ctx context.Context, userKey string) (int64, error) {
	if usage, ok := m.cache.GetVideoUsage(ctx, userKey); ok {
		return usage, nil
	}
	usage, err := m.local.VideoUsage(ctx, userKey)
	if err != nil {
		return 0, err
	}
	m.cache.SetVideoUsage(ctx, userKey, usage)
	return usage, nil
}

// UpdateParams is the caller-facing shape of a partial asset update.
type UpdateParams struct {
	IsTeam     bool              `json:"is_team"`
	Filename   *string           `json:"filename,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	IsFavorite *bool             `json:"is_favorite,omitempty"`
	IsArchived *bool             `json:"is_archived,omitempty"`
}

// UpdateAsset applies a partial update. Tags merge into the existing set and
// every call appends exactly one history entry.
func (m *StorageManager) UpdateAsset(ctx context.Context, sess domain.Session, id string, p UpdateParams) (*storage.SaveResult, error) {
	if !sess.CanEdit() {
		return &storage.SaveResult{Success: false, Message: "Permission denied"}, nil
	}
	if status, ok := p.Tags[domain.TagStatus]; ok && !domain.ValidStatus(status) {
		return &storage.SaveResult{Success: false, Message: fmt.Sprintf("Invalid status %q", status)}, nil
	}

	scope := m.ScopeFor(sess, p.IsTeam)
	patch := storage.UpdatePatch{
		Filename:   p.Filename,
		Tags:       p.Tags,
		IsFavorite: p.IsFavorite,
		IsArchived: p.IsArchived,
		UserName:   sess.Name,
	}
	if p.IsArchived != nil {
		if *p.IsArchived {
			patch.Action = "archived"
		} else {
			patch.Action = "restored"
		}
	}

	res, err := m.updateAsset(ctx, id, patch, scope)
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, scope)
	return res, nil
}

func (m *StorageManager) updateAsset(ctx context.Context, id string, patch storage.UpdatePatch, scope storage.Scope) (*storage.SaveResult, error) {
	if m.remote != nil {
		res, err := m.remote.UpdateAsset(ctx, id, patch, scope)
		if err == nil {
			return res, nil
		}
		remoteFailed("update_asset", err)
	}
	return m.local.UpdateAsset(ctx, id, patch, scope)
}

// DeleteAsset permanently removes an asset and its video blob. Admins may
// delete anything; editors only assets they authored.
func (m *StorageManager) DeleteAsset(ctx context.Context, sess domain.Session, id string, isTeam bool) (*storage.OpResult, error) {
	scope := m.ScopeFor(sess, isTeam)

	asset, err := m.GetAsset(ctx, sess, id, isTeam)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &storage.OpResult{Success: false, Message: "Asset not found"}, nil
		}
		return nil, err
	}
	if !sess.CanDelete(asset) {
		return &storage.OpResult{Success: false, Message: "Permission denied"}, nil
	}

	res, err := m.deleteAsset(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, scope)
	return res, nil
}

func (m *StorageManager) deleteAsset(ctx context.Context, id string, scope storage.Scope) (*storage.OpResult, error) {
	if m.remote != nil {
		res, err := m.remote.DeleteAsset(ctx, id, scope)
		if err == nil {
			return res, nil
		}
		remoteFailed("delete_asset", err)
	}
	return m.local.DeleteAsset(ctx, id, scope)
}

// BulkOperation applies one operation over many ids, best-effort. For
// editor-role deletes, ids the session does not own are failed up front and
// the rest still run.
func (m *StorageManager) BulkOperation(ctx context.Context, sess domain.Session, op storage.BulkOp, ids []string, data storage.BulkData, isTeam bool) (*storage.BulkResult, error) {
	if !sess.CanEdit() {
		return &storage.BulkResult{Failed: len(ids), Errors: []string{"Permission denied"}}, nil
	}

	// Status writes pass the same closed-enum gate as single-asset updates.
	if op == storage.BulkUpdateStatus && !domain.ValidStatus(data.Status) {
		return &storage.BulkResult{Failed: len(ids), Errors: []string{fmt.Sprintf("Invalid status %q", data.Status)}}, nil
	}
	if op == storage.BulkUpdateTags {
		if status, ok := data.Tags[domain.TagStatus]; ok && !domain.ValidStatus(status) {
			return &storage.BulkResult{Failed: len(ids), Errors: []string{fmt.Sprintf("Invalid status %q", status)}}, nil
		}
	}

	scope := m.ScopeFor(sess, isTeam)
	data.UserName = sess.Name
	if op == storage.BulkMoveToTeam {
		if scope.TeamKey == "" {
			return &storage.BulkResult{Failed: len(ids), Errors: []string{"No team available for this session"}}, nil
		}
		data.TeamKey = scope.TeamKey
	}

	result := &storage.BulkResult{}
	if op == storage.BulkDelete && sess.Role != domain.RoleAdmin {
		allowed := make([]string, 0, len(ids))
		for _, id := range ids {
			asset, err := m.GetAsset(ctx, sess, id, isTeam)
			if err != nil || !sess.CanDelete(asset) {
				result.Failed++
				result.Errors = append(result.Errors, id+": Permission denied")
				continue
			}
			allowed = append(allowed, id)
		}
		ids = allowed
	}

	res, err := m.bulkOperation(ctx, op, ids, data, scope)
	if err != nil {
		return nil, err
	}
	result.Success += res.Success
	result.Failed += res.Failed
	result.Errors = append(result.Errors, res.Errors...)

	m.invalidate(ctx, scope)
	if op == storage.BulkMoveToTeam || op == storage.BulkMoveToPersonal {
		// A move touches both partitions.
		m.cache.Invalidate(ctx, scope.UserKey, scope.TeamKey)
	}
	return result, nil
}

func (m *StorageManager) bulkOperation(ctx context.Context, op storage.BulkOp, ids []string, data storage.BulkData, scope storage.Scope) (*storage.BulkResult, error) {
	if m.remote != nil {
		res, err := m.remote.BulkOperation(ctx, op, ids, data, scope)
		if err == nil {
			return res, nil
		}
		remoteFailed("bulk_operation", err)
	}
	return m.local.BulkOperation(ctx, op, ids, data, scope)
}

// AddComment appends a comment (and its history entry) to an asset.
func (m *StorageManager) AddComment(ctx context.Context, sess domain.Session, id, text string, isTeam bool) (*storage.SaveResult, error) {
	if text == "" {
		return &storage.SaveResult{Success: false, Message: "Comment text is required"}, nil
	}

	authorName := sess.Name
	if authorName == "" {
		authorName = "Anonymous"
	}
	comment := domain.Comment{
		ID:           uuid.NewString(),
		Text:         text,
		AuthorName:   authorName,
		AuthorAvatar: sess.AvatarURL,
		CreatedAt:    time.Now().UTC(),
	}

	scope := m.ScopeFor(sess, isTeam)
	var res *storage.SaveResult
	var err error
	if m.remote != nil {
		res, err = m.remote.AddComment(ctx, id, comment, scope)
		if err != nil {
			remoteFailed("add_comment", err)
			res, err = m.local.AddComment(ctx, id, comment, scope)
		}
	} else {
		res, err = m.local.AddComment(ctx, id, comment, scope)
	}
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, scope)
	return res, nil
}

// GetHistory returns an asset's append-only audit log.
func (m *StorageManager) GetHistory(ctx context.Context, sess domain.Session, id string, isTeam bool) ([]domain.HistoryEntry, error) {
	asset, err := m.GetAsset(ctx, sess, id, isTeam)
	if err != nil {
		return nil, err
	}
	return asset.History, nil
}

// DerivativeRequest carries an AI transform result to be stored as a new
// asset derived from a source.
type DerivativeRequest struct {
	IsTeam         bool
	Spec           domain.DerivativeSpec
	Bytes          []byte
	ContentType    string
	Width          int
	Height         int
	Duration       float64
	PreviewDataURL string
}

// CreateDerivative stores an AI transform result as a first-class asset
// back-referencing its source. The source record is never touched; grouping
// happens at read time by scanning for the back-reference.
func (m *StorageManager) CreateDerivative(ctx context.Context, sess domain.Session, sourceID string, req DerivativeRequest) (*UploadResult, error) {
	if !sess.CanUpload() {
		return &UploadResult{Success: false, Message: "Permission denied"}, nil
	}

	source, err := m.GetAsset(ctx, sess, sourceID, req.IsTeam)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &UploadResult{Success: false, Message: "Source asset not found"}, nil
		}
		return nil, err
	}

	fileType := req.Spec.DerivativeFileType(source.FileType)
	size := int64(len(req.Bytes))

	if fileType == domain.FileTypeVideo {
		decision, err := m.CanStoreVideo(ctx, sess, size)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return &UploadResult{Success: false, Message: decision.Reason}, nil
		}
	}

	var hash string
	if size > 0 {
		sum := sha256.Sum256(req.Bytes)
		hash = hex.EncodeToString(sum[:])
	}

	asset := &domain.Asset{
		ID:             uuid.NewString(),
		Filename:       domain.DerivativeFilename(source.Filename, req.Spec),
		FileType:       fileType,
		FileSize:       size,
		Width:          req.Width,
		Height:         req.Height,
		Duration:       req.Duration,
		FileHash:       hash,
		ThumbnailURL:   req.PreviewDataURL,
		IsTeam:         source.IsTeam,
		UserKey:        source.UserKey,
		TeamKey:        source.TeamKey,
		CreatedBy:      sess.Email,
		IsDerivative:   true,
		SourceAssetID:  source.ID,
		DerivativeType: req.Spec.Type,
		AIModel:        req.Spec.AIModel,
		TargetWidth:    req.Spec.TargetWidth,
		TargetHeight:   req.Spec.TargetHeight,
		Tags:           map[string]string{domain.TagStatus: string(domain.StatusDraft)},
	}
	// Carry the organizing tags over from the source; the workflow status
	// starts over at draft.
	for _, key := range []string{"campaign", "client", "project"} {
		if v, ok := source.Tags[key]; ok {
			asset.Tags[key] = v
		}
	}
	if fileType == domain.FileTypeVideo && size > 0 {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "video/mp4"
		}
		asset.VideoURL = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(req.Bytes)
	}
	asset.AppendHistory("created", sess.Name,
		fmt.Sprintf("derivative (%s) of %s", req.Spec.Type, source.Filename))

	res, err := m.saveAsset(ctx, asset)
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, storage.Scope{IsTeam: asset.IsTeam, UserKey: asset.UserKey, TeamKey: asset.TeamKey})
	return &UploadResult{Success: res.Success, Message: res.Message, Asset: res.Asset}, nil
}

// GetDerivatives returns the assets derived from a source, grouped by
// scanning the partition for the back-reference.
func (m *StorageManager) GetDerivatives(ctx context.Context, sess domain.Session, sourceID string, isTeam bool) ([]domain.Asset, error) {
	page, err := m.GetAssets(ctx, sess, GetAssetsParams{IsTeam: isTeam})
	if err != nil {
		return nil, err
	}
	var derivatives []domain.Asset
	for _, a := range page.Assets {
		if a.IsDerivative && a.SourceAssetID == sourceID {
			derivatives = append(derivatives, a)
		}
	}
	return derivatives, nil
}

// Preferences and API keys are local-only: the remote contract has no
// counterpart for them.

func (m *StorageManager) GetPreferences(ctx context.Context, sess domain.Session) (map[string]any, error) {
	return m.local.GetPreferences(ctx, namespace.UserKeyFor(sess.Email))
}

func (m *StorageManager) SavePreferences(ctx context.Context, sess domain.Session, prefs map[string]any) error {
	return m.local.SavePreferences(ctx, namespace.UserKeyFor(sess.Email), prefs)
}

func (m *StorageManager) GetAPIKeys(ctx context.Context, sess domain.Session) (map[string]string, error) {
	return m.local.GetAPIKeys(ctx, namespace.UserKeyFor(sess.Email))
}

func (m *StorageManager) SaveAPIKeys(ctx context.Context, sess domain.Session, keys map[string]string) error {
	return m.local.SaveAPIKeys(ctx, namespace.UserKeyFor(sess.Email), keys)
}

// VideoUsage exposes the quota accounting for the session's user key.
func (m *StorageManager) VideoUsage(ctx context.Context, sess domain.Session) (int64, error) {
	return m.videoUsage(ctx, namespace.UserKeyFor(sess.Email))
}

// VideoUsageForKey reads another user's quota accounting. Admin only.
func (m *StorageManager) VideoUsageForKey(ctx context.Context, sess domain.Session, userKey string) (int64, error) {
	if sess.Role != domain.RoleAdmin {
		return 0, errors.New("admin role required")
	}
	return m.videoUsage(ctx, namespace.Sanitize(userKey))
}

// Quota exposes the configured caps, for reporting alongside usage.
func (m *StorageManager) Quota() config.QuotaConfig {
	return m.quota
}

// LocalBackendName names the local backend in use, for health reporting.
func (m *StorageManager) LocalBackendName() string {
	return m.local.Name()
}

func (m *StorageManager) invalidate(ctx context.Context, scope storage.Scope) {
	m.cache.Invalidate(ctx, scope.Key(), scope.UserKey)
}
