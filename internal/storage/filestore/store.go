// Package filestore is the fallback backend used when MongoDB is not
// available: one JSON array file per partition key, decoded and rewritten in
// full on every mutation. It is metadata-only; video payloads are never
// written here, they are stripped and the asset flagged video_stripped.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cav/asset-vault/internal/config"
	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/storage"

	"github.com/rs/zerolog/log"
)

const defaultMaxFileBytes = 5 * 1024 * 1024

// Store implements storage.LocalBackend on flat JSON files.
type Store struct {
	dir          string
	maxFileBytes int64

	// Serializes all mutations in-process. Concurrent writers from other
	// processes can still interleave; that gap is inherited from the
	// storage model this backend emulates and is deliberately not papered
	// over with file locks.
	mu sync.Mutex
}

// New creates the fallback store rooted at cfg.Dir.
func New(cfg config.FileStoreConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, storage.StorageError("filestore dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create filestore dir: %w", err)
	}
	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	return &Store{dir: cfg.Dir, maxFileBytes: maxBytes}, nil
}

func (s *Store) Name() string { return "filestore" }

func (s *Store) assetsPath(scope storage.Scope) string {
	if scope.IsTeam {
		return filepath.Join(s.dir, "cav_assets_team_"+scope.TeamKey+".json")
	}
	return filepath.Join(s.dir, "cav_assets_"+scope.UserKey+".json")
}

func assetScope(a *domain.Asset) storage.Scope {
	return storage.Scope{IsTeam: a.IsTeam, UserKey: a.UserKey, TeamKey: a.TeamKey}
}

// load reads a partition file. A missing file is an empty partition, and so
// is a malformed one: parse errors are swallowed at the read site rather
// than propagated.
func (s *Store) load(path string) []domain.Asset {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var assets []domain.Asset
	if err := json.Unmarshal(raw, &assets); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Malformed asset file; treating as empty")
		return nil
	}
	return assets
}

// persist writes the whole partition back. A file that would exceed the
// byte quota is not written at all; the caller's in-memory mutation is
// simply dropped, which is the rollback.
func (s *Store) persist(path string, assets []domain.Asset) (ok bool, err error) {
	raw, err := json.Marshal(assets)
	if err != nil {
		return false, err
	}
	if int64(len(raw)) > s.maxFileBytes {
		return false, nil
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetAssets(_ context.Context, f storage.Filter) (*storage.AssetPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load(s.assetsPath(f.Scope))

	var matched []domain.Asset
	for _, a := range all {
		if !f.Scope.Matches(&a) {
			continue
		}
		switch f.View {
		case storage.ViewTrash:
			if !a.IsArchived {
				continue
			}
		case storage.ViewFavorites:
			if a.IsArchived || !a.IsFavorite {
				continue
			}
		default:
			if a.IsArchived {
				continue
			}
		}
		if f.Status != "" && a.Tags[domain.TagStatus] != f.Status {
			continue
		}
		matched = append(matched, a)
	}

	sortAssets(matched, f.SortBy, f.SortDir)

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= total {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	return &storage.AssetPage{Assets: matched, Total: total}, nil
}

func sortAssets(assets []domain.Asset, sortBy, sortDir string) {
	asc := sortDir == "asc"
	sort.SliceStable(assets, func(i, j int) bool {
		a, b := &assets[i], &assets[j]
		if !asc {
			// Swapping the operands keeps the comparison strict, so
			// ties stay in insertion order.
			a, b = b, a
		}
		switch sortBy {
		case "filename":
			return a.Filename < b.Filename
		case "file_size":
			return a.FileSize < b.FileSize
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

func (s *Store) GetAsset(_ context.Context, id string, scope storage.Scope) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assets := s.load(s.assetsPath(scope))
	for i := range assets {
		if assets[i].ID == id {
			a := assets[i]
			return &a, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) SaveAsset(_ context.Context, asset *domain.Asset) (*storage.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	// Hard constraint of the fallback: never persist a video payload.
	// The asset survives as metadata with video_stripped set, which is a
	// deliberate lossy degradation, not a bug.
	if asset.IsVideo() && asset.VideoURL != "" {
		asset.VideoURL = ""
		asset.VideoStripped = true
		asset.HasVideoBlob = false
	}

	path := s.assetsPath(assetScope(asset))
	assets := append(s.load(path), *asset)

	ok, err := s.persist(path, assets)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &storage.SaveResult{Success: false, Message: "Storage full. Unable to save asset."}, nil
	}
	return &storage.SaveResult{Success: true, Asset: asset}, nil
}

func (s *Store) UpdateAsset(_ context.Context, id string, patch storage.UpdatePatch, scope storage.Scope) (*storage.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.assetsPath(scope)
	assets := s.load(path)

	idx := -1
	for i := range assets {
		if assets[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &storage.SaveResult{Success: false, Message: "Asset not found"}, nil
	}

	updated := assets[idx]
	patch.Apply(&updated)

	// A team/personal move relocates the record to the destination
	// partition file. The source is rewritten first so the record can
	// never end up in both partitions; if the destination write then
	// fails, the source file is restored.
	destPath := s.assetsPath(assetScope(&updated))
	if destPath != path {
		remaining := append(assets[:idx:idx], assets[idx+1:]...)
		if ok, err := s.persist(path, remaining); err != nil {
			return nil, err
		} else if !ok {
			return &storage.SaveResult{Success: false, Message: "Storage full. Unable to move asset."}, nil
		}
		destAssets := append(s.load(destPath), updated)
		ok, err := s.persist(destPath, destAssets)
		if err == nil && ok {
			return &storage.SaveResult{Success: true, Asset: &updated}, nil
		}
		if _, rerr := s.persist(path, assets); rerr != nil {
			log.Error().Err(rerr).Str("path", path).Msg("Failed to restore asset after aborted move")
		}
		if err != nil {
			return nil, err
		}
		return &storage.SaveResult{Success: false, Message: "Storage full. Unable to move asset."}, nil
	}

	assets[idx] = updated
	ok, err := s.persist(path, assets)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &storage.SaveResult{Success: false, Message: "Storage full. Unable to update asset."}, nil
	}
	return &storage.SaveResult{Success: true, Asset: &updated}, nil
}

func (s *Store) DeleteAsset(_ context.Context, id string, scope storage.Scope) (*storage.OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.assetsPath(scope)
	assets := s.load(path)

	idx := -1
	for i := range assets {
		if assets[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &storage.OpResult{Success: false, Message: "Asset not found"}, nil
	}

	assets = append(assets[:idx], assets[idx+1:]...)
	if _, err := s.persist(path, assets); err != nil {
		return nil, err
	}
	return &storage.OpResult{Success: true}, nil
}

func (s *Store) BulkOperation(ctx context.Context, op storage.BulkOp, ids []string, data storage.BulkData, scope storage.Scope) (*storage.BulkResult, error) {
	return storage.ApplyBulk(ctx, s, op, ids, data, scope)
}

func (s *Store) CheckDuplicate(_ context.Context, hash string, scope storage.Scope) (*storage.DuplicateResult, error) {
	if hash == "" {
		return &storage.DuplicateResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.load(s.assetsPath(scope)) {
		if a.FileHash == hash && scope.Matches(&a) {
			return &storage.DuplicateResult{
				IsDuplicate:      true,
				ExistingID:       a.ID,
				ExistingFilename: a.Filename,
			}, nil
		}
	}
	return &storage.DuplicateResult{}, nil
}

func (s *Store) AddComment(_ context.Context, id string, comment domain.Comment, scope storage.Scope) (*storage.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.assetsPath(scope)
	assets := s.load(path)

	for i := range assets {
		if assets[i].ID == id {
			assets[i].Comments = append(assets[i].Comments, comment)
			assets[i].AppendHistory("comment_added", comment.AuthorName, comment.Text)
			assets[i].UpdatedAt = time.Now().UTC()

			ok, err := s.persist(path, assets)
			if err != nil {
				return nil, err
			}
			if !ok {
				return &storage.SaveResult{Success: false, Message: "Storage full. Unable to add comment."}, nil
			}
			a := assets[i]
			return &storage.SaveResult{Success: true, Asset: &a}, nil
		}
	}
	return &storage.SaveResult{Success: false, Message: "Asset not found"}, nil
}

// VideoUsage is always zero here: this backend never stores payloads.
func (s *Store) VideoUsage(context.Context, string) (int64, error) {
	return 0, nil
}

func (s *Store) sidecarPath(prefix, userKey string) string {
	return filepath.Join(s.dir, "cav_"+prefix+"_"+userKey+".json")
}

func (s *Store) GetPreferences(_ context.Context, userKey string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := map[string]any{}
	raw, err := os.ReadFile(s.sidecarPath("prefs", userKey))
	if err != nil {
		return prefs, nil
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return map[string]any{}, nil
	}
	return prefs, nil
}

func (s *Store) SavePreferences(_ context.Context, userKey string, prefs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return os.WriteFile(s.sidecarPath("prefs", userKey), raw, 0o644)
}

func (s *Store) GetAPIKeys(_ context.Context, userKey string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := map[string]string{}
	raw, err := os.ReadFile(s.sidecarPath("apikeys", userKey))
	if err != nil {
		return keys, nil
	}
	if err := json.Unmarshal(raw, &keys); err != nil {
		return map[string]string{}, nil
	}
	return keys, nil
}

func (s *Store) SaveAPIKeys(_ context.Context, userKey string, keys map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return os.WriteFile(s.sidecarPath("apikeys", userKey), raw, 0o600)
}
