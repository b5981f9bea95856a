package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/storage"
	"cav/asset-vault/internal/storage/blob"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoStore implements storage.LocalBackend on MongoDB. Assets, video
// blobs, preferences and API keys live in four independent collections;
// the video payload is split out of the asset document on save and stitched
// back on read.
type mongoStore struct {
	assets      *mongo.Collection
	videoBlobs  *mongo.Collection
	preferences *mongo.Collection
	apiKeys     *mongo.Collection

	// blobs, when configured, offloads video payloads to object storage;
	// the video_blobs document then carries the object key instead of the
	// inline data.
	blobs blob.Store
}

// New initializes the Mongo backend: schema version check (destructive on
// mismatch), index creation, one self-heal retry. blobs may be nil.
func New(ctx context.Context, db *mongo.Database, blobs blob.Store) (storage.LocalBackend, error) {
	if err := initSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("mongo schema init: %w", err)
	}
	return &mongoStore{
		assets:      db.Collection(assetCollectionName),
		videoBlobs:  db.Collection(videoBlobCollectionName),
		preferences: db.Collection(preferenceCollectionName),
		apiKeys:     db.Collection(apiKeyCollectionName),
		blobs:       blobs,
	}, nil
}

func (s *mongoStore) Name() string { return "mongodb" }

func scopeFilter(scope storage.Scope) bson.M {
	if scope.IsTeam {
		return bson.M{"isTeam": true, "teamKey": scope.TeamKey}
	}
	return bson.M{"isTeam": false, "userKey": scope.UserKey}
}

func (s *mongoStore) GetAssets(ctx context.Context, f storage.Filter) (*storage.AssetPage, error) {
	filter := scopeFilter(f.Scope)

	switch f.View {
	case storage.ViewTrash:
		filter["isArchived"] = true
	case storage.ViewFavorites:
		filter["isArchived"] = false
		filter["isFavorite"] = true
	default:
		filter["isArchived"] = false
	}
	if f.Status != "" {
		filter["tags.status"] = f.Status
	}

	total, err := s.assets.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find().SetSort(sortSpec(f.SortBy, f.SortDir))
	if f.Offset > 0 {
		findOpts.SetSkip(int64(f.Offset))
	}
	if f.Limit > 0 {
		findOpts.SetLimit(int64(f.Limit))
	}

	cursor, err := s.assets.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var assets []domain.Asset
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, err
	}

	for i := range assets {
		if assets[i].IsVideo() && assets[i].HasVideoBlob {
			s.attachVideoPayload(ctx, &assets[i])
		}
	}

	return &storage.AssetPage{Assets: assets, Total: int(total)}, nil
}

func sortSpec(sortBy, sortDir string) bson.D {
	field := "createdAt"
	switch sortBy {
	case "filename":
		field = "filename"
	case "file_size":
		field = "fileSize"
	}
	dir := -1
	if sortDir == "asc" {
		dir = 1
	}
	return bson.D{{Key: field, Value: dir}}
}

// attachVideoPayload stitches the separately stored payload back onto the
// asset: inline data when the blob document carries it, a presigned download
// URL when the payload was offloaded to object storage. A missing blob is
// logged, not fatal.
func (s *mongoStore) attachVideoPayload(ctx context.Context, a *domain.Asset) {
	var vb domain.VideoBlob
	err := s.videoBlobs.FindOne(ctx, bson.M{"_id": a.ID}).Decode(&vb)
	if err != nil {
		log.Warn().Err(err).Str("asset_id", a.ID).Msg("Video blob missing for asset")
		return
	}
	if vb.Data != "" {
		a.VideoURL = vb.Data
		return
	}
	if vb.ObjectKey != "" && s.blobs != nil {
		url, err := s.blobs.PresignDownload(ctx, vb.ObjectKey, blob.DefaultPresignedURLExpiry)
		if err != nil {
			log.Warn().Err(err).Str("asset_id", a.ID).Msg("Failed to presign video download")
			return
		}
		a.VideoURL = url
	}
}

func (s *mongoStore) GetAsset(ctx context.Context, id string, scope storage.Scope) (*domain.Asset, error) {
	filter := scopeFilter(scope)
	filter["_id"] = id

	var asset domain.Asset
	err := s.assets.FindOne(ctx, filter).Decode(&asset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if asset.IsVideo() && asset.HasVideoBlob {
		s.attachVideoPayload(ctx, &asset)
	}
	return &asset, nil
}

func (s *mongoStore) SaveAsset(ctx context.Context, asset *domain.Asset) (*storage.SaveResult, error) {
	if asset.ID == "" {
		return &storage.SaveResult{Success: false, Message: "Asset id is required"}, nil
	}
	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	// Split the inline payload out of the asset record before it is
	// persisted; the asset document never stores the raw video data.
	payload := asset.VideoURL
	if asset.IsVideo() && payload != "" {
		vb := domain.VideoBlob{
			AssetID:   asset.ID,
			UserKey:   asset.UserKey,
			Size:      asset.FileSize,
			CreatedAt: now,
		}
		if s.blobs != nil {
			objectKey := videoObjectKey(asset.UserKey, asset.ID)
			if err := s.blobs.Put(ctx, objectKey, []byte(payload), "application/octet-stream"); err != nil {
				return nil, fmt.Errorf("offload video payload: %w", err)
			}
			vb.ObjectKey = objectKey
		} else {
			vb.Data = payload
		}
		if _, err := s.videoBlobs.InsertOne(ctx, vb); err != nil {
			return nil, err
		}
		asset.HasVideoBlob = true
	}

	if _, err := s.assets.InsertOne(ctx, asset); err != nil {
		// Roll the blob back so no orphan survives a failed asset insert.
		if asset.HasVideoBlob {
			_, _ = s.videoBlobs.DeleteOne(ctx, bson.M{"_id": asset.ID})
		}
		return nil, err
	}

	asset.VideoURL = payload
	return &storage.SaveResult{Success: true, Asset: asset}, nil
}

func (s *mongoStore) UpdateAsset(ctx context.Context, id string, patch storage.UpdatePatch, scope storage.Scope) (*storage.SaveResult, error) {
	filter := scopeFilter(scope)
	filter["_id"] = id

	var asset domain.Asset
	err := s.assets.FindOne(ctx, filter).Decode(&asset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &storage.SaveResult{Success: false, Message: "Asset not found"}, nil
		}
		return nil, err
	}

	patch.Apply(&asset)

	if _, err := s.assets.ReplaceOne(ctx, bson.M{"_id": id}, &asset); err != nil {
		return nil, err
	}
	return &storage.SaveResult{Success: true, Asset: &asset}, nil
}

func (s *mongoStore) DeleteAsset(ctx context.Context, id string, scope storage.Scope) (*storage.OpResult, error) {
	filter := scopeFilter(scope)
	filter["_id"] = id

	var asset domain.Asset
	err := s.assets.FindOne(ctx, filter).Decode(&asset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &storage.OpResult{Success: false, Message: "Asset not found"}, nil
		}
		return nil, err
	}

	if _, err := s.assets.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return nil, err
	}

	// The asset and its video blob are deleted together; an asset with
	// has_video_blob must never leave an orphaned payload behind.
	if asset.HasVideoBlob {
		var vb domain.VideoBlob
		if err := s.videoBlobs.FindOne(ctx, bson.M{"_id": id}).Decode(&vb); err == nil {
			releasePayload(ctx, s.blobs, vb)
		}
		if _, err := s.videoBlobs.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return nil, err
		}
	}

	return &storage.OpResult{Success: true}, nil
}

// videoObjectKey is the object-store key a video payload is offloaded under.
func videoObjectKey(userKey, assetID string) string {
	return fmt.Sprintf("video_blobs/%s/%s", userKey, assetID)
}

// releasePayload removes the offloaded object backing a video blob. Inline
// blobs have no object, and a missing object store means nothing was ever
// offloaded; both are no-ops.
func releasePayload(ctx context.Context, blobs blob.Store, vb domain.VideoBlob) {
	if vb.ObjectKey == "" || blobs == nil {
		return
	}
	if err := blobs.Delete(ctx, vb.ObjectKey); err != nil {
		log.Warn().Err(err).Str("object_key", vb.ObjectKey).Msg("Failed to delete offloaded video payload")
	}
}

func (s *mongoStore) BulkOperation(ctx context.Context, op storage.BulkOp, ids []string, data storage.BulkData, scope storage.Scope) (*storage.BulkResult, error) {
	return storage.ApplyBulk(ctx, s, op, ids, data, scope)
}

func (s *mongoStore) CheckDuplicate(ctx context.Context, hash string, scope storage.Scope) (*storage.DuplicateResult, error) {
	if hash == "" {
		return &storage.DuplicateResult{}, nil
	}
	filter := scopeFilter(scope)
	filter["fileHash"] = hash

	var existing domain.Asset
	err := s.assets.FindOne(ctx, filter).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &storage.DuplicateResult{}, nil
		}
		return nil, err
	}
	return &storage.DuplicateResult{
		IsDuplicate:      true,
		ExistingID:       existing.ID,
		ExistingFilename: existing.Filename,
	}, nil
}

func (s *mongoStore) AddComment(ctx context.Context, id string, comment domain.Comment, scope storage.Scope) (*storage.SaveResult, error) {
	filter := scopeFilter(scope)
	filter["_id"] = id

	var asset domain.Asset
	err := s.assets.FindOne(ctx, filter).Decode(&asset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &storage.SaveResult{Success: false, Message: "Asset not found"}, nil
		}
		return nil, err
	}

	asset.Comments = append(asset.Comments, comment)
	asset.AppendHistory("comment_added", comment.AuthorName, comment.Text)
	asset.UpdatedAt = time.Now().UTC()

	if _, err := s.assets.ReplaceOne(ctx, bson.M{"_id": id}, &asset); err != nil {
		return nil, err
	}
	return &storage.SaveResult{Success: true, Asset: &asset}, nil
}

// VideoUsage sums the stored payload sizes for a user key; the quota gate
// reads this before admitting a new video.
func (s *mongoStore) VideoUsage(ctx context.Context, userKey string) (int64, error) {
	cursor, err := s.videoBlobs.Find(ctx, bson.M{"userKey": userKey})
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var total int64
	for cursor.Next(ctx) {
		var vb domain.VideoBlob
		if err := cursor.Decode(&vb); err != nil {
			return 0, err
		}
		total += vb.Size
	}
	return total, cursor.Err()
}

type preferenceDoc struct {
	ID        string         `bson:"_id"`
	Prefs     map[string]any `bson:"prefs"`
	UpdatedAt time.Time      `bson:"updatedAt"`
}

func (s *mongoStore) GetPreferences(ctx context.Context, userKey string) (map[string]any, error) {
	var doc preferenceDoc
	err := s.preferences.FindOne(ctx, bson.M{"_id": userKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return doc.Prefs, nil
}

func (s *mongoStore) SavePreferences(ctx context.Context, userKey string, prefs map[string]any) error {
	upsert := true
	_, err := s.preferences.ReplaceOne(ctx,
		bson.M{"_id": userKey},
		preferenceDoc{ID: userKey, Prefs: prefs, UpdatedAt: time.Now().UTC()},
		&options.ReplaceOptions{Upsert: &upsert},
	)
	return err
}

type apiKeyDoc struct {
	ID        string            `bson:"_id"`
	Keys      map[string]string `bson:"keys"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

func (s *mongoStore) GetAPIKeys(ctx context.Context, userKey string) (map[string]string, error) {
	var doc apiKeyDoc
	err := s.apiKeys.FindOne(ctx, bson.M{"_id": userKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return doc.Keys, nil
}

func (s *mongoStore) SaveAPIKeys(ctx context.Context, userKey string, keys map[string]string) error {
	upsert := true
	_, err := s.apiKeys.ReplaceOne(ctx,
		bson.M{"_id": userKey},
		apiKeyDoc{ID: userKey, Keys: keys, UpdatedAt: time.Now().UTC()},
		&options.ReplaceOptions{Upsert: &upsert},
	)
	return err
}
