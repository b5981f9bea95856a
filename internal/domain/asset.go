package domain

import (
	"time"
)

// FileType distinguishes the two kinds of creatives the vault stores.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
)

// AssetStatus is the closed review-workflow enum carried in tags["status"].
type AssetStatus string

const (
	StatusDraft    AssetStatus = "draft"
	StatusReview   AssetStatus = "review"
	StatusApproved AssetStatus = "approved"
	StatusRejected AssetStatus = "rejected"
)

// ValidStatus reports whether s is one of the allowed workflow statuses.
func ValidStatus(s string) bool {
	switch AssetStatus(s) {
	case StatusDraft, StatusReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// TagStatus is the tags key holding the workflow status.
const TagStatus = "status"

// Comment is a user remark attached to an Asset. Comments are owned by the
// asset record and ordered by creation time.
type Comment struct {
	ID           string    `bson:"id" json:"id"`
	Text         string    `bson:"text" json:"text"`
	AuthorName   string    `bson:"authorName" json:"authorName"`
	AuthorAvatar string    `bson:"authorAvatar,omitempty" json:"authorAvatar,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// HistoryEntry is one line of an asset's append-only audit log. Entries are
// only ever appended; the log is never rewritten or pruned.
type HistoryEntry struct {
	Action    string    `bson:"action" json:"action"`
	UserName  string    `bson:"userName" json:"userName"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Details   string    `bson:"details,omitempty" json:"details,omitempty"`
}

// Asset represents a stored creative (image or video) with its metadata and,
// for images, the inline preview. A video asset's payload lives in a
// separate VideoBlob record keyed by the asset id; the asset record itself
// never carries the raw payload.
type Asset struct {
	ID       string   `bson:"_id" json:"id"`
	Filename string   `bson:"filename" json:"filename"`
	FileType FileType `bson:"fileType" json:"file_type"`
	FileSize int64    `bson:"fileSize" json:"file_size"`
	Width    int      `bson:"width,omitempty" json:"width,omitempty"`
	Height   int      `bson:"height,omitempty" json:"height,omitempty"`
	// Duration is in seconds; video assets only.
	Duration float64 `bson:"duration,omitempty" json:"duration,omitempty"`

	// FileHash is the SHA-256 of the raw bytes, used for duplicate
	// detection within a user/team partition.
	FileHash string `bson:"fileHash" json:"file_hash"`

	// ThumbnailURL holds the inline preview (data URL) for images, or the
	// extracted thumbnail frame for videos.
	ThumbnailURL string `bson:"thumbnailUrl,omitempty" json:"thumbnail_url,omitempty"`
	// VideoURL is the inline video payload in transit. Backends split it
	// out into a VideoBlob before persisting the asset.
	VideoURL string `bson:"-" json:"video_url,omitempty"`

	// Tags maps free-form keys (campaign, client, project, version) to
	// values; tags["status"] is the closed AssetStatus enum.
	Tags map[string]string `bson:"tags,omitempty" json:"tags,omitempty"`

	IsFavorite bool       `bson:"isFavorite" json:"is_favorite"`
	IsArchived bool       `bson:"isArchived" json:"is_archived"`
	ArchivedAt *time.Time `bson:"archivedAt,omitempty" json:"archived_at,omitempty"`

	// IsTeam marks the asset as belonging to the team-shared partition
	// rather than the owner's personal one. UserKey/TeamKey are captured
	// at write time and never recomputed, so a later identity change does
	// not move old assets.
	IsTeam  bool   `bson:"isTeam" json:"is_team"`
	UserKey string `bson:"userKey" json:"user_key"`
	TeamKey string `bson:"teamKey,omitempty" json:"team_key,omitempty"`

	// CreatedBy records the uploader's email for the owner-only delete gate.
	CreatedBy string `bson:"createdBy,omitempty" json:"created_by,omitempty"`

	// Derivative back-reference. Non-owning: deleting the source does not
	// cascade here, and grouping under the source happens by scanning for
	// matching SourceAssetID at read time.
	IsDerivative   bool   `bson:"isDerivative,omitempty" json:"isDerivative,omitempty"`
	SourceAssetID  string `bson:"sourceAssetId,omitempty" json:"sourceAssetId,omitempty"`
	DerivativeType string `bson:"derivativeType,omitempty" json:"derivativeType,omitempty"`
	AIModel        string `bson:"aiModel,omitempty" json:"aiModel,omitempty"`
	TargetWidth    int    `bson:"targetWidth,omitempty" json:"targetWidth,omitempty"`
	TargetHeight   int    `bson:"targetHeight,omitempty" json:"targetHeight,omitempty"`

	// HasVideoBlob means a VideoBlob record exists for this asset in the
	// same backend; the two are deleted together. VideoStripped marks a
	// video whose payload was dropped by the file-store fallback.
	HasVideoBlob  bool `bson:"hasVideoBlob" json:"has_video_blob"`
	VideoStripped bool `bson:"videoStripped,omitempty" json:"video_stripped,omitempty"`

	Comments []Comment      `bson:"comments,omitempty" json:"comments,omitempty"`
	History  []HistoryEntry `bson:"history,omitempty" json:"history,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

func (a *Asset) IsVideo() bool {
	return a.FileType == FileTypeVideo
}

func (a *Asset) IsImage() bool {
	return a.FileType == FileTypeImage
}

// PartitionKey returns the namespacing key the asset is indexed under:
// the team key for team assets, the owner's user key otherwise.
func (a *Asset) PartitionKey() string {
	if a.IsTeam {
		return a.TeamKey
	}
	return a.UserKey
}

// MergeTags folds patch into the asset's tags, preserving keys the patch
// does not mention. Tags are merged, never replaced wholesale.
func (a *Asset) MergeTags(patch map[string]string) {
	if len(patch) == 0 {
		return
	}
	if a.Tags == nil {
		a.Tags = make(map[string]string, len(patch))
	}
	for k, v := range patch {
		a.Tags[k] = v
	}
}

// AppendHistory records one mutation in the asset's audit log.
func (a *Asset) AppendHistory(action, userName, details string) {
	a.History = append(a.History, HistoryEntry{
		Action:    action,
		UserName:  userName,
		Timestamp: time.Now().UTC(),
		Details:   details,
	})
}

// VideoBlob is the large video payload, stored separately from its Asset
// record and keyed by the asset id. Data holds the inline payload; when the
// payload has been offloaded to object storage, ObjectKey is set instead.
type VideoBlob struct {
	AssetID   string    `bson:"_id" json:"asset_id"`
	UserKey   string    `bson:"userKey" json:"user_key"`
	Data      string    `bson:"data,omitempty" json:"data,omitempty"`
	ObjectKey string    `bson:"objectKey,omitempty" json:"object_key,omitempty"`
	Size      int64     `bson:"size" json:"size"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}
