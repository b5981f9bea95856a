package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/service"
	"cav/asset-vault/internal/storage"

	"github.com/gin-gonic/gin"
)

// AssetHandler exposes the storage manager over HTTP. It is thin glue:
// request decoding, session extraction, result mapping. All policy lives in
// the manager.
type AssetHandler struct {
	manager *service.StorageManager
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(manager *service.StorageManager) *AssetHandler {
	return &AssetHandler{manager: manager}
}

// --- DTOs for API ---

type UploadAssetRequest struct {
	Filename       string            `json:"filename" binding:"required"`
	FileType       domain.FileType   `json:"fileType" binding:"required,oneof=image video"`
	ContentType    string            `json:"contentType"`
	DataBase64     string            `json:"dataBase64" binding:"required"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	Duration       float64           `json:"duration"`
	IsTeam         bool              `json:"isTeam"`
	Tags           map[string]string `json:"tags"`
	PreviewDataURL string            `json:"previewDataUrl"`
}

type BulkOperationRequest struct {
	Operation storage.BulkOp   `json:"operation" binding:"required"`
	IDs       []string         `json:"ids" binding:"required,min=1"`
	Data      storage.BulkData `json:"data"`
	IsTeam    bool             `json:"isTeam"`
}

type CheckDuplicateRequest struct {
	Hash   string `json:"hash" binding:"required"`
	IsTeam bool   `json:"isTeam"`
}

type AddCommentRequest struct {
	Text   string `json:"text" binding:"required"`
	IsTeam bool   `json:"isTeam"`
}

type CreateDerivativeRequest struct {
	IsTeam         bool    `json:"isTeam"`
	Type           string  `json:"type" binding:"required,oneof=image_to_video video_to_still resize"`
	AIModel        string  `json:"aiModel"`
	TargetWidth    int     `json:"targetWidth"`
	TargetHeight   int     `json:"targetHeight"`
	DataBase64     string  `json:"dataBase64"`
	ContentType    string  `json:"contentType"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Duration       float64 `json:"duration"`
	PreviewDataURL string  `json:"previewDataUrl"`
}

func isTeamQuery(c *gin.Context) bool {
	return c.Query("is_team") == "true"
}

// --- Handler Methods ---

// ListAssets returns one partition slice of the asset library.
func (h *AssetHandler) ListAssets(c *gin.Context) {
	sess := getSessionFromContext(c)

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	page, err := h.manager.GetAssets(c.Request.Context(), sess, service.GetAssetsParams{
		IsTeam:  isTeamQuery(c),
		View:    storage.View(c.DefaultQuery("view", "all")),
		Status:  c.Query("status"),
		SortBy:  c.Query("sort_by"),
		SortDir: c.Query("sort_dir"),
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load assets")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetAsset returns one asset by id.
func (h *AssetHandler) GetAsset(c *gin.Context) {
	sess := getSessionFromContext(c)

	asset, err := h.manager.GetAsset(c.Request.Context(), sess, c.Param("id"), isTeamQuery(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, "Asset not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, "Failed to load asset")
		return
	}
	c.JSON(http.StatusOK, asset)
}

// UploadAsset runs the upload pipeline: dedup, quota, save.
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	var req UploadAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.DataBase64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "dataBase64 is not valid base64")
		return
	}

	sess := getSessionFromContext(c)
	result, err := h.manager.ProcessUpload(c.Request.Context(), sess, service.UploadRequest{
		Filename:       req.Filename,
		FileType:       req.FileType,
		ContentType:    req.ContentType,
		Bytes:          raw,
		Width:          req.Width,
		Height:         req.Height,
		Duration:       req.Duration,
		IsTeam:         req.IsTeam,
		Tags:           req.Tags,
		PreviewDataURL: req.PreviewDataURL,
	})
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to save asset")
		return
	}

	switch {
	case result.Success:
		c.JSON(http.StatusCreated, result)
	case result.Duplicate != nil && result.Duplicate.IsDuplicate:
		c.JSON(http.StatusConflict, result)
	default:
		c.JSON(http.StatusBadRequest, result)
	}
}

// UpdateAsset applies a partial update (tag merge, favorite, archive).
func (h *AssetHandler) UpdateAsset(c *gin.Context) {
	var req service.UpdateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess := getSessionFromContext(c)
	result, err := h.manager.UpdateAsset(c.Request.Context(), sess, c.Param("id"), req)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to update asset")
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteAsset permanently removes an asset (and its video blob).
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	sess := getSessionFromContext(c)

	result, err := h.manager.DeleteAsset(c.Request.Context(), sess, c.Param("id"), isTeamQuery(c))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to delete asset")
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// BulkOperation applies one operation across many ids, best-effort.
func (h *AssetHandler) BulkOperation(c *gin.Context) {
	var req BulkOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess := getSessionFromContext(c)
	result, err := h.manager.BulkOperation(c.Request.Context(), sess, req.Operation, req.IDs, req.Data, req.IsTeam)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Bulk operation failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckDuplicate answers whether a content hash already exists in the
// caller's partition.
func (h *AssetHandler) CheckDuplicate(c *gin.Context) {
	var req CheckDuplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess := getSessionFromContext(c)
	result, err := h.manager.CheckDuplicate(c.Request.Context(), sess, req.Hash, req.IsTeam)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Duplicate check failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddComment appends a comment to an asset.
func (h *AssetHandler) AddComment(c *gin.Context) {
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess := getSessionFromContext(c)
	result, err := h.manager.AddComment(c.Request.Context(), sess, c.Param("id"), req.Text, req.IsTeam)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to add comment")
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetHistory returns the asset's append-only audit log.
func (h *AssetHandler) GetHistory(c *gin.Context) {
	sess := getSessionFromContext(c)

	history, err := h.manager.GetHistory(c.Request.Context(), sess, c.Param("id"), isTeamQuery(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, "Asset not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, "Failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// CreateDerivative stores an AI transform result as a new asset derived
// from the given source.
func (h *AssetHandler) CreateDerivative(c *gin.Context) {
	var req CreateDerivativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var raw []byte
	if req.DataBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.DataBase64)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "dataBase64 is not valid base64")
			return
		}
		raw = decoded
	}

	sess := getSessionFromContext(c)
	result, err := h.manager.CreateDerivative(c.Request.Context(), sess, c.Param("id"), service.DerivativeRequest{
		IsTeam: req.IsTeam,
		Spec: domain.DerivativeSpec{
			Type:         req.Type,
			AIModel:      req.AIModel,
			TargetWidth:  req.TargetWidth,
			TargetHeight: req.TargetHeight,
		},
		Bytes:          raw,
		ContentType:    req.ContentType,
		Width:          req.Width,
		Height:         req.Height,
		Duration:       req.Duration,
		PreviewDataURL: req.PreviewDataURL,
	})
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to create derivative")
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListDerivatives groups the assets derived from a source.
func (h *AssetHandler) ListDerivatives(c *gin.Context) {
	sess := getSessionFromContext(c)

	derivatives, err := h.manager.GetDerivatives(c.Request.Context(), sess, c.Param("id"), isTeamQuery(c))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load derivatives")
		return
	}
	c.JSON(http.StatusOK, gin.H{"derivatives": derivatives})
}

// GetQuota reports the caller's video storage usage against the caps.
func (h *AssetHandler) GetQuota(c *gin.Context) {
	sess := getSessionFromContext(c)

	usage, err := h.manager.VideoUsage(c.Request.Context(), sess)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to read storage usage")
		return
	}
	quota := h.manager.Quota()
	c.JSON(http.StatusOK, gin.H{
		"video_usage_bytes":   usage,
		"max_video_upload_mb": quota.MaxVideoUploadMB,
		"max_video_total_mb":  quota.MaxVideoTotalMB,
	})
}

// GetPreferences returns the caller's stored preferences.
func (h *AssetHandler) GetPreferences(c *gin.Context) {
	sess := getSessionFromContext(c)

	prefs, err := h.manager.GetPreferences(c.Request.Context(), sess)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// SavePreferences replaces the caller's stored preferences.
func (h *AssetHandler) SavePreferences(c *gin.Context) {
	var prefs map[string]any
	if err := c.ShouldBindJSON(&prefs); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess := getSessionFromContext(c)
	if err := h.manager.SavePreferences(c.Request.Context(), sess, prefs); err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to save preferences")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetAPIKeys returns the caller's stored AI provider keys.
func (h *AssetHandler) GetAPIKeys(c *gin.Context) {
	sess := getSessionFromContext(c)

	keys, err := h.manager.GetAPIKeys(c.Request.Context(), sess)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load API keys")
		return
	}
	c.JSON(http.StatusOK, keys)
}

// SaveAPIKeys replaces the caller's stored AI provider keys.
func (h *AssetHandler) SaveAPIKeys(c *gin.Context) {
	var keys map[string]string
	if err := c.ShouldBindJSON(&keys); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess := getSessionFromContext(c)
	if err := h.manager.SaveAPIKeys(c.Request.Context(), sess, keys); err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to save API keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
