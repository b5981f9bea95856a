package api

import (
	"net/http"

	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	manager *service.StorageManager,
) {
	authHandler := NewAuthHandler(authService)
	assetHandler := NewAssetHandler(manager)

	// Every request gets a session: a signed token, a legacy SSO header, a
	// persisted email cookie, or the anonymous fallback.
	router.Use(SessionMiddleware(jwtSecret))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "backend": manager.LocalBackendName()})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		apiV1.GET("/me", func(c *gin.Context) {
			sess := getSessionFromContext(c)
			c.JSON(http.StatusOK, gin.H{
				"email":         sess.Email,
				"name":          sess.Name,
				"role":          sess.Role,
				"canAccessTeam": sess.CanAccessTeam,
			})
		})

		assetGroup := apiV1.Group("/assets")
		{
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.POST("/bulk", assetHandler.BulkOperation)
			assetGroup.POST("/check-duplicate", assetHandler.CheckDuplicate)

			assetGroup.GET("/:id", assetHandler.GetAsset)
			assetGroup.PUT("/:id", assetHandler.UpdateAsset)
			assetGroup.DELETE("/:id", assetHandler.DeleteAsset)

			assetGroup.POST("/:id/comments", assetHandler.AddComment)
			assetGroup.GET("/:id/history", assetHandler.GetHistory)
			assetGroup.POST("/:id/derivatives", assetHandler.CreateDerivative)
			assetGroup.GET("/:id/derivatives", assetHandler.ListDerivatives)
		}

		apiV1.GET("/quota", assetHandler.GetQuota)

		apiV1.GET("/preferences", assetHandler.GetPreferences)
		apiV1.PUT("/preferences", assetHandler.SavePreferences)

		apiV1.GET("/api-keys", assetHandler.GetAPIKeys)
		apiV1.PUT("/api-keys", assetHandler.SaveAPIKeys)

		// Admin-only maintenance surface. Bulk deletes already gate per-asset
		// ownership; this is for anything partition-wide.
		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(RequireAuth(), RoleMiddleware(domain.RoleAdmin))
		{
			adminGroup.GET("/quota/:userKey", func(c *gin.Context) {
				sess := getSessionFromContext(c)
				usage, err := manager.VideoUsageForKey(c.Request.Context(), sess, c.Param("userKey"))
				if err != nil {
					abortWithError(c, http.StatusInternalServerError, "Failed to read storage usage")
					return
				}
				c.JSON(http.StatusOK, gin.H{"userKey": c.Param("userKey"), "video_usage_bytes": usage})
			})
		}
	}
}
