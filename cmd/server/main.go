package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cav/asset-vault/internal/api"
	"cav/asset-vault/internal/cache"
	"cav/asset-vault/internal/config"
	repomongo "cav/asset-vault/internal/repository/mongo"
	"cav/asset-vault/internal/service"
	"cav/asset-vault/internal/storage"
	"cav/asset-vault/internal/storage/blob"
	"cav/asset-vault/internal/storage/filestore"
	"cav/asset-vault/internal/storage/mongostore"
	"cav/asset-vault/internal/storage/wordpress"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Starting Asset Vault server...")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}

	ctx := context.Background()

	// Optional S3-compatible blob store for video payload offload. Without it
	// video payloads stay inline in the database.
	var blobStore blob.Store
	if cfg.S3.BucketName != "" {
		blobStore, err = blob.NewS3Store(cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("S3 blob store unavailable, keeping video payloads inline")
			blobStore = nil
		}
	}

	// Local backend priority: MongoDB first, JSON files when Mongo is not
	// reachable. The file backend cannot hold video payloads, only metadata.
	local, dbClient, appDB := openLocalBackend(ctx, cfg, blobStore)
	if dbClient != nil {
		defer func() {
			if err := mongostore.DisconnectDB(dbClient); err != nil {
				log.Error().Err(err).Msg("Failed to disconnect MongoDB")
			}
		}()
	}

	// Optional remote backend. When configured it is authoritative; every
	// failed remote call falls back to the local backend.
	var remote storage.Backend
	if wordpress.Enabled(cfg.WordPress) {
		remote = wordpress.New(cfg.WordPress)
		log.Info().Str("api_url", cfg.WordPress.APIURL).Msg("WordPress remote backend enabled")
	}

	assetCache, err := cache.New(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis cache unavailable, continuing without it")
		assetCache = nil
	}

	manager := service.NewStorageManager(service.StorageManagerDependencies{
		Remote: remote,
		Local:  local,
		Cache:  assetCache,
		Quota:  cfg.Quota,
	})
	log.Info().Str("backend", manager.LocalBackendName()).Msg("Storage manager initialized")

	// Account registration needs a user collection; without Mongo the server
	// still runs, sessions just come from SSO headers, cookies, or anonymous.
	var authService service.AuthService
	if appDB != nil {
		userCollection := appDB.Collection("users")
		go func() {
			idxCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			repomongo.EnsureUserIndexes(idxCtx, userCollection)
		}()
		userRepo := repomongo.NewMongoUserRepository(appDB)
		authService = service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	} else {
		authService = service.NewUnavailableAuthService()
	}

	router := gin.Default()
	api.SetupRoutes(router, cfg.JWT.Secret, authService, manager)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting.")
}

// openLocalBackend tries MongoDB and falls back to the JSON file store. The
// returned client and database are nil on the fallback path.
func openLocalBackend(ctx context.Context, cfg config.Config, blobStore blob.Store) (storage.LocalBackend, *mongo.Client, *mongo.Database) {
	dbClient, err := mongostore.ConnectDB(cfg.Database.URI)
	if err == nil {
		appDB := dbClient.Database(cfg.Database.Name)
		local, err := mongostore.New(ctx, appDB, blobStore)
		if err == nil {
			return local, dbClient, appDB
		}
		log.Warn().Err(err).Msg("MongoDB schema init failed, falling back to file store")
		if derr := mongostore.DisconnectDB(dbClient); derr != nil {
			log.Error().Err(derr).Msg("Failed to disconnect MongoDB")
		}
	} else {
		log.Warn().Err(err).Msg("MongoDB unreachable, falling back to file store")
	}

	local, err := filestore.New(cfg.FileStore)
	if err != nil {
		log.Fatal().Err(err).Msg("No storage backend available")
	}
	return local, nil, nil
}
