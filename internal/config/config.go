package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	FileStore FileStoreConfig `mapstructure:"filestore"`
	S3        S3Config        `mapstructure:"s3"`
	Redis     RedisConfig     `mapstructure:"redis"`
	WordPress WordPressConfig `mapstructure:"wordpress"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Quota     QuotaConfig     `mapstructure:"quota"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// FileStoreConfig configures the JSON-file fallback backend. MaxFileBytes
// bounds each per-user asset file, mirroring the quota of the storage this
// backend stands in for.
type FileStoreConfig struct {
	Dir          string `mapstructure:"dir"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// RedisConfig configures the optional read cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// WordPressConfig configures the optional remote backend. The remote path is
// taken only when APIURL is a non-empty string; anything else means local
// storage exclusively.
type WordPressConfig struct {
	APIURL string `mapstructure:"api_url"`
	Nonce  string `mapstructure:"nonce"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// QuotaConfig holds the video storage caps, in megabytes.
type QuotaConfig struct {
	MaxVideoUploadMB int64 `mapstructure:"max_video_upload_mb"`
	MaxVideoTotalMB  int64 `mapstructure:"max_video_total_mb"`
}

// MaxVideoUploadBytes returns the per-upload cap in bytes.
func (q QuotaConfig) MaxVideoUploadBytes() int64 {
	return q.MaxVideoUploadMB * 1024 * 1024
}

// MaxVideoTotalBytes returns the total cap in bytes.
func (q QuotaConfig) MaxVideoTotalBytes() int64 {
	return q.MaxVideoTotalMB * 1024 * 1024
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Environment variable handling, e.g. database.uri -> DATABASE_URI,
	// jwt.expiration -> JWT_EXPIRATION.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "asset_vault")
	viper.SetDefault("filestore.dir", "./data")
	viper.SetDefault("filestore.max_file_bytes", int64(5*1024*1024))
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.ttl", "30s")
	viper.SetDefault("wordpress.api_url", "")
	viper.SetDefault("jwt.expiration", "24h")
	viper.SetDefault("quota.max_video_upload_mb", int64(10))
	viper.SetDefault("quota.max_video_total_mb", int64(200))

	err = viper.ReadInConfig()
	// Config file is optional; defaults and env vars may be enough.
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
