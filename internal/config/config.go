package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingComputeURL is returned by Validate when no compute backend is configured.
var ErrMissingComputeURL = errors.New("compute base URL is not configured")

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Compute   ComputeConfig
	Storage   StorageConfig
	R2        R2Config
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	ImagePerHour int
	VideoPerHour int
}

// ComputeConfig describes the remote GPU backend and how long to wait on it.
type ComputeConfig struct {
	BaseURL         string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	Image           PollConfig
	Video           PollConfig
}

// PollConfig is the fixed polling cadence for one media kind.
type PollConfig struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// StorageConfig controls where materialized videos land on disk and the
// path prefix under which they are served.
type StorageConfig struct {
	OutputDir    string
	PublicPrefix string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type WorkerConfig struct {
	Concurrency int
	ImageWeight int
	VideoWeight int
}

// Validate reports configuration the generation path cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Compute.BaseURL) == "" {
		return ErrMissingComputeURL
	}
	return nil
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.image_per_hour", "RATELIMIT_IMAGE_PER_HOUR")
	_ = v.BindEnv("ratelimit.video_per_hour", "RATELIMIT_VIDEO_PER_HOUR")
	_ = v.BindEnv("compute.base_url", "COMPUTE_BASE_URL")
	_ = v.BindEnv("compute.timeout", "COMPUTE_TIMEOUT")
	_ = v.BindEnv("compute.download_timeout", "COMPUTE_DOWNLOAD_TIMEOUT")
	_ = v.BindEnv("compute.image.poll_interval", "IMAGE_POLL_INTERVAL")
	_ = v.BindEnv("compute.image.max_wait", "IMAGE_MAX_WAIT")
	_ = v.BindEnv("compute.video.poll_interval", "VIDEO_POLL_INTERVAL")
	_ = v.BindEnv("compute.video.max_wait", "VIDEO_MAX_WAIT")
	_ = v.BindEnv("storage.output_dir", "STORAGE_OUTPUT_DIR")
	_ = v.BindEnv("storage.public_prefix", "STORAGE_PUBLIC_PREFIX")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.image_weight", "WORKER_IMAGE_WEIGHT")
	_ = v.BindEnv("worker.video_weight", "WORKER_VIDEO_WEIGHT")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.image_per_hour", 60)
	v.SetDefault("ratelimit.video_per_hour", 10)

	// Compute defaults: images finish in seconds, videos in tens of minutes
	v.SetDefault("compute.base_url", "http://localhost:8188")
	v.SetDefault("compute.timeout", 30*time.Second)
	v.SetDefault("compute.download_timeout", 10*time.Minute)
	v.SetDefault("compute.image.poll_interval", 2*time.Second)
	v.SetDefault("compute.image.max_wait", 3*time.Minute)
	v.SetDefault("compute.video.poll_interval", 10*time.Second)
	v.SetDefault("compute.video.max_wait", 30*time.Minute)

	v.SetDefault("storage.output_dir", "./public/generated/videos")
	v.SetDefault("storage.public_prefix", "/generated/videos")

	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.image_weight", 6)
	v.SetDefault("worker.video_weight", 4)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			ImagePerHour: v.GetInt("ratelimit.image_per_hour"),
			VideoPerHour: v.GetInt("ratelimit.video_per_hour"),
		},
		Compute: ComputeConfig{
			BaseURL:         strings.TrimRight(v.GetString("compute.base_url"), "/"),
			Timeout:         v.GetDuration("compute.timeout"),
			DownloadTimeout: v.GetDuration("compute.download_timeout"),
			Image: PollConfig{
				Interval: v.GetDuration("compute.image.poll_interval"),
				MaxWait:  v.GetDuration("compute.image.max_wait"),
			},
			Video: PollConfig{
				Interval: v.GetDuration("compute.video.poll_interval"),
				MaxWait:  v.GetDuration("compute.video.max_wait"),
			},
		},
		Storage: StorageConfig{
			OutputDir:    v.GetString("storage.output_dir"),
			PublicPrefix: strings.TrimRight(v.GetString("storage.public_prefix"), "/"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			ImageWeight: v.GetInt("worker.image_weight"),
			VideoWeight: v.GetInt("worker.video_weight"),
		},
	}

	return cfg, nil
}
