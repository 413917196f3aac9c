package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// StorageBackend selects the storage adapter.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// Config is the top-level configuration struct.  Start from Default() and
// override only what you need.
type Config struct {
	// Worker pool controls.
	WorkerCount int // default: runtime.NumCPU()
	QueueSize   int // max queued jobs before backpressure; default: 256
	JobTimeout  time.Duration

	// Encoding.
	DefaultQuality int // 1-100; default 85
	MaxResolution  int // cap on the shorter side of prepared images; 0 = none

	// Editor loading: images above MaxEditorPixels are decoded subsampled
	// toward EditorMaxWidth x EditorMaxHeight.
	EditorMaxWidth  int
	EditorMaxHeight int
	MaxEditorPixels int64

	// Streaming / memory limits.
	MaxImageBytes int64 // 0 = no limit
	ChunkSize     int   // streaming chunk size in bytes; default 32 KiB

	// Storage.
	Storage StorageBackend
	Local   LocalConfig
	S3      S3Config

	// Scratch files older than TempMaxAge are swept by the janitor.
	TempMaxAge time.Duration

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string
	TempDir     string // scratch directory; default RootDir/.tmp
	Permissions uint32 // default 0644
}

// S3Config configures the S3 storage adapter.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional custom endpoint (MinIO, etc.)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	TempPrefix      string // key prefix for scratch objects; default "tmp/"
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:     0, // resolved at runtime to NumCPU
		QueueSize:       256,
		JobTimeout:      30 * time.Second,
		DefaultQuality:  85,
		MaxResolution:   1080,
		EditorMaxWidth:  1080,
		EditorMaxHeight: 1920,
		MaxEditorPixels: 32_000_000,
		ChunkSize:       32 * 1024,
		Storage:         StorageLocal,
		Local: LocalConfig{
			RootDir:     ".",
			Permissions: 0o644,
		},
		S3:         S3Config{TempPrefix: "tmp/"},
		TempMaxAge: 24 * time.Hour,
		LogLevel:   "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.MaxResolution < 0 {
		return errors.New("config: MaxResolution must not be negative")
	}
	if c.EditorMaxWidth <= 0 || c.EditorMaxHeight <= 0 {
		return errors.New("config: editor bounds must be positive")
	}
	if c.MaxEditorPixels <= 0 {
		return errors.New("config: MaxEditorPixels must be positive")
	}
	switch c.Storage {
	case StorageLocal:
		if c.Local.RootDir == "" {
			return errors.New("config: Local.RootDir is required")
		}
	case StorageS3:
		if c.S3.Bucket == "" {
			return errors.New("config: S3.Bucket is required")
		}
	default:
		return errors.New("config: unknown storage backend " + string(c.Storage))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("config: LogLevel must be debug, info, warn or error")
	}
	return nil
}

// FromEnv overlays CAMERA_PIPELINE_* environment variables on base.
func FromEnv(base Config) Config {
	c := base
	c.WorkerCount = getEnvInt("CAMERA_PIPELINE_WORKERS", c.WorkerCount)
	c.QueueSize = getEnvInt("CAMERA_PIPELINE_QUEUE_SIZE", c.QueueSize)
	c.JobTimeout = getEnvDuration("CAMERA_PIPELINE_JOB_TIMEOUT", c.JobTimeout)
	c.DefaultQuality = getEnvInt("CAMERA_PIPELINE_QUALITY", c.DefaultQuality)
	c.MaxResolution = getEnvInt("CAMERA_PIPELINE_MAX_RESOLUTION", c.MaxResolution)
	c.MaxImageBytes = int64(getEnvInt("CAMERA_PIPELINE_MAX_IMAGE_BYTES", int(c.MaxImageBytes)))
	c.Storage = StorageBackend(getEnv("CAMERA_PIPELINE_STORAGE", string(c.Storage)))
	c.Local.RootDir = getEnv("CAMERA_PIPELINE_ROOT_DIR", c.Local.RootDir)
	c.Local.TempDir = getEnv("CAMERA_PIPELINE_TEMP_DIR", c.Local.TempDir)
	c.S3.Bucket = getEnv("CAMERA_PIPELINE_S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getEnv("CAMERA_PIPELINE_S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("CAMERA_PIPELINE_S3_ENDPOINT", c.S3.Endpoint)
	c.TempMaxAge = getEnvDuration("CAMERA_PIPELINE_TEMP_MAX_AGE", c.TempMaxAge)
	c.LogLevel = getEnv("CAMERA_PIPELINE_LOG_LEVEL", c.LogLevel)
	return c
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
