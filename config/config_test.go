package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/camera-pipeline/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.Validate(cfg))
	assert.Equal(t, 1080, cfg.MaxResolution)
	assert.Equal(t, 1080, cfg.EditorMaxWidth)
	assert.Equal(t, 1920, cfg.EditorMaxHeight)
	assert.Equal(t, int64(32_000_000), cfg.MaxEditorPixels)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"quality zero", func(c *config.Config) { c.DefaultQuality = 0 }},
		{"quality too high", func(c *config.Config) { c.DefaultQuality = 101 }},
		{"chunk size", func(c *config.Config) { c.ChunkSize = 0 }},
		{"negative resolution", func(c *config.Config) { c.MaxResolution = -1 }},
		{"editor width", func(c *config.Config) { c.EditorMaxWidth = 0 }},
		{"editor pixels", func(c *config.Config) { c.MaxEditorPixels = 0 }},
		{"local root", func(c *config.Config) { c.Local.RootDir = "" }},
		{"s3 bucket", func(c *config.Config) { c.Storage = config.StorageS3 }},
		{"unknown backend", func(c *config.Config) { c.Storage = "ftp" }},
		{"log level", func(c *config.Config) { c.LogLevel = "trace" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			assert.Error(t, config.Validate(cfg))
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CAMERA_PIPELINE_WORKERS", "3")
	t.Setenv("CAMERA_PIPELINE_QUALITY", "70")
	t.Setenv("CAMERA_PIPELINE_JOB_TIMEOUT", "5s")
	t.Setenv("CAMERA_PIPELINE_STORAGE", "s3")
	t.Setenv("CAMERA_PIPELINE_S3_BUCKET", "photos")
	t.Setenv("CAMERA_PIPELINE_MAX_RESOLUTION", "not-a-number")

	cfg := config.FromEnv(config.Default())
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, 70, cfg.DefaultQuality)
	assert.Equal(t, 5*time.Second, cfg.JobTimeout)
	assert.Equal(t, config.StorageS3, cfg.Storage)
	assert.Equal(t, "photos", cfg.S3.Bucket)
	assert.Equal(t, 1080, cfg.MaxResolution, "unparsable values keep the base")
	require.NoError(t, config.Validate(cfg))
}
