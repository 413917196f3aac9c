// Package camerapipeline is the entry point of the camera image pipeline:
// capture and gallery-import preparation, editor crops and the Base64 text
// path, over pluggable codecs, storage and EXIF collaborators.
package camerapipeline

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/Skryldev/camera-pipeline/adapters/decoder"
	"github.com/Skryldev/camera-pipeline/adapters/encoder"
	"github.com/Skryldev/camera-pipeline/adapters/exif"
	"github.com/Skryldev/camera-pipeline/adapters/storage"
	"github.com/Skryldev/camera-pipeline/config"
	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/hooks"
	"github.com/Skryldev/camera-pipeline/pipeline"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Option customises a Pipeline.
type Option func(*options)

type options struct {
	logger  core.Logger
	hooks   []core.Hook
	exif    core.ExifStore
	noExif  bool
	metrics core.MetricsCollector
}

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option { return func(o *options) { o.logger = l } }

// WithHook registers an observer for every pipeline step.
func WithHook(h core.Hook) Option { return func(o *options) { o.hooks = append(o.hooks, h) } }

// WithExifStore replaces the goexif-backed EXIF collaborator.
func WithExifStore(s core.ExifStore) Option { return func(o *options) { o.exif = s } }

// WithoutExif disables orientation and metadata reads.
func WithoutExif() Option { return func(o *options) { o.noExif = true } }

// WithMetrics feeds step timings and errors into m.
func WithMetrics(m core.MetricsCollector) Option { return func(o *options) { o.metrics = m } }

// Pipeline is the primary entry point.
type Pipeline struct {
	cfg   config.Config
	reg   *core.DefaultRegistry
	files core.FileStore
	orch  *pipeline.Orchestrator
	pool  *core.Pool
}

// New creates a fully wired Pipeline with the JPEG and PNG codecs
// registered.  A nil files store is built from cfg with OpenStore.
func New(cfg config.Config, files core.FileStore, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "new", err)
	}
	if files == nil {
		var err error
		if files, err = OpenStore(cfg, nil); err != nil {
			return nil, err
		}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NopLogger{}
	}
	exifStore := o.exif
	if exifStore == nil && !o.noExif {
		exifStore = exif.NewStore(files, cfg.ChunkSize)
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG())
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())

	orch, err := pipeline.NewOrchestrator(pipeline.Options{
		Config:   cfg,
		Registry: reg,
		Files:    files,
		Exif:     exifStore,
		Logger:   o.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, h := range o.hooks {
		orch.AddHook(h)
	}
	if o.metrics != nil {
		orch.AddHook(hooks.NewMetricsHook(o.metrics))
	}

	pool := core.NewPool(cfg)
	pool.SetLogger(o.logger)

	return &Pipeline{cfg: cfg, reg: reg, files: files, orch: orch, pool: pool}, nil
}

// OpenStore builds the FileStore selected by cfg.Storage.  The S3 backend
// needs a client; the local backend ignores it.
func OpenStore(cfg config.Config, client storage.S3Client) (core.FileStore, error) {
	switch cfg.Storage {
	case config.StorageLocal, "":
		local, err := storage.NewLocal(cfg.Local.RootDir, cfg.Local.TempDir, os.FileMode(cfg.Local.Permissions))
		if err != nil {
			return nil, err
		}
		return local, nil
	case config.StorageS3:
		s3, err := storage.NewS3(client, cfg.S3.Bucket, cfg.S3.TempPrefix)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return nil, apperrors.New(apperrors.CategoryConfig, "open_store",
		fmt.Errorf("unknown storage backend %q", cfg.Storage))
}

// SetLogger attaches a structured logger.
func (p *Pipeline) SetLogger(l core.Logger) {
	p.orch.SetLogger(l)
	p.pool.SetLogger(l)
}

// AddHook registers an observer for pipeline step events.
func (p *Pipeline) AddHook(h core.Hook) { p.orch.AddHook(h) }

// RegisterDecoder registers a custom decoder for the given format.
func (p *Pipeline) RegisterDecoder(f core.Format, d core.Decoder) { p.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (p *Pipeline) RegisterEncoder(f core.Format, e core.Encoder) { p.reg.RegisterEncoder(f, e) }

// Registry exposes the codec registry, e.g. for vips.RegisterVipsBackend.
func (p *Pipeline) Registry() core.Registry { return p.reg }

// Orchestrator exposes the underlying orchestrator.
func (p *Pipeline) Orchestrator() *pipeline.Orchestrator { return p.orch }

// Files returns the FileStore the pipeline reads and writes through.
func (p *Pipeline) Files() core.FileStore { return p.files }

// ── Operations ────────────────────────────────────────────────────────────────

// PrepareImage runs the capture / gallery-import pipeline synchronously.
func (p *Pipeline) PrepareImage(ctx context.Context, req pipeline.PrepareRequest) (*core.Result, error) {
	return p.orch.PrepareImage(ctx, req)
}

// CropImage runs the editor save pipeline synchronously.
func (p *Pipeline) CropImage(ctx context.Context, req pipeline.CropRequest) (*core.Result, error) {
	return p.orch.CropImage(ctx, req)
}

// LoadForEdit decodes source upright and small enough to edit.
func (p *Pipeline) LoadForEdit(ctx context.Context, source core.Locator) (image.Image, error) {
	return p.orch.LoadForEdit(ctx, source)
}

// RotateLeft turns img a quarter turn counter-clockwise.
func (p *Pipeline) RotateLeft(img image.Image) image.Image { return p.orch.RotateLeft(img) }

// Flip mirrors img left to right.
func (p *Pipeline) Flip(img image.Image) image.Image { return p.orch.Flip(img) }

// ToBase64 renders data as standard Base64 text.
func (p *Pipeline) ToBase64(data []byte) string { return p.orch.ToBase64(data) }

// FromBase64 decodes standard Base64 text.
func (p *Pipeline) FromBase64(text string) ([]byte, error) { return p.orch.FromBase64(text) }

// SweepScratch removes scratch files older than Config.TempMaxAge.  Stores
// that cannot list their scratch area report zero.
func (p *Pipeline) SweepScratch(ctx context.Context) (int, error) {
	s, ok := p.files.(storage.Sweeper)
	if !ok {
		return 0, nil
	}
	return s.SweepTemp(ctx, p.cfg.TempMaxAge)
}

// ── Background execution ──────────────────────────────────────────────────────

// Start starts the background worker pool.
func (p *Pipeline) Start() { p.pool.Start() }

// Stop waits for running jobs and shuts down the worker pool.
func (p *Pipeline) Stop() { p.pool.Stop() }

// Submit enqueues an async job for the worker pool.
func (p *Pipeline) Submit(job core.Job) error { return p.pool.Submit(job) }

// SubmitPrepare runs PrepareImage for req on the worker pool and reports to
// resultCh, which may be nil.
func (p *Pipeline) SubmitPrepare(ctx context.Context, id string, req pipeline.PrepareRequest, resultCh chan<- core.JobResult) error {
	return p.pool.Submit(core.Job{
		ID:       id,
		Ctx:      ctx,
		Task:     func(ctx context.Context) (*core.Result, error) { return p.orch.PrepareImage(ctx, req) },
		ResultCh: resultCh,
	})
}

// SubmitCrop runs CropImage for req on the worker pool.
func (p *Pipeline) SubmitCrop(ctx context.Context, id string, req pipeline.CropRequest, resultCh chan<- core.JobResult) error {
	return p.pool.Submit(core.Job{
		ID:       id,
		Ctx:      ctx,
		Task:     func(ctx context.Context) (*core.Result, error) { return p.orch.CropImage(ctx, req) },
		ResultCh: resultCh,
	})
}

// Stats returns lightweight processing statistics.
func (p *Pipeline) Stats() (processed, errors int64) {
	return p.pool.ProcessedCount(), p.pool.ErrorCount()
}
