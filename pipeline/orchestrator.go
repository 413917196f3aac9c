package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/Skryldev/camera-pipeline/adapters/encoder"
	"github.com/Skryldev/camera-pipeline/adapters/storage"
	"github.com/Skryldev/camera-pipeline/config"
	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/geometry"
)

// PrepareRequest describes a capture or gallery import.
type PrepareRequest struct {
	Source core.Locator

	// Output size in displayed axes.  Zero on both axes keeps the source
	// size; zero on one axis derives it from the aspect ratio.
	TargetWidth  int
	TargetHeight int

	// CorrectOrientation bakes the EXIF rotation into the pixels.
	CorrectOrientation bool

	// Encoding of the output.  The zero value means JPEG at
	// Config.DefaultQuality.
	Encoding core.EncodingSpec

	// Downsize caps the shorter side at Config.MaxResolution.
	Downsize bool

	// Destination, when set, receives the encoded bytes.
	Destination core.Locator
	// PreserveMetadata copies the source EXIF block into a JPEG destination.
	PreserveMetadata bool

	// IncludeMetadata returns the preserved EXIF attributes and the source
	// creation time in the result.
	IncludeMetadata bool
	// Base64 also renders the encoded bytes as Base64 text.
	Base64 bool
}

// Target returns the requested output size.
func (r PrepareRequest) Target() core.Dimensions {
	return core.Dimensions{Width: r.TargetWidth, Height: r.TargetHeight}
}

// fastPath reports whether the request can skip the header read and the scratch
// copy entirely.
func (r PrepareRequest) fastPath() bool {
	return r.Target().IsZero() && !r.CorrectOrientation
}

// CropRequest describes an editor save.
type CropRequest struct {
	Source core.Locator
	// Rect is taken in the coordinates of the image after Ops are applied
	// and is clamped before use.
	Rect        geometry.Rect
	Ops         []EditOp
	Encoding    core.EncodingSpec
	Destination core.Locator
	Base64      bool
}

// Options wires an Orchestrator to its collaborators.
type Options struct {
	Config   config.Config
	Registry core.Registry
	Files    core.FileStore
	Exif     core.ExifStore // optional; nil disables orientation and metadata reads
	Logger   core.Logger
}

// Orchestrator sequences the prepare and edit use cases.  Each call is one
// independent, sequential invocation; calls may run concurrently.
type Orchestrator struct {
	cfg      config.Config
	registry core.Registry
	files    core.FileStore
	exif     core.ExifStore

	mu     sync.RWMutex
	logger core.Logger
	hooks  []core.Hook
}

// NewOrchestrator returns an Orchestrator.  Registry and Files are required.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil || opts.Files == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "orchestrator.new",
			fmt.Errorf("registry and file store are required"))
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	return &Orchestrator{
		cfg:      opts.Config,
		registry: opts.Registry,
		files:    opts.Files,
		exif:     opts.Exif,
		logger:   opts.Logger,
	}, nil
}

// SetLogger replaces the logger.
func (o *Orchestrator) SetLogger(l core.Logger) {
	if l == nil {
		l = core.NopLogger{}
	}
	o.mu.Lock()
	o.logger = l
	o.mu.Unlock()
}

// AddHook registers an observer for every step of later invocations.
func (o *Orchestrator) AddHook(h core.Hook) {
	o.mu.Lock()
	o.hooks = append(o.hooks, h)
	o.mu.Unlock()
}

// Registry returns the codec registry.
func (o *Orchestrator) Registry() core.Registry { return o.registry }

func (o *Orchestrator) snapshot() (core.Logger, []core.Hook) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	hooks := make([]core.Hook, len(o.hooks))
	copy(hooks, o.hooks)
	return o.logger, hooks
}

// ── Prepare ───────────────────────────────────────────────────────────────────

// PrepareImage decodes, resizes, orients and re-encodes req.Source.  The
// scratch copy is removed on every exit, including cancellation.
func (o *Orchestrator) PrepareImage(ctx context.Context, req PrepareRequest) (*core.Result, error) {
	start := time.Now()
	if req.Source == "" {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "prepare", fmt.Errorf("source is required"))
	}
	if req.TargetWidth < 0 || req.TargetHeight < 0 {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "prepare",
			fmt.Errorf("negative target %dx%d", req.TargetWidth, req.TargetHeight))
	}
	req.Encoding = o.encoding(req.Encoding)
	if err := req.Encoding.Validate(); err != nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "prepare", err)
	}

	logger, hooks := o.snapshot()
	cleanup := storage.NewCleanup(o.files)
	defer o.release(ctx, logger, cleanup)

	p := New().AddHook(hooks...)
	if req.fastPath() {
		p.Use(o.decodeStep())
	} else {
		p.Use(
			&AcquireStep{Files: o.files, Tracker: cleanup, ChunkSize: o.cfg.ChunkSize, MaxBytes: o.cfg.MaxImageBytes},
			&InspectStep{Files: o.files, Registry: o.registry, MaxBytes: o.cfg.MaxImageBytes},
		)
		if req.CorrectOrientation {
			p.Use(&OrientationStep{Exif: o.exif, Logger: logger})
		}
		p.Use(
			&PlanStep{Target: req.Target()},
			o.decodeStep(),
			&ScaleStep{},
			&OrientStep{},
		)
	}
	if req.Downsize {
		p.Use(&DownsizeStep{Limit: o.cfg.MaxResolution})
	}
	p.Use(&EncodeStep{Registry: o.registry, Spec: req.Encoding})
	if req.IncludeMetadata {
		p.Use(&MetadataStep{Files: o.files, Exif: o.exif, Logger: logger})
	}
	p.Use(&DeliverStep{
		Files:        o.files,
		Exif:         o.exif,
		Logger:       logger,
		Destination:  req.Destination,
		PreserveExif: req.PreserveMetadata,
	})

	out, timings, err := p.Run(ctx, &core.ImageData{Source: req.Source})
	if err != nil {
		return nil, err
	}
	return o.result(out, req.Destination, req.Base64, start, timings), nil
}

// encoding resolves an unspecified request to JPEG at the configured default
// quality.  Explicit specs pass through unchanged.
func (o *Orchestrator) encoding(spec core.EncodingSpec) core.EncodingSpec {
	if spec.IsZero() {
		return core.JPEG(o.cfg.DefaultQuality)
	}
	return spec
}

func (o *Orchestrator) decodeStep() *DecodeStep {
	return &DecodeStep{Files: o.files, Registry: o.registry, MaxBytes: o.cfg.MaxImageBytes}
}

// release removes scratch files with a context that outlives cancellation.
func (o *Orchestrator) release(ctx context.Context, logger core.Logger, c *storage.Cleanup) {
	if err := c.Execute(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("pipeline.cleanup.failed", "error", err.Error())
	}
}

func (o *Orchestrator) result(out *core.ImageData, dst core.Locator, withBase64 bool, start time.Time, timings map[string]time.Duration) *core.Result {
	res := &core.Result{
		Data:           out.Data,
		Format:         out.Encoding.Format,
		Dimensions:     core.BoundsOf(out.Image),
		Destination:    dst,
		Metadata:       out.Meta,
		CreatedAt:      out.CreatedAt,
		ProcessingTime: time.Since(start),
		StepTimings:    timings,
	}
	if withBase64 {
		res.Base64 = encoder.EncodeBase64(out.Data)
	}
	return res
}

// ── Edit ──────────────────────────────────────────────────────────────────────

// editSteps decodes a source for the editor: subsampled when it is too large
// to hold at full resolution, then turned upright.
func (o *Orchestrator) editSteps(p *Pipeline, logger core.Logger) *Pipeline {
	return p.Use(
		&InspectStep{Files: o.files, Registry: o.registry, MaxBytes: o.cfg.MaxImageBytes},
		&OrientationStep{Exif: o.exif, Logger: logger},
		&EditorPlanStep{
			MaxPixels: o.cfg.MaxEditorPixels,
			MaxWidth:  o.cfg.EditorMaxWidth,
			MaxHeight: o.cfg.EditorMaxHeight,
		},
		o.decodeStep(),
		&OrientStep{FullCode: true},
	)
}

// LoadForEdit decodes source for interactive editing.
func (o *Orchestrator) LoadForEdit(ctx context.Context, source core.Locator) (image.Image, error) {
	if source == "" {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "load_for_edit", fmt.Errorf("source is required"))
	}
	logger, hooks := o.snapshot()
	p := o.editSteps(New().AddHook(hooks...), logger)
	out, _, err := p.Run(ctx, &core.ImageData{Source: source})
	if err != nil {
		return nil, err
	}
	return out.Image, nil
}

// CropImage loads req.Source for editing, applies req.Ops in order, crops to
// the clamped rect and encodes the result.
func (o *Orchestrator) CropImage(ctx context.Context, req CropRequest) (*core.Result, error) {
	start := time.Now()
	if req.Source == "" {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "crop", fmt.Errorf("source is required"))
	}
	req.Encoding = o.encoding(req.Encoding)
	if err := req.Encoding.Validate(); err != nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, "crop", err)
	}

	logger, hooks := o.snapshot()
	p := o.editSteps(New().AddHook(hooks...), logger)
	if len(req.Ops) > 0 {
		p.Use(&EditStep{Ops: req.Ops})
	}
	p.Use(
		&CropStep{Rect: req.Rect},
		&EncodeStep{Registry: o.registry, Spec: req.Encoding},
		&DeliverStep{Files: o.files, Exif: o.exif, Logger: logger, Destination: req.Destination},
	)

	out, timings, err := p.Run(ctx, &core.ImageData{Source: req.Source})
	if err != nil {
		return nil, err
	}
	return o.result(out, req.Destination, req.Base64, start, timings), nil
}

// RotateLeft turns img a quarter turn counter-clockwise.
func (o *Orchestrator) RotateLeft(img image.Image) image.Image { return geometry.RotateLeft(img) }

// Flip mirrors img left to right.
func (o *Orchestrator) Flip(img image.Image) image.Image { return geometry.FlipHorizontal(img) }

// ToBase64 renders data as standard Base64 text.
func (o *Orchestrator) ToBase64(data []byte) string { return encoder.EncodeBase64(data) }

// FromBase64 decodes standard Base64 text.
func (o *Orchestrator) FromBase64(text string) ([]byte, error) { return encoder.DecodeBase64(text) }
