package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/geometry"
	"github.com/Skryldev/camera-pipeline/orientation"
	"github.com/Skryldev/camera-pipeline/utils"
)

// Step names, as reported in timings and to hooks.
const (
	StepAcquire     = "acquire"
	StepInspect     = "inspect"
	StepOrientation = "orientation"
	StepPlan        = "plan"
	StepDecode      = "decode"
	StepScale       = "scale"
	StepOrient      = "orient"
	StepDownsize    = "downsize"
	StepEdit        = "edit"
	StepCrop        = "crop"
	StepEncode      = "encode"
	StepMetadata    = "metadata"
	StepDeliver     = "deliver"
)

// readLocator is where the current bytes of the image live: the scratch copy
// once acquired, otherwise the source itself.
func readLocator(img *core.ImageData) core.Locator {
	if img.Scratch != "" {
		return img.Scratch
	}
	return img.Source
}

// openImage opens loc and sniffs its format without consuming the stream.
func openImage(ctx context.Context, files core.FileStore, loc core.Locator, maxBytes int64) (io.Reader, io.Closer, core.Format, error) {
	rc, err := files.OpenRead(ctx, loc)
	if err != nil {
		return nil, nil, "", err
	}
	br := bufio.NewReaderSize(&utils.LimitedReader{R: rc, Max: maxBytes}, utils.SniffLen)
	// A short source yields fewer bytes and an EOF; the sniff copes with both.
	head, _ := br.Peek(utils.SniffLen)
	return br, rc, core.Format(utils.DetectFormat(head)), nil
}

// ── Acquire ───────────────────────────────────────────────────────────────────

// Tracker records scratch locators for removal once the invocation ends.
type Tracker interface {
	Add(loc core.Locator)
}

// AcquireStep copies the source into a fresh scratch locator so the header read,
// the orientation read and the decode all see the same bytes.
type AcquireStep struct {
	Files     core.FileStore
	Tracker   Tracker
	ChunkSize int
	MaxBytes  int64
}

func (s *AcquireStep) Name() string { return StepAcquire }

func (s *AcquireStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	r, closer, format, err := openImage(ctx, s.Files, img.Source, s.MaxBytes)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	scratch, err := s.Files.CreateTemp(ctx, format.Extension())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, s.Name(), err)
	}
	s.Tracker.Add(scratch)

	w, err := s.Files.OpenWrite(ctx, scratch)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, s.Name(), err)
	}
	if _, err := utils.CopyContext(ctx, w, r, s.ChunkSize); err != nil {
		abort(w)
		return nil, copyFailure(ctx, s.Name(), err)
	}
	if err := w.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, s.Name(), err)
	}

	out := *img
	out.Scratch = scratch
	out.Format = format
	return &out, nil
}

func copyFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, op, ctxErr)
	}
	return apperrors.Wrap(apperrors.CategoryUnreadable, op, err)
}

// abort discards a half-written destination.
func abort(w io.WriteCloser) {
	if a, ok := w.(interface{ Abort() error }); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}

// ── Inspect ───────────────────────────────────────────────────────────────────

// InspectStep reads only the image header.  Zero bounds fail here, before any
// pixel is decoded.
type InspectStep struct {
	Files    core.FileStore
	Registry core.Registry
	MaxBytes int64
}

func (s *InspectStep) Name() string { return StepInspect }

func (s *InspectStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	r, closer, format, err := openImage(ctx, s.Files, readLocator(img), s.MaxBytes)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	dec, err := core.LookupDecoder(s.Registry, format)
	if err != nil {
		return nil, err
	}
	bounds, err := dec.DecodeBounds(ctx, r)
	if err != nil {
		return nil, err
	}
	if bounds.Empty() {
		return nil, apperrors.New(apperrors.CategoryUnreadable, s.Name(),
			fmt.Errorf("%w: bounds %s", apperrors.ErrUnreadableImage, bounds))
	}

	out := *img
	out.Format = format
	out.Bounds = bounds
	return &out, nil
}

// ── Orientation ───────────────────────────────────────────────────────────────

// OrientationStep reads the EXIF orientation.  Any failure is logged and
// treated as an upright image.
type OrientationStep struct {
	Exif   core.ExifStore
	Logger core.Logger
}

func (s *OrientationStep) Name() string { return StepOrientation }

func (s *OrientationStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	out := *img
	out.Orientation = orientation.Undefined
	out.Rotation = 0
	if s.Exif == nil {
		return &out, nil
	}

	code, err := s.Exif.ReadOrientation(ctx, readLocator(img))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), ctxErr)
		}
		s.Logger.Warn("pipeline.orientation.unreadable",
			"source", string(img.Source),
			"error", err.Error(),
		)
		return &out, nil
	}
	out.Orientation = code
	out.Rotation = code.Degrees()
	return &out, nil
}

// ── Plan ──────────────────────────────────────────────────────────────────────

// PlanStep fixes the output size in displayed (rotated) axes and the decode
// sample size that gets there cheaply.  A zero target keeps the displayed
// size of the source.
type PlanStep struct {
	Target core.Dimensions
}

func (s *PlanStep) Name() string { return StepPlan }

func (s *PlanStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Bounds.Empty() {
		return nil, apperrors.New(apperrors.CategoryUnreadable, s.Name(),
			fmt.Errorf("%w: bounds %s", apperrors.ErrUnreadableImage, img.Bounds))
	}
	rotated := geometry.RotatedBounds(img.Bounds, img.Rotation)
	plan := geometry.PlanAspectFit(rotated.Width, rotated.Height, s.Target.Width, s.Target.Height)
	ratio := geometry.PlanDecodeSampleRatio(rotated.Width, rotated.Height, plan.Width, plan.Height)

	out := *img
	out.Target = plan
	out.Sample = core.SampleSizeFromRatio(ratio)
	return &out, nil
}

// EditorPlanStep picks a subsampled decode for sources too large to edit at
// full resolution.
type EditorPlanStep struct {
	MaxPixels int64
	MaxWidth  int
	MaxHeight int
}

func (s *EditorPlanStep) Name() string { return StepPlan }

func (s *EditorPlanStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	out := *img
	out.Sample = 1
	b := img.Bounds
	if s.MaxPixels > 0 && b.Pixels() > s.MaxPixels && (b.Width > s.MaxWidth || b.Height > s.MaxHeight) {
		out.Sample = geometry.PlanSampleSize(b.Width, b.Height, s.MaxWidth, s.MaxHeight)
	}
	return &out, nil
}

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes the current bytes at the planned sample size.
type DecodeStep struct {
	Files    core.FileStore
	Registry core.Registry
	MaxBytes int64
}

func (s *DecodeStep) Name() string { return StepDecode }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	r, closer, format, err := openImage(ctx, s.Files, readLocator(img), s.MaxBytes)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	dec, err := core.LookupDecoder(s.Registry, format)
	if err != nil {
		return nil, err
	}
	decoded, err := dec.Decode(ctx, r, img.Sample)
	if err != nil {
		return nil, err
	}

	out := *img
	out.Format = format
	out.Image = decoded
	if out.Bounds.Empty() {
		out.Bounds = core.BoundsOf(decoded)
	}
	return &out, nil
}

// ── Transform ─────────────────────────────────────────────────────────────────

// ScaleStep resizes the decoded pixels to the planned target.  The target is
// in displayed axes, so it is swapped back when a quarter turn is pending.
type ScaleStep struct{}

func (s *ScaleStep) Name() string { return StepScale }

func (s *ScaleStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Target.Empty() {
		return img, nil
	}
	want := img.Target
	if img.Rotation%180 != 0 {
		want = want.Swap()
	}
	scaled, err := geometry.Scale(img.Image, want.Width, want.Height)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Image = scaled
	return &out, nil
}

// OrientStep bakes the orientation into the pixels.  With FullCode set the
// mirrored EXIF orientations are undone as well.
type OrientStep struct {
	FullCode bool
}

func (s *OrientStep) Name() string { return StepOrient }

func (s *OrientStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, s.Name(), apperrors.ErrEmptyInput)
	}
	out := *img
	if s.FullCode {
		out.Image = geometry.ApplyOrientationCode(img.Image, img.Orientation)
		return &out, nil
	}
	rotated, err := geometry.ApplyOrientation(img.Image, img.Rotation)
	if err != nil {
		return nil, err
	}
	out.Image = rotated
	return &out, nil
}

// DownsizeStep caps the shorter side of the image at Limit.
type DownsizeStep struct {
	Limit int
}

func (s *DownsizeStep) Name() string { return StepDownsize }

func (s *DownsizeStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Limit <= 0 {
		return img, nil
	}
	resized, err := geometry.DownsizeIfNeeded(img.Image, s.Limit)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Image = resized
	return &out, nil
}

// EditOp is one in-memory editor operation.
type EditOp int

const (
	OpRotateLeft EditOp = iota + 1
	OpFlip
)

func (op EditOp) String() string {
	switch op {
	case OpRotateLeft:
		return "rotate_left"
	case OpFlip:
		return "flip"
	}
	return fmt.Sprintf("EditOp(%d)", int(op))
}

// EditStep applies editor operations in order.
type EditStep struct {
	Ops []EditOp
}

func (s *EditStep) Name() string { return StepEdit }

func (s *EditStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, s.Name(), apperrors.ErrEmptyInput)
	}
	current := img.Image
	for _, op := range s.Ops {
		switch op {
		case OpRotateLeft:
			current = geometry.RotateLeft(current)
		case OpFlip:
			current = geometry.FlipHorizontal(current)
		default:
			return nil, apperrors.New(apperrors.CategoryPrecondition, s.Name(),
				fmt.Errorf("unknown edit operation %s", op))
		}
	}
	out := *img
	out.Image = current
	return &out, nil
}

// CropStep clamps the requested rect against the current image and cuts it.
type CropStep struct {
	Rect geometry.Rect
}

func (s *CropStep) Name() string { return StepCrop }

func (s *CropStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	size := core.BoundsOf(img.Image)
	rect := geometry.ClampCropRect(s.Rect, size.Width, size.Height)
	cropped, err := geometry.Crop(img.Image, rect)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Image = cropped
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the pixels with the requested codec.
type EncodeStep struct {
	Registry core.Registry
	Spec     core.EncodingSpec
}

func (s *EncodeStep) Name() string { return StepEncode }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := s.Spec.Validate(); err != nil {
		return nil, apperrors.New(apperrors.CategoryPrecondition, s.Name(), err)
	}
	enc, err := core.LookupEncoder(s.Registry, s.Spec.Format)
	if err != nil {
		return nil, err
	}
	data, err := enc.Encode(ctx, img.Image, s.Spec)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Data = data
	out.Encoding = s.Spec
	return &out, nil
}

// ── Metadata ──────────────────────────────────────────────────────────────────

// MetadataStep surfaces the preserved EXIF attributes and the write time of
// the source.  Read failures leave the affected fields empty.
type MetadataStep struct {
	Files  core.FileStore
	Exif   core.ExifStore
	Logger core.Logger
}

func (s *MetadataStep) Name() string { return StepMetadata }

func (s *MetadataStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	out := *img
	out.Meta = map[string]string{}
	if mt, ok := s.Files.(core.ModTimeReader); ok {
		created, err := mt.ModTime(ctx, img.Source)
		if err != nil {
			s.Logger.Warn("pipeline.metadata.no_creation_time",
				"source", string(img.Source),
				"error", err.Error(),
			)
		} else {
			out.CreatedAt = created
		}
	}
	if s.Exif == nil {
		return &out, nil
	}
	attrs, err := s.Exif.ReadAttributes(ctx, readLocator(img))
	if err != nil {
		s.Logger.Warn("pipeline.metadata.unreadable",
			"source", string(img.Source),
			"error", err.Error(),
		)
		return &out, nil
	}
	// Pixels rotated by the orient step are upright now.
	if v, ok := attrs["Orientation"]; ok && img.Rotation != 0 && orientation.Parse(v) != orientation.Undefined {
		attrs["Orientation"] = orientation.Normalized().String()
	}
	out.Meta = attrs
	return &out, nil
}

// ── Deliver ───────────────────────────────────────────────────────────────────

// DeliverStep writes the encoded bytes to Destination.  A failed write leaves
// nothing behind.  When the source EXIF is carried over, an orientation that
// has been baked into the pixels is reset so viewers do not rotate twice.
type DeliverStep struct {
	Files        core.FileStore
	Exif         core.ExifStore
	Logger       core.Logger
	Destination  core.Locator
	PreserveExif bool
}

func (s *DeliverStep) Name() string { return StepDeliver }

func (s *DeliverStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Destination == "" {
		return img, nil
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryPrecondition, s.Name(), apperrors.ErrEmptyInput)
	}

	w, err := s.Files.OpenWrite(ctx, s.Destination)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, s.Name(), err)
	}
	if _, err := w.Write(img.Data); err != nil {
		abort(w)
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, s.Name(), err)
	}
	if err := w.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryUnwritable, s.Name(), err)
	}

	if s.Exif != nil && img.Encoding.Format == core.FormatJPEG {
		s.fixMetadata(ctx, img)
	}
	return img, nil
}

func (s *DeliverStep) fixMetadata(ctx context.Context, img *core.ImageData) {
	if s.PreserveExif {
		if err := s.Exif.CopyExif(ctx, readLocator(img), s.Destination); err != nil {
			s.Logger.Warn("pipeline.deliver.copy_exif",
				"destination", string(s.Destination),
				"error", err.Error(),
			)
			return
		}
	}
	if img.Rotation == 0 {
		return
	}
	if err := s.Exif.WriteOrientation(ctx, s.Destination, orientation.Normalized()); err != nil {
		s.Logger.Warn("pipeline.deliver.reset_orientation",
			"destination", string(s.Destination),
			"error", err.Error(),
		)
	}
}

// compile-time interface checks
var (
	_ core.Step = (*AcquireStep)(nil)
	_ core.Step = (*InspectStep)(nil)
	_ core.Step = (*OrientationStep)(nil)
	_ core.Step = (*PlanStep)(nil)
	_ core.Step = (*EditorPlanStep)(nil)
	_ core.Step = (*DecodeStep)(nil)
	_ core.Step = (*ScaleStep)(nil)
	_ core.Step = (*OrientStep)(nil)
	_ core.Step = (*DownsizeStep)(nil)
	_ core.Step = (*EditStep)(nil)
	_ core.Step = (*CropStep)(nil)
	_ core.Step = (*EncodeStep)(nil)
	_ core.Step = (*MetadataStep)(nil)
	_ core.Step = (*DeliverStep)(nil)
)
