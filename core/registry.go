package core

import (
	"fmt"
	"sync"

	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

// DefaultRegistry is a thread-safe implementation of Registry.
type DefaultRegistry struct {
	mu       sync.RWMutex
	decoders map[Format]Decoder
	encoders map[Format]Encoder
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		decoders: make(map[Format]Decoder),
		encoders: make(map[Format]Encoder),
	}
}

func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	r.decoders[f] = d
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	r.encoders[f] = e
	r.mu.Unlock()
}

func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	d, ok := r.decoders[f]
	r.mu.RUnlock()
	return d, ok
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	e, ok := r.encoders[f]
	r.mu.RUnlock()
	return e, ok
}

// LookupDecoder resolves the decoder for f or returns an unreadable-image
// error naming the format.
func LookupDecoder(reg Registry, f Format) (Decoder, error) {
	if d, ok := reg.DecoderFor(f); ok && d.CanDecode(f) {
		return d, nil
	}
	return nil, apperrors.New(apperrors.CategoryUnreadable, "registry.decoder",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, f))
}

// LookupEncoder resolves the encoder for f or returns a precondition error.
func LookupEncoder(reg Registry, f Format) (Encoder, error) {
	if e, ok := reg.EncoderFor(f); ok && e.CanEncode(f) {
		return e, nil
	}
	return nil, apperrors.New(apperrors.CategoryPrecondition, "registry.encoder",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, f))
}
