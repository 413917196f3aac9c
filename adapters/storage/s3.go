package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
	"github.com/Skryldev/camera-pipeline/utils"
)

// S3Client defines the minimal object-store interface used by the adapter.
// This allows injection of real aws-sdk-go-v2 clients or test doubles.
type S3Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, meta map[string]string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	HeadObject(ctx context.Context, bucket, key string) (bool, error)
}

// S3 is a FileStore backed by S3 or an S3-compatible store.  Locators are
// object keys, optionally written as "bucket:key" to leave the default bucket.
type S3 struct {
	client     S3Client
	bucket     string
	tempPrefix string
	now        func() time.Time
}

// NewS3 creates an S3 adapter.  client must not be nil.
func NewS3(client S3Client, defaultBucket, tempPrefix string) (*S3, error) {
	if client == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "s3.new", fmt.Errorf("client must not be nil"))
	}
	if tempPrefix == "" {
		tempPrefix = "tmp/"
	}
	return &S3{client: client, bucket: defaultBucket, tempPrefix: tempPrefix, now: time.Now}, nil
}

func (s *S3) split(loc core.Locator) (bucket, key string, err error) {
	str := string(loc)
	if b, k, ok := strings.Cut(str, ":"); ok && b != "" {
		bucket, key = b, k
	} else {
		bucket, key = s.bucket, str
	}
	if bucket == "" || key == "" {
		return "", "", apperrors.New(apperrors.CategoryPrecondition, "s3.locator",
			fmt.Errorf("locator %q has no bucket or key", loc))
	}
	return bucket, key, nil
}

func (s *S3) OpenRead(ctx context.Context, loc core.Locator) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "s3.open_read", err)
	}
	bucket, key, err := s.split(loc)
	if err != nil {
		return nil, err
	}
	ok, err := s.client.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUnreadable, "s3.head", err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.CategoryNotFound, "s3.open_read", fmt.Errorf("%s/%s", bucket, key))
	}
	rc, err := s.client.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUnreadable, "s3.get", err)
	}
	return rc, nil
}

// OpenWrite buffers the object and uploads it on Close, so a partially
// written object never becomes visible.
func (s *S3) OpenWrite(ctx context.Context, loc core.Locator) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "s3.open_write", err)
	}
	bucket, key, err := s.split(loc)
	if err != nil {
		return nil, err
	}
	return &s3Upload{ctx: ctx, s: s, bucket: bucket, key: key}, nil
}

func (s *S3) CreateTemp(ctx context.Context, suffix string) (core.Locator, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryPipeline, "s3.create_temp", err)
	}
	var rnd [6]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		return "", apperrors.New(apperrors.CategoryUnwritable, "s3.create_temp", err)
	}
	key := s.tempPrefix + TempPrefix + s.now().Format(timeFormat) + "_" + hex.EncodeToString(rnd[:]) + suffix
	return core.Locator(key), nil
}

func (s *S3) Delete(ctx context.Context, loc core.Locator) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "s3.delete", err)
	}
	bucket, key, err := s.split(loc)
	if err != nil {
		return err
	}
	ok, err := s.client.HeadObject(ctx, bucket, key)
	if err != nil {
		return apperrors.New(apperrors.CategoryUnwritable, "s3.head", err)
	}
	if !ok {
		return nil
	}
	if err := s.client.DeleteObject(ctx, bucket, key); err != nil {
		return apperrors.New(apperrors.CategoryUnwritable, "s3.delete", err)
	}
	return nil
}

type s3Upload struct {
	ctx         context.Context //nolint:containedctx // upload happens on Close
	s           *S3
	bucket, key string
	buf         bytes.Buffer
	done        bool
}

func (u *s3Upload) Write(p []byte) (int, error) { return u.buf.Write(p) }

func (u *s3Upload) Close() error {
	if u.done {
		return nil
	}
	u.done = true
	data := u.buf.Bytes()
	meta := map[string]string{
		"uploaded-at":  u.s.now().UTC().Format(time.RFC3339),
		"content-type": core.Format(utils.DetectFormat(data)).ContentType(),
	}
	if err := u.s.client.PutObject(u.ctx, u.bucket, u.key, utils.BytesReader(data), meta); err != nil {
		return apperrors.New(apperrors.CategoryUnwritable, "s3.put", err)
	}
	return nil
}

// Abort drops the buffered object without uploading.
func (u *s3Upload) Abort() error {
	u.done = true
	u.buf.Reset()
	return nil
}

var _ core.FileStore = (*S3)(nil)
