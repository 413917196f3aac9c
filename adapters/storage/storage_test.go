package storage_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/camera-pipeline/adapters/storage"
	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

func newLocal(t *testing.T) (*storage.Local, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := storage.NewLocal(dir, "", 0)
	require.NoError(t, err)
	return l, dir
}

func write(t *testing.T, fs core.FileStore, loc core.Locator, data []byte) {
	t.Helper()
	w, err := fs.OpenWrite(context.Background(), loc)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func read(t *testing.T, fs core.FileStore, loc core.Locator) []byte {
	t.Helper()
	r, err := fs.OpenRead(context.Background(), loc)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestLocal_WriteRead(t *testing.T) {
	l, dir := newLocal(t)
	write(t, l, "photos/a.jpg", []byte("hello"))

	assert.Equal(t, []byte("hello"), read(t, l, "photos/a.jpg"))
	_, err := os.Stat(filepath.Join(dir, "photos", "a.jpg"))
	assert.NoError(t, err)
}

func TestLocal_WriteIsInvisibleUntilClose(t *testing.T) {
	l, dir := newLocal(t)
	w, err := l.OpenWrite(context.Background(), "out.jpg")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "out.jpg"))
	assert.True(t, os.IsNotExist(err))

	aborter, ok := w.(interface{ Abort() error })
	require.True(t, ok)
	require.NoError(t, aborter.Abort())

	_, err = os.Stat(filepath.Join(dir, "out.jpg"))
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".write-"), "temp writer file left behind")
	}
}

func TestLocal_OpenReadMissing(t *testing.T) {
	l, _ := newLocal(t)
	_, err := l.OpenRead(context.Background(), "nope.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLocal_RejectsEscapingLocator(t *testing.T) {
	l, _ := newLocal(t)
	_, err := l.OpenRead(context.Background(), "../outside.jpg")
	assert.ErrorIs(t, err, apperrors.ErrPreconditionViolation)
	_, err = l.OpenRead(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrPreconditionViolation)
}

func TestLocal_CreateTempIsUnique(t *testing.T) {
	l, _ := newLocal(t)
	const n = 16
	locs := make([]core.Locator, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc, err := l.CreateTemp(context.Background(), ".jpg")
			assert.NoError(t, err)
			locs[i] = loc
		}(i)
	}
	wg.Wait()

	seen := map[core.Locator]bool{}
	for _, loc := range locs {
		assert.False(t, seen[loc], "duplicate temp locator %s", loc)
		seen[loc] = true
		base := filepath.Base(string(loc))
		assert.True(t, strings.HasPrefix(base, storage.TempPrefix), base)
		assert.True(t, strings.HasSuffix(base, ".jpg"), base)
	}
}

func TestLocal_DeleteMissingIsNotAnError(t *testing.T) {
	l, _ := newLocal(t)
	assert.NoError(t, l.Delete(context.Background(), "ghost.jpg"))

	write(t, l, "x.png", []byte{1})
	require.NoError(t, l.Delete(context.Background(), "x.png"))
	_, err := l.OpenRead(context.Background(), "x.png")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLocal_ModTime(t *testing.T) {
	l, dir := newLocal(t)
	write(t, l, "a.jpg", []byte("abc"))
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.jpg"), when, when))

	got, err := l.ModTime(context.Background(), "a.jpg")
	require.NoError(t, err)
	assert.True(t, when.Equal(got))

	_, err = l.ModTime(context.Background(), "missing.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLocal_SweepTemp(t *testing.T) {
	l, dir := newLocal(t)
	stale, err := l.CreateTemp(context.Background(), ".jpg")
	require.NoError(t, err)
	fresh, err := l.CreateTemp(context.Background(), ".jpg")
	require.NoError(t, err)
	other := filepath.Join(dir, ".tmp", "keep.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(string(stale), old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	var sweeper storage.Sweeper = l
	removed, err := sweeper.SweepTemp(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(string(stale))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(string(fresh))
	assert.NoError(t, err)
	_, err = os.Stat(other)
	assert.NoError(t, err)
}

func TestCleanup(t *testing.T) {
	l, _ := newLocal(t)
	a, err := l.CreateTemp(context.Background(), ".jpg")
	require.NoError(t, err)
	b, err := l.CreateTemp(context.Background(), ".jpg")
	require.NoError(t, err)

	c := storage.NewCleanup(l)
	c.Add(a)
	c.Add("")
	c.Add(b)
	require.NoError(t, c.Execute(context.Background()))
	require.NoError(t, c.Execute(context.Background()))

	for _, loc := range []core.Locator{a, b} {
		_, err := os.Stat(string(loc))
		assert.True(t, os.IsNotExist(err))
	}
}

// fakeS3 is an in-memory S3Client.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, bucket, key string, body io.Reader, meta map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[bucket+"/"+key] = data
	f.meta[bucket+"/"+key] = meta
	f.mu.Unlock()
	return nil
}

func (f *fakeS3) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(f.objects[bucket+"/"+key])), nil
}

func (f *fakeS3) DeleteObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	delete(f.objects, bucket+"/"+key)
	f.mu.Unlock()
	return nil
}

func (f *fakeS3) HeadObject(_ context.Context, bucket, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok, nil
}

func TestS3_FileStore(t *testing.T) {
	client := newFakeS3()
	s, err := storage.NewS3(client, "photos", "")
	require.NoError(t, err)

	write(t, s, "2024/a.jpg", []byte("abc"))
	assert.Equal(t, []byte("abc"), read(t, s, "2024/a.jpg"))
	assert.Contains(t, client.objects, "photos/2024/a.jpg")

	write(t, s, "archive:b.jpg", []byte("z"))
	assert.Contains(t, client.objects, "archive/b.jpg")

	_, err = s.OpenRead(context.Background(), "missing.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	tmp, err := s.CreateTemp(context.Background(), ".png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(tmp), "tmp/"+storage.TempPrefix))
	assert.True(t, strings.HasSuffix(string(tmp), ".png"))

	require.NoError(t, s.Delete(context.Background(), "2024/a.jpg"))
	require.NoError(t, s.Delete(context.Background(), "2024/a.jpg"))
	assert.NotContains(t, client.objects, "photos/2024/a.jpg")
}

func TestS3_ContentType(t *testing.T) {
	client := newFakeS3()
	s, err := storage.NewS3(client, "photos", "")
	require.NoError(t, err)

	write(t, s, "a.png", []byte("\x89PNG\r\n\x1a\n0000"))
	write(t, s, "b.bin", []byte("abc"))
	assert.Equal(t, "image/png", client.meta["photos/a.png"]["content-type"])
	assert.Equal(t, "application/octet-stream", client.meta["photos/b.bin"]["content-type"])
	assert.NotEmpty(t, client.meta["photos/a.png"]["uploaded-at"])
}

func TestS3_AbortSkipsUpload(t *testing.T) {
	client := newFakeS3()
	s, err := storage.NewS3(client, "photos", "")
	require.NoError(t, err)

	w, err := s.OpenWrite(context.Background(), "x.jpg")
	require.NoError(t, err)
	_, _ = w.Write([]byte("partial"))
	require.NoError(t, w.(interface{ Abort() error }).Abort())
	require.NoError(t, w.Close())
	assert.Empty(t, client.objects)
}

func TestNewS3_NilClient(t *testing.T) {
	_, err := storage.NewS3(nil, "photos", "")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfig))
}
