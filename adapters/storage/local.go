// Package storage provides FileStore implementations and scratch-file cleanup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Skryldev/camera-pipeline/core"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

// TempPrefix starts every scratch file name.
const TempPrefix = "IMG_"

// timeFormat is the timestamp embedded in scratch names.
const timeFormat = "20060102_150405"

// Local resolves locators on the local filesystem.  Relative locators are
// rooted at the configured directory; absolute ones are used as given.
type Local struct {
	rootDir     string
	tempDir     string
	permissions os.FileMode
	now         func() time.Time
}

// NewLocal creates a Local store rooted at dir.  Scratch files go to tempDir,
// or dir/.tmp when tempDir is empty.
func NewLocal(dir, tempDir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if tempDir == "" {
		tempDir = filepath.Join(dir, ".tmp")
	}
	for _, d := range []string{dir, tempDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, apperrors.New(apperrors.CategoryConfig, "local.new", fmt.Errorf("mkdir %s: %w", d, err))
		}
	}
	return &Local{rootDir: dir, tempDir: tempDir, permissions: perm, now: time.Now}, nil
}

// Path returns the filesystem path for loc.
func (l *Local) Path(loc core.Locator) (string, error) {
	p := string(loc)
	if p == "" {
		return "", apperrors.New(apperrors.CategoryPrecondition, "local.path", apperrors.ErrEmptyInput)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.CategoryPrecondition, "local.path",
			fmt.Errorf("locator %q escapes the store root", loc))
	}
	return filepath.Join(l.rootDir, clean), nil
}

func (l *Local) OpenRead(ctx context.Context, loc core.Locator) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "local.open_read", err)
	}
	path, err := l.Path(loc)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryNotFound, "local.open_read", fmt.Errorf("%s: %w", loc, err))
		}
		return nil, apperrors.New(apperrors.CategoryUnreadable, "local.open_read", err)
	}
	return f, nil
}

func (l *Local) OpenWrite(ctx context.Context, loc core.Locator) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "local.open_write", err)
	}
	path, err := l.Path(loc)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.CategoryUnwritable, "local.open_write.mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUnwritable, "local.open_write", err)
	}
	return &atomicFile{f: tmp, final: path, perm: l.permissions}, nil
}

func (l *Local) CreateTemp(ctx context.Context, suffix string) (core.Locator, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryPipeline, "local.create_temp", err)
	}
	pattern := TempPrefix + l.now().Format(timeFormat) + "_*" + suffix
	f, err := os.CreateTemp(l.tempDir, pattern)
	if err != nil {
		return "", apperrors.New(apperrors.CategoryUnwritable, "local.create_temp", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", apperrors.New(apperrors.CategoryUnwritable, "local.create_temp", err)
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		abs = name
	}
	return core.Locator(abs), nil
}

func (l *Local) Delete(ctx context.Context, loc core.Locator) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "local.delete", err)
	}
	path, err := l.Path(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.New(apperrors.CategoryUnwritable, "local.delete", err)
	}
	return nil
}

// ModTime returns the modification time of loc.
func (l *Local) ModTime(ctx context.Context, loc core.Locator) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, apperrors.Wrap(apperrors.CategoryPipeline, "local.mod_time", err)
	}
	path, err := l.Path(loc)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, apperrors.New(apperrors.CategoryNotFound, "local.mod_time", fmt.Errorf("%s: %w", loc, err))
		}
		return time.Time{}, apperrors.New(apperrors.CategoryUnreadable, "local.mod_time", err)
	}
	return info.ModTime(), nil
}

// SweepTemp removes scratch files older than maxAge left behind by crashed
// invocations.  It returns how many files were removed.
func (l *Local) SweepTemp(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(l.tempDir)
	if err != nil {
		return 0, apperrors.New(apperrors.CategoryUnreadable, "local.sweep", err)
	}
	cutoff := l.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, apperrors.Wrap(apperrors.CategoryPipeline, "local.sweep", err)
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(l.tempDir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// atomicFile publishes its content at final only when Close succeeds.
type atomicFile struct {
	f     *os.File
	final string
	perm  os.FileMode
	done  bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	n, err := a.f.Write(p)
	if err != nil {
		return n, apperrors.New(apperrors.CategoryUnwritable, "local.write", err)
	}
	return n, nil
}

func (a *atomicFile) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	tmpName := a.f.Name()
	if err := a.f.Sync(); err != nil {
		a.f.Close()
		os.Remove(tmpName)
		return apperrors.New(apperrors.CategoryUnwritable, "local.write.sync", err)
	}
	if err := a.f.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.New(apperrors.CategoryUnwritable, "local.write.close", err)
	}
	if err := os.Chmod(tmpName, a.perm); err != nil {
		os.Remove(tmpName)
		return apperrors.New(apperrors.CategoryUnwritable, "local.write.chmod", err)
	}
	if err := os.Rename(tmpName, a.final); err != nil {
		os.Remove(tmpName)
		return apperrors.New(apperrors.CategoryUnwritable, "local.write.rename", err)
	}
	return nil
}

// Abort discards everything written so far.
func (a *atomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	a.f.Close()
	if err := os.Remove(a.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var _ core.ModTimeReader = (*Local)(nil)
var _ core.FileStore = (*Local)(nil)
