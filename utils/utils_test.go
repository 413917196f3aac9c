package utils_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/camera-pipeline/utils"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "jpeg", utils.DetectFormat([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}))
	assert.Equal(t, "png", utils.DetectFormat([]byte("\x89PNG\r\n\x1a\n")))
	assert.Equal(t, "unknown", utils.DetectFormat([]byte("GIF89a......")))
	assert.Equal(t, "unknown", utils.DetectFormat([]byte{0xFF}))
}

func TestDrainReader(t *testing.T) {
	payload := strings.Repeat("x", 100_000)
	buf, err := utils.DrainReader(context.Background(), strings.NewReader(payload), 4096)
	require.NoError(t, err)
	defer utils.ReleaseBuffer(buf)
	assert.Equal(t, payload, buf.String())
}

func TestCopyContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	_, err := utils.CopyContext(ctx, &out, strings.NewReader("abc"), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}

func TestContextReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &utils.ContextReader{Ctx: ctx, R: strings.NewReader("abcdef")}
	p := make([]byte, 3)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cancel()
	_, err = r.Read(p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimitedReader(t *testing.T) {
	exact := &utils.LimitedReader{R: strings.NewReader("12345"), Max: 5}
	got, err := io.ReadAll(exact)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(got))

	over := &utils.LimitedReader{R: strings.NewReader("123456"), Max: 5}
	_, err = io.ReadAll(over)
	assert.ErrorIs(t, err, utils.ErrTooLarge)

	unlimited := &utils.LimitedReader{R: strings.NewReader("123456")}
	got, err = io.ReadAll(unlimited)
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestCloneBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	dst := utils.CloneBytes(src)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, dst)
}
