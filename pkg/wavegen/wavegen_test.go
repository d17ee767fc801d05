package wavegen

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufCloser struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *bufCloser) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *bufCloser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *bufCloser) commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSuffix(b.buf.String(), "\r\n"), "\r\n")
}

func TestGenerator_CommandFormat(t *testing.T) {
	w := &bufCloser{}
	g := New(w, time.Microsecond)
	ctx := context.Background()

	require.NoError(t, g.SetFrequency(ctx, 1))
	require.NoError(t, g.SetStatic(ctx, 18))
	require.NoError(t, g.EnableOutput(ctx, true))
	require.NoError(t, g.SetWaveform(ctx, 3))
	require.NoError(t, g.SetOffset(ctx, 950))
	require.NoError(t, g.SetRamp(ctx, 1049))

	assert.Equal(t, []string{
		":w13=1,0.",
		":w14=18,0.",
		":w10=1,0.",
		":w12=3.",
		":w11=3.",
		":w18=950.",
		":w17=1049.",
	}, w.commands())
	assert.True(t, strings.HasSuffix(w.buf.String(), ".\r\n"))
}

func TestGenerator_Pacing(t *testing.T) {
	w := &bufCloser{}
	g := New(w, 5*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, g.SetRamp(ctx, int64(i)))
	}
	// The first command goes out immediately, the other four wait.
	assert.GreaterOrEqual(t, time.Since(start), 18*time.Millisecond)
}

func TestGenerator_CancelledWait(t *testing.T) {
	w := &bufCloser{}
	g := New(w, time.Hour)
	require.NoError(t, g.SetRamp(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, g.SetRamp(ctx, 2))
	assert.Equal(t, []string{":w17=1."}, w.commands())
}

func TestGenerator_Close(t *testing.T) {
	w := &bufCloser{}
	g := New(w, time.Microsecond)

	require.NoError(t, g.EnableOutput(context.Background(), true))
	require.NoError(t, g.Close())

	assert.True(t, w.closed)
	assert.Equal(t, []string{":w10=1,0.", ":w10=0,0."}, w.commands())

	assert.ErrorIs(t, g.SetRamp(context.Background(), 1), ErrNotConnected)
	assert.NoError(t, g.Close())
}

func TestGenerator_PlainWriter(t *testing.T) {
	var buf bytes.Buffer
	g := New(&buf, 0)

	require.NoError(t, g.Set(context.Background(), RegRamp, 5))
	require.NoError(t, g.Close())
	assert.Equal(t, ":w17=5.\r\n:w10=0,0.\r\n", buf.String())
}

func TestOpen_MissingPort(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ttyGen")

	start := time.Now()
	g, err := Open(name, 0, 0, 5*time.Second)
	require.Error(t, err)
	assert.Nil(t, g)
	assert.Contains(t, err.Error(), name)
	assert.Less(t, time.Since(start), time.Second)
}
