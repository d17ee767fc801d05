package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 7, 9, 5, 2, 0, time.Local)
	assert.Equal(t, "recorded_data_20240307_090502.txt", FileName(DefaultPrefix, ts))
}

func TestTimestamp(t *testing.T) {
	ts := time.Unix(1718000000, 123456000)
	assert.Equal(t, "1718000000.123456", Timestamp(ts))
}

func TestRecorder_ToggleTwice(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "")
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

	on, err := r.Toggle(now)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, r.Recording())
	assert.Equal(t, filepath.Join(dir, "recorded_data_20240102_030405.txt"), r.Path())

	f := r.f
	require.NotNil(t, f)

	on, err = r.Toggle(now)
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, r.Recording())

	// The handle must be closed.
	_, err = f.Write([]byte("x"))
	assert.Error(t, err)
	assert.ErrorIs(t, r.Record(now, "1.0"), ErrNotRecording)
}

func TestRecorder_Record(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "run")

	require.NoError(t, r.Start(time.Now()))
	require.NoError(t, r.Record(time.Unix(100, 500000000), "12.0 3.0"))
	require.NoError(t, r.Record(time.Unix(101, 0), "13.0"))

	// Lines are flushed as they are written.
	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.Equal(t, "100.500000 - 12.0 3.0\n101.000000 - 13.0\n", string(data))

	require.NoError(t, r.Stop())
	assert.True(t, strings.HasPrefix(filepath.Base(r.Path()), "run_"))
}

func TestRecorder_StartTwiceKeepsFile(t *testing.T) {
	r := New(t.TempDir(), "")
	now := time.Now()

	require.NoError(t, r.Start(now))
	path := r.Path()
	require.NoError(t, r.Start(now.Add(time.Hour)))
	assert.Equal(t, path, r.Path())
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
}

func TestRecorder_CreateFailure(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "missing", "dir"), "")

	on, err := r.Toggle(time.Now())
	assert.Error(t, err)
	assert.False(t, on)
	assert.False(t, r.Recording())
}

func TestRecorder_SetLocation(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	r := New(first, "a")
	now := time.Now()

	require.NoError(t, r.Start(now))
	r.SetLocation(second, "b")
	assert.Equal(t, first, filepath.Dir(r.Path()))
	require.NoError(t, r.Stop())

	require.NoError(t, r.Start(now))
	assert.Equal(t, filepath.Join(second, FileName("b", now)), r.Path())
	require.NoError(t, r.Stop())
}
