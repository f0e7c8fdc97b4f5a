package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Desarso/shopbot/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mod := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mod, mod))
	return path
}

func TestSweepUploads(t *testing.T) {
	dir := t.TempDir()
	old := writeAged(t, dir, "old.png", 48*time.Hour)
	fresh := writeAged(t, dir, "fresh.png", time.Minute)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	removed, err := SweepUploads(dir, 24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "nested"))
}

func TestSweepUploads_MissingDir(t *testing.T) {
	removed, err := SweepUploads(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestUploadJanitor(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "a.jpg", 2*time.Hour)
	writeAged(t, dir, "b.jpg", 3*time.Hour)
	reg := metrics.NewRegistry()

	j, err := NewUploadJanitor(dir, time.Hour, "@every 1h", reg)
	require.NoError(t, err)
	j.Sweep()
	assert.Equal(t, int64(2), reg.Value(metrics.UploadsSwept, nil))

	j.Start()
	assert.False(t, j.Next().IsZero())
	<-j.Stop().Done()
}

func TestUploadJanitor_InvalidSpec(t *testing.T) {
	_, err := NewUploadJanitor(t.TempDir(), time.Hour, "every now and then", nil)
	assert.Error(t, err)
}
