package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "127.0.0.1:42069", c.ReplAddr)
	assert.Equal(t, 50*time.Millisecond, c.DynamicPeriod)
	assert.True(t, c.IsContinuous())
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
shader_path: demo.wgsl
refresh_rate: 30Hz
dynamic_period: 100ms
screen:
  width: 250
continuous: false
`), 0o644))

	file, err := Load(path)
	require.NoError(t, err)
	c := Default().Overlay(file)

	assert.Equal(t, "demo.wgsl", c.ShaderPath)
	assert.Equal(t, "127.0.0.1:42069", c.ReplAddr)
	assert.Equal(t, 100*time.Millisecond, c.DynamicPeriod)
	assert.Equal(t, uint32(250), c.Screen.Width)
	assert.Equal(t, uint32(720), c.Screen.Height)
	assert.False(t, c.IsContinuous())

	d, err := c.FrameInterval()
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Second/30), float64(d), float64(time.Microsecond))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	want := Default()
	require.NoError(t, Save(path, &want))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestValidateRejects(t *testing.T) {
	c := Default()
	c.RefreshRate = "fast"
	c.Screen.Width = 0
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh_rate")
	assert.Contains(t, err.Error(), "screen size")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
