package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeepsBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: strip\nvariant: sk6812rgbw\ncount: 8\nspi:\n  speed_hz: 3200000\n"), 0644))

	c, err := Load(path, Default())
	require.NoError(t, err)
	assert.Equal(t, "strip", c.Driver)
	assert.Equal(t, "sk6812rgbw", c.Variant)
	assert.Equal(t, 8, c.Count)
	assert.Equal(t, 3200000, c.SPI.SpeedHz)
	assert.Equal(t, 4096, c.SPI.Capacity)
	assert.Equal(t, "spi", c.Backend)
	assert.Equal(t, 100*time.Millisecond, c.Timeout())
	assert.NoError(t, c.Validate())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"), Default())
	assert.True(t, os.IsNotExist(err))

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("count: [1\n"), 0644))
	_, err = Load(path, Default())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"driver":     func(c *Config) { c.Driver = "pwm" },
		"backend":    func(c *Config) { c.Driver, c.Backend = "strip", "usb" },
		"count":      func(c *Config) { c.Count = 0 },
		"fps":        func(c *Config) { c.FPS = -1 },
		"brightness": func(c *Config) { c.Brightness = 1.5 },
		"timeout":    func(c *Config) { c.TimeoutMs = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPatchKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: strip # on the bench\nfps: 60\nvariant: SK6812\n"), 0644))

	require.NoError(t, Patch(path, map[string]any{"fps": 10, "brightness": 0.5}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "# on the bench")
	assert.NotContains(t, string(b), "timeout_ms")
	assert.True(t, strings.Index(string(b), "driver") < strings.Index(string(b), "fps"))

	c, err := Load(path, &Config{})
	require.NoError(t, err)
	assert.Equal(t, "strip", c.Driver)
	assert.Equal(t, "SK6812", c.Variant)
	assert.Equal(t, 10, c.FPS)
	assert.Equal(t, 0.5, c.Brightness)
	assert.Zero(t, c.Count)
}

func TestPatchCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Patch(path, map[string]any{"fps": 24}))
	c, err := Load(path, &Config{})
	require.NoError(t, err)
	assert.Equal(t, &Config{FPS: 24}, c)

	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0644))
	assert.Error(t, Patch(path, map[string]any{"fps": 24}))
}
