// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Bind)
	assert.Equal(t, "ffprobe", cfg.FFmpeg.ProbePath)
	assert.Equal(t, 600.0, cfg.Conversion.SegmentSeconds)
	assert.Equal(t, 15*time.Second, cfg.Conversion.ProbeTimeout)
	assert.Equal(t, 5*time.Second, cfg.Conversion.StopGrace)
	assert.Equal(t, 30*time.Second, cfg.Conversion.ExitTimeout)
}

func TestLoadYAMLFillsEmptyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  bind: ":9090"
ffmpeg:
  path: ""
  input_block: ["^/proc/"]
conversion:
  segment_seconds: 300
  exit_timeout: 10s
  watch_output: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Bind)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.Path)
	assert.Equal(t, []string{"^/proc/"}, cfg.FFmpeg.InputBlock)
	assert.Equal(t, 300.0, cfg.Conversion.SegmentSeconds)
	assert.Equal(t, 10*time.Second, cfg.Conversion.ExitTimeout)
	assert.Equal(t, 15*time.Second, cfg.Conversion.ProbeTimeout)
	assert.True(t, cfg.Conversion.WatchOutput)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SEGMENTER_FFMPEG", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("SEGMENTER_SEGMENT_SECONDS", "120")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg.Path)
	assert.Equal(t, 120.0, cfg.Conversion.SegmentSeconds)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
