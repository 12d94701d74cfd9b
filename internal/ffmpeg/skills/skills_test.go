// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package skills

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const versionOutput = `ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers
built with gcc 13 (Ubuntu 13.2.0-23ubuntu3)
configuration: --prefix=/usr --enable-libmp3lame
libavutil      58. 29.100 / 58. 29.100
libavcodec     60. 31.102 / 60. 31.102
`

const codecsOutput = `Codecs:
 D..... = Decoding supported
 -------
 DEA.L. mp3                  MP3 (MPEG audio layer 3) (decoders: mp3float mp3) (encoders: libmp3lame libshine)
 DEA.L. aac                  AAC (Advanced Audio Coding) (decoders: aac aac_fixed)
 DEV.LS h264                 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (encoders: libx264)
`

const formatsOutput = `File formats:
 D. = Demuxing supported
 .E = Muxing supported
 --
 DE mp3             MP3 (MPEG audio layer 3)
 D  mov,mp4,m4a,3gp,3g2,mj2 QuickTime / MOV
  E segment         segment
`

func TestParseVersion(t *testing.T) {
	f := parseVersion([]byte(versionOutput))

	assert.Equal(t, "6.1.1", f.Version)
	assert.Equal(t, "gcc 13 (Ubuntu 13.2.0-23ubuntu3)", f.Compiler)
	assert.Equal(t, "--prefix=/usr --enable-libmp3lame", f.Configuration)
	require.Len(t, f.Libraries, 2)
	assert.Equal(t, "libavcodec", f.Libraries[1].Name)
}

func TestParseVersionWithoutPatch(t *testing.T) {
	f := parseVersion([]byte("ffmpeg version 7.0 Copyright"))
	assert.Equal(t, "7.0.0", f.Version)
}

func TestParseCodecs(t *testing.T) {
	c := parseCodecs([]byte(codecsOutput))

	require.Len(t, c.Audio, 2)
	assert.Equal(t, "mp3", c.Audio[0].Id)
	assert.Equal(t, []string{"libmp3lame", "libshine"}, c.Audio[0].Encoders)
	assert.Equal(t, []string{"mp3float", "mp3"}, c.Audio[0].Decoders)
	assert.Equal(t, []string{"aac"}, c.Audio[1].Encoders)
	require.Len(t, c.Video, 1)
}

func TestParseFormats(t *testing.T) {
	f := parseFormats([]byte(formatsOutput))

	require.Len(t, f.Demuxers, 2)
	assert.Equal(t, "mov", f.Demuxers[1].Id)
	require.Len(t, f.Muxers, 2)
	assert.Equal(t, "mp3", f.Muxers[0].Id)
	assert.Equal(t, "segment", f.Muxers[1].Id)
}

func TestSupportsSegmentedMP3(t *testing.T) {
	s := Skills{
		Codecs:  parseCodecs([]byte(codecsOutput)),
		Formats: parseFormats([]byte(formatsOutput)),
	}
	assert.NoError(t, s.SupportsSegmentedMP3())

	s.Formats.Muxers = s.Formats.Muxers[:1]
	err := s.SupportsSegmentedMP3()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "muxer segment")
}

func TestNewFromBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	dir := t.TempDir()
	for name, content := range map[string]string{"version.txt": versionOutput, "codecs.txt": codecsOutput, "formats.txt": formatsOutput} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	script := `#!/bin/sh
for last; do :; done
case "$last" in
  -version) cat "` + dir + `/version.txt" ;;
  -codecs) cat "` + dir + `/codecs.txt" ;;
  -formats) cat "` + dir + `/formats.txt" ;;
esac
`
	binary := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))

	s, err := New(binary)
	require.NoError(t, err)
	assert.Equal(t, "6.1.1", s.FFmpeg.Version)
	assert.NoError(t, s.SupportsSegmentedMP3())
}

func TestNewInvalidBinary(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
