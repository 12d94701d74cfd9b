// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ZSC714725/audiosegmenter/internal/errors"
)

// MediaInfo is what ffprobe reports about an input file. SizeBytes and
// BitrateBps are zero when unknown.
type MediaInfo struct {
	Duration   float64 `json:"duration_seconds"`
	SizeBytes  uint64  `json:"size_bytes"`
	BitrateBps uint64  `json:"bitrate_bps"`
}

// ProbeArgs returns the ffprobe arguments used to inspect path.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "format=duration,size,bit_rate",
		"-of", "json",
		path,
	}
}

// Probe runs ffprobe once on path, bounded by the configured probe timeout.
func (f *ffmpeg) Probe(ctx context.Context, path string) (MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.probeBinary, ProbeArgs(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	f.logger.Debug("probing %s", path)

	err := cmd.Run()
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return MediaInfo{}, errors.Wrap(errors.KindProbeTimeout, ctx.Err(), "ffprobe did not answer within %s", f.probeTimeout)
	case ctx.Err() != nil:
		return MediaInfo{}, errors.Wrap(errors.KindToolFailed, ctx.Err(), "probe aborted")
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return MediaInfo{}, errors.Wrap(errors.KindToolNotFound, err, "ffprobe not found")
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return MediaInfo{}, errors.Newf(errors.KindToolFailed, "ffprobe exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return MediaInfo{}, errors.Wrap(errors.KindToolFailed, err, "run ffprobe")
	}

	return parseProbeOutput(stdout.Bytes())
}

type probeOutput struct {
	Format *struct {
		Duration interface{} `json:"duration"`
		Size     interface{} `json:"size"`
		BitRate  interface{} `json:"bit_rate"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return MediaInfo{}, errors.Wrap(errors.KindMalformedOutput, err, "ffprobe output is not JSON")
	}
	if out.Format == nil {
		return MediaInfo{}, errors.Newf(errors.KindMalformedOutput, "ffprobe output has no format section")
	}

	duration, ok := number(out.Format.Duration)
	if !ok || duration < 0 {
		return MediaInfo{}, errors.Newf(errors.KindMalformedOutput, "ffprobe output has no numeric format.duration")
	}

	info := MediaInfo{Duration: duration}
	if size, ok := number(out.Format.Size); ok && size > 0 {
		info.SizeBytes = uint64(size)
	}
	if rate, ok := number(out.Format.BitRate); ok && rate > 0 {
		info.BitrateBps = uint64(rate)
	}
	return info, nil
}

// ffprobe 的 JSON 里数值通常是字符串
func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
