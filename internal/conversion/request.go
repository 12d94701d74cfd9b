// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package conversion

import (
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ZSC714725/audiosegmenter/internal/errors"
)

// Request describes one split of an input file into MP3 segments.
// An empty OutputDir means the directory of the input file.
type Request struct {
	InputPath      string  `json:"input_path"`
	OutputDir      string  `json:"output_dir"`
	SegmentSeconds float64 `json:"segment_seconds"`
}

// validate checks the request and creates the output directory. The
// returned request has absolute paths and the output directory filled in.
func (r Request) validate(allowed func(string) bool) (Request, error) {
	if strings.TrimSpace(r.InputPath) == "" {
		return r, errors.Newf(errors.KindInvalidRequest, "input path is required")
	}
	if math.IsNaN(r.SegmentSeconds) || math.IsInf(r.SegmentSeconds, 0) || r.SegmentSeconds <= 0 {
		return r, errors.Newf(errors.KindInvalidRequest, "segment duration must be positive, got %v", r.SegmentSeconds)
	}

	input, err := filepath.Abs(r.InputPath)
	if err != nil {
		return r, errors.Wrap(errors.KindInvalidRequest, err, "resolve input path")
	}
	if allowed != nil && !allowed(input) {
		return r, errors.Newf(errors.KindInvalidRequest, "input %s is not allowed", input)
	}

	fi, err := os.Stat(input)
	if err != nil {
		return r, errors.Wrap(errors.KindInvalidRequest, err, "input %s", input)
	}
	if !fi.Mode().IsRegular() {
		return r, errors.Newf(errors.KindInvalidRequest, "input %s is not a regular file", input)
	}
	f, err := os.Open(input)
	if err != nil {
		return r, errors.Wrap(errors.KindInvalidRequest, err, "input %s is not readable", input)
	}
	f.Close()

	output := r.OutputDir
	if strings.TrimSpace(output) == "" {
		output = filepath.Dir(input)
	}
	output, err = filepath.Abs(output)
	if err != nil {
		return r, errors.Wrap(errors.KindInvalidRequest, err, "resolve output directory")
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return r, errors.Wrap(errors.KindInvalidRequest, err, "create output directory %s", output)
	}

	return Request{InputPath: input, OutputDir: output, SegmentSeconds: r.SegmentSeconds}, nil
}

var reUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeBaseName turns the file name of path, without its extension,
// into a name that is safe inside the segment output pattern.
func SanitizeBaseName(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	safe := reUnsafe.ReplaceAllString(stem, "_")
	// % 是 segment 输出模板的格式符
	safe = strings.ReplaceAll(safe, "%", "_")
	if safe == "" || safe == "." || safe == ".." {
		return "audio"
	}
	return safe
}

// SegmentPattern is the ffmpeg output template for a sanitized base name.
func SegmentPattern(outputDir, safe string) string {
	return filepath.Join(outputDir, "%03d_"+safe+".mp3")
}

// BuildArgs returns the ffmpeg arguments that split input into MP3
// segments of the given length.
func BuildArgs(input, outputDir, safe string, segmentSeconds float64) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "info",
		"-i", input,
		"-vn",
		"-map", "0:a",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		"-threads", "0",
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(segmentSeconds, 'f', -1, 64),
		"-segment_format", "mp3",
		"-reset_timestamps", "1",
		"-progress", "pipe:1",
		"-nostats",
		"-y",
		SegmentPattern(outputDir, safe),
	}
}
