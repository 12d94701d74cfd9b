// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package conversion

import (
	"fmt"
	"math"
	"time"

	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg"
)

// Phase of a conversion run
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseProbing   Phase = "probing"
	PhaseRunning   Phase = "running"
	PhaseStopping  Phase = "stopping"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Active reports whether a run in this phase blocks a new Start.
func (p Phase) Active() bool {
	return p == PhaseProbing || p == PhaseRunning || p == PhaseStopping
}

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Progress is a snapshot of a run for rendering.
type Progress struct {
	RunID           string        `json:"run_id"`
	Phase           Phase         `json:"phase"`
	InputPath       string        `json:"input_path"`
	OutputDir       string        `json:"output_dir"`
	SegmentSeconds  float64       `json:"segment_seconds"`
	TotalDuration   float64       `json:"total_duration_seconds"`
	MediaTime       float64       `json:"media_time_seconds"`
	Fraction        float64       `json:"fraction"`
	CurrentSegment  int           `json:"current_segment"`
	TotalSegments   int           `json:"total_segments"`
	StartedAt       time.Time     `json:"started_at"`
	Elapsed         time.Duration `json:"elapsed"`
	Speed           float64       `json:"speed"`
	ETA             time.Duration `json:"eta"`
	ETAKnown        bool          `json:"eta_known"`
	CancelRequested bool          `json:"cancel_requested"`
}

// TotalSegments is ceil(total / segment), or 0 when either is unknown.
func TotalSegments(total, segment float64) int {
	if total <= 0 || segment <= 0 {
		return 0
	}
	return int(math.Ceil(total / segment))
}

// Fraction is media / total clamped to [0, 1], or 0 when total is unknown.
func Fraction(media, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return clamp(media/total, 0, 1)
}

// SegmentIndex is the zero-based index of the segment being written,
// never above totalSegments.
func SegmentIndex(media, segment float64, totalSegments int) int {
	if segment <= 0 || media <= 0 {
		return 0
	}
	idx := int(math.Floor(media / segment))
	if idx > totalSegments {
		return max(totalSegments, 0)
	}
	return idx
}

// Speed is media seconds converted per wall-clock second.
func Speed(media float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return media / elapsed.Seconds()
}

// ETA extrapolates the remaining wall time. It is only known while
// 0 < fraction < 1.
func ETA(fraction float64, elapsed time.Duration) (time.Duration, bool) {
	if fraction <= 0 || fraction >= 1 {
		return 0, false
	}
	return time.Duration((1 - fraction) * float64(elapsed) / fraction), true
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Preview summarizes a probed input before it is split.
type Preview struct {
	MediaInfo     ffmpeg.MediaInfo `json:"media_info"`
	Duration      string           `json:"duration"`
	SizeMB        float64          `json:"size_mb"`
	Bitrate       string           `json:"bitrate"`
	TotalSegments int              `json:"total_segments"`
}

// NewPreview describes info as it would be split into segment-second pieces.
func NewPreview(info ffmpeg.MediaInfo, segment float64) Preview {
	p := Preview{
		MediaInfo:     info,
		Duration:      FormatSeconds(info.Duration),
		SizeMB:        float64(info.SizeBytes) / (1024 * 1024),
		Bitrate:       "unknown",
		TotalSegments: TotalSegments(info.Duration, segment),
	}
	if info.BitrateBps > 0 {
		p.Bitrate = fmt.Sprintf("%d kbps", info.BitrateBps/1000)
	}
	return p
}

// FormatSeconds renders s as H:MM:SS.
func FormatSeconds(s float64) string {
	if s < 0 || math.IsNaN(s) {
		s = 0
	}
	total := int64(s)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
}
