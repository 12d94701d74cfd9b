// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package api

import (
	"github.com/ZSC714725/audiosegmenter/internal/conversion"
	"github.com/ZSC714725/audiosegmenter/internal/process"
)

// ProbeRequest for POST /probe
type ProbeRequest struct {
	InputPath      string  `json:"input_path" binding:"required"`
	SegmentSeconds float64 `json:"segment_seconds"`
}

// RunRequest for POST /run
type RunRequest struct {
	InputPath      string  `json:"input_path" binding:"required"`
	OutputDir      string  `json:"output_dir"`
	SegmentSeconds float64 `json:"segment_seconds"`
}

// RunResponse is returned once a run is started
type RunResponse struct {
	RunID string              `json:"run_id"`
	State conversion.Progress `json:"state"`
}

// CancelResponse for DELETE /run
type CancelResponse struct {
	Cancelled bool             `json:"cancelled"`
	Phase     conversion.Phase `json:"phase"`
}

// RunState for GET /run/state
type RunState struct {
	Progress conversion.Progress `json:"progress"`
	Worker   *process.Status     `json:"worker,omitempty"`
}

// RunReport for GET /run/report
type RunReport struct {
	RunID string      `json:"run_id"`
	Log   [][2]string `json:"log"`
}

// OutcomeResponse for GET /run/outcome
type OutcomeResponse struct {
	Outcome conversion.Outcome `json:"outcome"`
	Preview []conversion.File  `json:"preview"`
	More    int                `json:"more"`
	Summary string             `json:"summary"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}
