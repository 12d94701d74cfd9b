// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg/skills"
)

// SkillsResponse for API
type SkillsResponse struct {
	skills.Skills
	SegmentedMP3 bool   `json:"segmented_mp3"`
	Missing      string `json:"missing,omitempty"`
}

func skillsToAPI(s skills.Skills) SkillsResponse {
	resp := SkillsResponse{Skills: s, SegmentedMP3: true}
	if err := s.SupportsSegmentedMP3(); err != nil {
		resp.SegmentedMP3 = false
		resp.Missing = err.Error()
	}
	return resp
}

// Skills GET /api/v1/skills
func (h *Handler) Skills(c *gin.Context) {
	sk, err := h.ffmpeg.Skills()
	if err != nil {
		fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(sk))
}

// ReloadSkills POST /api/v1/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if err := h.ffmpeg.ReloadSkills(); err != nil {
		fail(c, err, "")
		return
	}
	sk, err := h.ffmpeg.Skills()
	if err != nil {
		fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(sk))
}
