// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package api

import (
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/audiosegmenter/internal/metrics"
)

// NewRouter wires the handler and the metrics endpoint into a gin engine.
func NewRouter(h *Handler, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default())
	if m != nil {
		r.Use(func(c *gin.Context) {
			c.Next()
			m.IncRequests(strconv.Itoa(c.Writer.Status()))
		})
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/skills", h.Skills)
		v1.POST("/skills/reload", h.ReloadSkills)

		v1.POST("/probe", h.Probe)

		v1.POST("/run", h.StartRun)
		v1.DELETE("/run", h.CancelRun)
		v1.GET("/run/state", h.GetState)
		v1.GET("/run/report", h.GetReport)
		v1.GET("/run/outcome", h.GetOutcome)

		v1.GET("/events", h.Events)
		v1.GET("/events/stream", h.Stream)
	}

	return r
}
