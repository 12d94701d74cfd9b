// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/audiosegmenter/internal/conversion"
	"github.com/ZSC714725/audiosegmenter/internal/errors"
	"github.com/ZSC714725/audiosegmenter/internal/events"
	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg"
)

// Handler holds dependencies
type Handler struct {
	supervisor     *conversion.Supervisor
	ffmpeg         ffmpeg.FFmpeg
	bus            *events.Bus
	segmentSeconds float64
}

// NewHandler creates API handler. segmentSeconds is used when a request
// does not name a segment length.
func NewHandler(sup *conversion.Supervisor, ff ffmpeg.FFmpeg, bus *events.Bus, segmentSeconds float64) *Handler {
	return &Handler{supervisor: sup, ffmpeg: ff, bus: bus, segmentSeconds: segmentSeconds}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// fail answers with the status code of a classified error.
func fail(c *gin.Context, err error, runID string) {
	var e *errors.Error
	if !errors.As(err, &e) {
		errResp(c, http.StatusInternalServerError, "Internal error", err.Error())
		return
	}
	code := e.HTTPStatus()
	c.JSON(code, ErrorResponse{Code: code, Kind: string(e.Kind), Message: e.Message, Detail: e.Detail(), RunID: runID})
}

func (h *Handler) segment(s float64) float64 {
	if s == 0 {
		return h.segmentSeconds
	}
	return s
}

// Probe POST /api/v1/probe
func (h *Handler) Probe(c *gin.Context) {
	var req ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if !h.ffmpeg.ValidateInput(req.InputPath) {
		errResp(c, http.StatusBadRequest, "Invalid input", req.InputPath)
		return
	}

	segment := h.segment(req.SegmentSeconds)
	if segment <= 0 {
		errResp(c, http.StatusBadRequest, "Invalid segment length", strconv.FormatFloat(segment, 'f', -1, 64))
		return
	}

	info, err := h.ffmpeg.Probe(c.Request.Context(), req.InputPath)
	if err != nil {
		fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, conversion.NewPreview(info, segment))
}

// StartRun POST /api/v1/run
func (h *Handler) StartRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	id, err := h.supervisor.Start(c.Request.Context(), conversion.Request{
		InputPath:      req.InputPath,
		OutputDir:      req.OutputDir,
		SegmentSeconds: h.segment(req.SegmentSeconds),
	})
	if err != nil {
		fail(c, err, id)
		return
	}

	c.JSON(http.StatusAccepted, RunResponse{RunID: id, State: h.supervisor.Snapshot()})
}

// CancelRun DELETE /api/v1/run
func (h *Handler) CancelRun(c *gin.Context) {
	cancelled := h.supervisor.Cancel()
	c.JSON(http.StatusOK, CancelResponse{Cancelled: cancelled, Phase: h.supervisor.Phase()})
}

// GetState GET /api/v1/run/state
func (h *Handler) GetState(c *gin.Context) {
	state := RunState{Progress: h.supervisor.Snapshot()}
	if status, ok := h.supervisor.WorkerStatus(); ok {
		state.Worker = &status
	}
	c.JSON(http.StatusOK, state)
}

// GetReport GET /api/v1/run/report
func (h *Handler) GetReport(c *gin.Context) {
	lines := h.supervisor.Log()
	report := RunReport{RunID: h.supervisor.Snapshot().RunID, Log: make([][2]string, len(lines))}
	for i, line := range lines {
		report.Log[i] = [2]string{
			line.Timestamp.Format("2006-01-02 15:04:05.000"),
			line.Data,
		}
	}
	c.JSON(http.StatusOK, report)
}

// GetOutcome GET /api/v1/run/outcome
func (h *Handler) GetOutcome(c *gin.Context) {
	o, ok := h.supervisor.Outcome()
	if !ok {
		errResp(c, http.StatusNotFound, "No finished run", string(h.supervisor.Phase()))
		return
	}
	preview, more := o.Preview(conversion.PreviewFiles)
	c.JSON(http.StatusOK, OutcomeResponse{Outcome: o, Preview: preview, More: more, Summary: o.Summary()})
}

func sinceParam(c *gin.Context) (int64, bool) {
	s := c.DefaultQuery("since", "0")
	since, err := strconv.ParseInt(s, 10, 64)
	if err != nil || since < 0 {
		errResp(c, http.StatusBadRequest, "Invalid since", s)
		return 0, false
	}
	return since, true
}

// Events GET /api/v1/events?since=N
func (h *Handler) Events(c *gin.Context) {
	since, ok := sinceParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.bus.Since(since))
}

// Stream GET /api/v1/events/stream?since=N
func (h *Handler) Stream(c *gin.Context) {
	since, ok := sinceParam(c)
	if !ok {
		return
	}

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	last := since
	for _, ev := range h.bus.Since(since) {
		c.SSEvent(string(ev.Type), ev)
		last = ev.Seq
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			batch := h.pending(ev, last)
			if len(batch) == 0 {
				continue
			}
			for _, e := range batch {
				c.SSEvent(string(e.Type), e)
			}
			c.Writer.Flush()
			last = batch[len(batch)-1].Seq
		case <-ctx.Done():
			return
		}
	}
}

// pending returns the events to send after last when ev arrives. A gap in
// the sequence means the subscription overflowed, so the missing events are
// read back from the bus.
func (h *Handler) pending(ev events.Event, last int64) []events.Event {
	// 订阅和补发之间可能重复
	if ev.Seq <= last {
		return nil
	}
	if ev.Seq == last+1 {
		return []events.Event{ev}
	}
	missed := h.bus.Since(last)
	if len(missed) == 0 {
		return []events.Event{ev}
	}
	return missed
}
