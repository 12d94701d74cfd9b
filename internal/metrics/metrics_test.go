// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/audiosegmenter/internal/conversion"
	"github.com/ZSC714725/audiosegmenter/internal/errors"
)

func TestProgressSetsGauges(t *testing.T) {
	m := New()
	m.Progress(conversion.Progress{Phase: conversion.PhaseRunning, Fraction: 0.5, CurrentSegment: 2, TotalSegments: 4, Speed: 30})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRun))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.fraction))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.currentSegment))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.totalSegments))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.speed))
}

func TestOutcomeCountsRuns(t *testing.T) {
	m := New()
	m.Log(conversion.LogEvent{Level: conversion.LogError, Message: "Error"})
	m.Log(conversion.LogEvent{Level: conversion.LogInfo, Message: "generating segment 1 of 1"})
	m.Outcome(conversion.Outcome{Status: conversion.StatusSuccess, Elapsed: 3 * time.Second, Files: make([]conversion.File, 3)})
	m.Outcome(conversion.Outcome{Status: conversion.StatusFailure, Error: errors.ExitNonZero(137)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.diagnosticsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.segmentsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("success", "", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failure", "worker_exit_non_zero", "false")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRun))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.IncRequests("200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `segmenter_http_requests_total{code="200"} 1`)
}
