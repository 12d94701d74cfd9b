// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Wrap(KindProbeTimeout, fmt.Errorf("deadline"), "ffprobe took too long")

	assert.True(t, Is(err, ErrProbeTimeout))
	assert.False(t, Is(err, ErrToolFailed))

	wrapped := fmt.Errorf("start: %w", err)
	assert.True(t, Is(wrapped, ErrProbeTimeout))
	assert.Equal(t, KindProbeTimeout, KindOf(wrapped))
}

func TestExitNonZeroCarriesCode(t *testing.T) {
	err := ExitNonZero(137)

	assert.True(t, Is(err, ErrWorkerExitNonZero))
	assert.Equal(t, 137, err.Code)
	assert.Contains(t, err.Error(), "137")
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("exec: \"ffprobe\": executable file not found")
	err := Wrap(KindToolNotFound, cause, "inspector missing")

	assert.Equal(t, cause, err.Unwrap())
	assert.Contains(t, err.Detail(), "executable file not found")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, ErrAlreadyRunning.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, ErrInvalidRequest.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, ErrStreamError.HTTPStatus())
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
