// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// Sample is one elapsed-time data point taken from the worker's
// -progress output.
type Sample struct {
	MediaTime float64 `json:"media_time_seconds"`
}

// Class tells how a single worker output line should be handled.
type Class int

const (
	ClassOther Class = iota
	ClassProgress
	ClassDiagnostic
)

func (c Class) String() string {
	switch c {
	case ClassProgress:
		return "progress"
	case ClassDiagnostic:
		return "diagnostic"
	default:
		return "other"
	}
}

// out_time_ms 实为微秒
var reOutTime = regexp.MustCompile(`out_time_ms=([0-9]+)`)

// Parse extracts a progress sample from line. Lines without a complete
// out_time_ms token yield false.
func Parse(line string) (Sample, bool) {
	m := reOutTime.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false
	}
	us, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return Sample{}, false
	}
	return Sample{MediaTime: float64(us) / 1000000.0}, true
}

// IsDiagnostic reports whether line mentions an error, case-insensitively.
func IsDiagnostic(line string) bool {
	return strings.Contains(strings.ToLower(line), "error")
}

// Classify returns the class of line and, for progress lines, its sample.
// A line carrying both a sample and an error mention is a diagnostic.
func Classify(line string) (Class, Sample) {
	if IsDiagnostic(line) {
		return ClassDiagnostic, Sample{}
	}
	if s, ok := Parse(line); ok {
		return ClassProgress, s
	}
	return ClassOther, Sample{}
}
