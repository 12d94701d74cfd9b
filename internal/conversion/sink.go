// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package conversion

import (
	"time"
)

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogError LogLevel = "error"
)

// LogEvent is a line for the user facing run log: worker diagnostics
// and supervisor notices such as segment changes.
type LogEvent struct {
	RunID   string    `json:"run_id"`
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// Sink receives the events of every run. For one run, calls are made
// from a single goroutine in the order the events happened, and Outcome
// is always the last call.
type Sink interface {
	Progress(p Progress)
	Log(e LogEvent)
	Outcome(o Outcome)
}

type multiSink []Sink

// Sinks fans events out to every non-nil sink, in order.
func Sinks(sinks ...Sink) Sink {
	var m multiSink
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multiSink) Progress(p Progress) {
	for _, s := range m {
		s.Progress(p)
	}
}

func (m multiSink) Log(e LogEvent) {
	for _, s := range m {
		s.Log(e)
	}
}

func (m multiSink) Outcome(o Outcome) {
	for _, s := range m {
		s.Outcome(o)
	}
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnProgress func(Progress)
	OnLog      func(LogEvent)
	OnOutcome  func(Outcome)
}

func (f SinkFuncs) Progress(p Progress) {
	if f.OnProgress != nil {
		f.OnProgress(p)
	}
}

func (f SinkFuncs) Log(e LogEvent) {
	if f.OnLog != nil {
		f.OnLog(e)
	}
}

func (f SinkFuncs) Outcome(o Outcome) {
	if f.OnOutcome != nil {
		f.OnOutcome(o)
	}
}

type event struct {
	progress *Progress
	log      *LogEvent
	outcome  *Outcome
}

// dispatch delivers the events of one run until its outcome. A panicking
// sink only loses the event it panicked on.
func (s *Supervisor) dispatch(r *run) {
	defer close(r.delivered)
	for ev := range r.events {
		s.deliver(ev)
	}
}

func (s *Supervisor) deliver(ev event) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("event sink panicked: %v", rec)
		}
	}()

	switch {
	case ev.progress != nil:
		s.sink.Progress(*ev.progress)
	case ev.log != nil:
		s.sink.Log(*ev.log)
	case ev.outcome != nil:
		s.sink.Outcome(*ev.outcome)
	}
}
