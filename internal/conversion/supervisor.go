// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

// Package conversion supervises splitting one input file into MP3
// segments with ffmpeg. At most one run is active at a time.
//
// A run moves through the phases
//
//	idle -> probing -> running -> [stopping ->] completed | failed
//
// Start probes the input synchronously and then returns while the worker
// runs. Progress, log and outcome events are delivered to the configured
// Sink in order, and every run that got past validation ends with exactly
// one Outcome.
package conversion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/audiosegmenter/internal/errors"
	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg"
	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg/parse"
	"github.com/ZSC714725/audiosegmenter/internal/logger"
	"github.com/ZSC714725/audiosegmenter/internal/process"
)

// ErrNoRun is returned by Wait when nothing has been started yet.
var ErrNoRun = errors.New("no conversion has been started")

// Toolchain is the part of ffmpeg.FFmpeg the supervisor uses.
type Toolchain interface {
	Probe(ctx context.Context, path string) (ffmpeg.MediaInfo, error)
	New(config ffmpeg.ProcessConfig) (process.Process, error)
	NewLog() *parse.Log
	ValidateInput(path string) bool
}

// Config for a Supervisor
type Config struct {
	Toolchain   Toolchain
	Sink        Sink
	Logger      logger.Logger
	StopGrace   time.Duration // between the terminate signal and the kill
	ExitTimeout time.Duration // bound on the final wait for the worker
}

const eventBuffer = 256

type run struct {
	id   string
	req  Request
	safe string
	info ffmpeg.MediaInfo

	phase         Phase
	createdAt     time.Time
	startedAt     time.Time
	finishedAt    time.Time
	mediaTime     float64
	segment       int
	totalSegments int

	cancelRequested bool
	cancel          chan struct{}
	stopProbe       context.CancelFunc
	proc            process.Process
	log             *parse.Log

	events    chan event
	delivered chan struct{}
	outcome   *Outcome
}

// Supervisor owns the lifecycle of conversion runs.
type Supervisor struct {
	tools       Toolchain
	sink        Sink
	logger      logger.Logger
	stopGrace   time.Duration
	exitTimeout time.Duration

	lock sync.Mutex
	run  *run
}

// New creates a Supervisor
func New(config Config) (*Supervisor, error) {
	if config.Toolchain == nil {
		return nil, fmt.Errorf("no toolchain given")
	}

	s := &Supervisor{
		tools:       config.Toolchain,
		sink:        config.Sink,
		logger:      config.Logger,
		stopGrace:   config.StopGrace,
		exitTimeout: config.ExitTimeout,
	}
	if s.sink == nil {
		s.sink = Sinks()
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.stopGrace <= 0 {
		s.stopGrace = 5 * time.Second
	}
	if s.exitTimeout <= 0 {
		s.exitTimeout = 30 * time.Second
	}
	return s, nil
}

// Start validates req, probes the input and launches the worker. It
// returns the run ID once the worker is running. Failures up to that
// point are returned here; validation and AlreadyRunning failures create
// no run, later ones are also delivered to the sink as the run's outcome.
func (s *Supervisor) Start(ctx context.Context, req Request) (string, error) {
	s.lock.Lock()
	if s.run != nil && s.run.phase.Active() {
		cur := s.run
		s.lock.Unlock()
		return "", errors.Newf(errors.KindAlreadyRunning, "run %s is %s", cur.id, cur.phase)
	}

	req, err := req.validate(s.tools.ValidateInput)
	if err != nil {
		s.lock.Unlock()
		return "", err
	}

	probeCtx, stopProbe := context.WithCancel(ctx)
	r := &run{
		id:        shortuuid.New(),
		req:       req,
		safe:      SanitizeBaseName(req.InputPath),
		phase:     PhaseProbing,
		createdAt: time.Now(),
		cancel:    make(chan struct{}),
		stopProbe: stopProbe,
		log:       s.tools.NewLog(),
		events:    make(chan event, eventBuffer),
		delivered: make(chan struct{}),
	}
	s.run = r
	p := r.snapshot(time.Now())
	s.lock.Unlock()

	go s.dispatch(r)

	s.logger.Info("run %s: probing %s", r.id, req.InputPath)
	r.emitProgress(p)

	info, err := s.tools.Probe(probeCtx, req.InputPath)
	stopProbe()

	s.lock.Lock()
	if r.cancelRequested {
		s.lock.Unlock()
		s.logger.Info("run %s: cancelled while probing", r.id)
		s.finish(r, nil)
		return r.id, nil
	}
	if err != nil {
		s.lock.Unlock()
		fail := classify(err, errors.KindToolFailed, "probe %s", req.InputPath)
		s.finish(r, fail)
		return r.id, fail
	}

	r.info = info
	r.totalSegments = TotalSegments(info.Duration, req.SegmentSeconds)
	args := BuildArgs(req.InputPath, req.OutputDir, r.safe, req.SegmentSeconds)

	proc, err := s.tools.New(ffmpeg.ProcessConfig{
		Args:   args,
		Logger: s.logger.Named("ffmpeg"),
		OnStateChange: func(from, to string) {
			s.logger.Debug("run %s: worker %s -> %s", r.id, from, to)
		},
	})
	if err == nil {
		err = proc.Start()
	}
	if err != nil {
		s.lock.Unlock()
		fail := errors.Wrap(errors.KindSpawnError, err, "start ffmpeg")
		s.finish(r, fail)
		return r.id, fail
	}

	r.proc = proc
	r.phase = PhaseRunning
	r.startedAt = time.Now()
	p = r.snapshot(r.startedAt)
	s.lock.Unlock()

	s.logger.Info("run %s: splitting %.1fs into %d segment(s) of %vs in %s", r.id, info.Duration, r.totalSegments, req.SegmentSeconds, req.OutputDir)
	s.logger.Debug("run %s: ffmpeg %s", r.id, strings.Join(args, " "))

	r.emitProgress(p)
	if r.totalSegments > 0 {
		r.emitLog(LogInfo, fmt.Sprintf("generating segment 1 of %d", r.totalSegments))
	}

	go s.pump(r, proc)
	return r.id, nil
}

// Cancel asks the active run to stop and returns without waiting. It
// reports whether a cancellation was requested; calling it with no active
// run, or again for the same run, does nothing.
func (s *Supervisor) Cancel() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	r := s.run
	if r == nil || !r.phase.Active() || r.cancelRequested {
		return false
	}

	r.cancelRequested = true
	r.phase = PhaseStopping
	close(r.cancel)
	r.stopProbe()

	if r.proc != nil {
		if err := r.proc.Stop(s.stopGrace); err != nil {
			s.logger.Error("run %s: signal worker: %v", r.id, err)
		}
	}
	s.logger.Info("run %s: cancel requested", r.id)
	return true
}

// Wait blocks until the latest run has delivered its outcome.
func (s *Supervisor) Wait(ctx context.Context) (Outcome, error) {
	s.lock.Lock()
	r := s.run
	s.lock.Unlock()
	if r == nil {
		return Outcome{}, ErrNoRun
	}

	select {
	case <-r.delivered:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	return *r.outcome, nil
}

// Shutdown cancels the active run, if any, and waits for its outcome.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.Cancel() && !s.Phase().Active() {
		return nil
	}
	_, err := s.Wait(ctx)
	return err
}

// Snapshot returns the progress of the latest run.
func (s *Supervisor) Snapshot() Progress {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.run == nil {
		return Progress{Phase: PhaseIdle}
	}
	return s.run.snapshot(time.Now())
}

func (s *Supervisor) Phase() Phase {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.run == nil {
		return PhaseIdle
	}
	return s.run.phase
}

// Outcome returns the outcome of the latest run once it has one.
func (s *Supervisor) Outcome() (Outcome, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.run == nil || s.run.outcome == nil {
		return Outcome{}, false
	}
	return *s.run.outcome, true
}

// Log returns the last worker output lines of the latest run.
func (s *Supervisor) Log() []process.Line {
	s.lock.Lock()
	r := s.run
	s.lock.Unlock()
	if r == nil {
		return nil
	}
	return r.log.Lines()
}

// WorkerStatus reports the worker of the active run.
func (s *Supervisor) WorkerStatus() (process.Status, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.run == nil || s.run.proc == nil {
		return process.Status{}, false
	}
	return s.run.proc.Status(), true
}

func (s *Supervisor) pump(r *run, proc process.Process) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("run %s: supervisor fault: %v", r.id, rec)
			proc.Kill()
			go drain(proc.Lines())
			s.finish(r, errors.Newf(errors.KindStreamError, "supervisor fault: %v", rec))
		}
	}()

	lines := proc.Lines()
	cancel := r.cancel
	var deadline <-chan time.Time
	killed := false
	timedOut := false

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			s.handleLine(r, line)
		case <-cancel:
			cancel = nil
			r.emitProgress(s.snapshot(r))
			// process 在 grace 之后自己会 kill，这里兜底
			deadline = time.After(s.stopGrace)
		case <-deadline:
			if killed {
				timedOut = true
				break loop
			}
			killed = true
			proc.Kill()
			deadline = time.After(s.exitTimeout)
		}
	}

	var fail *errors.Error
	var exit process.Exit
	err := process.ErrWaitTimeout
	if !timedOut {
		exit, err = proc.Wait(s.exitTimeout)
	}

	s.lock.Lock()
	cancelled := r.cancelRequested
	s.lock.Unlock()

	switch {
	case err != nil:
		proc.Kill()
		go drain(lines)
		fail = errors.Wrap(errors.KindShutdownTimeout, err, "ffmpeg did not exit")
	case proc.ReadErr() != nil:
		fail = errors.Wrap(errors.KindStreamError, proc.ReadErr(), "read ffmpeg output")
	case exit.Code == 0:
	case cancelled && (exit.Signaled || exit.Code == 255):
		// ffmpeg 收到 SIGTERM 后以 255 退出
	default:
		fail = errors.ExitNonZero(exit.Code)
	}

	s.finish(r, fail)
}

func (s *Supervisor) handleLine(r *run, line string) {
	r.log.Add(line)

	class, sample := parse.Classify(line)
	switch class {
	case parse.ClassDiagnostic:
		s.logger.Warn("run %s: %s", r.id, line)
		r.emitLog(LogError, line)
	case parse.ClassProgress:
		s.lock.Lock()
		changed := r.update(sample.MediaTime)
		p := r.snapshot(time.Now())
		s.lock.Unlock()

		r.emitProgress(p)
		if changed && p.CurrentSegment < p.TotalSegments {
			msg := fmt.Sprintf("generating segment %d of %d", p.CurrentSegment+1, p.TotalSegments)
			s.logger.Info("run %s: %s", r.id, msg)
			r.emitLog(LogInfo, msg)
		}
	}
}

// finish resolves r to its terminal phase and delivers the outcome. A
// nil fail means success.
func (s *Supervisor) finish(r *run, fail *errors.Error) {
	var files []File
	if !r.startedAt.IsZero() {
		var err error
		files, err = ListSegments(r.req.OutputDir, r.safe)
		if err != nil {
			s.logger.Error("run %s: list segments: %v", r.id, err)
		}
	}
	if files == nil {
		files = []File{}
	}

	now := time.Now()
	s.lock.Lock()
	if r.outcome != nil {
		s.lock.Unlock()
		return
	}

	o := Outcome{
		RunID:     r.id,
		Status:    StatusSuccess,
		Cancelled: r.cancelRequested,
		OutputDir: r.req.OutputDir,
		Files:     files,
	}
	if fail != nil {
		o.Status = StatusFailure
		o.Error = fail
		r.phase = PhaseFailed
	} else {
		r.phase = PhaseCompleted
	}

	r.finishedAt = now
	start := r.startedAt
	if start.IsZero() {
		start = r.createdAt
	}
	o.Elapsed = now.Sub(start)

	r.proc = nil
	r.outcome = &o
	p := r.snapshot(now)
	s.lock.Unlock()

	if fail != nil {
		s.logger.Error("run %s: %s", r.id, o.Summary())
	} else {
		s.logger.Info("run %s: %s", r.id, o.Summary())
	}

	r.emitProgress(p)
	r.events <- event{outcome: &o}
	close(r.events)
}

func (s *Supervisor) snapshot(r *run) Progress {
	s.lock.Lock()
	defer s.lock.Unlock()
	return r.snapshot(time.Now())
}

// update records a progress sample and reports whether the segment index changed.
func (r *run) update(media float64) bool {
	// 探测到的时长为 0 时同样钳制
	media = clamp(media, 0, max(r.info.Duration, 0))
	r.mediaTime = media

	seg := SegmentIndex(media, r.req.SegmentSeconds, r.totalSegments)
	changed := seg != r.segment
	r.segment = seg
	return changed
}

func (r *run) snapshot(now time.Time) Progress {
	p := Progress{
		RunID:           r.id,
		Phase:           r.phase,
		InputPath:       r.req.InputPath,
		OutputDir:       r.req.OutputDir,
		SegmentSeconds:  r.req.SegmentSeconds,
		TotalDuration:   r.info.Duration,
		MediaTime:       r.mediaTime,
		Fraction:        Fraction(r.mediaTime, r.info.Duration),
		CurrentSegment:  r.segment,
		TotalSegments:   r.totalSegments,
		StartedAt:       r.startedAt,
		CancelRequested: r.cancelRequested,
	}
	if r.startedAt.IsZero() {
		return p
	}

	end := now
	if !r.finishedAt.IsZero() {
		end = r.finishedAt
	}
	p.Elapsed = end.Sub(r.startedAt)
	p.Speed = Speed(r.mediaTime, p.Elapsed)
	if r.phase == PhaseRunning {
		p.ETA, p.ETAKnown = ETA(p.Fraction, p.Elapsed)
	}
	return p
}

func (r *run) emitProgress(p Progress) {
	r.events <- event{progress: &p}
}

func (r *run) emitLog(level LogLevel, msg string) {
	r.events <- event{log: &LogEvent{RunID: r.id, Time: time.Now(), Level: level, Message: msg}}
}

// classify keeps classified errors and wraps anything else as kind.
func classify(err error, kind errors.Kind, format string, args ...any) *errors.Error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e
	}
	return errors.Wrap(kind, err, format, args...)
}

func drain(lines <-chan string) {
	for range lines {
	}
}
