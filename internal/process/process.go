// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具
//
// Package process wraps exec.Cmd for supervising one long-running worker.

package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"
)

// ErrWaitTimeout is returned by Wait when the worker has not exited in time.
var ErrWaitTimeout = errors.New("timed out waiting for process exit")

// ErrNotStarted is returned when a process is waited on or signalled before Start.
var ErrNotStarted = errors.New("process not started")

// Process is a single-shot worker process. Its combined stdout and stderr
// are delivered line by line on Lines, which is closed at end of output.
type Process interface {
	Start() error
	Lines() <-chan string
	Done() <-chan struct{}
	Stop(grace time.Duration) error
	Kill() error
	Wait(timeout time.Duration) (Exit, error)
	ReadErr() error
	IsRunning() bool
	Status() Status
	Pid() int
}

// Config for a process
type Config struct {
	Binary        string
	Args          []string
	Env           []string
	OnStateChange func(from, to string)
	Logger        Logger
	Limiter       Limiter
}

// Exit describes how the worker terminated. Code is 128+signal when the
// worker was terminated by a signal.
type Exit struct {
	Code     int
	Signaled bool
}

// Status of a process
type Status struct {
	State    string        `json:"state"`
	Pid      int           `json:"pid"`
	Duration time.Duration `json:"duration"`
	Time     time.Time     `json:"time"`
	CPU      float64       `json:"cpu_usage"`
	Memory   uint64        `json:"memory_bytes"`
}

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type stateType string

const (
	stateIdle      stateType = "idle"
	stateStarting  stateType = "starting"
	stateRunning   stateType = "running"
	stateFinishing stateType = "finishing"
	stateFinished  stateType = "finished"
	stateFailed    stateType = "failed"
	stateKilled    stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning || s == stateFinishing
}

const lineBuffer = 64

type process struct {
	binary string
	args   []string
	env    []string
	cmd    *exec.Cmd
	output *os.File

	lines chan string
	done  chan struct{}
	exit  Exit

	readErr  error
	readLock sync.Mutex

	state struct {
		state stateType
		time  time.Time
		lock  sync.Mutex
	}
	killTimer     *time.Timer
	killTimerLock sync.Mutex
	logger        Logger
	limits        Limiter
	onStateChange func(from, to string)
}

// New creates a new process
func New(config Config) (Process, error) {
	if len(config.Binary) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}

	p := &process{
		binary:        config.Binary,
		args:          config.Args,
		env:           config.Env,
		logger:        config.Logger,
		limits:        config.Limiter,
		onStateChange: config.OnStateChange,
		lines:         make(chan string, lineBuffer),
		done:          make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = &nopLogger{}
	}
	if p.limits == nil {
		p.limits = NewSysLimiter()
	}

	p.state.state = stateIdle
	p.state.time = time.Now()
	return p, nil
}

func (p *process) setState(state stateType) error {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	prev := p.state.state
	ok := false
	switch prev {
	case stateIdle:
		ok = state == stateStarting
	case stateStarting:
		ok = state == stateRunning || state == stateFailed
	case stateRunning:
		ok = state == stateFinishing || state == stateFinished || state == stateFailed || state == stateKilled
	case stateFinishing:
		ok = state == stateFinished || state == stateFailed || state == stateKilled
	}
	if !ok {
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	p.state.state = state
	p.state.time = time.Now()
	if p.onStateChange != nil {
		go p.onStateChange(prev.String(), state.String())
	}
	return nil
}

func (p *process) getState() stateType {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}

func (p *process) IsRunning() bool {
	return p.getState().IsRunning()
}

func (p *process) Lines() <-chan string { return p.lines }

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Status() Status {
	p.state.lock.Lock()
	s := Status{
		State:    p.state.state.String(),
		Time:     p.state.time,
		Duration: time.Since(p.state.time),
	}
	p.state.lock.Unlock()

	s.Pid = p.Pid()
	s.CPU, s.Memory = p.limits.Current()
	return s
}

// Start launches the worker. stdout and stderr share one pipe so lines
// arrive in the order the worker wrote them.
func (p *process) Start() error {
	if err := p.setState(stateStarting); err != nil {
		return err
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		p.setState(stateFailed)
		close(p.lines)
		close(p.done)
		return err
	}

	p.cmd = exec.Command(p.binary, p.args...)
	if p.env != nil {
		p.cmd.Env = p.env
	}
	p.cmd.Stdout = pw
	p.cmd.Stderr = pw

	if err := p.cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		p.setState(stateFailed)
		close(p.lines)
		close(p.done)
		return err
	}
	// 子进程持有写端，父进程关闭后才能在退出时读到 EOF
	pw.Close()
	p.output = pr

	p.limits.Start(p.cmd.Process.Pid)
	p.setState(stateRunning)

	go p.reader()
	return nil
}

// Stop asks the worker to terminate and kills it after grace.
// It does not block.
func (p *process) Stop(grace time.Duration) error {
	if p.getState() != stateRunning {
		return nil
	}
	if err := p.setState(stateFinishing); err != nil {
		return nil
	}

	var err error
	if runtime.GOOS == "windows" {
		err = p.cmd.Process.Kill()
	} else {
		err = p.cmd.Process.Signal(syscall.SIGTERM)
		if err != nil {
			err = p.cmd.Process.Kill()
		} else {
			p.killTimerLock.Lock()
			p.killTimer = time.AfterFunc(grace, func() {
				p.logger.Info("worker %d ignored termination for %s, killing", p.Pid(), grace)
				p.cmd.Process.Kill()
			})
			p.killTimerLock.Unlock()
		}
	}
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Kill terminates the worker immediately.
func (p *process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return ErrNotStarted
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Wait blocks until the worker has exited and its output has been read, or
// until timeout elapses.
func (p *process) Wait(timeout time.Duration) (Exit, error) {
	if p.cmd == nil {
		return Exit{}, ErrNotStarted
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.exit, nil
	case <-timer.C:
		return Exit{}, ErrWaitTimeout
	}
}

// ReadErr reports a failure reading the worker's output, if any.
func (p *process) ReadErr() error {
	p.readLock.Lock()
	defer p.readLock.Unlock()
	return p.readErr
}

func (p *process) reader() {
	scanner := bufio.NewScanner(p.output)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLine)

	for scanner.Scan() {
		p.lines <- scanner.Text()
	}

	if err := scanner.Err(); err != nil {
		p.readLock.Lock()
		p.readErr = err
		p.readLock.Unlock()
		p.logger.Error("reading output of worker %d: %v", p.Pid(), err)
		// 无法继续监控输出，避免子进程阻塞在写管道上
		p.cmd.Process.Kill()
		io.Copy(io.Discard, p.output)
	}
	close(p.lines)

	p.waiter()
}

func (p *process) waiter() {
	err := p.cmd.Wait()
	p.output.Close()

	p.exit = exitOf(err, p.cmd.ProcessState)
	switch {
	case p.exit.Signaled:
		p.setState(stateKilled)
	case p.exit.Code != 0:
		p.setState(stateFailed)
	default:
		p.setState(stateFinished)
	}

	p.limits.Stop()

	p.killTimerLock.Lock()
	if p.killTimer != nil {
		p.killTimer.Stop()
		p.killTimer = nil
	}
	p.killTimerLock.Unlock()

	p.logger.Debug("worker %d exited with code %d (signaled=%t)", p.Pid(), p.exit.Code, p.exit.Signaled)
	close(p.done)
}

func exitOf(err error, state *os.ProcessState) Exit {
	if state != nil {
		if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return Exit{Code: 128 + int(status.Signal()), Signaled: true}
		}
		return Exit{Code: state.ExitCode()}
	}
	if err != nil {
		return Exit{Code: -1}
	}
	return Exit{}
}

// scanLine splits on \n or \r so carriage-return progress updates are
// delivered as separate lines.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
