// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package ffmpeg

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/ZSC714725/audiosegmenter/internal/errors"
	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg/parse"
	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg/skills"
	"github.com/ZSC714725/audiosegmenter/internal/logger"
	"github.com/ZSC714725/audiosegmenter/internal/process"
)

// FFmpeg manages the ffmpeg and ffprobe binaries
type FFmpeg interface {
	New(config ProcessConfig) (process.Process, error)
	Probe(ctx context.Context, path string) (MediaInfo, error)
	NewLog() *parse.Log
	ValidateInput(path string) bool
	Skills() (skills.Skills, error)
	ReloadSkills() error
	CheckDependencies(ctx context.Context) error
}

// ProcessConfig for creating a worker process
type ProcessConfig struct {
	Args          []string
	Logger        logger.Logger
	OnStateChange func(from, to string)
}

// Config for FFmpeg
type Config struct {
	Binary         string
	ProbeBinary    string
	ProbeTimeout   time.Duration
	MaxLogLines    int
	ValidatorInput Validator
	Logger         logger.Logger
}

type ffmpeg struct {
	binary       string
	probeBinary  string
	probeTimeout time.Duration
	validatorIn  Validator
	logLines     int
	logger       logger.Logger

	skills     *skills.Skills
	skillsLock sync.RWMutex
}

// New resolves both binaries. Skills are detected on first use.
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, errors.Wrap(errors.KindToolNotFound, err, "ffmpeg binary %q not found", config.Binary)
	}
	probe, err := exec.LookPath(config.ProbeBinary)
	if err != nil {
		return nil, errors.Wrap(errors.KindToolNotFound, err, "ffprobe binary %q not found", config.ProbeBinary)
	}

	f := &ffmpeg{
		binary:       binary,
		probeBinary:  probe,
		probeTimeout: config.ProbeTimeout,
		logLines:     config.MaxLogLines,
		logger:       config.Logger,
	}

	if f.probeTimeout <= 0 {
		f.probeTimeout = 15 * time.Second
	}
	if f.logLines <= 0 {
		f.logLines = 100
	}
	if f.logger == nil {
		f.logger = logger.Nop()
	}

	if config.ValidatorInput != nil {
		f.validatorIn = config.ValidatorInput
	} else {
		f.validatorIn, _ = NewValidator(nil, nil)
	}

	return f, nil
}

func (f *ffmpeg) New(config ProcessConfig) (process.Process, error) {
	log := config.Logger
	if log == nil {
		log = f.logger
	}
	return process.New(process.Config{
		Binary:        f.binary,
		Args:          config.Args,
		Logger:        log,
		OnStateChange: config.OnStateChange,
	})
}

func (f *ffmpeg) NewLog() *parse.Log {
	return parse.NewLog(f.logLines)
}

func (f *ffmpeg) ValidateInput(path string) bool {
	return f.validatorIn.IsValid(path)
}

func (f *ffmpeg) Skills() (skills.Skills, error) {
	f.skillsLock.RLock()
	s := f.skills
	f.skillsLock.RUnlock()
	if s != nil {
		return *s, nil
	}

	if err := f.ReloadSkills(); err != nil {
		return skills.Skills{}, err
	}

	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return *f.skills, nil
}

func (f *ffmpeg) ReloadSkills() error {
	s, err := skills.New(f.binary)
	if err != nil {
		return errors.Wrap(errors.KindToolFailed, err, "detect ffmpeg skills")
	}
	f.skillsLock.Lock()
	f.skills = &s
	f.skillsLock.Unlock()
	return nil
}

// CheckDependencies runs both tools with -version and verifies that ffmpeg
// can produce segmented MP3 output.
func (f *ffmpeg) CheckDependencies(ctx context.Context) error {
	for _, binary := range []string{f.binary, f.probeBinary} {
		ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
		err := exec.CommandContext(ctx, binary, "-version").Run()
		cancel()
		if err != nil {
			return errors.Wrap(errors.KindToolFailed, err, "%s -version", binary)
		}
	}

	s, err := f.Skills()
	if err != nil {
		return err
	}
	if err := s.SupportsSegmentedMP3(); err != nil {
		return errors.Wrap(errors.KindToolFailed, err, "unsupported ffmpeg build")
	}

	f.logger.Info("using ffmpeg %s at %s, ffprobe at %s", s.FFmpeg.Version, f.binary, f.probeBinary)
	return nil
}
