// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package watcher

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ZSC714725/audiosegmenter/internal/conversion"
	"github.com/ZSC714725/audiosegmenter/internal/logger"
)

// Watcher reports segment files as ffmpeg creates them in the output
// directory of the running conversion. It is a conversion.Sink and starts
// and stops itself from the run's progress events.
type Watcher struct {
	logger    logger.Logger
	onSegment func(runID, path string)

	mu     sync.Mutex
	runID  string
	fs     *fsnotify.Watcher
	done   chan struct{}
	closed sync.WaitGroup
}

// New creates a Watcher calling onSegment once per new segment file.
func New(log logger.Logger, onSegment func(runID, path string)) *Watcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{logger: log, onSegment: onSegment}
}

func (w *Watcher) Progress(p conversion.Progress) {
	switch {
	case p.Phase == conversion.PhaseRunning:
		w.mu.Lock()
		same := w.runID == p.RunID
		w.mu.Unlock()
		if !same {
			w.watch(p.RunID, p.OutputDir, "_"+conversion.SanitizeBaseName(p.InputPath)+".mp3")
		}
	case p.Phase.Terminal():
		w.Close()
	}
}

func (w *Watcher) Log(conversion.LogEvent) {}

func (w *Watcher) Outcome(conversion.Outcome) {
	w.Close()
}

// Close stops watching. It is safe to call when nothing is watched.
func (w *Watcher) Close() {
	w.mu.Lock()
	fs, done := w.fs, w.done
	w.fs, w.done, w.runID = nil, nil, ""
	w.mu.Unlock()

	if fs == nil {
		return
	}
	close(done)
	fs.Close()
	w.closed.Wait()
}

func (w *Watcher) watch(runID, dir, suffix string) {
	w.Close()

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("run %s: segment watcher: %v", runID, err)
		w.skip(runID)
		return
	}
	if err := fs.Add(dir); err != nil {
		w.logger.Warn("run %s: watch %s: %v", runID, dir, err)
		fs.Close()
		w.skip(runID)
		return
	}

	done := make(chan struct{})
	w.mu.Lock()
	w.runID, w.fs, w.done = runID, fs, done
	w.mu.Unlock()

	w.closed.Add(1)
	go w.loop(runID, fs, done, suffix)
}

// skip remembers runID so later progress events do not retry.
func (w *Watcher) skip(runID string) {
	w.mu.Lock()
	w.runID = runID
	w.mu.Unlock()
}

func (w *Watcher) loop(runID string, fs *fsnotify.Watcher, done chan struct{}, suffix string) {
	defer w.closed.Done()

	seen := map[string]bool{}
	for {
		select {
		case event, ok := <-fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if len(name) <= len(suffix) || !strings.HasSuffix(name, suffix) || seen[name] {
				continue
			}
			seen[name] = true
			w.logger.Debug("run %s: new segment %s", runID, name)
			if w.onSegment != nil {
				w.onSegment(runID, event.Name)
			}
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("run %s: segment watcher: %v", runID, err)
		case <-done:
			return
		}
	}
}
