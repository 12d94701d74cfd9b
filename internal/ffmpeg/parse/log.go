// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package parse

import (
	"container/ring"
	"sync"
	"time"

	"github.com/ZSC714725/audiosegmenter/internal/process"
)

// Log keeps the last n worker output lines.
type Log struct {
	lines *ring.Ring
	size  int
	lock  sync.RWMutex
}

// NewLog creates a Log holding up to size lines.
func NewLog(size int) *Log {
	if size <= 0 {
		size = 100
	}
	return &Log{lines: ring.New(size), size: size}
}

func (l *Log) Add(line string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.lines.Value = process.Line{Timestamp: time.Now(), Data: line}
	l.lines = l.lines.Next()
}

func (l *Log) Reset() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.lines = ring.New(l.size)
}

// Lines returns the retained lines, oldest first.
func (l *Log) Lines() []process.Line {
	var out []process.Line
	l.lock.RLock()
	l.lines.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(process.Line))
		}
	})
	l.lock.RUnlock()
	return out
}
