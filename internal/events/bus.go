// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package events

import (
	"sync"
	"time"

	"github.com/ZSC714725/audiosegmenter/internal/conversion"
)

// Type classifies messages emitted during a run.
type Type string

const (
	TypeProgress Type = "progress"
	TypeLog      Type = "log"
	TypeSegment  Type = "segment"
	TypeOutcome  Type = "outcome"
)

// Event is a sequenced payload consumed by API clients.
type Event struct {
	Seq       int64                `json:"seq"`
	Timestamp time.Time            `json:"timestamp"`
	RunID     string               `json:"run_id"`
	Type      Type                 `json:"type"`
	Progress  *conversion.Progress `json:"progress,omitempty"`
	Log       *conversion.LogEvent `json:"log,omitempty"`
	Segment   string               `json:"segment,omitempty"`
	Outcome   *conversion.Outcome  `json:"outcome,omitempty"`
}

// Bus stores recent events, provides incremental reads and pushes new
// events to subscribers. It is a conversion.Sink.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event

	subs   map[int]chan Event
	nextID int
}

const subscriberBuffer = 64

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      map[int]chan Event{},
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for _, ch := range b.subs {
		// 订阅者跟不上时丢弃，客户端可以用 Since 补齐
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe returns a channel receiving every event published from now on
// and a function that ends the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Progress(p conversion.Progress) {
	b.Publish(Event{RunID: p.RunID, Type: TypeProgress, Progress: &p})
}

func (b *Bus) Log(e conversion.LogEvent) {
	b.Publish(Event{RunID: e.RunID, Timestamp: e.Time.UTC(), Type: TypeLog, Log: &e})
}

func (b *Bus) Outcome(o conversion.Outcome) {
	b.Publish(Event{RunID: o.RunID, Type: TypeOutcome, Outcome: &o})
}

// Segment records a new segment file seen in the output directory.
func (b *Bus) Segment(runID, path string) {
	b.Publish(Event{RunID: runID, Type: TypeSegment, Segment: path})
}
