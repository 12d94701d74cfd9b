// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package conversion

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/audiosegmenter/internal/errors"
	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg"
)

const probe1805 = `echo '{"format": {"duration": "1805.000000", "size": "28880000", "bit_rate": "128000"}}'
`

// 最后一个参数是输出模板，printf 生成分段文件名
const splitFour = `for last; do :; done
i=0
while [ $i -lt 4 ]; do
  printf 'mp3data' > "$(printf "$last" $i)"
  echo "out_time_ms=$((i * 600000000))"
  echo "progress=continue"
  i=$((i + 1))
done
echo "out_time_ms=1805000000"
echo "progress=end"
exit 0
`

type recorder struct {
	lock     sync.Mutex
	order    []string
	progress []Progress
	logs     []LogEvent
	outcomes []Outcome
}

func (r *recorder) Progress(p Progress) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.order = append(r.order, "progress")
	r.progress = append(r.progress, p)
}

func (r *recorder) Log(e LogEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.order = append(r.order, "log")
	r.logs = append(r.logs, e)
}

func (r *recorder) Outcome(o Outcome) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.order = append(r.order, "outcome")
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) sampled() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, p := range r.progress {
		if p.MediaTime > 0 {
			return true
		}
	}
	return false
}

func writeTool(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

type fixture struct {
	sup    *Supervisor
	rec    *recorder
	input  string
	output string
}

func newFixture(t *testing.T, probeBody, ffmpegBody string, grace, exit time.Duration) *fixture {
	t.Helper()
	tools, err := ffmpeg.New(ffmpeg.Config{
		Binary:       writeTool(t, "ffmpeg", ffmpegBody),
		ProbeBinary:  writeTool(t, "ffprobe", probeBody),
		ProbeTimeout: 10 * time.Second,
	})
	require.NoError(t, err)

	rec := &recorder{}
	sup, err := New(Config{Toolchain: tools, Sink: rec, StopGrace: grace, ExitTimeout: exit})
	require.NoError(t, err)

	dir := t.TempDir()
	input := filepath.Join(dir, "My Song (Live) 50%.m4a")
	require.NoError(t, os.WriteFile(input, []byte("audio"), 0o644))

	return &fixture{sup: sup, rec: rec, input: input, output: filepath.Join(dir, "out", "segments")}
}

func (f *fixture) request() Request {
	return Request{InputPath: f.input, OutputDir: f.output, SegmentSeconds: 600}
}

func (f *fixture) wait(t *testing.T) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	o, err := f.sup.Wait(ctx)
	require.NoError(t, err)
	return o
}

func TestRunSplitsIntoSegments(t *testing.T) {
	f := newFixture(t, probe1805, splitFour, time.Second, 5*time.Second)
	require.NoError(t, os.MkdirAll(f.output, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.output, "000_other.mp3"), nil, 0o644))

	id, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	o := f.wait(t)
	assert.Equal(t, id, o.RunID)
	assert.True(t, o.Success())
	assert.False(t, o.Cancelled)
	assert.Nil(t, o.Error)
	require.Len(t, o.Files, 4)
	assert.Equal(t, "000_My_Song__Live__50_.mp3", o.Files[0].Name)
	assert.Equal(t, "003_My_Song__Live__50_.mp3", o.Files[3].Name)
	assert.Equal(t, int64(7), o.Files[0].SizeBytes)

	assert.Equal(t, PhaseCompleted, f.sup.Phase())
	_, running := f.sup.WorkerStatus()
	assert.False(t, running)

	f.rec.lock.Lock()
	defer f.rec.lock.Unlock()

	assert.Equal(t, "outcome", f.rec.order[len(f.rec.order)-1])
	require.Len(t, f.rec.outcomes, 1)
	assert.Equal(t, PhaseProbing, f.rec.progress[0].Phase)

	var at1200 *Progress
	for i := range f.rec.progress {
		p := f.rec.progress[i]
		assert.LessOrEqual(t, p.Fraction, 1.0)
		assert.LessOrEqual(t, p.CurrentSegment, p.TotalSegments)
		if p.MediaTime == 1200 {
			at1200 = &f.rec.progress[i]
		}
	}
	require.NotNil(t, at1200)
	assert.Equal(t, 4, at1200.TotalSegments)
	assert.Equal(t, 2, at1200.CurrentSegment)
	assert.InDelta(t, 0.665, at1200.Fraction, 0.001)

	last := f.rec.progress[len(f.rec.progress)-1]
	assert.Equal(t, PhaseCompleted, last.Phase)
	assert.Equal(t, 1.0, last.Fraction)

	var messages []string
	for _, l := range f.rec.logs {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "generating segment 1 of 4")
	assert.Contains(t, messages, "generating segment 3 of 4")
	assert.Contains(t, messages, "generating segment 4 of 4")

	lines := f.sup.Log()
	require.NotEmpty(t, lines)
	assert.Equal(t, "progress=end", lines[len(lines)-1].Data)
}

func TestWorkerKilledWithoutCancelFails(t *testing.T) {
	f := newFixture(t, probe1805, "echo 'out_time_ms=1000000'\nexit 137\n", time.Second, 5*time.Second)

	_, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)

	o := f.wait(t)
	assert.Equal(t, StatusFailure, o.Status)
	require.NotNil(t, o.Error)
	assert.Equal(t, errors.KindWorkerExitNonZero, o.Error.Kind)
	assert.Equal(t, 137, o.Error.Code)
	assert.True(t, errors.Is(o.Error, errors.ErrWorkerExitNonZero))
	assert.Equal(t, PhaseFailed, f.sup.Phase())
}

func TestZeroDurationKeepsProgressInRange(t *testing.T) {
	f := newFixture(t, `echo '{"format": {"duration": "0"}}'
`, "echo 'out_time_ms=1200000000'\necho 'progress=end'\n", time.Second, 5*time.Second)

	_, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)
	o := f.wait(t)
	assert.True(t, o.Success())

	f.rec.lock.Lock()
	defer f.rec.lock.Unlock()
	require.NotEmpty(t, f.rec.progress)
	for _, p := range f.rec.progress {
		assert.Equal(t, 0, p.TotalSegments)
		assert.Equal(t, 0, p.CurrentSegment)
		assert.Equal(t, 0.0, p.MediaTime)
		assert.Equal(t, 0.0, p.Fraction)
	}
}

func TestDiagnosticLinesAreLogged(t *testing.T) {
	f := newFixture(t, probe1805, "echo 'Error while decoding stream #0:0' 1>&2\nexit 1\n", time.Second, 5*time.Second)

	_, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)
	o := f.wait(t)
	assert.Equal(t, 1, o.Error.Code)

	f.rec.lock.Lock()
	defer f.rec.lock.Unlock()
	var diagnostics []string
	for _, l := range f.rec.logs {
		if l.Level == LogError {
			diagnostics = append(diagnostics, l.Message)
		}
	}
	assert.Equal(t, []string{"Error while decoding stream #0:0"}, diagnostics)
}

const runUntilStopped = `for last; do :; done
trap 'echo "stopping"; exit 0' TERM
printf 'mp3data' > "$(printf "$last" 0)"
echo "out_time_ms=30000000"
while true; do sleep 0.05; done
`

func TestCancelledRunCompletes(t *testing.T) {
	f := newFixture(t, probe1805, runUntilStopped, 5*time.Second, 5*time.Second)

	_, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)
	require.Eventually(t, f.rec.sampled, 5*time.Second, 10*time.Millisecond)

	status, ok := f.sup.WorkerStatus()
	require.True(t, ok)
	assert.NotZero(t, status.Pid)

	assert.True(t, f.sup.Cancel())
	assert.False(t, f.sup.Cancel())

	o := f.wait(t)
	assert.True(t, o.Success())
	assert.True(t, o.Cancelled)
	require.Len(t, o.Files, 1)
	assert.Equal(t, PhaseCompleted, f.sup.Phase())
	assert.True(t, f.sup.Snapshot().CancelRequested)

	f.rec.lock.Lock()
	defer f.rec.lock.Unlock()
	var phases []Phase
	for _, p := range f.rec.progress {
		phases = append(phases, p.Phase)
	}
	assert.Contains(t, phases, PhaseStopping)
}

func TestCancelKillsStubbornWorker(t *testing.T) {
	f := newFixture(t, probe1805, `trap '' TERM
echo "out_time_ms=1000000"
while true; do sleep 0.05; done
`, 200*time.Millisecond, 5*time.Second)

	_, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)
	require.Eventually(t, f.rec.sampled, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	f.sup.Cancel()
	o := f.wait(t)

	assert.True(t, o.Success())
	assert.True(t, o.Cancelled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestShutdownTimeoutWhenOutputStaysOpen(t *testing.T) {
	// 后台 sleep 继承了 stdout，worker 被 kill 后管道仍未关闭
	f := newFixture(t, probe1805, `sleep 3 &
trap '' TERM
echo "out_time_ms=1000000"
while true; do sleep 0.05; done
`, 100*time.Millisecond, 300*time.Millisecond)

	_, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)
	require.Eventually(t, f.rec.sampled, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	f.sup.Cancel()
	o := f.wait(t)

	require.NotNil(t, o.Error)
	assert.Equal(t, errors.KindShutdownTimeout, o.Error.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, PhaseFailed, f.sup.Phase())
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	f := newFixture(t, probe1805, runUntilStopped, 5*time.Second, 5*time.Second)

	id, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)

	_, err = f.sup.Start(context.Background(), f.request())
	assert.True(t, errors.Is(err, errors.ErrAlreadyRunning))
	assert.Equal(t, id, f.sup.Snapshot().RunID)
	assert.Equal(t, PhaseRunning, f.sup.Phase())

	f.sup.Cancel()
	o := f.wait(t)
	assert.Equal(t, id, o.RunID)

	f.rec.lock.Lock()
	assert.Len(t, f.rec.outcomes, 1)
	f.rec.lock.Unlock()
}

func TestCancelWithoutActiveRunIsNoop(t *testing.T) {
	f := newFixture(t, probe1805, splitFour, time.Second, 5*time.Second)

	assert.False(t, f.sup.Cancel())
	assert.Equal(t, PhaseIdle, f.sup.Phase())
	_, err := f.sup.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoRun)

	_, err = f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)
	before := f.wait(t)

	assert.False(t, f.sup.Cancel())
	assert.Equal(t, PhaseCompleted, f.sup.Phase())
	after, ok := f.sup.Outcome()
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.False(t, f.sup.Snapshot().CancelRequested)
}

func TestProbeWithoutDurationNeverRuns(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	f := newFixture(t, `echo '{"format": {"size": "100"}}'
`, "touch '"+marker+"'\nexit 0\n", time.Second, 5*time.Second)

	id, err := f.sup.Start(context.Background(), f.request())
	assert.Equal(t, errors.KindMalformedOutput, errors.KindOf(err))
	assert.NotEmpty(t, id)

	o := f.wait(t)
	assert.Equal(t, StatusFailure, o.Status)
	assert.Equal(t, errors.KindMalformedOutput, o.Error.Kind)
	assert.Equal(t, PhaseFailed, f.sup.Phase())
	assert.NoFileExists(t, marker)

	f.rec.lock.Lock()
	defer f.rec.lock.Unlock()
	for _, p := range f.rec.progress {
		assert.NotEqual(t, PhaseRunning, p.Phase)
	}
}

func TestInvalidRequestCreatesNoRun(t *testing.T) {
	f := newFixture(t, probe1805, splitFour, time.Second, 5*time.Second)

	req := f.request()
	req.InputPath = filepath.Join(t.TempDir(), "missing.m4a")
	_, err := f.sup.Start(context.Background(), req)
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))

	req = f.request()
	req.SegmentSeconds = 0
	_, err = f.sup.Start(context.Background(), req)
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))

	assert.Equal(t, PhaseIdle, f.sup.Phase())
	_, ok := f.sup.Outcome()
	assert.False(t, ok)
	f.rec.lock.Lock()
	assert.Empty(t, f.rec.order)
	f.rec.lock.Unlock()
}

func TestCancelWhileProbing(t *testing.T) {
	f := newFixture(t, "exec sleep 5\n", splitFour, time.Second, 5*time.Second)

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := f.sup.Start(context.Background(), f.request())
		done <- result{id, err}
	}()

	require.Eventually(t, func() bool { return f.sup.Phase() == PhaseProbing }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, f.sup.Cancel())

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.NotEmpty(t, res.id)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	o := f.wait(t)
	assert.True(t, o.Success())
	assert.True(t, o.Cancelled)
	assert.Empty(t, o.Files)
	assert.Equal(t, PhaseCompleted, f.sup.Phase())
}

type panicSink struct{ recorder }

func (p *panicSink) Progress(Progress) { panic("render failed") }

func TestSinkPanicKeepsOutcome(t *testing.T) {
	f := newFixture(t, probe1805, splitFour, time.Second, 5*time.Second)
	sink := &panicSink{}
	f.sup.sink = sink

	_, err := f.sup.Start(context.Background(), f.request())
	require.NoError(t, err)

	o := f.wait(t)
	assert.True(t, o.Success())
	sink.lock.Lock()
	defer sink.lock.Unlock()
	require.Len(t, sink.outcomes, 1)
	assert.True(t, sink.outcomes[0].Success())
}

func TestDefaultOutputDirIsInputDir(t *testing.T) {
	f := newFixture(t, probe1805, splitFour, time.Second, 5*time.Second)

	_, err := f.sup.Start(context.Background(), Request{InputPath: f.input, SegmentSeconds: 600})
	require.NoError(t, err)

	o := f.wait(t)
	assert.Equal(t, filepath.Dir(f.input), o.OutputDir)
	require.Len(t, o.Files, 4)
	assert.True(t, strings.HasPrefix(o.Files[0].Path, filepath.Dir(f.input)))
}

func TestShutdownWithoutRun(t *testing.T) {
	f := newFixture(t, probe1805, splitFour, time.Second, 5*time.Second)
	assert.NoError(t, f.sup.Shutdown(context.Background()))
}

func TestNewRequiresToolchain(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
