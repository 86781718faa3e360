package replay

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replaya/internal/config"
)

// writeStub creates a fake tcpreplay executable for lifecycle tests.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tcpreplay-stub")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func writeCaptureStub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pcap")
	require.NoError(t, os.WriteFile(path, []byte{0xd4, 0xc3, 0xb2, 0xa1}, 0o644))
	return path
}

func newTestSupervisor(t *testing.T, script string) *Supervisor {
	t.Helper()
	sup := NewSupervisor(config.ReplayConfig{
		TcpreplayPath:      writeStub(t, script),
		AssumedDurationSec: 1,
	})
	sup.grace = 2 * time.Second
	return sup
}

// recordingSink collects every published snapshot.
type recordingSink struct {
	mu       sync.Mutex
	statuses []Snapshot
}

func (s *recordingSink) PublishProgress(snap Snapshot) error { return nil }

func (s *recordingSink) PublishStatus(snap Snapshot) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, snap)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) last() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return Snapshot{}, false
	}
	return s.statuses[len(s.statuses)-1], true
}

type recordingRecorder struct {
	mu   sync.Mutex
	recs []HistoryRecord
}

func (r *recordingRecorder) Record(rec HistoryRecord) error {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
	return nil
}

func waitForTerminal(t *testing.T, sup *Supervisor) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = sup.Status()
		switch snap.Status {
		case StatusCompleted, StatusStopped, StatusFailed, StatusError:
			return true
		}
		return false
	}, 10*time.Second, 20*time.Millisecond)
	return snap
}

func TestStartCompletedWithSummary(t *testing.T) {
	sup := newTestSupervisor(t, `
echo "Rated: 77648.8 Bps, 0.62 Mbps, 137.25 pps"
echo "Actual: 78 packets (49693 bytes) sent in 0.10 seconds"
exit 0
`)
	sink := &recordingSink{}
	rec := &recordingRecorder{}
	sup.AddSink(sink)
	sup.SetRecorder(rec)

	id, err := sup.Start(context.Background(), Request{
		File:      writeCaptureStub(t),
		Interface: "eth0",
		Speed:     1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := waitForTerminal(t, sup)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, int64(78), snap.PacketsSent)
	assert.Equal(t, int64(49693), snap.BytesSent)
	assert.InDelta(t, 0.10, snap.DurationSec, 0.001)
	assert.InDelta(t, 137.25, snap.PPS, 0.001)
	assert.Equal(t, 1, snap.LoopCount)
	assert.Equal(t, id, snap.ReplayID)

	last, ok := sink.last()
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, last.Status)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.recs, 1)
	assert.Equal(t, id, rec.recs[0].ReplayID)
	assert.Equal(t, StatusCompleted, rec.recs[0].Status)
	assert.Equal(t, int64(78), rec.recs[0].PacketsSent)
}

func TestSecondStartFailsWhileRunning(t *testing.T) {
	sup := newTestSupervisor(t, `
trap 'exit 0' TERM
sleep 30 &
wait $!
`)
	file := writeCaptureStub(t)

	_, err := sup.Start(context.Background(), Request{File: file, Interface: "eth0", Speed: 1})
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), Request{File: file, Interface: "eth0", Speed: 1})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.True(t, sup.Stop())
	assert.Equal(t, StatusStopped, sup.Status().Status)
}

func TestStopWhileRunning(t *testing.T) {
	sup := newTestSupervisor(t, `
trap 'exit 0' TERM
sleep 30 &
wait $!
`)
	_, err := sup.Start(context.Background(), Request{
		File:      writeCaptureStub(t),
		Interface: "eth0",
		Speed:     1,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sup.Status().Status == StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.True(t, sup.Stop())

	snap := sup.Status()
	assert.Equal(t, StatusStopped, snap.Status)
	assert.False(t, snap.FinishedAt.IsZero())

	// A second Stop has nothing to do.
	assert.False(t, sup.Stop())
}

func TestStopWithoutSession(t *testing.T) {
	sup := newTestSupervisor(t, "exit 0")
	assert.False(t, sup.Stop())
	assert.Equal(t, StatusIdle, sup.Status().Status)
}

func TestContinuousLoops(t *testing.T) {
	sup := newTestSupervisor(t, `
echo "Actual: 10 packets (640 bytes) sent in 0.01 seconds"
exit 0
`)
	_, err := sup.Start(context.Background(), Request{
		File:       writeCaptureStub(t),
		Interface:  "eth0",
		Speed:      1,
		Continuous: true,
	})
	require.NoError(t, err)

	// The session keeps looping on its own.
	require.Eventually(t, func() bool {
		return sup.Status().LoopCount >= 3
	}, 10*time.Second, 10*time.Millisecond)

	require.True(t, sup.Stop())

	snap := sup.Status()
	assert.Equal(t, StatusStopped, snap.Status)
	assert.GreaterOrEqual(t, snap.LoopCount, 3)
}

func TestFailureCapturesStderr(t *testing.T) {
	sup := newTestSupervisor(t, `
echo "Fatal Error: Unable to send packet: Operation not permitted" >&2
exit 1
`)
	_, err := sup.Start(context.Background(), Request{
		File:      writeCaptureStub(t),
		Interface: "eth0",
		Speed:     1,
	})
	require.NoError(t, err)

	snap := waitForTerminal(t, sup)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "Operation not permitted")
}

func TestStartSpawnFailure(t *testing.T) {
	sup := NewSupervisor(config.ReplayConfig{
		TcpreplayPath:      filepath.Join(t.TempDir(), "does-not-exist"),
		AssumedDurationSec: 1,
	})
	_, err := sup.Start(context.Background(), Request{
		File:      writeCaptureStub(t),
		Interface: "eth0",
		Speed:     1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailure)
	assert.Equal(t, StatusError, sup.Status().Status)

	// The slot is free again after a spawn failure.
	assert.False(t, sup.Stop())
}

func TestStartMissingFile(t *testing.T) {
	sup := newTestSupervisor(t, "exit 0")
	_, err := sup.Start(context.Background(), Request{
		File:      filepath.Join(t.TempDir(), "missing.pcap"),
		Interface: "eth0",
		Speed:     1,
	})
	assert.Error(t, err)
	assert.False(t, sup.Stop())
}

func TestCheckUtility(t *testing.T) {
	stub := writeStub(t, `echo "tcpreplay version: 4.4.4 (build git:v4.4.4)"`)
	info := CheckUtility(stub)
	assert.True(t, info.Available)
	assert.Contains(t, info.Version, "4.4.4")

	info = CheckUtility(filepath.Join(t.TempDir(), "nope"))
	assert.False(t, info.Available)
	assert.NotEmpty(t, info.Error)
}
