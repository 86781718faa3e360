package replay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"Replaya/internal/config"
)

// Session states. A continuous session cycles starting -> running between
// loops; everything else is a one-way walk to a terminal state.
const (
	StatusIdle      = "idle"
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
	StatusError     = "error"
)

const (
	SpeedUnitMultiplier = "multiplier"
	SpeedUnitPPS        = "pps"
)

var (
	ErrAlreadyRunning = errors.New("replay already in progress")
	ErrSpawnFailure   = errors.New("failed to spawn tcpreplay")
)

// Request describes one replay session.
type Request struct {
	File       string  `json:"file"`
	Interface  string  `json:"interface"`
	Speed      float64 `json:"speed"`
	SpeedUnit  string  `json:"speed_unit"`
	Continuous bool    `json:"continuous"`
}

func (r *Request) validate() error {
	if r.File == "" {
		return errors.New("file is required")
	}
	if r.Interface == "" {
		return errors.New("interface is required")
	}
	if r.Speed <= 0 {
		return errors.New("speed must be positive")
	}
	switch r.SpeedUnit {
	case "":
		r.SpeedUnit = SpeedUnitMultiplier
	case SpeedUnitMultiplier, SpeedUnitPPS:
	default:
		return fmt.Errorf("unknown speed unit %q", r.SpeedUnit)
	}
	return nil
}

// Snapshot is a consistent view of the current (or last) session.
type Snapshot struct {
	ReplayID    string    `json:"replay_id,omitempty"`
	File        string    `json:"file,omitempty"`
	Interface   string    `json:"interface,omitempty"`
	Speed       float64   `json:"speed,omitempty"`
	SpeedUnit   string    `json:"speed_unit,omitempty"`
	Continuous  bool      `json:"continuous"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	PacketsSent int64     `json:"packets_sent"`
	BytesSent   int64     `json:"bytes_sent"`
	DurationSec float64   `json:"duration_seconds"`
	PPS         float64   `json:"pps,omitempty"`
	LoopCount   int       `json:"loop_count"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// ProgressSink receives throttled progress updates and terminal status
// snapshots. Publish errors are logged, never propagated to the session.
type ProgressSink interface {
	PublishProgress(snap Snapshot) error
	PublishStatus(snap Snapshot) error
}

// HistoryRecord is what the supervisor hands to the history sink when a
// session reaches a terminal state.
type HistoryRecord struct {
	ReplayID    string    `json:"replay_id"`
	File        string    `json:"file"`
	Interface   string    `json:"interface"`
	Speed       float64   `json:"speed"`
	SpeedUnit   string    `json:"speed_unit"`
	Continuous  bool      `json:"continuous"`
	Status      string    `json:"status"`
	PacketsSent int64     `json:"packets_sent"`
	LoopCount   int       `json:"loop_count"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

type HistoryRecorder interface {
	Record(rec HistoryRecord) error
}

// Supervisor runs at most one tcpreplay session at a time and tracks its
// lifecycle. All exported methods are safe for concurrent use.
type Supervisor struct {
	binPath      string
	assumed      time.Duration
	grace        time.Duration
	pushInterval time.Duration

	sinks    []ProgressSink
	recorder HistoryRecorder

	mu            sync.Mutex
	running       bool
	stopRequested bool
	proc          *os.Process
	procDone      chan struct{}
	sessionDone   chan struct{}
	stats         Snapshot
	lastPush      time.Time
}

func NewSupervisor(cfg config.ReplayConfig) *Supervisor {
	bin := cfg.TcpreplayPath
	if bin == "" {
		bin = "tcpreplay"
	}
	assumed := time.Duration(cfg.AssumedDurationSec * float64(time.Second))
	if assumed <= 0 {
		assumed = 10 * time.Second
	}
	return &Supervisor{
		binPath:      bin,
		assumed:      assumed,
		grace:        5 * time.Second,
		pushInterval: 2 * time.Second,
		stats:        Snapshot{Status: StatusIdle},
	}
}

// AddSink registers a progress sink. Not safe to call once a session may be
// running.
func (s *Supervisor) AddSink(sink ProgressSink) {
	s.sinks = append(s.sinks, sink)
}

func (s *Supervisor) SetRecorder(r HistoryRecorder) {
	s.recorder = r
}

// Start spawns a tcpreplay child for the request and returns its session id.
// A second Start while a session is live fails with ErrAlreadyRunning.
func (s *Supervisor) Start(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	if _, err := os.Stat(req.File); err != nil {
		return "", fmt.Errorf("capture file: %w", err)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	id := uuid.NewString()
	s.running = true
	s.stopRequested = false
	s.sessionDone = make(chan struct{})
	s.stats = Snapshot{
		ReplayID:   id,
		File:       req.File,
		Interface:  req.Interface,
		Speed:      req.Speed,
		SpeedUnit:  req.SpeedUnit,
		Continuous: req.Continuous,
		Status:     StatusStarting,
		StartedAt:  time.Now(),
	}
	s.lastPush = time.Time{}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"replay_id": id,
		"file":      req.File,
		"interface": req.Interface,
	}).Info("Starting replay session")

	cmd, stdout, stderr, err := s.spawn(ctx, req)
	if err != nil {
		s.finish(StatusError, err.Error())
		return "", fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}

	go s.monitor(ctx, req, cmd, stdout, stderr)
	return id, nil
}

// Stop terminates the running session: SIGTERM first, SIGKILL after the
// grace period. It returns false when no session is live, and does not
// return true until the session has reached its terminal state.
func (s *Supervisor) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.stopRequested = true
	proc := s.proc
	procDone := s.procDone
	sessionDone := s.sessionDone
	s.mu.Unlock()

	if proc != nil {
		logrus.Info("Sending SIGTERM to tcpreplay process")
		_ = proc.Signal(syscall.SIGTERM)
		select {
		case <-procDone:
			logrus.Info("tcpreplay process terminated gracefully")
		case <-time.After(s.grace):
			logrus.Info("Forcing kill of tcpreplay process")
			_ = proc.Kill()
		}
	}
	<-sessionDone
	return true
}

// Status returns a copy of the current session state.
func (s *Supervisor) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Supervisor) spawn(ctx context.Context, req Request) (*exec.Cmd, io.ReadCloser, *bytes.Buffer, error) {
	cmd := exec.CommandContext(ctx, s.binPath, buildArgs(req)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	s.mu.Lock()
	s.proc = cmd.Process
	s.procDone = make(chan struct{})
	s.mu.Unlock()
	return cmd, stdout, &stderr, nil
}

// monitor owns the child's lifecycle. The mutex is only taken for state
// mutation, never across a blocking read or wait.
func (s *Supervisor) monitor(ctx context.Context, req Request, cmd *exec.Cmd, stdout io.ReadCloser, stderr *bytes.Buffer) {
	for {
		s.mu.Lock()
		s.stats.LoopCount++
		s.stats.Status = StatusRunning
		loop := s.stats.LoopCount
		s.mu.Unlock()
		if req.Continuous && loop > 1 {
			logrus.Infof("Starting loop #%d for continuous replay %s", loop, s.stats.ReplayID)
		}
		s.pushStatus()

		s.consume(stdout)
		waitErr := cmd.Wait()

		s.mu.Lock()
		close(s.procDone)
		stopReq := s.stopRequested
		s.mu.Unlock()

		switch {
		case stopReq:
			s.finish(StatusStopped, "")
			return
		case waitErr != nil:
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = waitErr.Error()
			}
			s.finish(StatusFailed, msg)
			return
		case !req.Continuous:
			s.mu.Lock()
			s.stats.Progress = 100
			s.mu.Unlock()
			s.finish(StatusCompleted, "")
			return
		}

		// Continuous mode, clean exit: reset and go again.
		s.mu.Lock()
		s.stats.Progress = 0
		s.stats.Status = StatusStarting
		s.mu.Unlock()

		var spawnErr error
		cmd, stdout, stderr, spawnErr = s.spawn(ctx, req)
		if spawnErr != nil {
			s.finish(StatusError, spawnErr.Error())
			return
		}
	}
}

func (s *Supervisor) consume(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		s.handleLine(scanner.Text())
	}
}

func (s *Supervisor) handleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	if st, ok := parseSummaryLine(line); ok {
		s.mu.Lock()
		s.stats.PacketsSent = st.Packets
		s.stats.BytesSent = st.Bytes
		s.stats.DurationSec = st.Duration
		s.stats.Progress = 100
		s.mu.Unlock()
		logrus.Infof("Replay summary: %d packets (%d bytes) sent in %.2f seconds",
			st.Packets, st.Bytes, st.Duration)
		s.pushProgress(true)
		return
	}
	if pps, ok := parseRatedLine(line); ok {
		s.mu.Lock()
		s.stats.PPS = pps
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		if s.stats.Progress < 100 {
			s.stats.Progress = heuristicProgress(time.Since(s.stats.StartedAt), s.assumed)
		}
		s.mu.Unlock()
	}
	s.pushProgress(false)
}

// finish records the terminal state and releases the single-flight slot.
func (s *Supervisor) finish(status, errMsg string) {
	s.mu.Lock()
	s.stats.Status = status
	s.stats.Error = errMsg
	s.stats.FinishedAt = time.Now()
	s.running = false
	snap := s.stats
	close(s.sessionDone)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"replay_id": snap.ReplayID,
		"status":    status,
		"packets":   snap.PacketsSent,
		"loops":     snap.LoopCount,
	}).Info("Replay session finished")

	for _, sink := range s.sinks {
		if err := sink.PublishStatus(snap); err != nil {
			logrus.Warnf("Failed to publish replay status: %v", err)
		}
	}
	if s.recorder != nil {
		rec := HistoryRecord{
			ReplayID:    snap.ReplayID,
			File:        snap.File,
			Interface:   snap.Interface,
			Speed:       snap.Speed,
			SpeedUnit:   snap.SpeedUnit,
			Continuous:  snap.Continuous,
			Status:      snap.Status,
			PacketsSent: snap.PacketsSent,
			LoopCount:   snap.LoopCount,
			Error:       snap.Error,
			StartedAt:   snap.StartedAt,
			FinishedAt:  snap.FinishedAt,
		}
		if err := s.recorder.Record(rec); err != nil {
			logrus.Warnf("Failed to record replay history: %v", err)
		}
	}
}

// pushProgress publishes the current snapshot, at most once per push
// interval unless forced.
func (s *Supervisor) pushProgress(force bool) {
	s.mu.Lock()
	if !force && time.Since(s.lastPush) < s.pushInterval {
		s.mu.Unlock()
		return
	}
	s.lastPush = time.Now()
	snap := s.stats
	s.mu.Unlock()

	for _, sink := range s.sinks {
		if err := sink.PublishProgress(snap); err != nil {
			logrus.Debugf("Failed to publish replay progress: %v", err)
		}
	}
}

func (s *Supervisor) pushStatus() {
	s.mu.Lock()
	snap := s.stats
	s.mu.Unlock()
	for _, sink := range s.sinks {
		if err := sink.PublishStatus(snap); err != nil {
			logrus.Debugf("Failed to publish replay status: %v", err)
		}
	}
}
