// Package monitor periodically writes a status snapshot of the animator to
// a JSON file next to the logs.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleetview/animator/internal/motion"
	"github.com/rs/zerolog"
)

// FileName is the status file written in the monitor directory.
const FileName = "status.json"

// QueueStats reports a writer's backlog.
type QueueStats interface {
	Pending() int
	Dropped() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	// Status reads the layer, typically through the frame loop.
	Status          func() (motion.LayerStatus, error)
	Recorder        QueueStats
	IsDatabaseValid func() bool
	Logger          zerolog.Logger
	Dir             string
	Session         string
	Interval        time.Duration
}

// RecorderStatus is the recorder part of a snapshot.
type RecorderStatus struct {
	Pending       int  `json:"pending"`
	Dropped       int  `json:"dropped"`
	DatabaseValid bool `json:"databaseValid"`
}

// Snapshot is the content of the status file.
type Snapshot struct {
	Time     time.Time          `json:"time"`
	Session  string             `json:"session"`
	Uptime   string             `json:"uptime"`
	Layer    motion.LayerStatus `json:"layer"`
	Markers  int                `json:"markers"`
	Recorder *RecorderStatus    `json:"recorder,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	now       func() time.Time
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	return &Service{
		deps:    deps,
		started: time.Now(),
		now:     time.Now,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Path returns the status file path.
func (s *Service) Path() string {
	return filepath.Join(s.deps.Dir, FileName)
}

// GetProgramStatus builds the current snapshot.
func (s *Service) GetProgramStatus() (Snapshot, error) {
	layer, err := s.deps.Status()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read layer status: %w", err)
	}

	now := s.now()
	snap := Snapshot{
		Time:    now,
		Session: s.deps.Session,
		Uptime:  now.Sub(s.started).Round(time.Second).String(),
		Layer:   layer,
	}
	for _, d := range layer.Drivers {
		if d.Marker != 0 {
			snap.Markers++
		}
	}
	if s.deps.Recorder != nil {
		snap.Recorder = &RecorderStatus{
			Pending: s.deps.Recorder.Pending(),
			Dropped: s.deps.Recorder.Dropped(),
		}
		if s.deps.IsDatabaseValid != nil {
			snap.Recorder.DatabaseValid = s.deps.IsDatabaseValid()
		}
	}
	return snap, nil
}

// WriteStatus replaces the status file with the current snapshot.
func (s *Service) WriteStatus() error {
	snap, err := s.GetProgramStatus()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	return os.Rename(tmp, s.Path())
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(s.deps.Dir, 0o755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("error creating status dir: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug().Str("path", s.Path()).Msg("Starting status monitor")
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					s.deps.Logger.Error().Err(err).Msg("Error writing status file")
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
