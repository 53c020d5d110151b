package monitor

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct{ pending, dropped int }

func (q fakeQueue) Pending() int { return q.pending }
func (q fakeQueue) Dropped() int { return q.dropped }

func layerStatus() (motion.LayerStatus, error) {
	return motion.LayerStatus{
		Visible:      true,
		ViewAttached: true,
		Classes:      []core.VehicleClass{core.Bike, core.Car},
		Drivers: []motion.DriverStatus{
			{Class: core.Bike, State: "running", Marker: 1},
			{Class: core.Car, State: "running", Marker: 2},
		},
	}, nil
}

func TestGetProgramStatus(t *testing.T) {
	s := NewService(Dependencies{
		Status:          layerStatus,
		Recorder:        fakeQueue{pending: 4, dropped: 1},
		IsDatabaseValid: func() bool { return true },
		Session:         "dispatch",
		Dir:             t.TempDir(),
	})

	snap, err := s.GetProgramStatus()
	require.NoError(t, err)
	assert.Equal(t, "dispatch", snap.Session)
	assert.Equal(t, 2, snap.Markers)
	assert.True(t, snap.Layer.Visible)
	require.NotNil(t, snap.Recorder)
	assert.Equal(t, RecorderStatus{Pending: 4, Dropped: 1, DatabaseValid: true}, *snap.Recorder)
}

func TestGetProgramStatus_NoRecorder(t *testing.T) {
	s := NewService(Dependencies{Status: layerStatus, Dir: t.TempDir()})
	snap, err := s.GetProgramStatus()
	require.NoError(t, err)
	assert.Nil(t, snap.Recorder)
}

func TestGetProgramStatus_StatusError(t *testing.T) {
	boom := errors.New("loop stopped")
	s := NewService(Dependencies{
		Status: func() (motion.LayerStatus, error) { return motion.LayerStatus{}, boom },
		Dir:    t.TempDir(),
	})
	_, err := s.GetProgramStatus()
	assert.ErrorIs(t, err, boom)
	assert.Error(t, s.WriteStatus())
}

func TestWriteStatus(t *testing.T) {
	s := NewService(Dependencies{Status: layerStatus, Session: "dispatch", Dir: t.TempDir()})
	require.NoError(t, s.WriteStatus())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "dispatch", snap.Session)
	require.Len(t, snap.Layer.Drivers, 2)
	assert.Equal(t, core.Car, snap.Layer.Drivers[1].Class)
}

func TestStartStop(t *testing.T) {
	s := NewService(Dependencies{
		Status:   layerStatus,
		Logger:   zerolog.Nop(),
		Dir:      t.TempDir(),
		Interval: 10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(s.Path())
		return err == nil
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}
