package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/internal/model"
	"github.com/fleetview/animator/internal/model/convert"
	"github.com/fleetview/animator/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		Username: "fleet",
		Password: "secret",
		Database: "fleetview",
	}
	assert.Equal(t, "host=db port=5432 user=fleet password=secret dbname=fleetview sslmode=disable", PostgresDSN(cfg))

	cfg.SSLMode = "require"
	assert.Contains(t, PostgresDSN(cfg), "sslmode=require")
}

func TestConnect_Sqlite(t *testing.T) {
	m := NewManager(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "fleetview.db")

	require.NoError(t, m.Connect(config.DatabaseConfig{Driver: "sqlite", SqlitePath: path}))
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	assert.Equal(t, path, m.SqliteFilePath)

	require.NoError(t, m.Setup())
	for _, table := range []string{"sessions", "routes", "markers", "marker_states"} {
		assert.True(t, m.DB.Migrator().HasTable(table), table)
	}
}

func TestConnect_PostgresFallsBackToSqlite(t *testing.T) {
	m := NewManager(zerolog.Nop())
	cfg := config.DatabaseConfig{
		Driver:   "postgres",
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "nobody",
		Database: "none",
	}

	require.NoError(t, m.Connect(cfg))
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	assert.Equal(t, "sqlite", m.DB.Dialector.Name())
}

func TestSetup_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.ErrorIs(t, m.Setup(), ErrNotConnected)
}

func TestDumpMemoryToDisk(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.Connect(config.DatabaseConfig{Driver: "sqlite", SqlitePath: filepath.Join(dir, "dump.db")}))
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Setup())

	require.NoError(t, m.DB.Create(&model.Session{Name: "dump"}).Error)
	require.NoError(t, m.DumpMemoryToDisk())

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "dump.db")}, paths)

	// the dump replaces an existing file
	require.NoError(t, m.DumpMemoryToDisk())
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := OpenSqlite(MemoryDSN)
	require.NoError(t, err)
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestGetBackupDBPaths_MissingDir(t *testing.T) {
	_, err := GetBackupDBPaths(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDump_ReadBackThroughOpenSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readback.db")
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.Connect(config.DatabaseConfig{Driver: DriverSQLite, SqlitePath: path}))
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Setup())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	karachi := core.LatLng{Lat: 24.8607, Lng: 67.0011}

	session := convert.CoreToSession(core.Session{Name: "readback", StartTime: start, Version: "0.1.0"})
	require.NoError(t, m.DB.Create(&session).Error)

	route, err := convert.CoreToRoute(core.Route{
		Class:    core.Truck,
		Path:     core.Path{karachi, {Lat: 24.87, Lng: 67.02}},
		Duration: 5 * time.Second,
		Time:     start,
	})
	require.NoError(t, err)
	route.SessionID = session.ID
	require.NoError(t, m.DB.Create(&route).Error)

	marker, err := convert.CoreToMarker(core.Marker{ID: 3, Style: core.StyleFor(core.Truck), Position: karachi, Time: start})
	require.NoError(t, err)
	marker.SessionID = session.ID
	require.NoError(t, m.DB.Create(&marker).Error)

	state, err := convert.CoreToMarkerState(core.MarkerState{MarkerID: 3, Position: karachi, Time: start.Add(time.Second)}, 45)
	require.NoError(t, err)
	state.SessionID = session.ID
	state.MarkerID = marker.ID
	require.NoError(t, m.DB.Create(&state).Error)

	require.NoError(t, m.DumpMemoryToDisk())

	db, err := OpenSqlite(path)
	require.NoError(t, err)
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}

	var sessions []model.Session
	require.NoError(t, db.Where("name = ?", "readback").Find(&sessions).Error)
	require.Len(t, sessions, 1)
	assert.True(t, start.Equal(sessions[0].StartTime), "start time %v", sessions[0].StartTime)

	var routes []model.Route
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&routes).Error)
	require.Len(t, routes, 1)
	assert.True(t, start.Equal(routes[0].Time))
	assert.Equal(t, 2, routes[0].Path.Coordinates().Length())

	var markers []model.Marker
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&markers).Error)
	require.Len(t, markers, 1)
	assert.True(t, start.Equal(markers[0].Time))
	got := convert.MarkerToCore(markers[0])
	assert.InDelta(t, karachi.Lat, got.Position.Lat, 1e-7)

	var states []model.MarkerState
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&states).Error)
	require.Len(t, states, 1)
	assert.True(t, start.Add(time.Second).Equal(states[0].Time))
	assert.Equal(t, float32(45), states[0].Bearing)
}
