package recorder

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fleetview/animator/internal/database"
	"github.com/fleetview/animator/internal/geo"
	"github.com/fleetview/animator/internal/model"
	"github.com/fleetview/animator/internal/view"
	"github.com/fleetview/animator/internal/view/memory"
	"github.com/fleetview/animator/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start = core.LatLng{Lat: 24.865, Lng: 67.01}
	north = core.LatLng{Lat: 24.875, Lng: 67.01}
	east  = core.LatLng{Lat: 24.875, Lng: 67.02}
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSqlite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.DatabaseModelsSQLite...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newRecorder(t *testing.T, cfg Config) (*Recorder, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	r := New(cfg, Dependencies{DB: db, Logger: zerolog.Nop()})
	session := &core.Session{Name: "test", Version: "dev", StartTime: t0, Center: start, Zoom: 13}
	require.NoError(t, r.StartSession(session))
	require.NotZero(t, session.ID)
	return r, db
}

func placed(id core.MarkerID, class core.VehicleClass, at time.Time) core.Marker {
	return core.Marker{ID: id, Style: core.StyleFor(class), Position: start, Time: at}
}

func moved(id core.MarkerID, pos core.LatLng, at time.Time) core.MarkerState {
	return core.MarkerState{MarkerID: id, Position: pos, Time: at}
}

func TestRecorder_FullTimeline(t *testing.T) {
	r, db := newRecorder(t, Config{})

	require.NoError(t, r.RecordRoute(core.Route{
		Class:    core.Car,
		Path:     core.Path{start, north, east},
		Duration: 3 * time.Second,
		Time:     t0,
	}))
	r.MarkerPlaced(placed(1, core.Car, t0))
	r.MarkerMoved(moved(1, north, t0.Add(time.Second)))
	r.MarkerMoved(moved(1, east, t0.Add(2*time.Second)))
	r.MarkerRemoved(core.DeleteMarker{MarkerID: 1, Time: t0.Add(3 * time.Second)})
	assert.Equal(t, 5, r.Pending())

	require.NoError(t, r.Flush())
	assert.Zero(t, r.Pending())
	assert.Zero(t, r.Dropped())

	var routes []model.Route
	require.NoError(t, db.Find(&routes).Error)
	require.Len(t, routes, 1)
	assert.Equal(t, r.SessionID(), routes[0].SessionID)
	assert.Equal(t, "car", routes[0].Class)
	assert.Equal(t, 3, routes[0].Waypoints)

	var markers []model.Marker
	require.NoError(t, db.Find(&markers).Error)
	require.Len(t, markers, 1)
	assert.Equal(t, uint64(1), markers[0].ViewID)
	assert.Equal(t, "car", markers[0].Class)
	assert.True(t, markers[0].IsDeleted)

	var states []model.MarkerState
	require.NoError(t, db.Order("id").Find(&states).Error)
	require.Len(t, states, 2)
	assert.Equal(t, markers[0].ID, states[0].MarkerID)
	assert.InDelta(t, 0, states[0].Bearing, 0.01, "start to north")
	assert.InDelta(t, 90, states[1].Bearing, 1, "north to east")

	pos, err := geo.LatLngFrom3857(states[1].Position)
	require.NoError(t, err)
	assert.InDelta(t, east.Lat, pos.Lat, 1e-7)
	assert.InDelta(t, east.Lng, pos.Lng, 1e-7)

	_, cached := r.deps.MarkerCache.Get(1)
	assert.False(t, cached, "deleted marker leaves the cache")
}

func TestRecorder_Throttle(t *testing.T) {
	r, db := newRecorder(t, Config{MinInterval: 250 * time.Millisecond})

	r.MarkerPlaced(placed(1, core.Bike, t0))
	r.MarkerMoved(moved(1, north, t0.Add(100*time.Millisecond)))
	r.MarkerMoved(moved(1, north, t0.Add(200*time.Millisecond)))
	r.MarkerMoved(moved(1, east, t0.Add(300*time.Millisecond)))
	r.MarkerMoved(moved(1, start, t0.Add(400*time.Millisecond)))
	r.MarkerMoved(moved(1, north, t0.Add(600*time.Millisecond)))

	require.NoError(t, r.Flush())

	var states []model.MarkerState
	require.NoError(t, db.Order("id").Find(&states).Error)
	require.Len(t, states, 2)
	assert.Equal(t, t0.Add(300*time.Millisecond).Unix(), states[0].Time.Unix())
}

func TestRecorder_UnknownMarkerDropped(t *testing.T) {
	r, db := newRecorder(t, Config{})

	r.MarkerMoved(moved(9, north, t0))
	r.MarkerRemoved(core.DeleteMarker{MarkerID: 9, Time: t0})
	require.NoError(t, r.Flush())

	assert.Equal(t, 2, r.Dropped())
	var count int64
	require.NoError(t, db.Model(&model.MarkerState{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecorder_StatesAcrossFlushes(t *testing.T) {
	r, db := newRecorder(t, Config{})

	r.MarkerPlaced(placed(3, core.Truck, t0))
	require.NoError(t, r.Flush())

	r.MarkerMoved(moved(3, north, t0.Add(time.Second)))
	require.NoError(t, r.Flush())

	var states []model.MarkerState
	require.NoError(t, db.Find(&states).Error)
	require.Len(t, states, 1)
	assert.NotZero(t, states[0].MarkerID)
}

func TestRecorder_RouteTooShort(t *testing.T) {
	r, _ := newRecorder(t, Config{})
	assert.Error(t, r.RecordRoute(core.Route{Class: core.Car, Path: core.Path{start}}))
	assert.Zero(t, r.Pending())
}

func TestRecorder_FlushWithoutSession(t *testing.T) {
	r := New(Config{}, Dependencies{DB: setupTestDB(t), Logger: zerolog.Nop()})

	assert.NoError(t, r.Flush(), "nothing queued")

	r.MarkerPlaced(placed(1, core.Car, t0))
	assert.ErrorIs(t, r.Flush(), ErrNoSession)
	assert.Equal(t, 1, r.Pending(), "rows wait for the session")
}

func TestRecorder_CloseFlushesAndDumps(t *testing.T) {
	db := setupTestDB(t)
	dumps := 0
	r := New(Config{FlushInterval: time.Hour}, Dependencies{
		DB:     db,
		Logger: zerolog.Nop(),
		Dump: func() error {
			dumps++
			return nil
		},
	})
	require.NoError(t, r.StartSession(&core.Session{Name: "close", StartTime: t0}))
	r.Start()

	r.MarkerPlaced(placed(1, core.Car, t0))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "second close is a no-op")

	assert.Equal(t, 1, dumps)
	var count int64
	require.NoError(t, db.Model(&model.Marker{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecorder_CloseReportsDumpError(t *testing.T) {
	boom := errors.New("disk full")
	r := New(Config{}, Dependencies{
		DB:     setupTestDB(t),
		Logger: zerolog.Nop(),
		Dump:   func() error { return boom },
	})
	assert.ErrorIs(t, r.Close(), boom)
}

func TestRecorder_WriterLoopFlushes(t *testing.T) {
	r, db := newRecorder(t, Config{FlushInterval: 10 * time.Millisecond})
	r.Start()
	t.Cleanup(func() { _ = r.Close() })

	r.MarkerPlaced(placed(1, core.Car, t0))

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.Marker{}).Count(&count)
		return count == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRecorder_ObservesView(t *testing.T) {
	r, db := newRecorder(t, Config{})
	v := view.NewObserved(memory.New(), r)

	id, err := v.PlaceMarker(start, core.StyleFor(core.Car))
	require.NoError(t, err)
	v.MoveMarker(id, north)
	v.RemoveMarker(id)
	require.NoError(t, r.Flush())

	var marker model.Marker
	require.NoError(t, db.First(&marker).Error)
	assert.Equal(t, uint64(id), marker.ViewID)
	assert.True(t, marker.IsDeleted)

	var count int64
	require.NoError(t, db.Model(&model.MarkerState{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecorder_DetachMarksLeftoversDeleted(t *testing.T) {
	r, db := newRecorder(t, Config{})
	v := view.NewObserved(memory.New(), r)

	_, err := v.PlaceMarker(start, core.StyleFor(core.Truck))
	require.NoError(t, err)
	v.Detach()
	require.NoError(t, r.Flush())

	var marker model.Marker
	require.NoError(t, db.First(&marker).Error)
	assert.True(t, marker.IsDeleted)
}
