// Package recorder persists the marker timeline of a session: every marker
// placed on the host view, its throttled positions and its removal.
// Writes are queued by the view observer and flushed in batches by a single
// writer goroutine.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetview/animator/internal/cache"
	"github.com/fleetview/animator/internal/geo"
	"github.com/fleetview/animator/internal/model"
	"github.com/fleetview/animator/internal/model/convert"
	"github.com/fleetview/animator/internal/queue"
	"github.com/fleetview/animator/pkg/core"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

// ErrNoSession is returned by Flush when no session row exists yet.
var ErrNoSession = errors.New("recorder: no session started")

// Config controls batching and throttling.
type Config struct {
	// FlushInterval is the pause between two writer passes.
	FlushInterval time.Duration
	// MinInterval is the minimum time between two recorded states of the
	// same marker. Zero records every move.
	MinInterval time.Duration
	// DumpInterval is how often Dump is called. Zero disables dumping.
	DumpInterval time.Duration
}

// Dependencies holds everything the recorder writes through.
type Dependencies struct {
	DB          *gorm.DB
	MarkerCache *cache.MarkerCache
	TrackCache  *cache.TrackCache
	Logger      zerolog.Logger
	// Dump snapshots the database, e.g. an in-memory SQLite to disk.
	Dump func() error
}

// pendingState is a state whose marker row may not exist yet.
type pendingState struct {
	viewID core.MarkerID
	state  model.MarkerState
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Routes       *queue.Queue[model.Route]
	Markers      *queue.Queue[model.Marker]
	MarkerStates *queue.Queue[pendingState]
	Deletes      *queue.Queue[core.DeleteMarker]
}

func newQueues() *queues {
	return &queues{
		Routes:       queue.New[model.Route](),
		Markers:      queue.New[model.Marker](),
		MarkerStates: queue.New[pendingState](),
		Deletes:      queue.New[core.DeleteMarker](),
	}
}

// Recorder implements view.Observer on top of a gorm database.
type Recorder struct {
	cfg       Config
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64

	flushMu   sync.Mutex
	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	dropped cache.SafeCounter
	written metric.Int64Counter
	drops   metric.Int64Counter
}

// New creates a recorder. Missing caches are created.
func New(cfg Config, deps Dependencies) *Recorder {
	if deps.MarkerCache == nil {
		deps.MarkerCache = cache.NewMarkerCache()
	}
	if deps.TrackCache == nil {
		deps.TrackCache = cache.NewTrackCache()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	r := &Recorder{
		cfg:    cfg,
		deps:   deps,
		queues: newQueues(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.initMetrics()
	return r
}

func (r *Recorder) initMetrics() {
	m := meter()
	var err error
	r.written, err = m.Int64Counter("recorder.rows.written",
		metric.WithDescription("Rows written to the marker timeline"))
	if err != nil {
		r.deps.Logger.Warn().Err(err).Msg("Failed to create rows counter")
	}
	r.drops, err = m.Int64Counter("recorder.rows.dropped",
		metric.WithDescription("Queued rows dropped because their marker is unknown"))
	if err != nil {
		r.deps.Logger.Warn().Err(err).Msg("Failed to create dropped counter")
	}
}

// StartSession inserts the session row synchronously and assigns its ID to s.
// Later rows are stamped with it.
func (r *Recorder) StartSession(s *core.Session) error {
	row := convert.CoreToSession(*s)
	if err := r.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.ID = row.ID
	r.sessionID.Store(uint64(row.ID))
	r.deps.MarkerCache.Reset()
	r.deps.TrackCache.Reset()
	r.deps.Logger.Info().Uint("session", row.ID).Str("name", s.Name).Msg("Recording session")
	return nil
}

// SessionID returns the current session row ID, or 0.
func (r *Recorder) SessionID() uint {
	return uint(r.sessionID.Load())
}

// RecordRoute queues the path a class was given.
func (r *Recorder) RecordRoute(rt core.Route) error {
	row, err := convert.CoreToRoute(rt)
	if err != nil {
		return err
	}
	r.queues.Routes.Push(row)
	return nil
}

// MarkerPlaced queues the marker row. The placement also seeds its track.
func (r *Recorder) MarkerPlaced(m core.Marker) {
	row, err := convert.CoreToMarker(m)
	if err != nil {
		r.deps.Logger.Warn().Err(err).Msg("Dropping marker")
		r.drop("markers")
		return
	}
	r.queues.Markers.Push(row)
	r.deps.TrackCache.Swap(core.MarkerState{MarkerID: m.ID, Position: m.Position, Time: m.Time})
}

// MarkerMoved queues a state unless the marker was recorded less than
// MinInterval ago. The bearing is taken from the last recorded position.
func (r *Recorder) MarkerMoved(s core.MarkerState) {
	prev, ok := r.deps.TrackCache.Get(s.MarkerID)
	if ok && r.cfg.MinInterval > 0 && s.Time.Sub(prev.Time) < r.cfg.MinInterval {
		return
	}
	bearing := 0.0
	if ok && prev.Position != s.Position {
		bearing = geo.Bearing(prev.Position, s.Position)
	}
	row, err := convert.CoreToMarkerState(s, bearing)
	if err != nil {
		r.deps.Logger.Warn().Err(err).Msg("Dropping marker state")
		r.drop("marker_states")
		return
	}
	r.deps.TrackCache.Swap(s)
	r.queues.MarkerStates.Push(pendingState{viewID: s.MarkerID, state: row})
}

// MarkerRemoved queues the deletion and forgets the marker's track.
func (r *Recorder) MarkerRemoved(d core.DeleteMarker) {
	r.queues.Deletes.Push(d)
	r.deps.TrackCache.Delete(d.MarkerID)
}

// Pending returns the number of queued rows.
func (r *Recorder) Pending() int {
	return r.queues.Routes.Len() + r.queues.Markers.Len() +
		r.queues.MarkerStates.Len() + r.queues.Deletes.Len()
}

// Dropped returns how many rows were discarded, either because they
// referenced an unknown marker or because their position could not be
// projected.
func (r *Recorder) Dropped() int {
	return r.dropped.Value()
}

// Start launches the writer goroutine. It runs until Close.
func (r *Recorder) Start() {
	r.startOnce.Do(func() {
		go r.writeLoop()
	})
}

// Close stops the writer and flushes whatever is still queued.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stop)
		started := true
		r.startOnce.Do(func() { started = false })
		if started {
			<-r.done
		}
		err = r.Flush()
		if r.deps.Dump != nil {
			err = errors.Join(err, r.deps.Dump())
		}
	})
	return err
}

func (r *Recorder) writeLoop() {
	defer close(r.done)

	flush := time.NewTicker(r.cfg.FlushInterval)
	defer flush.Stop()

	var dump <-chan time.Time
	if r.deps.Dump != nil && r.cfg.DumpInterval > 0 {
		t := time.NewTicker(r.cfg.DumpInterval)
		defer t.Stop()
		dump = t.C
	}

	for {
		select {
		case <-r.stop:
			return
		case <-flush.C:
			if err := r.Flush(); err != nil && !errors.Is(err, ErrNoSession) {
				r.deps.Logger.Error().Err(err).Msg("Flush failed")
			}
		case <-dump:
			start := time.Now()
			if err := r.deps.Dump(); err != nil {
				r.deps.Logger.Error().Err(err).Msg("Error dumping to disk")
			} else {
				r.deps.Logger.Debug().Dur("duration", time.Since(start)).Msg("Dumped to disk")
			}
		}
	}
}

// Flush writes every queued row: routes, then markers, then states, then
// deletions, so that states and deletions can resolve the marker rows
// written in the same pass.
func (r *Recorder) Flush() error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	sessionID := uint(r.sessionID.Load())
	if sessionID == 0 {
		if r.Pending() == 0 {
			return nil
		}
		return ErrNoSession
	}
	db := r.deps.DB

	var errs []error
	errs = append(errs, writeQueue(r, db, r.queues.Routes, "routes", func(items []model.Route) []model.Route {
		for i := range items {
			items[i].SessionID = sessionID
		}
		return items
	}, nil))

	errs = append(errs, writeQueue(r, db, r.queues.Markers, "markers", func(items []model.Marker) []model.Marker {
		for i := range items {
			items[i].SessionID = sessionID
		}
		return items
	}, func(items []model.Marker) {
		for _, m := range items {
			if m.ID != 0 {
				r.deps.MarkerCache.Set(core.MarkerID(m.ViewID), m.ID)
			}
		}
	}))

	// States are resolved before the insert; the queue holds the unresolved form.
	states := r.queues.MarkerStates.Drain()
	rows := make([]model.MarkerState, 0, len(states))
	for _, p := range states {
		row, ok := r.deps.MarkerCache.Get(p.viewID)
		if !ok {
			r.drop("marker_states")
			continue
		}
		p.state.SessionID = sessionID
		p.state.MarkerID = row
		rows = append(rows, p.state)
	}
	if len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			r.deps.Logger.Error().Err(err).Int("count", len(rows)).Msg("Error creating marker states")
			r.queues.MarkerStates.Push(states...)
			errs = append(errs, fmt.Errorf("marker states: %w", err))
		} else {
			r.count("marker_states", len(rows))
		}
	}

	errs = append(errs, r.writeDeletes(db))
	return errors.Join(errs...)
}

func (r *Recorder) writeDeletes(db *gorm.DB) error {
	deletes := r.queues.Deletes.Drain()
	var failed []core.DeleteMarker
	var errs []error
	for _, d := range deletes {
		row, ok := r.deps.MarkerCache.Get(d.MarkerID)
		if !ok {
			r.drop("markers")
			continue
		}
		err := db.Model(&model.Marker{}).Where("id = ?", row).Update("is_deleted", true).Error
		if err != nil {
			failed = append(failed, d)
			errs = append(errs, fmt.Errorf("marker %d: %w", row, err))
			continue
		}
		r.deps.MarkerCache.Delete(d.MarkerID)
		r.count("markers_deleted", 1)
	}
	if len(failed) > 0 {
		r.deps.Logger.Error().Err(errors.Join(errs...)).Int("count", len(failed)).Msg("Error deleting markers")
		r.queues.Deletes.Push(failed...)
	}
	return errors.Join(errs...)
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches go back to the queue.
func writeQueue[T any](r *Recorder, db *gorm.DB, q *queue.Queue[T], name string, prepare func([]T) []T, onSuccess func([]T)) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	if prepare != nil {
		items = prepare(items)
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		r.deps.Logger.Error().Err(err).Str("table", name).Msg("Error creating rows")
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return fmt.Errorf("%s: %w", name, err)
	}

	r.count(name, len(items))
	if onSuccess != nil {
		onSuccess(items)
	}
	return nil
}

func (r *Recorder) count(table string, n int) {
	if r.written != nil {
		r.written.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("table", table)))
	}
}

func (r *Recorder) drop(table string) {
	r.dropped.Inc()
	if r.drops != nil {
		r.drops.Add(context.Background(), 1, metric.WithAttributes(attribute.String("table", table)))
	}
}
