// Package influx writes marker positions as a time series. When the server
// cannot be reached, points go to a gzip line-protocol backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement is the measurement every marker point is written to.
const Measurement = "vehicle_position"

// Marker events, stored in the "event" tag.
const (
	EventPlaced  = "placed"
	EventMoved   = "moved"
	EventRemoved = "removed"
)

// ErrDisabled is returned by Connect when influx is switched off.
var ErrDisabled = errors.New("influx is disabled")

// retention is how long the bucket keeps points when it has to be created.
const retention = 30 * 24 * time.Hour

// Manager writes marker points to one InfluxDB bucket, or to a gzip
// line-protocol file when the server does not answer its ping.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string
	Session      string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
	classes    map[core.MarkerID]core.VehicleClass
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, session string) *Manager {
	return &Manager{
		Logger:     log.With().Str("bucket", cfg.Bucket).Logger(),
		BackupPath: cfg.BackupPath,
		Session:    session,
		cfg:        cfg,
		classes:    make(map[core.MarkerID]core.VehicleClass),
	}
}

// Connect pings the server and prepares the bucket writer. An unhealthy
// server is not an error: points then go to the backup file.
func (m *Manager) Connect() error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	serverURL := fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
	m.Client = influxdb2.NewClientWithOptions(serverURL, m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if running, err := m.Client.Ping(ctx); err != nil || !running {
		m.Logger.Warn().Err(err).Str("url", serverURL).Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.ensureBucket(ctx); err != nil {
		return err
	}
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go m.logWriteErrors(m.Writer.Errors())
	m.IsValid = true
	m.Logger.Info().Str("url", serverURL).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

// ensureBucket creates the organization and the bucket when they are missing.
func (m *Manager) ensureBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("error creating organization %q: %w", m.cfg.Org, err)
		}
	}

	buckets := m.Client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.Logger.Info().Dur("retention", retention).Msg("Bucket not found, creating")
	expire := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &expire,
		EverySeconds: int64(retention / time.Second),
	})
	if err != nil {
		return fmt.Errorf("error creating bucket %q: %w", m.cfg.Bucket, err)
	}
	return nil
}

func (m *Manager) logWriteErrors(errs <-chan error) {
	for err := range errs {
		m.Logger.Error().Err(err).Msg("Error sending data to InfluxDB")
	}
}

// WritePoint queues point for the server, or appends it to the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("influxDB not connected and no backup file open")
	}
	line := strings.TrimRight(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if _, err := m.BackupWriter.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
		m.Writer = nil
	}
	if m.Client != nil {
		m.Client.Close()
		m.Client = nil
	}
	m.IsValid = false

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

func tags(session string, class core.VehicleClass, id core.MarkerID, event string) map[string]string {
	return map[string]string{
		"session": session,
		"class":   string(class),
		"marker":  strconv.FormatUint(uint64(id), 10),
		"event":   event,
	}
}

// PositionPoint builds the point recorded for a marker event.
func PositionPoint(session string, class core.VehicleClass, id core.MarkerID, event string, pos core.LatLng, ts time.Time) *influxdb2_write.Point {
	return influxdb2.NewPoint(Measurement, tags(session, class, id, event),
		map[string]any{"lat": pos.Lat, "lng": pos.Lng}, ts)
}

// MarkerPlaced records the first position of a marker.
func (m *Manager) MarkerPlaced(mk core.Marker) {
	m.mu.Lock()
	m.classes[mk.ID] = mk.Style.Class
	m.mu.Unlock()
	m.write(PositionPoint(m.Session, mk.Style.Class, mk.ID, EventPlaced, mk.Position, mk.Time))
}

// MarkerMoved records a position update.
func (m *Manager) MarkerMoved(s core.MarkerState) {
	m.write(PositionPoint(m.Session, m.classOf(s.MarkerID), s.MarkerID, EventMoved, s.Position, s.Time))
}

// MarkerRemoved records the removal with the marker's last known class.
func (m *Manager) MarkerRemoved(d core.DeleteMarker) {
	class := m.classOf(d.MarkerID)
	m.mu.Lock()
	delete(m.classes, d.MarkerID)
	m.mu.Unlock()

	m.write(influxdb2.NewPoint(Measurement, tags(m.Session, class, d.MarkerID, EventRemoved),
		map[string]any{"removed": true}, d.Time))
}

func (m *Manager) classOf(id core.MarkerID) core.VehicleClass {
	m.mu.Lock()
	defer m.mu.Unlock()
	if class, ok := m.classes[id]; ok {
		return class
	}
	return "unknown"
}

func (m *Manager) write(point *influxdb2_write.Point) {
	if err := m.WritePoint(point); err != nil {
		m.Logger.Warn().Err(err).Msg("Failed to write position point")
	}
}
