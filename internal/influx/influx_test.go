package influx

import (
	"bufio"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// unhealthyConfig points at a server whose ping fails, forcing the backup writer.
func unhealthyConfig(t *testing.T) config.InfluxConfig {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return config.InfluxConfig{
		Enabled:    true,
		Host:       u.Hostname(),
		Port:       u.Port(),
		Protocol:   "http",
		Org:        "fleetview",
		Bucket:     "positions",
		BackupPath: filepath.Join(t.TempDir(), "influx_backup.log.gz"),
	}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "test")
	assert.ErrorIs(t, m.Connect(), ErrDisabled)
}

func TestPositionPoint(t *testing.T) {
	p := PositionPoint("dispatch", core.Car, 7, EventMoved, core.LatLng{Lat: 24.865, Lng: 67.01}, ts)
	line := strings.TrimSpace(influxdb2_write.PointToLineProtocol(p, time.Nanosecond))

	assert.Equal(t,
		"vehicle_position,class=car,event=moved,marker=7,session=dispatch lat=24.865,lng=67.01 1772366400000000000",
		line)
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Bucket: "positions"}, "test")
	assert.Error(t, m.WritePoint(PositionPoint("test", core.Car, 1, EventPlaced, core.LatLng{}, ts)))
}

func TestObserver_WritesBackupWhenUnreachable(t *testing.T) {
	cfg := unhealthyConfig(t)
	m := NewManager(zerolog.Nop(), cfg, "dispatch")
	require.NoError(t, m.Connect())
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	pos := core.LatLng{Lat: 24.865, Lng: 67.01}
	m.MarkerPlaced(core.Marker{ID: 1, Style: core.StyleFor(core.Bike), Position: pos, Time: ts})
	m.MarkerMoved(core.MarkerState{MarkerID: 1, Position: pos, Time: ts.Add(time.Second)})
	m.MarkerRemoved(core.DeleteMarker{MarkerID: 1, Time: ts.Add(2 * time.Second)})
	m.MarkerMoved(core.MarkerState{MarkerID: 1, Position: pos, Time: ts.Add(3 * time.Second)})
	require.NoError(t, m.Close())

	lines := readBackup(t, cfg.BackupPath)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "class=bike,event=placed,marker=1,session=dispatch")
	assert.Contains(t, lines[1], "class=bike,event=moved")
	assert.Contains(t, lines[2], "event=removed")
	assert.Contains(t, lines[2], "removed=true")
	assert.Contains(t, lines[3], "class=unknown", "class is forgotten after removal")
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager(zerolog.Nop(), unhealthyConfig(t), "test")
	require.NoError(t, m.Connect())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
