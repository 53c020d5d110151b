package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/pkg/core"
	"github.com/fleetview/animator/pkg/streaming"
)

// Compile-time interface check.
var _ motion.HostView = (*View)(nil)

// testServer creates an httptest server that upgrades to WebSocket, records
// received messages and acks hello. When dropAfter is positive, the first
// connection is closed after that many messages.
func testServer(t *testing.T, dropAfter int) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}
	var conns atomic.Int32

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		first := conns.Add(1) == 1

		received := 0
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)
			received++

			if env.Type == streaming.TypeHello {
				ack := streaming.AckMessage{Type: streaming.TypeAck, For: env.Type}
				data, _ := json.Marshal(ack)
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}

			if first && dropAfter > 0 && received >= dropAfter {
				return
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
	secret   string
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestView(t *testing.T, srv *httptest.Server) *View {
	t.Helper()
	v := New(Config{
		URL:     wsURL(srv),
		Secret:  "test",
		Session: "s1",
		Center:  core.LatLng{Lat: 24.8607, Lng: 67.0011},
		Zoom:    13,
	}, zerolog.Nop())
	v.conn.initialBackoff = 10 * time.Millisecond
	require.NoError(t, v.Open())
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestOpenSendsHello(t *testing.T) {
	srv, ml := testServer(t, 0)
	defer srv.Close()

	newTestView(t, srv)

	msgs := ml.all()
	require.NotEmpty(t, msgs)
	assert.Equal(t, streaming.TypeHello, msgs[0].Type)

	var hello streaming.HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, "s1", hello.Session)
	assert.Equal(t, 13, hello.Zoom)
	assert.Equal(t, 24.8607, hello.Center.Lat)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestOpenFailsWithoutServer(t *testing.T) {
	v := New(Config{URL: "ws://127.0.0.1:1/none"}, zerolog.Nop())
	assert.Error(t, v.Open())
}

func TestMarkerLifecycle(t *testing.T) {
	srv, ml := testServer(t, 0)
	defer srv.Close()
	v := newTestView(t, srv)

	id, err := v.PlaceMarker(core.LatLng{Lat: 1, Lng: 2}, core.StyleFor(core.Truck))
	require.NoError(t, err)
	assert.Equal(t, core.MarkerID(1), id)
	assert.True(t, v.IsAttached(id))

	v.MoveMarker(id, core.LatLng{Lat: 1.5, Lng: 2})
	v.RemoveMarker(id)
	assert.False(t, v.IsAttached(id))

	// Operations on a removed marker send nothing.
	v.MoveMarker(id, core.LatLng{})
	v.RemoveMarker(id)

	assert.Eventually(t, func() bool {
		return ml.count(streaming.TypeRemoveMarker) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, ml.count(streaming.TypePlaceMarker))
	assert.Equal(t, 1, ml.count(streaming.TypeMoveMarker))

	var place streaming.PlaceMarkerPayload
	for _, env := range ml.all() {
		if env.Type == streaming.TypePlaceMarker {
			require.NoError(t, json.Unmarshal(env.Payload, &place))
		}
	}
	assert.Equal(t, id, place.ID)
	assert.Equal(t, core.Truck, place.Style.Class)
	assert.Equal(t, 45, place.Style.IconSize[0])
}

func TestReplayMessages(t *testing.T) {
	v := New(Config{Session: "s", Zoom: 13}, zerolog.Nop())
	a, _ := v.PlaceMarker(core.LatLng{Lat: 1}, core.StyleFor(core.Car))
	b, _ := v.PlaceMarker(core.LatLng{Lat: 2}, core.StyleFor(core.Bike))
	v.MoveMarker(b, core.LatLng{Lat: 3})
	c, _ := v.PlaceMarker(core.LatLng{Lat: 4}, core.StyleFor(core.Truck))
	v.RemoveMarker(c)

	msgs := v.replayMessages()
	require.Len(t, msgs, 3)

	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(msgs[0], &env))
	assert.Equal(t, streaming.TypeHello, env.Type)

	var ids []core.MarkerID
	var last core.LatLng
	for _, raw := range msgs[1:] {
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, streaming.TypePlaceMarker, env.Type)
		var p streaming.PlaceMarkerPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		ids = append(ids, p.ID)
		last = p.Position
	}
	assert.Equal(t, []core.MarkerID{a, b}, ids)
	assert.Equal(t, core.LatLng{Lat: 3}, last)
}

func TestReconnectReplaysMarkers(t *testing.T) {
	// hello + place_marker, then the server hangs up.
	srv, ml := testServer(t, 2)
	defer srv.Close()
	v := newTestView(t, srv)

	id, err := v.PlaceMarker(core.LatLng{Lat: 5}, core.StyleFor(core.Car))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return ml.count(streaming.TypeHello) == 2 && ml.count(streaming.TypePlaceMarker) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, v.IsAttached(id))

	v.MoveMarker(id, core.LatLng{Lat: 6})
	assert.Eventually(t, func() bool {
		return ml.count(streaming.TypeMoveMarker) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := testServer(t, 0)
	defer srv.Close()
	v := newTestView(t, srv)

	assert.NoError(t, v.Close())
	assert.NoError(t, v.Close())
}
