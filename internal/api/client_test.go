package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetview/animator/internal/handlers"
	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:8080", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected baseURL=http://localhost:8080, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:8080/", "secret")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestNew_AddsScheme(t *testing.T) {
	c := New("127.0.0.1:8080", "")
	if c.baseURL != "http://127.0.0.1:8080" {
		t.Errorf("expected http scheme added, got %s", c.baseURL)
	}
}

// reply answers every request with a status envelope and records it.
type reply struct {
	method, path, key string
	body              []byte
}

func statusServer(t *testing.T, got *reply, st motion.LayerStatus) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.key = r.Header.Get(handlers.APIKeyHeader)
		got.body, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(handlers.Response{Code: http.StatusOK, Text: "OK", Data: st})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStatus(t *testing.T) {
	var got reply
	want := motion.LayerStatus{Visible: true, ViewAttached: true, Classes: []core.VehicleClass{core.Car}}
	server := statusServer(t, &got, want)

	st, err := New(server.URL, "k").Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if got.method != http.MethodGet || got.path != "/status" {
		t.Errorf("unexpected request %s %s", got.method, got.path)
	}
	if got.key != "k" {
		t.Errorf("expected api key header, got %q", got.key)
	}
	if !st.Visible || !st.ViewAttached || len(st.Classes) != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRequests(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		{
			name:       "toggle",
			call:       func(c *Client) error { _, err := c.Toggle(); return err },
			wantMethod: http.MethodPost,
			wantPath:   "/layer/toggle",
		},
		{
			name:       "visibility",
			call:       func(c *Client) error { _, err := c.SetVisible(true); return err },
			wantMethod: http.MethodPut,
			wantPath:   "/layer/visibility",
			wantBody:   `{"visible":true}`,
		},
		{
			name: "path",
			call: func(c *Client) error {
				_, err := c.SetPath(core.Bike, core.Path{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}})
				return err
			},
			wantMethod: http.MethodPut,
			wantPath:   "/vehicles/bike/path",
			wantBody:   `{"path":[[1,2],[3,4]]}`,
		},
		{
			name:       "polyline",
			call:       func(c *Client) error { _, err := c.SetPolyline(core.Car, "_p~iF~ps|U"); return err },
			wantMethod: http.MethodPut,
			wantPath:   "/vehicles/car/path",
			wantBody:   `{"polyline":"_p~iF~ps|U"}`,
		},
		{
			name:       "clear",
			call:       func(c *Client) error { _, err := c.ClearPath(core.Truck); return err },
			wantMethod: http.MethodDelete,
			wantPath:   "/vehicles/truck/path",
		},
		{
			name: "duration",
			call: func(c *Client) error {
				_, err := c.SetDuration(core.Car, 2500*time.Millisecond)
				return err
			},
			wantMethod: http.MethodPut,
			wantPath:   "/vehicles/car/duration",
			wantBody:   `{"durationMs":2500}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got reply
			server := statusServer(t, &got, motion.LayerStatus{})

			if err := tt.call(New(server.URL, "")); err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if got.method != tt.wantMethod || got.path != tt.wantPath {
				t.Errorf("expected %s %s, got %s %s", tt.wantMethod, tt.wantPath, got.method, got.path)
			}
			if string(got.body) != tt.wantBody {
				t.Errorf("expected body %s, got %s", tt.wantBody, got.body)
			}
			if got.key != "" {
				t.Errorf("expected no api key header, got %q", got.key)
			}
		})
	}
}

func TestPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vehicles/car/path" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = io.WriteString(w, `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[67.01,24.865],[67.02,24.868]]},"properties":{"class":"car"}}`)
	}))
	defer server.Close()

	path, err := New(server.URL, "").Path(core.Car)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	want := core.Path{{Lat: 24.865, Lng: 67.01}, {Lat: 24.868, Lng: 67.02}}
	if !path.Equal(want) {
		t.Errorf("expected %v, got %v", want, path)
	}
}

func TestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(handlers.Response{Code: http.StatusNotFound, Text: "no path for class"})
	}))
	defer server.Close()

	_, err := New(server.URL, "").Path(core.Truck)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Code != http.StatusNotFound || apiErr.Text != "no path for class" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestServerDown(t *testing.T) {
	_, err := New("http://localhost:59999", "").Status() // unlikely to be listening
	if err == nil {
		t.Error("expected error for unreachable server")
	}
}
