// Package api is a client for the control API of a running animator.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleetview/animator/internal/geo"
	"github.com/fleetview/animator/internal/handlers"
	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/pkg/core"
)

// Error is a non-200 reply of the control API.
type Error struct {
	Code int
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("control API returned %d: %s", e.Code, e.Text)
}

type envelope struct {
	Code int             `json:"code"`
	Text string          `json:"text"`
	Data json.RawMessage `json:"data"`
}

// Client handles communication with the control API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Status returns the layer status.
func (c *Client) Status() (motion.LayerStatus, error) {
	return c.status(http.MethodGet, "/status", nil)
}

// Toggle flips vehicle visibility.
func (c *Client) Toggle() (motion.LayerStatus, error) {
	return c.status(http.MethodPost, "/layer/toggle", nil)
}

// SetVisible shows or hides the vehicles.
func (c *Client) SetVisible(visible bool) (motion.LayerStatus, error) {
	return c.status(http.MethodPut, "/layer/visibility", handlers.VisibilityPayload{Visible: visible})
}

// SetPolyline gives class a path in encoded polyline form.
func (c *Client) SetPolyline(class core.VehicleClass, encoded string) (motion.LayerStatus, error) {
	return c.status(http.MethodPut, classPath(class, "path"), map[string]string{"polyline": encoded})
}

// SetPath gives class a path.
func (c *Client) SetPath(class core.VehicleClass, path core.Path) (motion.LayerStatus, error) {
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return c.status(http.MethodPut, classPath(class, "path"), map[string][][]float64{"path": coords})
}

// ClearPath removes the path of class.
func (c *Client) ClearPath(class core.VehicleClass) (motion.LayerStatus, error) {
	return c.status(http.MethodDelete, classPath(class, "path"), nil)
}

// SetDuration changes the per-segment duration of class.
func (c *Client) SetDuration(class core.VehicleClass, d time.Duration) (motion.LayerStatus, error) {
	return c.status(http.MethodPut, classPath(class, "duration"), map[string]int64{"durationMs": d.Milliseconds()})
}

// Path returns the path of class.
func (c *Client) Path(class core.VehicleClass) (core.Path, error) {
	body, err := c.do(http.MethodGet, classPath(class, "path"), nil)
	if err != nil {
		return nil, err
	}
	return geo.PathFromGeoJSON(body)
}

func classPath(class core.VehicleClass, leaf string) string {
	return "/vehicles/" + url.PathEscape(string(class)) + "/" + leaf
}

func (c *Client) status(method, path string, payload any) (motion.LayerStatus, error) {
	var st motion.LayerStatus
	body, err := c.do(method, path, payload)
	if err != nil {
		return st, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return st, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &st); err != nil {
			return st, fmt.Errorf("failed to decode status: %w", err)
		}
	}
	return st, nil
}

func (c *Client) do(method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(handlers.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &Error{Code: resp.StatusCode}
		var env envelope
		if json.Unmarshal(body, &env) == nil {
			apiErr.Text = env.Text
		}
		return nil, apiErr
	}
	return body, nil
}
