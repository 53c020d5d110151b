package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fleetview/animator/internal/dispatcher"
	"github.com/fleetview/animator/internal/frame"
	"github.com/fleetview/animator/internal/geo"
	"github.com/fleetview/animator/pkg/core"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// APIKeyHeader carries the key when the API is protected.
const APIKeyHeader = "X-API-Key"

const maxBodyBytes = 1 << 20

// Response is the envelope of every API reply.
type Response struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Data        any    `json:"data,omitempty"`
}

// pathRequest is the body of PUT /vehicles/:class/path. Exactly one source
// is expected; path wins over polyline, polyline over geojson.
type pathRequest struct {
	Path     [][]float64     `json:"path"`
	Polyline string          `json:"polyline"`
	GeoJSON  json.RawMessage `json:"geojson"`
}

type durationRequest struct {
	DurationMs int64 `json:"durationMs"`
}

// API serves the control commands over HTTP.
type API struct {
	dispatcher *dispatcher.Dispatcher
	apiKey     string
	logger     zerolog.Logger
	limiter    *rateLimiter
	compress   bool
}

// NewAPI creates the HTTP surface of d. An empty apiKey leaves it open.
func NewAPI(d *dispatcher.Dispatcher, apiKey string, logger zerolog.Logger, opts ...APIOption) *API {
	a := &API{dispatcher: d, apiKey: apiKey, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Routes returns the router of the API.
func (a *API) Routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/status", a.statusHandler)
	router.HandlerFunc(http.MethodPost, "/layer/toggle", a.toggleHandler)
	router.HandlerFunc(http.MethodPut, "/layer/visibility", a.visibilityHandler)
	router.HandlerFunc(http.MethodGet, "/vehicles/:class/path", a.getPathHandler)
	router.HandlerFunc(http.MethodPut, "/vehicles/:class/path", a.setPathHandler)
	router.HandlerFunc(http.MethodDelete, "/vehicles/:class/path", a.deletePathHandler)
	router.HandlerFunc(http.MethodPut, "/vehicles/:class/duration", a.durationHandler)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.sendError(w, http.StatusNotFound, "not found")
	})
	return a.compression(a.rateLimit(a.requireAPIKey(router)))
}

// Serve runs an HTTP server on addr until ctx is done.
func (a *API) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("address", addr).Msg("Control API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *API) requireAPIKey(next http.Handler) http.Handler {
	if a.apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(APIKeyHeader) != a.apiKey {
			a.sendError(w, http.StatusUnauthorized, "permission denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, dispatcher.Event{Command: CmdStatus})
}

func (a *API) toggleHandler(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, dispatcher.Event{Command: CmdToggle})
}

func (a *API) visibilityHandler(w http.ResponseWriter, r *http.Request) {
	var body VisibilityPayload
	if err := decode(r, &body); err != nil {
		a.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.dispatch(w, dispatcher.Event{Command: CmdVisible, Payload: body})
}

func (a *API) getPathHandler(w http.ResponseWriter, r *http.Request) {
	class := classParam(r)
	res, err := a.dispatcher.Dispatch(dispatcher.Event{Command: CmdGetPath, Args: []string{string(class)}})
	if err != nil {
		a.sendDispatchError(w, err)
		return
	}
	p := res.(PathResult)
	feature := geo.PathFeature(p.Class, p.Path)
	feature.Properties["durationMs"] = p.Duration.Milliseconds()
	feature.Properties["polyline"] = geo.EncodePolyline(p.Path)

	w.Header().Set("Content-Type", "application/geo+json")
	data, err := feature.MarshalJSON()
	if err != nil {
		a.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	_, _ = w.Write(data)
}

func (a *API) setPathHandler(w http.ResponseWriter, r *http.Request) {
	var body pathRequest
	if err := decode(r, &body); err != nil {
		a.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := body.parse()
	if err != nil {
		a.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.dispatch(w, dispatcher.Event{
		Command: CmdPath,
		Payload: PathPayload{Class: classParam(r), Path: path},
	})
}

func (a *API) deletePathHandler(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, dispatcher.Event{
		Command: CmdPath,
		Payload: PathPayload{Class: classParam(r)},
	})
}

func (a *API) durationHandler(w http.ResponseWriter, r *http.Request) {
	var body durationRequest
	if err := decode(r, &body); err != nil {
		a.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.dispatch(w, dispatcher.Event{
		Command: CmdDuration,
		Payload: DurationPayload{Class: classParam(r), Duration: time.Duration(body.DurationMs) * time.Millisecond},
	})
}

func (a *API) dispatch(w http.ResponseWriter, e dispatcher.Event) {
	res, err := a.dispatcher.Dispatch(e)
	if err != nil {
		a.sendDispatchError(w, err)
		return
	}
	a.send(w, http.StatusOK, Response{
		Code:        http.StatusOK,
		CurrentTime: time.Now().UnixMilli(),
		Text:        "OK",
		Data:        res,
	})
}

func (a *API) sendDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		a.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoPath), errors.Is(err, dispatcher.ErrUnknownCommand):
		a.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, frame.ErrLoopStopped), errors.Is(err, dispatcher.ErrClosed):
		a.sendError(w, http.StatusServiceUnavailable, "animation stopped")
	case errors.Is(err, context.DeadlineExceeded):
		a.sendError(w, http.StatusGatewayTimeout, "animation loop busy")
	default:
		a.logger.Error().Err(err).Msg("Control command failed")
		a.sendError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (a *API) sendError(w http.ResponseWriter, code int, text string) {
	a.send(w, code, Response{Code: code, CurrentTime: time.Now().UnixMilli(), Text: text})
}

func (a *API) send(w http.ResponseWriter, code int, res Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		a.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func classParam(r *http.Request) core.VehicleClass {
	return core.VehicleClass(httprouter.ParamsFromContext(r.Context()).ByName("class"))
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func (p pathRequest) parse() (core.Path, error) {
	var (
		path core.Path
		err  error
	)
	switch {
	case p.Path != nil:
		path, err = geo.PathFromCoords(p.Path)
	case p.Polyline != "":
		path, err = geo.DecodePolyline(p.Polyline)
	case len(p.GeoJSON) > 0:
		path, err = geo.PathFromGeoJSON(p.GeoJSON)
	default:
		return nil, errors.New("one of path, polyline or geojson is required")
	}
	if err != nil {
		return nil, err
	}
	if !path.Animatable() {
		return nil, fmt.Errorf("path needs at least 2 waypoints, got %d", len(path))
	}
	return path, nil
}
