// Package view holds what every host view shares: construction from config
// and observation of marker changes.
package view

import (
	"fmt"

	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/internal/view/memory"
	"github.com/fleetview/animator/internal/view/websocket"
	"github.com/rs/zerolog"
)

// Backend is a host view with a connection lifecycle.
type Backend interface {
	motion.HostView
	Open() error
	Close() error
}

// Session identifies the run announced to frontends.
type Session struct {
	Name    string
	Version string
}

// NewBackend creates a host view based on configuration
func NewBackend(cfg config.ViewConfig, session Session, logger zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:     cfg.URL,
			Secret:  cfg.Secret,
			Session: session.Name,
			Version: session.Version,
			Center:  cfg.Center,
			Zoom:    cfg.Zoom,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown view type: %s", cfg.Type)
	}
}
