package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/internal/database"
	"github.com/fleetview/animator/internal/dispatcher"
	"github.com/fleetview/animator/internal/frame"
	"github.com/fleetview/animator/internal/handlers"
	"github.com/fleetview/animator/internal/influx"
	"github.com/fleetview/animator/internal/logging"
	"github.com/fleetview/animator/internal/monitor"
	"github.com/fleetview/animator/internal/motion"
	intOtel "github.com/fleetview/animator/internal/otel"
	"github.com/fleetview/animator/internal/recorder"
	"github.com/fleetview/animator/internal/view"
	"github.com/fleetview/animator/pkg/core"

	"github.com/rs/zerolog"
)

// sinks are the optional observers of the view, each owning its own backend.
type sinks struct {
	db       *database.Manager
	recorder *recorder.Recorder
	influx   *influx.Manager
}

func (s *sinks) observers() []view.Observer {
	var obs []view.Observer
	if s.recorder != nil {
		obs = append(obs, s.recorder)
	}
	if s.influx != nil {
		obs = append(obs, s.influx)
	}
	return obs
}

func (s *sinks) close(log zerolog.Logger) {
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing recorder")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}
	if s.influx != nil {
		if err := s.influx.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing InfluxDB")
		}
	}
}

// openRecorder connects the database and starts a session. Failures leave
// the recorder off.
func openRecorder(log zerolog.Logger, session *core.Session) (*database.Manager, *recorder.Recorder) {
	mgr := database.NewManager(log)
	if err := mgr.Connect(config.GetDatabaseConfig()); err != nil {
		log.Error().Err(err).Msg("Error connecting to database, recorder disabled")
		return nil, nil
	}
	if err := mgr.Setup(); err != nil {
		log.Error().Err(err).Msg("Error setting up database, recorder disabled")
		mgr.Close()
		return nil, nil
	}

	cfg := config.GetRecorderConfig()
	rec := recorder.New(recorder.Config{
		FlushInterval: cfg.FlushInterval,
		MinInterval:   cfg.MinInterval,
		DumpInterval:  cfg.DumpInterval,
	}, recorder.Dependencies{
		DB:     mgr.DB,
		Logger: log,
		Dump:   mgr.DumpMemoryToDisk,
	})
	if err := rec.StartSession(session); err != nil {
		log.Error().Err(err).Msg("Error starting session, recorder disabled")
		mgr.Close()
		return nil, nil
	}
	rec.Start()
	log.Info().Uint("sessionId", session.ID).Str("driver", mgr.DB.Dialector.Name()).Msg("Recorder started")
	return mgr, rec
}

func openInflux(log zerolog.Logger, logsDir string, session *core.Session) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if cfg.BackupPath == "" {
		cfg.BackupPath = filepath.Join(logsDir,
			fmt.Sprintf("influx_backup_%s.log.gz", session.StartTime.Format("20060102_150405")))
	}
	m := influx.NewManager(log, cfg, session.Name)
	if err := m.Connect(); err != nil {
		log.Error().Err(err).Msg("Error connecting to InfluxDB, positions not exported")
		return nil
	}
	return m
}

func run(headless bool) error {
	session := &core.Session{
		Name:      config.GetString("session.name"),
		StartTime: time.Now(),
		Version:   Version,
	}
	viewCfg := config.GetViewConfig()
	if headless {
		viewCfg.Type = "memory"
	}
	session.Center = viewCfg.Center
	session.Zoom = viewCfg.Zoom

	logCfg := config.GetLoggingConfig()
	graylog := ""
	if logCfg.Graylog.Enabled {
		graylog = logCfg.Graylog.Address
	}
	logMgr, err := logging.Setup(logging.Config{
		Level:          logCfg.Level,
		LogsDir:        logCfg.LogsDir,
		Name:           AppName,
		Console:        logCfg.Console,
		GraylogAddress: graylog,
	}, session.StartTime, logging.SessionHook(session.Name))
	if err != nil {
		return fmt.Errorf("error setting up logging: %w", err)
	}
	defer logMgr.Close()
	log := logMgr.Logger()
	log.Info().Str("version", Version).Str("buildDate", BuildDate).Str("view", viewCfg.Type).Msg("Starting up...")

	// metrics before any component takes its meter
	otelCfg := config.GetOtelConfig()
	var metricsFile *os.File
	if otelCfg.Enabled {
		path := filepath.Join(logCfg.LogsDir,
			fmt.Sprintf("%s_metrics_%s.jsonl", AppName, session.StartTime.Format("20060102_150405")))
		metricsFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("error opening metrics file: %w", err)
		}
		defer metricsFile.Close()
	}
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		Version:      Version,
		Interval:     otelCfg.Interval,
		MetricWriter: metricsFile,
	})
	if err != nil {
		return fmt.Errorf("error setting up metrics: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down metrics")
		}
	}()

	loop, err := frame.NewLoop(config.GetFrameConfig().Interval, log)
	if err != nil {
		return fmt.Errorf("error creating frame loop: %w", err)
	}

	vehicles, err := config.GetVehicleConfig()
	if err != nil {
		return err
	}
	paths := make(map[core.VehicleClass]core.Path, len(vehicles.Classes))
	durations := make(map[core.VehicleClass]time.Duration, len(vehicles.Classes))
	styles := make(map[core.VehicleClass]core.Style, len(vehicles.Classes))
	for class, c := range vehicles.Classes {
		paths[class] = c.Path
		durations[class] = c.Duration
		styles[class] = c.Style
	}

	backend, err := view.NewBackend(viewCfg, view.Session{Name: session.Name, Version: Version}, log)
	if err != nil {
		return err
	}
	viewOpen := true
	if err := backend.Open(); err != nil {
		log.Error().Err(err).Str("view", viewCfg.Type).Msg("Host view unavailable, vehicles not shown")
		viewOpen = false
	}
	defer backend.Close()

	var s sinks
	if config.GetRecorderConfig().Enabled {
		s.db, s.recorder = openRecorder(log, session)
	}
	if config.GetInfluxConfig().Enabled {
		s.influx = openInflux(log, logCfg.LogsDir, session)
	}
	defer s.close(log)

	// the loop is not running yet, so the layer can be set up from here
	layer := motion.NewLayer(loop, log, motion.WithDurations(durations), motion.WithStyles(styles))
	var observed *view.Observed
	if viewOpen {
		observed = view.NewObserved(backend, s.observers()...)
		layer.AttachView(observed)
	}
	layer.SetPaths(paths)
	layer.SetVisible(vehicles.Visible)

	var routes handlers.RouteRecorder
	if s.recorder != nil {
		routes = s.recorder
		for class, path := range paths {
			if !path.Animatable() {
				continue
			}
			rt := core.Route{Class: class, Path: path, Duration: durations[class], Time: session.StartTime}
			if err := s.recorder.RecordRoute(rt); err != nil {
				log.Warn().Err(err).Str("class", string(class)).Msg("Failed to record route")
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	d, err := dispatcher.New(logging.NewDispatcherLogger(log))
	if err != nil {
		stop()
		<-loopDone
		return fmt.Errorf("error creating dispatcher: %w", err)
	}
	defer d.Close()
	handlers.NewService(handlers.Dependencies{
		Loop:   loop,
		Layer:  layer,
		Routes: routes,
		Logger: log,
	}).Register(d)
	log.Info().Strs("commands", d.Commands()).Msg("Commands registered")

	if apiCfg := config.GetAPIConfig(); apiCfg.Enabled {
		opts := []handlers.APIOption{handlers.WithRateLimit(apiCfg.RateLimit)}
		if apiCfg.Compress {
			opts = append(opts, handlers.WithCompression())
		}
		api := handlers.NewAPI(d, apiCfg.APIKey, log, opts...)
		go func() {
			if err := api.Serve(ctx, apiCfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Control API stopped")
			}
		}()
	}

	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		deps := monitor.Dependencies{
			Status: func() (motion.LayerStatus, error) {
				res, err := d.Dispatch(dispatcher.Event{Command: handlers.CmdStatus, Timestamp: time.Now()})
				if err != nil {
					return motion.LayerStatus{}, err
				}
				st, _ := res.(motion.LayerStatus)
				return st, nil
			},
			Logger:   log,
			Dir:      logCfg.LogsDir,
			Session:  session.Name,
			Interval: monCfg.Interval,
		}
		if s.recorder != nil {
			deps.Recorder = s.recorder
			deps.IsDatabaseValid = func() bool { return s.db.IsValid }
		}
		mon := monitor.NewService(deps)
		if err := mon.Start(); err != nil {
			log.Error().Err(err).Msg("Error starting status monitor")
		} else {
			defer mon.Stop()
		}
	}

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Frame loop failed")
	}
	log.Info().Msg("Shutting down...")

	// the loop has returned, so this goroutine owns the layer again
	layer.Close()
	if observed != nil {
		// markers a failed driver could not remove still get closed out
		observed.Detach()
	}
	return nil
}
