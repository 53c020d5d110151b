package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/internal/database"
	"github.com/fleetview/animator/internal/logging"
	"github.com/fleetview/animator/internal/model"
)

func setupDB() error {
	cfg := config.GetLoggingConfig()
	log := logging.New(os.Stdout, cfg.Level)

	mgr := database.NewManager(log)
	if err := mgr.Connect(config.GetDatabaseConfig()); err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer mgr.Close()

	if err := mgr.Setup(); err != nil {
		return err
	}
	if err := mgr.DumpMemoryToDisk(); err != nil {
		return err
	}
	log.Info().Str("driver", mgr.DB.Dialector.Name()).Msg("DB setup complete.")
	return nil
}

// listBackups prints every SQLite dump found next to db.sqlitePath with the
// sessions it holds.
func listBackups() error {
	dir := filepath.Dir(config.GetDatabaseConfig().SqlitePath)
	paths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return fmt.Errorf("error reading backup dir: %w", err)
	}
	if len(paths) == 0 {
		fmt.Println("No backups found in", dir)
		return nil
	}

	for _, path := range paths {
		db, err := database.OpenSqlite(path)
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			continue
		}

		var sessions []model.Session
		if err := db.Order("start_time").Find(&sessions).Error; err != nil {
			fmt.Printf("%s: %v\n", path, err)
		}
		for _, s := range sessions {
			var routes, markers int64
			db.Model(&model.Route{}).Where("session_id = ?", s.ID).Count(&routes)
			db.Model(&model.Marker{}).Where("session_id = ?", s.ID).Count(&markers)
			fmt.Printf("%s: session %q started %s, %d routes, %d markers\n",
				path, s.Name, s.StartTime.Format(time.RFC3339), routes, markers)
		}

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
