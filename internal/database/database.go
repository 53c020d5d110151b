// Package database opens the recorder database. Postgres is used when
// configured and reachable. Otherwise the recorder writes to an in-memory
// SQLite database that is periodically vacuumed to disk.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// MemoryDSN is the shared in-memory SQLite database used when no file is wanted.
const MemoryDSN = "file::memory:?cache=shared"

// ErrNotConnected is returned by operations that need an open database.
var ErrNotConnected = errors.New("database not connected")

// sqlitePragmas favour write speed over durability.
var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
}

// Manager owns the recorder database connection.
type Manager struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	// IsValid is false until Connect succeeds and after Setup fails.
	IsValid bool
	// ShouldSaveLocal is set when the database lives in memory and has to
	// be dumped to SqliteFilePath.
	ShouldSaveLocal bool
	SqliteFilePath  string
	Logger          zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

func gormConfig(batch int, prepare bool) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            prepare,
		SkipDefaultTransaction: true,
		CreateBatchSize:        batch,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// Connect opens the configured database. A postgres connection that cannot be
// opened or pinged falls back to an in-memory SQLite database that is dumped
// to cfg.SqlitePath.
func (m *Manager) Connect(cfg config.DatabaseConfig) error {
	m.SqliteFilePath = cfg.SqlitePath
	m.IsValid = false

	if cfg.Driver == DriverPostgres {
		err := m.connectPostgres(cfg)
		if err == nil {
			m.Logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connected to database")
			m.IsValid = true
			return nil
		}
		m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
	}

	if err := m.connectMemory(); err != nil {
		return err
	}
	m.IsValid = true
	return nil
}

func (m *Manager) connectPostgres(cfg config.DatabaseConfig) error {
	db, err := m.GetPostgresDB(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return err
	}
	sqlDB.SetMaxOpenConns(10)
	m.DB, m.SqlDB = db, sqlDB
	m.ShouldSaveLocal = false
	return nil
}

func (m *Manager) connectMemory() error {
	db, err := m.GetSqliteDB(MemoryDSN)
	if err != nil {
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	m.DB, m.SqlDB = db, sqlDB
	m.ShouldSaveLocal = true
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	m.IsValid = false
	return m.SqlDB.Close()
}

// PostgresDSN builds the connection string for cfg. SSL is off unless
// cfg.SSLMode says otherwise.
func PostgresDSN(cfg config.DatabaseConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		"host=" + cfg.Host,
		"port=" + cfg.Port,
		"user=" + cfg.Username,
		"password=" + cfg.Password,
		"dbname=" + cfg.Database,
		"sslmode=" + sslmode,
	}
	return strings.Join(parts, " ")
}

// GetPostgresDB opens, but does not ping, the Postgres database.
func (m *Manager) GetPostgresDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	m.Logger.Debug().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connecting to Postgres DB")

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), gormConfig(10000, false))
}

// GetSqliteDB opens the SQLite database at dsn.
func (m *Manager) GetSqliteDB(dsn string) (*gorm.DB, error) {
	db, err := OpenSqlite(dsn)
	if err != nil {
		return nil, err
	}
	if dsn == MemoryDSN {
		m.Logger.Info().Str("dumpPath", m.SqliteFilePath).Msg("Using in-memory SQLite DB with periodic disk dump")
	} else {
		m.Logger.Info().Str("path", dsn).Msg("Using local SQLite DB")
	}
	return db, nil
}

// OpenSqlite opens a SQLite database at dsn with the write-heavy pragmas set.
// It is also used to read dumps back.
func OpenSqlite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(2000, true))
	if err != nil {
		return nil, err
	}
	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Setup migrates the recorder tables. On postgres the PostGIS extension is
// created first so positions can be stored as geometry.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return ErrNotConnected
	}

	models := model.DatabaseModelsSQLite
	if m.DB.Dialector.Name() == DriverPostgres {
		if err := m.DB.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
			m.IsValid = false
			return fmt.Errorf("failed to create PostGIS extension: %w", err)
		}
		m.Logger.Info().Msg("PostGIS extension ready")
		models = model.DatabaseModels
	}

	if err := m.DB.AutoMigrate(models...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	m.Logger.Info().Int("tables", len(models)).Msg("Database setup complete")
	return nil
}

// DumpMemoryToDisk vacuums the in-memory database to SqliteFilePath. It is a
// no-op for postgres.
func (m *Manager) DumpMemoryToDisk() error {
	if !m.ShouldSaveLocal {
		return nil
	}
	if m.DB == nil {
		return ErrNotConnected
	}
	start := time.Now()
	if err := DumpMemoryDBToDisk(m.DB, m.SqliteFilePath); err != nil {
		return err
	}
	m.Logger.Debug().Dur("duration", time.Since(start)).Str("path", m.SqliteFilePath).Msg("Dumped memory DB to disk")
	return nil
}

// DumpMemoryDBToDisk writes db to path with VACUUM INTO, replacing any file
// already there.
func DumpMemoryDBToDisk(db *gorm.DB, path string) error {
	if path == "" {
		return errors.New("sqlite file path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating DB dir: %w", err)
	}
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing previous dump: %w", err)
	}

	target := "file:" + strings.ReplaceAll(path, "'", "''")
	if err := db.Exec("VACUUM INTO '" + target + "';").Error; err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}
	return nil
}

// GetBackupDBPaths returns the .db files in dir, sorted by name.
func GetBackupDBPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".db" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
