package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fleetview/animator/internal/geo"
	"github.com/fleetview/animator/pkg/core"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "fleetview.cfg.json"

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level   string `mapstructure:"logLevel" validate:"oneof=trace debug info warn error"`
	LogsDir string `mapstructure:"logsDir" validate:"required"`
	Console bool   `mapstructure:"logConsole"`
	Graylog GraylogConfig
}

// GraylogConfig holds GELF forwarding settings
type GraylogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// FrameConfig holds frame loop settings
type FrameConfig struct {
	Interval time.Duration `validate:"gt=0"`
}

// ViewConfig selects and configures the host view
type ViewConfig struct {
	Type   string `validate:"oneof=memory websocket"`
	URL    string `validate:"required_if=Type websocket"`
	Secret string
	Center core.LatLng
	Zoom   int `validate:"gte=0,lte=22"`
}

// ClassConfig is the route and timing of one vehicle class
type ClassConfig struct {
	Path     core.Path
	Duration time.Duration `validate:"gt=0"`
	Style    core.Style
}

// VehicleConfig is the configuration surface of the vehicle layer
type VehicleConfig struct {
	Visible bool
	Classes map[core.VehicleClass]ClassConfig `validate:"dive"`
}

// DatabaseConfig holds the recorder database settings
type DatabaseConfig struct {
	Driver     string `validate:"oneof=sqlite postgres"`
	Host       string
	Port       string
	Username   string
	Password   string
	Database   string
	SSLMode    string
	SqlitePath string
}

// RecorderConfig controls marker timeline persistence
type RecorderConfig struct {
	Enabled       bool
	FlushInterval time.Duration `validate:"gt=0"`
	MinInterval   time.Duration `validate:"gte=0"`
	DumpInterval  time.Duration `validate:"gte=0"`
}

// InfluxConfig holds the position time series settings
type InfluxConfig struct {
	Enabled    bool
	Host       string `validate:"required_if=Enabled true"`
	Port       string
	Protocol   string `validate:"oneof=http https"`
	Token      string
	Org        string
	Bucket     string `validate:"required_if=Enabled true"`
	BackupPath string
}

// APIConfig holds the control API settings
type APIConfig struct {
	Enabled   bool
	Address   string `validate:"required_if=Enabled true"`
	APIKey    string
	RateLimit int `validate:"gte=0"`
	Compress  bool
}

// OtelConfig holds metrics export settings
type OtelConfig struct {
	Enabled     bool
	ServiceName string
	Interval    time.Duration `validate:"gt=0"`
}

// MonitorConfig holds status file settings
type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration `validate:"gt=0"`
}

// Sample routes around Karachi, shown until the config provides others.
var defaultPaths = map[core.VehicleClass][][]float64{
	core.Car: {
		{24.865, 67.01}, {24.868, 67.02}, {24.870, 67.03},
		{24.872, 67.045}, {24.870, 67.055}, {24.868, 67.06},
	},
	core.Bike: {
		{24.880, 67.05}, {24.878, 67.055}, {24.875, 67.058}, {24.872, 67.065},
	},
	core.Truck: {
		{24.850, 67.03}, {24.855, 67.035}, {24.858, 67.045}, {24.860, 67.055}, {24.862, 67.065},
	},
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./fleetlogs")
	viper.SetDefault("logConsole", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("session.name", "fleetview")

	viper.SetDefault("frame.interval", "16ms")

	viper.SetDefault("view.type", "memory")
	viper.SetDefault("view.url", "ws://localhost:5000/ws")
	viper.SetDefault("view.secret", "")

	viper.SetDefault("map.center", []float64{24.8607, 67.0011})
	viper.SetDefault("map.zoom", 13)

	viper.SetDefault("vehicles.visible", false)
	for class, path := range defaultPaths {
		key := "vehicles." + string(class)
		viper.SetDefault(key+".path", path)
		viper.SetDefault(key+".durationMs", core.DefaultDurations[class].Milliseconds())
	}

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "fleetview")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("db.sqlitePath", "./fleetview.db")

	viper.SetDefault("recorder.enabled", false)
	viper.SetDefault("recorder.flushInterval", "1s")
	viper.SetDefault("recorder.minInterval", "250ms")
	viper.SetDefault("recorder.dumpInterval", "30s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "fleetview")
	viper.SetDefault("influx.bucket", "fleetview")
	viper.SetDefault("influx.backupPath", "")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.address", "127.0.0.1:8080")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.rateLimit", 20)
	viper.SetDefault("api.compress", true)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "fleetview")
	viper.SetDefault("otel.interval", "10s")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "5s")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetLoggingConfig returns log output settings.
func GetLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:   strings.ToLower(viper.GetString("logLevel")),
		LogsDir: viper.GetString("logsDir"),
		Console: viper.GetBool("logConsole"),
		Graylog: GraylogConfig{
			Enabled: viper.GetBool("graylog.enabled"),
			Address: viper.GetString("graylog.address"),
		},
	}
}

// GetFrameConfig returns frame loop settings.
func GetFrameConfig() FrameConfig {
	return FrameConfig{Interval: viper.GetDuration("frame.interval")}
}

// GetViewConfig returns host view settings.
func GetViewConfig() ViewConfig {
	cfg := ViewConfig{
		Type:   strings.ToLower(viper.GetString("view.type")),
		URL:    viper.GetString("view.url"),
		Secret: viper.GetString("view.secret"),
		Zoom:   viper.GetInt("map.zoom"),
	}
	if c := floats(viper.Get("map.center")); len(c) >= 2 {
		cfg.Center = core.LatLng{Lat: c[0], Lng: c[1]}
	}
	return cfg
}

// GetVehicleConfig returns the per-class routes, durations and styles.
// A class takes its path from "polyline" (encoded), "geojson" (file path),
// "gtfsFile" (zipped GTFS feed, with an optional "gtfsShape") or "path" (array
// of [lat, lng]), in that order of preference.
func GetVehicleConfig() (VehicleConfig, error) {
	cfg := VehicleConfig{
		Visible: viper.GetBool("vehicles.visible"),
		Classes: make(map[core.VehicleClass]ClassConfig),
	}

	for _, name := range vehicleClasses() {
		class := core.VehicleClass(name)
		key := "vehicles." + name

		path, err := classPath(key)
		if err != nil {
			return VehicleConfig{}, fmt.Errorf("vehicle %s: %w", name, err)
		}

		duration := core.DefaultSegmentDuration
		if d, ok := core.DefaultDurations[class]; ok {
			duration = d
		}
		if viper.IsSet(key + ".durationMs") {
			duration = time.Duration(viper.GetInt64(key+".durationMs")) * time.Millisecond
		}

		style := core.StyleFor(class)
		if icon := viper.GetString(key + ".icon"); icon != "" {
			style.IconURL = icon
		}

		cfg.Classes[class] = ClassConfig{Path: path, Duration: duration, Style: style}
	}
	return cfg, nil
}

// vehicleClasses lists the class names under "vehicles", across defaults and
// the config file.
func vehicleClasses() []string {
	seen := make(map[string]bool)
	var names []string
	for _, key := range viper.AllKeys() {
		parts := strings.Split(key, ".")
		if len(parts) < 3 || parts[0] != "vehicles" || seen[parts[1]] {
			continue
		}
		seen[parts[1]] = true
		names = append(names, parts[1])
	}
	return names
}

func classPath(key string) (core.Path, error) {
	if enc := viper.GetString(key + ".polyline"); enc != "" {
		return geo.DecodePolyline(enc)
	}
	if file := viper.GetString(key + ".geojson"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading geojson: %w", err)
		}
		return geo.PathFromGeoJSON(data)
	}
	if file := viper.GetString(key + ".gtfsFile"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading gtfs feed: %w", err)
		}
		return geo.PathFromGTFS(data, viper.GetString(key+".gtfsShape"))
	}
	raw := viper.Get(key + ".path")
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		return geo.ParsePath(s)
	}
	coords, err := pairs(raw)
	if err != nil {
		return nil, err
	}
	return geo.PathFromCoords(coords)
}

// GetDatabaseConfig returns recorder database settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:     strings.ToLower(viper.GetString("db.driver")),
		Host:       viper.GetString("db.host"),
		Port:       viper.GetString("db.port"),
		Username:   viper.GetString("db.username"),
		Password:   viper.GetString("db.password"),
		Database:   viper.GetString("db.database"),
		SSLMode:    viper.GetString("db.sslmode"),
		SqlitePath: viper.GetString("db.sqlitePath"),
	}
}

// GetRecorderConfig returns recorder settings.
func GetRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Enabled:       viper.GetBool("recorder.enabled"),
		FlushInterval: viper.GetDuration("recorder.flushInterval"),
		MinInterval:   viper.GetDuration("recorder.minInterval"),
		DumpInterval:  viper.GetDuration("recorder.dumpInterval"),
	}
}

// GetInfluxConfig returns time series settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   strings.ToLower(viper.GetString("influx.protocol")),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetAPIConfig returns control API settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled:   viper.GetBool("api.enabled"),
		Address:   viper.GetString("api.address"),
		APIKey:    viper.GetString("api.apiKey"),
		RateLimit: viper.GetInt("api.rateLimit"),
		Compress:  viper.GetBool("api.compress"),
	}
}

// GetOtelConfig returns metrics settings.
func GetOtelConfig() OtelConfig {
	return OtelConfig{
		Enabled:     viper.GetBool("otel.enabled"),
		ServiceName: viper.GetString("otel.serviceName"),
		Interval:    viper.GetDuration("otel.interval"),
	}
}

// GetMonitorConfig returns status file settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:  viper.GetBool("monitor.enabled"),
		Interval: viper.GetDuration("monitor.interval"),
	}
}

var validate = validator.New()

// Validate checks every section of the loaded configuration.
func Validate() error {
	vehicles, err := GetVehicleConfig()
	if err != nil {
		return err
	}

	sections := []struct {
		name string
		cfg  any
	}{
		{"logging", GetLoggingConfig()},
		{"frame", GetFrameConfig()},
		{"view", GetViewConfig()},
		{"vehicles", vehicles},
		{"db", GetDatabaseConfig()},
		{"recorder", GetRecorderConfig()},
		{"influx", GetInfluxConfig()},
		{"api", GetAPIConfig()},
		{"otel", GetOtelConfig()},
		{"monitor", GetMonitorConfig()},
	}
	for _, s := range sections {
		if err := validate.Struct(s.cfg); err != nil {
			return fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}
	return nil
}

// pairs converts a decoded JSON array of arrays into float pairs.
func pairs(raw any) ([][]float64, error) {
	switch v := raw.(type) {
	case [][]float64:
		return v, nil
	case []any:
		out := make([][]float64, 0, len(v))
		for i, item := range v {
			f := floats(item)
			if f == nil {
				return nil, fmt.Errorf("coordinate %d is not a number array", i)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported path value %T", raw)
	}
}

// floats converts a decoded JSON number array. It returns nil when raw is
// not an array of numbers.
func floats(raw any) []float64 {
	switch v := raw.(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			default:
				return nil
			}
		}
		return out
	default:
		return nil
	}
}
