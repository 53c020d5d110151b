package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fleetview/animator/internal/config"
)

// module defs - Version and BuildDate can be set at build time via ldflags
var (
	Version   string = "0.1.0"
	BuildDate string = "unknown"

	AppName string = "fleetview"
)

// ConfigDirEnv overrides the directory searched for the config file.
const ConfigDirEnv = "FLEETVIEW_CONFIG_DIR"

func usage() {
	fmt.Fprintf(os.Stderr, `%s %s (built %s)

Usage: %s [command]

Commands:
  run        animate vehicles on the configured view (default)
  headless   animate vehicles on an in-memory view
  setupdb    connect to the configured database and migrate the schema
  backups    list SQLite dumps next to db.sqlitePath

Commands sent to a running animator at api.address:
  status                      print the layer status
  toggle | show | hide        change vehicle visibility
  polyline <class> <encoded>  give a class a new path
  clear <class>               remove the path of a class
  duration <class> <ms>       change the per-segment duration of a class
`, AppName, Version, BuildDate, AppName)
}

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	configDir := os.Getenv(ConfigDirEnv)
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%v, using defaults\n", err)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var err error
	switch cmd {
	case "run":
		err = run(false)
	case "headless":
		err = run(true)
	case "setupdb":
		err = setupDB()
	case "backups":
		err = listBackups()
	case "status", "toggle", "show", "hide", "polyline", "clear", "duration":
		err = control(cmd, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
