package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fleetview/animator/internal/api"
	"github.com/fleetview/animator/internal/config"
	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/pkg/core"
)

// control sends one command to a running animator and prints the layer
// status it answers with.
func control(cmd string, args []string) error {
	cfg := config.GetAPIConfig()
	c := api.New(cfg.Address, cfg.APIKey)

	var (
		st  motion.LayerStatus
		err error
	)
	switch cmd {
	case "status":
		st, err = c.Status()
	case "toggle":
		st, err = c.Toggle()
	case "show":
		st, err = c.SetVisible(true)
	case "hide":
		st, err = c.SetVisible(false)
	case "polyline":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s polyline <class> <encoded>", AppName)
		}
		st, err = c.SetPolyline(core.VehicleClass(args[0]), args[1])
	case "clear":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s clear <class>", AppName)
		}
		st, err = c.ClearPath(core.VehicleClass(args[0]))
	case "duration":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s duration <class> <ms>", AppName)
		}
		ms, perr := strconv.ParseInt(args[1], 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", args[1], perr)
		}
		st, err = c.SetDuration(core.VehicleClass(args[0]), time.Duration(ms)*time.Millisecond)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
