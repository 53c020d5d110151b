package motion

import "errors"

var (
	ErrPathTooShort    = errors.New("path needs at least two waypoints")
	ErrViewUnavailable = errors.New("no host view attached")
	ErrDriverStarted   = errors.New("driver already started")
)
