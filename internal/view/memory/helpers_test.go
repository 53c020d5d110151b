package memory

import (
	"time"

	"github.com/fleetview/animator/internal/frame"
	"github.com/rs/zerolog"
)

type stepper struct {
	*frame.Manual
	now time.Time
}

func newStepper() *stepper {
	return &stepper{Manual: frame.NewManual(), now: time.Unix(0, 0)}
}

func (s *stepper) Now() time.Time {
	return s.now
}

func (s *stepper) advance(d time.Duration) {
	s.now = s.now.Add(d)
	s.Step(s.now)
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
