package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reason names what asked for a recompute.
type Reason string

const (
	ReasonUser      Reason = "user"
	ReasonFactors   Reason = "factors"
	ReasonRouteMode Reason = "route_mode"
	ReasonGeoAction Reason = "geo_action"
)

type Timer interface {
	Stop() bool
}

// Clock is the time seam for the scheduler.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Scheduler debounces recompute requests into a single run per window and
// never lets two runs overlap.
type Scheduler struct {
	clock        Clock
	window       time.Duration
	minIndicator time.Duration
	gate         func() bool
	run          func(ctx context.Context, reason Reason) error
	indicator    func(on bool)
	log          *slog.Logger

	mu        sync.Mutex
	timer     Timer
	hideTimer Timer
	// gen identifies the armed window timer; a callback carrying an older
	// generation lost the race with Stop and is ignored.
	gen      uint64
	reason   Reason
	inFlight bool
	rerun    bool
	shownAt  time.Time
	showing  bool
	stopped  bool
}

type SchedulerConfig struct {
	Clock        Clock
	Window       time.Duration
	MinIndicator time.Duration
	// Gate is evaluated at trigger time; a false gate drops the trigger.
	Gate      func() bool
	Run       func(ctx context.Context, reason Reason) error
	Indicator func(on bool)
	Logger    *slog.Logger
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Gate == nil {
		cfg.Gate = func() bool { return true }
	}
	return &Scheduler{
		clock:        cfg.Clock,
		window:       cfg.Window,
		minIndicator: cfg.MinIndicator,
		gate:         cfg.Gate,
		run:          cfg.Run,
		indicator:    cfg.Indicator,
		log:          cfg.Logger,
	}
}

// Trigger asks for a recompute. It reports whether the request was accepted.
// Each accepted trigger restarts the window.
func (s *Scheduler) Trigger(reason Reason) bool {
	if !s.gate() {
		if s.log != nil {
			s.log.Debug("recompute trigger dropped", "reason", reason)
		}
		return false
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.reason = reason
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.window, func() { s.fire(gen) })
	show := s.showLocked()
	s.mu.Unlock()

	if show {
		s.setIndicator(true)
	}
	if s.log != nil {
		s.log.Debug("recompute scheduled", "reason", reason, "window", s.window)
	}
	return true
}

// Pending reports whether a window is open or a run is in flight.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil || s.inFlight
}

// Stop cancels any open window. In-flight runs finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.hideTimer != nil {
		s.hideTimer.Stop()
		s.hideTimer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.inFlight {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	reason := s.reason
	s.mu.Unlock()

	for {
		if s.run != nil {
			if err := s.run(context.Background(), reason); err != nil && s.log != nil {
				s.log.Warn("scheduled recompute failed", "reason", reason, "error", err)
			}
		}
		s.mu.Lock()
		if s.rerun && !s.stopped {
			s.rerun = false
			reason = s.reason
			s.mu.Unlock()
			continue
		}
		s.rerun = false
		s.inFlight = false
		idle := s.timer == nil
		s.mu.Unlock()
		if idle {
			s.settle()
		}
		return
	}
}

// showLocked turns the indicator on, cancelling a pending hide. Reports
// whether the caller must publish the change.
func (s *Scheduler) showLocked() bool {
	if s.hideTimer != nil {
		s.hideTimer.Stop()
		s.hideTimer = nil
	}
	if s.showing {
		return false
	}
	s.showing = true
	s.shownAt = s.clock.Now()
	return true
}

func (s *Scheduler) settle() {
	s.mu.Lock()
	if !s.showing {
		s.mu.Unlock()
		return
	}
	remaining := s.minIndicator - s.clock.Now().Sub(s.shownAt)
	if remaining > 0 && !s.stopped {
		s.hideTimer = s.clock.AfterFunc(remaining, s.hide)
		s.mu.Unlock()
		return
	}
	s.showing = false
	s.mu.Unlock()
	s.setIndicator(false)
}

func (s *Scheduler) hide() {
	s.mu.Lock()
	if s.timer != nil || s.inFlight || !s.showing {
		s.mu.Unlock()
		return
	}
	s.hideTimer = nil
	s.showing = false
	s.mu.Unlock()
	s.setIndicator(false)
}

func (s *Scheduler) setIndicator(on bool) {
	if s.indicator != nil {
		s.indicator(on)
	}
}
