package layout

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/thordock/thordock/internal/clock"
	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/session"
)

const (
	DefaultDebounce    = 150 * time.Millisecond
	DefaultMinInterval = 50 * time.Millisecond
)

// Phase is the scheduler's state.
type Phase int

const (
	Idle Phase = iota
	PendingApply
	Applying
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PendingApply:
		return "pending"
	case Applying:
		return "applying"
	}
	return "unknown"
}

// Reporter receives apply outcomes.
type Reporter interface {
	SyncApplied(spec Spec)
	SyncApplyFailed(role session.Role, err error)
}

// Options configure a Scheduler.
type Options struct {
	Clock       clock.Clock
	Debounce    time.Duration
	MinInterval time.Duration
	Bases       BaseSizes
	Initial     Spec
	Reporter    Reporter
	Logger      *slog.Logger
}

// Scheduler coalesces layout submissions and applies the latest one to
// the attached windows. Submissions reset a debounce timer; applies are
// spaced at least MinInterval apart.
type Scheduler struct {
	ws       platform.WindowSystem
	clock    clock.Clock
	debounce time.Duration
	limiter  *rate.Limiter
	bases    BaseSizes
	reporter Reporter
	logger   *slog.Logger

	applyMu sync.Mutex

	mu      sync.Mutex
	phase   Phase
	latest  Spec
	gen     uint64
	timer   *clock.Timer
	handles map[session.Role]*session.Handle
}

// NewScheduler creates an idle scheduler holding opts.Initial.
func NewScheduler(ws platform.WindowSystem, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Bases == nil {
		opts.Bases = DefaultBaseSizes()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		ws:       ws,
		clock:    opts.Clock,
		debounce: opts.Debounce,
		limiter:  rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		bases:    opts.Bases,
		reporter: opts.Reporter,
		logger:   opts.Logger,
		latest:   opts.Initial,
		handles:  map[session.Role]*session.Handle{},
	}
}

// Bases returns the unscaled window sizes.
func (s *Scheduler) Bases() BaseSizes {
	return s.bases
}

// Latest returns the most recently submitted or applied spec.
func (s *Scheduler) Latest() Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Phase returns the current state.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Attach adds a window to the apply set.
func (s *Scheduler) Attach(role session.Role, h *session.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[role] = h
}

// Detach removes a window from the apply set.
func (s *Scheduler) Detach(role session.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, role)
}

// DetachAll empties the apply set.
func (s *Scheduler) DetachAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = map[session.Role]*session.Handle{}
}

// Submit records spec as the latest layout and (re)starts the debounce
// timer.
func (s *Scheduler) Submit(spec Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = spec
	s.gen++
	s.timer.Stop()
	s.phase = PendingApply
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(gen) })
}

// Cancel drops a pending apply without running it.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.timer.Stop()
	s.timer = nil
	if s.phase == PendingApply {
		s.phase = Idle
	}
}

// ApplyNow applies spec immediately, bypassing debounce and throttle. A
// pending apply is superseded.
func (s *Scheduler) ApplyNow(spec Spec) {
	s.mu.Lock()
	s.latest = spec
	s.gen++
	gen := s.gen
	s.timer.Stop()
	s.timer = nil
	s.phase = Applying
	// Count this apply against the throttle budget.
	s.limiter.ReserveN(s.clock.Now(), 1)
	s.mu.Unlock()

	s.apply(spec, gen)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase != PendingApply {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	r := s.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
		s.mu.Unlock()
		return
	}
	s.phase = Applying
	spec := s.latest
	s.mu.Unlock()

	s.apply(spec, gen)
}

func (s *Scheduler) apply(spec Spec, gen uint64) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		// Superseded while waiting for the previous apply.
		s.mu.Unlock()
		return
	}
	handles := make(map[session.Role]*session.Handle, len(s.handles))
	for role, h := range s.handles {
		handles[role] = h
	}
	s.mu.Unlock()

	rects := Compute(spec, s.bases)
	applied := 0
	for _, role := range session.Roles {
		h, ok := handles[role]
		if !ok {
			continue
		}
		rect := rects[role]
		err := h.Do(func(id platform.WindowID) error {
			return s.ws.MoveResize(id, rect)
		})
		if err == nil {
			applied++
			continue
		}
		if errors.Is(err, session.ErrHandleReleased) {
			// The session ended between snapshot and apply.
			s.logger.Info("layout apply skipped released window", "role", role)
		} else {
			s.logger.Warn("layout apply failed", "role", role, "error", err)
		}
		if s.reporter != nil {
			s.reporter.SyncApplyFailed(role, fault.New(fault.SyncApplyFailure, string(role), err))
		}
	}

	s.mu.Lock()
	if s.gen == gen {
		s.phase = Idle
	}
	s.mu.Unlock()

	if applied > 0 {
		s.logger.Debug("layout applied", "spec", spec.String())
		if s.reporter != nil {
			s.reporter.SyncApplied(spec)
		}
	}
}
