// internal/timer/supervisor.go
package timer

import (
	"log/slog"
	"sync"
	"time"
)

// TransitionHandler receives timer firings. Implementations re-enter the
// session state machine through the same transition API any external caller
// would use, so a racing manual action and a firing timer are resolved by
// whichever reaches the guarded transition first.
type TransitionHandler interface {
	OnRequestTimeout(sessionID string)
	OnJoinTimeout(sessionID string)
	OnAutoEnd(sessionID string)
	OnTick(sessionID string, elapsedSeconds, remainingSeconds int64)
}

// tickInterval is the cadence of read-only tick broadcasts while a session
// is active.
const tickInterval = time.Second

// Supervisor owns all per-session timers, keyed by session id. At most one
// timer exists per session at any time: arming a new one always cancels the
// previous one first, and every transition out of the state that armed a
// timer must call Cancel even when the transition itself was rejected.
type Supervisor struct {
	mu      sync.Mutex
	timers  map[string]*sessionTimer
	handler TransitionHandler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

type sessionTimer struct {
	stop chan struct{}
}

// NewSupervisor creates an empty Supervisor. SetHandler must be called
// before any timer is armed.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{
		timers: make(map[string]*sessionTimer),
		logger: logger,
	}
}

// SetHandler wires the transition handler. The supervisor and the session
// engine reference each other, so the handler is attached after both are
// constructed.
func (s *Supervisor) SetHandler(h TransitionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// ArmRequestTimeout schedules a provider-response deadline for a session.
func (s *Supervisor) ArmRequestTimeout(sessionID string, d time.Duration) {
	s.armDeadline(sessionID, d, func(h TransitionHandler) { h.OnRequestTimeout(sessionID) })
}

// ArmJoinTimeout schedules a counterparty-join deadline for a session.
func (s *Supervisor) ArmJoinTimeout(sessionID string, d time.Duration) {
	s.armDeadline(sessionID, d, func(h TransitionHandler) { h.OnJoinTimeout(sessionID) })
}

// ArmActive starts the 1-second tick emitter and the auto-end deadline for
// an active session. maxDuration is the funded duration cap; when it
// elapses the handler's OnAutoEnd fires.
func (s *Supervisor) ArmActive(sessionID string, maxDuration time.Duration) {
	st := s.replace(sessionID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		deadline := time.NewTimer(maxDuration)
		defer deadline.Stop()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		started := time.Now()
		maxSeconds := int64(maxDuration / time.Second)

		for {
			select {
			case <-ticker.C:
				elapsed := int64(time.Since(started) / time.Second)
				remaining := maxSeconds - elapsed
				if remaining < 0 {
					remaining = 0
				}
				if h := s.currentHandler(); h != nil {
					h.OnTick(sessionID, elapsed, remaining)
				}
			case <-deadline.C:
				s.clear(sessionID, st)
				if h := s.currentHandler(); h != nil {
					h.OnAutoEnd(sessionID)
				}
				return
			case <-st.stop:
				return
			}
		}
	}()
}

// Cancel stops whatever timer is currently armed for a session. It is safe
// to call when no timer exists.
func (s *Supervisor) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.timers[sessionID]; ok {
		close(st.stop)
		delete(s.timers, sessionID)
	}
}

// Shutdown cancels every armed timer and waits for their goroutines to exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	for id, st := range s.timers {
		close(st.stop)
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ActiveTimers reports how many sessions currently have a timer armed.
func (s *Supervisor) ActiveTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Supervisor) armDeadline(sessionID string, d time.Duration, fire func(TransitionHandler)) {
	st := s.replace(sessionID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		deadline := time.NewTimer(d)
		defer deadline.Stop()

		select {
		case <-deadline.C:
			s.clear(sessionID, st)
			if h := s.currentHandler(); h != nil {
				fire(h)
			}
		case <-st.stop:
		}
	}()
}

// replace cancels any existing timer for the session and registers a fresh
// one, enforcing the at-most-one-timer-per-session invariant.
func (s *Supervisor) replace(sessionID string) *sessionTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[sessionID]; ok {
		close(prev.stop)
	}
	st := &sessionTimer{stop: make(chan struct{})}
	s.timers[sessionID] = st
	return st
}

// clear removes the registry entry, but only if it still belongs to the
// timer that fired. A successor armed in the meantime stays untouched.
func (s *Supervisor) clear(sessionID string, st *sessionTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.timers[sessionID]; ok && cur == st {
		delete(s.timers, sessionID)
	}
}

func (s *Supervisor) currentHandler() TransitionHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}
