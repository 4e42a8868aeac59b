package engine

// Signal is a named condition that continuations can wait on. Firing a signal
// resumes every continuation waiting at that moment, in the order they
// started waiting. A signal can be fired any number of times.
type Signal struct {
	Name string

	engine  *Engine
	waiters []func()
}

// NewSignal creates a signal bound to the engine.
func (e *Engine) NewSignal(name string) *Signal {
	return &Signal{Name: name, engine: e}
}

// Wait registers fn to run the next time the signal fires.
func (s *Signal) Wait(fn func()) {
	s.waiters = append(s.waiters, fn)
}

// Waiting returns the number of continuations blocked on the signal.
func (s *Signal) Waiting() int {
	return len(s.waiters)
}

// Fire schedules all current waiters at the current instant and clears the
// wait list. Continuations registered during their resumption wait for the
// next Fire.
func (s *Signal) Fire() int {
	waiters := s.waiters
	s.waiters = nil
	for _, fn := range waiters {
		s.engine.ScheduleAt(s.engine.now, fn)
	}
	return len(waiters)
}
