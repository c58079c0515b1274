package broker

import "sync"

// Arbiter grants exclusive device access: one persistent holder, or
// serialized short-lived transient sections while no holder exists.
//
// Acquire never displaces the current holder. A transient section in
// flight makes Acquire wait until the section ends rather than fail;
// sections are bounded by the command timeout, so the wait is short.
type Arbiter struct {
	// opMu serializes transient sections against each other and orders
	// Acquire after any in-flight section. Held for the whole
	// open-operate-close cycle of one transient caller.
	opMu sync.Mutex

	mu     sync.Mutex
	holder string
}

// Acquire grants the exclusive lock to holder. It fails with ErrLocked
// only when another holder is present; an active transient section
// delays acquisition until the section completes.
func (a *Arbiter) Acquire(holder string) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder != "" {
		return ErrLocked
	}
	a.holder = holder
	return nil
}

// Release drops the lock if holder owns it. Releasing a lock you do not
// hold is a no-op, so release on teardown is always safe.
func (a *Arbiter) Release(holder string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == holder {
		a.holder = ""
	}
}

// Locked reports whether a persistent holder is present.
func (a *Arbiter) Locked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder != ""
}

// Holder returns the current holder ID, or "" when unlocked.
func (a *Arbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

// beginTransient enters a transient access section. Transient callers
// queue behind one another; a persistent holder fails them with
// ErrLocked before any device I/O.
func (a *Arbiter) beginTransient() error {
	a.opMu.Lock()
	a.mu.Lock()
	if a.holder != "" {
		a.mu.Unlock()
		a.opMu.Unlock()
		return ErrLocked
	}
	a.mu.Unlock()
	return nil
}

// endTransient leaves the transient section.
func (a *Arbiter) endTransient() {
	a.opMu.Unlock()
}
