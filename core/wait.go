package core

// DefaultSpinLimit bounds status polls when a controller is configured with
// a zero limit.
const DefaultSpinLimit = 1000000

// SpinLimit is the number of status polls a busy-wait performs before
// giving up. Zero selects DefaultSpinLimit, a negative value never gives up.
type SpinLimit int

// Polls returns the effective number of polls, or -1 for unbounded.
func (l SpinLimit) Polls() int {
	switch {
	case l == 0:
		return DefaultSpinLimit
	case l < 0:
		return -1
	}
	return int(l)
}

// WaitFor polls cond until it returns true. It never yields the thread.
// The caller usually holds a register map lock while waiting.
func WaitFor(what string, limit SpinLimit, cond func() bool) error {
	max := limit.Polls()
	for i := 0; max < 0 || i < max; i++ {
		if cond() {
			return nil
		}
	}
	DebugAsyncf("[WAIT] %s: gave up after %d polls", what, max)
	return &HardwareHangError{What: what, Iterations: max}
}
