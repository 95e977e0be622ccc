package core

import "time"

// Delayer is the timing collaborator used by controllers and example
// programs. Spin must not return before d has elapsed and must not yield the
// thread; Sleep may yield.
type Delayer interface {
	Spin(d time.Duration)
	Sleep(d time.Duration)
}

// SystemDelay spins on the monotonic clock and sleeps with time.Sleep.
type SystemDelay struct{}

// Spin busy-waits for at least d
func (SystemDelay) Spin(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// Sleep blocks the calling goroutine for at least d
func (SystemDelay) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Default delay used when a controller is built without one
var defaultDelay Delayer = SystemDelay{}

// DefaultDelayer returns the process-wide delay collaborator
func DefaultDelayer() Delayer {
	return defaultDelay
}
