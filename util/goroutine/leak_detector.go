package goroutine

import (
	"runtime"
	"testing"
	"time"
)

const (
	leakTimeout = 5 * time.Second
	leakPoll    = 50 * time.Millisecond
)

// AssertNoLeaks fails the test if the goroutine count has not settled back to
// its starting value once the test and its other cleanups finish. Call it
// first in tests that start pumps or detector loops.
func AssertNoLeaks(t testing.TB) {
	t.Helper()
	before := runtime.NumGoroutine()

	t.Cleanup(func() {
		current := settle(before, leakTimeout)
		if current <= before {
			return
		}
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Errorf("goroutine leak: %d running, started with %d\n%s", current, before, buf[:n])
	})
}

// settle polls until at most target goroutines run or timeout passes and
// returns the last count seen
func settle(target int, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		n := runtime.NumGoroutine()
		if n <= target || time.Now().After(deadline) {
			return n
		}
		time.Sleep(leakPoll)
	}
}
