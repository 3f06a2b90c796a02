package dmetest

import "time"

// WaitThisOrTimeout runs cb and reports whether it finished within
// duration, the same bounded-wait helper the teacher repo's
// test/testing.go uses around cluster shutdown and multi-second
// convergence waits.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan bool)
	go func() {
		cb()
		done <- true
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}
