package testutil

import (
	"fmt"
	"testing"
	"time"
)

// WaitFor polls until the condition is true or the timeout elapses.
func WaitFor(t *testing.T, description string, timeout time.Duration, condition func() bool) error {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("condition '%s' not met within %v", description, timeout)
}

// MustWait is WaitFor that fails the test on timeout.
func MustWait(t *testing.T, description string, timeout time.Duration, condition func() bool) {
	t.Helper()
	if err := WaitFor(t, description, timeout, condition); err != nil {
		t.Fatal(err)
	}
}
