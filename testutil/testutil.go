// Package testutil provides small helpers shared across package tests.
package testutil

import (
	"math/rand"
	"testing"
	"time"
)

// SeededRand returns a deterministic rng for reproducible generation tests.
func SeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed)) //nolint:gosec // G404: test determinism
}

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// FixedTime returns a stable reference timestamp for view and engine tests.
func FixedTime() time.Time {
	return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
}
