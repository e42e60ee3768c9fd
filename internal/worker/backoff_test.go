package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Bounds(t *testing.T) {
	t.Parallel()

	for attempt := 1; attempt <= 20; attempt++ {
		d := backoff(attempt)
		assert.GreaterOrEqual(t, d, backoffFloor, "attempt %d", attempt)
		assert.LessOrEqual(t, d, backoffCap, "attempt %d", attempt)
	}
}

func TestBackoff_NonPositiveAttemptTreatedAsFirst(t *testing.T) {
	t.Parallel()

	d := backoff(0)
	assert.GreaterOrEqual(t, d, backoffFloor)
	assert.LessOrEqual(t, d, backoffCap)
}

func TestBackoff_GrowsWithAttempt(t *testing.T) {
	t.Parallel()

	// Sample many draws at a late attempt vs. an early one; the late attempt's
	// minimum observed delay should never fall below the early attempt's.
	minEarly, minLate := backoffCap, backoffCap
	for i := 0; i < 200; i++ {
		if d := backoff(1); d < minEarly {
			minEarly = d
		}
		if d := backoff(10); d < minLate {
			minLate = d
		}
	}
	assert.GreaterOrEqual(t, minLate, minEarly)
}
