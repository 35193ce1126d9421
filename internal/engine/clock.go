package engine

import (
	"context"
	"math/rand"
	"time"
)

// Clock abstracts time so cache expiry and backoff schedules are
// deterministic in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Rand abstracts the random source the simulated checker draws from.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }

// SeededRand returns a Rand backed by math/rand with the given seed.
func SeededRand(seed int64) Rand { return rand.New(rand.NewSource(seed)) }
