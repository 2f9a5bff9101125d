package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Delayer holds a response back before it is written
type Delayer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimingDelay sleeps for a requested delay plus a small random jitter so
// failure responses cannot be timed precisely
type TimingDelay struct {
	maxJitter time.Duration
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(maxJitter time.Duration) *TimingDelay {
	return &TimingDelay{maxJitter: maxJitter}
}

// Wait blocks for d plus jitter, or until ctx is done
func (td *TimingDelay) Wait(ctx context.Context, d time.Duration) error {
	total := d + td.jitter()
	if total <= 0 {
		return nil
	}

	timer := time.NewTimer(total)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (td *TimingDelay) jitter() time.Duration {
	if td.maxJitter <= 0 {
		return 0
	}
	n, err := cryptoRandIntn(int64(td.maxJitter))
	if err != nil {
		return 0
	}
	return time.Duration(n)
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}
