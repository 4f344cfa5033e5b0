package core

import "time"

const (
	defaultBackoffUnit    = 60 * time.Second
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// LinearBackoff delays attempt n by n * Unit.
type LinearBackoff struct {
	Unit time.Duration
}

func (b LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	unit := b.Unit
	if unit <= 0 {
		unit = defaultBackoffUnit
	}
	return time.Duration(attempt) * unit
}

type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := b.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

var (
	_ BackoffPolicy = LinearBackoff{}
	_ BackoffPolicy = ExponentialBackoff{}
)
