package client

import (
	"math"
	"time"

	"github.com/Mmx233/QLink/config"
)

// Backoff computes exponential reconnection delays.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// NewBackoff builds a Backoff from the reconnect configuration.
func NewBackoff(conf config.Reconnect) Backoff {
	return Backoff{
		Initial:    conf.InitialDelay,
		Max:        conf.MaxDelay,
		Multiplier: conf.BackoffMultiplier,
	}
}

// Delay returns min(Max, Initial * Multiplier^(attempt-1)) for attempt >= 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
