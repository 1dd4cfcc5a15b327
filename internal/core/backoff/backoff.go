// Package backoff computes exponentially growing retry delays with jitter.
package backoff

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// JitterFraction is the upper bound of the jitter added to a raw delay,
// as a fraction of that delay.
const JitterFraction = 0.1

var (
	ErrNegativeBase       = errors.New("backoff: base delay must be >= 0")
	ErrMultiplierBelowOne = errors.New("backoff: multiplier must be >= 1")
)

// maxDurationF is the largest float64 that converts to a valid time.Duration.
var maxDurationF = math.Nextafter(float64(math.MaxInt64), 0)

// Source yields uniformly distributed values in [0, 1).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource is safe for concurrent use.
var DefaultSource Source = globalSource{}

// NewSource returns a seeded, deterministic source. The result is not safe
// for concurrent use.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Delay returns the wait before retry number attempt (1-based):
//
//	raw   = base * multiplier^(attempt-1)
//	delay = min(raw + U[0, 0.1*raw), max)
//
// A max of zero or less disables the cap. An attempt of 0 is treated as 1.
// A nil src uses DefaultSource.
func Delay(attempt uint, base, max time.Duration, multiplier float64, src Source) (time.Duration, error) {
	if base < 0 {
		return 0, ErrNegativeBase
	}
	if multiplier < 1 || math.IsNaN(multiplier) {
		return 0, ErrMultiplierBelowOne
	}
	if attempt == 0 {
		attempt = 1
	}
	if src == nil {
		src = DefaultSource
	}

	if base == 0 {
		return 0, nil
	}

	limit := maxDurationF
	if max > 0 {
		limit = math.Min(float64(max), maxDurationF)
	}

	raw := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if math.IsInf(raw, 1) || raw >= limit {
		return time.Duration(limit), nil
	}
	d := raw + src.Float64()*JitterFraction*raw
	if d > limit {
		d = limit
	}
	return time.Duration(d), nil
}

// Schedule returns the delays for retries 1..n.
func Schedule(n uint, base, max time.Duration, multiplier float64, src Source) ([]time.Duration, error) {
	out := make([]time.Duration, 0, n)
	for attempt := uint(1); attempt <= n; attempt++ {
		d, err := Delay(attempt, base, max, multiplier, src)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
