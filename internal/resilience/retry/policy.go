package retry

import (
	"fmt"
	"math/rand"
	"time"

	"regwatch/internal/domain/entity"
)

// maxPolicyJitter keeps jittered delays non-decreasing across attempts: with
// doubling, (1+j)·d <= (1-j)·2d holds for every j <= 1/3.
const maxPolicyJitter = 1.0 / 3.0

// Policy decides whether a failed job attempt is retried and after how long.
// The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	JitterFraction float64

	// Rand returns a value in [0, 1). Nil uses math/rand.
	Rand func() float64
}

// DefaultPolicy returns base 1s, cap 30s, 3 attempts and ±20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		MaxAttempts:    3,
		JitterFraction: 0.2,
	}
}

// Validate rejects policies that could produce unbounded or shrinking delays.
func (p Policy) Validate() error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry policy: base delay must be positive, got %s", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry policy: max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.JitterFraction < 0 || p.JitterFraction > maxPolicyJitter {
		return fmt.Errorf("retry policy: jitter must be within [0, %.2f], got %.2f",
			maxPolicyJitter, p.JitterFraction)
	}
	return nil
}

// NextAttempt decides what follows the failure of attempt number attempt
// (1-based) with the given kind. When retry is true, delay is how long to
// wait before the next attempt.
//
// Permanent failures and exhausted attempts are never retried. The nominal
// delay is BaseDelay·2^(attempt-1); once it reaches MaxDelay the cap is
// returned exactly, otherwise it is jittered and clipped to MaxDelay.
func (p Policy) NextAttempt(attempt int, kind entity.FailureKind) (retry bool, delay time.Duration) {
	if kind == entity.FailurePermanent {
		return false, 0
	}
	if attempt >= p.MaxAttempts {
		return false, 0
	}
	if attempt < 1 {
		attempt = 1
	}

	nominal := p.BaseDelay
	for i := 1; i < attempt; i++ {
		nominal *= 2
		if nominal >= p.MaxDelay || nominal <= 0 {
			return true, p.MaxDelay
		}
	}
	if nominal >= p.MaxDelay {
		return true, p.MaxDelay
	}

	if p.JitterFraction > 0 {
		r := p.random()*2 - 1
		nominal = time.Duration(float64(nominal) * (1 + r*p.JitterFraction))
	}
	if nominal > p.MaxDelay {
		nominal = p.MaxDelay
	}
	return true, nominal
}

func (p Policy) random() float64 {
	if p.Rand != nil {
		return p.Rand()
	}
	// #nosec G404 -- backoff jitter does not need cryptographic randomness.
	return rand.Float64()
}
