package email

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Simulator is a deterministic stand-in for a real delivery provider.
// Outcomes are a pure function of (seed, recipient, subject), so repeated
// runs and test suites see identical results. The delivery rate is
// configuration, not an inline literal.
type Simulator struct {
	seed         int64
	deliveryRate float64
}

// NewSimulator creates a seeded simulator with the given delivery rate
// in [0,1]. Rates outside the range are clamped.
func NewSimulator(seed int64, deliveryRate float64) *Simulator {
	if deliveryRate < 0 {
		deliveryRate = 0
	}
	if deliveryRate > 1 {
		deliveryRate = 1
	}
	return &Simulator{seed: seed, deliveryRate: deliveryRate}
}

// Send simulates a delivery attempt. Failures are reproducible for the
// same message under the same seed.
func (s *Simulator) Send(_ context.Context, m Message) (string, error) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s", s.seed, m.Recipient, m.Subject)
	sum := h.Sum64()

	// Map the hash onto [0,1) and compare against the configured rate.
	outcome := float64(sum%10000) / 10000.0
	if outcome >= s.deliveryRate {
		return "", fmt.Errorf("simulated delivery failure for %s", m.Recipient)
	}

	return fmt.Sprintf("sim-%016x", sum), nil
}
