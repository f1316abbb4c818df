package enginebridge

import (
	"fmt"
	"strings"
)

// Capabilities describes what the host can run. It is computed once per
// bootstrap and never changes afterwards.
type Capabilities struct {
	// ParallelExec reports support for the threads proposal (shared memory
	// and atomics) with more than one OS thread available.
	ParallelExec bool `json:"parallelExec"`

	// VectorOps reports support for 128-bit SIMD.
	VectorOps bool `json:"vectorOps"`

	// ExtendedVectorOps reports support for relaxed SIMD. Only meaningful
	// when ParallelExec is true.
	ExtendedVectorOps bool `json:"extendedVectorOps"`
}

func (c Capabilities) String() string {
	return fmt.Sprintf("threads=%t simd=%t relaxed=%t", c.ParallelExec, c.VectorOps, c.ExtendedVectorOps)
}

// Tier selects between the full engine (with evaluation network and SIMD
// builds) and the reduced fallback engine.
type Tier int

const (
	TierFull Tier = iota
	TierReduced
)

func (t Tier) String() string {
	if t == TierFull {
		return "full"
	}
	return "reduced"
}

// ParseTier accepts "full", "reduced" and "fallback" (case-insensitive).
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return TierFull, nil
	case "reduced", "fallback":
		return TierReduced, nil
	default:
		return TierFull, fmt.Errorf("unknown tier %q", s)
	}
}
