// Package variant selects which engine build to load.
//
// Four builds exist, ordered by preference:
//
//	rapfi-multi-simd128   threads + SIMD
//	rapfi-multi           threads
//	rapfi-single-simd128  SIMD
//	rapfi-single          neither (always available)
//
// Resolution walks this chain in order and picks the first build the host
// can run whose artifact is confirmed present on the server. A missing
// artifact moves resolution to the next eligible build, never past it.
package variant

import (
	enginebridge "github.com/wippyai/engine-bridge"
)

// Variant describes one engine build.
type Variant struct {
	ID                   string
	RequiresParallelExec bool
	RequiresVectorOps    bool
}

// Chain is the fallback chain, highest priority first. The last entry
// requires nothing and is the terminal fallback.
var Chain = [...]Variant{
	{ID: "rapfi-multi-simd128", RequiresParallelExec: true, RequiresVectorOps: true},
	{ID: "rapfi-multi", RequiresParallelExec: true},
	{ID: "rapfi-single-simd128", RequiresVectorOps: true},
	{ID: "rapfi-single"},
}

// Terminal returns the last entry of Chain.
func Terminal() Variant {
	return Chain[len(Chain)-1]
}

// Eligible reports whether the host can run v at the given tier. Vector
// builds are only produced for the full tier.
func (v Variant) Eligible(caps enginebridge.Capabilities, tier enginebridge.Tier) bool {
	threadsOK := !v.RequiresParallelExec || caps.ParallelExec
	simdOK := !v.RequiresVectorOps || (caps.VectorOps && tier == enginebridge.TierFull)
	return threadsOK && simdOK
}

// Select returns the best eligible variant without checking artifacts.
func Select(caps enginebridge.Capabilities, tier enginebridge.Tier) Variant {
	for _, v := range Chain {
		if v.Eligible(caps, tier) {
			return v
		}
	}
	return Terminal()
}

// Target is the outcome of resolution. It is never modified after creation.
type Target struct {
	// ArtifactURL is the engine module to load.
	ArtifactURL string `json:"artifactURL"`
	// VariantID is the chain entry the artifact belongs to.
	VariantID string `json:"variantId"`
	// UseParallelExec selects the in-process transport.
	UseParallelExec bool `json:"useParallelExec"`
	// Relaxed is set when the relaxed-SIMD build of the variant was chosen.
	Relaxed bool `json:"relaxed"`
}
