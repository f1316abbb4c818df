package variant

import (
	"context"
	"strings"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
)

const (
	artifactExt   = ".wasm"
	relaxedSuffix = "-relaxed"
)

// Layout locates artifacts on the server: <BaseURL><FullDir><id>.wasm for
// the full tier and <BaseURL><ReducedDir><id>.wasm for the reduced one.
type Layout struct {
	BaseURL    string
	FullDir    string
	ReducedDir string
}

// Dir returns the artifact directory URL for tier, ending in a slash.
func (l Layout) Dir(tier enginebridge.Tier) string {
	dir := l.FullDir
	if tier != enginebridge.TierFull {
		dir = l.ReducedDir
	}
	u := l.BaseURL + dir
	if u != "" && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// ArtifactURL returns the module URL for variant id at tier.
func (l Layout) ArtifactURL(tier enginebridge.Tier, id string) string {
	return l.Dir(tier) + id + artifactExt
}

// Resolver picks a variant and confirms its artifact exists.
type Resolver struct {
	layout  Layout
	checker Checker
}

// NewResolver creates a resolver. A nil checker uses HEAD requests.
func NewResolver(layout Layout, checker Checker) *Resolver {
	if checker == nil {
		checker = NewHTTPChecker()
	}
	return &Resolver{layout: layout, checker: checker}
}

// Layout returns the artifact layout.
func (r *Resolver) Layout() Layout {
	return r.layout
}

// Resolve walks Chain in order. For each eligible variant it probes the
// artifact and returns the first one present. When none is confirmed it
// returns the terminal variant without probing it. A vector variant may
// then be upgraded to its relaxed-SIMD build if the host supports it and
// that artifact exists. Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, caps enginebridge.Capabilities, tier enginebridge.Tier) Target {
	target, v := r.resolveChain(ctx, caps, tier)

	if caps.ExtendedVectorOps && tier == enginebridge.TierFull && v.RequiresVectorOps {
		relaxedURL := strings.TrimSuffix(target.ArtifactURL, artifactExt) + relaxedSuffix + artifactExt
		if r.checker.Exists(ctx, relaxedURL) {
			Logger().Info("using relaxed SIMD build", zap.String("url", relaxedURL))
			target.ArtifactURL = relaxedURL
			target.Relaxed = true
		}
	}

	Logger().Info("engine variant resolved",
		zap.String("variant", target.VariantID),
		zap.String("url", target.ArtifactURL),
		zap.Bool("threads", target.UseParallelExec),
		zap.Bool("relaxed", target.Relaxed),
	)
	return target
}

func (r *Resolver) resolveChain(ctx context.Context, caps enginebridge.Capabilities, tier enginebridge.Tier) (Target, Variant) {
	for _, v := range Chain {
		if !v.Eligible(caps, tier) {
			continue
		}
		url := r.layout.ArtifactURL(tier, v.ID)
		if r.checker.Exists(ctx, url) {
			return Target{
				ArtifactURL:     url,
				VariantID:       v.ID,
				UseParallelExec: v.RequiresParallelExec && caps.ParallelExec,
			}, v
		}
		Logger().Info("variant not available, trying next", zap.String("variant", v.ID), zap.String("url", url))
	}

	v := Terminal()
	Logger().Info("using final fallback", zap.String("variant", v.ID))
	return Target{
		ArtifactURL: r.layout.ArtifactURL(tier, v.ID),
		VariantID:   v.ID,
	}, v
}
