package capability

import (
	"context"
	goruntime "runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
)

// Options restrict what the prober may report. Forcing a feature off is
// useful when a build is known to misbehave on a host.
type Options struct {
	DisableThreads bool
	DisableSIMD    bool
}

// CPU reports host vector features. The default implementation reads cpuid.
type CPU interface {
	Vector() bool
	ExtendedVector() bool
}

// Prober detects host capabilities. The zero value is ready to use.
type Prober struct {
	opts Options
	cpu  CPU
	// compile validates a module; replaced in tests.
	compile func(ctx context.Context, bin []byte, threads bool) error
	procs   func() int
}

// New creates a prober with the given options.
func New(opts Options) *Prober {
	return &Prober{opts: opts}
}

// Probe interrogates the host. It is safe to call repeatedly and never
// caches: every bootstrap re-probes.
func (p *Prober) Probe(ctx context.Context) enginebridge.Capabilities {
	var caps enginebridge.Capabilities

	if !p.opts.DisableThreads {
		caps.ParallelExec = p.supports(ctx, "threads", threadsModule(), true) && p.numProcs() > 1
	}
	if !p.opts.DisableSIMD {
		caps.VectorOps = p.supports(ctx, "simd", simdModule(), false) && p.hostCPU().Vector()
	}
	// relaxed SIMD only matters for threaded builds
	if caps.ParallelExec && caps.VectorOps {
		caps.ExtendedVectorOps = p.supports(ctx, "relaxed-simd", relaxedSIMDModule(), true) && p.hostCPU().ExtendedVector()
	}

	Logger().Info("host capabilities",
		zap.Bool("threads", caps.ParallelExec),
		zap.Bool("simd", caps.VectorOps),
		zap.Bool("relaxed_simd", caps.ExtendedVectorOps),
		zap.String("cpu", cpuid.CPU.BrandName),
	)
	return caps
}

func (p *Prober) supports(ctx context.Context, feature string, bin []byte, threads bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.New(errors.PhaseProbe, errors.KindUnsupported).Detail("%s probe panicked: %v", feature, r).Build()
			Logger().Debug("feature not supported", zap.String("feature", feature), zap.Error(err))
			ok = false
		}
	}()

	compile := p.compile
	if compile == nil {
		compile = compileProbe
	}
	if err := compile(ctx, bin, threads); err != nil {
		Logger().Debug("feature not supported", zap.String("feature", feature), zap.Error(err))
		return false
	}
	return true
}

func (p *Prober) hostCPU() CPU {
	if p.cpu != nil {
		return p.cpu
	}
	return cpuidCPU{}
}

func (p *Prober) numProcs() int {
	if p.procs != nil {
		return p.procs()
	}
	return goruntime.GOMAXPROCS(0)
}

func compileProbe(ctx context.Context, bin []byte, threads bool) error {
	cfg := wazero.NewRuntimeConfig()
	if threads {
		cfg = cfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return errors.Wrap(errors.PhaseProbe, errors.KindUnsupported, err, "compile probe module")
	}
	return compiled.Close(ctx)
}

type cpuidCPU struct{}

func (cpuidCPU) Vector() bool {
	switch goruntime.GOARCH {
	case "amd64", "386":
		return cpuid.CPU.Supports(cpuid.SSE4)
	case "arm64":
		return cpuid.CPU.Supports(cpuid.ASIMD)
	default:
		return false
	}
}

func (cpuidCPU) ExtendedVector() bool {
	switch goruntime.GOARCH {
	case "amd64", "386":
		return cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3)
	case "arm64":
		return cpuid.CPU.Supports(cpuid.ASIMD, cpuid.ASIMDDP)
	default:
		return false
	}
}
