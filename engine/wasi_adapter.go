package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// InstantiateWASI instantiates WASI preview1 in r. Thread-spawn requests
// from threaded builds are answered with a negative id, which the guest
// treats as "threads unavailable" and continues single-threaded.
func InstantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasi_snapshot_preview1.ModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	if _, err := builder.Instantiate(ctx); err != nil {
		return nil, err
	}

	threads := r.NewHostModuleBuilder("wasi")
	threads = threads.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(-1)
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("thread-spawn")
	if _, err := threads.Instantiate(ctx); err != nil {
		return nil, err
	}
	return r.Module(wasi_snapshot_preview1.ModuleName), nil
}
