package wasm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/units"
)

// Config contains configuration for the WASM host.
type Config struct {
	// Timeout bounds each transform call. Zero selects 5s.
	Timeout time.Duration

	// MemoryLimitPages is the maximum memory of a module instance in
	// 64KiB pages. Zero selects 256 pages (16MiB).
	MemoryLimitPages uint32
}

const (
	defaultTimeout          = 5 * time.Second
	defaultMemoryLimitPages = 256
)

// Host compiles WebAssembly modules and exposes their exported functions as
// transforms. All modules share one wazero runtime; Close releases it and
// invalidates every transform the host produced.
type Host struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled map[string]wazero.CompiledModule
	loaded   int
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewHost creates a WASM host. A nil cfg selects the defaults.
func NewHost(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Host, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MemoryLimitPages == 0 {
		c.MemoryLimitPages = defaultMemoryLimitPages
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(c.MemoryLimitPages).
		WithCloseOnContextDone(true))

	// Modules built by WASI toolchains import wasi_snapshot_preview1 even
	// when their exports never touch it.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	return &Host{
		runtime:  runtime,
		compiled: make(map[string]wazero.CompiledModule),
		timeout:  c.Timeout,
		logger:   logger.With().Str("component", "wasm-host").Logger(),
	}, nil
}

// LoadFile loads the manifest at path and the module it names.
func (h *Host) LoadFile(ctx context.Context, path string) ([]*engine.Transform, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	module, err := os.ReadFile(m.ModulePath())
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM module: %w", err)
	}
	return h.Load(ctx, m, module)
}

// Load compiles module and returns one transform per manifest entry, in
// manifest order. Every entry must name an export taking one f64 per
// parameter and returning one f64.
func (h *Host) Load(ctx context.Context, m *Manifest, module []byte) ([]*engine.Transform, error) {
	if err := m.VerifyChecksum(module); err != nil {
		return nil, err
	}

	compiled, err := h.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}

	exports := compiled.ExportedFunctions()
	transforms := make([]*engine.Transform, 0, len(m.Transforms))
	for _, spec := range m.Transforms {
		def, ok := exports[spec.ExportName()]
		if !ok {
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("transform %s: module does not export %q", spec.Name, spec.ExportName())
		}
		if err := checkSignature(spec.ExportName(), def, len(spec.Parameters)); err != nil {
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("transform %s: %w", spec.Name, err)
		}

		t, err := h.transform(compiled, spec)
		if err != nil {
			_ = compiled.Close(ctx)
			return nil, err
		}
		transforms = append(transforms, t)
	}

	h.mu.Lock()
	h.loaded++
	key := m.Path
	if key == "" {
		key = fmt.Sprintf("module-%d", h.loaded)
	}
	if prev, ok := h.compiled[key]; ok {
		_ = prev.Close(ctx)
	}
	h.compiled[key] = compiled
	h.mu.Unlock()

	h.logger.Debug().
		Str("manifest", m.Path).
		Int("transforms", len(transforms)).
		Msg("WASM module loaded")

	return transforms, nil
}

func checkSignature(export string, def api.FunctionDefinition, params int) error {
	if got := len(def.ParamTypes()); got != params {
		return fmt.Errorf("export %s takes %d parameters, manifest declares %d", export, got, params)
	}
	for _, vt := range def.ParamTypes() {
		if vt != api.ValueTypeF64 {
			return fmt.Errorf("export %s: parameters must be f64, got %s", export, api.ValueTypeName(vt))
		}
	}
	results := def.ResultTypes()
	if len(results) != 1 || results[0] != api.ValueTypeF64 {
		return fmt.Errorf("export %s must return a single f64", export)
	}
	return nil
}

// transform wraps one export. Each call instantiates an anonymous module,
// so calls never share linear memory and may run concurrently.
func (h *Host) transform(compiled wazero.CompiledModule, spec TransformSpec) (*engine.Transform, error) {
	opts := []engine.TransformOption{}
	if spec.Description != "" {
		opts = append(opts, engine.WithDescription(spec.Description))
	}

	paramUnits := make(map[string]units.Unit, len(spec.Units))
	for p, expr := range spec.Units {
		u, err := units.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("transform %s: parameter %s: %w", spec.Name, p, err)
		}
		paramUnits[p] = u
		opts = append(opts, engine.WithParameterAnnotation(p, u))
	}

	var resultUnit *units.Unit
	if spec.Result != "" {
		u, err := units.Parse(spec.Result)
		if err != nil {
			return nil, fmt.Errorf("transform %s: result: %w", spec.Name, err)
		}
		resultUnit = &u
		opts = append(opts, engine.WithResultAnnotation(u))
	}

	name, export, params := spec.Name, spec.ExportName(), spec.Parameters
	call := func(ctx context.Context, args engine.Arguments) (interface{}, error) {
		encoded := make([]uint64, len(params))
		for i, p := range params {
			f, err := argument(args[p], paramUnits, p)
			if err != nil {
				return nil, engine.NewArgumentBindingError(name, p, err)
			}
			encoded[i] = api.EncodeF64(f)
		}

		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		mod, err := h.runtime.InstantiateModule(ctx, compiled,
			wazero.NewModuleConfig().WithName("").WithStartFunctions("_initialize"))
		if err != nil {
			return nil, fmt.Errorf("failed to instantiate WASM module: %w", err)
		}
		defer mod.Close(context.Background())

		results, err := mod.ExportedFunction(export).Call(ctx, encoded...)
		if err != nil {
			return nil, err
		}

		value := api.DecodeF64(results[0])
		if resultUnit != nil {
			return units.Q(value, *resultUnit), nil
		}
		return value, nil
	}

	return engine.NewTransform(name, params, call, opts...)
}

// argument converts a value bound to parameter p to the f64 passed to the
// module. Quantities are accepted only for parameters annotated with the
// same unit.
func argument(v interface{}, paramUnits map[string]units.Unit, p string) (float64, error) {
	if q, ok := units.AsQuantity(v); ok {
		want, annotated := paramUnits[p]
		if !annotated {
			return 0, fmt.Errorf("quantity %s passed to a parameter without a unit", q)
		}
		if !q.Unit.Equal(want) {
			return 0, fmt.Errorf("expected %s, got %s", want, q.Unit)
		}
		return q.Value, nil
	}
	if f, ok := units.AsFloat(v); ok {
		return f, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

// Close releases the runtime and all compiled modules.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.compiled = make(map[string]wazero.CompiledModule)
	return h.runtime.Close(ctx)
}
