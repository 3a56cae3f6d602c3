package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/camia/aviation/pkg/aviation"
	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/units"
	"github.com/camia/aviation/pkg/wasm"
)

// modelFlags are the flags shared by every command that builds a model.
type modelFlags struct {
	starlark []string
	wasm     []string
	strict   bool
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.starlark, "starlark", nil, "starlark module with extra transforms (repeatable)")
	cmd.Flags().StringArrayVar(&f.wasm, "wasm", nil, "wasm manifest with extra transforms (repeatable)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "check unit annotations on every call")
}

// builtModel is a model plus the resources backing its transforms.
type builtModel struct {
	*engine.SystemsModel
	host *wasm.Host
}

// Close releases the wasm runtime, if any.
func (m *builtModel) Close(ctx context.Context) {
	if m.host == nil {
		return
	}
	if err := m.host.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to close wasm runtime")
	}
}

// build assembles the aviation catalogue with the transforms loaded from
// --starlark and --wasm.
func (f *modelFlags) build(ctx context.Context, cfg *config.AppConfig, opts ...engine.Option) (*builtModel, error) {
	var extra []*engine.Transform

	loader := config.NewStarlarkLoader(cfg.Engine.StarlarkMaxSteps, log.Logger)
	for _, path := range f.starlark {
		transforms, err := loader.LoadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		extra = append(extra, transforms...)
	}

	built := &builtModel{}
	if len(f.wasm) > 0 {
		host, err := wasm.NewHost(ctx, nil, log.Logger)
		if err != nil {
			return nil, err
		}
		built.host = host
		for _, path := range f.wasm {
			transforms, err := host.LoadFile(ctx, path)
			if err != nil {
				built.Close(ctx)
				return nil, err
			}
			extra = append(extra, transforms...)
		}
	}

	opts = append([]engine.Option{engine.WithLogger(log.Logger)}, opts...)
	if f.strict || cfg.Engine.Strict {
		opts = append(opts, engine.WithStrictAnnotations())
	}

	model, err := aviation.NewModel(extra, opts...)
	if err != nil {
		built.Close(ctx)
		return nil, err
	}
	built.SystemsModel = model

	log.Debug().
		Int("transforms", model.Len()).
		Strs("starlark", f.starlark).
		Strs("wasm", f.wasm).
		Msg("Model built")

	return built, nil
}

// parseAssignments turns repeated --input name=value[:unit] flags into a map.
func parseAssignments(assignments []string) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(assignments))
	for _, a := range assignments {
		name, value, err := config.ParseAssignment(a)
		if err != nil {
			return nil, err
		}
		inputs[name] = value
	}
	return inputs, nil
}

// formatValue renders an evaluated value for terminal output.
func formatValue(v interface{}) string {
	if q, ok := v.(units.Quantity); ok {
		return q.String()
	}
	return fmt.Sprint(v)
}
