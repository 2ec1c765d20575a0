// Package build composes the final bundler configuration for an invocation
// and hands it to the bundling engine.
package build

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/bundler"
	"github.com/wolfeidau/sitepack/internal/chain"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/mode"
	"github.com/wolfeidau/sitepack/internal/project"
	"github.com/wolfeidau/sitepack/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// DefaultOutputDir is used when Options.OutputDir is empty.
const DefaultOutputDir = "dist"

type Options struct {
	Mode       mode.BuildMode
	ProjectDir string
	OutputDir  string
	Analyze    bool
}

// Orchestrator runs the composition chain and starts the engine.
type Orchestrator struct {
	resolver *mode.Resolver
	project  project.Provider
	engine   bundler.Engine
}

func New(resolver *mode.Resolver, provider project.Provider, engine bundler.Engine) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		project:  provider,
		engine:   engine,
	}
}

// AnalyzerPlugin is injected when an analysis report is requested.
func AnalyzerPlugin() fragment.Plugin {
	return fragment.Plugin{
		Name: mode.PluginBundleAnalyzer,
		Options: map[string]any{
			"analyzerMode":      "static",
			"generateStatsFile": true,
		},
	}
}

// Compose builds the final fragment for opts. Mode resolution runs first and
// the project override is merged last, so the project always wins.
func (o *Orchestrator) Compose(ctx context.Context, opts Options) (fragment.Fragment, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "compose")
	defer span.End()

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", string(opts.Mode)))
	m.ComposeTotal.Add(ctx, 1, attrs)

	f, err := o.compose(opts)
	if err != nil {
		m.ComposeErrorsTotal.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fragment.Fragment{}, err
	}

	log.Ctx(ctx).Debug().
		Str("output", f.Output.Path).
		Int("rules", len(f.Module.Rules)).
		Int("plugins", len(f.Plugins)).
		Bool("analyze", opts.Analyze).
		Msg("Composed fragment")

	return f, nil
}

func (o *Orchestrator) compose(opts Options) (fragment.Fragment, error) {
	inv, err := invocation(opts)
	if err != nil {
		return fragment.Fragment{}, err
	}

	stages := []chain.Transformer[fragment.Fragment, mode.Invocation]{
		o.resolver.Apply,
		project.Apply(o.project),
	}

	f, err := chain.Apply(stages, fragment.Fragment{}, inv)
	if err != nil {
		return fragment.Fragment{}, fmt.Errorf("failed to compose %s fragment: %w", inv.Mode, err)
	}

	f.Output.Path = inv.OutputDir

	return fragment.InjectIf(f, inv.Analyze, AnalyzerPlugin()), nil
}

// Run composes the fragment and starts the engine. Composition errors are
// returned directly, engine failures through the Completion.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*bundler.Completion, error) {
	f, err := o.Compose(ctx, opts)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("mode", string(opts.Mode)).Str("output", f.Output.Path).Msg("Starting build")

	return o.engine.Start(ctx, f), nil
}

func invocation(opts Options) (mode.Invocation, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return mode.Invocation{}, fmt.Errorf("failed to resolve project dir: %w", err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	outputDir, err = project.Path(projectDir, outputDir)
	if err != nil {
		return mode.Invocation{}, fmt.Errorf("failed to resolve output dir: %w", err)
	}

	return mode.Invocation{
		Mode:       opts.Mode,
		ProjectDir: projectDir,
		OutputDir:  outputDir,
		Analyze:    opts.Analyze,
	}, nil
}
