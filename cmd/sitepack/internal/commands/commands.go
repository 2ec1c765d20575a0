package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/build"
	"github.com/wolfeidau/sitepack/internal/bundler"
	"github.com/wolfeidau/sitepack/internal/logger"
	"github.com/wolfeidau/sitepack/internal/mode"
	"github.com/wolfeidau/sitepack/internal/project"
	"github.com/wolfeidau/sitepack/internal/telemetry"
)

const serviceName = "sitepack"

type Globals struct {
	Debug   bool
	Version string
}

// ProjectFlags locate the front-end project and its output.
type ProjectFlags struct {
	ProjectDir string `help:"front-end project directory" default:"." type:"existingdir" env:"SITEPACK_PROJECT_DIR"`
	OutDir     string `help:"output directory, relative to the project directory" default:"dist" env:"SITEPACK_OUT_DIR"`
}

func (p ProjectFlags) options(m mode.BuildMode, analyze bool) build.Options {
	return build.Options{
		Mode:       m,
		ProjectDir: p.ProjectDir,
		OutputDir:  p.OutDir,
		Analyze:    analyze,
	}
}

// orchestrator wires the resolver, the project override file and the
// pipeline together for dir.
func (p ProjectFlags) orchestrator() (*build.Orchestrator, *bundler.Pipeline, project.Dir) {
	dir := project.Dir{Root: p.ProjectDir}

	config := bundler.DefaultConfig()
	config.ProjectDir = p.ProjectDir
	pipeline := bundler.New(config)

	resolver := mode.NewResolver(mode.WithBuildDependencies(dir.ConfigPath()))

	return build.New(resolver, dir, pipeline), pipeline, dir
}

func setupLogging(globals *Globals) {
	log.Logger = logger.Setup(globals.Debug)
	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting sitepack")
}

func setupTracing(ctx context.Context, globals *Globals) func() {
	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, serviceName, globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
