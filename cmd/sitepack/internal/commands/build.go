package commands

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/bundler"
	"github.com/wolfeidau/sitepack/internal/logger"
	"github.com/wolfeidau/sitepack/internal/mode"
)

// BuildFlags are shared by the production build commands.
type BuildFlags struct {
	ProjectFlags `embed:""`

	Analyzer bool `help:"write a bundle analysis report next to the output" env:"SITEPACK_ANALYZER"`
	Tracing  bool `help:"export traces and metrics over OTLP" env:"SITEPACK_TRACING"`
}

type BuildSiteCmd struct {
	BuildFlags `embed:""`
}

func (c *BuildSiteCmd) Run(ctx context.Context, globals *Globals) error {
	return c.run(ctx, globals, mode.BuildSite)
}

type BuildLibCmd struct {
	BuildFlags `embed:""`
}

func (c *BuildLibCmd) Run(ctx context.Context, globals *Globals) error {
	return c.run(ctx, globals, mode.BuildLib)
}

func (b *BuildFlags) run(ctx context.Context, globals *Globals, m mode.BuildMode) error {
	setupLogging(globals)

	if b.Tracing {
		shutdown := setupTracing(ctx, globals)
		defer shutdown()
	}

	ctx, buildID := logger.WithBuild(ctx, log.Logger, string(m))

	o, pipeline, _ := b.orchestrator()

	completion, err := o.Run(ctx, b.options(m, b.Analyzer))
	if err != nil {
		return err
	}

	res, err := completion.Wait(ctx)
	if err != nil {
		return err
	}

	logEntryPoints(ctx, pipeline)

	log.Ctx(ctx).Info().
		Str("build_id", buildID).
		Int("files", len(res.OutputFiles)).
		Str("size", humanize.Bytes(uint64(res.Bytes))).
		Int("warnings", len(res.Warnings)).
		Dur("duration", res.Duration).
		Msg("Build complete")

	return nil
}

func logEntryPoints(ctx context.Context, pipeline *bundler.Pipeline) {
	for _, entry := range pipeline.EntryPoints() {
		scripts, main, err := pipeline.LoadScripts(entry)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("entrypoint", entry).Msg("Failed to load scripts")
			continue
		}
		log.Ctx(ctx).Debug().Str("entrypoint", entry).Str("main", main).Strs("scripts", scripts).Msg("Entry point ready")
	}
}
