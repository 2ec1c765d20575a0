package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/build"
	"github.com/wolfeidau/sitepack/internal/bundler"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/logger"
	"github.com/wolfeidau/sitepack/internal/mode"
	"golang.org/x/sync/errgroup"
)

// sessionServer runs a single watch and serve session until ctx is done.
type sessionServer interface {
	Serve(ctx context.Context, f fragment.Fragment, sc bundler.ServeConfig) error
}

var _ sessionServer = (*bundler.Pipeline)(nil)

type DevCmd struct {
	ProjectFlags `embed:""`

	Host string `help:"dev server host" default:"localhost" env:"SITEPACK_HOST"`
	Port int    `help:"dev server port" default:"8000" env:"SITEPACK_PORT"`
}

func (d *DevCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogging(globals)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	o, pipeline, dir := d.orchestrator()

	watcher, err := dir.Watch()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		return d.serve(gctx, o, pipeline, watcher.Changes())
	})

	return g.Wait()
}

// serve runs a watch and serve session, starting a new one whenever the
// project file changes.
func (d *DevCmd) serve(ctx context.Context, o *build.Orchestrator, server sessionServer, changes <-chan struct{}) error {
	opts := d.options(mode.Development, false)
	sc := bundler.ServeConfig{Host: d.Host, Port: d.Port}

	for {
		sessionCtx, cancel := context.WithCancel(ctx)
		sessionCtx, buildID := logger.WithBuild(sessionCtx, log.Logger, string(mode.Development))

		f, err := o.Compose(sessionCtx, opts)
		if err != nil {
			cancel()
			log.Error().Err(err).Msg("Failed to compose configuration, waiting for project file change")
			select {
			case <-ctx.Done():
				return nil
			case <-changes:
				continue
			}
		}

		log.Ctx(sessionCtx).Info().Str("build_id", buildID).Str("host", d.Host).Int("port", d.Port).Msg("Starting dev session")

		done := make(chan error, 1)
		go func() {
			done <- server.Serve(sessionCtx, f, sc)
		}()

		select {
		case <-ctx.Done():
			cancel()
			return <-done
		case <-changes:
			log.Info().Msg("Project file changed, restarting dev session")
			cancel()
			if err := <-done; err != nil {
				return err
			}
		case err := <-done:
			cancel()
			return err
		}
	}
}
