package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/logger"
	"github.com/wolfeidau/sitepack/internal/mode"
	"gopkg.in/yaml.v3"
)

type InspectCmd struct {
	ProjectFlags `embed:""`

	Mode     string `help:"build mode to compose (dev, build-site, build-lib)" default:"dev" env:"SITEPACK_MODE"`
	Analyzer bool   `help:"include the bundle analyzer" env:"SITEPACK_ANALYZER"`
}

func (c *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)
	return c.inspect(ctx, os.Stdout)
}

func (c *InspectCmd) inspect(ctx context.Context, w io.Writer) error {
	m, err := mode.ParseStrict(c.Mode)
	if err != nil {
		return err
	}

	o, _, _ := c.orchestrator()

	f, err := o.Compose(ctx, c.options(m, c.Analyzer))
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}
