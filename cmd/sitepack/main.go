package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/sitepack/cmd/sitepack/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		BuildSite commands.BuildSiteCmd `cmd:"" help:"Build a site for production"`
		BuildLib  commands.BuildLibCmd  `cmd:"" help:"Build a library for production"`
		Dev       commands.DevCmd       `cmd:"" help:"Serve a development build, rebuilding on change"`
		Inspect   commands.InspectCmd   `cmd:"" help:"Print the composed configuration as YAML"`
		Debug     bool                  `help:"Enable debug mode." env:"SITEPACK_DEBUG"`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
