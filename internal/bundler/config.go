package bundler

import "github.com/evanw/esbuild/pkg/api"

type Config struct {
	// Project root, entry globs and relative output paths resolve against it
	ProjectDir string
	// Name of the metafile written to the output directory
	MetafileName string
	// Log level for esbuild's own console output, sitepack logs messages itself
	LogLevel api.LogLevel
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		ProjectDir:   ".",
		MetafileName: "meta.json",
		LogLevel:     api.LogLevelSilent,
	}
}
