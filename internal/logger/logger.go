package logger

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// WithBuild attaches a logger tagged with a fresh build id and the build
// mode to ctx. The id is returned so callers can report it.
func WithBuild(ctx context.Context, logger zerolog.Logger, mode string) (context.Context, string) {
	id := uuid.NewString()

	ctx = logger.With().
		Str("build_id", id).
		Str("mode", mode).
		Logger().WithContext(ctx)

	return ctx, id
}
