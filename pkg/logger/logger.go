// Package logx owns the process-wide zerolog configuration. Every package
// logs through the zerolog global, so format and level are decided once here.
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Debug lowers the level to debug; the per-call resilience and cache
	// logs only appear with it on.
	Debug bool `split_words:"true" default:"false"`
	// PrettyFormat switches to the console writer for interactive chat
	// sessions. Deployed runs keep JSON lines on stdout.
	PrettyFormat bool `split_words:"true" default:"false"`
}

// Init installs the global logger. No config means production defaults:
// info level, JSON to stdout.
func Init(opts ...Config) {
	var conf Config
	if len(opts) > 0 {
		conf = opts[0]
	}

	var out io.Writer = os.Stdout
	if conf.PrettyFormat {
		out = zerolog.NewConsoleWriter()
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
}
