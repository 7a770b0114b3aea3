package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	Setup(os.Stdout, "info")
}

// Setup installs a console logger on the global zerolog logger.
func Setup(out io.Writer, level string) {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Printer adapts the global logger to Printf-style writers such as gorm's.
func Printer(component string) Writer {
	return Writer{component: component}
}

// Writer logs every line at warn level with a component field.
type Writer struct {
	component string
}

func (p Writer) Printf(format string, args ...any) {
	log.Warn().Str("component", p.component).Msgf(format, args...)
}
