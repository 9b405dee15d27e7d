package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02 15:04:05"

// setMx serialises the setters, the loggers themselves are swapped whole.
var (
	setMx  sync.Mutex
	logger atomic.Pointer[zerolog.Logger]
)

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
	logger.Store(&l)
}

// SetOutput replaces the log sink. console selects the human readable writer,
// otherwise one JSON object is written per line.
func SetOutput(w io.Writer, console bool) {
	setMx.Lock()
	defer setMx.Unlock()
	lvl := logger.Load().GetLevel()
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	logger.Store(&l)
}

// SetLevel accepts the zerolog level names (trace, debug, info, warn, error).
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	setMx.Lock()
	defer setMx.Unlock()
	l := logger.Load().Level(lvl)
	logger.Store(&l)
	return nil
}

func Errorf(format string, args ...interface{}) {
	logger.Load().Error().Msgf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Load().Warn().Msgf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	logger.Load().Debug().Msgf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Load().Info().Msgf(format, args...)
}
