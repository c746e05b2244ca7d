// Package logging builds the process logger and adapts it to the key/value
// Logger interfaces used by the shared services.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger at level. Unknown levels fall back to info.
func New(out io.Writer, level string) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

// Adapter exposes a zerolog.Logger as Info/Error/Debug(msg, key, value, ...).
type Adapter struct {
	logger zerolog.Logger
}

// Adapt wraps logger.
func Adapt(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

func (a *Adapter) Info(msg string, fields ...interface{}) {
	withFields(a.logger.Info(), fields).Msg(msg)
}

func (a *Adapter) Error(msg string, fields ...interface{}) {
	withFields(a.logger.Error(), fields).Msg(msg)
}

func (a *Adapter) Debug(msg string, fields ...interface{}) {
	withFields(a.logger.Debug(), fields).Msg(msg)
}

// withFields adds alternating key/value pairs. A trailing key without a value
// is logged under "extra".
func withFields(e *zerolog.Event, fields []interface{}) *zerolog.Event {
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = "field"
		}
		if i+1 >= len(fields) {
			e = e.Interface("extra", fields[i])
			break
		}
		switch v := fields[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
