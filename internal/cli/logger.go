package cli

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger adapts zerolog to the key/value logging contract of the monitoring engine.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a leveled logger writing to w. Pretty selects the
// human-readable console format over JSON lines.
func NewLogger(w io.Writer, level string, pretty bool) (*Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
}

func (l *Logger) Debug(message string, keyValuePairs ...interface{}) {
	l.zl.Debug().Fields(keyValuePairs).Msg(message)
}

func (l *Logger) Info(message string, keyValuePairs ...interface{}) {
	l.zl.Info().Fields(keyValuePairs).Msg(message)
}

func (l *Logger) Warn(message string, keyValuePairs ...interface{}) {
	l.zl.Warn().Fields(keyValuePairs).Msg(message)
}

func (l *Logger) Error(message string, keyValuePairs ...interface{}) {
	l.zl.Error().Fields(keyValuePairs).Msg(message)
}
