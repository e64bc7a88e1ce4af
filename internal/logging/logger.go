// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line.
const ServiceName = "semdedup"

// New creates a zerolog logger. The local environment gets a console writer,
// everything else gets JSON.
func New(environment, level string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, environment, level)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(out io.Writer, environment, level string) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse SEMDEDUP_LOG_LEVEL=%q: %w", level, err)
	}
	if parsedLevel == zerolog.NoLevel {
		parsedLevel = zerolog.InfoLevel
	}

	writer := out
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(writer).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()

	return logger, nil
}

// Setup builds the logger and installs it as the package-global logger.
func Setup(environment, level string) error {
	logger, err := New(environment, level)
	if err != nil {
		return err
	}
	log.Logger = logger
	return nil
}
