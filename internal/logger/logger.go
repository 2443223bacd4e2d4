package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

var ErrUnknownFormat = errors.New("unknown log format")

type Config struct {
	Level  string
	Format string
	Output string
}

// PrepareLogger configures the global logrus logger.
// Output is "stdout", "stderr" or a file path; empty means stdout.
func PrepareLogger(config Config) error {
	level := config.Level
	if level == "" {
		level = "WARN"
	}
	l, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("failed to parse log level %q: %w", config.Level, err)
	}

	switch strings.ToLower(config.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("%q: %w", config.Format, ErrUnknownFormat)
	}

	out, err := output(config.Output)
	if err != nil {
		return err
	}
	log.SetOutput(out)
	log.SetLevel(l)
	return nil
}

func output(name string) (io.Writer, error) {
	switch strings.ToLower(name) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", name, err)
	}
	return f, nil
}
