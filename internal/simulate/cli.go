package simulate

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/tierank/pkg/logger"
)

// SetupLogging sends logs to stdout and, when logFile is set, to that file
// as well. The returned function closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	level := "info"
	if verbose {
		level = "debug"
	}

	var (
		w       io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closeFn = file.Close
	}

	if err := logger.Init(logger.WithWriter(w), logger.WithLevel(level)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return closeFn, nil
}

// DefaultOutputFile returns a timestamped file name for generated titles.
func DefaultOutputFile(now time.Time) string {
	return "generated_titles_" + now.Format("20060102_150405") + ".json"
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`tierank simulator
=================

Ranks a generated catalogue through the HTTP API, answering every comparison
from a hidden order, then checks the resulting lists.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -count int
        Titles generated per media kind (default 100)
  -kinds string
        Comma separated media kinds to rank (default "movie,series")
  -seed uint
        Seed for the hidden order (default: current time)
  -undo float
        Share of comparisons answered wrong and undone (default 0.1)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for generated titles (default: generated_titles_TIMESTAMP.json)
  -log string
        Log file for run output
  -verbose
        Log every comparison
  -help
        Show this help message

The lists must be empty before a run.
`)
}
