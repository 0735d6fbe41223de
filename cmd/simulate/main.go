package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/simulate"
)

// Default configuration constants.
const (
	defaultCount       = 100
	defaultUndoRate    = 0.1
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		count      = flag.Int("count", defaultCount, "Titles generated per media kind")
		kinds      = flag.String("kinds", "movie,series", "Comma separated media kinds to rank")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for the hidden order")
		undoRate   = flag.Float64("undo", defaultUndoRate, "Share of comparisons answered wrong and undone")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for generated titles (default: generated_titles_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for run output")
		verbose    = flag.Bool("verbose", false, "Log every comparison")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	var mediaKinds []model.MediaKind
	for _, k := range strings.Split(*kinds, ",") {
		kind, err := model.ParseMediaKind(k)
		if err != nil {
			os.Stderr.WriteString(err.Error() + "\n")
			os.Exit(2)
		}
		mediaKinds = append(mediaKinds, kind)
	}

	if *outputFile == "" {
		*outputFile = simulate.DefaultOutputFile(time.Now())
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:    *baseURL,
		Count:      *count,
		Kinds:      mediaKinds,
		Seed:       *seed,
		UndoRate:   *undoRate,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		Verbose:    *verbose,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
