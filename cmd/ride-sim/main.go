package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/ridesafe/internal/ridesim"
	"github.com/okian/ridesafe/pkg/logger"
)

const (
	defaultSamplesPerLeg = 20
	defaultTimeout       = 5 * time.Second
	defaultCrashG        = 6.0
	defaultRunTimeout    = 5 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		samples    = flag.Int("samples", defaultSamplesPerLeg, "Samples per ride leg")
		interval   = flag.Duration("interval", 0, "Pause between samples")
		crashG     = flag.Float64("crash-g", defaultCrashG, "Crash magnitude in g")
		callNow    = flag.Bool("call", false, "Place the call instead of cancelling the countdown")
		seed       = flag.Uint64("seed", 0, "Jitter seed (default derived from the run id)")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write generated samples to this JSON file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Log every verified leg")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		ridesim.ShowHelp()
		return
	}

	closeLog, err := ridesim.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &ridesim.Config{
		BaseURL:       *baseURL,
		SamplesPerLeg: *samples,
		Interval:      *interval,
		Timeout:       *timeout,
		CrashG:        *crashG,
		CallNow:       *callNow,
		Seed:          *seed,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if _, err := ridesim.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "ride simulation failed", logger.Error(err))
		_ = closeLog()
		os.Exit(1)
	}
}
