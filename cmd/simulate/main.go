package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/sonder/internal/harness"
	"github.com/okian/sonder/pkg/logger"
)

// Default configuration constants.
const (
	defaultSessions = 20
	defaultFCBlocks = 28
	defaultTimeout  = 15 * time.Second
	defaultRunLimit = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9090", "Base URL of the service")
		sessions = flag.Int("sessions", defaultSessions, "Number of full assessment walks to run")
		fcBlocks = flag.Int("blocks", defaultFCBlocks, "Forced-choice blocks answered per session")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose  = flag.Bool("verbose", false, "Log each session walk")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	cfg := &harness.Config{
		BaseURL:  *baseURL,
		Sessions: *sessions,
		FCBlocks: *fcBlocks,
		Timeout:  *timeout,
		Verbose:  *verbose,
	}

	if _, err := harness.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
