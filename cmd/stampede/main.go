package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/stampede-load/stampede/internal/auth"
	"github.com/stampede-load/stampede/internal/config"
	"github.com/stampede-load/stampede/internal/engine"
	"github.com/stampede-load/stampede/internal/feeder"
	"github.com/stampede-load/stampede/internal/report"
	"github.com/stampede-load/stampede/internal/scenario"
	"github.com/stampede-load/stampede/internal/tracing"
	"github.com/stampede-load/stampede/internal/transport"
)

const shutdownGrace = 5 * time.Second

type stderrFailureLogger struct {
	mu sync.Mutex
}

func (l *stderrFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(os.Stderr, "[stampede] request failed: %v\n", err)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracer, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
		defer done()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "tracing shutdown: %v\n", err)
		}
	}()

	requester, err := newRequester(cfg, tracer)
	if err != nil {
		return err
	}
	defer requester.Close()

	seed, err := newSeedSource(cfg)
	if err != nil {
		return err
	}

	opts, err := buildEngineOptions(cfg, requester, seed)
	if err != nil {
		return err
	}

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}

	var progress *report.ProgressReporter
	var progressWG sync.WaitGroup
	if !cfg.JSONOutput {
		progress = report.NewProgressReporter(os.Stdout)
		snaps := eng.Subscribe()
		progressWG.Add(1)
		go func() {
			defer progressWG.Done()
			progress.Run(snaps)
		}()
	}

	summary, runErr := eng.Run(ctx)
	if progress != nil {
		progressWG.Wait()
		fmt.Fprintln(os.Stdout)
	}
	if runErr != nil && summary.Reason == engine.ReasonConfigError {
		return runErr
	}

	if cfg.JSONOutput {
		if err := report.PrintJSONReport(os.Stdout, summary); err != nil {
			return err
		}
	} else {
		report.PrintReport(os.Stdout, summary)
	}

	switch summary.Reason {
	case engine.ReasonThreshold:
		return fmt.Errorf("run aborted: threshold breached")
	case engine.ReasonInterrupted:
		return fmt.Errorf("run interrupted")
	}
	return nil
}

// newRequester builds the protocol transport, wrapped with the aggregate
// rate limiter when one is configured.
func newRequester(cfg *config.Config, tracer *tracing.Provider) (transport.Requester, error) {
	var req transport.Requester
	switch cfg.Protocol {
	case "", config.ProtocolHTTP:
		req = transport.NewHTTPRequester(transport.HTTPOptions{
			Timeout: cfg.Timeout,
			Tracing: tracer,
		})
	case config.ProtocolWebSocket:
		req = transport.NewWSRequester(transport.WSOptions{
			Timeout: cfg.Timeout,
		})
	case config.ProtocolGRPC:
		req = transport.NewGRPCRequester(transport.GRPCOptions{
			ProtoFile: cfg.GRPC.ProtoFile,
			Service:   cfg.GRPC.Service,
			Method:    cfg.GRPC.Method,
			Timeout:   cfg.Timeout,
			UseTLS:    cfg.GRPC.TLS,
			Insecure:  cfg.GRPC.Insecure,
			Tracing:   tracer,
		})
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}

	provider, err := newAuthProvider(cfg)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		req = transport.Authenticated(req, provider)
	}

	if cfg.LogErrors {
		req = transport.WithFailureLogging(req, &stderrFailureLogger{})
	}

	if cfg.Rate > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Rate)
		req = transport.RateLimited(req, limiter)
	}
	return req, nil
}

// newAuthProvider builds the token provider, or nil when requests are
// unauthenticated.
func newAuthProvider(cfg *config.Config) (auth.Provider, error) {
	switch cfg.Auth.Type {
	case "":
		return nil, nil
	case "bearer":
		return auth.Static(cfg.Auth.Token), nil
	case "oauth2":
		return auth.NewClientCredentials(auth.ClientCredentialsOptions{
			TokenURL:     cfg.Auth.TokenURL,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Scopes:       cfg.Auth.Scopes,
		})
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", cfg.Auth.Type)
	}
}

// newSeedSource opens the data feeder when one is configured.
func newSeedSource(cfg *config.Config) (scenario.SeedSource, error) {
	if cfg.Feeder.Path == "" {
		return nil, nil
	}
	f, err := feeder.Open(cfg.Feeder.Path, cfg.Feeder.Type)
	if err != nil {
		return nil, fmt.Errorf("open feeder: %w", err)
	}
	return f, nil
}

func buildEngineOptions(cfg *config.Config, requester transport.Requester, seed scenario.SeedSource) (engine.Options, error) {
	pat, err := cfg.BuildPattern()
	if err != nil {
		return engine.Options{}, err
	}
	thresholds, err := cfg.BuildThresholds()
	if err != nil {
		return engine.Options{}, err
	}

	opts := engine.Options{
		Pattern:          pat,
		Scenarios:        cfg.BuildScenarios(),
		Requester:        requester,
		Thresholds:       thresholds,
		Seed:             seed,
		SnapshotInterval: cfg.SnapshotInterval,
	}
	if cfg.Preflight && cfg.Protocol != config.ProtocolGRPC && cfg.Protocol != config.ProtocolWebSocket {
		opts.PreflightURL = preflightURL(cfg)
	}
	return opts, nil
}

// preflightURL picks the URL probed before load starts: the bare target,
// or the first step of the first scenario.
func preflightURL(cfg *config.Config) string {
	if cfg.Target != "" {
		return cfg.Target
	}
	for _, scn := range cfg.BuildScenarios() {
		for _, step := range scn.Steps {
			if step.URL != "" {
				return step.URL
			}
		}
	}
	return ""
}
