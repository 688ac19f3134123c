package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stampede",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Core request flags
	flags.String("target", "", "Target URL to load test")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("protocol", "http", "Protocol mode: 'http', 'websocket', or 'grpc'")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")

	// Load pattern flags
	flags.String("pattern", "constant", "Load pattern: constant, ramp, spike, step, or exponential")
	flags.IntP("vus", "c", 1, "Starting virtual user count (pattern start)")
	flags.Int("vus-end", 0, "Ending virtual user count for ramp patterns")
	flags.Int("vus-max", 0, "Virtual user ceiling for step and exponential patterns")
	flags.DurationP("duration", "d", 0, "How long to run the test (e.g. 30s, 1m)")
	flags.Duration("sustain", 0, "How long to hold the peak after a ramp")
	flags.Int("spike-to", 0, "Spike target population")
	flags.Duration("spike-start", 0, "Offset at which the spike begins")
	flags.Duration("spike-len", 0, "How long the spike lasts")
	flags.Int("step-size", 0, "Virtual users added per step")
	flags.Duration("step-every", 0, "Interval between steps")
	flags.Float64("growth-rate", 0, "Exponential growth rate per growth unit")
	flags.Duration("growth-unit", time.Second, "Exponential growth unit")
	flags.IntP("rate", "r", 0, "Aggregate requests per second limit (0 means unlimited)")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.Duration("snapshot-interval", time.Second, "Interval between live progress snapshots")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("scenario-file", "", "Path to a standalone YAML scenario file")

	// Feeder flags
	flags.String("feeder-path", "", "Path to CSV or JSON file containing data for per-user injection")
	flags.String("feeder-type", "", "Type of feeder file: 'csv' or 'json'")

	// gRPC flags
	flags.String("grpc-proto-file", "", "Path to .proto file for gRPC")
	flags.String("grpc-service", "", "gRPC service name (e.g., helloworld.Greeter)")
	flags.String("grpc-method", "", "gRPC method name (e.g., SayHello)")
	flags.Bool("grpc-tls", false, "Use TLS for gRPC connection")
	flags.Bool("grpc-insecure", false, "Skip TLS verification for gRPC")

	// Auth flags
	flags.String("auth-type", "", "Authentication mode: 'bearer' or 'oauth2'")
	flags.String("auth-token", "", "Pre-issued bearer token")
	flags.String("auth-token-url", "", "OAuth2 token endpoint URL")
	flags.String("auth-client-id", "", "OAuth2 client ID")
	flags.String("auth-client-secret", "", "OAuth2 client secret")
	flags.StringSlice("auth-scope", nil, "OAuth2 scope (repeatable)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Failure thresholds (repeatable, e.g., 'latency:p95 < 500')")
	flags.Int64("threshold-min-samples", 0, "Requests required before thresholds are evaluated")
	flags.Bool("stop-on-breach", false, "Abort the run when a threshold is breached")

	// Tracing flags
	flags.Bool("tracing", false, "Enable OpenTelemetry tracing")
	flags.String("tracing-endpoint", "", "OTLP collector endpoint")

	// Safety flags
	flags.Bool("preflight", false, "Probe the target once before generating load")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.Target = strings.TrimSpace(val)
	}
	if fs.Changed("protocol") {
		val, err := fs.GetString("protocol")
		if err != nil {
			return err
		}
		cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if err := applyPatternFlags(&cfg.Pattern, fs); err != nil {
		return err
	}

	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("snapshot-interval") {
		val, err := fs.GetDuration("snapshot-interval")
		if err != nil {
			return err
		}
		cfg.SnapshotInterval = val
	}
	if fs.Changed("scenario-file") {
		val, err := fs.GetString("scenario-file")
		if err != nil {
			return err
		}
		cfg.ScenarioFile = strings.TrimSpace(val)
	}

	if fs.Changed("feeder-path") {
		val, err := fs.GetString("feeder-path")
		if err != nil {
			return err
		}
		cfg.Feeder.Path = strings.TrimSpace(val)
	}
	if fs.Changed("feeder-type") {
		val, err := fs.GetString("feeder-type")
		if err != nil {
			return err
		}
		cfg.Feeder.Type = strings.TrimSpace(val)
	}

	if fs.Changed("grpc-proto-file") {
		val, err := fs.GetString("grpc-proto-file")
		if err != nil {
			return err
		}
		cfg.GRPC.ProtoFile = val
	}
	if fs.Changed("grpc-service") {
		val, err := fs.GetString("grpc-service")
		if err != nil {
			return err
		}
		cfg.GRPC.Service = val
	}
	if fs.Changed("grpc-method") {
		val, err := fs.GetString("grpc-method")
		if err != nil {
			return err
		}
		cfg.GRPC.Method = val
	}
	if fs.Changed("grpc-tls") {
		val, err := fs.GetBool("grpc-tls")
		if err != nil {
			return err
		}
		cfg.GRPC.TLS = val
	}
	if fs.Changed("grpc-insecure") {
		val, err := fs.GetBool("grpc-insecure")
		if err != nil {
			return err
		}
		cfg.GRPC.Insecure = val
	}

	if fs.Changed("auth-type") {
		val, err := fs.GetString("auth-type")
		if err != nil {
			return err
		}
		cfg.Auth.Type = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("auth-token") {
		val, err := fs.GetString("auth-token")
		if err != nil {
			return err
		}
		cfg.Auth.Token = val
	}
	if fs.Changed("auth-token-url") {
		val, err := fs.GetString("auth-token-url")
		if err != nil {
			return err
		}
		cfg.Auth.TokenURL = strings.TrimSpace(val)
	}
	if fs.Changed("auth-client-id") {
		val, err := fs.GetString("auth-client-id")
		if err != nil {
			return err
		}
		cfg.Auth.ClientID = val
	}
	if fs.Changed("auth-client-secret") {
		val, err := fs.GetString("auth-client-secret")
		if err != nil {
			return err
		}
		cfg.Auth.ClientSecret = val
	}
	if fs.Changed("auth-scope") {
		val, err := fs.GetStringSlice("auth-scope")
		if err != nil {
			return err
		}
		cfg.Auth.Scopes = val
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds.Rules = val
	}
	if fs.Changed("threshold-min-samples") {
		val, err := fs.GetInt64("threshold-min-samples")
		if err != nil {
			return err
		}
		cfg.Thresholds.MinSamples = val
	}
	if fs.Changed("stop-on-breach") {
		val, err := fs.GetBool("stop-on-breach")
		if err != nil {
			return err
		}
		cfg.Thresholds.StopOnBreach = val
	}

	if fs.Changed("tracing") {
		val, err := fs.GetBool("tracing")
		if err != nil {
			return err
		}
		cfg.Tracing.Enabled = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}

	if fs.Changed("preflight") {
		val, err := fs.GetBool("preflight")
		if err != nil {
			return err
		}
		cfg.Preflight = val
	}
	return nil
}

// applyPatternFlags maps flat pattern flags onto the pattern block.
func applyPatternFlags(pc *PatternConfig, fs *pflag.FlagSet) error {
	if fs.Changed("pattern") {
		val, err := fs.GetString("pattern")
		if err != nil {
			return err
		}
		pc.Type = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("vus") {
		val, err := fs.GetInt("vus")
		if err != nil {
			return err
		}
		pc.Start = val
	}
	if fs.Changed("vus-end") {
		val, err := fs.GetInt("vus-end")
		if err != nil {
			return err
		}
		pc.End = val
	}
	if fs.Changed("vus-max") {
		val, err := fs.GetInt("vus-max")
		if err != nil {
			return err
		}
		pc.Max = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		pc.Duration = val
	}
	if fs.Changed("sustain") {
		val, err := fs.GetDuration("sustain")
		if err != nil {
			return err
		}
		pc.Sustain = val
	}
	if fs.Changed("spike-to") {
		val, err := fs.GetInt("spike-to")
		if err != nil {
			return err
		}
		pc.SpikeTo = val
	}
	if fs.Changed("spike-start") {
		val, err := fs.GetDuration("spike-start")
		if err != nil {
			return err
		}
		pc.SpikeStart = val
	}
	if fs.Changed("spike-len") {
		val, err := fs.GetDuration("spike-len")
		if err != nil {
			return err
		}
		pc.SpikeLen = val
	}
	if fs.Changed("step-size") {
		val, err := fs.GetInt("step-size")
		if err != nil {
			return err
		}
		pc.StepSize = val
	}
	if fs.Changed("step-every") {
		val, err := fs.GetDuration("step-every")
		if err != nil {
			return err
		}
		pc.StepEvery = val
	}
	if fs.Changed("growth-rate") {
		val, err := fs.GetFloat64("growth-rate")
		if err != nil {
			return err
		}
		pc.GrowthRate = val
	}
	if fs.Changed("growth-unit") {
		val, err := fs.GetDuration("growth-unit")
		if err != nil {
			return err
		}
		pc.GrowthUnit = val
	}
	return nil
}
