// Package config loads and validates the run descriptor: target, load
// pattern, scenarios, thresholds, and transport options.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/stampede-load/stampede/internal/extractor"
	"github.com/stampede-load/stampede/internal/pattern"
	"github.com/stampede-load/stampede/internal/scenario"
	"github.com/stampede-load/stampede/internal/threshold"
	"github.com/stampede-load/stampede/internal/tracing"
)

type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolGRPC      Protocol = "grpc"
)

// Config is the full run descriptor.
type Config struct {
	Target   string            `mapstructure:"target" yaml:"target"`
	Protocol Protocol          `mapstructure:"protocol" yaml:"protocol"`
	Headers  map[string]string `mapstructure:"headers" yaml:"headers"`
	Timeout  time.Duration     `mapstructure:"timeout" yaml:"timeout"`

	// Rate caps aggregate requests per second across all virtual users;
	// 0 means unlimited.
	Rate int `mapstructure:"rate" yaml:"rate"`

	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	Pattern    PatternConfig    `mapstructure:"pattern" yaml:"pattern"`
	Scenarios  []ScenarioConfig `mapstructure:"scenarios" yaml:"scenarios"`
	Thresholds ThresholdConfig  `mapstructure:"thresholds" yaml:"thresholds"`
	Feeder     FeederConfig     `mapstructure:"feeder" yaml:"feeder"`
	GRPC       GRPCConfig       `mapstructure:"grpc" yaml:"grpc"`
	Tracing    tracing.Config   `mapstructure:"tracing" yaml:"tracing"`

	Preflight        bool          `mapstructure:"preflight" yaml:"preflight"`
	JSONOutput       bool          `mapstructure:"json_output" yaml:"json_output"`
	LogErrors        bool          `mapstructure:"log_errors" yaml:"log_errors"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`

	// ScenarioFile points at a standalone YAML scenario list, merged
	// over any inline scenarios.
	ScenarioFile string `mapstructure:"scenario_file" yaml:"scenario_file"`

	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// PatternConfig is the declarative form of a load pattern.
type PatternConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // constant, ramp, spike, step, exponential

	Start    int           `mapstructure:"start" yaml:"start"`
	End      int           `mapstructure:"end" yaml:"end"`
	Max      int           `mapstructure:"max" yaml:"max"`
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	Sustain  time.Duration `mapstructure:"sustain" yaml:"sustain"`

	// Spike fields.
	SpikeTo    int           `mapstructure:"spike_to" yaml:"spike_to"`
	SpikeStart time.Duration `mapstructure:"spike_start" yaml:"spike_start"`
	SpikeLen   time.Duration `mapstructure:"spike_len" yaml:"spike_len"`

	// Step fields.
	StepSize  int           `mapstructure:"step_size" yaml:"step_size"`
	StepEvery time.Duration `mapstructure:"step_every" yaml:"step_every"`

	// Exponential fields.
	GrowthRate float64       `mapstructure:"growth_rate" yaml:"growth_rate"`
	GrowthUnit time.Duration `mapstructure:"growth_unit" yaml:"growth_unit"`
}

// ScenarioConfig mirrors scenario.Scenario in declarative form.
type ScenarioConfig struct {
	Name           string        `mapstructure:"name" yaml:"name"`
	Weight         float64       `mapstructure:"weight" yaml:"weight"`
	AbortOnFailure bool          `mapstructure:"abort_on_failure" yaml:"abort_on_failure"`
	Steps          []StepConfig `mapstructure:"steps" yaml:"steps"`
}

type StepConfig struct {
	Name      string            `mapstructure:"name" yaml:"name"`
	Method    string            `mapstructure:"method" yaml:"method"`
	URL       string            `mapstructure:"url" yaml:"url"`
	Headers   map[string]string `mapstructure:"headers" yaml:"headers"`
	Body      string            `mapstructure:"body" yaml:"body"`
	ThinkTime time.Duration     `mapstructure:"think_time" yaml:"think_time"`
	Captures  []CaptureConfig   `mapstructure:"captures" yaml:"captures"`
}

// AuthConfig selects how requests are authenticated: a pre-issued
// bearer token, or the OAuth2 client credentials flow.
type AuthConfig struct {
	Type         string   `mapstructure:"type" yaml:"type"` // "bearer" or "oauth2"
	Token        string   `mapstructure:"token" yaml:"token"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url"`
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
}

type CaptureConfig struct {
	JSONPath string `mapstructure:"json_path" yaml:"json_path"`
	Regex    string `mapstructure:"regex" yaml:"regex"`
	As       string `mapstructure:"as" yaml:"as"`
}

// ThresholdConfig is the declarative failure policy.
type ThresholdConfig struct {
	Rules        []string      `mapstructure:"rules" yaml:"rules"`
	MinSamples   int64         `mapstructure:"min_samples" yaml:"min_samples"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	StopOnBreach bool          `mapstructure:"stop_on_breach" yaml:"stop_on_breach"`
}

type FeederConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	Type string `mapstructure:"type" yaml:"type"` // "csv" or "json"
}

type GRPCConfig struct {
	ProtoFile string `mapstructure:"proto_file" yaml:"proto_file"`
	Service   string `mapstructure:"service" yaml:"service"`
	Method    string `mapstructure:"method" yaml:"method"`
	TLS       bool   `mapstructure:"tls" yaml:"tls"`
	Insecure  bool   `mapstructure:"insecure" yaml:"insecure"`
}

// ValidationError accumulates every problem found in a config so the
// user can fix them in one pass.
type ValidationError struct {
	issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual problems.
func (e *ValidationError) Issues() []string {
	return e.issues
}

func (e *ValidationError) add(format string, args ...any) {
	e.issues = append(e.issues, fmt.Sprintf(format, args...))
}

// Validate checks field-level correctness, collecting every issue.
// Cross-field engine invariants are re-checked by the engine itself.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	switch c.Protocol {
	case "", ProtocolHTTP, ProtocolWebSocket, ProtocolGRPC:
	default:
		verr.add("unsupported protocol %q", c.Protocol)
	}

	if c.Protocol == ProtocolGRPC {
		if c.GRPC.ProtoFile == "" || c.GRPC.Service == "" || c.GRPC.Method == "" {
			verr.add("grpc protocol requires proto_file, service, and method")
		}
	}

	switch c.Auth.Type {
	case "", "bearer", "oauth2":
	default:
		verr.add("unsupported auth type %q", c.Auth.Type)
	}
	if c.Auth.Type == "bearer" && c.Auth.Token == "" {
		verr.add("bearer auth requires a token")
	}
	if c.Auth.Type == "oauth2" && (c.Auth.TokenURL == "" || c.Auth.ClientID == "") {
		verr.add("oauth2 auth requires token_url and client_id")
	}

	if len(c.Scenarios) == 0 && c.ScenarioFile == "" && c.Target == "" {
		verr.add("a target URL or a scenario list is required")
	}

	if c.Rate < 0 {
		verr.add("rate must be non-negative")
	}
	if c.Timeout < 0 {
		verr.add("timeout must be non-negative")
	}

	if _, err := c.BuildPattern(); err != nil {
		verr.add("pattern: %v", err)
	}
	if _, err := threshold.ParseMultiple(c.Thresholds.Rules); err != nil {
		verr.add("thresholds: %v", err)
	}
	for _, scn := range c.BuildScenarios() {
		if err := scn.Validate(); err != nil {
			verr.add("scenario %q: %v", scn.Name, err)
		}
	}

	if len(verr.issues) > 0 {
		return verr
	}
	return nil
}

// BuildPattern constructs the load pattern. An unset pattern defaults to
// constant with one virtual user for the configured duration.
func (c *Config) BuildPattern() (pattern.Pattern, error) {
	p := c.Pattern
	if p.Type == "" {
		p.Type = "constant"
	}
	switch strings.ToLower(p.Type) {
	case "constant":
		return pattern.NewConstant(p.Start, p.Duration)
	case "ramp":
		return pattern.NewRamp(p.Start, p.End, p.Duration, p.Sustain)
	case "spike":
		return pattern.NewSpike(p.Start, p.SpikeTo, p.SpikeStart, p.SpikeLen, p.Duration)
	case "step":
		return pattern.NewStep(p.Start, p.StepSize, p.StepEvery, p.Max, p.Duration)
	case "exponential":
		return pattern.NewExponential(p.Start, p.GrowthRate, p.GrowthUnit, p.Max, p.Duration)
	default:
		return nil, fmt.Errorf("unknown pattern type %q", p.Type)
	}
}

// BuildScenarios converts the declarative scenario list. When no scenario
// is configured, the bare target becomes a single-step scenario.
func (c *Config) BuildScenarios() []*scenario.Scenario {
	if len(c.Scenarios) == 0 {
		if c.Target == "" {
			return nil
		}
		return []*scenario.Scenario{{
			Name:   "default",
			Weight: 1,
			Steps:  []scenario.Step{{Method: "GET", URL: c.Target, Headers: c.Headers}},
		}}
	}

	out := make([]*scenario.Scenario, 0, len(c.Scenarios))
	for _, sc := range c.Scenarios {
		scn := &scenario.Scenario{
			Name:           sc.Name,
			Weight:         sc.Weight,
			AbortOnFailure: sc.AbortOnFailure,
		}
		for _, st := range sc.Steps {
			step := scenario.Step{
				Name:      st.Name,
				Method:    strings.ToUpper(st.Method),
				URL:       st.URL,
				Headers:   mergeHeaders(c.Headers, st.Headers),
				Body:      st.Body,
				ThinkTime: st.ThinkTime,
			}
			for _, rule := range st.Captures {
				step.Captures = append(step.Captures, extractor.Rule{
					JSONPath: rule.JSONPath,
					Regex:    rule.Regex,
					As:       rule.As,
				})
			}
			scn.Steps = append(scn.Steps, step)
		}
		out = append(out, scn)
	}
	return out
}

// BuildThresholds converts the declarative rules into the monitor config.
func (c *Config) BuildThresholds() (threshold.Config, error) {
	parsed, err := threshold.ParseMultiple(c.Thresholds.Rules)
	if err != nil {
		return threshold.Config{}, err
	}
	return threshold.Config{
		Thresholds:   parsed,
		MinSamples:   c.Thresholds.MinSamples,
		Interval:     c.Thresholds.Interval,
		StopOnBreach: c.Thresholds.StopOnBreach,
	}, nil
}

// mergeHeaders overlays step headers on the run-wide defaults.
func mergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 {
		return override
	}
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
