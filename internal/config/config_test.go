package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stampede-load/stampede/internal/pattern"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "bare target",
			cfg: Config{
				Target:  "http://localhost:8080",
				Pattern: PatternConfig{Type: "constant", Start: 1, Duration: time.Second},
			},
		},
		{
			name: "unknown protocol",
			cfg: Config{
				Target:   "http://localhost:8080",
				Protocol: "carrier-pigeon",
				Pattern:  PatternConfig{Type: "constant", Start: 1, Duration: time.Second},
			},
			wantErr: true,
		},
		{
			name: "grpc missing proto",
			cfg: Config{
				Target:   "localhost:50051",
				Protocol: ProtocolGRPC,
				Pattern:  PatternConfig{Type: "constant", Start: 1, Duration: time.Second},
			},
			wantErr: true,
		},
		{
			name:    "no target no scenarios",
			cfg:     Config{Pattern: PatternConfig{Type: "constant", Start: 1, Duration: time.Second}},
			wantErr: true,
		},
		{
			name: "negative rate",
			cfg: Config{
				Target:  "http://localhost:8080",
				Rate:    -1,
				Pattern: PatternConfig{Type: "constant", Start: 1, Duration: time.Second},
			},
			wantErr: true,
		},
		{
			name: "bad threshold rule",
			cfg: Config{
				Target:     "http://localhost:8080",
				Pattern:    PatternConfig{Type: "constant", Start: 1, Duration: time.Second},
				Thresholds: ThresholdConfig{Rules: []string{"latency:p120 < 500"}},
			},
			wantErr: true,
		},
		{
			name: "bearer auth without token",
			cfg: Config{
				Target:  "http://localhost:8080",
				Auth:    AuthConfig{Type: "bearer"},
				Pattern: PatternConfig{Type: "constant", Start: 1, Duration: time.Second},
			},
			wantErr: true,
		},
		{
			name: "oauth2 auth",
			cfg: Config{
				Target:  "http://localhost:8080",
				Auth:    AuthConfig{Type: "oauth2", TokenURL: "http://idp.local/token", ClientID: "c"},
				Pattern: PatternConfig{Type: "constant", Start: 1, Duration: time.Second},
			},
		},
		{
			name: "constant zero population",
			cfg: Config{
				Target:  "http://localhost:8080",
				Pattern: PatternConfig{Type: "constant", Start: 0, Duration: time.Second},
			},
		},
		{
			name: "invalid pattern",
			cfg: Config{
				Target:  "http://localhost:8080",
				Pattern: PatternConfig{Type: "constant", Start: -1, Duration: time.Second},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildPattern(t *testing.T) {
	tests := []struct {
		name string
		pc   PatternConfig
		want pattern.Type
	}{
		{"default constant", PatternConfig{Start: 3, Duration: time.Minute}, pattern.TypeConstant},
		{"ramp", PatternConfig{Type: "ramp", Start: 1, End: 10, Duration: time.Minute}, pattern.TypeRamp},
		{"spike", PatternConfig{Type: "spike", Start: 2, SpikeTo: 20, SpikeStart: 10 * time.Second, SpikeLen: 5 * time.Second, Duration: time.Minute}, pattern.TypeSpike},
		{"step", PatternConfig{Type: "step", Start: 1, StepSize: 2, StepEvery: 10 * time.Second, Max: 9, Duration: time.Minute}, pattern.TypeStep},
		{"exponential", PatternConfig{Type: "exponential", Start: 1, GrowthRate: 1.5, GrowthUnit: time.Second, Max: 50, Duration: time.Minute}, pattern.TypeExponential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Pattern: tt.pc}
			p, err := cfg.BuildPattern()
			if err != nil {
				t.Fatalf("BuildPattern() error = %v", err)
			}
			if p.Type() != tt.want {
				t.Fatalf("pattern type = %v, want %v", p.Type(), tt.want)
			}
		})
	}

	cfg := Config{Pattern: PatternConfig{Type: "sawtooth", Start: 1, Duration: time.Minute}}
	if _, err := cfg.BuildPattern(); err == nil {
		t.Fatal("expected error for unknown pattern type")
	}
}

func TestBuildScenariosFromBareTarget(t *testing.T) {
	cfg := Config{
		Target:  "http://localhost:9000/health",
		Headers: map[string]string{"Authorization": "Bearer tok"},
	}
	scns := cfg.BuildScenarios()
	if len(scns) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(scns))
	}
	if scns[0].Name != "default" || scns[0].Weight != 1 {
		t.Fatalf("unexpected default scenario: %+v", scns[0])
	}
	step := scns[0].Steps[0]
	if step.Method != "GET" || step.URL != cfg.Target {
		t.Fatalf("unexpected step: %+v", step)
	}
	if step.Headers["Authorization"] != "Bearer tok" {
		t.Fatalf("global headers not applied: %v", step.Headers)
	}
}

func TestBuildScenariosMergesHeaders(t *testing.T) {
	cfg := Config{
		Headers: map[string]string{"Accept": "application/json", "X-Env": "load"},
		Scenarios: []ScenarioConfig{{
			Name:   "checkout",
			Weight: 2,
			Steps: []StepConfig{{
				Method:  "post",
				URL:     "http://api.local/orders",
				Headers: map[string]string{"X-Env": "override"},
				Captures: []CaptureConfig{
					{JSONPath: "$.id", As: "order_id"},
				},
			}},
		}},
	}
	scns := cfg.BuildScenarios()
	step := scns[0].Steps[0]
	if step.Method != "POST" {
		t.Fatalf("method not upper-cased: %q", step.Method)
	}
	if step.Headers["Accept"] != "application/json" {
		t.Fatalf("base header lost: %v", step.Headers)
	}
	if step.Headers["X-Env"] != "override" {
		t.Fatalf("step header should win: %v", step.Headers)
	}
	if len(step.Captures) != 1 || step.Captures[0].As != "order_id" {
		t.Fatalf("captures not converted: %+v", step.Captures)
	}
}

func TestBuildThresholds(t *testing.T) {
	cfg := Config{
		Thresholds: ThresholdConfig{
			Rules:        []string{"latency:p95 < 500", "error_rate:percent < 1"},
			MinSamples:   25,
			Interval:     2 * time.Second,
			StopOnBreach: true,
		},
	}
	tc, err := cfg.BuildThresholds()
	if err != nil {
		t.Fatalf("BuildThresholds() error = %v", err)
	}
	if len(tc.Thresholds) != 2 {
		t.Fatalf("expected 2 thresholds, got %d", len(tc.Thresholds))
	}
	if tc.MinSamples != 25 || !tc.StopOnBreach {
		t.Fatalf("monitor config not carried: %+v", tc)
	}
}

func TestLoaderReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	body := `
target: http://localhost:8080
protocol: http
timeout: 5s
rate: 100
pattern:
  type: ramp
  start: 2
  end: 20
  duration: 1m
  sustain: 30s
thresholds:
  rules:
    - "latency:p95 < 500"
  min_samples: 50
  stop_on_breach: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target != "http://localhost:8080" {
		t.Fatalf("target = %q", cfg.Target)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v", cfg.Timeout)
	}
	if cfg.Rate != 100 {
		t.Fatalf("rate = %d", cfg.Rate)
	}
	if cfg.Pattern.Type != "ramp" || cfg.Pattern.End != 20 || cfg.Pattern.Sustain != 30*time.Second {
		t.Fatalf("pattern = %+v", cfg.Pattern)
	}
	if !cfg.Thresholds.StopOnBreach || cfg.Thresholds.MinSamples != 50 {
		t.Fatalf("thresholds = %+v", cfg.Thresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoaderFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(path, []byte("target: http://file.local\nrate: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load([]string{
		"--config", path,
		"--target", "http://flag.local",
		"--rate", "50",
		"--pattern", "constant",
		"--vus", "4",
		"--duration", "30s",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target != "http://flag.local" {
		t.Fatalf("flag should override file, got %q", cfg.Target)
	}
	if cfg.Rate != 50 {
		t.Fatalf("rate = %d", cfg.Rate)
	}
	if cfg.Pattern.Start != 4 || cfg.Pattern.Duration != 30*time.Second {
		t.Fatalf("pattern = %+v", cfg.Pattern)
	}
}

func TestLoaderScenarioFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	body := `
scenarios:
  - name: browse
    weight: 3
    steps:
      - method: GET
        url: http://api.local/products
  - name: checkout
    weight: 1
    abort_on_failure: true
    steps:
      - name: create
        method: POST
        url: http://api.local/orders
        body: '{"sku":"{{sku|default-sku}}"}'
        captures:
          - json_path: $.id
            as: order_id
      - method: GET
        url: http://api.local/orders/{{order_id}}
        think_time: 100ms
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load([]string{"--scenario-file", path, "--vus", "2", "--duration", "10s"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(cfg.Scenarios))
	}
	checkout := cfg.Scenarios[1]
	if !checkout.AbortOnFailure || len(checkout.Steps) != 2 {
		t.Fatalf("checkout = %+v", checkout)
	}
	if checkout.Steps[1].ThinkTime != 100*time.Millisecond {
		t.Fatalf("think_time = %v", checkout.Steps[1].ThinkTime)
	}
	if checkout.Steps[0].Captures[0].JSONPath != "$.id" {
		t.Fatalf("captures = %+v", checkout.Steps[0].Captures)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoaderHelp(t *testing.T) {
	if _, err := NewLoader().Load(nil); err != ErrHelpRequested {
		t.Fatalf("expected ErrHelpRequested, got %v", err)
	}
	if _, err := NewLoader().Load([]string{"--help"}); err != ErrHelpRequested {
		t.Fatalf("expected ErrHelpRequested, got %v", err)
	}
}

func TestValidateAccumulatesIssues(t *testing.T) {
	cfg := Config{
		Protocol:   "carrier-pigeon",
		Rate:       -3,
		Thresholds: ThresholdConfig{Rules: []string{"bogus"}},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Issues()) < 3 {
		t.Fatalf("expected at least 3 issues, got %d: %v", len(verr.Issues()), verr.Issues())
	}
}
