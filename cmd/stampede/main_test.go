package main

import (
	"testing"
	"time"

	"github.com/stampede-load/stampede/internal/config"
	"github.com/stampede-load/stampede/internal/transport"
)

func TestRunHelpExitsClean(t *testing.T) {
	if err := run(nil); err != nil {
		t.Fatalf("run with no args should print help and return nil, got %v", err)
	}
	if err := run([]string{"--help"}); err != nil {
		t.Fatalf("run --help should return nil, got %v", err)
	}
}

func TestRunRejectsInvalidFlags(t *testing.T) {
	if err := run([]string{"--no-such-flag"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestNewRequesterProtocols(t *testing.T) {
	cfgs := []*config.Config{
		{Protocol: config.ProtocolHTTP, Timeout: time.Second},
		{Protocol: config.ProtocolWebSocket, Timeout: time.Second},
		{
			Protocol: config.ProtocolGRPC,
			Timeout:  time.Second,
			GRPC:     config.GRPCConfig{ProtoFile: "svc.proto", Service: "pkg.Svc", Method: "Call"},
		},
	}
	for _, cfg := range cfgs {
		req, err := newRequester(cfg, nil)
		if err != nil {
			t.Fatalf("newRequester(%s) error = %v", cfg.Protocol, err)
		}
		req.Close()
	}

	if _, err := newRequester(&config.Config{Protocol: "smtp"}, nil); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}

func TestNewRequesterAppliesRateLimit(t *testing.T) {
	req, err := newRequester(&config.Config{Protocol: config.ProtocolHTTP, Rate: 10}, nil)
	if err != nil {
		t.Fatalf("newRequester error = %v", err)
	}
	defer req.Close()
	if _, bare := req.(*transport.HTTPRequester); bare {
		t.Fatal("expected the rate limiter to wrap the bare requester")
	}
}

func TestPreflightURL(t *testing.T) {
	cfg := &config.Config{Target: "http://t.local/health"}
	if got := preflightURL(cfg); got != "http://t.local/health" {
		t.Fatalf("preflightURL = %q", got)
	}

	cfg = &config.Config{Scenarios: []config.ScenarioConfig{{
		Name:  "browse",
		Steps: []config.StepConfig{{Method: "GET", URL: "http://t.local/products"}},
	}}}
	if got := preflightURL(cfg); got != "http://t.local/products" {
		t.Fatalf("preflightURL = %q", got)
	}
}
