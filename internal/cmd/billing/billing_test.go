package billing

import (
	"flag"
	"testing"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("billing", flag.ContinueOnError)
	t.Setenv("MOMENTUM_BILLING_GRPC_PORT", "9180")
	t.Setenv("MOMENTUM_BILLING_AUTH_SECRET", "sekrit")

	cfg, err := ParseConfig(fs, []string{"-http-addr", ":9080", "-rate-limit-burst", "10"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCPort != 9180 {
		t.Fatalf("grpc port = %d, want 9180", cfg.GRPCPort)
	}
	if cfg.AuthSecret != "sekrit" {
		t.Fatalf("auth secret = %q, want %q", cfg.AuthSecret, "sekrit")
	}
	if cfg.HTTPAddr != ":9080" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":9080")
	}
	if cfg.RateLimitBurst != 10 {
		t.Fatalf("rate limit burst = %d, want 10", cfg.RateLimitBurst)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("billing", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCPort != 8180 {
		t.Fatalf("grpc port = %d, want 8180", cfg.GRPCPort)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.RateLimitRPS != 50 {
		t.Fatalf("rate limit rps = %v, want 50", cfg.RateLimitRPS)
	}
	if cfg.MaxConns != 256 {
		t.Fatalf("max conns = %d, want 256", cfg.MaxConns)
	}
}
