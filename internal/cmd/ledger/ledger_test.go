package ledger

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	t.Setenv("MOMENTUM_LEDGER_GRPC_PORT", "9182")
	t.Setenv("MOMENTUM_REDIS_ADDR", "cache:6379")

	cfg, err := ParseConfig(fs, []string{"-http-addr", ":9082", "-actor-idle", "30s", "-mailbox-size", "8"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCPort != 9182 {
		t.Fatalf("grpc port = %d, want 9182", cfg.GRPCPort)
	}
	if cfg.RedisAddr != "cache:6379" {
		t.Fatalf("redis addr = %q, want cache:6379", cfg.RedisAddr)
	}
	if cfg.HTTPAddr != ":9082" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":9082")
	}
	if cfg.ActorIdle != 30*time.Second {
		t.Fatalf("actor idle = %v, want 30s", cfg.ActorIdle)
	}
	if cfg.MailboxSize != 8 {
		t.Fatalf("mailbox size = %d, want 8", cfg.MailboxSize)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCPort != 8182 {
		t.Fatalf("grpc port = %d, want 8182", cfg.GRPCPort)
	}
	if cfg.HTTPAddr != ":8082" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":8082")
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Fatalf("cache ttl = %v, want 15m", cfg.CacheTTL)
	}
	if cfg.ActorIdle != 2*time.Minute {
		t.Fatalf("actor idle = %v, want 2m", cfg.ActorIdle)
	}
	if cfg.MailboxSize != 32 {
		t.Fatalf("mailbox size = %d, want 32", cfg.MailboxSize)
	}
}
