package escrow

import (
	"testing"
	"time"

	"github.com/polkiloo/jobber/internal/config"
	"github.com/polkiloo/jobber/internal/metrics"
)

func TestNewClientUsesConfig(t *testing.T) {
	cfg := &config.Config{EscrowBaseURL: "http://example.com/api/v1/crypto", EscrowToken: "t", EscrowTimeout: time.Second}
	client, err := newClient(clientParams{Config: cfg, Logger: testLogger(), Metrics: metrics.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client == nil {
		t.Fatal("expected client instance")
	}

	cfg.EscrowBaseURL = ""
	if _, err := newClient(clientParams{Config: cfg, Logger: testLogger(), Metrics: metrics.New()}); err == nil {
		t.Fatal("expected error without escrow url")
	}
}
