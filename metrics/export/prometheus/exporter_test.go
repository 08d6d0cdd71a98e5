package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	sentinel "github.com/sentinelauth/sentinel"
)

func TestCollectorExportsEngineCounters(t *testing.T) {
	cfg := sentinel.DefaultConfig()
	cfg.JWT.SecretKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	engine, err := sentinel.New().
		WithConfig(cfg).
		WithCredentialStore(sentinel.NewMemoryCredentialStore()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Register(context.Background(), "a@example.com", "the right password"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(NewCollector(engine, "")); err != nil {
		t.Fatalf("Register collector: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var sawRegister, sawDropped bool
	for _, family := range families {
		switch family.GetName() {
		case "sentinel_events_total":
			for _, metric := range family.GetMetric() {
				for _, label := range metric.GetLabel() {
					if label.GetName() == "event" && label.GetValue() == "register_total" {
						sawRegister = true
						if metric.GetCounter().GetValue() != 1 {
							t.Fatalf("register counter = %f, want 1", metric.GetCounter().GetValue())
						}
					}
				}
			}
		case "sentinel_audit_dropped_total":
			sawDropped = true
		}
	}

	if !sawRegister {
		t.Fatal("register counter not exported")
	}
	if !sawDropped {
		t.Fatal("audit drop counter not exported")
	}
}
