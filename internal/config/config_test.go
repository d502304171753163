package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Mode:       "debug",
		Port:       8080,
		PingPeriod: 54 * time.Second,
		Secret:     "s3cret",
		Database:   DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"},
		Janus:      JanusConfig{URL: "http://janus:8088/janus", Timeout: time.Second},
		Broker:     BrokerConfig{URL: "amqp://localhost", EventsQueue: "janus-events", Timeout: time.Second},
		Health:     HealthConfig{Interval: time.Second},
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg.Secret = ""
	cfg.Database.Driver = "mysql"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"secret", "mysql"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("MEET_SECRET", "from-env")
	t.Setenv("MEET_BROKER_EVENTS_QUEUE", "events")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Secret != "from-env" || cfg.Broker.EventsQueue != "events" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Janus.Timeout != 10*time.Second || cfg.Port != 8080 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}
