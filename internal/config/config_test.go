package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.HTTP.Port)
	}
	if cfg.Sandbox.Lifetime != 20*time.Minute {
		t.Fatalf("expected 20m sandbox lifetime, got %s", cfg.Sandbox.Lifetime)
	}
	if cfg.Sandbox.SweepInterval != 5*time.Minute {
		t.Fatalf("expected 5m sweep interval, got %s", cfg.Sandbox.SweepInterval)
	}
	if cfg.Dedup.MessageWindow != 3*time.Second {
		t.Fatalf("expected 3s message window, got %s", cfg.Dedup.MessageWindow)
	}
	if cfg.Dedup.CommandWindow != time.Second {
		t.Fatalf("expected 1s command window, got %s", cfg.Dedup.CommandWindow)
	}
	if cfg.Build.Entrypoint != "qubic-cli" {
		t.Fatalf("expected qubic-cli entrypoint, got %s", cfg.Build.Entrypoint)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		check func(Config) bool
	}{
		{name: "port", key: "HTTP_PORT", value: "8080", check: func(c Config) bool { return c.HTTP.Port == 8080 }},
		{name: "lifetime", key: "SANDBOX_LIFETIME", value: "5m", check: func(c Config) bool { return c.Sandbox.Lifetime == 5*time.Minute }},
		{name: "parallelism", key: "BUILD_PARALLELISM", value: "8", check: func(c Config) bool { return c.Build.Parallelism == 8 }},
		{name: "invalid duration falls back", key: "SANDBOX_LIFETIME", value: "bogus", check: func(c Config) bool { return c.Sandbox.Lifetime == 20*time.Minute }},
		{name: "invalid int falls back", key: "BUILD_PARALLELISM", value: "many", check: func(c Config) bool { return c.Build.Parallelism == 4 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			cfg, err := FromEnv()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.check(cfg) {
				t.Fatalf("override %s=%s not applied", tc.key, tc.value)
			}
		})
	}
}

func TestFromEnvRejectsInvalidPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "70000")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}
