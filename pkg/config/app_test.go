package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppConfig_Defaults(t *testing.T) {
	cfg, err := LoadAppConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Engine.StarlarkMaxSteps != DefaultStarlarkMaxSteps {
		t.Errorf("Engine.StarlarkMaxSteps = %d", cfg.Engine.StarlarkMaxSteps)
	}
	if cfg.Telemetry.ServiceName != "aviation" {
		t.Errorf("Telemetry.ServiceName = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadAppConfig_FileAndEnv(t *testing.T) {
	path := writeFile(t, "aviation.yaml", `
server:
  addr: 0.0.0.0:9090
  read_timeout: 5s
store:
  path: /var/lib/aviation/scenarios.db
engine:
  strict: true
  sweep_concurrency: 4
  policies: [policies/limits.rego]
telemetry:
  logging:
    level: debug
    format: json
`)

	t.Setenv("AVIATION__SERVER__ADDR", "127.0.0.1:7070")
	t.Setenv("AVIATION__ENGINE__STARLARK_MAX_STEPS", "5000")
	t.Setenv("AVIATION__TELEMETRY__METRICS__NAMESPACE", "fleet")

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"server addr from env", cfg.Server.Addr, "127.0.0.1:7070"},
		{"read timeout from file", cfg.Server.ReadTimeout, 5 * time.Second},
		{"write timeout default", cfg.Server.WriteTimeout, 30 * time.Second},
		{"store path", cfg.Store.Path, "/var/lib/aviation/scenarios.db"},
		{"strict", cfg.Engine.Strict, true},
		{"sweep concurrency", cfg.Engine.SweepConcurrency, 4},
		{"starlark steps from env", cfg.Engine.StarlarkMaxSteps, uint64(5000)},
		{"log level", cfg.Telemetry.Logging.Level, "debug"},
		{"log format", cfg.Telemetry.Logging.Format, "json"},
		{"metrics namespace from env", cfg.Telemetry.Metrics.Namespace, "fleet"},
		{"service name default", cfg.Telemetry.ServiceName, "aviation"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(cfg.Engine.Policies) != 1 || cfg.Engine.Policies[0] != "policies/limits.rego" {
		t.Errorf("Engine.Policies = %v", cfg.Engine.Policies)
	}
}

func TestLoadAppConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad addr", "server:\n  addr: nowhere\n"},
		{"negative concurrency", "engine:\n  sweep_concurrency: -1\n"},
		{"bad log level", "telemetry:\n  logging:\n    level: loud\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadAppConfig(writeFile(t, "bad.yaml", tt.content)); err == nil {
				t.Error("LoadAppConfig() expected error")
			}
		})
	}
}
