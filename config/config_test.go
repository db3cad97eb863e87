package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG", "")
	cfg, err := load("", filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8000/api/v1" {
		t.Fatalf("unexpected default base URL %s", cfg.API.BaseURL)
	}
	if cfg.FeedURL() != "http://localhost:8000/api/v1/ws" {
		t.Fatalf("unexpected derived feed URL %s", cfg.FeedURL())
	}
	b := cfg.Backoff()
	if b.Base != 2*time.Second || b.Multiplier != 1.5 || b.MaxAttempts != 5 {
		t.Fatalf("unexpected default backoff %+v", b)
	}
	if cfg.Chart.DefaultWindow != 3*time.Hour || cfg.Chart.StaleAfter != 15*time.Minute {
		t.Fatalf("unexpected chart defaults %+v", cfg.Chart)
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "glucoscope.yaml", `
api:
  baseURL: https://cgm.example.com/api/v1
  token: from-yaml
  timeout: 3s
feed:
  pingInterval: 10s
  maxReconnectAttempts: 2
logging:
  level: debug
`)
	envFile := writeFile(t, dir, ".env", "GLUCOSCOPE_API_TOKEN=from-dotenv\nGLUCOSCOPE_METRICS_ADDR=:9200\n")
	t.Setenv(EnvPrefix+"METRICS_ADDR", ":9300")

	cfg, err := load(path, envFile)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "https://cgm.example.com/api/v1" || cfg.API.Timeout != 3*time.Second {
		t.Fatalf("yaml not applied: %+v", cfg.API)
	}
	if cfg.API.Token != "from-dotenv" {
		t.Fatalf("expected .env to override yaml, got token %q", cfg.API.Token)
	}
	if cfg.Metrics.Addr != ":9300" {
		t.Fatalf("expected the environment to override .env, got %s", cfg.Metrics.Addr)
	}
	if cfg.Feed.PingInterval != 10*time.Second || cfg.Feed.MaxReconnectAttempts != 2 {
		t.Fatalf("feed settings not applied: %+v", cfg.Feed)
	}
	if cfg.Feed.ReconnectMultiplier != 1.5 {
		t.Fatalf("unset fields must keep their defaults, got multiplier %v", cfg.Feed.ReconnectMultiplier)
	}
	if cfg.FeedURL() != "https://cgm.example.com/api/v1/ws" {
		t.Fatalf("unexpected feed URL %s", cfg.FeedURL())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name   string
		yaml   string
		env    map[string]string
		errHas string
	}{
		{name: "missing file", errHas: "not found"},
		{name: "bad yaml", yaml: "api: [", errHas: "parse config"},
		{name: "bad scheme", yaml: "api:\n  baseURL: ftp://example.com\n", errHas: "api.baseURL"},
		{name: "bad duration", yaml: "{}", env: map[string]string{"API_TIMEOUT": "soon"}, errHas: "GLUCOSCOPE_API_TIMEOUT"},
		{name: "bad multiplier", yaml: "feed:\n  reconnectMultiplier: 0.5\n", errHas: "reconnectMultiplier"},
		{name: "bad level", yaml: "logging:\n  level: loud\n", errHas: "logging.level"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(EnvPrefix+k, v)
			}
			path := filepath.Join(dir, "missing.yaml")
			if tc.yaml != "" {
				path = writeFile(t, dir, strings.ReplaceAll(tc.name, " ", "-")+".yaml", tc.yaml)
			}
			_, err := load(path, filepath.Join(dir, ".env"))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.errHas) {
				t.Fatalf("expected error mentioning %q, got %v", tc.errHas, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown", "value", 42)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"value":42`) {
		t.Errorf("expected a JSON record, got %s", out)
	}
}
