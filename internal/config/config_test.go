package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORAGE", "")
	t.Setenv("TABLE_PREFIX", "")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != "memory" {
		t.Errorf("storage = %q, want memory in test", cfg.Storage)
	}
	if cfg.TablePrefix != "test_" {
		t.Errorf("table prefix = %q, want test_", cfg.TablePrefix)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Errorf("kafka brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.Engine.Hub.Shards != DefaultEngineConfig().Hub.Shards {
		t.Errorf("hub shards = %d, want the default", cfg.Engine.Hub.Shards)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:             "8080",
			Environment:      "dev",
			Storage:          "memory",
			RevisionProvider: "lorem",
			LogMaxFiles:      10,
			Engine:           DefaultEngineConfig(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"non-numeric port", func(c *Config) { c.Port = "http" }, "must be numeric"},
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, "Environment"},
		{"postgres needs a url", func(c *Config) { c.Storage = "postgres" }, "DatabaseURL"},
		{"anthropic needs a key", func(c *Config) { c.RevisionProvider = "anthropic" }, "AnthropicAPIKey"},
		{"prod needs auth", func(c *Config) { c.Environment = "prod" }, "SUPABASE_URL"},
		{"prod with secret", func(c *Config) { c.Environment = "prod"; c.JWTSecret = "s" }, ""},
		{"zero shards", func(c *Config) { c.Engine.Hub.Shards = 0 }, "hub.shards"},
		{"sub-second keepalive", func(c *Config) { c.Engine.Hub.KeepAlive = time.Millisecond }, "hub.keepalive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEngineConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	yaml := "hub:\n  shards: 4\n  keepalive: 30s\nrevision:\n  timeout: 5m\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("LoadEngineConfig: %v", err)
	}
	if cfg.Hub.Shards != 4 || cfg.Hub.KeepAlive != 30*time.Second || cfg.Revision.Timeout != 5*time.Minute {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.Hub.BufferSize != DefaultEngineConfig().Hub.BufferSize {
		t.Errorf("buffer size = %d, want the default kept", cfg.Hub.BufferSize)
	}

	missing, err := LoadEngineConfig(filepath.Join(dir, "absent.yaml"))
	if err != nil || missing != DefaultEngineConfig() {
		t.Errorf("missing file = %+v, %v; want defaults", missing, err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("hub: ["), 0o644)
	if _, err := LoadEngineConfig(bad); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestSetupLogFile_Prunes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"folio-2024-01-01T00-00-00.log", "folio-2024-01-02T00-00-00.log", "folio-2024-01-03T00-00-00.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f, err := SetupLogFile(dir, 2)
	if err != nil {
		t.Fatalf("SetupLogFile: %v", err)
	}
	f.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("kept %d log files, want 2", len(entries))
	}
}
