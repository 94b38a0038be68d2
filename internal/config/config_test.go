package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		want := domain.DefaultConfig()
		if cfg.Server.Port != want.Server.Port {
			t.Errorf("expected port %d, got %d", want.Server.Port, cfg.Server.Port)
		}
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected sqlite driver, got %s", cfg.Repository.Driver)
		}
		if cfg.Cache.ProfileTTL != 5*time.Minute {
			t.Errorf("expected profile ttl 5m, got %v", cfg.Cache.ProfileTTL)
		}
		if len(cfg.Engine.ProcessingTable) != len(want.Engine.ProcessingTable) {
			t.Errorf("expected %d processing tiers, got %d", len(want.Engine.ProcessingTable), len(cfg.Engine.ProcessingTable))
		}
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("KESTREL_SERVER_PORT", "9090")
		t.Setenv("KESTREL_ENGINE_CONDITION_MAX_DEPTH", "4")
		t.Setenv("KESTREL_CACHE_PROFILE_TTL", "90s")
		t.Setenv("KESTREL_WORKER_TENANT_IDS", "tenant-a,tenant-b")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Engine.ConditionMaxDepth != 4 {
			t.Errorf("expected max depth 4, got %d", cfg.Engine.ConditionMaxDepth)
		}
		if cfg.Cache.ProfileTTL != 90*time.Second {
			t.Errorf("expected profile ttl 90s, got %v", cfg.Cache.ProfileTTL)
		}
		if len(cfg.Worker.TenantIDs) != 2 || cfg.Worker.TenantIDs[1] != "tenant-b" {
			t.Errorf("expected two tenants, got %v", cfg.Worker.TenantIDs)
		}
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := writeConfig(t, "kestrel.yaml", `
server:
  port: 7070
engine:
  formula_precision: 4
  processing_table:
    - max_reviews: 0
      estimate: same day
    - max_reviews: -1
      estimate: next week
logging:
  format: text
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("expected port 7070, got %d", cfg.Server.Port)
		}
		if cfg.Engine.FormulaPrecision != 4 {
			t.Errorf("expected precision 4, got %d", cfg.Engine.FormulaPrecision)
		}
		if len(cfg.Engine.ProcessingTable) != 2 || cfg.Engine.ProcessingTable[1].Estimate != "next week" {
			t.Errorf("unexpected processing table %+v", cfg.Engine.ProcessingTable)
		}
		if cfg.Logging.Format != "text" {
			t.Errorf("expected text format, got %s", cfg.Logging.Format)
		}
		// Untouched sections keep their defaults.
		if cfg.Cache.Type != "memory" {
			t.Errorf("expected memory cache, got %s", cfg.Cache.Type)
		}
	})

	t.Run("ProTier", func(t *testing.T) {
		t.Setenv("KESTREL_TIER", "pro")
		t.Setenv("KESTREL_REPOSITORY_POSTGRES_PASSWORD", "from-env")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Tier != domain.TierPro {
			t.Errorf("expected pro tier, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "postgres" || cfg.EventBus.Type != "nats" {
			t.Errorf("expected pro collaborators, got %s/%s", cfg.Repository.Driver, cfg.EventBus.Type)
		}
		if cfg.Repository.PostgresPassword != "from-env" {
			t.Error("expected password from environment")
		}
	})

	t.Run("SecretInFileRejected", func(t *testing.T) {
		path := writeConfig(t, "kestrel.yaml", "repository:\n  postgres_password: hunter2\n")
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "KESTREL_REPOSITORY_POSTGRES_PASSWORD") {
			t.Errorf("expected secret rejection, got %v", err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("InvalidValues", func(t *testing.T) {
		t.Setenv("KESTREL_CACHE_TYPE", "memcached")
		if _, err := Load(""); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"Port", func(c *domain.Config) { c.Server.Port = 0 }},
		{"Driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }},
		{"Bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }},
		{"Depth", func(c *domain.Config) { c.Engine.ConditionMaxDepth = 0 }},
		{"Precision", func(c *domain.Config) { c.Engine.FormulaPrecision = -1 }},
		{"Level", func(c *domain.Config) { c.Logging.Level = "verbose" }},
		{"Format", func(c *domain.Config) { c.Logging.Format = "xml" }},
	}

	if err := Validate(domain.DefaultConfig()); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "rule_id", "adult")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected info to be filtered at warn level")
	}
	if !strings.Contains(out, `"rule_id":"adult"`) {
		t.Errorf("expected JSON attributes, got %s", out)
	}

	if _, err := NewLogger(domain.LoggingConfig{Level: "loud"}, &buf); err == nil {
		t.Error("expected error for unknown level")
	}
}
