// Package config loads Kestrel configuration from defaults, an optional
// config file and KESTREL_ environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix is the prefix of every configuration environment variable,
// e.g. KESTREL_SERVER_PORT or KESTREL_REPOSITORY_DRIVER.
const EnvPrefix = "KESTREL"

// secretKeys may only be set through the environment.
var secretKeys = []string{
	"repository.postgres_password",
	"cache.redis_password",
	"event_bus.nats_token",
}

// Load builds the configuration. Precedence is environment, then the
// config file (when path is not empty), then the tier defaults.
// The tier itself is read first so that tier=pro starts from ProConfig.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		for _, key := range secretKeys {
			if v.InConfig(key) {
				return nil, fmt.Errorf("%s is not allowed in config files (use %s)", key, envName(key))
			}
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every leaf of base so that environment variables
// bind to it during Unmarshal.
func setDefaults(v *viper.Viper, base *domain.Config) {
	v.SetDefault("tier", string(base.Tier))

	v.SetDefault("server.host", base.Server.Host)
	v.SetDefault("server.port", base.Server.Port)
	v.SetDefault("server.read_timeout", base.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", base.Server.WriteTimeout)
	v.SetDefault("server.cors_origins", base.Server.CORSOrigins)

	v.SetDefault("engine.condition_max_depth", base.Engine.ConditionMaxDepth)
	v.SetDefault("engine.formula_precision", base.Engine.FormulaPrecision)
	v.SetDefault("engine.formula_max_nesting", base.Engine.FormulaMaxNesting)
	v.SetDefault("engine.complexity_warning", base.Engine.ComplexityWarning)
	v.SetDefault("engine.processing_table", base.Engine.ProcessingTable)

	v.SetDefault("repository.driver", base.Repository.Driver)
	v.SetDefault("repository.sqlite_path", base.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", base.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", base.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", base.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", base.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", base.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", base.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", base.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", base.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", base.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", base.Cache.Type)
	v.SetDefault("cache.local_max_size", base.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", base.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", base.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", base.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", base.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", base.Cache.EnableTwoPhase)
	v.SetDefault("cache.profile_ttl", base.Cache.ProfileTTL)

	v.SetDefault("event_bus.type", base.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", base.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_url", base.EventBus.NATSUrl)
	v.SetDefault("event_bus.nats_token", base.EventBus.NATSToken)
	v.SetDefault("event_bus.nats_max_reconnects", base.EventBus.NATSMaxReconnects)
	v.SetDefault("event_bus.nats_reconnect_wait", base.EventBus.NATSReconnectWait)

	v.SetDefault("worker.enabled", base.Worker.Enabled)
	v.SetDefault("worker.tenant_ids", append([]string{}, base.Worker.TenantIDs...))
	v.SetDefault("worker.concurrency", base.Worker.Concurrency)

	v.SetDefault("logging.level", base.Logging.Level)
	v.SetDefault("logging.format", base.Logging.Format)

	v.SetDefault("tracing.enabled", base.Tracing.Enabled)
	v.SetDefault("tracing.service_name", base.Tracing.ServiceName)
}

// Validate checks ranges and enumerations.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %s", cfg.EventBus.Type)
	}
	if cfg.Engine.ConditionMaxDepth <= 0 {
		return fmt.Errorf("engine.condition_max_depth must be positive, got %d", cfg.Engine.ConditionMaxDepth)
	}
	if cfg.Engine.FormulaPrecision < 0 {
		return fmt.Errorf("engine.formula_precision must not be negative, got %d", cfg.Engine.FormulaPrecision)
	}
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		return err
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported logging format: %s", cfg.Logging.Format)
	}
	return nil
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unsupported logging level: %s", s)
	}
	return level, nil
}
