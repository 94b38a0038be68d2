package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier determines which collaborators are wired by default
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Engine tunes the decision core
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`
	Worker     WorkerConfig     `json:"worker" mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string   `json:"host" mapstructure:"host"`
	Port         int      `json:"port" mapstructure:"port"`
	ReadTimeout  int      `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int      `json:"writeTimeout" mapstructure:"write_timeout"` // seconds
	CORSOrigins  []string `json:"corsOrigins" mapstructure:"cors_origins"`
}

// EngineConfig holds limits and policy tables for the decision core.
type EngineConfig struct {
	// ConditionMaxDepth bounds condition tree recursion.
	ConditionMaxDepth int `json:"conditionMaxDepth" mapstructure:"condition_max_depth"`

	// FormulaPrecision is the number of decimal places formula results are rounded to.
	FormulaPrecision int32 `json:"formulaPrecision" mapstructure:"formula_precision"`

	// FormulaMaxNesting bounds parser recursion.
	FormulaMaxNesting int `json:"formulaMaxNesting" mapstructure:"formula_max_nesting"`

	// ComplexityWarning is the advisory formula complexity threshold.
	ComplexityWarning int `json:"complexityWarning" mapstructure:"complexity_warning"`

	// ProcessingTable maps manual-review counts to estimated processing times.
	ProcessingTable []ProcessingTier `json:"processingTable" mapstructure:"processing_table"`
}

// ProcessingTier applies when the manual-review count is at most MaxReviews.
// A negative MaxReviews matches any count.
type ProcessingTier struct {
	MaxReviews int    `json:"maxReviews" mapstructure:"max_reviews"`
	Estimate   string `json:"estimate" mapstructure:"estimate"`
}

// DefaultProcessingTable is the stock estimate heuristic.
func DefaultProcessingTable() []ProcessingTier {
	return []ProcessingTier{
		{MaxReviews: 0, Estimate: "immediate"},
		{MaxReviews: 2, Estimate: "1-2 business days"},
		{MaxReviews: -1, Estimate: "3-5 business days"},
	}
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
	TenantIDs []string `json:"tenantIds" mapstructure:"tenant_ids"` // empty = global subscription

	// Concurrency bounds in-flight evaluations across all tenants
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings. When enabled, W3C trace
// context is propagated over HTTP headers and bus message metadata; the
// host process decides where spans are exported.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, in-process cache and channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			CORSOrigins:  []string{"*"},
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			ConditionMaxDepth: 10,
			FormulaPrecision:  2,
			FormulaMaxNesting: 64,
			ComplexityWarning: 20,
			ProcessingTable:   DefaultProcessingTable(),
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ProfileTTL:   5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ProfileTTL:     15 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
