// Package domain defines the core types and collaborator interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Rule definitions
	SaveRule(ctx context.Context, tenantID string, rule *RuleRecord) error
	SaveRules(ctx context.Context, tenantID string, rules []*RuleRecord) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*RuleRecord, error)
	ListRules(ctx context.Context, tenantID string, kind RuleKind) ([]*RuleRecord, error)
	DeleteRule(ctx context.Context, tenantID string, ruleID string) error
	ListRuleTenants(ctx context.Context) ([]string, error)

	// Cost-sharing profiles
	SaveProfile(ctx context.Context, tenantID string, profile *CostSharingProfile) error
	GetProfile(ctx context.Context, tenantID string, benefitID string) (*CostSharingProfile, error)

	// Calculations. Events are insert-only; RecordCalculationEvent appends
	// the event and stores the updated snapshot atomically.
	SaveCalculation(ctx context.Context, tenantID string, calc *Calculation) error
	GetCalculation(ctx context.Context, tenantID string, calcID string) (*Calculation, error)
	RecordCalculationEvent(ctx context.Context, tenantID string, calc *Calculation, event *CalculationEvent) error
	ListMemberCalculations(ctx context.Context, tenantID string, memberID string, planYear int) ([]*Calculation, error)

	// Eligibility results
	SaveEligibility(ctx context.Context, tenantID string, result *EligibilityResult) error
	GetEligibility(ctx context.Context, tenantID string, resultID string) (*EligibilityResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgres_port"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgres_user"`
	PostgresPassword string `json:"-" mapstructure:"postgres_password"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
}
