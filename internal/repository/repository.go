// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveRule inserts or replaces a rule definition with tenant isolation.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.RuleRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return r.saveRule(ctx, r.db, tenantID, rule)
}

// SaveRules stores a batch of rule definitions in one transaction. Either
// every record is saved or none is.
func (r *SQLRepository) SaveRules(ctx context.Context, tenantID string, rules []*domain.RuleRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, rule := range rules {
			if err := r.saveRule(ctx, tx, tenantID, rule); err != nil {
				return fmt.Errorf("failed to save rule %q: %w", rule.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLRepository) saveRule(ctx context.Context, db execer, tenantID string, rule *domain.RuleRecord) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_definitions (
			id, tenant_id, kind, name, priority, version, definition, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			priority = excluded.priority,
			version = excluded.version,
			definition = excluded.definition,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Kind, rule.Name, rule.Priority,
		rule.Version, string(rule.Definition), enabled,
		now, now,
	)
	return err
}

// GetRule retrieves a rule definition with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.RuleRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, kind, name, priority, version, definition, enabled, created_at, updated_at
		FROM rule_definitions
		WHERE tenant_id = ? AND id = ?
	`

	rec, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRules retrieves a tenant's rule definitions of one kind, or of every
// kind when kind is empty. Disabled rules are included.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string, kind domain.RuleKind) ([]*domain.RuleRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, kind, name, priority, version, definition, enabled, created_at, updated_at
		FROM rule_definitions
		WHERE tenant_id = ? AND (? = '' OR kind = ?)
		ORDER BY priority, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, string(kind), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.RuleRecord
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ListRuleTenants returns the tenants that have at least one enabled rule.
// It is the only cross-tenant read and is used to load rules at startup.
func (r *SQLRepository) ListRuleTenants(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT tenant_id
		FROM rule_definitions
		WHERE enabled = 1
		ORDER BY tenant_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenantID)
	}

	return tenants, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*domain.RuleRecord, error) {
	var rec domain.RuleRecord
	var definition string
	var enabled int

	if err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Kind, &rec.Name, &rec.Priority,
		&rec.Version, &definition, &enabled, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Enabled = enabled == 1
	rec.Definition = json.RawMessage(definition)
	return &rec, nil
}

// DeleteRule soft-deletes a rule definition by setting enabled = 0.
func (r *SQLRepository) DeleteRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE rule_definitions
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// SaveProfile inserts or replaces a benefit's cost-sharing profile.
func (r *SQLRepository) SaveProfile(ctx context.Context, tenantID string, profile *domain.CostSharingProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if profile.BenefitID == "" {
		return fmt.Errorf("%w: benefit id is required", ErrInvalidInput)
	}

	structure, err := json.Marshal(profile.Structure)
	if err != nil {
		return fmt.Errorf("failed to encode structure: %w", err)
	}

	updated := profile.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	query := `
		INSERT INTO cost_sharing_profiles (tenant_id, benefit_id, name, structure, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, benefit_id) DO UPDATE SET
			name = excluded.name,
			structure = excluded.structure,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, profile.BenefitID, profile.Name, string(structure), updated,
	)
	return err
}

// GetProfile retrieves a benefit's cost-sharing profile.
func (r *SQLRepository) GetProfile(ctx context.Context, tenantID string, benefitID string) (*domain.CostSharingProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, benefit_id, name, structure, updated_at
		FROM cost_sharing_profiles
		WHERE tenant_id = ? AND benefit_id = ?
	`

	var p domain.CostSharingProfile
	var name sql.NullString
	var structure string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, benefitID).Scan(
		&p.TenantID, &p.BenefitID, &name, &structure, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Name = name.String
	if err := json.Unmarshal([]byte(structure), &p.Structure); err != nil {
		return nil, fmt.Errorf("failed to parse structure for %s: %w", benefitID, err)
	}
	return &p, nil
}

// SaveCalculation stores a new calculation and its initial history in one
// transaction.
func (r *SQLRepository) SaveCalculation(ctx context.Context, tenantID string, calc *domain.Calculation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	document, err := calculationDocument(calc)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO calculations (
				id, tenant_id, member_id, benefit_id, plan_year, status, final_amount, document, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			calc.ID, tenantID, calc.MemberID, calc.BenefitID, calc.PlanYear,
			calc.Status, calc.FinalAmount, document, calc.CreatedAt, calc.UpdatedAt,
		); err != nil {
			return err
		}

		for i := range calc.History {
			if err := r.insertEvent(ctx, tx, tenantID, i, &calc.History[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCalculation retrieves a calculation with its full history.
func (r *SQLRepository) GetCalculation(ctx context.Context, tenantID string, calcID string) (*domain.Calculation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT document FROM calculations WHERE tenant_id = ? AND id = ?`

	var document string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, calcID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var calc domain.Calculation
	if err := json.Unmarshal([]byte(document), &calc); err != nil {
		return nil, fmt.Errorf("failed to parse calculation %s: %w", calcID, err)
	}

	history, err := r.events(ctx, tenantID, calcID)
	if err != nil {
		return nil, err
	}
	calc.History = history
	return &calc, nil
}

// RecordCalculationEvent appends the event and stores the updated snapshot
// atomically. The event must be the last entry of calc.History.
func (r *SQLRepository) RecordCalculationEvent(ctx context.Context, tenantID string, calc *domain.Calculation, event *domain.CalculationEvent) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(calc.History) == 0 {
		return fmt.Errorf("%w: calculation has no history", ErrInvalidInput)
	}

	document, err := calculationDocument(calc)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE calculations
			SET status = ?, final_amount = ?, document = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?
		`
		result, err := tx.ExecContext(ctx, r.rebind(query),
			calc.Status, calc.FinalAmount, document, calc.UpdatedAt,
			tenantID, calc.ID,
		)
		if err != nil {
			return err
		}
		if err := expectRow(result); err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, tenantID, len(calc.History)-1, event)
	})
}

// ListMemberCalculations retrieves a member's calculations, oldest first.
// A zero planYear matches every year.
func (r *SQLRepository) ListMemberCalculations(ctx context.Context, tenantID string, memberID string, planYear int) ([]*domain.Calculation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT document FROM calculations
		WHERE tenant_id = ? AND member_id = ? AND (? = 0 OR plan_year = ?)
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, memberID, planYear, planYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calcs []*domain.Calculation
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		var calc domain.Calculation
		if err := json.Unmarshal([]byte(document), &calc); err != nil {
			return nil, fmt.Errorf("failed to parse calculation: %w", err)
		}
		calcs = append(calcs, &calc)
	}

	return calcs, rows.Err()
}

// calculationDocument encodes the snapshot without its history, which
// lives in calculation_events.
func calculationDocument(calc *domain.Calculation) (string, error) {
	snapshot := *calc
	snapshot.History = nil
	document, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode calculation: %w", err)
	}
	return string(document), nil
}

func (r *SQLRepository) insertEvent(ctx context.Context, tx *sql.Tx, tenantID string, seq int, e *domain.CalculationEvent) error {
	query := `
		INSERT INTO calculation_events (
			id, tenant_id, calculation_id, seq, action, actor, from_status, to_status,
			previous_amount, new_amount, reason, justification, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	previous := decimal.NullDecimal{}
	if e.PreviousAmount != nil {
		previous = decimal.NewNullDecimal(*e.PreviousAmount)
	}

	_, err := tx.ExecContext(ctx, r.rebind(query),
		e.ID, tenantID, e.CalculationID, seq, e.Action, e.Actor, e.FromStatus, e.ToStatus,
		previous, e.NewAmount, e.Reason, e.Justification, e.CreatedAt,
	)
	return err
}

func (r *SQLRepository) events(ctx context.Context, tenantID, calcID string) ([]domain.CalculationEvent, error) {
	query := `
		SELECT id, calculation_id, action, actor, from_status, to_status,
			   previous_amount, new_amount, reason, justification, created_at
		FROM calculation_events
		WHERE tenant_id = ? AND calculation_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, calcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []domain.CalculationEvent{}
	for rows.Next() {
		var e domain.CalculationEvent
		var actor, from, reason, justification sql.NullString
		var previous decimal.NullDecimal

		if err := rows.Scan(
			&e.ID, &e.CalculationID, &e.Action, &actor, &from, &e.ToStatus,
			&previous, &e.NewAmount, &reason, &justification, &e.CreatedAt,
		); err != nil {
			return nil, err
		}

		e.Actor = actor.String
		e.FromStatus = domain.ApprovalStatus(from.String)
		e.Reason = reason.String
		e.Justification = justification.String
		if previous.Valid {
			amount := previous.Decimal
			e.PreviousAmount = &amount
		}
		history = append(history, e)
	}

	return history, rows.Err()
}

// SaveEligibility stores an eligibility result with tenant isolation.
func (r *SQLRepository) SaveEligibility(ctx context.Context, tenantID string, result *domain.EligibilityResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	document, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode eligibility result: %w", err)
	}

	eligible := 0
	if result.OverallEligible {
		eligible = 1
	}

	query := `
		INSERT INTO eligibility_evaluations (
			id, tenant_id, subject_id, status, overall_eligible, document, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.SubjectID, result.Status, eligible, string(document), result.EvaluatedAt,
	)
	return err
}

// GetEligibility retrieves an eligibility result by ID with tenant isolation.
func (r *SQLRepository) GetEligibility(ctx context.Context, tenantID string, resultID string) (*domain.EligibilityResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT document FROM eligibility_evaluations WHERE tenant_id = ? AND id = ?`

	var document string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, resultID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.EligibilityResult
	if err := json.Unmarshal([]byte(document), &result); err != nil {
		return nil, fmt.Errorf("failed to parse eligibility result %s: %w", resultID, err)
	}
	return &result, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
