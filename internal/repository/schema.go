package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL. Amounts are stored as decimal
// strings so no precision is lost in either engine.

const schemaRuleDefinitions = `
CREATE TABLE IF NOT EXISTS rule_definitions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    version TEXT NOT NULL,
    definition TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rule_definitions_tenant ON rule_definitions(tenant_id, kind);
CREATE INDEX IF NOT EXISTS idx_rule_definitions_enabled ON rule_definitions(tenant_id, enabled);
`

const schemaCostSharingProfiles = `
CREATE TABLE IF NOT EXISTS cost_sharing_profiles (
    tenant_id TEXT NOT NULL,
    benefit_id TEXT NOT NULL,
    name TEXT,
    structure TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, benefit_id)
);
`

const schemaCalculations = `
CREATE TABLE IF NOT EXISTS calculations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    member_id TEXT,
    benefit_id TEXT,
    plan_year INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    final_amount TEXT NOT NULL,
    document TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calculations_tenant ON calculations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_calculations_member ON calculations(tenant_id, member_id, plan_year);
CREATE INDEX IF NOT EXISTS idx_calculations_status ON calculations(tenant_id, status);
`

// schemaCalculationEvents is the append-only approval history.
// Rows are only ever inserted.
const schemaCalculationEvents = `
CREATE TABLE IF NOT EXISTS calculation_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    calculation_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    action TEXT NOT NULL,
    actor TEXT,
    from_status TEXT,
    to_status TEXT NOT NULL,
    previous_amount TEXT,
    new_amount TEXT NOT NULL,
    reason TEXT,
    justification TEXT,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (calculation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_calculation_events_calc ON calculation_events(tenant_id, calculation_id);
`

const schemaEligibilityEvaluations = `
CREATE TABLE IF NOT EXISTS eligibility_evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    subject_id TEXT,
    status TEXT NOT NULL,
    overall_eligible INTEGER NOT NULL,
    document TEXT NOT NULL,
    evaluated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_eligibility_tenant ON eligibility_evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_eligibility_subject ON eligibility_evaluations(tenant_id, subject_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuleDefinitions,
		schemaCostSharingProfiles,
		schemaCalculations,
		schemaCalculationEvents,
		schemaEligibilityEvaluations,
	}
}
