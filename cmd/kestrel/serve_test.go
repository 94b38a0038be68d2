package main

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

const storedRules = `{
  "eligibility": [
    {"id": "adult", "name": "Adult applicant", "priority": 1, "severity": "critical",
     "type": "inclusion", "isActive": true, "field": "applicant.age", "operator": ">=", "value": 18}
  ]
}`

func TestLoadStoredRules(t *testing.T) {
	ctx := context.Background()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	defs, err := rules.DecodeDefinitions([]byte(storedRules), rules.FormatJSON)
	if err != nil {
		t.Fatalf("failed to decode rules: %v", err)
	}
	records, err := rules.Records("tenant-a", defs)
	if err != nil {
		t.Fatalf("failed to build records: %v", err)
	}
	for _, rec := range records {
		if err := repo.SaveRule(ctx, "tenant-a", rec); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}
	}

	engine, err := rules.NewEngine(domain.DefaultConfig().Engine)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	loadStoredRules(ctx, repo, engine, []string{"tenant-b"})

	tenants := engine.Tenants()
	if !slices.Contains(tenants, "tenant-a") || !slices.Contains(tenants, "tenant-b") {
		t.Fatalf("expected tenant-a and tenant-b loaded, got %v", tenants)
	}
	if n := engine.Snapshot("tenant-a").Len(); n != 1 {
		t.Errorf("expected 1 rule for tenant-a, got %d", n)
	}
	if n := engine.Snapshot("tenant-b").Len(); n != 0 {
		t.Errorf("expected empty set for tenant-b, got %d", n)
	}
}
