package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const yamlDocument = `
eligibility:
  - id: age-band
    name: Applicant age band
    category: demographics
    priority: 1
    severity: critical
    type: inclusion
    isActive: true
    effectiveDate: 2024-01-01
    condition:
      kind: comparison
      field: applicant.age
      operator: between
      value: [18, 65]
  - id: smoker
    name: Non-smoker
    priority: 2
    severity: low
    type: exclusion
    isActive: true
    field: applicant.smoker
    operator: "=="
    value: true
preapproval:
  - id: imaging
    name: Advanced imaging
    priority: 1
    isActive: true
    field: service.category
    operator: equals
    value: imaging
    thresholdAmount: 1000
    autoApproveBelowThreshold: true
`

func TestDecodeYAML(t *testing.T) {
	defs, err := DecodeDefinitions([]byte(yamlDocument), FormatYAML)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if len(defs.Eligibility) != 2 {
		t.Fatalf("expected 2 eligibility rules, got %d", len(defs.Eligibility))
	}
	if len(defs.Preapproval) != 1 {
		t.Fatalf("expected 1 pre-approval rule, got %d", len(defs.Preapproval))
	}

	age := defs.Eligibility[0]
	if age.Severity != domain.SeverityCritical {
		t.Errorf("expected critical severity, got %s", age.Severity)
	}
	if age.Condition == nil || age.Condition.Operator != domain.OpBetween {
		t.Fatalf("expected between condition, got %+v", age.Condition)
	}
	if age.EffectiveDate == nil || age.EffectiveDate.Format("2006-01-02") != "2024-01-01" {
		t.Errorf("expected effective date 2024-01-01, got %v", age.EffectiveDate)
	}

	smoker := defs.Eligibility[1]
	if smoker.Operator != domain.OpEquals {
		t.Errorf("expected alias == to decode as equals, got %s", smoker.Operator)
	}
	if smoker.Type != domain.RuleExclusion {
		t.Errorf("expected exclusion, got %s", smoker.Type)
	}

	imaging := defs.Preapproval[0]
	if imaging.ThresholdAmount == nil || imaging.ThresholdAmount.String() != "1000" {
		t.Errorf("expected threshold 1000, got %v", imaging.ThresholdAmount)
	}
}

func TestDecodeJSON(t *testing.T) {
	doc := `{"eligibility":[{"id":"r1","name":"Rule","severity":"HIGH","type":"inclusion","isActive":true,
		"condition":{"kind":"comparison","field":"age","operator":">=","value":18}}]}`

	defs, err := DecodeDefinitions([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if defs.Eligibility[0].Severity != domain.SeverityHigh {
		t.Errorf("expected severity to be case-insensitive, got %s", defs.Eligibility[0].Severity)
	}
	if defs.Eligibility[0].Condition.Operator != domain.OpGreaterOrEqual {
		t.Errorf("expected greater_or_equal, got %s", defs.Eligibility[0].Condition.Operator)
	}
}

func TestDecodeActiveByDefault(t *testing.T) {
	doc := `{
  "eligibility": [
    {"id": "adult", "name": "Adult", "priority": 1, "severity": "critical", "type": "inclusion",
     "field": "age", "operator": ">=", "value": 18},
    {"id": "retired", "name": "Retired", "priority": 2, "severity": "critical", "type": "inclusion",
     "field": "age", "operator": ">=", "value": 65, "isActive": false}
  ],
  "preapproval": [
    {"id": "imaging", "name": "Imaging", "priority": 1, "alwaysRequired": true}
  ]
}`

	defs, err := DecodeDefinitions([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !defs.Eligibility[0].IsActive {
		t.Error("expected rule without isActive to be active")
	}
	if defs.Eligibility[1].IsActive {
		t.Error("expected explicit isActive false to be kept")
	}
	if !defs.Preapproval[0].IsActive {
		t.Error("expected pre-approval rule without isActive to be active")
	}

	engine := newTestEngine(t)
	set, err := engine.Load("tenant-a", defs)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if set.Skipped != 1 {
		t.Errorf("expected 1 skipped rule, got %d", set.Skipped)
	}

	result := engine.EvaluateEligibility(context.Background(), "tenant-a", map[string]any{"age": 10}, nil)
	if result.OverallEligible || result.Status != domain.StatusIneligible {
		t.Errorf("expected ineligible, got %s", result.Status)
	}

	records, err := Records("tenant-a", defs)
	if err != nil {
		t.Fatalf("failed to build records: %v", err)
	}
	if !records[0].Enabled || records[1].Enabled {
		t.Errorf("expected enabled flags true/false, got %v/%v", records[0].Enabled, records[1].Enabled)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		format Format
	}{
		{"bad json", `{"eligibility": [`, FormatJSON},
		{"unknown severity", `{"eligibility":[{"id":"r1","severity":"urgent"}]}`, FormatJSON},
		{"unknown operator", `{"eligibility":[{"id":"r1","field":"a","operator":"like","value":1}]}`, FormatJSON},
		{"unknown node kind", `{"eligibility":[{"id":"r1","condition":{"kind":"xor"}}]}`, FormatJSON},
		{"unknown key", `{"eligibility":[{"id":"r1","weight":3}]}`, FormatJSON},
		{"bad date", `{"eligibility":[{"id":"r1","effectiveDate":"soon"}]}`, FormatJSON},
		{"bad yaml", "eligibility:\n  - id: [", FormatYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDefinitions([]byte(tt.doc), tt.format)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"rules.yaml": FormatYAML,
		"RULES.YML":  FormatYAML,
		"rules.json": FormatJSON,
		"rules":      FormatJSON,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("expected %s for %s, got %s", want, path, got)
		}
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	defs, err := DecodeDefinitions([]byte(yamlDocument), FormatYAML)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	records, err := Records("tenant-a", defs)
	if err != nil {
		t.Fatalf("failed to build records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[2].Kind != domain.RuleKindPreapproval {
		t.Errorf("expected last record to be preapproval, got %s", records[2].Kind)
	}

	// A disabled record deactivates its rule.
	records[1].Enabled = false

	back, err := FromRecords(records)
	if err != nil {
		t.Fatalf("failed to rebuild definitions: %v", err)
	}
	if back.Len() != 3 {
		t.Fatalf("expected 3 rules, got %d", back.Len())
	}
	if back.Eligibility[0].TenantID != "tenant-a" {
		t.Errorf("expected tenant stamp, got %q", back.Eligibility[0].TenantID)
	}
	if back.Eligibility[1].IsActive {
		t.Error("expected disabled record to load inactive")
	}
}

func TestFromRecordsMalformed(t *testing.T) {
	records := []*domain.RuleRecord{
		{ID: "broken", Kind: domain.RuleKindEligibility, Definition: []byte(`{"id":`)},
		{ID: "odd", Kind: "scoring", Definition: []byte(`{}`)},
	}

	_, err := FromRecords(records)
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(verrs))
	}
	if verrs[0].RuleID != "broken" || verrs[1].RuleID != "odd" {
		t.Errorf("expected errors to name rule ids, got %s and %s", verrs[0].RuleID, verrs[1].RuleID)
	}
}
