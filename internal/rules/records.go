package rules

import (
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Records converts a definition document into repository records, one per rule.
func Records(tenantID string, defs *Definitions) ([]*domain.RuleRecord, error) {
	records := make([]*domain.RuleRecord, 0, defs.Len())
	for i := range defs.Eligibility {
		rule := defs.Eligibility[i]
		rule.TenantID = tenantID
		raw, err := json.Marshal(rule)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
		}
		records = append(records, &domain.RuleRecord{
			ID:         rule.ID,
			TenantID:   tenantID,
			Kind:       domain.RuleKindEligibility,
			Name:       rule.Name,
			Priority:   rule.Priority,
			Version:    rule.Version,
			Definition: raw,
			Enabled:    rule.IsActive,
		})
	}
	for i := range defs.Preapproval {
		rule := defs.Preapproval[i]
		rule.TenantID = tenantID
		raw, err := json.Marshal(rule)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
		}
		records = append(records, &domain.RuleRecord{
			ID:         rule.ID,
			TenantID:   tenantID,
			Kind:       domain.RuleKindPreapproval,
			Name:       rule.Name,
			Priority:   rule.Priority,
			Version:    rule.Version,
			Definition: raw,
			Enabled:    rule.IsActive,
		})
	}
	return records, nil
}

// FromRecords rebuilds a definition document from stored records.
// A record whose definition no longer decodes is reported by rule id.
func FromRecords(records []*domain.RuleRecord) (*Definitions, error) {
	defs := &Definitions{}
	var errs domain.ValidationErrors
	for _, rec := range records {
		switch rec.Kind {
		case domain.RuleKindEligibility:
			var rule domain.EligibilityRule
			if err := decodeStrict(rec.Definition, &rule); err != nil {
				errs = append(errs, &domain.ValidationError{RuleID: rec.ID, Message: fmt.Sprintf("malformed definition: %v", err)})
				continue
			}
			rule.IsActive = rule.IsActive && rec.Enabled
			defs.Eligibility = append(defs.Eligibility, rule)
		case domain.RuleKindPreapproval:
			var rule domain.PreapprovalRule
			if err := decodeStrict(rec.Definition, &rule); err != nil {
				errs = append(errs, &domain.ValidationError{RuleID: rec.ID, Message: fmt.Sprintf("malformed definition: %v", err)})
				continue
			}
			rule.IsActive = rule.IsActive && rec.Enabled
			defs.Preapproval = append(defs.Preapproval, rule)
		default:
			errs = append(errs, &domain.ValidationError{RuleID: rec.ID, Field: "kind", Message: fmt.Sprintf("unknown rule kind %q", rec.Kind)})
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

// Merge overlays submitted definitions on stored ones. A submitted rule
// replaces the stored rule of the same kind and id; the rest are kept.
func Merge(stored, submitted *Definitions) *Definitions {
	merged := &Definitions{}

	replaced := make(map[string]bool, len(submitted.Eligibility))
	for _, r := range submitted.Eligibility {
		replaced[r.ID] = true
	}
	for _, r := range stored.Eligibility {
		if !replaced[r.ID] {
			merged.Eligibility = append(merged.Eligibility, r)
		}
	}
	merged.Eligibility = append(merged.Eligibility, submitted.Eligibility...)

	replaced = make(map[string]bool, len(submitted.Preapproval))
	for _, r := range submitted.Preapproval {
		replaced[r.ID] = true
	}
	for _, r := range stored.Preapproval {
		if !replaced[r.ID] {
			merged.Preapproval = append(merged.Preapproval, r)
		}
	}
	merged.Preapproval = append(merged.Preapproval, submitted.Preapproval...)
	return merged
}
