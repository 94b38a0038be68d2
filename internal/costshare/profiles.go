package costshare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Profiles stores cost-sharing profiles with a read-through cache in front
// of the repository.
type Profiles struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewProfiles creates a profile store. cache may be nil.
func NewProfiles(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Profiles {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Profiles{repo: repo, cache: cache, ttl: ttl}
}

// Get returns the profile for a benefit, consulting the cache first.
func (p *Profiles) Get(ctx context.Context, tenantID, benefitID string) (*domain.CostSharingProfile, error) {
	if tenantID == "" || benefitID == "" {
		return nil, fmt.Errorf("tenantID and benefitID are required")
	}

	if p.cache != nil {
		profile, err := p.cache.GetProfile(ctx, tenantID, benefitID)
		if err != nil {
			slog.Warn("profile cache read failed",
				"tenant_id", tenantID,
				"benefit_id", benefitID,
				"error", err,
			)
		} else if profile != nil {
			return profile, nil
		}
	}

	profile, err := p.repo.GetProfile(ctx, tenantID, benefitID)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.SetProfile(ctx, tenantID, profile, p.ttl); err != nil {
			slog.Warn("profile cache write failed",
				"tenant_id", tenantID,
				"benefit_id", benefitID,
				"error", err,
			)
		}
	}
	return profile, nil
}

// Put validates and stores a profile, replacing any cached copy.
func (p *Profiles) Put(ctx context.Context, tenantID string, profile *domain.CostSharingProfile) error {
	if profile == nil || profile.BenefitID == "" {
		return &domain.ValidationError{Field: "benefitId", Message: "is required"}
	}
	if err := ValidateStructure(profile.Structure); err != nil {
		return err
	}

	profile.TenantID = tenantID
	profile.UpdatedAt = time.Now().UTC()
	if err := p.repo.SaveProfile(ctx, tenantID, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.SetProfile(ctx, tenantID, profile, p.ttl); err != nil {
			slog.Warn("profile cache write failed",
				"tenant_id", tenantID,
				"benefit_id", profile.BenefitID,
				"error", err,
			)
		}
	}
	return nil
}
