package license

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Verdict reasons returned by Validate
const (
	ReasonNotFound    = "not found"
	ReasonDeactivated = "deactivated"
	ReasonExpired     = "expired"
	ReasonUsageLimit  = "usage limit reached"
)

// Verdict is the outcome of validating a license key. License is a
// detached snapshot, set only when Valid.
type Verdict struct {
	Valid   bool     `json:"valid"`
	Reason  string   `json:"reason,omitempty"`
	License *License `json:"license,omitempty"`
}

// Store is the persistence surface the license service needs. Get
// returns (nil, nil) when the key is unknown. IncrementUsage must be
// an atomic in-place increment, never read-modify-write.
type Store interface {
	CreateLicense(ctx context.Context, lic *License) error
	CreateLicenses(ctx context.Context, lics []*License) error
	GetLicense(ctx context.Context, key string) (*License, error)
	ListLicenses(ctx context.Context) ([]*License, error)
	UpdateLicense(ctx context.Context, lic *License) error
	DeleteLicense(ctx context.Context, key string) (bool, error)
	IncrementUsage(ctx context.Context, key string) error
}

// Cache holds short-lived license snapshots in front of the store.
// Implementations degrade to misses when the backend is unavailable.
type Cache interface {
	GetLicense(ctx context.Context, key string) (*License, bool)
	SetLicense(ctx context.Context, lic *License)
	InvalidateLicense(ctx context.Context, key string)
}

// Service validates license keys and meters usage.
type Service struct {
	store Store
	cache Cache // may be nil
	log   zerolog.Logger
}

// NewService creates a license service. cache may be nil.
func NewService(store Store, cache Cache, log zerolog.Logger) *Service {
	return &Service{store: store, cache: cache, log: log}
}

// Validate checks a key against the store rules. Read-only: it never
// mutates the license. Storage errors are returned as errors, not as
// invalid verdicts.
func (s *Service) Validate(ctx context.Context, key string) (*Verdict, error) {
	lic, err := s.lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("license lookup failed: %w", err)
	}
	if lic == nil {
		return &Verdict{Valid: false, Reason: ReasonNotFound}, nil
	}

	now := NowMillis()
	switch {
	case !lic.IsActive:
		return &Verdict{Valid: false, Reason: ReasonDeactivated}, nil
	case lic.ExpiresAt != nil && *lic.ExpiresAt <= now:
		return &Verdict{Valid: false, Reason: ReasonExpired}, nil
	case lic.UsageCount >= lic.MaxUsage:
		return &Verdict{Valid: false, Reason: ReasonUsageLimit}, nil
	}

	return &Verdict{Valid: true, License: lic.Snapshot()}, nil
}

// MeterUsage atomically increments the usage counter for a key. It is
// called exactly once per successfully completed chat turn, strictly
// after the upstream response was produced. Failures are logged by the
// caller and never block the response.
func (s *Service) MeterUsage(ctx context.Context, key string) error {
	if err := s.store.IncrementUsage(ctx, key); err != nil {
		return fmt.Errorf("usage increment failed: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateLicense(ctx, key)
	}
	s.log.Debug().Str("license_key", key).Msg("usage metered")
	return nil
}

// Invalidate drops any cached snapshot for a key. Admin mutations call
// this so stale snapshots never outlive an edit.
func (s *Service) Invalidate(ctx context.Context, key string) {
	if s.cache != nil {
		s.cache.InvalidateLicense(ctx, key)
	}
}

// CreateLicense stores a new license
func (s *Service) CreateLicense(ctx context.Context, lic *License) error {
	if err := s.store.CreateLicense(ctx, lic); err != nil {
		return fmt.Errorf("license create failed: %w", err)
	}
	s.log.Info().Str("license_key", lic.Key).Str("type", string(lic.Type)).Msg("license created")
	return nil
}

// CreateLicenses stores a batch of licenses all-or-nothing
func (s *Service) CreateLicenses(ctx context.Context, lics []*License) error {
	if err := s.store.CreateLicenses(ctx, lics); err != nil {
		return fmt.Errorf("bulk license create failed: %w", err)
	}
	s.log.Info().Int("count", len(lics)).Msg("licenses created")
	return nil
}

// GetLicense returns a license by key, (nil, nil) when unknown
func (s *Service) GetLicense(ctx context.Context, key string) (*License, error) {
	return s.lookup(ctx, key)
}

// ListLicenses returns every license, newest first
func (s *Service) ListLicenses(ctx context.Context) ([]*License, error) {
	return s.store.ListLicenses(ctx)
}

// UpdateLicense persists an edited license and drops its cached
// snapshot so the change takes effect immediately.
func (s *Service) UpdateLicense(ctx context.Context, lic *License) error {
	if err := s.store.UpdateLicense(ctx, lic); err != nil {
		return fmt.Errorf("license update failed: %w", err)
	}
	s.Invalidate(ctx, lic.Key)
	return nil
}

// DeleteLicense removes a license, reporting whether it existed.
func (s *Service) DeleteLicense(ctx context.Context, key string) (bool, error) {
	found, err := s.store.DeleteLicense(ctx, key)
	if err != nil {
		return false, fmt.Errorf("license delete failed: %w", err)
	}
	s.Invalidate(ctx, key)
	return found, nil
}

func (s *Service) lookup(ctx context.Context, key string) (*License, error) {
	if s.cache != nil {
		if lic, ok := s.cache.GetLicense(ctx, key); ok {
			return lic, nil
		}
	}

	lic, err := s.store.GetLicense(ctx, key)
	if err != nil {
		return nil, err
	}
	if lic != nil && s.cache != nil {
		s.cache.SetLicense(ctx, lic)
	}
	return lic, nil
}
