package policy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service resolves the active policy and publishes new versions
type Service struct {
	repo  Repository
	cache activeCache
	now   func() time.Time
}

// NewService creates policy service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// Active returns the table for the currently active version.
func (s *Service) Active(ctx context.Context) (*Table, error) {
	if v, ok := s.cache.get(ctx); ok {
		if t, err := NewTable(v.Version, v.Params); err == nil {
			return t, nil
		}
	}

	gen, cacheable := s.cache.generation(ctx)
	v, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	t, err := NewTable(v.Version, v.Params)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.cache.setIfGeneration(ctx, gen, v)
	}
	return t, nil
}

// Publish stores a new immutable version. With activate set, the new version replaces
// the active one atomically.
func (s *Service) Publish(ctx context.Context, version string, params Params, createdBy *uuid.UUID, activate bool) (*Version, error) {
	if _, err := NewTable(version, params); err != nil {
		return nil, err
	}

	v := &Version{
		ID:        uuid.New(),
		Version:   version,
		Params:    params,
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Publish(ctx, v, activate); err != nil {
		return nil, err
	}
	if activate {
		s.cache.invalidate(ctx)
	}

	log.Info().Str("policy_version", version).Bool("activated", activate).Msg("policy version published")
	return v, nil
}

// Activate makes an existing version the active one
func (s *Service) Activate(ctx context.Context, version string) error {
	if err := s.repo.Activate(ctx, version); err != nil {
		return err
	}
	s.cache.invalidate(ctx)
	log.Info().Str("policy_version", version).Msg("policy version activated")
	return nil
}

// List returns the most recent versions, newest first
func (s *Service) List(ctx context.Context, limit int) ([]*Version, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.repo.List(ctx, limit)
}

// EnsureDefault installs the launch policy when no version is active.
func (s *Service) EnsureDefault(ctx context.Context) error {
	_, err := s.repo.GetActive(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNoActivePolicy) {
		return err
	}

	_, err = s.Publish(ctx, DefaultVersion, DefaultParams(), nil, true)
	if errors.Is(err, ErrVersionExists) {
		return s.Activate(ctx, DefaultVersion)
	}
	return err
}

// Fixed serves one table regardless of what is stored. Used by tools and tests
// that run without a database.
type Fixed struct {
	Table *Table
}

func (f Fixed) Active(context.Context) (*Table, error) {
	if f.Table == nil {
		return nil, ErrNoActivePolicy
	}
	return f.Table, nil
}
