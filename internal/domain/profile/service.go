package profile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service handles profile business logic
type Service struct {
	repo Repository
}

// NewService creates profile service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Update applies the non-empty fields of req
func (s *Service) Update(ctx context.Context, userID uuid.UUID, req *UpdateRequest) (*Profile, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(req.Name); v != "" {
		p.Name = v
	}
	if v := strings.TrimSpace(req.City); v != "" {
		p.City = v
	}
	if v := strings.TrimSpace(req.Occupation); v != "" {
		p.Occupation = v
	}
	if req.Gender != "" {
		p.Gender = req.Gender
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Demographics(ctx context.Context) (*Demographics, error) {
	return s.repo.Demographics(ctx)
}
