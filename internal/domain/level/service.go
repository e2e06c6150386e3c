package level

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/liwaywai/lending-api/internal/domain/policy"
)

// PolicySource resolves the active policy table
type PolicySource interface {
	Active(ctx context.Context) (*policy.Table, error)
}

// Service owns every write to levels and digital_id_cards
type Service struct {
	repo     Repository
	policies PolicySource
	now      func() time.Time
}

// NewService creates level service
func NewService(repo Repository, policies PolicySource) *Service {
	return &Service{repo: repo, policies: policies, now: time.Now}
}

// Initialize writes the starting record and card for a new borrower inside the
// signup transaction.
func (s *Service) Initialize(ctx context.Context, store TxStore, userID uuid.UUID) (*Record, *DigitalIDCard, error) {
	t, err := s.policies.Active(ctx)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	id, err := NewLiwaywaiID(now)
	if err != nil {
		return nil, nil, err
	}

	rec := NewRecord(t, Record{UserID: userID, UpdatedAt: now})
	card := Project(t, rec, DigitalIDCard{LiwaywaiID: id, CreatedAt: now, UpdatedAt: now})

	if err := store.Insert(ctx, &rec, &card); err != nil {
		return nil, nil, err
	}
	return &rec, &card, nil
}

// ApplyPaymentOutcome locks the borrower's record, applies outcome and refreshes the
// card, all through store. The caller commits; until then concurrent callers for
// the same borrower wait on the row lock.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, store TxStore, userID uuid.UUID, outcome Outcome) (*Progress, error) {
	if !outcome.Valid() {
		return nil, ErrInvalidOutcome
	}
	t, err := s.policies.Active(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := store.LockRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, progress, err := Apply(t, *rec, outcome)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()
	if err := store.SaveRecord(ctx, &next); err != nil {
		return nil, err
	}

	card, err := store.GetCard(ctx, userID)
	if err != nil {
		return nil, err
	}
	refreshed := Project(t, next, *card)
	refreshed.UpdatedAt = next.UpdatedAt
	if err := store.SaveCard(ctx, &refreshed); err != nil {
		return nil, err
	}

	ev := log.Info().
		Str("user_id", userID.String()).
		Str("outcome", string(outcome)).
		Int("level", next.Level).
		Int("streak", next.Streak)
	if progress.LevelChanged {
		ev.Msg("borrower levelled up")
	} else {
		ev.Msg("payment outcome recorded")
	}
	return &progress, nil
}

// GetRecord returns the stored record
func (s *Service) GetRecord(ctx context.Context, userID uuid.UUID) (*Record, error) {
	return s.repo.GetRecord(ctx, userID)
}

// GetInfo returns the level summary under the active policy
func (s *Service) GetInfo(ctx context.Context, userID uuid.UUID) (*Info, error) {
	rec, err := s.repo.GetRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	t, err := s.policies.Active(ctx)
	if err != nil {
		return nil, err
	}
	info := Describe(t, *rec)
	return &info, nil
}

// GetCard returns the digital id card with identity fields
func (s *Service) GetCard(ctx context.Context, userID uuid.UUID) (*CardView, error) {
	return s.repo.GetCardView(ctx, userID)
}

// Distribution counts borrowers per level
func (s *Service) Distribution(ctx context.Context) ([]LevelCount, error) {
	return s.repo.Distribution(ctx)
}
