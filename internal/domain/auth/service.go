package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/profile"
	"github.com/liwaywai/lending-api/internal/domain/user"
	"github.com/liwaywai/lending-api/internal/pkg/database"
	"github.com/liwaywai/lending-api/internal/pkg/jwt"
	"github.com/liwaywai/lending-api/internal/pkg/logger"
	"github.com/liwaywai/lending-api/internal/pkg/password"
)

// ProfileStore is the slice of the profile repository signup and /me need
type ProfileStore interface {
	Create(ctx context.Context, tx *sqlx.Tx, p *profile.Profile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
}

// LevelInitializer seeds the level record and digital id of a new borrower
type LevelInitializer interface {
	Initialize(ctx context.Context, store level.TxStore, userID uuid.UUID) (*level.Record, *level.DigitalIDCard, error)
	GetCard(ctx context.Context, userID uuid.UUID) (*level.CardView, error)
}

// LevelStores binds the level repository to a transaction
type LevelStores interface {
	Tx(tx *sqlx.Tx) level.TxStore
}

// WalletCreator opens the empty wallet of a new borrower
type WalletCreator interface {
	Create(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error
}

// Service handles authentication business logic
type Service struct {
	db         *sqlx.DB
	userRepo   user.Repository
	profiles   ProfileStore
	levels     LevelInitializer
	levelRepo  LevelStores
	wallets    WalletCreator
	jwtService *jwt.Service
	now        func() time.Time
}

// NewService creates auth service
func NewService(db *sqlx.DB, userRepo user.Repository, profiles ProfileStore, levels LevelInitializer, levelRepo LevelStores, wallets WalletCreator, jwtService *jwt.Service) *Service {
	return &Service{
		db:         db,
		userRepo:   userRepo,
		profiles:   profiles,
		levels:     levels,
		levelRepo:  levelRepo,
		wallets:    wallets,
		jwtService: jwtService,
		now:        time.Now,
	}
}

// Signup creates a borrower together with profile, level record, digital id
// and wallet. Either all of them exist afterwards or none does.
func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &user.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         user.RoleBorrower,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p := &profile.Profile{
		UserID:     u.ID,
		Name:       strings.TrimSpace(req.Name),
		City:       strings.TrimSpace(req.City),
		Occupation: strings.TrimSpace(req.Occupation),
		Gender:     req.Gender,
		KYCLevel:   profile.KYCBasic,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var card *level.DigitalIDCard
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.userRepo.Create(ctx, tx, u); err != nil {
			return err
		}
		if err := s.profiles.Create(ctx, tx, p); err != nil {
			return err
		}
		var err error
		if _, card, err = s.levels.Initialize(ctx, s.levelRepo.Tx(tx), u.ID); err != nil {
			return err
		}
		return s.wallets.Create(ctx, tx, u.ID)
	})
	if err != nil {
		return nil, err
	}

	logger.LogInfo(ctx, "borrower signed up", "user_id", u.ID.String(), "liwaywai_id", card.LiwaywaiID)

	return s.issue(u)
}

// Login authenticates user
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	u, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, err
	}
	if u == nil || !password.Verify(req.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}

	return s.issue(u)
}

// Me returns the caller's account with profile and digital id
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	out := &MeResponse{User: u}
	if !u.IsBorrower() {
		return out, nil
	}

	out.Profile, err = s.profiles.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
		return nil, err
	}
	out.Card, err = s.levels.GetCard(ctx, userID)
	if err != nil && !errors.Is(err, level.ErrCardNotFound) {
		return nil, err
	}
	return out, nil
}

// CreateAdmin provisions an admin account. Admins have no profile, level or wallet.
func (s *Service) CreateAdmin(ctx context.Context, email, plain string) (*user.User, error) {
	hash, err := password.Hash(plain)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &user.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.userRepo.Create(ctx, tx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) issue(u *user.User) (*AuthResponse, error) {
	token, err := s.jwtService.GenerateAccessToken(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.jwtService.AccessTTL().Seconds()),
		User:        u,
	}, nil
}
