package admin

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/domain/profile"
	"github.com/liwaywai/lending-api/internal/domain/share"
	"github.com/liwaywai/lending-api/internal/domain/user"
	"github.com/liwaywai/lending-api/internal/domain/wallet"
	"github.com/liwaywai/lending-api/internal/pkg/logger"
)

const recentItems = 5

// Loans is what the admin surface needs from the loan service
type Loans interface {
	ListApplications(ctx context.Context, f loan.ApplicationFilter) ([]*loan.Application, int, error)
	Override(ctx context.Context, adminID, loanID uuid.UUID, decision loan.Decision, note string) (*loan.OverrideResult, error)
	CountByStatus(ctx context.Context) (map[loan.Status]int, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*loan.Loan, error)
}

// Users looks up accounts
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	CountByRole(ctx context.Context, role user.Role) (int, error)
}

// Profiles reads borrower profiles and their breakdowns
type Profiles interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	Demographics(ctx context.Context) (*profile.Demographics, error)
}

// Levels reads level records and cards
type Levels interface {
	GetRecord(ctx context.Context, userID uuid.UUID) (*level.Record, error)
	GetCard(ctx context.Context, userID uuid.UUID) (*level.CardView, error)
	Distribution(ctx context.Context) ([]level.LevelCount, error)
}

// Shares lists share tokens
type Shares interface {
	List(ctx context.Context, userID uuid.UUID) ([]*share.TokenSummary, error)
	Audit(ctx context.Context, f share.AuditFilter) ([]*share.AuditEntry, int, error)
}

// Wallets reads wallet balances
type Wallets interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error)
}

// Policies publishes and lists policy versions
type Policies interface {
	Active(ctx context.Context) (*policy.Table, error)
	List(ctx context.Context, limit int) ([]*policy.Version, error)
	Publish(ctx context.Context, version string, params policy.Params, createdBy *uuid.UUID, activate bool) (*policy.Version, error)
}

// Service handles admin business logic
type Service struct {
	repo     Repository
	loans    Loans
	users    Users
	profiles Profiles
	levels   Levels
	shares   Shares
	wallets  Wallets
	policies Policies
	now      func() time.Time
}

// Deps groups the services the admin surface reads from
type Deps struct {
	Loans    Loans
	Users    Users
	Profiles Profiles
	Levels   Levels
	Shares   Shares
	Wallets  Wallets
	Policies Policies
}

// NewService creates admin service
func NewService(repo Repository, d Deps) *Service {
	return &Service{
		repo:     repo,
		loans:    d.Loans,
		users:    d.Users,
		profiles: d.Profiles,
		levels:   d.Levels,
		shares:   d.Shares,
		wallets:  d.Wallets,
		policies: d.Policies,
		now:      time.Now,
	}
}

// --- Applications ---

func (s *Service) ListApplications(ctx context.Context, f loan.ApplicationFilter) ([]*loan.Application, int, error) {
	return s.loans.ListApplications(ctx, f)
}

// Override flips a loan decision and records who did it
func (s *Service) Override(ctx context.Context, actor Actor, loanID uuid.UUID, req *OverrideRequest) (*loan.OverrideResult, error) {
	res, err := s.loans.Override(ctx, actor.AdminID, loanID, loan.Decision(req.Decision), req.Note)
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, actor, ActionLoanOverride, "loan", loanID.String(), req.Note,
		map[string]interface{}{"status": res.PreviousStatus},
		map[string]interface{}{"status": res.Loan.Status, "decision": req.Decision},
	)
	return res, nil
}

// --- Borrowers ---

// Borrower assembles the 360 view. Missing satellite records are left empty.
func (s *Service) Borrower(ctx context.Context, userID uuid.UUID) (*Borrower, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsBorrower() {
		return nil, ErrBorrowerNotFound
	}

	b := &Borrower{User: u}
	if b.Profile, err = s.profiles.GetByUserID(ctx, userID); err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
		return nil, err
	}
	if b.Level, err = s.levels.GetRecord(ctx, userID); err != nil && !errors.Is(err, level.ErrRecordNotFound) {
		return nil, err
	}
	if b.Card, err = s.levels.GetCard(ctx, userID); err != nil && !errors.Is(err, level.ErrCardNotFound) {
		return nil, err
	}
	if b.Loans, err = s.loans.ListForUser(ctx, userID); err != nil {
		return nil, err
	}
	if b.Shares, err = s.shares.List(ctx, userID); err != nil {
		return nil, err
	}
	if b.Wallet, err = s.wallets.GetWallet(ctx, userID); err != nil {
		return nil, err
	}
	return b, nil
}

// --- Policy ---

func (s *Service) ListPolicies(ctx context.Context) ([]*policy.Version, error) {
	return s.policies.List(ctx, 10)
}

// PublishPolicy stores a new version and activates it
func (s *Service) PublishPolicy(ctx context.Context, actor Actor, req *PublishPolicyRequest) (*policy.Version, error) {
	var previous string
	if t, err := s.policies.Active(ctx); err == nil {
		previous = t.Version()
	}

	adminID := actor.AdminID
	v, err := s.policies.Publish(ctx, req.Version, req.Params, &adminID, true)
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, actor, ActionPolicyPublish, "policy_version", v.Version, "",
		map[string]interface{}{"active_version": previous},
		map[string]interface{}{"active_version": v.Version, "params": v.Params},
	)
	return v, nil
}

// --- Dashboard ---

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{}

	var err error
	if d.Borrowers, err = s.users.CountByRole(ctx, user.RoleBorrower); err != nil {
		return nil, err
	}
	if d.LoansByStatus, err = s.loans.CountByStatus(ctx); err != nil {
		return nil, err
	}
	for _, n := range d.LoansByStatus {
		d.Loans += n
	}
	d.ActiveLoans = d.LoansByStatus[loan.StatusActive]
	d.PendingApplications = d.LoansByStatus[loan.StatusApplied]
	d.ApprovalRate = approvalRate(d.LoansByStatus)

	if d.RecentLoans, _, err = s.loans.ListApplications(ctx, loan.ApplicationFilter{Page: 1, Limit: recentItems}); err != nil {
		return nil, err
	}
	if d.RecentShares, _, err = s.shares.Audit(ctx, share.AuditFilter{Page: 1, Limit: recentItems}); err != nil {
		return nil, err
	}
	if d.LevelDistribution, err = s.levels.Distribution(ctx); err != nil {
		return nil, err
	}
	if d.Demographics, err = s.profiles.Demographics(ctx); err != nil {
		return nil, err
	}
	if t, err := s.policies.Active(ctx); err == nil {
		d.PolicyVersion = t.Version()
	}
	return d, nil
}

// approvalRate is the share of decided loans that were approved at some point,
// as a fraction rounded to four places.
func approvalRate(byStatus map[loan.Status]int) decimal.Decimal {
	approved := byStatus[loan.StatusApproved] + byStatus[loan.StatusActive] +
		byStatus[loan.StatusCompleted] + byStatus[loan.StatusDefaulted]
	decided := approved + byStatus[loan.StatusDeclined] + byStatus[loan.StatusCounterOffered]
	if decided == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(approved)).DivRound(decimal.NewFromInt(int64(decided)), 4)
}

// --- Audit Logs ---

func (s *Service) ListAuditLogs(ctx context.Context, f AuditLogFilter) ([]*AuditLog, int, error) {
	f.normalize()
	logs, total, err := s.repo.ListAuditLogs(ctx, f)
	if logs == nil {
		logs = []*AuditLog{}
	}
	return logs, total, err
}

// logAction appends an audit entry. A failure is logged and does not undo the action.
func (s *Service) logAction(ctx context.Context, actor Actor, action, entityType, entityID, reason string, oldValue, newValue interface{}) {
	oldJSON, _ := json.Marshal(oldValue)
	newJSON, _ := json.Marshal(newValue)

	entry := &AuditLog{
		ID:         uuid.New(),
		AdminID:    actor.AdminID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OldValue:   oldJSON,
		NewValue:   newJSON,
		Reason:     reason,
		IPAddress:  actor.IPAddress,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		logger.LogError(ctx, err, "failed to create audit log", "action", action, "entity_id", entityID)
	}
}
