package loan

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/pkg/errorhandler"
	"github.com/liwaywai/lending-api/internal/pkg/logger"
	"github.com/liwaywai/lending-api/internal/pkg/money"
	"github.com/liwaywai/lending-api/internal/pkg/scoring"
)

// EventLoanDecided is published to the borrower's live feed
const EventLoanDecided = "loan.decided"

// PolicySource resolves the active policy table
type PolicySource interface {
	Active(ctx context.Context) (*policy.Table, error)
}

// Levels is the slice of the level service the engine needs
type Levels interface {
	GetRecord(ctx context.Context, userID uuid.UUID) (*level.Record, error)
	ApplyPaymentOutcome(ctx context.Context, store level.TxStore, userID uuid.UUID, outcome level.Outcome) (*level.Progress, error)
}

// Scorer is the external risk-scoring collaborator
type Scorer interface {
	Score(ctx context.Context, req scoring.Request) (*scoring.Response, error)
}

// Notifier pushes best-effort events to a borrower
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

// Service runs applications through the decision engine and owns loan state
type Service struct {
	repo     Repository
	levels   Levels
	policies PolicySource
	scorer   Scorer
	notifier Notifier
	now      func() time.Time
}

// NewService creates loan service. notifier may be nil.
func NewService(repo Repository, levels Levels, policies PolicySource, scorer Scorer, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		levels:   levels,
		policies: policies,
		scorer:   scorer,
		notifier: notifier,
		now:      time.Now,
	}
}

// Apply checks the guards, stores the application and decides it. Guard
// failures return before anything is written or scored. A scorer failure of any
// kind is absorbed by the fallback rule.
func (s *Service) Apply(ctx context.Context, userID uuid.UUID, req *ApplyRequest) (*DecisionView, error) {
	t, err := s.policies.Active(ctx)
	if err != nil {
		return nil, err
	}
	if req.TermWeeks > t.MaxLoanTermWeeks() {
		return nil, ErrTermTooLong
	}

	rec, err := s.levels.GetRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	if t.OneActiveLoan() {
		open, err := s.repo.FindOpen(ctx, userID)
		if err == nil {
			return nil, &ActiveLoanError{LoanID: open.ID}
		}
		if !errors.Is(err, ErrLoanNotFound) {
			return nil, err
		}
	}

	amount := money.Round(req.Amount)
	limit := t.CapFor(rec.Level)
	if amount.GreaterThan(limit) {
		return nil, &CapExceededError{Cap: limit, Requested: amount}
	}

	now := s.now().UTC()
	l := &Loan{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		TermWeeks:    req.TermWeeks,
		Purpose:      req.Purpose,
		Status:       StatusApplied,
		LevelAtApply: rec.Level,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateApplication(ctx, l, t.OneActiveLoan()); err != nil {
		return nil, err
	}

	input := s.scoringInput(ctx, l, rec)
	result := s.decide(ctx, t, l, rec, input)

	inputs, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	decidedAt := s.now().UTC()
	l.Status = result.Status()
	l.DecidedAt = &decidedAt
	l.UpdatedAt = decidedAt
	if l.Status == StatusApproved {
		l.ApprovedAt = &decidedAt
	}
	if l.Status == StatusCounterOffered {
		l.CounterOffer = result.CounterOffer
	}

	ledger := &DecisionRecord{
		ID:            uuid.New(),
		LoanID:        l.ID,
		UserID:        userID,
		Inputs:        inputs,
		ModelVersion:  result.ModelVersion,
		PolicyVersion: t.Version(),
		Decision:      result.Decision,
		Reasons:       result.Reasons,
		IsFallback:    result.IsFallback,
		DecidedAt:     decidedAt,
	}
	score := &RiskScore{
		ID:                 uuid.New(),
		LoanID:             l.ID,
		PD:                 result.PD,
		Reasons:            result.Reasons,
		CounterfactualHint: result.CounterfactualHint,
		ModelVersion:       result.ModelVersion,
		CreatedAt:          decidedAt,
	}
	if err := s.repo.RecordDecision(ctx, l, ledger, score); err != nil {
		return nil, err
	}

	view := newDecisionView(l, result, decidedAt)
	log.Info().
		Str("user_id", userID.String()).
		Str("loan_id", l.ID.String()).
		Str("decision", string(result.Decision)).
		Str("model_version", result.ModelVersion).
		Str("policy_version", t.Version()).
		Msg("loan application decided")
	s.notify(ctx, userID, view)
	return view, nil
}

func (s *Service) scoringInput(ctx context.Context, l *Loan, rec *level.Record) scoring.Request {
	profile, err := s.repo.ScoringProfile(ctx, l.UserID)
	if err != nil {
		logger.LogWarn(ctx, "scoring profile unavailable", "user_id", l.UserID.String(), "error", err.Error())
	}
	return scoring.Request{
		LoanID:     l.ID.String(),
		UserID:     l.UserID.String(),
		Amount:     l.Amount.InexactFloat64(),
		TermWeeks:  l.TermWeeks,
		Purpose:    l.Purpose,
		Level:      rec.Level,
		Streak:     rec.Streak,
		TotalLoans: rec.TotalLoans,
		OnTimePaid: rec.OnTimePaid,
		LatePaid:   rec.LatePaid,
		Profile:    profile,
	}
}

// decide makes the single external call allowed per application
func (s *Service) decide(ctx context.Context, t *policy.Table, l *Loan, rec *level.Record, input scoring.Request) DecisionResult {
	if s.scorer != nil {
		resp, err := s.scorer.Score(ctx, input)
		if err == nil {
			return FromExternalScore(resp)
		}
		var httpErr *scoring.HTTPError
		if errors.As(err, &httpErr) {
			errorhandler.LogExternalServiceError(ctx, "scoring", httpErr.Endpoint, httpErr.StatusCode, err, httpErr.Body)
		}
		logger.LogWarn(ctx, "scoring failed, using fallback policy",
			"loan_id", l.ID.String(),
			"timeout", scoring.IsTimeout(err),
			"error", err.Error())
	}
	return FromFallbackPolicy(t, *rec, l.Amount)
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, v *DecisionView) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, EventLoanDecided, v)
}

// Get returns a borrower's loan with its decision, score and schedule
func (s *Service) Get(ctx context.Context, userID, loanID uuid.UUID) (*Detail, error) {
	l, err := s.repo.GetForUser(ctx, loanID, userID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, l)
}

func (s *Service) detail(ctx context.Context, l *Loan) (*Detail, error) {
	d := &Detail{Loan: l, Repayments: []*Repayment{}}

	dec, err := s.repo.LatestDecision(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	d.Decision = dec

	score, err := s.repo.GetRiskScore(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if score != nil {
		d.RiskScore = &RiskScoreView{RiskScore: score, PDBand: PDBand(score.PD)}
	}

	reps, err := s.repo.ListRepayments(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if reps != nil {
		d.Repayments = reps
	}
	return d, nil
}

// List returns the borrower's loans, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]*Loan, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	loans, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if loans == nil {
		loans = []*Loan{}
	}
	return loans, nil
}

// PendingRepayments lists unpaid instalments of the borrower's active loans
func (s *Service) PendingRepayments(ctx context.Context, userID uuid.UUID) ([]*Repayment, error) {
	return s.repo.PendingRepayments(ctx, userID)
}

// LatestAssessment returns the borrower's most recent risk view, or nil
func (s *Service) LatestAssessment(ctx context.Context, userID uuid.UUID) (*Assessment, error) {
	return s.repo.LatestAssessment(ctx, userID)
}

// ListApplications returns a page of applications for admins
func (s *Service) ListApplications(ctx context.Context, f ApplicationFilter) ([]*Application, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	apps, total, err := s.repo.ListApplications(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	for _, a := range apps {
		if a.PD != nil {
			a.PDBand = PDBand(*a.PD)
		}
	}
	if apps == nil {
		apps = []*Application{}
	}
	return apps, total, nil
}

// Override flips a decision on behalf of an admin
func (s *Service) Override(ctx context.Context, adminID, loanID uuid.UUID, decision Decision, note string) (*OverrideResult, error) {
	if decision != DecisionApprove && decision != DecisionDecline {
		return nil, ErrOverrideNotAllowed
	}
	t, err := s.policies.Active(ctx)
	if err != nil {
		return nil, err
	}

	l, before, err := s.repo.Override(ctx, OverrideInput{
		LoanID:        loanID,
		AdminID:       adminID,
		Decision:      decision,
		Note:          note,
		PolicyVersion: t.Version(),
		At:            s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("admin_id", adminID.String()).
		Str("loan_id", loanID.String()).
		Str("from", string(before)).
		Str("to", string(l.Status)).
		Msg("loan decision overridden")

	if s.notifier != nil {
		s.notifier.Notify(ctx, l.UserID, EventLoanDecided, map[string]interface{}{
			"loan_id":    l.ID,
			"status":     l.Status,
			"decision":   decision,
			"overridden": true,
		})
	}
	return &OverrideResult{Loan: l, PreviousStatus: before}, nil
}

// CountByStatus feeds the admin dashboard
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}

// ListForUser returns a borrower's loans for the admin 360 view
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error) {
	return s.List(ctx, userID, 100)
}

// Disburse activates an approved loan and lays out its schedule inside the
// caller's transaction. The wallet credit is the caller's half of the unit.
func (s *Service) Disburse(ctx context.Context, store TxStore, userID, loanID uuid.UUID) (*Loan, []*Repayment, error) {
	l, err := store.LockLoan(ctx, loanID, userID)
	if err != nil {
		return nil, nil, err
	}
	if l.Status != StatusApproved {
		return nil, nil, ErrNotApproved
	}

	now := s.now().UTC()
	schedule := BuildSchedule(l.ID, l.Amount, l.TermWeeks, now)
	l.Status = StatusActive
	l.DisbursedAt = &now
	l.UpdatedAt = now
	if err := store.Activate(ctx, l, schedule); err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("loan_id", l.ID.String()).
		Int("instalments", len(schedule)).
		Msg("loan disbursed")
	return l, schedule, nil
}

// PrepareRepayment locks the loan and then the instalment being paid
func (s *Service) PrepareRepayment(ctx context.Context, store TxStore, userID, repaymentID uuid.UUID) (*Repayment, *Loan, error) {
	found, err := store.FindRepayment(ctx, repaymentID, userID)
	if err != nil {
		return nil, nil, err
	}
	l, err := store.LockLoan(ctx, found.LoanID, userID)
	if err != nil {
		return nil, nil, err
	}
	rp, err := store.LockRepayment(ctx, repaymentID)
	if err != nil {
		return nil, nil, err
	}
	if rp.Status.Settled() {
		return nil, nil, ErrAlreadyPaid
	}
	if l.Status != StatusActive {
		return nil, nil, ErrNotActive
	}
	return rp, l, nil
}

// Settlement is what paying one instalment did
type Settlement struct {
	Repayment     *Repayment      `json:"repayment"`
	IsEarly       bool            `json:"is_early_payment"`
	LoanCompleted bool            `json:"loan_completed"`
	Outcome       level.Outcome   `json:"outcome,omitempty"`
	LevelProgress *level.Progress `json:"level_progress,omitempty"`
}

// SettleRepayment marks rp paid and, when it was the loan's last open
// instalment, completes the loan and feeds the outcome to the level ledger. The
// completion check reads every instalment of the loan through store.
func (s *Service) SettleRepayment(ctx context.Context, store TxStore, levels level.TxStore, l *Loan, rp *Repayment) (*Settlement, error) {
	at := s.now().UTC()
	rp.Status = settledStatus(rp, at)
	rp.PaidAt = &at
	if err := store.MarkRepaymentPaid(ctx, rp); err != nil {
		return nil, err
	}

	out := &Settlement{Repayment: rp, IsEarly: at.Before(rp.DueDate)}

	all, err := store.ListRepayments(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	outcome, done := CompletionOutcome(all, rp)
	if !done {
		return out, nil
	}

	l.Status = StatusCompleted
	l.CompletedAt = &at
	l.UpdatedAt = at
	if err := store.Complete(ctx, l); err != nil {
		return nil, err
	}

	progress, err := s.levels.ApplyPaymentOutcome(ctx, levels, l.UserID, outcome)
	if err != nil {
		return nil, err
	}
	out.LoanCompleted = true
	out.Outcome = outcome
	out.LevelProgress = progress

	log.Info().
		Str("user_id", l.UserID.String()).
		Str("loan_id", l.ID.String()).
		Str("outcome", string(outcome)).
		Msg("loan completed")
	return out, nil
}

// ScheduledAmount is the default payment for rp
func ScheduledAmount(rp *Repayment, requested *decimal.Decimal) decimal.Decimal {
	if requested == nil {
		return rp.Amount
	}
	return money.Round(*requested)
}
