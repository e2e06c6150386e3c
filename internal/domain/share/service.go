package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/liwaywai/lending-api/internal/domain/claims"
	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/pkg/qrcode"
)

// EventShareAccessed is pushed to the owner after a successful presentation
const EventShareAccessed = "share.accessed"

const listLimit = 50

// ClaimsBuilder assembles scoped claims for a borrower
type ClaimsBuilder interface {
	Build(ctx context.Context, userID uuid.UUID, scopes []claims.Scope) (*claims.Claims, error)
}

// CardSource resolves the digital id used as the JWS subject
type CardSource interface {
	GetCard(ctx context.Context, userID uuid.UUID) (*level.CardView, error)
}

// Notifier pushes realtime events to a borrower
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

// Service handles share token business logic
type Service struct {
	repo        Repository
	builder     ClaimsBuilder
	cards       CardSource
	signer      *claims.Signer
	notifier    Notifier
	frontendURL string
	hashCost    int
	now         func() time.Time
}

// NewService creates share service. notifier may be nil.
func NewService(repo Repository, builder ClaimsBuilder, cards CardSource, signer *claims.Signer, notifier Notifier, frontendURL string) *Service {
	return &Service{
		repo:        repo,
		builder:     builder,
		cards:       cards,
		signer:      signer,
		notifier:    notifier,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		hashCost:    DefaultHashCost,
		now:         time.Now,
	}
}

// Mint stores a new token and returns its raw secret embedded in the share URL.
// The secret cannot be recovered afterwards.
func (s *Service) Mint(ctx context.Context, userID uuid.UUID, req *MintRequest) (*MintResult, error) {
	if len(req.Scopes) == 0 {
		return nil, ErrNoScopes
	}
	scopes := make([]claims.Scope, 0, len(req.Scopes))
	seen := make(map[claims.Scope]bool, len(req.Scopes))
	for _, raw := range req.Scopes {
		sc := claims.Scope(raw)
		if !sc.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidScope, raw)
		}
		if !seen[sc] {
			seen[sc] = true
			scopes = append(scopes, sc)
		}
	}

	ttl := req.TTLMinutes
	if ttl == 0 {
		ttl = DefaultTTLMinutes
	}
	if ttl < 1 || ttl > MaxTTLMinutes {
		return nil, ErrInvalidTTL
	}
	label := strings.TrimSpace(req.RPLabel)
	if label == "" {
		label = DefaultRPLabel
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	hash, err := hashSecret(secret, s.hashCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	stored := make(pq.StringArray, len(scopes))
	for i, sc := range scopes {
		stored[i] = string(sc)
	}
	t := &Token{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash,
		Scopes:    stored,
		RPLabel:   label,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Minute),
		CreatedAt: now,
	}

	url := s.frontendURL + "/rp/claims/" + secret
	code, err := qrcode.Encode(url)
	if err != nil {
		return nil, err
	}
	png, err := code.PNGDataURL(qrcode.DefaultSize)
	if err != nil {
		return nil, err
	}

	// persist only once the QR has rendered
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("token_id", t.ID.String()).
		Strs("scopes", req.Scopes).
		Time("expires_at", t.ExpiresAt).
		Msg("share token minted")

	return &MintResult{
		TokenID:   t.ID,
		ShareURL:  url,
		QRSVG:     code.SVG(qrcode.DefaultSize),
		QRPNG:     png,
		ExpiresAt: t.ExpiresAt,
		Scopes:    scopes,
		RPLabel:   label,
	}, nil
}

// Present checks a raw secret against every stored token and, when it
// matches a live one, returns signed claims for the granted scopes.
// Every call writes exactly one access log row.
func (s *Service) Present(ctx context.Context, secret string, who Requester) (*Presentation, error) {
	tokens, err := s.repo.ListStored(ctx)
	if err != nil {
		return nil, fmt.Errorf("load share tokens: %w", err)
	}

	var matched *Token
	for _, t := range tokens {
		if matchSecret(t.TokenHash, secret) {
			matched = t
			break
		}
	}

	now := s.now()
	switch {
	case matched == nil:
		return s.outcome(ctx, nil, AccessInvalid, who, nil)
	case !now.Before(matched.ExpiresAt):
		return s.outcome(ctx, matched, AccessExpired, who, nil)
	case matched.RevokedAt != nil:
		return s.outcome(ctx, matched, AccessRevoked, who, nil)
	}

	result, err := s.issue(ctx, matched, now)
	if err != nil {
		if _, logErr := s.outcome(ctx, matched, AccessInvalid, who, nil); logErr != nil {
			return nil, logErr
		}
		if errors.Is(err, level.ErrRecordNotFound) || errors.Is(err, level.ErrCardNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}

	p, err := s.outcome(ctx, matched, AccessSuccess, who, matched.Scopes)
	if err != nil {
		return nil, err
	}
	p.Result = result

	if s.notifier != nil {
		s.notifier.Notify(ctx, matched.UserID, EventShareAccessed, map[string]interface{}{
			"token_id":    matched.ID,
			"rp_label":    matched.RPLabel,
			"scopes":      matched.Scopes,
			"accessed_at": now,
		})
	}
	return p, nil
}

func (s *Service) issue(ctx context.Context, t *Token, now time.Time) (*claims.Result, error) {
	card, err := s.cards.GetCard(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	c, err := s.builder.Build(ctx, t.UserID, t.ScopeList())
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Sign(c, claims.Binding{
		Subject:   card.LiwaywaiID,
		Audience:  t.RPLabel,
		TokenID:   t.ID,
		ExpiresAt: t.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("sign claims: %w", err)
	}
	return &claims.Result{
		Claims:      c,
		SignedToken: signed,
		Metadata: claims.Metadata{
			TokenID:   t.ID,
			IssuedAt:  now,
			ExpiresAt: t.ExpiresAt,
			Scopes:    c.Scopes,
			RPLabel:   t.RPLabel,
		},
	}, nil
}

func (s *Service) outcome(ctx context.Context, t *Token, status AccessStatus, who Requester, disclosed pq.StringArray) (*Presentation, error) {
	entry := &AccessLog{
		ID:              uuid.New(),
		Status:          status,
		RequesterIP:     who.IP,
		UserAgent:       who.UserAgent,
		ScopesDisclosed: disclosed,
		AccessedAt:      s.now(),
	}
	ev := log.Info()
	if t != nil {
		entry.ShareTokenID = &t.ID
		entry.UserID = &t.UserID
		ev = ev.Str("token_id", t.ID.String()).Str("user_id", t.UserID.String())
	}
	if err := s.repo.LogAccess(ctx, entry); err != nil {
		return nil, err
	}
	ev.Str("status", string(status)).Str("requester_ip", who.IP).Msg("share token presented")
	return &Presentation{Status: status}, nil
}

// Verify checks a signed claims token issued by Present
func (s *Service) Verify(token string) *VerifyResult {
	res := &VerifyResult{VerifiedAt: s.now()}
	payload, err := s.signer.Verify(token)
	if err != nil {
		return res
	}
	res.Valid = true
	res.Claims = payload
	return res
}

// Revoke ends a token immediately. A second revoke is an error.
func (s *Service) Revoke(ctx context.Context, userID, tokenID uuid.UUID) (*TokenSummary, error) {
	t, err := s.repo.Revoke(ctx, tokenID, userID, s.now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", userID.String()).Str("token_id", tokenID.String()).Msg("share token revoked")
	return &TokenSummary{Token: *t, Status: TokenRevoked}, nil
}

// List returns the borrower's most recent tokens with access counters
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*TokenSummary, error) {
	out, err := s.repo.ListByUser(ctx, userID, listLimit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, t := range out {
		t.Status = t.Token.Status(now)
	}
	return out, nil
}

// History returns the access trail of one of the borrower's tokens
func (s *Service) History(ctx context.Context, userID, tokenID uuid.UUID) ([]*AccessLog, error) {
	if _, err := s.repo.GetForUser(ctx, tokenID, userID); err != nil {
		return nil, err
	}
	return s.repo.AccessLogs(ctx, tokenID)
}

// Audit lists tokens across borrowers with their access trails
func (s *Service) Audit(ctx context.Context, f AuditFilter) ([]*AuditEntry, int, error) {
	f.normalize()

	now := s.now()
	entries, total, err := s.repo.Audit(ctx, f, now)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, len(entries))
	byID := make(map[uuid.UUID]*AuditEntry, len(entries))
	for i, e := range entries {
		e.Status = e.Token.Status(now)
		e.AccessLogs = []*AccessLog{}
		ids[i] = e.ID
		byID[e.ID] = e
	}

	logs, err := s.repo.AccessLogs(ctx, ids...)
	if err != nil {
		return nil, 0, err
	}
	for _, l := range logs {
		if l.ShareTokenID == nil {
			continue
		}
		if e, ok := byID[*l.ShareTokenID]; ok {
			e.AccessLogs = append(e.AccessLogs, l)
		}
	}
	return entries, total, nil
}
