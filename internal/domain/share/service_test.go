package share

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/liwaywai/lending-api/internal/domain/claims"
	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/pkg/storage"
)

type fakeRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*Token
	logs   []*AccessLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tokens: map[uuid.UUID]*Token{}}
}

func (r *fakeRepo) Create(_ context.Context, t *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.ID] = &cp
	return nil
}

func (r *fakeRepo) ListStored(context.Context) ([]*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Token
	for _, t := range r.tokens {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*TokenSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*TokenSummary
	for _, t := range r.tokens {
		if t.UserID != userID {
			continue
		}
		s := &TokenSummary{Token: *t}
		for _, l := range r.logs {
			if l.ShareTokenID != nil && *l.ShareTokenID == t.ID && l.Status == AccessSuccess {
				s.AccessCount++
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRepo) GetForUser(_ context.Context, id, userID uuid.UUID) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.UserID != userID {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) Revoke(_ context.Context, id, userID uuid.UUID, at time.Time) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.UserID != userID {
		return nil, ErrTokenNotFound
	}
	if t.RevokedAt != nil {
		return nil, ErrAlreadyRevoked
	}
	t.RevokedAt = &at
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) LogAccess(_ context.Context, l *AccessLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
	return nil
}

func (r *fakeRepo) AccessLogs(_ context.Context, ids ...uuid.UUID) ([]*AccessLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AccessLog
	for _, l := range r.logs {
		for _, id := range ids {
			if l.ShareTokenID != nil && *l.ShareTokenID == id {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) Audit(context.Context, AuditFilter, time.Time) ([]*AuditEntry, int, error) {
	return nil, 0, errors.New("not implemented")
}

func (r *fakeRepo) ListExpiredBefore(_ context.Context, cutoff time.Time, limit int) ([]*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Token
	for _, t := range r.tokens {
		if t.ExpiresAt.Before(cutoff) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

func (r *fakeRepo) logsWith(status AccessStatus) []*AccessLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AccessLog
	for _, l := range r.logs {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

type fakeLevels struct {
	card *level.CardView
	rec  *level.Record
}

func (f *fakeLevels) GetRecord(context.Context, uuid.UUID) (*level.Record, error) {
	if f.rec == nil {
		return nil, level.ErrRecordNotFound
	}
	return f.rec, nil
}

func (f *fakeLevels) GetCard(context.Context, uuid.UUID) (*level.CardView, error) {
	if f.card == nil {
		return nil, level.ErrCardNotFound
	}
	return f.card, nil
}

type noAssessments struct{}

func (noAssessments) LatestAssessment(context.Context, uuid.UUID) (*loan.Assessment, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ uuid.UUID, event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	levels   *fakeLevels
	notifier *recordingNotifier
	signer   *claims.Signer
	now      time.Time
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tbl := policy.MustDefaultTable()
	userID := uuid.New()
	lv := &fakeLevels{
		card: &level.CardView{
			DigitalIDCard: level.DigitalIDCard{UserID: userID, LiwaywaiID: "LWABC123", PolicyVersion: tbl.Version()},
			Name:          "maria santos",
			KYCLevel:      "basic",
			JoinDate:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		rec: &level.Record{UserID: userID, Level: 1, Streak: 1, UnlockedCap: decimal.NewFromInt(750), TotalLoans: 1, OnTimePaid: 1},
	}
	f := &fixture{
		repo:     newFakeRepo(),
		levels:   lv,
		notifier: &recordingNotifier{},
		signer:   claims.NewSigner("test-signing-secret", ""),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		userID:   userID,
	}
	builder := claims.NewBuilder(lv, noAssessments{}, policy.Fixed{Table: tbl})
	f.svc = NewService(f.repo, builder, lv, f.signer, f.notifier, "https://app.example.ph/")
	f.svc.hashCost = bcrypt.MinCost
	f.svc.now = func() time.Time { return f.now }
	return f
}

func secretFrom(t *testing.T, res *MintResult) string {
	t.Helper()
	const prefix = "https://app.example.ph/rp/claims/"
	if !strings.HasPrefix(res.ShareURL, prefix) {
		t.Fatalf("unexpected share url %q", res.ShareURL)
	}
	return strings.TrimPrefix(res.ShareURL, prefix)
}

func TestMintValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  MintRequest
		want error
	}{
		{"no scopes", MintRequest{}, ErrNoScopes},
		{"unknown scope", MintRequest{Scopes: []string{"income"}}, ErrInvalidScope},
		{"ttl too long", MintRequest{Scopes: []string{"reliability"}, TTLMinutes: 1441}, ErrInvalidTTL},
		{"negative ttl", MintRequest{Scopes: []string{"reliability"}, TTLMinutes: -5}, ErrInvalidTTL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Mint(ctx, f.userID, &tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(f.repo.tokens) != 0 {
		t.Fatalf("rejected mints must not store tokens")
	}
}

func TestMintLeavesNoTokenWhenQRFails(t *testing.T) {
	f := newFixture(t)
	// longer than any QR version can carry
	f.svc.frontendURL = "https://app.example.ph/" + strings.Repeat("x", 4000)

	if _, err := f.svc.Mint(context.Background(), f.userID, &MintRequest{Scopes: []string{"reliability"}}); err == nil {
		t.Fatal("expected qr encoding to fail")
	}
	if len(f.repo.tokens) != 0 {
		t.Fatalf("failed mint stored %d token(s)", len(f.repo.tokens))
	}
}

func TestMintStoresOnlyHash(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Mint(context.Background(), f.userID, &MintRequest{Scopes: []string{"basic_profile", "basic_profile"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	secret := secretFrom(t, res)
	if len(secret) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(secret))
	}
	if res.RPLabel != DefaultRPLabel {
		t.Fatalf("expected default rp label, got %q", res.RPLabel)
	}
	if !res.ExpiresAt.Equal(f.now.Add(10 * time.Minute)) {
		t.Fatalf("expected default ttl of 10 minutes, got %v", res.ExpiresAt)
	}
	if len(res.Scopes) != 1 {
		t.Fatalf("duplicate scopes should collapse, got %v", res.Scopes)
	}
	if !strings.HasPrefix(res.QRSVG, "<svg") || !strings.HasPrefix(res.QRPNG, "data:image/png;base64,") {
		t.Fatalf("qr renderings missing")
	}

	stored := f.repo.tokens[res.TokenID]
	if stored == nil {
		t.Fatalf("token not stored")
	}
	if strings.Contains(stored.TokenHash, secret) {
		t.Fatalf("raw secret persisted")
	}
}

func TestPresentRoundTripIsRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"reliability"}, RPLabel: "Acme Lending", TTLMinutes: 30})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	secret := secretFrom(t, res)

	for i := 0; i < 2; i++ {
		p, err := f.svc.Present(ctx, secret, Requester{IP: "203.0.113.9"})
		if err != nil {
			t.Fatalf("present %d: %v", i, err)
		}
		if p.Status != AccessSuccess || p.Result == nil {
			t.Fatalf("present %d: expected success, got %s", i, p.Status)
		}
		c := p.Result.Claims
		if c.Reliability == nil || c.BasicProfile != nil || c.RiskSnapshot != nil || c.CreditPathway != nil {
			t.Fatalf("claims must hold exactly the granted scope: %+v", c)
		}

		signed, err := f.signer.Verify(p.Result.SignedToken)
		if err != nil {
			t.Fatalf("verify signed claims: %v", err)
		}
		if signed.Subject != "LWABC123" || signed.ID != res.TokenID.String() {
			t.Fatalf("unexpected binding sub=%s jti=%s", signed.Subject, signed.ID)
		}
		if !signed.ExpiresAt.Time.Equal(res.ExpiresAt) {
			t.Fatalf("jws expiry %v must equal token expiry %v", signed.ExpiresAt.Time, res.ExpiresAt)
		}
	}

	success := f.repo.logsWith(AccessSuccess)
	if len(success) != 2 {
		t.Fatalf("expected 2 success logs, got %d", len(success))
	}
	if got := success[0].ScopesDisclosed; len(got) != 1 || got[0] != "reliability" {
		t.Fatalf("unexpected disclosed scopes %v", got)
	}
	if len(f.notifier.events) != 2 || f.notifier.events[0] != EventShareAccessed {
		t.Fatalf("expected share.accessed events, got %v", f.notifier.events)
	}
}

func TestPresentAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"basic_profile"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.now = res.ExpiresAt.Add(time.Second)

	p, err := f.svc.Present(ctx, secretFrom(t, res), Requester{IP: "198.51.100.1"})
	if err != nil {
		t.Fatalf("present: %v", err)
	}
	if p.Status != AccessExpired || p.Result != nil {
		t.Fatalf("expected expired without claims, got %s", p.Status)
	}
	if len(f.repo.logs) != 1 || f.repo.logs[0].Status != AccessExpired {
		t.Fatalf("expected exactly one expired log, got %+v", f.repo.logs)
	}
	if *f.repo.logs[0].ShareTokenID != res.TokenID {
		t.Fatalf("log not attributed to token")
	}
}

func TestRevokeTakesEffectImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"credit_pathway"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.svc.Revoke(ctx, uuid.New(), res.TokenID); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("another borrower must not see the token, got %v", err)
	}

	revoked, err := f.svc.Revoke(ctx, f.userID, res.TokenID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	first := *revoked.RevokedAt

	f.now = f.now.Add(time.Minute)
	if _, err := f.svc.Revoke(ctx, f.userID, res.TokenID); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	if !f.repo.tokens[res.TokenID].RevokedAt.Equal(first) {
		t.Fatalf("double revoke changed revoked_at")
	}

	p, err := f.svc.Present(ctx, secretFrom(t, res), Requester{})
	if err != nil {
		t.Fatalf("present: %v", err)
	}
	if p.Status != AccessRevoked {
		t.Fatalf("expected revoked, got %s", p.Status)
	}
}

func TestPresentUnknownSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"reliability"}}); err != nil {
		t.Fatalf("mint: %v", err)
	}

	p, err := f.svc.Present(ctx, strings.Repeat("0", 64), Requester{IP: "192.0.2.7"})
	if err != nil {
		t.Fatalf("present: %v", err)
	}
	if p.Status != AccessInvalid {
		t.Fatalf("expected invalid, got %s", p.Status)
	}
	if len(f.repo.logs) != 1 || f.repo.logs[0].ShareTokenID != nil || f.repo.logs[0].RequesterIP != "192.0.2.7" {
		t.Fatalf("expected one unattributed invalid log, got %+v", f.repo.logs)
	}
}

func TestPresentMissingSubjectLogsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"reliability"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.levels.card = nil

	if _, err := f.svc.Present(ctx, secretFrom(t, res), Requester{}); !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
	if len(f.repo.logs) != 1 || f.repo.logs[0].Status != AccessInvalid {
		t.Fatalf("expected one invalid log, got %+v", f.repo.logs)
	}
}

func TestListReportsStatusAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live, _ := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"reliability"}, TTLMinutes: 60})
	short, _ := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"reliability"}, TTLMinutes: 1})
	if _, err := f.svc.Present(ctx, secretFrom(t, live), Requester{}); err != nil {
		t.Fatalf("present: %v", err)
	}
	f.now = f.now.Add(5 * time.Minute)

	list, err := f.svc.List(ctx, f.userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := map[uuid.UUID]*TokenSummary{}
	for _, s := range list {
		got[s.ID] = s
	}
	if got[live.TokenID].Status != TokenActive || got[live.TokenID].AccessCount != 1 {
		t.Fatalf("unexpected live summary %+v", got[live.TokenID])
	}
	if got[short.TokenID].Status != TokenExpired {
		t.Fatalf("expected expired, got %s", got[short.TokenID].Status)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	res, _ := f.svc.Mint(context.Background(), f.userID, &MintRequest{Scopes: []string{"basic_profile"}})
	p, err := f.svc.Present(context.Background(), secretFrom(t, res), Requester{})
	if err != nil {
		t.Fatalf("present: %v", err)
	}

	if v := f.svc.Verify(p.Result.SignedToken); !v.Valid || v.Claims.BasicProfile.NameInitial != "M" {
		t.Fatalf("expected valid claims with initial M, got %+v", v)
	}
	if v := f.svc.Verify(p.Result.SignedToken + "x"); v.Valid {
		t.Fatalf("tampered token verified")
	}
}

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) Put(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = b
	return nil
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestReaperArchivesThenDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, _ := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"reliability"}, TTLMinutes: 1})
	fresh, _ := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"reliability"}, TTLMinutes: 1440})
	if _, err := f.svc.Present(ctx, secretFrom(t, old), Requester{}); err != nil {
		t.Fatalf("present: %v", err)
	}

	archive := &memStorage{objects: map[string][]byte{}}
	reaper := NewReaper(f.repo, archive, time.Hour)
	now := f.now.Add(2 * time.Hour)
	reaper.now = func() time.Time { return now }

	n, err := reaper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reaped token, got %d", n)
	}
	if _, ok := f.repo.tokens[old.TokenID]; ok {
		t.Fatalf("expired token still stored")
	}
	if _, ok := f.repo.tokens[fresh.TokenID]; !ok {
		t.Fatalf("live token reaped")
	}

	key := "share-archive/" + now.Format("2006/01/02") + "/" + old.TokenID.String() + ".json"
	body, ok := archive.objects[key]
	if !ok {
		t.Fatalf("archive %s missing, have %v", key, archive.objects)
	}
	if !bytes.Contains(body, []byte(`"status":"success"`)) || bytes.Contains(body, []byte("token_hash")) {
		t.Fatalf("unexpected archive body %s", body)
	}
	if len(f.repo.logsWith(AccessSuccess)) != 1 {
		t.Fatalf("access logs must survive reaping")
	}
}
