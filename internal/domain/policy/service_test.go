package policy

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

type fakeRepo struct {
	mu       sync.Mutex
	versions map[string]*Version
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{versions: make(map[string]*Version)}
}

func (f *fakeRepo) Publish(_ context.Context, v *Version, activate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.versions[v.Version]; ok {
		return ErrVersionExists
	}
	cp := *v
	f.versions[v.Version] = &cp
	if activate {
		f.activateLocked(v.Version)
		v.IsActive = true
	}
	return nil
}

func (f *fakeRepo) Activate(_ context.Context, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.versions[version]; !ok {
		return ErrVersionNotFound
	}
	f.activateLocked(version)
	return nil
}

func (f *fakeRepo) activateLocked(version string) {
	for name, v := range f.versions {
		v.IsActive = name == version
	}
}

func (f *fakeRepo) GetActive(context.Context) (*Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions {
		if v.IsActive {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNoActivePolicy
}

func (f *fakeRepo) GetByVersion(_ context.Context, version string) (*Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[version]
	if !ok {
		return nil, ErrVersionNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, limit int) ([]*Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Version, 0, len(f.versions))
	for _, v := range f.versions {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.versions {
		if v.IsActive {
			n++
		}
	}
	return n
}

func TestEnsureDefaultInstallsLaunchPolicyOnce(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	if err := svc.EnsureDefault(ctx); err != nil {
		t.Fatalf("first EnsureDefault: %v", err)
	}
	if err := svc.EnsureDefault(ctx); err != nil {
		t.Fatalf("second EnsureDefault: %v", err)
	}

	tbl, err := svc.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if tbl.Version() != DefaultVersion {
		t.Fatalf("active version = %q", tbl.Version())
	}
	if len(repo.versions) != 1 {
		t.Fatalf("expected one stored version, got %d", len(repo.versions))
	}
}

func TestPublishActivateKeepsSingleActiveVersion(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	if err := svc.EnsureDefault(ctx); err != nil {
		t.Fatal(err)
	}

	p := DefaultParams()
	p.Caps[0] = decimal.NewFromInt(600)
	if _, err := svc.Publish(ctx, "v1.1.0", p, nil, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if n := repo.activeCount(); n != 1 {
		t.Fatalf("expected exactly one active version, got %d", n)
	}
	tbl, err := svc.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Version() != "v1.1.0" || !tbl.CapFor(0).Equal(decimal.NewFromInt(600)) {
		t.Fatalf("unexpected active table %s cap0=%s", tbl.Version(), tbl.CapFor(0))
	}

	if err := svc.Activate(ctx, DefaultVersion); err != nil {
		t.Fatalf("re-activate default: %v", err)
	}
	if n := repo.activeCount(); n != 1 {
		t.Fatalf("expected exactly one active version after swap, got %d", n)
	}
}

func TestPublishRejectsDuplicateAndInvalidVersions(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	if _, err := svc.Publish(ctx, "v1", DefaultParams(), nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Publish(ctx, "v1", DefaultParams(), nil, false); !errors.Is(err, ErrVersionExists) {
		t.Fatalf("expected ErrVersionExists, got %v", err)
	}

	bad := DefaultParams()
	bad.PDThresholds = Thresholds{Approve: 0.5, Counter: 0.2}
	if _, err := svc.Publish(ctx, "v2", bad, nil, true); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if _, ok := repo.versions["v2"]; ok {
		t.Fatal("invalid version must not be stored")
	}
}

func TestActivateUnknownVersion(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	if err := svc.Activate(context.Background(), "v9"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

type memCache struct {
	mu     sync.Mutex
	gen    int64
	active *Version
}

func (c *memCache) get(context.Context) (*Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, false
	}
	cp := *c.active
	return &cp, true
}

func (c *memCache) generation(context.Context) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, true
}

func (c *memCache) setIfGeneration(_ context.Context, gen int64, v *Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	cp := *v
	c.active = &cp
}

func (c *memCache) invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.active = nil
}

// slowReadRepo returns its read result only after onRead has run, letting a test
// slot an activation between the database read and the cache fill.
type slowReadRepo struct {
	*fakeRepo
	onRead func()
}

func (r *slowReadRepo) GetActive(ctx context.Context) (*Version, error) {
	v, err := r.fakeRepo.GetActive(ctx)
	if r.onRead != nil {
		hook := r.onRead
		r.onRead = nil
		hook()
	}
	return v, err
}

func TestActiveDoesNotCacheVersionReplacedMidRead(t *testing.T) {
	base := newFakeRepo()
	repo := &slowReadRepo{fakeRepo: base}
	cache := &memCache{}
	svc := NewService(repo, nil)
	svc.cache = cache
	ctx := context.Background()

	if err := svc.EnsureDefault(ctx); err != nil {
		t.Fatal(err)
	}
	p := DefaultParams()
	p.Caps[0] = decimal.NewFromInt(650)
	if _, err := svc.Publish(ctx, "v1.2.0", p, nil, false); err != nil {
		t.Fatal(err)
	}

	repo.onRead = func() {
		if err := svc.Activate(ctx, "v1.2.0"); err != nil {
			t.Errorf("activate: %v", err)
		}
	}
	stale, err := svc.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stale.Version() != DefaultVersion {
		t.Fatalf("expected the racing read to see %s, got %s", DefaultVersion, stale.Version())
	}
	if _, ok := cache.get(ctx); ok {
		t.Fatal("stale version was written back to the cache")
	}

	fresh, err := svc.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Version() != "v1.2.0" {
		t.Fatalf("expected v1.2.0 after activation, got %s", fresh.Version())
	}
	if v, ok := cache.get(ctx); !ok || v.Version != "v1.2.0" {
		t.Fatalf("expected cache filled with v1.2.0, got %+v", v)
	}
}
