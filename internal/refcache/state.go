// Package refcache holds the reference data (elections, politicians and
// policies) that read endpoints serve, loaded once and shared until a write
// invalidates it.
package refcache

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Source loads reference data. store.Store satisfies it.
type Source interface {
	ListElections(ctx context.Context) ([]model.Election, error)
	ListPoliticians(ctx context.Context) ([]model.Politician, error)
	AllPolicies(ctx context.Context) ([]model.Policy, error)
}

// AppState is the shared view of reference data. Returned slices are
// shared and must not be modified.
type AppState struct {
	src   Source
	snaps SnapshotStore
	ttl   time.Duration
	now   func() time.Time

	initMu sync.Mutex

	mu          sync.RWMutex
	gen         uint64
	loaded      bool
	elections   []model.Election
	politicians []model.Politician
	policies    []model.Policy
}

// Option configures an AppState.
type Option func(*AppState)

// WithSnapshots persists loaded data through s.
func WithSnapshots(s SnapshotStore) Option {
	return func(a *AppState) { a.snaps = s }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(a *AppState) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *AppState) { a.now = now }
}

// New creates an empty AppState.
func New(src Source, opts ...Option) *AppState {
	a := &AppState{src: src, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Init loads reference data unless it is already loaded. A fresh snapshot
// is preferred over the source.
func (a *AppState) Init(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	a.mu.RLock()
	loaded, gen := a.loaded, a.gen
	a.mu.RUnlock()
	if loaded {
		return nil
	}

	if snap := a.loadSnapshot(ctx); snap != nil {
		a.set(gen, snap.Elections, snap.Politicians, snap.Policies)
		return nil
	}

	var (
		elections   []model.Election
		politicians []model.Politician
		policies    []model.Policy
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		elections, err = a.src.ListElections(gctx)
		return eris.Wrap(err, "refcache: load elections")
	})
	g.Go(func() error {
		var err error
		politicians, err = a.src.ListPoliticians(gctx)
		return eris.Wrap(err, "refcache: load politicians")
	})
	g.Go(func() error {
		var err error
		policies, err = a.src.AllPolicies(gctx)
		return eris.Wrap(err, "refcache: load policies")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if !a.set(gen, elections, politicians, policies) {
		return nil
	}
	zap.L().Info("refcache: loaded reference data",
		zap.Int("elections", len(elections)),
		zap.Int("politicians", len(politicians)),
		zap.Int("policies", len(policies)),
	)

	if a.snaps != nil {
		err := a.snaps.Save(ctx, &Snapshot{
			Version:     SchemaVersion,
			SavedAt:     a.now().UTC(),
			Elections:   elections,
			Politicians: politicians,
			Policies:    policies,
		})
		if err != nil {
			zap.L().Warn("refcache: save snapshot", zap.Error(err))
		}
	}
	return nil
}

func (a *AppState) loadSnapshot(ctx context.Context) *Snapshot {
	if a.snaps == nil {
		return nil
	}
	snap, err := a.snaps.Load(ctx)
	if err != nil {
		zap.L().Warn("refcache: load snapshot", zap.Error(err))
		return nil
	}
	if !snap.Fresh(a.now(), a.ttl) {
		return nil
	}
	return snap
}

// set installs data loaded under generation gen. It returns false when an
// invalidation happened during the load.
func (a *AppState) set(gen uint64, e []model.Election, p []model.Politician, pol []model.Policy) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return false
	}
	a.elections, a.politicians, a.policies = e, p, pol
	a.loaded = true
	return true
}

// Invalidate drops the in-memory view and the persisted snapshot.
func (a *AppState) Invalidate() {
	a.mu.Lock()
	a.gen++
	a.loaded = false
	a.elections, a.politicians, a.policies = nil, nil, nil
	a.mu.Unlock()

	if a.snaps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.snaps.Clear(ctx); err != nil {
		zap.L().Warn("refcache: clear snapshot", zap.Error(err))
	}
}

// Refresh reloads from the source.
func (a *AppState) Refresh(ctx context.Context) error {
	a.Invalidate()
	return a.Init(ctx)
}

// Loaded reports whether data is in memory.
func (a *AppState) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loaded
}

func (a *AppState) Elections() []model.Election {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.elections
}

func (a *AppState) Politicians() []model.Politician {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.politicians
}

func (a *AppState) Policies() []model.Policy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policies
}

// ActiveElection resolves the default election for browsing.
func (a *AppState) ActiveElection(now time.Time) *model.Election {
	return model.ResolveActive(a.Elections(), now)
}
