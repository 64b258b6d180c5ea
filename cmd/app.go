package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/classify"
	"github.com/sells-group/policy-tracker/internal/cost"
	"github.com/sells-group/policy-tracker/internal/extract"
	"github.com/sells-group/policy-tracker/internal/fetcher"
	"github.com/sells-group/policy-tracker/internal/gate"
	"github.com/sells-group/policy-tracker/internal/ingest"
	"github.com/sells-group/policy-tracker/internal/ledger"
	"github.com/sells-group/policy-tracker/internal/quota"
	"github.com/sells-group/policy-tracker/internal/refcache"
	"github.com/sells-group/policy-tracker/internal/resilience"
	"github.com/sells-group/policy-tracker/internal/scheduler"
	"github.com/sells-group/policy-tracker/internal/store"
)

// appEnv holds the collaborators shared by the serve, schedule, import and
// dedupe commands.
type appEnv struct {
	Store     store.Store
	Fetcher   *fetcher.PageFetcher
	State     *refcache.AppState
	Gate      *gate.Gate
	Engine    *ingest.Engine
	Ledger    *ledger.Ledger
	Scheduler *scheduler.Scheduler
	Redis     *redis.Client // may be nil
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Fetcher != nil {
		e.Fetcher.Close()
	}
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp opens and migrates the store and builds the write path around it.
// Callers should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Fetcher: fetcher.NewFromConfig(cfg)}

	var stateOpts []refcache.Option
	ttl := time.Duration(cfg.Redis.SnapshotTTLHours) * time.Hour
	if cfg.Redis.Addr != "" {
		env.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		stateOpts = append(stateOpts, refcache.WithSnapshots(refcache.NewRedisSnapshots(env.Redis, "", ttl)))
		zap.L().Info("reference snapshots in redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		stateOpts = append(stateOpts, refcache.WithSnapshots(&refcache.MemorySnapshots{}))
		zap.L().Debug("POLICY_REDIS_ADDR not set, reference snapshots kept in memory")
	}
	stateOpts = append(stateOpts, refcache.WithTTL(ttl))
	env.State = refcache.New(st, stateOpts...)

	env.Gate = gate.New(cfg.Gate.CandidateMinConfidence, cfg.Gate.ContributeMinConfidence)
	env.Engine = ingest.New(st, env.Gate,
		ingest.WithAvatarChecker(gate.NewAvatarChecker(env.Fetcher)),
		ingest.WithInvalidate(env.State.Invalidate),
	)
	env.Ledger = ledger.New(st)
	env.Scheduler = scheduler.New(env.Ledger, st)
	return env, nil
}

// newExtractor builds the verification analyzer for the configured provider.
func newExtractor() (*extract.Extractor, error) {
	completer, err := extract.NewCompleter(cfg)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]cost.Rate, len(cfg.Pricing.Models))
	for name, p := range cfg.Pricing.Models {
		rates[name] = cost.Rate{Input: p.Input, Output: p.Output}
	}
	r := cfg.Retry
	return extract.New(completer, cost.NewCalculator(rates, completer.Model()), extract.Options{
		MaxInputChars: cfg.Extract.MaxInputChars,
		MaxTokens:     int(cfg.Extract.MaxTokens),
		Retry:         resilience.PolicyFromConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction),
	}), nil
}

// newClassifier returns the built-in classifier, or one merged with the
// rules file when classify.rules_path is set.
func newClassifier() (*classify.Classifier, error) {
	if cfg.Classify.RulesPath == "" {
		return classify.MustDefault(), nil
	}
	rules, err := classify.LoadRules(cfg.Classify.RulesPath)
	if err != nil {
		return nil, err
	}
	c, err := classify.New(rules)
	if err != nil {
		return nil, eris.Wrap(err, "build classifier")
	}
	zap.L().Info("classifier rules loaded", zap.String("path", cfg.Classify.RulesPath))
	return c, nil
}

func newLimiter(st store.Store) *quota.Limiter {
	return quota.New(st, quota.Limits{
		TaskPerUser:   cfg.Quota.TaskDailyLimit,
		VerifyPerUser: cfg.Quota.VerifyUserDailyLimit,
		VerifyPerIP:   cfg.Quota.VerifyIPDailyLimit,
	})
}
