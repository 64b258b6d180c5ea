// Package fetcher reads outside content: article pages for verification,
// HEAD probes for avatar links and the election commission's result
// spreadsheets.
package fetcher

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/gate"
	"github.com/sells-group/policy-tracker/internal/resilience"
)

// DefaultUserAgent identifies outbound requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; PolicyTracker/1.0)"

// DefaultMaxChars bounds the text returned by Text.
const DefaultMaxChars = 8000

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 4 << 20

// Options configures a PageFetcher.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxChars          int
	Retry             resilience.Policy
}

// PageFetcher fetches web pages with per-host throttling and retries.
type PageFetcher struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

var _ gate.Prober = (*PageFetcher)(nil)

// New creates a PageFetcher. Zero options take defaults.
func New(opts Options) *PageFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	if opts.Retry.Notify == nil {
		opts.Retry.Notify = resilience.LogRetries("fetcher", "get")
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// NewFromConfig builds a PageFetcher from the fetch and retry settings.
func NewFromConfig(cfg *config.Config) *PageFetcher {
	r := cfg.Retry
	return New(Options{
		UserAgent:         cfg.Fetch.UserAgent,
		Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		MaxChars:          cfg.Extract.MaxInputChars,
		Retry:             resilience.PolicyFromConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction),
	})
}

// Close releases idle connections.
func (f *PageFetcher) Close() {
	f.client.CloseIdleConnections()
}

func (f *PageFetcher) limiterFor(rawURL string) (*AdaptiveLimiter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, eris.New("fetcher: missing host")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RequestsPerSecond), 1)
		f.limiters[u.Host] = lim
	}
	return lim, nil
}
