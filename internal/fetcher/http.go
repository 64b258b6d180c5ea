package fetcher

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/resilience"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// strippedTags never carry article text.
const strippedTags = "script, style, noscript, nav, footer, header, aside, iframe, form"

// Text downloads an HTML page and returns its readable text with markup,
// navigation and scripts removed, whitespace collapsed and the result cut
// to MaxChars runes.
func (f *PageFetcher) Text(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	body := io.LimitReader(resp.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var text string
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return "", eris.Wrap(err, "fetcher: parse html")
		}
		doc.Find(strippedTags).Remove()
		text = doc.Find("body").Text()
		if strings.TrimSpace(text) == "" {
			text = doc.Find("title").Text()
		}
	case strings.HasPrefix(mediaType, "text/"):
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", eris.Wrap(err, "fetcher: read body")
		}
		text = string(raw)
	default:
		return "", eris.Errorf("fetcher: unsupported content type %q", mediaType)
	}

	return model.Truncate(CollapseSpace(text), f.opts.MaxChars), nil
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Head issues a HEAD request and reports the status and content type. It
// does not retry: a dead link is an answer, not a failure.
func (f *PageFetcher) Head(ctx context.Context, rawURL string) (int, string, error) {
	lim, err := f.limiterFor(rawURL)
	if err != nil {
		return 0, "", err
	}
	if err := lim.Wait(ctx); err != nil {
		return 0, "", eris.Wrap(err, "fetcher: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, "", eris.Wrap(err, "fetcher: create head request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", eris.Wrap(err, "fetcher: head request")
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// get performs a throttled GET with retries on transient failures. A
// non-2xx response is returned as a *resilience.StatusError.
func (f *PageFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	lim, err := f.limiterFor(rawURL)
	if err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: get")
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close() //nolint:errcheck
			if resp.StatusCode == http.StatusTooManyRequests {
				lim.OnRateLimit()
			}
			return nil, &resilience.StatusError{Service: "fetcher", Status: resp.StatusCode}
		}
		lim.OnSuccess()
		return resp, nil
	})
}
