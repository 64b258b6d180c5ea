package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/resilience"
)

const articleHTML = `<!doctype html>
<html><head><title>市政新聞</title><style>body{color:red}</style></head>
<body>
<header>網站導覽</header>
<nav><a href="/">首頁</a></nav>
<article>
  <h1>捷運延伸   計畫</h1>
  <p>市長宣布
  捷運將延伸至新市區。</p>
  <script>var tracking = 1;</script>
</article>
<aside>熱門新聞</aside>
<footer>版權所有</footer>
</body></html>`

func TestText_StripsChrome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML)) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	text, err := f.Text(context.Background(), srv.URL+"/news/1")
	require.NoError(t, err)
	assert.Equal(t, "捷運延伸 計畫 市長宣布 捷運將延伸至新市區。", text)
	for _, gone := range []string{"網站導覽", "首頁", "tracking", "熱門新聞", "版權所有", "color"} {
		assert.NotContains(t, text, gone)
	}
}

func TestText_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("一二三四\n\n五六七八九十")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(t, 6)
	text, err := f.Text(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "一二三四 五", text)
}

func TestText_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html><body><p>ok</p></body></html>")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	text, err := f.Text(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestText_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	_, err := f.Text(context.Background(), srv.URL)
	require.Error(t, err)

	var se *resilience.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestText_RateLimitSlowsHost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("<p>later</p>")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	text, err := f.Text(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "later", text)

	lim, err := f.limiterFor(srv.URL)
	require.NoError(t, err)
	// Halved to 500, then one success at +20%.
	assert.InDelta(t, 600, float64(lim.Limit()), 0.001)
}

func TestText_RejectsBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	_, err := f.Text(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestText_BadURL(t *testing.T) {
	f := newTestFetcher(t, 0)

	_, err := f.Text(context.Background(), "mailto:someone@example.com")
	assert.Error(t, err)

	_, err = f.Text(context.Background(), "https://")
	assert.Error(t, err)
}

func TestHead(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/missing.jpg" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	status, ct, err := f.Head(context.Background(), srv.URL+"/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "image/jpeg", ct)

	status, _, err = f.Head(context.Background(), srv.URL+"/missing.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	t.Parallel()
	a := NewAdaptiveLimiter(10, 1)
	for range 10 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20, float64(a.Limit()), 0.001)
	for range 10 {
		a.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(a.Limit()), 0.001)
}

func TestCollapseSpace(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b c", CollapseSpace("  a\n\tb   c \r\n"))
	assert.Equal(t, "", CollapseSpace(" \n "))
}
