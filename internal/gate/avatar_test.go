package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubProber struct {
	status int
	ct     string
	err    error
	calls  int
}

func (s *stubProber) Head(context.Context, string) (int, string, error) {
	s.calls++
	return s.status, s.ct, s.err
}

func TestLooksLikeImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{url: "https://upload.wikimedia.org/wikipedia/commons/a/a1/Portrait.jpg", want: true},
		{url: "https://example.com/photo.PNG", want: true},
		{url: "https://www.taipei.gov.tw/mayor/profile", want: true},
		{url: "https://commons.wikimedia.org/wiki/Category:Mayors.jpg"},
		{url: "https://zh.wikipedia.org/wiki/Category:台灣政治人物"},
		{url: "https://example.com/profile"},
		{url: "ftp://example.com/a.jpg"},
		{url: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeImage(tt.url), tt.url)
	}
}

func TestAvatarChecker_Accept(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	url := "https://upload.wikimedia.org/a.jpg"

	p := &stubProber{status: 200, ct: "image/jpeg"}
	assert.True(t, NewAvatarChecker(p).Accept(ctx, url))

	p = &stubProber{status: 200, ct: "text/html; charset=utf-8"}
	assert.False(t, NewAvatarChecker(p).Accept(ctx, url))

	p = &stubProber{status: 404, ct: "image/png"}
	assert.False(t, NewAvatarChecker(p).Accept(ctx, url))

	p = &stubProber{err: errors.New("dial tcp: timeout")}
	assert.False(t, NewAvatarChecker(p).Accept(ctx, url))

	p = &stubProber{status: 200, ct: "image/png"}
	assert.False(t, NewAvatarChecker(p).Accept(ctx, "https://example.com/profile"))
	assert.Zero(t, p.calls)

	assert.False(t, NewAvatarChecker(nil).Accept(ctx, url))
}
