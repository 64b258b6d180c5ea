package gate

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Prober issues a HEAD request and reports status and content type.
type Prober interface {
	Head(ctx context.Context, url string) (status int, contentType string, err error)
}

var avatarPatterns = []string{
	"upload.wikimedia.org",
	".jpg",
	".jpeg",
	".png",
	".webp",
	"taichung.gov.tw/media",
	"taipei.gov.tw",
	"kcg.gov.tw",
}

var categoryPages = []string{
	"commons.wikimedia.org/wiki/category:",
	"/wiki/category:",
}

// AvatarChecker accepts only URLs that point at a live image.
type AvatarChecker struct {
	prober Prober
}

// NewAvatarChecker creates an AvatarChecker.
func NewAvatarChecker(p Prober) *AvatarChecker {
	return &AvatarChecker{prober: p}
}

// LooksLikeImage applies the static URL rules without any network call.
func LooksLikeImage(url string) bool {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false
	}
	lower := strings.ToLower(url)
	for _, c := range categoryPages {
		if strings.Contains(lower, c) {
			return false
		}
	}
	for _, p := range avatarPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Accept reports whether url may be stored as an avatar. Every failure is
// a rejection.
func (a *AvatarChecker) Accept(ctx context.Context, url string) bool {
	url = strings.TrimSpace(url)
	if !LooksLikeImage(url) {
		return false
	}
	if a.prober == nil {
		return false
	}
	status, ct, err := a.prober.Head(ctx, url)
	if err != nil {
		zap.L().Debug("gate: avatar probe failed", zap.String("url", url), zap.Error(err))
		return false
	}
	return status >= 200 && status < 300 && strings.HasPrefix(strings.ToLower(ct), "image/")
}
