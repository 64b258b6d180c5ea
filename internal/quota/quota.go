// Package quota enforces per-identity daily ceilings on task creation and
// AI verification calls.
//
// Counts are range queries over the backing store scoped to the current UTC
// calendar day. The check and the subsequent insert are not atomic, so two
// requests racing at the boundary may both pass; the ceiling is soft.
package quota

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Counter is the store surface the limiter reads from.
type Counter interface {
	CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountUsageSince(ctx context.Context, filter model.UsageFilter) (int, error)
}

// Limits holds the daily ceilings.
type Limits struct {
	TaskPerUser   int
	VerifyPerUser int
	VerifyPerIP   int
}

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{TaskPerUser: 20, VerifyPerUser: 50, VerifyPerIP: 50}
}

// Remaining reports how many calls are left today in each dimension.
type Remaining struct {
	User int `json:"user_remaining"`
	IP   int `json:"ip_remaining"`
}

// LimitError is returned when a ceiling has been reached.
type LimitError struct {
	Scope     string
	Limit     int
	Remaining Remaining
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily %s limit of %d reached", e.Scope, e.Limit)
}

// Limiter checks identities against Limits.
type Limiter struct {
	counter Counter
	limits  Limits
	now     func() time.Time
}

// New creates a Limiter.
func New(counter Counter, limits Limits) *Limiter {
	return &Limiter{counter: counter, limits: limits, now: time.Now}
}

// StartOfUTCDay truncates t to midnight UTC.
func StartOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CheckTask admits or rejects a task creation. Admins are exempt.
func (l *Limiter) CheckTask(ctx context.Context, userID string, isAdmin bool) (int, error) {
	if isAdmin {
		return -1, nil
	}
	used, err := l.counter.CountTasksSince(ctx, userID, StartOfUTCDay(l.now()))
	if err != nil {
		return 0, eris.Wrap(err, "quota: count tasks")
	}
	remaining := floor(l.limits.TaskPerUser - used)
	if used >= l.limits.TaskPerUser {
		return 0, &LimitError{Scope: "task", Limit: l.limits.TaskPerUser, Remaining: Remaining{User: 0}}
	}
	return remaining, nil
}

// CheckVerify admits or rejects a verification call. The user and IP
// dimensions are counted independently; exceeding either rejects.
func (l *Limiter) CheckVerify(ctx context.Context, userID, ip string) (Remaining, error) {
	since := StartOfUTCDay(l.now())

	userUsed, err := l.counter.CountUsageSince(ctx, model.UsageFilter{
		FunctionType: model.FunctionVerify,
		UserID:       userID,
		Since:        since,
	})
	if err != nil {
		return Remaining{}, eris.Wrap(err, "quota: count user verifications")
	}
	ipUsed, err := l.counter.CountUsageSince(ctx, model.UsageFilter{
		FunctionType: model.FunctionVerify,
		IPAddress:    ip,
		Since:        since,
	})
	if err != nil {
		return Remaining{}, eris.Wrap(err, "quota: count ip verifications")
	}

	rem := Remaining{
		User: floor(l.limits.VerifyPerUser - userUsed),
		IP:   floor(l.limits.VerifyPerIP - ipUsed),
	}
	switch {
	case ipUsed >= l.limits.VerifyPerIP:
		return rem, &LimitError{Scope: "ip verify", Limit: l.limits.VerifyPerIP, Remaining: rem}
	case userUsed >= l.limits.VerifyPerUser:
		return rem, &LimitError{Scope: "user verify", Limit: l.limits.VerifyPerUser, Remaining: rem}
	}
	return rem, nil
}

// AfterCall returns the counters as they stand once the admitted call has
// been recorded.
func (r Remaining) AfterCall() Remaining {
	return Remaining{User: floor(r.User - 1), IP: floor(r.IP - 1)}
}

func floor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// ClientIP returns the caller's address: the first X-Forwarded-For entry,
// then X-Real-IP, else "unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	return "unknown"
}

// RemoteIP falls back to the connection address when no proxy headers
// exist. The address may lack a port once a real-IP middleware rewrote it.
func RemoteIP(r *http.Request) string {
	if ip := ClientIP(r); ip != "unknown" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		return "unknown"
	}
	return host
}
