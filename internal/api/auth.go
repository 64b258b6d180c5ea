package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AgentKeyHeader carries the automation shared secret.
const AgentKeyHeader = "X-Agent-Key"

type ctxKey int

const identityKey ctxKey = iota

// Identity is the authenticated end user behind a request.
type Identity struct {
	UserID  string
	IsAdmin bool
}

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// IssueToken mints an HS256 user token with sub set to userID.
func IssueToken(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", eris.New("api: empty jwt secret")
	}
	if userID == "" {
		return "", eris.New("api: empty user id")
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return s, eris.Wrap(err, "api: sign token")
}

func (s *Server) parseToken(header string) (string, error) {
	raw, found := strings.CutPrefix(header, "Bearer ")
	raw = strings.TrimSpace(raw)
	if !found || raw == "" {
		return "", eris.New("missing bearer token")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", eris.New("token has no subject")
	}
	return claims.Subject, nil
}

// requireUser authenticates the bearer token and resolves admin status.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.parseToken(r.Header.Get("Authorization"))
		if err != nil {
			zap.L().Debug("api: rejected token", zap.Error(err))
			fail(w, http.StatusUnauthorized, "Authentication required", "請先登入")
			return
		}
		admin, err := s.store.IsAdmin(r.Context(), userID)
		if err != nil {
			writeError(w, r, eris.Wrap(err, "api: resolve admin"))
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, Identity{UserID: userID, IsAdmin: admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r.Context())
		if !id.IsAdmin {
			fail(w, http.StatusForbidden, "Forbidden", "此功能僅限管理員使用")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// agentKeyOK checks the header, then the body field, against the shared
// secret.
func (s *Server) agentKeyOK(r *http.Request, bodyKey string) bool {
	want := []byte(s.auth.AgentKey)
	if len(want) == 0 {
		return false
	}
	for _, got := range []string{r.Header.Get(AgentKeyHeader), bodyKey} {
		if got != "" && subtle.ConstantTimeCompare([]byte(got), want) == 1 {
			return true
		}
	}
	return false
}
