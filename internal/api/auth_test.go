package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken_RoundTrip(t *testing.T) {
	s := New(Deps{})
	s.auth.JWTSecret = testSecret

	tok, err := IssueToken(testSecret, "user-1", time.Hour, time.Now())
	require.NoError(t, err)

	sub, err := s.parseToken("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestIssueToken_Rejects(t *testing.T) {
	_, err := IssueToken("", "user-1", time.Hour, time.Now())
	assert.Error(t, err)
	_, err = IssueToken(testSecret, "", time.Hour, time.Now())
	assert.Error(t, err)
}

func TestParseToken_Failures(t *testing.T) {
	s := New(Deps{})
	s.auth.JWTSecret = testSecret

	expired, err := IssueToken(testSecret, "user-1", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	otherKey, err := IssueToken("other-secret", "user-1", time.Hour, time.Now())
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"missing":     "",
		"not bearer":  "Basic abc",
		"empty":       "Bearer ",
		"expired":     "Bearer " + expired,
		"wrong key":   "Bearer " + otherKey,
		"alg none":    "Bearer " + none,
		"no subject":  "Bearer " + noSub,
		"garbage jwt": "Bearer not.a.jwt",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.parseToken(header)
			assert.Error(t, err)
		})
	}
}

func TestRequireUser_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, call{path: "/api/classify", body: map[string]string{"input": "請幫我找 2026 年台北市長候選人"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "請先登入", body["message"])
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"election_year": 2026, "region": "臺北市"}

	status, resp := f.do(t, call{path: "/api/admin/search", body: body, token: f.token(t, "user-1")})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "此功能僅限管理員使用", resp["message"])

	status, _ = f.do(t, call{path: "/api/admin/search", body: body, token: f.token(t, adminID)})
	assert.Equal(t, http.StatusOK, status)
}

func TestAgentKey(t *testing.T) {
	s := New(Deps{})
	s.auth.AgentKey = testAgentKey

	req, err := http.NewRequest(http.MethodPost, "/api/action", nil)
	require.NoError(t, err)
	assert.False(t, s.agentKeyOK(req, ""))
	assert.False(t, s.agentKeyOK(req, "wrong"))
	assert.True(t, s.agentKeyOK(req, testAgentKey))

	req.Header.Set(AgentKeyHeader, testAgentKey)
	assert.True(t, s.agentKeyOK(req, ""))

	s.auth.AgentKey = ""
	assert.False(t, s.agentKeyOK(req, ""), "an unset key never matches")
}
