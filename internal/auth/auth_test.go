package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-for-auth-tests-0123456789abcdef"

func TestJWTVerifier_ValidToken(t *testing.T) {
	token, err := IssueForTest(testSecret, "user-1", "sess-1", time.Hour)
	require.NoError(t, err)

	verifier := NewJWTVerifier(testSecret)
	info, err := verifier.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", info.UserID)
	assert.Equal(t, "sess-1", info.SessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), info.ExpiresAt, 5*time.Second)
}

func TestJWTVerifier_MissingSessionIDGetsGenerated(t *testing.T) {
	token, err := IssueForTest(testSecret, "user-1", "", time.Hour)
	require.NoError(t, err)

	verifier := NewJWTVerifier(testSecret)
	info, err := verifier.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", info.UserID)
	assert.NotEmpty(t, info.SessionID, "verifier must synthesize a session identity")
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	token, err := IssueForTest(testSecret, "user-1", "sess-1", -time.Minute)
	require.NoError(t, err)

	verifier := NewJWTVerifier(testSecret)
	_, err = verifier.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	token, err := IssueForTest("other-secret-that-is-also-long-enough-000", "user-1", "sess-1", time.Hour)
	require.NoError(t, err)

	verifier := NewJWTVerifier(testSecret)
	_, err = verifier.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestJWTVerifier_EmptyToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	_, err := verifier.Verify("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MalformedToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	_, err := verifier.Verify("not.a.jwt")
	assert.Error(t, err)
}

func TestInfo_Expired(t *testing.T) {
	now := time.Now()

	live := Info{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, live.Expired(now))

	lapsed := Info{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, lapsed.Expired(now))
}

func TestCredentialFromRequest_QueryParameter(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?access_token=query-token", nil)
	assert.Equal(t, "query-token", CredentialFromRequest(r))
}

func TestCredentialFromRequest_BearerHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", CredentialFromRequest(r))
}

func TestCredentialFromRequest_QueryTakesPrecedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?access_token=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "query-token", CredentialFromRequest(r))
}

func TestCredentialFromRequest_NoCredential(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	assert.Equal(t, "", CredentialFromRequest(r))
}

func TestCredentialFromRequest_MalformedAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", CredentialFromRequest(r))
}
