package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token is malformed or invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidSignature is returned when the token signature is invalid
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMissingClaims is returned when required claims are missing
	ErrMissingClaims = errors.New("missing required claims")
)

// JWTVerifier validates HMAC-signed JWT credentials.
type JWTVerifier struct {
	secret []byte
}

var _ TokenVerifier = (*JWTVerifier)(nil)

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
	}
}

// Verify validates a JWT credential and extracts the principal.
// It verifies:
// - Token signature
// - Token expiration
// - Required claims (user_id, exp)
func (v *JWTVerifier) Verify(credential string) (*Info, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		// No else needed: early return pattern (guard clause)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method: %v", ErrInvalidSignature, token.Header["alg"])
		}
		return v.secret, nil
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// No else needed: early return pattern (guard clause)
	if !token.Valid {
		return nil, fmt.Errorf("%w: token is not valid", ErrInvalidToken)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	// No else needed: early return pattern (guard clause)
	if !ok {
		return nil, fmt.Errorf("%w: unable to parse claims", ErrInvalidToken)
	}

	userID, ok := mapClaims["user_id"].(string)
	// No else needed: early return pattern (guard clause)
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: user_id claim missing or invalid", ErrMissingClaims)
	}

	exp, err := mapClaims.GetExpirationTime()
	// No else needed: early return pattern (guard clause)
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: exp claim missing or invalid", ErrMissingClaims)
	}

	// session_id is optional; fall back to the token id, then a fresh uuid,
	// so every verified credential carries a logical session identity.
	sessionID, _ := mapClaims["session_id"].(string)
	if sessionID == "" {
		sessionID, _ = mapClaims["jti"].(string)
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	return &Info{
		UserID:    userID,
		SessionID: sessionID,
		ExpiresAt: exp.Time.UTC(),
	}, nil
}

// IssueForTest creates a signed token for the given principal. It exists for
// tests and local tooling; production tokens come from the external issuer.
func IssueForTest(secret, userID, sessionID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if sessionID != "" {
		claims["session_id"] = sessionID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
