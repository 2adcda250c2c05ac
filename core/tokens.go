package core

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds embedded in the "kind" claim.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

var (
	// ErrExpiredCredential is returned when a token is well-formed and
	// correctly signed but past its expiry. Callers distinguish it so a
	// refresh flow can be triggered instead of a hard reject.
	ErrExpiredCredential = errors.New("credential expired")

	// ErrMalformedCredential covers every other verification failure:
	// tampering, wrong key, structurally invalid payload.
	ErrMalformedCredential = errors.New("credential malformed")
)

// TokenPair carries a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type credentialClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// TokenService mints and verifies the signed session credentials carried in
// the auth cookies. It is stateless: the only inputs are the signing secret
// and the two lifetimes, all injected from Config.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(cfg Config) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.SecretKey),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
}

// Issue mints a short-lived access token and a longer-lived refresh token for
// the given subject.
func (s *TokenService) Issue(subjectID int64) (TokenPair, error) {
	access, err := s.mint(subjectID, TokenKindAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.mint(subjectID, TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("mint refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) mint(subjectID int64, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature and expiry and returns the embedded subject id.
// Expiry is the only failure reported as ErrExpiredCredential; everything
// else collapses to ErrMalformedCredential. A valid token proves nothing
// about the subject still existing.
func (s *TokenService) Verify(tokenString string) (int64, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	var claims credentialClaims
	token, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredCredential
		}
		return 0, ErrMalformedCredential
	}
	if !token.Valid {
		return 0, ErrMalformedCredential
	}

	subjectID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subjectID <= 0 {
		return 0, ErrMalformedCredential
	}
	return subjectID, nil
}
