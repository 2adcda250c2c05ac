package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User represents an authenticated principal returned to handlers.
type User struct {
	ID        int64
	Username  string
	Email     string
	Role      string
	CreatedAt time.Time
}

var (
	// ErrInvalidCredentials is returned when email/password is wrong. It never
	// distinguishes an unknown email from a bad password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is returned when a required auth cookie is missing.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPrincipalNotFound is returned when a verified token references an
	// account that no longer exists.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrUserExists is returned on registration with a taken username or email.
	ErrUserExists = errors.New("user already exists")
)

// HashPassword produces a salted bcrypt hash of the plaintext.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies plaintext against a bcrypt hash. Never compare
// hashes directly; bcrypt's comparison resists timing attacks.
func CheckPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// AuthService owns login, registration, and session verification. Token
// minting is delegated to TokenService; account lookups go through the
// UserRepository collaborator.
type AuthService struct {
	users  UserRepository
	tokens *TokenService
}

func NewAuthService(users UserRepository, tokens *TokenService) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Login authenticates by email and password and mints a fresh token pair.
// Missing account and wrong password both surface as ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil || u == nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !CheckPassword(password, u.PasswordHash) {
		return TokenPair{}, ErrInvalidCredentials
	}

	return s.tokens.Issue(u.ID)
}

// Register creates a new account with a hashed password.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (int64, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return 0, errors.New("username, email and password are required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	id, err := s.users.Create(ctx, username, email, hash, RoleUser)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// VerifySession implements the who-am-i check. Both cookies must be present;
// only the access token is decoded. The refresh token is a precondition here,
// not itself verified: replaying it cannot extend a session, it only gates
// whether verification is attempted at all.
func (s *AuthService) VerifySession(ctx context.Context, accessToken, refreshToken string) (*User, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, ErrUnauthenticated
	}

	subjectID, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}

	u, err := s.users.FindByID(ctx, subjectID)
	if err != nil || u == nil {
		return nil, ErrPrincipalNotFound
	}
	return &User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}, nil
}

// isUniqueViolation is a naive duplicate detection shared by handlers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
