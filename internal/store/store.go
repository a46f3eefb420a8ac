package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists signals the username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials indicates a login failure.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthorized indicates an invalid, expired, or missing session.
	ErrUnauthorized = errors.New("unauthorized")

	dummyPasswordHash = []byte("$2a$10$CwTycUXWue0Thq9StjUM0uJ8n4VWeNseyX2fA9DE.D7su7J6iYGTC")
)

const defaultSessionTTL = 30 * 24 * time.Hour

// Store provides persistence backed by Postgres.
type Store struct {
	db         *sql.DB
	sessionTTL time.Duration
}

// New sets up a Store using the provided database handle. A zero sessionTTL
// falls back to thirty days.
func New(db *sql.DB, sessionTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &Store{db: db, sessionTTL: sessionTTL}
}

// Session is an authenticated bearer token with its owner and expiry.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// CreateUser registers a new user and returns its id.
func (s *Store) CreateUser(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, fmt.Errorf("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	var userID int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, username, hash).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUserExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	return userID, nil
}

// Authenticate validates credentials and opens a session. Unknown usernames
// still burn a bcrypt comparison so the two failure paths take similar time.
func (s *Store) Authenticate(ctx context.Context, username, password string) (Session, error) {
	var (
		userID int64
		hash   []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash
		FROM users
		WHERE username = $1
	`, username).Scan(&userID, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return Session{}, fmt.Errorf("create token: %w", err)
	}
	expiresAt := time.Now().Add(s.sessionTTL)

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}

	return Session{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}

// UserForToken resolves a session token to its user id. Expired sessions are
// treated the same as unknown ones.
func (s *Store) UserForToken(ctx context.Context, token string) (int64, error) {
	var (
		userID    int64
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at
		FROM sessions
		WHERE token = $1
	`, token).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUnauthorized
		}
		return 0, fmt.Errorf("lookup session: %w", err)
	}
	if time.Now().After(expiresAt) {
		return 0, ErrUnauthorized
	}
	return userID, nil
}

// DeleteSession revokes a session token and returns the user it belonged to.
func (s *Store) DeleteSession(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM sessions
		WHERE token = $1
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUnauthorized
		}
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return userID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
