package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/shared/id"
	"github.com/GriffinCanCode/sitepack/internal/shared/utils"
	"github.com/goccy/go-yaml"
	"golang.org/x/crypto/bcrypt"
)

// Authentication errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpired            = errors.New("session expired")
)

// DefaultTTL is the session lifetime used when none is configured
const DefaultTTL = 24 * time.Hour

// User is an account allowed to download
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// usersFile is the on-disk layout of the users file
type usersFile struct {
	Users []User `yaml:"users"`
}

// Session is an issued bearer token
type Session struct {
	ID        id.SessionID `json:"id"`
	Username  string       `json:"username"`
	Token     string       `json:"token"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Service checks credentials and tracks sessions in memory
type Service struct {
	users    map[string]User
	sessions sync.Map // token -> *Session
	ttl      time.Duration
	now      func() time.Time
}

// dummyHash keeps unknown-user logins as slow as wrong-password ones
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sitepack-dummy-password"), bcrypt.DefaultCost)

// LoadUsers reads a YAML users file
func LoadUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	return f.Users, nil
}

// NewService creates an auth service for users. Usernames must be valid
// and unique, and every hash must be a bcrypt hash.
func NewService(users []User, ttl time.Duration) (*Service, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	byName := make(map[string]User, len(users))
	for _, u := range users {
		if err := utils.ValidateUsername(u.Username); err != nil {
			return nil, err
		}
		if _, dup := byName[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("user %q: password_hash is not a bcrypt hash: %w", u.Username, err)
		}
		byName[u.Username] = u
	}
	if len(byName) == 0 {
		return nil, errors.New("no users configured")
	}

	return &Service{
		users: byName,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

// NewServiceFromFile loads users from path and creates the service
func NewServiceFromFile(path string, ttl time.Duration) (*Service, error) {
	users, err := LoadUsers(path)
	if err != nil {
		return nil, err
	}
	return NewService(users, ttl)
}

// HashPassword produces a bcrypt hash suitable for the users file
func HashPassword(password string) (string, error) {
	if err := utils.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("password hashing failed: %w", err)
	}
	return string(hash), nil
}

// Login verifies credentials and issues a session
func (s *Service) Login(username, password string) (*Session, error) {
	// Malformed input gets the same answer as a wrong password
	if utils.ValidateUsername(username) != nil || utils.ValidatePassword(password) != nil {
		return nil, ErrInvalidCredentials
	}

	user, ok := s.users[username]
	hash := dummyHash
	if ok {
		hash = []byte(user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:        id.NewSessionID(),
		Username:  username,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions.Store(token, session)
	return session, nil
}

// Verify returns the live session for token
func (s *Service) Verify(token string) (*Session, error) {
	if utils.ValidateToken(token) != nil {
		return nil, ErrInvalidToken
	}

	v, ok := s.sessions.Load(token)
	if !ok {
		return nil, ErrInvalidToken
	}

	session := v.(*Session)
	if !s.now().Before(session.ExpiresAt) {
		s.sessions.Delete(token)
		return nil, ErrExpired
	}
	return session, nil
}

// Logout revokes token. It reports whether a session existed.
func (s *Service) Logout(token string) bool {
	if utils.ValidateToken(token) != nil {
		return false
	}
	_, existed := s.sessions.LoadAndDelete(token)
	return existed
}

// Prune drops expired sessions and returns how many were removed
func (s *Service) Prune() int {
	now := s.now()
	removed := 0
	s.sessions.Range(func(k, v any) bool {
		if !now.Before(v.(*Session).ExpiresAt) {
			s.sessions.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
