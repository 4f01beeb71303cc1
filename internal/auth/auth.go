package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/pkg/logger"
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
)

// Actor identifies the user performing an operation.
type Actor struct {
	Username string
	Role     string
}

// UserStore is the profile lookup the manager needs.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.UserProfile, error)
}

// ActivityStore records login/logout events.
type ActivityStore interface {
	Append(ctx context.Context, entry *models.ActivityEntry) error
}

type session struct {
	actor   Actor
	expires time.Time
}

// Manager validates credentials against stored profiles and hands out
// opaque in-memory session tokens. Passwords are compared in plaintext
// against the store; hardening the login mechanism is out of scope.
type Manager struct {
	users    UserStore
	activity ActivityStore
	roles    RoleMap
	ttl      time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	sessions map[string]session
}

// NewManager creates a session manager. activity may be nil.
func NewManager(users UserStore, activity ActivityStore, roles RoleMap, ttl time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		users:    users,
		activity: activity,
		roles:    roles,
		ttl:      ttl,
		log:      log,
		sessions: make(map[string]session),
	}
}

// Login checks the username/password pair and returns a session token.
func (m *Manager) Login(ctx context.Context, username, password string) (string, Actor, error) {
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", Actor{}, ErrInvalidCredentials
		}
		return "", Actor{}, fmt.Errorf("failed to look up user: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return "", Actor{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", Actor{}, err
	}

	actor := Actor{Username: user.Username, Role: user.Role}
	m.mu.Lock()
	m.sessions[token] = session{actor: actor, expires: time.Now().Add(m.ttl)}
	m.mu.Unlock()

	m.record(ctx, username, models.ActivityLogin, "logged in")
	m.log.Info().Str("username", username).Str("role", user.Role).Msg("User logged in")
	return token, actor, nil
}

// Logout invalidates a session token.
func (m *Manager) Logout(ctx context.Context, token string) {
	m.mu.Lock()
	sess, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()

	if ok {
		m.record(ctx, sess.actor.Username, models.ActivityLogout, "logged out")
	}
}

// Resolve returns the actor behind a session token.
func (m *Manager) Resolve(token string) (Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok {
		return Actor{}, ErrSessionExpired
	}
	if time.Now().After(sess.expires) {
		delete(m.sessions, token)
		return Actor{}, ErrSessionExpired
	}
	return sess.actor, nil
}

// Can reports whether the actor's role carries the capability.
func (m *Manager) Can(actor Actor, capability string) bool {
	return m.roles.Can(actor.Role, capability)
}

func (m *Manager) record(ctx context.Context, username, category, message string) {
	if m.activity == nil {
		return
	}
	entry := &models.ActivityEntry{Username: username, Category: category, Message: message}
	if err := m.activity.Append(ctx, entry); err != nil {
		m.log.Warn().Err(err).Str("username", username).Msg("Failed to record auth activity")
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
