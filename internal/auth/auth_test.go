package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/pkg/logger"
)

type mockUserStore struct {
	users map[string]*models.UserProfile
}

func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	user, ok := m.users[username]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

type mockActivityStore struct {
	entries []models.ActivityEntry
}

func (m *mockActivityStore) Append(ctx context.Context, entry *models.ActivityEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func setupManager(t *testing.T, ttl time.Duration) (*Manager, *mockActivityStore) {
	t.Helper()

	users := &mockUserStore{users: map[string]*models.UserProfile{
		"mom":  {Username: "mom", Password: "hunter2", Role: "steward"},
		"kid1": {Username: "kid1", Password: "letmein", Role: "member"},
	}}
	activity := &mockActivityStore{}
	log := logger.New("debug", "text", "stdout")
	return NewManager(users, activity, DefaultRoleMap("steward", "member"), ttl, log), activity
}

func TestLogin_Success(t *testing.T) {
	manager, activity := setupManager(t, time.Hour)

	token, actor, err := manager.Login(context.Background(), "mom", "hunter2")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "mom", actor.Username)
	assert.Equal(t, "steward", actor.Role)

	assert.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityLogin, activity.entries[0].Category)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	manager, activity := setupManager(t, time.Hour)
	ctx := context.Background()

	_, _, err := manager.Login(ctx, "mom", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = manager.Login(ctx, "stranger", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Empty(t, activity.entries)
}

func TestResolve_ReturnsActor(t *testing.T) {
	manager, _ := setupManager(t, time.Hour)

	token, _, err := manager.Login(context.Background(), "kid1", "letmein")
	assert.NoError(t, err)

	actor, err := manager.Resolve(token)
	assert.NoError(t, err)
	assert.Equal(t, "kid1", actor.Username)
	assert.Equal(t, "member", actor.Role)
}

func TestResolve_UnknownToken(t *testing.T) {
	manager, _ := setupManager(t, time.Hour)

	_, err := manager.Resolve("nope")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestResolve_ExpiredSessionIsRemoved(t *testing.T) {
	manager, _ := setupManager(t, -time.Minute)

	token, _, err := manager.Login(context.Background(), "mom", "hunter2")
	assert.NoError(t, err)

	_, err = manager.Resolve(token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Second resolve hits the same error after eviction.
	_, err = manager.Resolve(token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogout_InvalidatesToken(t *testing.T) {
	manager, activity := setupManager(t, time.Hour)
	ctx := context.Background()

	token, _, err := manager.Login(ctx, "mom", "hunter2")
	assert.NoError(t, err)

	manager.Logout(ctx, token)

	_, err = manager.Resolve(token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	assert.Len(t, activity.entries, 2)
	assert.Equal(t, models.ActivityLogout, activity.entries[1].Category)

	// Logging out an unknown token records nothing.
	manager.Logout(ctx, "nope")
	assert.Len(t, activity.entries, 2)
}

func TestCan_FollowsRoleMap(t *testing.T) {
	manager, _ := setupManager(t, time.Hour)

	steward := Actor{Username: "mom", Role: "steward"}
	member := Actor{Username: "kid1", Role: "member"}

	assert.True(t, manager.Can(steward, CapTaskApprove))
	assert.True(t, manager.Can(steward, CapPointsAdjust))
	assert.True(t, manager.Can(member, CapSuggestionCreate))
	assert.True(t, manager.Can(member, CapPurchaseBuy))
	assert.False(t, manager.Can(member, CapTaskApprove))
	assert.False(t, manager.Can(member, CapDemeritIssue))
	assert.False(t, manager.Can(Actor{Role: "guest"}, CapPurchaseBuy))
}

func TestDefaultRoleMap_UsesConfiguredNames(t *testing.T) {
	rm := DefaultRoleMap("parent", "child")

	assert.True(t, rm.Can("parent", CapSettingsManage))
	assert.True(t, rm.Can("child", CapPurchaseBuy))
	assert.False(t, rm.Can("steward", CapSettingsManage))
}

func TestLoadRoleMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	content := `roles:
  overseer: [tasks.create, tasks.approve, points.adjust]
  helper: [suggestions.create]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write role map: %v", err)
	}

	rm, err := LoadRoleMap(path)
	assert.NoError(t, err)
	assert.True(t, rm.Can("overseer", CapTaskApprove))
	assert.True(t, rm.Can("helper", CapSuggestionCreate))
	assert.False(t, rm.Can("helper", CapTaskApprove))
}

func TestLoadRoleMap_Errors(t *testing.T) {
	_, err := LoadRoleMap(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("roles: {}\n"), 0o600); err != nil {
		t.Fatalf("Failed to write role map: %v", err)
	}
	_, err = LoadRoleMap(empty)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte(":{not yaml"), 0o600); err != nil {
		t.Fatalf("Failed to write role map: %v", err)
	}
	_, err = LoadRoleMap(bad)
	assert.Error(t, err)
}

type failingUserStore struct{}

func (failingUserStore) GetByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	return nil, errors.New("connection refused")
}

func TestLogin_StoreErrorIsNotInvalidCredentials(t *testing.T) {
	log := logger.New("debug", "text", "stdout")
	manager := NewManager(failingUserStore{}, nil, DefaultRoleMap("steward", "member"), time.Hour, log)

	_, _, err := manager.Login(context.Background(), "mom", "hunter2")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}
