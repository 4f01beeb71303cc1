// Package api provides the REST API handlers for the chore board.
// It exposes endpoints for tasks, demerits, suggestions, the reward
// shop, points, shop settings, the activity feed, and invoice export.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/ledger"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/internal/reconcile"
	"github.com/hholt/choreboard/internal/repository"
	"github.com/hholt/choreboard/internal/service/leaderboard"
	"github.com/hholt/choreboard/internal/shop"
	"github.com/hholt/choreboard/pkg/logger"
)

// LedgerService interface for task, demerit, and suggestion operations.
type LedgerService interface {
	CreateTask(ctx context.Context, actor auth.Actor, in ledger.CreateTaskInput) (*models.Task, error)
	CheckOff(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error)
	Approve(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error)
	Reject(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error)
	DeleteTask(ctx context.Context, actor auth.Actor, taskID uint) error
	GetTask(ctx context.Context, taskID uint) (*models.Task, error)
	ListTasks(ctx context.Context, status, taskType, assignedTo string) ([]models.Task, error)
	IssueDemerit(ctx context.Context, actor auth.Actor, in ledger.IssueDemeritInput) (*models.Task, error)
	AcceptDemerit(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error)
	FileAppeal(ctx context.Context, actor auth.Actor, taskID uint, text string) (*models.Task, error)
	ReviewAppeal(ctx context.Context, actor auth.Actor, taskID uint, approve bool) (*models.Task, error)
	CreateSuggestion(ctx context.Context, actor auth.Actor, in ledger.CreateSuggestionInput) (*models.Suggestion, error)
	ReviewSuggestion(ctx context.Context, actor auth.Actor, suggestionID uint, approve bool) (*models.Suggestion, *models.Task, error)
	ListSuggestions(ctx context.Context, status string) ([]models.Suggestion, error)
}

// ShopService interface for reward and purchase operations.
type ShopService interface {
	CreateReward(ctx context.Context, actor auth.Actor, in shop.RewardInput) (*models.Reward, error)
	UpdateReward(ctx context.Context, actor auth.Actor, id uint, in shop.RewardInput) (*models.Reward, error)
	DeleteReward(ctx context.Context, actor auth.Actor, id uint) error
	ListRewards(ctx context.Context, includeArchived bool) ([]models.Reward, error)
	Purchase(ctx context.Context, actor auth.Actor, rewardID uint) (*models.RewardPurchase, error)
	Authorize(ctx context.Context, actor auth.Actor, purchaseID uint) (*models.RewardPurchase, error)
	Deny(ctx context.Context, actor auth.Actor, purchaseID uint) (*models.RewardPurchase, error)
	ListPurchases(ctx context.Context, username, status string) ([]models.RewardPurchase, error)
	GetSettings(ctx context.Context) (*models.ShopSettings, error)
	UpdateSettings(ctx context.Context, actor auth.Actor, in shop.SettingsInput) (*models.ShopSettings, error)
	ResetSpend(ctx context.Context, actor auth.Actor) (*models.ShopSettings, error)
}

// SessionService interface for login and session resolution.
type SessionService interface {
	Login(ctx context.Context, username, password string) (string, auth.Actor, error)
	Logout(ctx context.Context, token string)
	Resolve(token string) (auth.Actor, error)
	Can(actor auth.Actor, capability string) bool
}

// PointsService interface for balance reads and manual adjustments.
type PointsService interface {
	Balance(ctx context.Context, username string) (int, error)
	Apply(ctx context.Context, username string, amount int, op ledger.Operation) (int, error)
}

// Collections interface for the reconciled in-memory views.
type Collections interface {
	Tasks() []models.Task
	Suggestions() []models.Suggestion
	Rewards() []models.Reward
	Purchases() []models.RewardPurchase
	Settings() *models.ShopSettings
	Stats() reconcile.Stats
	Refresh(ctx context.Context, table string) error
}

// StandingsService interface for the household leaderboard.
type StandingsService interface {
	GetStandings(ctx context.Context, period, metric string, limit int) ([]leaderboard.Entry, error)
	GetUserRank(ctx context.Context, username, period, metric string) (int, error)
}

// ActivityService interface for the activity feed.
type ActivityService interface {
	ListRecent(ctx context.Context, limit int) ([]models.ActivityEntry, error)
}

// InvoiceService interface for the cost-tracker export.
type InvoiceService interface {
	ListInvoices(ctx context.Context) ([]models.Task, error)
}

// Handler handles chore board API requests.
type Handler struct {
	ledgerService LedgerService
	shopService   ShopService
	sessions      SessionService
	points        PointsService
	collections   Collections
	standings     StandingsService
	activity      ActivityService
	invoices      InvoiceService
	activityCap   int
	log           *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	ledgerService *ledger.Service,
	shopService *shop.Service,
	sessions *auth.Manager,
	points *ledger.Accumulator,
	collections *reconcile.Reconciler,
	standings *leaderboard.Service,
	activity *repository.ActivityRepository,
	invoices *repository.TaskRepository,
	activityCap int,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(ledgerService, shopService, sessions, points, collections, standings, activity, invoices, activityCap, log)
}

// NewHandlerWithInterfaces creates a new API handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	ledgerService LedgerService,
	shopService ShopService,
	sessions SessionService,
	points PointsService,
	collections Collections,
	standings StandingsService,
	activity ActivityService,
	invoices InvoiceService,
	activityCap int,
	log *logger.Logger,
) *Handler {
	return &Handler{
		ledgerService: ledgerService,
		shopService:   shopService,
		sessions:      sessions,
		points:        points,
		collections:   collections,
		standings:     standings,
		activity:      activity,
		invoices:      invoices,
		activityCap:   activityCap,
		log:           log,
	}
}

// Helper functions

const actorKey = "actor"

// actorFrom returns the authenticated actor stored by the session middleware.
func actorFrom(c *gin.Context) auth.Actor {
	value, _ := c.Get(actorKey)
	actor, _ := value.(auth.Actor)
	return actor
}

// handleError maps service errors onto HTTP statuses.
func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrPermissionDenied):
		h.errorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrValidation):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientPoints),
		errors.Is(err, ledger.ErrAppealWindowClosed),
		errors.Is(err, ledger.ErrConflict):
		h.errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		h.errorResponse(c, http.StatusNotFound, "Not found")
	case errors.Is(err, reconcile.ErrCooldown):
		h.errorResponse(c, http.StatusTooManyRequests, "Refresh cooldown active, try again shortly")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrSessionExpired):
		h.errorResponse(c, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		h.errorResponse(c, http.StatusInternalServerError, "Operation failed, please retry")
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

// parseDate parses an optional RFC3339 timestamp from a request field.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
