// Package shop implements the reward catalog, the purchase decision
// procedure, and instant-spend accounting.
package shop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/ledger"
	"github.com/hholt/choreboard/internal/metrics"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/internal/repository"
	"github.com/hholt/choreboard/pkg/logger"
)

// RewardStore is the catalog persistence the shop needs.
type RewardStore interface {
	Create(ctx context.Context, reward *models.Reward) error
	GetByID(ctx context.Context, id uint) (*models.Reward, error)
	Update(ctx context.Context, reward *models.Reward) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, includeArchived bool) ([]models.Reward, error)
}

// PurchaseStore is the transaction-record persistence the shop needs.
type PurchaseStore interface {
	Create(ctx context.Context, purchase *models.RewardPurchase) error
	GetByID(ctx context.Context, id uint) (*models.RewardPurchase, error)
	Update(ctx context.Context, purchase *models.RewardPurchase) error
	List(ctx context.Context, username, status string) ([]models.RewardPurchase, error)
	CountByReward(ctx context.Context, rewardID uint) (int64, error)
}

// SettingsStore is the singleton settings persistence.
type SettingsStore interface {
	Get(ctx context.Context, defaults models.ShopSettings) (*models.ShopSettings, error)
	Update(ctx context.Context, settings *models.ShopSettings) error
}

// Service handles reward CRUD and the purchase lifecycle.
type Service struct {
	rewards   RewardStore
	purchases PurchaseStore
	settings  SettingsStore
	points    ledger.PointsApplier
	authz     ledger.Authorizer
	defaults  models.ShopSettings
	log       *logger.Logger
}

// NewService creates a new shop service.
func NewService(
	rewards *repository.RewardRepository,
	purchases *repository.PurchaseRepository,
	settings *repository.SettingsRepository,
	points *ledger.Accumulator,
	authz ledger.Authorizer,
	defaults models.ShopSettings,
	log *logger.Logger,
) *Service {
	return &Service{
		rewards:   rewards,
		purchases: purchases,
		settings:  settings,
		points:    points,
		authz:     authz,
		defaults:  defaults,
		log:       log,
	}
}

// NewServiceWithInterfaces creates a shop service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	rewards RewardStore,
	purchases PurchaseStore,
	settings SettingsStore,
	points ledger.PointsApplier,
	authz ledger.Authorizer,
	defaults models.ShopSettings,
	log *logger.Logger,
) *Service {
	return &Service{
		rewards:   rewards,
		purchases: purchases,
		settings:  settings,
		points:    points,
		authz:     authz,
		defaults:  defaults,
		log:       log,
	}
}

// RewardInput carries the editable fields of a catalog item.
type RewardInput struct {
	Title       string
	Description string
	Cost        int
	Type        string
}

func (in *RewardInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ledger.ErrValidation)
	}
	if in.Cost <= 0 {
		return fmt.Errorf("%w: cost must be positive", ledger.ErrValidation)
	}
	switch in.Type {
	case models.RewardTypeInstant, models.RewardTypeAuthorized:
	default:
		return fmt.Errorf("%w: invalid reward type %q", ledger.ErrValidation, in.Type)
	}
	return nil
}

// CreateReward adds a catalog item.
func (s *Service) CreateReward(ctx context.Context, actor auth.Actor, in RewardInput) (*models.Reward, error) {
	if !s.authz.Can(actor, auth.CapRewardManage) {
		return nil, fmt.Errorf("%w: %s may not manage rewards", ledger.ErrPermissionDenied, actor.Role)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	reward := &models.Reward{
		Title:       in.Title,
		Description: in.Description,
		Cost:        in.Cost,
		Type:        in.Type,
	}
	if err := s.rewards.Create(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// UpdateReward edits a catalog item. Past purchases keep their
// snapshotted cost and title.
func (s *Service) UpdateReward(ctx context.Context, actor auth.Actor, id uint, in RewardInput) (*models.Reward, error) {
	if !s.authz.Can(actor, auth.CapRewardManage) {
		return nil, fmt.Errorf("%w: %s may not manage rewards", ledger.ErrPermissionDenied, actor.Role)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	reward, err := s.rewards.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	reward.Title = in.Title
	reward.Description = in.Description
	reward.Cost = in.Cost
	reward.Type = in.Type
	if err := s.rewards.Update(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// DeleteReward removes a catalog item. A reward referenced by
// purchase history is archived instead of deleted so history never
// dangles.
func (s *Service) DeleteReward(ctx context.Context, actor auth.Actor, id uint) error {
	if !s.authz.Can(actor, auth.CapRewardManage) {
		return fmt.Errorf("%w: %s may not manage rewards", ledger.ErrPermissionDenied, actor.Role)
	}

	count, err := s.purchases.CountByReward(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		reward, err := s.rewards.GetByID(ctx, id)
		if err != nil {
			return err
		}
		reward.Archived = true
		return s.rewards.Update(ctx, reward)
	}
	return s.rewards.Delete(ctx, id)
}

// ListRewards lists catalog items ordered by title.
func (s *Service) ListRewards(ctx context.Context, includeArchived bool) ([]models.Reward, error) {
	return s.rewards.List(ctx, includeArchived)
}

// Purchase executes the purchase decision procedure. The buyer is
// debited before the record is written; a failed write refunds the
// debit so no points are silently lost.
func (s *Service) Purchase(ctx context.Context, actor auth.Actor, rewardID uint) (*models.RewardPurchase, error) {
	if !s.authz.Can(actor, auth.CapPurchaseBuy) {
		return nil, fmt.Errorf("%w: %s may not purchase rewards", ledger.ErrPermissionDenied, actor.Role)
	}

	reward, err := s.rewards.GetByID(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if reward.Archived {
		return nil, fmt.Errorf("%w: reward %d is no longer available", ledger.ErrConflict, reward.ID)
	}

	balance, err := s.points.Balance(ctx, actor.Username)
	if err != nil {
		return nil, err
	}
	if balance < reward.Cost {
		return nil, fmt.Errorf("%w: need %d points, have %d", ledger.ErrInsufficientPoints, reward.Cost, balance)
	}

	now := time.Now()
	settings, err := s.currentSettings(ctx, now)
	if err != nil {
		return nil, err
	}

	needsAuth := reward.Type == models.RewardTypeAuthorized
	if !needsAuth && settings.RequiresAuthorizationAfterLimit &&
		settings.CurrentInstantSpend+reward.Cost > settings.InstantPurchaseLimit {
		needsAuth = true
	}

	status := models.PurchaseStatusPurchased
	if needsAuth {
		status = models.PurchaseStatusPendingAuthorization
	}

	// Debit first. The purchase is provisionally debited even while
	// pending; the refund below is the compensating action.
	if _, err := s.points.Apply(ctx, actor.Username, reward.Cost, ledger.OpSubtract); err != nil {
		return nil, err
	}

	purchase := &models.RewardPurchase{
		Username:     actor.Username,
		RewardID:     reward.ID,
		RewardTitle:  reward.Title,
		PurchaseCost: reward.Cost,
		PurchaseDate: now,
		Status:       status,
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		if _, refundErr := s.points.Apply(ctx, actor.Username, reward.Cost, ledger.OpAdd); refundErr != nil {
			s.log.Error().Err(refundErr).Str("username", actor.Username).Int("cost", reward.Cost).
				Msg("Refund after failed purchase write also failed")
		} else {
			metrics.RecordPurchaseRefund()
		}
		return nil, fmt.Errorf("purchase aborted: %w", err)
	}

	if !needsAuth && reward.Type == models.RewardTypeInstant {
		s.addInstantSpend(ctx, settings, reward.Cost)
	}

	metrics.RecordPurchase(status)
	s.log.Info().Uint("purchase_id", purchase.ID).Str("username", actor.Username).
		Str("status", status).Int("cost", reward.Cost).Msg("Reward purchased")
	return purchase, nil
}

// Authorize finalizes a pending purchase. The buyer was already
// debited, so there is no further points effect; an instant purchase
// held back by the spend cap now counts against it.
func (s *Service) Authorize(ctx context.Context, actor auth.Actor, purchaseID uint) (*models.RewardPurchase, error) {
	return s.reviewPurchase(ctx, actor, purchaseID, true)
}

// Deny rejects a pending purchase and refunds the snapshotted cost.
func (s *Service) Deny(ctx context.Context, actor auth.Actor, purchaseID uint) (*models.RewardPurchase, error) {
	return s.reviewPurchase(ctx, actor, purchaseID, false)
}

func (s *Service) reviewPurchase(ctx context.Context, actor auth.Actor, purchaseID uint, approve bool) (*models.RewardPurchase, error) {
	if !s.authz.Can(actor, auth.CapPurchaseAuthorize) {
		return nil, fmt.Errorf("%w: %s may not authorize purchases", ledger.ErrPermissionDenied, actor.Role)
	}

	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.Status != models.PurchaseStatusPendingAuthorization {
		return nil, fmt.Errorf("%w: purchase %d is %s, expected pending_authorization", ledger.ErrConflict, purchase.ID, purchase.Status)
	}

	now := time.Now()
	if approve {
		purchase.Status = models.PurchaseStatusAuthorized
	} else {
		purchase.Status = models.PurchaseStatusDenied
	}
	purchase.ReviewedBy = actor.Username
	purchase.ReviewedAt = &now
	if err := s.purchases.Update(ctx, purchase); err != nil {
		return nil, err
	}

	if approve {
		if purchase.Reward != nil && purchase.Reward.Type == models.RewardTypeInstant {
			settings, err := s.currentSettings(ctx, now)
			if err != nil {
				s.log.Warn().Err(err).Uint("purchase_id", purchase.ID).Msg("Could not account authorized spend")
			} else {
				s.addInstantSpend(ctx, settings, purchase.PurchaseCost)
			}
		}
	} else {
		if _, err := s.points.Apply(ctx, purchase.Username, purchase.PurchaseCost, ledger.OpAdd); err != nil {
			return nil, fmt.Errorf("purchase denied but refund failed: %w", err)
		}
	}

	metrics.RecordPurchase(purchase.Status)
	return purchase, nil
}

// ListPurchases lists purchases with optional filters, newest first.
func (s *Service) ListPurchases(ctx context.Context, username, status string) ([]models.RewardPurchase, error) {
	return s.purchases.List(ctx, username, status)
}

// GetSettings returns the settings row, applying a due automatic
// spend reset first.
func (s *Service) GetSettings(ctx context.Context) (*models.ShopSettings, error) {
	return s.currentSettings(ctx, time.Now())
}

// SettingsInput carries the editable shop settings.
type SettingsInput struct {
	InstantPurchaseLimit            int
	ResetDurationDays               int
	RequiresAuthorizationAfterLimit bool
}

// UpdateSettings edits the settings singleton.
func (s *Service) UpdateSettings(ctx context.Context, actor auth.Actor, in SettingsInput) (*models.ShopSettings, error) {
	if !s.authz.Can(actor, auth.CapSettingsManage) {
		return nil, fmt.Errorf("%w: %s may not manage settings", ledger.ErrPermissionDenied, actor.Role)
	}
	if in.InstantPurchaseLimit < 0 || in.ResetDurationDays <= 0 {
		return nil, fmt.Errorf("%w: invalid shop settings", ledger.ErrValidation)
	}

	settings, err := s.settings.Get(ctx, s.defaults)
	if err != nil {
		return nil, err
	}
	settings.InstantPurchaseLimit = in.InstantPurchaseLimit
	settings.ResetDurationDays = in.ResetDurationDays
	settings.RequiresAuthorizationAfterLimit = in.RequiresAuthorizationAfterLimit
	if err := s.settings.Update(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// ResetSpend zeroes the instant-spend counter on steward request.
func (s *Service) ResetSpend(ctx context.Context, actor auth.Actor) (*models.ShopSettings, error) {
	if !s.authz.Can(actor, auth.CapSettingsManage) {
		return nil, fmt.Errorf("%w: %s may not manage settings", ledger.ErrPermissionDenied, actor.Role)
	}
	settings, err := s.settings.Get(ctx, s.defaults)
	if err != nil {
		return nil, err
	}
	s.resetSpend(ctx, settings, time.Now())
	return settings, nil
}

// MaybeResetSpend applies the automatic spend reset if the reset
// window has elapsed. The scheduler calls this periodically.
func (s *Service) MaybeResetSpend(ctx context.Context, now time.Time) (bool, error) {
	settings, err := s.settings.Get(ctx, s.defaults)
	if err != nil {
		return false, err
	}
	if !settings.ResetDue(now) {
		return false, nil
	}
	s.resetSpend(ctx, settings, now)
	return true, nil
}

// currentSettings loads settings and applies a due automatic reset.
func (s *Service) currentSettings(ctx context.Context, now time.Time) (*models.ShopSettings, error) {
	settings, err := s.settings.Get(ctx, s.defaults)
	if err != nil {
		return nil, err
	}
	if settings.ResetDue(now) {
		s.resetSpend(ctx, settings, now)
	}
	return settings, nil
}

func (s *Service) resetSpend(ctx context.Context, settings *models.ShopSettings, now time.Time) {
	settings.CurrentInstantSpend = 0
	settings.LastResetAt = now
	if err := s.settings.Update(ctx, settings); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist spend reset")
	} else {
		s.log.Info().Time("reset_at", now).Msg("Instant spend reset")
	}
}

// addInstantSpend increments the running instant-spend total. Spend
// accounting drift is tolerated; a failure here never unwinds the
// purchase itself.
func (s *Service) addInstantSpend(ctx context.Context, settings *models.ShopSettings, cost int) {
	settings.CurrentInstantSpend += cost
	if err := s.settings.Update(ctx, settings); err != nil {
		s.log.Warn().Err(err).Int("cost", cost).Msg("Failed to account instant spend")
	}
}
