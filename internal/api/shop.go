package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/internal/shop"
)

type rewardRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Cost        int    `json:"cost" binding:"required"`
	Type        string `json:"type" binding:"required"`
}

// CreateReward adds a reward to the catalog.
// POST /api/v1/rewards.
func (h *Handler) CreateReward(c *gin.Context) {
	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	reward, err := h.shopService.CreateReward(ctx, actorFrom(c), shop.RewardInput{
		Title:       req.Title,
		Description: req.Description,
		Cost:        req.Cost,
		Type:        req.Type,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Uint("reward_id", reward.ID).
		Str("title", reward.Title).
		Int("cost", reward.Cost).
		Msg("Created reward")

	c.JSON(http.StatusCreated, gin.H{"reward": reward})
}

// UpdateReward edits a catalog reward.
// PUT /api/v1/rewards/:id.
func (h *Handler) UpdateReward(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	reward, err := h.shopService.UpdateReward(ctx, actorFrom(c), id, shop.RewardInput{
		Title:       req.Title,
		Description: req.Description,
		Cost:        req.Cost,
		Type:        req.Type,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("reward_id", id).Msg("Updated reward")
	c.JSON(http.StatusOK, gin.H{"reward": reward})
}

// DeleteReward removes a reward, archiving it instead when purchase
// history references it.
// DELETE /api/v1/rewards/:id.
func (h *Handler) DeleteReward(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	if err := h.shopService.DeleteReward(ctx, actorFrom(c), id); err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("reward_id", id).Msg("Deleted reward")
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// ListRewards returns the reward catalog.
// GET /api/v1/rewards?include_archived=true.
func (h *Handler) ListRewards(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "true"

	ctx := context.Background()
	rewards, err := h.shopService.ListRewards(ctx, includeArchived)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rewards":       rewards,
		"total_rewards": len(rewards),
		"generated_at":  time.Now().UTC(),
	})
}

type purchaseRequest struct {
	RewardID uint `json:"reward_id" binding:"required"`
}

// PurchaseReward buys a reward for the calling user.
// POST /api/v1/purchases.
func (h *Handler) PurchaseReward(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	purchase, err := h.shopService.Purchase(ctx, actorFrom(c), req.RewardID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Uint("purchase_id", purchase.ID).
		Str("username", purchase.Username).
		Str("reward", purchase.RewardTitle).
		Str("status", purchase.Status).
		Msg("Purchased reward")

	c.JSON(http.StatusCreated, gin.H{"purchase": purchase})
}

// AuthorizePurchase confirms a purchase awaiting authorization.
// POST /api/v1/purchases/:id/authorize.
func (h *Handler) AuthorizePurchase(c *gin.Context) {
	h.reviewPurchase(c, h.shopService.Authorize, "Authorized purchase")
}

// DenyPurchase declines a purchase awaiting authorization and refunds it.
// POST /api/v1/purchases/:id/deny.
func (h *Handler) DenyPurchase(c *gin.Context) {
	h.reviewPurchase(c, h.shopService.Deny, "Denied purchase")
}

func (h *Handler) reviewPurchase(c *gin.Context, fn func(context.Context, auth.Actor, uint) (*models.RewardPurchase, error), logMsg string) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	purchase, err := fn(ctx, actorFrom(c), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("purchase_id", id).Str("status", purchase.Status).Msg(logMsg)
	c.JSON(http.StatusOK, gin.H{"purchase": purchase})
}

// ListPurchases returns purchase history, optionally filtered.
// GET /api/v1/purchases?username=kid1&status=pending_authorization.
func (h *Handler) ListPurchases(c *gin.Context) {
	ctx := context.Background()
	purchases, err := h.shopService.ListPurchases(ctx, c.Query("username"), c.Query("status"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purchases":       purchases,
		"total_purchases": len(purchases),
		"generated_at":    time.Now().UTC(),
	})
}

// GetSettings returns the shop settings singleton.
// GET /api/v1/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	ctx := context.Background()
	settings, err := h.shopService.GetSettings(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

type settingsRequest struct {
	InstantPurchaseLimit            int  `json:"instant_purchase_limit"`
	ResetDurationDays               int  `json:"reset_duration_days"`
	RequiresAuthorizationAfterLimit bool `json:"requires_authorization_after_limit"`
}

// UpdateSettings edits the shop settings singleton.
// PUT /api/v1/settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	settings, err := h.shopService.UpdateSettings(ctx, actorFrom(c), shop.SettingsInput{
		InstantPurchaseLimit:            req.InstantPurchaseLimit,
		ResetDurationDays:               req.ResetDurationDays,
		RequiresAuthorizationAfterLimit: req.RequiresAuthorizationAfterLimit,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Int("instant_purchase_limit", settings.InstantPurchaseLimit).
		Int("reset_duration_days", settings.ResetDurationDays).
		Msg("Updated shop settings")

	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// ResetSpend zeroes the instant-purchase spend counter.
// POST /api/v1/settings/reset-spend.
func (h *Handler) ResetSpend(c *gin.Context) {
	ctx := context.Background()
	settings, err := h.shopService.ResetSpend(ctx, actorFrom(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Msg("Reset instant-purchase spend")
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}
