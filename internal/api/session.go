package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/ledger"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a user and returns a session token.
// POST /api/v1/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	token, actor, err := h.sessions.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Str("username", actor.Username).Str("role", actor.Role).Msg("User logged in")

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": actor.Username,
		"role":     actor.Role,
	})
}

// Logout invalidates the caller's session token.
// POST /api/v1/logout.
func (h *Handler) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, _ := strings.CutPrefix(header, "Bearer ")

	ctx := context.Background()
	h.sessions.Logout(ctx, token)

	h.log.Info().Str("username", actorFrom(c).Username).Msg("User logged out")
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

// GetPoints returns a user's current balance.
// GET /api/v1/points/:username.
func (h *Handler) GetPoints(c *gin.Context) {
	username := c.Param("username")

	ctx := context.Background()
	balance, err := h.points.Balance(ctx, username)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"points":   balance,
	})
}

type adjustPointsRequest struct {
	Amount    int    `json:"amount"`
	Operation string `json:"operation" binding:"required"` // 'add', 'subtract', 'set'
}

// AdjustPoints applies a manual balance mutation.
// POST /api/v1/points/:username/adjust.
func (h *Handler) AdjustPoints(c *gin.Context) {
	actor := actorFrom(c)
	if !h.sessions.Can(actor, auth.CapPointsAdjust) {
		h.errorResponse(c, http.StatusForbidden, fmt.Sprintf("%s may not adjust points", actor.Role))
		return
	}

	username := c.Param("username")
	var req adjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	balance, err := h.points.Apply(ctx, username, req.Amount, ledger.Operation(req.Operation))
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Str("username", username).
		Str("operation", req.Operation).
		Int("amount", req.Amount).
		Int("balance", balance).
		Msg("Adjusted points")

	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"points":   balance,
	})
}

// GetActivity returns the recent activity feed.
// GET /api/v1/activity?limit=20.
func (h *Handler) GetActivity(c *gin.Context) {
	limit := h.activityCap
	if raw := c.Query("limit"); raw != "" {
		parsed, err := parseLimit(raw, h.activityCap)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		limit = parsed
	}

	ctx := context.Background()
	entries, err := h.activity.ListRecent(ctx, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"activity":     entries,
		"total":        len(entries),
		"generated_at": time.Now().UTC(),
	})
}

// parseLimit validates a limit query parameter against a cap.
func parseLimit(raw string, maxLimit int) (int, error) {
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", raw)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}
