package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the household standings.
// GET /api/v1/leaderboard?period=month&metric=points_earned&limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	period := c.DefaultQuery("period", "month")
	metric := c.DefaultQuery("metric", "points_earned")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := parseLimit(raw, 100)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		limit = parsed
	}

	ctx := context.Background()
	standings, err := h.standings.GetStandings(ctx, period, metric, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":  standings,
		"period":       period,
		"metric":       metric,
		"total":        len(standings),
		"generated_at": time.Now().UTC(),
	})
}

// GetUserRank returns one member's rank.
// GET /api/v1/leaderboard/:username/rank?period=month&metric=points_earned.
func (h *Handler) GetUserRank(c *gin.Context) {
	username := c.Param("username")
	period := c.DefaultQuery("period", "month")
	metric := c.DefaultQuery("metric", "points_earned")

	ctx := context.Background()
	rank, err := h.standings.GetUserRank(ctx, username, period, metric)
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"period":   period,
		"metric":   metric,
		"rank":     rank,
	})
}
