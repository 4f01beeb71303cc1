package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hholt/choreboard/internal/changefeed"
)

// GetBoard returns the reconciled in-memory view of every collection
// plus derived counters, the same snapshot a board client renders.
// GET /api/v1/board.
func (h *Handler) GetBoard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tasks":        h.collections.Tasks(),
		"suggestions":  h.collections.Suggestions(),
		"rewards":      h.collections.Rewards(),
		"purchases":    h.collections.Purchases(),
		"settings":     h.collections.Settings(),
		"stats":        h.collections.Stats(),
		"generated_at": time.Now().UTC(),
	})
}

// RefreshCollection forces a re-fetch of one collection, subject to
// the refresh cooldown.
// POST /api/v1/board/refresh/:table.
func (h *Handler) RefreshCollection(c *gin.Context) {
	table := c.Param("table")
	switch table {
	case changefeed.TableTasks, changefeed.TableSuggestions, changefeed.TableRewards,
		changefeed.TablePurchases, changefeed.TableSettings:
	default:
		h.errorResponse(c, http.StatusBadRequest, "unknown collection: "+table)
		return
	}

	ctx := context.Background()
	if err := h.collections.Refresh(ctx, table); err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Str("table", table).Msg("Refreshed collection")
	c.JSON(http.StatusOK, gin.H{"refreshed": table})
}
