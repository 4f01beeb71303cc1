package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/login", h.Login)

	authed := v1.Group("")
	authed.Use(h.sessionMiddleware())
	{
		authed.POST("/logout", h.Logout)

		authed.GET("/tasks", h.ListTasks)
		authed.POST("/tasks", h.CreateTask)
		authed.GET("/tasks/:id", h.GetTask)
		authed.DELETE("/tasks/:id", h.DeleteTask)
		authed.POST("/tasks/:id/checkoff", h.CheckOffTask)
		authed.POST("/tasks/:id/approve", h.ApproveTask)
		authed.POST("/tasks/:id/reject", h.RejectTask)

		authed.POST("/demerits", h.IssueDemerit)
		authed.POST("/demerits/:id/accept", h.AcceptDemerit)
		authed.POST("/demerits/:id/appeal", h.FileAppeal)
		authed.POST("/demerits/:id/appeal/review", h.ReviewAppeal)

		authed.GET("/suggestions", h.ListSuggestions)
		authed.POST("/suggestions", h.CreateSuggestion)
		authed.POST("/suggestions/:id/review", h.ReviewSuggestion)

		authed.GET("/rewards", h.ListRewards)
		authed.POST("/rewards", h.CreateReward)
		authed.PUT("/rewards/:id", h.UpdateReward)
		authed.DELETE("/rewards/:id", h.DeleteReward)

		authed.GET("/purchases", h.ListPurchases)
		authed.POST("/purchases", h.PurchaseReward)
		authed.POST("/purchases/:id/authorize", h.AuthorizePurchase)
		authed.POST("/purchases/:id/deny", h.DenyPurchase)

		authed.GET("/points/:username", h.GetPoints)
		authed.POST("/points/:username/adjust", h.AdjustPoints)

		authed.GET("/settings", h.GetSettings)
		authed.PUT("/settings", h.UpdateSettings)
		authed.POST("/settings/reset-spend", h.ResetSpend)

		authed.GET("/leaderboard", h.GetLeaderboard)
		authed.GET("/leaderboard/:username/rank", h.GetUserRank)

		authed.GET("/activity", h.GetActivity)
		authed.GET("/board", h.GetBoard)
		authed.POST("/board/refresh/:table", h.RefreshCollection)
		authed.GET("/invoices/export", h.ExportInvoices)
	}

	return router
}

// sessionMiddleware resolves the bearer token and stores the actor in
// the request context. Requests without a valid session are rejected.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.errorResponse(c, http.StatusUnauthorized, "Missing bearer token")
			c.Abort()
			return
		}

		actor, err := h.sessions.Resolve(token)
		if err != nil {
			h.errorResponse(c, http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// Health returns liveness status.
// GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
