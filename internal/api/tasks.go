package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/ledger"
	"github.com/hholt/choreboard/internal/models"
)

type createTaskRequest struct {
	Description    string `json:"description" binding:"required"`
	Type           string `json:"type"`
	Points         int    `json:"points"`
	PenaltyPoints  int    `json:"penalty_points"`
	DueDate        string `json:"due_date"`
	IsRepeating    bool   `json:"is_repeating"`
	RepeatInterval string `json:"repeat_interval"`
	AssignedTo     string `json:"assigned_to" binding:"required"`
}

// CreateTask creates a new task.
// POST /api/v1/tasks.
func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid due_date: %s", req.DueDate))
		return
	}

	ctx := context.Background()
	task, err := h.ledgerService.CreateTask(ctx, actorFrom(c), ledger.CreateTaskInput{
		Description:    req.Description,
		Type:           req.Type,
		Points:         req.Points,
		PenaltyPoints:  req.PenaltyPoints,
		DueDate:        dueDate,
		IsRepeating:    req.IsRepeating,
		RepeatInterval: req.RepeatInterval,
		AssignedTo:     req.AssignedTo,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Uint("task_id", task.ID).
		Str("type", task.Type).
		Str("assigned_to", task.AssignedTo).
		Msg("Created task")

	c.JSON(http.StatusCreated, gin.H{"task": task})
}

// ListTasks returns tasks matching the optional filters.
// GET /api/v1/tasks?status=todo&type=regular&assigned_to=kid1.
func (h *Handler) ListTasks(c *gin.Context) {
	ctx := context.Background()
	tasks, err := h.ledgerService.ListTasks(ctx, c.Query("status"), c.Query("type"), c.Query("assigned_to"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":        tasks,
		"total_tasks":  len(tasks),
		"generated_at": time.Now().UTC(),
	})
}

// GetTask returns a single task.
// GET /api/v1/tasks/:id.
func (h *Handler) GetTask(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	task, err := h.ledgerService.GetTask(ctx, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": task})
}

// DeleteTask removes a task.
// DELETE /api/v1/tasks/:id.
func (h *Handler) DeleteTask(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	if err := h.ledgerService.DeleteTask(ctx, actorFrom(c), id); err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("task_id", id).Msg("Deleted task")
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// CheckOffTask marks a task done by its assignee, moving it to
// pending approval.
// POST /api/v1/tasks/:id/checkoff.
func (h *Handler) CheckOffTask(c *gin.Context) {
	h.taskTransition(c, h.ledgerService.CheckOff, "Checked off task")
}

// ApproveTask confirms a pending task and awards its points.
// POST /api/v1/tasks/:id/approve.
func (h *Handler) ApproveTask(c *gin.Context) {
	h.taskTransition(c, h.ledgerService.Approve, "Approved task")
}

// RejectTask sends a pending task back and deducts its penalty.
// POST /api/v1/tasks/:id/reject.
func (h *Handler) RejectTask(c *gin.Context) {
	h.taskTransition(c, h.ledgerService.Reject, "Rejected task")
}

type issueDemeritRequest struct {
	Description   string `json:"description" binding:"required"`
	PenaltyPoints int    `json:"penalty_points"`
	AssignedTo    string `json:"assigned_to" binding:"required"`
}

// IssueDemerit creates a demerit and deducts its penalty immediately.
// POST /api/v1/demerits.
func (h *Handler) IssueDemerit(c *gin.Context) {
	var req issueDemeritRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	task, err := h.ledgerService.IssueDemerit(ctx, actorFrom(c), ledger.IssueDemeritInput{
		Description:   req.Description,
		PenaltyPoints: req.PenaltyPoints,
		AssignedTo:    req.AssignedTo,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Uint("task_id", task.ID).
		Str("assigned_to", task.AssignedTo).
		Int("penalty", task.PenaltyPoints).
		Msg("Issued demerit")

	c.JSON(http.StatusCreated, gin.H{"demerit": task})
}

// AcceptDemerit acknowledges a demerit, closing it.
// POST /api/v1/demerits/:id/accept.
func (h *Handler) AcceptDemerit(c *gin.Context) {
	h.taskTransition(c, h.ledgerService.AcceptDemerit, "Accepted demerit")
}

type appealRequest struct {
	Text string `json:"text" binding:"required"`
}

// FileAppeal contests a demerit before it has been accepted.
// POST /api/v1/demerits/:id/appeal.
func (h *Handler) FileAppeal(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req appealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	task, err := h.ledgerService.FileAppeal(ctx, actorFrom(c), id, req.Text)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("task_id", id).Msg("Filed appeal")
	c.JSON(http.StatusOK, gin.H{"demerit": task})
}

type reviewRequest struct {
	Approve bool `json:"approve"`
}

// ReviewAppeal settles an appeal: approval restores the penalty,
// denial doubles it.
// POST /api/v1/demerits/:id/appeal/review.
func (h *Handler) ReviewAppeal(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	task, err := h.ledgerService.ReviewAppeal(ctx, actorFrom(c), id, req.Approve)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Uint("task_id", id).
		Bool("approved", req.Approve).
		Msg("Reviewed appeal")

	c.JSON(http.StatusOK, gin.H{"demerit": task})
}

type createSuggestionRequest struct {
	Description      string `json:"description" binding:"required"`
	Justification    string `json:"justification"`
	SuggestedPoints  int    `json:"suggested_points"`
	SuggestedDueDate string `json:"suggested_due_date"`
}

// CreateSuggestion files a proposed task for review.
// POST /api/v1/suggestions.
func (h *Handler) CreateSuggestion(c *gin.Context) {
	var req createSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	dueDate, err := parseDate(req.SuggestedDueDate)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid suggested_due_date: %s", req.SuggestedDueDate))
		return
	}

	ctx := context.Background()
	suggestion, err := h.ledgerService.CreateSuggestion(ctx, actorFrom(c), ledger.CreateSuggestionInput{
		Description:      req.Description,
		Justification:    req.Justification,
		SuggestedPoints:  req.SuggestedPoints,
		SuggestedDueDate: dueDate,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("suggestion_id", suggestion.ID).Msg("Created suggestion")
	c.JSON(http.StatusCreated, gin.H{"suggestion": suggestion})
}

// ListSuggestions returns suggestions, optionally filtered by status.
// GET /api/v1/suggestions?status=pending.
func (h *Handler) ListSuggestions(c *gin.Context) {
	ctx := context.Background()
	suggestions, err := h.ledgerService.ListSuggestions(ctx, c.Query("status"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions":       suggestions,
		"total_suggestions": len(suggestions),
		"generated_at":      time.Now().UTC(),
	})
}

// ReviewSuggestion approves or rejects a suggestion. Approval spawns
// a real task assigned to the suggester.
// POST /api/v1/suggestions/:id/review.
func (h *Handler) ReviewSuggestion(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	suggestion, task, err := h.ledgerService.ReviewSuggestion(ctx, actorFrom(c), id, req.Approve)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Uint("suggestion_id", id).
		Bool("approved", req.Approve).
		Msg("Reviewed suggestion")

	response := gin.H{"suggestion": suggestion}
	if task != nil {
		response["task"] = task
	}
	c.JSON(http.StatusOK, response)
}

// taskTransition runs a single-task state transition handler.
func (h *Handler) taskTransition(c *gin.Context, fn func(context.Context, auth.Actor, uint) (*models.Task, error), logMsg string) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	task, err := fn(ctx, actorFrom(c), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("task_id", id).Str("status", task.Status).Msg(logMsg)
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// parseID extracts and validates the numeric ID from the URL parameter.
func parseID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ID: %s", idStr)
	}
	return uint(id), nil
}
