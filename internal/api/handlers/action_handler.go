package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/api/middleware"
	"github.com/Wikid82/aegis/internal/models"
	"github.com/Wikid82/aegis/internal/services"
)

// ActionHandler exposes the action lifecycle over HTTP.
type ActionHandler struct {
	actions *services.ActionService
	stats   *services.StatisticsService
	catalog *actions.Catalog
}

func NewActionHandler(svc *services.ActionService, stats *services.StatisticsService, catalog *actions.Catalog) *ActionHandler {
	return &ActionHandler{actions: svc, stats: stats, catalog: catalog}
}

type SuggestRequest struct {
	ConversationID string            `json:"conversation_id" binding:"required"`
	ChatMessageID  string            `json:"chat_message_id" binding:"required"`
	Type           models.ActionType `json:"type" binding:"required"`
	ActionData     json.RawMessage   `json:"action_data"`
}

type RollbackRequest struct {
	Reason string `json:"reason"`
}

// statusFor maps action errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, actions.ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, actions.ErrUnknownActionType),
		errors.Is(err, actions.ErrInvalidSuggestion),
		errors.Is(err, actions.ErrInvalidActionData):
		return http.StatusBadRequest
	case errors.Is(err, actions.ErrInvalidTransition),
		errors.Is(err, actions.ErrNotReversible),
		errors.Is(err, actions.ErrUndoWindowExpired):
		return http.StatusConflict
	case errors.Is(err, actions.ErrEffectorFailure),
		errors.Is(err, actions.ErrCompensatorFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err and, when the record exists, its current state so
// the caller always sees the true status.
func respondError(c *gin.Context, err error, rec *models.ActionExecution) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		middleware.GetRequestLogger(c).WithError(err).Error("Action request failed")
	}
	body := gin.H{"error": err.Error()}
	if rec != nil {
		body["action"] = rec
	}
	c.JSON(status, body)
}

func (h *ActionHandler) Suggest(c *gin.Context) {
	var req SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.actions.Suggest(c.Request.Context(), req.ConversationID, req.ChatMessageID, req.Type, req.ActionData)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *ActionHandler) Get(c *gin.Context) {
	rec, err := h.actions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ActionHandler) Execute(c *gin.Context) {
	rec, err := h.actions.Execute(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		respondError(c, err, rec)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ActionHandler) Rollback(c *gin.Context) {
	var req RollbackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	rec, err := h.actions.Rollback(c.Request.Context(), c.Param("id"), middleware.Actor(c), req.Reason)
	if err != nil {
		respondError(c, err, rec)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ActionHandler) CanRollback(c *gin.Context) {
	elig, err := h.actions.CanRollback(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_rollback": elig.OK, "reason": elig.Reason})
}

func (h *ActionHandler) ListPending(c *gin.Context) {
	list, err := h.actions.ListPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ActionHandler) ListHistory(c *gin.Context) {
	list, err := h.actions.ListHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ActionHandler) Statistics(c *gin.Context) {
	stats, err := h.stats.Statistics()
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type actionTypeResponse struct {
	Type              models.ActionType `json:"type"`
	Description       string            `json:"description"`
	UndoWindow        string            `json:"undo_window"`
	UndoWindowSeconds int64             `json:"undo_window_seconds"`
	Reversible        bool              `json:"reversible"`
}

func (h *ActionHandler) ActionTypes(c *gin.Context) {
	defs := h.catalog.Definitions()
	out := make([]actionTypeResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, actionTypeResponse{
			Type:              def.Type,
			Description:       def.Description,
			UndoWindow:        actions.HumanDuration(def.UndoWindow),
			UndoWindowSeconds: int64(def.UndoWindow.Seconds()),
			Reversible:        def.Reversible,
		})
	}
	c.JSON(http.StatusOK, out)
}
