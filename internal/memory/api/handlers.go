package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shimonpozd/astra-sub000/internal/memory/service"
	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

// Handler exposes the recall service over HTTP.
type Handler struct {
	svc *service.RecallService
	log *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *service.RecallService, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Recall handles POST /api/v1/memory/recall.
func (h *Handler) Recall(c *gin.Context) {
	var req service.RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.svc.Recall(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type storeRequest struct {
	Collection string              `json:"collection"`
	Items      []models.IngestItem `json:"items"`
}

// Store handles POST /api/v1/memory/store. Items are queued, not
// written synchronously; the response reports how many were accepted.
func (h *Handler) Store(c *gin.Context) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	queued, err := h.svc.Store(c.Request.Context(), req.Collection, req.Items)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "queued_items": queued})
}

// Context handles GET and POST /api/v1/graph/context.
func (h *Handler) Context(c *gin.Context) {
	sessionID := c.Query("session_id")
	query := c.Query("query")
	collection := c.Query("collection")
	if c.Request.Method == http.MethodPost {
		var body struct {
			SessionID  string `json:"session_id"`
			Query      string `json:"query"`
			Collection string `json:"collection"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			if body.SessionID != "" {
				sessionID = body.SessionID
			}
			if body.Query != "" {
				query = body.Query
			}
			if body.Collection != "" {
				collection = body.Collection
			}
		}
	}

	resp, err := h.svc.Context(c.Request.Context(), sessionID, query, collection)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DialogUpdate handles POST /api/v1/graph/dialog/update. The event is
// published for asynchronous application; 202 means accepted, not
// applied.
func (h *Handler) DialogUpdate(c *gin.Context) {
	var ev models.DialogEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := h.svc.DialogUpdate(c.Request.Context(), &ev); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

type tacticFilterRequest struct {
	SessionID string   `json:"session_id"`
	Tactics   []string `json:"tactics"`
}

// FilterTactics handles POST /api/v1/tactics/filter.
func (h *Handler) FilterTactics(c *gin.Context) {
	var req tacticFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	tactics, err := h.svc.FilterTactics(c.Request.Context(), req.SessionID, req.Tactics)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tactics": tactics})
}

type tacticMarkRequest struct {
	SessionID string `json:"session_id"`
	Tactic    string `json:"tactic"`
}

// MarkTactic handles POST /api/v1/tactics/mark.
func (h *Handler) MarkTactic(c *gin.Context) {
	var req tacticMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := h.svc.MarkTactic(c.Request.Context(), req.SessionID, req.Tactic); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Health handles GET /health. A degraded dependency does not fail the
// endpoint; the service keeps serving with whatever still works.
func (h *Handler) Health(c *gin.Context) {
	status, components := h.svc.Health(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": status, "components": components})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var rle *models.RateLimitError
	switch {
	case errors.As(err, &rle):
		c.Header("Retry-After", fmt.Sprintf("%d", int(rle.RetryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": rle.Reason})
	case errors.Is(err, models.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "upstream timeout"})
	case errors.Is(err, models.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backing store unavailable"})
	default:
		h.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "api", StatusCode: http.StatusInternalServerError}).
			Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
