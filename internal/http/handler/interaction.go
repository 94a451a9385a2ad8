package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/internal/http/dto"
	"github.com/japaniel/glossary/internal/http/middleware"
	"github.com/japaniel/glossary/pkg/telemetry"
)

type InteractionHandler struct {
	recorder Recorder
	terms    TermResolver
}

func NewInteractionHandler(recorder Recorder, terms TermResolver) *InteractionHandler {
	return &InteractionHandler{recorder: recorder, terms: terms}
}

// Track accepts an interaction and records it in the background. The response
// never waits for the store.
func (h *InteractionHandler) Track(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid track request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	typ, err := telemetry.ParseInteractionType(req.InteractionType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if typ == telemetry.InteractionQuizAttempt {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quiz attempts are submitted to the quiz endpoint"})
		return
	}

	sessionID := middleware.SessionID(c)
	_, found := h.terms.Lookup(req.Term)
	h.recorder.RecordInteraction(ctx, req.Term, typ, sessionID, middleware.UserID(c), req.Metadata)

	resp := dto.TrackResponse{
		Success:   found,
		Tracked:   found || typ == telemetry.InteractionSearch,
		SessionID: sessionID,
	}
	if !found {
		resp.Message = "term not found"
	}
	c.JSON(http.StatusAccepted, resp)
}
