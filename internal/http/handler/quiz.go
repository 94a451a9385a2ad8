package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/internal/http/dto"
	"github.com/japaniel/glossary/internal/http/middleware"
	"github.com/japaniel/glossary/pkg/telemetry"
)

type QuizHandler struct {
	recorder  Recorder
	terms     TermResolver
	analytics Analytics
}

func NewQuizHandler(recorder Recorder, terms TermResolver, analytics Analytics) *QuizHandler {
	return &QuizHandler{recorder: recorder, terms: terms, analytics: analytics}
}

func (h *QuizHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.QuizResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid quiz result", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if _, ok := h.terms.ByID(req.TermID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown term"})
		return
	}

	h.recorder.RecordQuizAttempt(ctx, telemetry.QuizAttempt{
		TermID:         req.TermID,
		UserID:         userID,
		SessionID:      middleware.SessionID(c),
		Correct:        *req.Correct,
		ResponseTimeMs: *req.ResponseTimeMs,
		Difficulty:     req.Difficulty,
	})
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (h *QuizHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	stats, err := h.analytics.UserQuizStats(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to compute quiz stats", "error", err)
		abortAggregation(c, err, "quiz stats unavailable")
		return
	}
	c.JSON(http.StatusOK, dto.QuizStatsResponse{
		Stats:         stats,
		RecentResults: stats.RecentAttempts,
		HasQuizToday:  stats.PracticedToday,
	})
}
