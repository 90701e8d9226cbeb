package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rstudio-ai-chat/internal/auth"
	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/logging"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	Model          string `json:"model"`
}

// handleChat runs one chat turn: validates input, delegates to the
// orchestrator, and returns the assistant reply. Provider failures
// still return 200 with the synthetic error reply so the client keeps
// a consistent history.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	lic := auth.LicenseFrom(c)

	result, err := s.orchestrator.Turn(c.Request.Context(), chat.TurnRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Model:          req.Model,
	}, lic)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			errorResponse(c, http.StatusBadRequest, "Message is required")
			return
		}
		logging.FromContext(c.Request.Context()).WithError(err).Error("Chat turn failed")
		errorResponse(c, http.StatusInternalServerError, "Failed to process message")
		return
	}

	logging.ConversationContext(result.ConversationID, req.Model).
		Debug("Chat turn completed", "upstreamFailed", result.UpstreamFailed)

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        result.Message,
		"conversationId": result.ConversationID,
	})
}

// handleListModels returns the free model catalog
func (s *Server) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"models":       chat.FreeModels,
		"defaultModel": chat.DefaultModel,
	})
}
