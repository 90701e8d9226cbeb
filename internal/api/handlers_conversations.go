package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/events"
)

// handleListConversations returns all conversations, most recently
// updated first
func (s *Server) handleListConversations(c *gin.Context) {
	convs, err := s.convs.ListConversations(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list conversations", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list conversations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": convs,
	})
}

type newConversationRequest struct {
	Title string `json:"title"`
}

// handleNewConversation creates an empty conversation
func (s *Server) handleNewConversation(c *gin.Context) {
	var req newConversationRequest
	_ = c.ShouldBindJSON(&req)

	conv := chat.NewConversation(req.Title)
	if err := s.convs.PutConversation(c.Request.Context(), conv); err != nil {
		s.logger.Error("Failed to create conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": conv,
	})
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.convs.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("Failed to get conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to get conversation")
		return
	}
	if conv == nil {
		errorResponse(c, http.StatusNotFound, "Conversation not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": conv,
	})
}

// handleDeleteConversation removes a conversation; unknown ids get 404
func (s *Server) handleDeleteConversation(c *gin.Context) {
	id := c.Param("id")

	found, err := s.convs.DeleteConversation(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("Failed to delete conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	if !found {
		errorResponse(c, http.StatusNotFound, "Conversation not found")
		return
	}

	s.publishEvent(events.EventConversationDeleted, map[string]interface{}{"conversationId": id})

	successResponse(c, gin.H{"deleted": true})
}

type saveConversationRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// handleSaveConversation copies a live conversation into the user's
// saved set and records the id on the user
func (s *Server) handleSaveConversation(c *gin.Context) {
	var req saveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.ConversationID == "" {
		errorResponse(c, http.StatusBadRequest, "userId and conversationId are required")
		return
	}

	ctx := c.Request.Context()

	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		s.logger.Error("Failed to load user", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to save conversation")
		return
	}
	if user == nil {
		errorResponse(c, http.StatusNotFound, "User not found")
		return
	}

	conv, err := s.convs.GetConversation(ctx, req.ConversationID)
	if err != nil {
		s.logger.Error("Failed to load conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to save conversation")
		return
	}
	if conv == nil {
		errorResponse(c, http.StatusNotFound, "Conversation not found")
		return
	}

	if err := s.saved.SaveConversation(ctx, req.UserID, conv); err != nil {
		s.logger.Error("Failed to save conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to save conversation")
		return
	}
	if err := s.users.AddConversationID(ctx, req.UserID, conv.ID); err != nil {
		s.logger.Error("Failed to record conversation on user", "error", err)
	}

	successResponse(c, gin.H{"saved": true, "conversationId": conv.ID})
}

func (s *Server) handleListUserConversations(c *gin.Context) {
	convs, err := s.saved.ListUserConversations(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.logger.Error("Failed to list saved conversations", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list saved conversations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": convs,
	})
}

// handleDeleteUserConversation removes a saved conversation after an
// ownership check
func (s *Server) handleDeleteUserConversation(c *gin.Context) {
	userID := c.Param("userId")
	id := c.Param("id")
	ctx := c.Request.Context()

	savedConv, err := s.saved.GetSavedConversation(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load saved conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	if savedConv == nil {
		errorResponse(c, http.StatusNotFound, "Conversation not found")
		return
	}
	if savedConv.UserID != userID {
		errorResponse(c, http.StatusForbidden, "Conversation does not belong to this user")
		return
	}

	if _, err := s.saved.DeleteSavedConversation(ctx, id); err != nil {
		s.logger.Error("Failed to delete saved conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	if err := s.users.RemoveConversationID(ctx, userID, id); err != nil {
		s.logger.Error("Failed to remove conversation from user", "error", err)
	}

	successResponse(c, gin.H{"deleted": true})
}

// handleRestoreConversation copies a saved conversation back into the
// live store so chatting can continue on it
func (s *Server) handleRestoreConversation(c *gin.Context) {
	userID := c.Param("userId")
	id := c.Param("id")
	ctx := c.Request.Context()

	savedConv, err := s.saved.GetSavedConversation(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load saved conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to restore conversation")
		return
	}
	if savedConv == nil {
		errorResponse(c, http.StatusNotFound, "Conversation not found")
		return
	}
	if savedConv.UserID != userID {
		errorResponse(c, http.StatusForbidden, "Conversation does not belong to this user")
		return
	}

	conv := savedConv.Conversation
	if err := s.convs.PutConversation(ctx, &conv); err != nil {
		s.logger.Error("Failed to restore conversation", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to restore conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": &conv,
	})
}
