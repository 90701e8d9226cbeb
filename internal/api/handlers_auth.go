package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rstudio-ai-chat/internal/events"
	"rstudio-ai-chat/internal/license"
	"rstudio-ai-chat/internal/logging"
	"rstudio-ai-chat/internal/store"
)

type validateLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
}

// handleValidateLicense validates a license key and returns the user
// bound to it, creating the user on first sight. No token is issued;
// every later request re-presents the key.
func (s *Server) handleValidateLicense(c *gin.Context) {
	var req validateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LicenseKey == "" {
		errorResponse(c, http.StatusBadRequest, "License key is required")
		return
	}

	ctx := c.Request.Context()

	verdict, err := s.licenses.Validate(ctx, req.LicenseKey)
	if err != nil {
		s.logger.Error("License validation failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "License validation failed")
		return
	}
	if !verdict.Valid {
		s.publishEvent(events.EventLicenseRejected, map[string]interface{}{"reason": verdict.Reason})
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"valid":   false,
			"error":   "Invalid license: " + verdict.Reason,
		})
		return
	}

	user, err := s.users.GetUserByLicenseKey(ctx, req.LicenseKey)
	if err != nil {
		s.logger.Error("Failed to look up user", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to load user")
		return
	}

	now := license.NowMillis()
	if user == nil {
		user = &store.User{
			ID:              uuid.New().String(),
			LicenseKey:      req.LicenseKey,
			CreatedAt:       now,
			LastLogin:       now,
			ConversationIDs: []string{},
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			s.logger.Error("Failed to create user", "error", err)
			errorResponse(c, http.StatusInternalServerError, "Failed to create user")
			return
		}
	} else {
		user.LastLogin = now
		if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
			s.logger.Error("Failed to update last login", "error", err)
		}
	}

	logging.LicenseContext(req.LicenseKey).Debug("License validated", "userId", user.ID)
	s.publishEvent(events.EventLicenseValidated, map[string]interface{}{
		"userId": user.ID,
		"type":   string(verdict.License.Type),
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"valid":   true,
		"user":    user,
		"license": verdict.License,
	})
}

// handleProfile returns a user with the current state of their license
func (s *Server) handleProfile(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := s.users.GetUser(ctx, c.Param("userId"))
	if err != nil {
		s.logger.Error("Failed to load user", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	if user == nil {
		errorResponse(c, http.StatusNotFound, "User not found")
		return
	}

	verdict, err := s.licenses.Validate(ctx, user.LicenseKey)
	if err != nil {
		s.logger.Error("License validation failed", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user,
		"license": verdict.License,
		"valid":   verdict.Valid,
	})
}

// handleLogout acknowledges a logout. There is no server-side session
// to tear down; the client simply discards its stored key.
func (s *Server) handleLogout(c *gin.Context) {
	successResponse(c, gin.H{"loggedOut": true})
}

func (s *Server) publishEvent(t events.EventType, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(events.Event{Type: t, Data: data})
}
