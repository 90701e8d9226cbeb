package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rstudio-ai-chat/internal/events"
	"rstudio-ai-chat/internal/license"
)

// maxBulkLicenses caps one bulk-create request. Over-cap requests are
// rejected before any license is written.
const maxBulkLicenses = 100

type createLicenseRequest struct {
	Type          string `json:"type"`
	MaxUsage      int    `json:"maxUsage"`
	ExpiresInDays int    `json:"expiresInDays"`
}

func (req *createLicenseRequest) build() (*license.License, bool) {
	if !license.ValidType(req.Type) {
		return nil, false
	}
	t := license.Type(req.Type)

	expiresIn := license.DefaultLimits[t].ExpiresIn
	if req.ExpiresInDays > 0 {
		expiresIn = time.Duration(req.ExpiresInDays) * 24 * time.Hour
	}
	return license.New(t, req.MaxUsage, expiresIn), true
}

// handleAdminCreateLicense issues a single license
func (s *Server) handleAdminCreateLicense(c *gin.Context) {
	var req createLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	lic, ok := req.build()
	if !ok {
		errorResponse(c, http.StatusBadRequest, "Invalid license type")
		return
	}

	if err := s.licenses.CreateLicense(c.Request.Context(), lic); err != nil {
		s.logger.Error("Failed to create license", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to create license")
		return
	}

	s.publishEvent(events.EventLicenseCreated, map[string]interface{}{
		"key":  lic.Key,
		"type": string(lic.Type),
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"license": lic,
	})
}

type bulkCreateRequest struct {
	Count         int    `json:"count"`
	Type          string `json:"type"`
	MaxUsage      int    `json:"maxUsage"`
	ExpiresInDays int    `json:"expiresInDays"`
}

// handleAdminBulkCreateLicenses issues up to 100 licenses in one
// all-or-nothing batch
func (s *Server) handleAdminBulkCreateLicenses(c *gin.Context) {
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Count < 1 || req.Count > maxBulkLicenses {
		errorResponse(c, http.StatusBadRequest, "Count must be between 1 and 100")
		return
	}
	if !license.ValidType(req.Type) {
		errorResponse(c, http.StatusBadRequest, "Invalid license type")
		return
	}

	single := createLicenseRequest{Type: req.Type, MaxUsage: req.MaxUsage, ExpiresInDays: req.ExpiresInDays}
	lics := make([]*license.License, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		lic, _ := single.build()
		lics = append(lics, lic)
	}

	if err := s.licenses.CreateLicenses(c.Request.Context(), lics); err != nil {
		s.logger.Error("Failed to bulk create licenses", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to create licenses")
		return
	}

	s.publishEvent(events.EventLicenseCreated, map[string]interface{}{
		"count": req.Count,
		"type":  req.Type,
	})

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"licenses": lics,
		"count":    len(lics),
	})
}

// handleAdminSeedDemoLicenses creates one license of each type with
// the default quota and validity window
func (s *Server) handleAdminSeedDemoLicenses(c *gin.Context) {
	seeded := make([]*license.License, 0, len(license.DefaultLimits))
	for _, t := range []license.Type{license.TypeTrial, license.TypeBasic, license.TypePremium, license.TypeUnlimited} {
		limits := license.DefaultLimits[t]
		lic := license.New(t, limits.MaxUsage, limits.ExpiresIn)
		if err := s.licenses.CreateLicense(c.Request.Context(), lic); err != nil {
			s.logger.Error("Failed to seed demo license", "type", string(t), "error", err)
			errorResponse(c, http.StatusInternalServerError, "Failed to seed demo licenses")
			return
		}
		seeded = append(seeded, lic)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"licenses": seeded,
	})
}

func (s *Server) handleAdminListLicenses(c *gin.Context) {
	lics, err := s.licenses.ListLicenses(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list licenses", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list licenses")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"licenses": lics,
		"count":    len(lics),
	})
}

type updateLicenseRequest struct {
	IsActive      *bool  `json:"isActive"`
	MaxUsage      *int   `json:"maxUsage"`
	Type          string `json:"type"`
	ExpiresInDays *int   `json:"expiresInDays"`
}

// handleAdminUpdateLicense applies a partial update to a license.
// Omitted fields keep their current value.
func (s *Server) handleAdminUpdateLicense(c *gin.Context) {
	var req updateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := c.Request.Context()
	key := c.Param("key")

	lic, err := s.licenses.GetLicense(ctx, key)
	if err != nil {
		s.logger.Error("Failed to load license", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to update license")
		return
	}
	if lic == nil {
		errorResponse(c, http.StatusNotFound, "License not found")
		return
	}

	if req.Type != "" {
		if !license.ValidType(req.Type) {
			errorResponse(c, http.StatusBadRequest, "Invalid license type")
			return
		}
		lic.Type = license.Type(req.Type)
	}
	if req.IsActive != nil {
		lic.IsActive = *req.IsActive
	}
	if req.MaxUsage != nil && *req.MaxUsage > 0 {
		lic.MaxUsage = *req.MaxUsage
	}
	if req.ExpiresInDays != nil {
		if *req.ExpiresInDays <= 0 {
			lic.ExpiresAt = nil
		} else {
			exp := license.NowMillis() + int64(*req.ExpiresInDays)*24*60*60*1000
			lic.ExpiresAt = &exp
		}
	}
	lic.UpdatedAt = license.NowMillis()

	if err := s.licenses.UpdateLicense(ctx, lic); err != nil {
		s.logger.Error("Failed to update license", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to update license")
		return
	}

	s.publishEvent(events.EventLicenseUpdated, map[string]interface{}{"key": key})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"license": lic,
	})
}

// handleAdminDeleteLicense removes a license; unknown keys get 404
func (s *Server) handleAdminDeleteLicense(c *gin.Context) {
	key := c.Param("key")

	found, err := s.licenses.DeleteLicense(c.Request.Context(), key)
	if err != nil {
		s.logger.Error("Failed to delete license", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to delete license")
		return
	}
	if !found {
		errorResponse(c, http.StatusNotFound, "License not found")
		return
	}

	s.publishEvent(events.EventLicenseDeleted, map[string]interface{}{"key": key})

	successResponse(c, gin.H{"deleted": true})
}

// handleAdminStats returns the aggregate usage dashboard
func (s *Server) handleAdminStats(c *gin.Context) {
	if s.stats == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Stats unavailable")
		return
	}

	stats, err := s.stats.GetUsageStats(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to compute stats", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

func (s *Server) handleAdminListUsers(c *gin.Context) {
	users, err := s.users.ListUsers(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list users", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list users")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   users,
		"count":   len(users),
	})
}
