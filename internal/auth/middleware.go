package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"rstudio-ai-chat/internal/license"
)

const (
	// HeaderLicenseKey carries the client license key on gated routes.
	HeaderLicenseKey = "X-License-Key"
	// HeaderAdminKey carries the administrative credential.
	HeaderAdminKey = "X-Admin-Key"

	// ContextLicense is the gin context key under which RequireLicense
	// stores the validated license snapshot.
	ContextLicense = "license"
	// ContextLicenseKey holds the raw key from the request header.
	ContextLicenseKey = "licenseKey"
)

// RequireLicense rejects requests without a valid license key. On
// success the validated license snapshot is attached to the context for
// handlers downstream.
func RequireLicense(svc *license.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderLicenseKey)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "License key required",
			})
			return
		}

		verdict, err := svc.Validate(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "License validation failed",
			})
			return
		}
		if !verdict.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"valid":   false,
				"error":   "Invalid license: " + verdict.Reason,
			})
			return
		}

		c.Set(ContextLicense, verdict.License)
		c.Set(ContextLicenseKey, key)
		c.Next()
	}
}

// OptionalLicense validates a license key only when one is supplied.
// A request without a key proceeds unmetered; a key that fails
// validation is rejected before any downstream work, 403 when the
// usage limit is exhausted and 401 otherwise.
func OptionalLicense(svc *license.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderLicenseKey)
		if key == "" {
			c.Next()
			return
		}

		verdict, err := svc.Validate(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "License validation failed",
			})
			return
		}
		if !verdict.Valid {
			status := http.StatusUnauthorized
			if verdict.Reason == license.ReasonUsageLimit {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{
				"success": false,
				"valid":   false,
				"error":   "Invalid license: " + verdict.Reason,
			})
			return
		}

		c.Set(ContextLicense, verdict.License)
		c.Set(ContextLicenseKey, key)
		c.Next()
	}
}

// LicenseFrom returns the validated license snapshot attached by
// RequireLicense, or nil when the request carried none.
func LicenseFrom(c *gin.Context) *license.License {
	if v, ok := c.Get(ContextLicense); ok {
		if lic, ok := v.(*license.License); ok {
			return lic
		}
	}
	return nil
}

// AdminGate validates the administrative credential. When a bcrypt hash
// is configured it takes precedence; otherwise the plain key is checked
// in constant time.
type AdminGate struct {
	key     string
	keyHash string
}

func NewAdminGate(key, keyHash string) *AdminGate {
	return &AdminGate{key: key, keyHash: keyHash}
}

// Configured reports whether any admin credential is set. An
// unconfigured gate rejects every request.
func (g *AdminGate) Configured() bool {
	return g.key != "" || g.keyHash != ""
}

func (g *AdminGate) check(candidate string) bool {
	if candidate == "" || !g.Configured() {
		return false
	}
	if g.keyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(g.keyHash), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(g.key), []byte(candidate)) == 1
}

// RequireAdmin rejects requests whose X-Admin-Key header does not match
// the configured credential: 401 when the header is absent, 403 on a
// mismatch or when no credential is configured at all.
func (g *AdminGate) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		candidate := c.GetHeader(HeaderAdminKey)
		if candidate == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Admin key required",
			})
			return
		}
		if !g.check(candidate) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Invalid admin key",
			})
			return
		}
		c.Next()
	}
}
