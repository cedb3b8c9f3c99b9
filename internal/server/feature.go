package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	featuredomain "github.com/entitlehq/entitled/internal/feature/domain"
)

// ListAccountFeatures returns all features currently active.
func (s *Server) ListAccountFeatures(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	features, err := s.featureSvc.GetUserFeatures(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": features})
}

// GrantAccountFeatures activates the named features. Already-active
// names are skipped without failing the batch.
func (s *Server) GrantAccountFeatures(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req featuredomain.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Features) == 0 {
		AbortWithError(c, newValidationError("features", "invalid_features", "at least one feature is required"))
		return
	}

	if err := s.featureSvc.GrantFeatures(c.Request.Context(), accountID, req); err != nil {
		AbortWithError(c, err)
		return
	}

	features, err := s.featureSvc.GetUserFeatures(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": features})
}

// GetAccountFeature reports whether one named feature is active.
func (s *Server) GetAccountFeature(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		AbortWithError(c, newValidationError("name", "invalid_name", "feature name is required"))
		return
	}

	granted, err := s.featureSvc.HasFeature(c.Request.Context(), accountID, name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feature": name,
		"granted": granted,
	})
}

// RevokeAccountFeature deactivates all active grants of the feature.
func (s *Server) RevokeAccountFeature(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		AbortWithError(c, newValidationError("name", "invalid_name", "feature name is required"))
		return
	}

	if err := s.featureSvc.RevokeFeature(c.Request.Context(), accountID, name); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
