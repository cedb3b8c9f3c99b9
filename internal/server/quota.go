package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/entitlehq/entitled/internal/quota/domain"
	"github.com/entitlehq/entitled/pkg/db/pagination"
)

// GetAccountQuota returns the single active quota for the account.
func (s *Server) GetAccountQuota(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.quotaSvc.GetUserQuota(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListAccountQuotas returns the account's quota history, oldest first.
func (s *Server) ListAccountQuotas(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if page.PageSize <= 0 {
		page.PageSize = 50
	}

	history, err := s.quotaSvc.GetUserQuotas(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "page token is malformed"))
			return
		}
		for i, item := range history {
			if item.RecordID == cursor.ID {
				history = history[i+1:]
				break
			}
		}
	}

	if len(history) > page.PageSize+1 {
		history = history[:page.PageSize+1]
	}

	data, pageInfo := pagination.BuildCursorPageInfo(history, page.PageSize, func(item quotadomain.Response) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.RecordID})
		if err != nil {
			return ""
		}
		return token
	})

	c.JSON(http.StatusOK, gin.H{
		"data":      data,
		"page_info": pageInfo,
	})
}

// SwitchAccountQuota activates a different quota and returns the grant
// now in effect. Switching to the already-active quota is a no-op.
func (s *Server) SwitchAccountQuota(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req quotadomain.SwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Quota) == "" {
		AbortWithError(c, newValidationError("quota", "invalid_quota", "quota is required"))
		return
	}

	if err := s.quotaSvc.SwitchUserQuota(c.Request.Context(), accountID, req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.quotaSvc.GetUserQuota(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
