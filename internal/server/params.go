package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/accountctx"
	"github.com/gin-gonic/gin"
)

func parseAccountID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("account_id"))
	if raw == "" {
		return 0, newValidationError("account_id", "invalid_account", "account id is required")
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, newValidationError("account_id", "invalid_account", "account id is malformed")
	}

	c.Request = c.Request.WithContext(accountctx.WithAccountID(c.Request.Context(), id))
	return id, nil
}
