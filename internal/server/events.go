package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/entitlehq/entitled/internal/events"
)

type ingestEventRequest struct {
	AccountID string         `json:"account_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	DedupeKey string         `json:"dedupe_key"`
}

// IngestEvent enqueues a lifecycle event for asynchronous handling.
// Redelivery with the same dedupe key collapses into one row.
func (s *Server) IngestEvent(c *gin.Context) {
	var req ingestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "account id is malformed"))
		return
	}

	err = s.outbox.Enqueue(c.Request.Context(), events.Event{
		AccountID: accountID,
		Type:      req.Type,
		Payload:   req.Payload,
		DedupeKey: req.DedupeKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
