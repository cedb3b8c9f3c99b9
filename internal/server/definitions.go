package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

type definitionResponse struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Version int             `json:"version"`
	Config  json.RawMessage `json:"config"`
}

// ListDefinitions returns the latest version of every seeded
// definition. Older versions stay in the table for pinned grants but
// are not offered for new activations.
func (s *Server) ListDefinitions(c *gin.Context) {
	defs, err := s.defs.ListLatest(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]definitionResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, definitionResponse{
			Name:    def.Name,
			Kind:    string(def.Kind),
			Version: def.Version,
			Config:  json.RawMessage(def.Config),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}
