package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/events"
)

// handleGetConfig returns the current configuration with secrets blanked.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Redacted())
}

type configUpdate struct {
	Section string      `json:"section" binding:"required"`
	Key     string      `json:"key" binding:"required"`
	Value   interface{} `json:"value"`
}

// handleUpdateConfig changes one key. The change is validated on a copy
// first and only applied and saved when valid.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var body configUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidate := s.cfg.Clone()
	if err := candidate.UpdateField(body.Section, body.Key, body.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if res := config.Validate(candidate); !res.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "invalid configuration",
			"errors":   res.Errors,
			"warnings": res.Warnings,
		})
		return
	}

	if err := s.cfg.UpdateField(body.Section, body.Key, body.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.cfg.Path() != "" {
		if err := s.cfg.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
			return
		}
	}

	if s.deps.EventBus != nil {
		s.deps.EventBus.Emit(c.Request.Context(), events.NewEvent(events.EventConfigChanged, "api",
			events.ConfigChangedPayload{
				Section: body.Section,
				Key:     body.Key,
				Value:   body.Value,
			}))
	}

	log.Info().
		Str("section", body.Section).
		Str("key", body.Key).
		Msg("API: configuration updated")

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// handleValidateConfig reports validation errors and warnings for the
// running configuration.
func (s *Server) handleValidateConfig(c *gin.Context) {
	res := config.Validate(s.cfg)
	c.JSON(http.StatusOK, gin.H{
		"valid":    res.IsValid(),
		"errors":   res.Errors,
		"warnings": res.Warnings,
	})
}
