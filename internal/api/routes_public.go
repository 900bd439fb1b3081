package api

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "tilehook",
	})
}

// handleGetVersion returns the build version.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    s.deps.Version,
		"name":       "tilehook",
		"go_version": runtime.Version(),
	})
}

// handleGetKinds lists the registered packet and tile entity kinds.
func (s *Server) handleGetKinds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"packets":       protocol.PacketKinds(),
		"tile_entities": protocol.TileEntityKinds(),
	})
}
