package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/telemetry"
	"github.com/tilehook-project/tilehook/internal/util"
)

// handleGetStats returns live counters since start.
func (s *Server) handleGetStats(c *gin.Context) {
	kinds := s.deps.Stats.Snapshot()
	if c.Query("sort") == "total" {
		telemetry.SortByTotal(kinds)
	}
	c.JSON(http.StatusOK, gin.H{
		"totals": s.deps.Stats.Totals(),
		"kinds":  kinds,
	})
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return false
	}
	return true
}

// handleGetStatsHistory returns the persisted cumulative counters.
func (s *Server) handleGetStatsHistory(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	rows, err := s.deps.Store.KindStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kinds": rows, "total": len(rows)})
}

// handleGetUnknownKinds summarizes stored unknown kinds.
func (s *Server) handleGetUnknownKinds(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	kinds, err := s.deps.Store.UnknownKinds()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kinds": kinds, "total": len(kinds)})
}

// handleGetUnknownSamples lists stored samples of one unknown kind.
func (s *Server) handleGetUnknownSamples(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	scope := protocol.Scope(c.Param("scope"))
	if scope != protocol.ScopePacket && scope != protocol.ScopeTileEntity {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be packet or tile_entity"})
		return
	}
	kind, err := strconv.ParseUint(c.Param("kind"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	samples, err := s.deps.Store.UnknownSamples(string(scope), uint8(kind), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples, "total": len(samples)})
}

// handleGetCaptures lists indexed capture files.
func (s *Server) handleGetCaptures(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	caps, err := s.deps.Store.Captures()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"captures": caps, "total": len(caps)})
}

// handleGetSystem returns host information and resource usage.
func (s *Server) handleGetSystem(c *gin.Context) {
	resp := gin.H{"system": util.GetSystemInfo()}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}
	if du, err := util.GetDiskUsage(s.cfg.GetCapture().Directory); err == nil {
		resp["capture_disk"] = du
	}
	c.JSON(http.StatusOK, resp)
}
