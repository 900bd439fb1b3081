package api

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

// frameRequest carries one hex-encoded envelope. Whitespace in the hex is
// ignored; side defaults to the configured default side.
type frameRequest struct {
	Frame string `json:"frame" binding:"required"`
	Side  string `json:"side"`
}

func (s *Server) parseFrameRequest(c *gin.Context) ([]byte, protocol.Side, bool) {
	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, 0, false
	}

	frame, err := decodeHex(req.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, 0, false
	}

	sideName := req.Side
	if sideName == "" {
		sideName = s.cfg.GetCodec().DefaultSide
	}
	side, err := protocol.ParseSide(sideName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, 0, false
	}
	return frame, side, true
}

func decodeHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("frame is not valid hex: %w", err)
	}
	return b, nil
}

func codecErrorResponse(err error) gin.H {
	resp := gin.H{"error": err.Error()}
	var ce *protocol.CodecError
	if errors.As(err, &ce) {
		resp["op"] = ce.Op
		resp["scope"] = ce.Scope
		resp["kind"] = ce.Kind
	}
	var ee *protocol.InvalidEnumError
	if errors.As(err, &ee) {
		resp["field"] = ee.Field
		resp["value"] = ee.Value
	}
	return resp
}

// handleDecode decodes one envelope and returns the typed packet.
func (s *Server) handleDecode(c *gin.Context) {
	frame, side, ok := s.parseFrameRequest(c)
	if !ok {
		return
	}

	p, err := s.deps.Codec.Decode(frame, side)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, codecErrorResponse(err))
		return
	}
	_, unknown := p.(*protocol.UnknownPacket)

	c.JSON(http.StatusOK, gin.H{
		"kind":   p.Kind(),
		"name":   p.Kind().String(),
		"known":  !unknown,
		"side":   side,
		"length": int(frame[0]) | int(frame[1])<<8,
		"packet": p,
	})
}

// handleRoundTrip decodes and re-encodes one envelope and reports whether
// the bytes match.
func (s *Server) handleRoundTrip(c *gin.Context) {
	frame, side, ok := s.parseFrameRequest(c)
	if !ok {
		return
	}

	p, err := s.deps.Codec.Decode(frame, side)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, codecErrorResponse(err))
		return
	}
	out, err := s.deps.Codec.Encode(p, side)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, codecErrorResponse(err))
		return
	}

	original := frame[:int(frame[0])|int(frame[1])<<8]
	c.JSON(http.StatusOK, gin.H{
		"kind":      p.Kind(),
		"name":      p.Kind().String(),
		"match":     bytes.Equal(original, out),
		"original":  hex.EncodeToString(original),
		"reencoded": hex.EncodeToString(out),
		"packet":    p,
	})
}

// handleIntercept runs one envelope through the interception hooks and
// returns what would be forwarded.
func (s *Server) handleIntercept(c *gin.Context) {
	if s.deps.Interceptor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "interceptor not configured"})
		return
	}
	frame, side, ok := s.parseFrameRequest(c)
	if !ok {
		return
	}

	out, forward, err := s.deps.Interceptor.Process(c.Request.Context(), frame, side)
	resp := gin.H{
		"forward": forward,
		"changed": forward && !bytes.Equal(out, frame),
	}
	if forward {
		resp["frame"] = hex.EncodeToString(out)
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
