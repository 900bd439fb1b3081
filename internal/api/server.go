package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/db"
	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/intercept"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/telemetry"
	"github.com/tilehook-project/tilehook/internal/util"
)

// Deps are the components the API reads from. Store and Interceptor may be
// nil; the routes that need them answer 503.
type Deps struct {
	Version     string
	EventBus    *events.EventBus
	Codec       *protocol.Codec
	Interceptor *intercept.Interceptor
	Stats       *telemetry.Stats
	Metrics     *prometheus.Registry
	Store       *db.Store
}

// Server is the inspection REST API.
type Server struct {
	cfg  *config.Config
	deps Deps

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if deps.Codec == nil {
		deps.Codec = protocol.NewCodec()
	}
	if deps.Stats == nil {
		deps.Stats = telemetry.NewStats()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewMetricsRegistry(deps.Stats)
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := &Server{cfg: cfg, deps: deps}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetAPI()
	addr := net.JoinHostPort(apiCfg.Host, fmt.Sprint(apiCfg.Port))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if apiCfg.TLSEnabled {
		if apiCfg.SelfSignedCert {
			if err := util.EnsureCert(apiCfg.TLSCertFile, apiCfg.TLSKeyFile, apiCfg.Host, "localhost"); err != nil {
				return fmt.Errorf("failed to prepare TLS certificate: %w", err)
			}
		}
		cert, err := tls.LoadX509KeyPair(apiCfg.TLSCertFile, apiCfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().
		Str("addr", addr).
		Bool("tls", apiCfg.TLSEnabled).
		Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if s.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}
	err = s.httpServer.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetAPI()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())
	router.Use(IPWhitelist(apiCfg.IPWhitelist))

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(apiCfg.RateLimitRPS, apiCfg.RateLimitBurst)
	router.Use(rateLimiter.Middleware())
	router.Use(BodyLimit(apiCfg.MaxBodyBytes))

	auth := NewAuthMiddleware(s.cfg)

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
		public.GET("/kinds", s.handleGetKinds)
	}

	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	codec := protected.Group("/codec")
	{
		codec.POST("/decode", s.handleDecode)
		codec.POST("/roundtrip", s.handleRoundTrip)
		codec.POST("/intercept", s.handleIntercept)
	}

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/stats", s.handleGetStats)
		monitor.GET("/stats/history", s.handleGetStatsHistory)
		monitor.GET("/unknowns", s.handleGetUnknownKinds)
		monitor.GET("/unknowns/:scope/:kind", s.handleGetUnknownSamples)
		monitor.GET("/captures", s.handleGetCaptures)
		monitor.GET("/system", s.handleGetSystem)
	}

	configure := protected.Group("/configure")
	{
		configure.GET("/config", s.handleGetConfig)
		configure.PATCH("/config", s.handleUpdateConfig)
		configure.GET("/validate", s.handleValidateConfig)
	}

	router.GET("/metrics", auth.RequireAuth(), gin.WrapH(telemetry.MetricsHandler(s.deps.Metrics)))

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "tilehook API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
