package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/automation"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/config"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/db"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/insights"
)

// History serves recorded readings. It is nil when no database is configured.
type History interface {
	FetchReadings(ctx context.Context, q db.ReadingQuery) ([]db.Reading, error)
	GetAverages(ctx context.Context) (*db.AveragesResult, error)
	Ping(ctx context.Context) error
}

// Server bundles router and dependencies for the dashboard.
type Server struct {
	cfg        config.Config
	log        *zap.Logger
	monitor    *greenhouse.Monitor
	automation *automation.Service
	feed       *insights.Feed
	history    History
	hub        *Hub
	upgrader   websocket.Upgrader
	engine     *gin.Engine
}

// New constructs a server with routes and middleware. history may be nil.
func New(cfg config.Config, logger *zap.Logger, monitor *greenhouse.Monitor, svc *automation.Service, history History) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger.Named("http")))
	engine.Use(corsMiddleware(cfg.CORSAllowedOrigins))

	server := &Server{
		cfg:        cfg,
		log:        logger.Named("server"),
		monitor:    monitor,
		automation: svc,
		feed:       svc.Feed(),
		history:    history,
		hub:        NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.CORSAllowedOrigins),
		},
		engine: engine,
	}
	server.registerRoutes()
	server.registerV1Routes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Hub exposes the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run starts the websocket hub and the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	stopPush := s.pushUpdates()
	defer stopPush()

	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	s.log.Info("dashboard listening", zap.String("addr", srv.Addr))
	return g.Wait()
}

// pushUpdates forwards monitor and feed changes to websocket clients.
func (s *Server) pushUpdates() func() {
	loc := s.cfg.Location()
	cancelState := s.monitor.Subscribe(func(st greenhouse.State) {
		s.hub.Broadcast(MessageState, st)
		s.hub.Broadcast(MessageStatus, st.Indicator(loc))
	})
	cancelFeed := s.feed.Subscribe(func(in insights.Insight) {
		s.hub.Broadcast(MessageInsight, in)
	})
	return func() {
		cancelState()
		cancelFeed()
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/", s.handleDashboard)
	s.engine.GET("/ws", s.authorize(), s.handleWebsocket)
}

// handleHealthz reports liveness and, with history enabled, database reachability.
func (s *Server) handleHealthz(c *gin.Context) {
	if s.history != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.history.Ping(ctx); err != nil {
			s.log.Warn("health check: database unreachable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorize returns the bearer check, or a no-op when no token is configured.
func (s *Server) authorize() gin.HandlerFunc {
	if s.cfg.BearerToken == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return bearerAuthMiddleware(s.cfg.BearerToken)
}

// bearerAuthMiddleware accepts the token from the Authorization header or, for
// browser websockets, the access_token query parameter.
func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("access_token")
		if auth := c.GetHeader("Authorization"); auth != "" {
			if !strings.HasPrefix(auth, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		if token != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}

func allowsAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"X-API-Version"},
		MaxAge:        12 * time.Hour,
	}
	if allowsAll(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func originChecker(origins []string) func(r *http.Request) bool {
	if allowsAll(origins) {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
