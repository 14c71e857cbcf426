package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"verified-checkout/internal/domain"
	"verified-checkout/internal/service"
	"verified-checkout/internal/webhook"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// PaymentReader is the read side the status endpoint needs.
type PaymentReader interface {
	FindByTxRef(ctx context.Context, txRef string) (*domain.Payment, error)
}

// HealthChecker reports dependency health; status "up" means healthy.
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Deps struct {
	Sessions       service.SessionService
	Reconciler     service.ReconcileService
	Auth           *webhook.Authenticator
	Payments       PaymentReader
	Health         HealthChecker
	Logger         *slog.Logger
	AllowedOrigins []string
}

// Server is the inbound HTTP surface.
type Server struct {
	sessions   service.SessionService
	reconciler service.ReconcileService
	auth       *webhook.Authenticator
	payments   PaymentReader
	health     HealthChecker
	logger     *slog.Logger
	router     *gin.Engine
}

func NewServer(d Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(d.Logger), cors.New(corsConfig(d.AllowedOrigins)))

	s := &Server{
		sessions:   d.Sessions,
		reconciler: d.Reconciler,
		auth:       d.Auth,
		payments:   d.Payments,
		health:     d.Health,
		logger:     d.Logger,
		router:     router,
	}

	router.POST("/create-payment-session", s.handleCreatePaymentSession)
	router.POST("/webhook", s.handleWebhook)
	router.GET("/payments/:txRef", s.handleGetPayment)
	router.GET("/healthz", s.handleHealthz)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
