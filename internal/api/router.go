package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/health"
	"github.com/jmerrifield20/propchain/internal/journal"
	"github.com/jmerrifield20/propchain/internal/marketplace"
)

const maxBodyBytes = 1 << 20

// Options configures NewRouter.
type Options struct {
	CORSOrigins []string
	// RateLimitRPS of zero disables per-IP rate limiting.
	RateLimitRPS int
	// Journal is optional; nil leaves the /journal routes unmounted.
	Journal journal.Journal
	// Health is optional; nil makes /readyz always report ready.
	Health *health.Checker
}

// NewRouter builds the HTTP router. Background work started for the rate
// limiter ends when ctx is done.
func NewRouter(ctx context.Context, svc *marketplace.Service, opts Options, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: !containsWildcard(opts.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(SecurityHeaders())
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	})
	if opts.RateLimitRPS > 0 {
		router.Use(RateLimiter(ctx, opts.RateLimitRPS, opts.RateLimitRPS*2))
	}
	router.Use(PrometheusMiddleware())
	router.Use(RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if opts.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		r := opts.Health.Report()
		if !r.Healthy() {
			c.JSON(http.StatusServiceUnavailable, r)
			return
		}
		c.JSON(http.StatusOK, r)
	})
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	NewMarketHandler(svc, logger).Register(v1)
	if opts.Journal != nil {
		NewJournalHandler(opts.Journal, logger).Register(v1)
	}
	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
