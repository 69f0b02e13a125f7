package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/simulation"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups objects the HTTP layer needs. Metadata is nil when maintenance data
// is not backed by MySQL.
type Dependencies struct {
	Simulator      *simulation.Simulator
	Metadata       Pinger
	Metrics        http.Handler
	Transport      string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter configures all HTTP routes. Every route is read-only.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	r.GET("/api/health", func(c *gin.Context) {
		if deps.Metadata == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := deps.Metadata.Ping(ctx); err != nil {
			logger.Warn("metadata ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mysql": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mysql": "ok"})
	})

	r.GET("/api/simulation/status", func(c *gin.Context) {
		if deps.Simulator == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"running": false})
			return
		}
		stats := deps.Simulator.Stats()
		c.JSON(http.StatusOK, gin.H{
			"runId":        stats.RunID,
			"running":      stats.Running,
			"interval":     deps.Simulator.Interval().String(),
			"transport":    deps.Transport,
			"tick":         stats.Tick,
			"readingsSent": stats.ReadingsSent,
			"statusesSent": stats.StatusesSent,
			"reconnects":   stats.Reconnects,
			"sensors":      deps.Simulator.Snapshot(),
		})
	})

	r.GET("/api/devices", func(c *gin.Context) {
		if deps.Simulator == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "simulator not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"devices": deps.Simulator.DeviceStatuses(c.Request.Context())})
	})

	r.GET("/api/devices/:id/status", func(c *gin.Context) {
		if deps.Simulator == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "simulator not configured"})
			return
		}
		id := c.Param("id")
		report, ok := deps.Simulator.DeviceStatus(c.Request.Context(), id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown device", "deviceId": id})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
