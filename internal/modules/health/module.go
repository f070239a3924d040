package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"kite_guard/internal/models"
	"kite_guard/internal/modules/config"
	"kite_guard/internal/modules/health/service"
	journal "kite_guard/internal/modules/journal/service"
	"kite_guard/internal/risk"
	"kite_guard/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Config struct {
	Addr  string // например ":8080"
	Debug bool
}

func NewConfig(cfg *config.Config) Config {
	return Config{
		Addr:  net.JoinHostPort(cfg.Service.Host, strconv.Itoa(cfg.Service.AdminPort)),
		Debug: cfg.Service.Debug,
	}
}

// StatusSource: срез движка для /positions.
type StatusSource interface {
	Snapshot() risk.Snapshot
}

// AuditSource: последние записи журнала для /journal.
type AuditSource interface {
	Recent(ctx context.Context, limit int) ([]models.AuditRecord, error)
}

const maxJournalLimit = 500

func NewRouter(cfg Config, state *service.State, status StatusSource, audit AuditSource) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/livez", func(c *gin.Context) {
		// liveness: процесс жив
		c.String(http.StatusOK, "ok")
	})

	r.GET("/readyz", func(c *gin.Context) {
		// readiness: позиции загружены
		if !state.Ready() {
			c.String(http.StatusServiceUnavailable, "not ready")
			return
		}
		c.String(http.StatusOK, "ready")
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":             state.Ready(),
			"wsConnected":       state.WSConnected(),
			"reconnects":        state.Reconnects(),
			"uptimeSec":         int64(state.Uptime().Seconds()),
			"lastTickUnix":      unixOrZero(state.LastTick()),
			"lastPositionsUnix": unixOrZero(state.LastPositions()),
		})
	})

	r.GET("/positions", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.Snapshot())
	})

	r.GET("/journal", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(limit, maxJournalLimit)

		recs, err := audit.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if recs == nil {
			recs = []models.AuditRecord{}
		}
		c.JSON(http.StatusOK, recs)
	})

	return r
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func RunHTTP(lc fx.Lifecycle, cfg Config, router *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return fmt.Errorf("health listen %s: %w", cfg.Addr, err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("health server: %v", err)
				}
			}()
			logger.Info("health: listening on %s", cfg.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			func(e *risk.Engine) StatusSource { return e },
			func(s journal.Store) AuditSource { return s },
			NewRouter,
		),
		fx.Invoke(RunHTTP),
	)
}
