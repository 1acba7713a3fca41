package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/chapterly/revenue/internal/audit"
	auditdomain "github.com/chapterly/revenue/internal/audit/domain"
	"github.com/chapterly/revenue/internal/config"
	"github.com/chapterly/revenue/internal/creatorpool"
	pooldomain "github.com/chapterly/revenue/internal/creatorpool/domain"
	"github.com/chapterly/revenue/internal/engagement"
	engagementdomain "github.com/chapterly/revenue/internal/engagement/domain"
	obsmiddleware "github.com/chapterly/revenue/internal/observability/logger"
	obsmetrics "github.com/chapterly/revenue/internal/observability/metrics"
	obstracing "github.com/chapterly/revenue/internal/observability/tracing"
	"github.com/chapterly/revenue/internal/payout"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	"github.com/chapterly/revenue/internal/revenueperiod"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	audit.Module,
	revenueperiod.Module,
	engagement.Module,
	creatorpool.Module,
	payout.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterAdminRoutes() }),
	fx.Invoke(RunHTTP),
)

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	PeriodSvc     perioddomain.Service
	EngagementSvc engagementdomain.Service
	PoolSvc       pooldomain.Service
	PayoutSvc     payoutdomain.Service
	AuditSvc      auditdomain.Service
}

// Server is the admin payout dashboard's HTTP façade over the engine.
type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	periodSvc     perioddomain.Service
	engagementSvc engagementdomain.Service
	poolSvc       pooldomain.Service
	payoutSvc     payoutdomain.Service
	auditSvc      auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		periodSvc:     p.PeriodSvc,
		engagementSvc: p.EngagementSvc,
		poolSvc:       p.PoolSvc,
		payoutSvc:     p.PayoutSvc,
		auditSvc:      p.AuditSvc,
	}
}

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics, reg *prometheus.Registry) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: cfg.Environment == "development",
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

// RegisterAdminRoutes wires the operator surface consumed by the payout
// dashboard.
func (s *Server) RegisterAdminRoutes() {
	v1 := s.engine.Group("/v1")

	periods := v1.Group("/revenue-periods")
	periods.GET("", s.ListRevenuePeriods)
	periods.POST("", s.GetOrCreateRevenuePeriod)
	periods.GET("/:id", s.GetRevenuePeriod)
	periods.PATCH("/:id", s.UpdateRevenuePeriod)
	periods.POST("/:id/close", s.CloseRevenuePeriod)
	periods.POST("/:id/finalize", s.FinalizeRevenuePeriod)
	periods.GET("/:id/aggregates", s.ListEngagementAggregates)
	periods.GET("/:id/pool", s.GetCreatorPool)
	periods.PUT("/:id/pool", s.UpdateCreatorPool)
	periods.POST("/:id/calculate", s.CalculatePoolDistribution)
	periods.GET("/:id/reconciliation", s.VerifyPoolConservation)

	v1.POST("/engagement/aggregate", s.AggregateEngagement)
	v1.GET("/dashboard/periods", s.ListPeriodSummaries)

	payouts := v1.Group("/payouts")
	payouts.GET("", s.ListPayouts)
	payouts.GET("/dashboard", s.PayoutDashboardStats)
	payouts.GET("/:id", s.GetPayout)
	payouts.GET("/:id/audit", s.ListPayoutAudit)
	payouts.POST("/:id/approve", s.ApprovePayout)
	payouts.POST("/:id/paid", s.MarkPayoutPaid)
	payouts.POST("/:id/cancel", s.CancelPayout)
	payouts.POST("/bulk-approve", s.BulkApprovePayouts)
	payouts.POST("/sale", s.RecordSalePayout)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
