package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/entitlehq/entitled/internal/cache"
	"github.com/entitlehq/entitled/internal/config"
	"github.com/entitlehq/entitled/internal/definition"
	definitiondomain "github.com/entitlehq/entitled/internal/definition/domain"
	"github.com/entitlehq/entitled/internal/entitlement"
	"github.com/entitlehq/entitled/internal/events"
	"github.com/entitlehq/entitled/internal/feature"
	featuredomain "github.com/entitlehq/entitled/internal/feature/domain"
	"github.com/entitlehq/entitled/internal/lifecycle"
	"github.com/entitlehq/entitled/internal/observability"
	obsmiddleware "github.com/entitlehq/entitled/internal/observability/logger"
	obstracing "github.com/entitlehq/entitled/internal/observability/tracing"
	"github.com/entitlehq/entitled/internal/quota"
	quotadomain "github.com/entitlehq/entitled/internal/quota/domain"
	"github.com/entitlehq/entitled/internal/registry"
	"github.com/entitlehq/entitled/internal/seed"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	registry.Module,
	cache.Module,
	definition.Module,
	entitlement.Module,
	quota.Module,
	feature.Module,
	events.Module,
	seed.Module,
	lifecycle.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	quotaSvc   quotadomain.Service
	featureSvc featuredomain.Service
	defs       definitiondomain.Repository
	outbox     *events.Outbox
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	QuotaSvc   quotadomain.Service
	FeatureSvc featuredomain.Service
	Defs       definitiondomain.Repository
	Outbox     *events.Outbox
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		quotaSvc:   p.QuotaSvc,
		featureSvc: p.FeatureSvc,
		defs:       p.Defs,
		outbox:     p.Outbox,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/definitions", s.ListDefinitions)
	v1.POST("/events", s.IngestEvent)

	accounts := v1.Group("/accounts/:account_id")
	{
		// -------- Quotas --------
		accounts.GET("/quota", s.GetAccountQuota)
		accounts.GET("/quotas", s.ListAccountQuotas)
		accounts.POST("/quota/switch", s.SwitchAccountQuota)

		// -------- Features --------
		accounts.GET("/features", s.ListAccountFeatures)
		accounts.POST("/features", s.GrantAccountFeatures)
		accounts.GET("/features/:name", s.GetAccountFeature)
		accounts.DELETE("/features/:name", s.RevokeAccountFeature)
	}
}
