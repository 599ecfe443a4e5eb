package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/authorization"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/config"
	"github.com/smallbiznis/patronage/internal/observability"
	obscontext "github.com/smallbiznis/patronage/internal/observability/context"
	obsmiddleware "github.com/smallbiznis/patronage/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/patronage/internal/observability/metrics"
	obstracing "github.com/smallbiznis/patronage/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	"github.com/smallbiznis/patronage/internal/providers/pdf"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	authsvc       authdomain.Service
	authzSvc      authorization.Service
	orderSvc      orderdomain.Service
	collectiveSvc collectivedomain.Service
	transactions  transactiondomain.Repository
	receipts      pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	Authsvc       authdomain.Service
	AuthzSvc      authorization.Service
	OrderSvc      orderdomain.Service
	CollectiveSvc collectivedomain.Service
	Transactions  transactiondomain.Repository
	Receipts      pdf.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http"),
		authsvc:       p.Authsvc,
		authzSvc:      p.AuthzSvc,
		orderSvc:      p.OrderSvc,
		collectiveSvc: p.CollectiveSvc,
		transactions:  p.Transactions,
		receipts:      p.Receipts,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.BearerAuth())

	api.GET("/me", s.Me)

	// -------- Orders --------
	api.POST("/orders", s.CreateOrder)
	order := api.Group("/orders/:id", tagResource(obscontext.ResourceOrder))
	order.GET("", s.GetOrder)
	order.POST("/confirm", s.ConfirmOrder)
	order.POST("/complete-pledge", s.CompletePledge)
	order.POST("/cancel-subscription", s.CancelSubscription)
	order.PATCH("/subscription", s.UpdateSubscription)
	order.POST("/mark-paid", s.MarkOrderAsPaid)
	order.POST("/mark-expired", s.MarkOrderAsExpired)
	order.GET("/receipt", s.RenderReceipt)

	// -------- Collectives --------
	collective := api.Group("/collectives/:id", tagResource(obscontext.ResourceCollective))
	collective.PATCH("", s.UpdateCollective)
	collective.POST("/funds", s.AddFundsToCollective)
	api.POST("/organizations/:id/prepaid-funds", tagResource(obscontext.ResourceCollective), s.AddFundsToOrg)

	// -------- Transactions --------
	api.POST("/transactions/:id/refund", tagResource(obscontext.ResourceTransaction), s.RefundTransaction)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
