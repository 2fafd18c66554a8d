package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/eventreg/internal/audit"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/authorization"
	"github.com/smallbiznis/eventreg/internal/cache"
	"github.com/smallbiznis/eventreg/internal/checkin"
	checkindomain "github.com/smallbiznis/eventreg/internal/checkin/domain"
	"github.com/smallbiznis/eventreg/internal/commission"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/event"
	"github.com/smallbiznis/eventreg/internal/ledger"
	"github.com/smallbiznis/eventreg/internal/notification"
	"github.com/smallbiznis/eventreg/internal/observability"
	obslogger "github.com/smallbiznis/eventreg/internal/observability/logger"
	obstracing "github.com/smallbiznis/eventreg/internal/observability/tracing"
	"github.com/smallbiznis/eventreg/internal/order"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	"github.com/smallbiznis/eventreg/internal/payment"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/paymentprovider"
	paymentproviderdomain "github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	"github.com/smallbiznis/eventreg/internal/providers"
	"github.com/smallbiznis/eventreg/internal/settlement"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/smallbiznis/eventreg/internal/tax"
	"github.com/smallbiznis/eventreg/internal/voucher"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DomainModules wires every service the HTTP surface and the CLI depend on.
var DomainModules = fx.Options(
	cache.Module,
	providers.Module,
	authorization.Module,
	audit.Module,
	event.Module,
	voucher.Module,
	tax.Module,
	commission.Module,
	ledger.Module,
	paymentprovider.Module,
	payment.Module,
	order.Module,
	notification.Module,
	settlement.Module,
	checkin.Module,
)

var Module = fx.Module("http.server",
	DomainModules,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
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

type Params struct {
	fx.In

	Engine             *gin.Engine
	Config             config.Config
	Log                *zap.Logger
	OrderSvc           orderdomain.Service
	PaymentSvc         paymentdomain.Service
	SettlementSvc      settlementdomain.Service
	PayoutSvc          settlementdomain.PayoutService
	PaymentProviderSvc paymentproviderdomain.Service
	CheckInSvc         checkindomain.Service
	AuditSvc           auditdomain.Service
	AuthzSvc           authorization.Service `optional:"true"`
}

type Server struct {
	engine             *gin.Engine
	cfg                config.Config
	log                *zap.Logger
	orderSvc           orderdomain.Service
	paymentSvc         paymentdomain.Service
	settlementSvc      settlementdomain.Service
	payoutSvc          settlementdomain.PayoutService
	paymentProviderSvc paymentproviderdomain.Service
	checkInSvc         checkindomain.Service
	auditSvc           auditdomain.Service
	authzSvc           authorization.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:             p.Engine,
		cfg:                p.Config,
		log:                p.Log.Named("http.server"),
		orderSvc:           p.OrderSvc,
		paymentSvc:         p.PaymentSvc,
		settlementSvc:      p.SettlementSvc,
		payoutSvc:          p.PayoutSvc,
		paymentProviderSvc: p.PaymentProviderSvc,
		checkInSvc:         p.CheckInSvc,
		auditSvc:           p.AuditSvc,
		authzSvc:           p.AuthzSvc,
	}
}

func (s *Server) RegisterRoutes() {
	s.RegisterPublicRoutes()
	s.RegisterAdminRoutes()
}

// RegisterPublicRoutes exposes buyer checkout and provider callbacks.
func (s *Server) RegisterPublicRoutes() {
	r := s.engine

	r.POST("/webhooks/:provider", s.HandlePaymentWebhook)

	v1 := r.Group("/v1")
	v1.POST("/checkout", s.Checkout)
	v1.GET("/orders/:id", s.GetOrder)
	v1.POST("/orders/:id/retry-payment", s.RetryPayment)
	v1.GET("/orders/:id/tickets", s.ListOrderTickets)
	v1.GET("/registrations/:id/qr.png", s.GetTicketQR)

	v1.POST("/checkins", s.AdminAuth(), s.CreateCheckIn)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminAuth())

	admin.POST("/orders/:id/transition", s.TransitionOrder)
	admin.GET("/review-items", s.ListAllReviewItems)
	admin.POST("/review-items/:id/resolve", s.ResolveReviewItem)
	admin.GET("/audit-logs", s.ListAuditLogs)

	org := admin.Group("/organizers/:organizer_id")
	org.GET("/review-items", s.ListReviewItems)
	org.GET("/transactions", s.ListTransactions)
	org.GET("/payouts", s.ListPayouts)
	org.POST("/payouts", s.CreatePayout)
	org.GET("/payment-providers", s.ListPaymentProviderConfigs)
	org.PUT("/payment-providers", s.UpsertPaymentProviderConfig)
	org.PATCH("/payment-providers/:provider", s.UpdatePaymentProviderStatus)
}
