package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/topup/internal/cache"
	"github.com/smallbiznis/topup/internal/config"
	"github.com/smallbiznis/topup/internal/observability"
	obsmiddleware "github.com/smallbiznis/topup/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/topup/internal/observability/metrics"
	obstracing "github.com/smallbiznis/topup/internal/observability/tracing"
	"github.com/smallbiznis/topup/internal/order"
	orderdomain "github.com/smallbiznis/topup/internal/order/domain"
	"github.com/smallbiznis/topup/internal/payment"
	paymentdomain "github.com/smallbiznis/topup/internal/payment/domain"
	"github.com/smallbiznis/topup/internal/product"
	productdomain "github.com/smallbiznis/topup/internal/product/domain"
	"github.com/smallbiznis/topup/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	cache.Module,
	product.Module,
	order.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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
	log        *zap.Logger
	orderSvc   orderdomain.Service
	productSvc productdomain.Service
	webhookSvc paymentdomain.WebhookService
	limiter    *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	OrderSvc   orderdomain.Service
	ProductSvc productdomain.Service
	WebhookSvc paymentdomain.WebhookService
	Limiter    *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		orderSvc:   p.OrderSvc,
		productSvc: p.ProductSvc,
		webhookSvc: p.WebhookSvc,
		limiter:    p.Limiter,
	}

	svc.registerPaymentRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Both prefixes serve the same handlers; /api/payments is what the storefront
// proxy forwards.
func (s *Server) registerPaymentRoutes() {
	for _, prefix := range []string{"/payments", "/api/payments"} {
		payments := s.engine.Group(prefix)

		payments.GET("/products", s.ListProducts)
		payments.POST("/create-order", s.RateLimit(ratelimit.EndpointCreateOrder), s.CreateOrder)
		payments.POST("/verify", s.RateLimit(ratelimit.EndpointVerify), s.VerifyPayment)
		payments.POST("/webhook", s.HandleWebhook)
		payments.GET("/order/:orderId", s.GetOrder)
		payments.POST("/order/:orderId/retry-gateway", s.RateLimit(ratelimit.EndpointCreateOrder), s.RetryGatewayOrder)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
