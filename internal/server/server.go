// Package server exposes the dashboard REST API: the authorization flow,
// credential status and control, the audit trail, and account listings.
package server

import (
	"context"
	"net/http"

	auditdomain "github.com/adsboard/adsboard/internal/audit/domain"
	"github.com/adsboard/adsboard/internal/amazon"
	"github.com/adsboard/adsboard/internal/config"
	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	"github.com/adsboard/adsboard/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

type Params struct {
	fx.In

	Cfg            config.Config
	Log            *zap.Logger
	CredentialSvc  credentialdomain.Service
	AuditSvc       auditdomain.Service
	AmazonClient   *amazon.Client
	RefreshLimiter *ratelimit.RefreshLimiter `optional:"true"`
}

type Server struct {
	cfg            config.Config
	log            *zap.Logger
	credentialSvc  credentialdomain.Service
	auditSvc       auditdomain.Service
	amazonClient   *amazon.Client
	refreshLimiter *ratelimit.RefreshLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:            p.Cfg,
		log:            p.Log.Named("server"),
		credentialSvc:  p.CredentialSvc,
		auditSvc:       p.AuditSvc,
		amazonClient:   p.AmazonClient,
		refreshLimiter: p.RefreshLimiter,
	}
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RegisterRoutes(r *gin.Engine, s *Server) {
	// The browser flow carries no admin token; state + code protect it.
	r.GET("/auth/login", s.Login)
	r.GET("/auth/callback", s.Callback)

	authed := r.Group("/", AdminAuth(s.cfg.AdminToken))
	authed.GET("/auth/status", s.AuthStatus)
	authed.POST("/auth/refresh", s.RefreshRateLimit(), s.RefreshToken)
	authed.DELETE("/auth/revoke", s.Revoke)
	authed.GET("/auth/audit", s.ListAuditEvents)
	authed.GET("/accounts/profiles", s.ListProfiles)
	authed.GET("/accounts/dsp/advertisers", s.ListDSPAdvertisers)
	authed.GET("/accounts/dsp/seats", s.ListDSPSeats)
	authed.GET("/accounts/amc/instances", s.ListAMCInstances)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
