package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/internal/logging"
	"github.com/layer-3/tessera/internal/metrics"
	"github.com/layer-3/tessera/service"
)

// RouterConfig holds the ambient collaborators of the router
type RouterConfig struct {
	Logger              logging.Logger
	Metrics             *metrics.Metrics
	LoginRateLimitRPS   float64
	LoginRateLimitBurst int
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger{}
	}

	router := gin.New()
	// Client IPs come from the socket only; forwarded headers could bypass the login limit.
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger), MetricsMiddleware(cfg.Metrics))

	handlers := NewAuthHandlers(authService)

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	router.POST("/register", handlers.Register)
	router.POST("/login", RateLimit(cfg.LoginRateLimitRPS, cfg.LoginRateLimitBurst), handlers.Login)
	router.POST("/token", handlers.Token)
	router.POST("/logout", handlers.Logout)

	authed := router.Group("/")
	authed.Use(AuthMiddleware(authService))
	{
		authed.GET("/balance", handlers.Balance)
		authed.POST("/transfer", handlers.Transfer)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/admin", RequireRoles(authService, core.RoleAdmin), handlers.Welcome("admin"))
		api.GET("/moderator", RequireRoles(authService, core.RoleAdmin, core.RoleModerator), handlers.Welcome("moderator"))
		api.GET("/user", RequireRoles(authService, core.RoleAdmin, core.RoleModerator, core.RoleUser), handlers.Welcome("user"))
	}

	return router
}
