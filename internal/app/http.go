package app

import (
	"context"

	"mybk-gateway/internal/auth/handler"
	"mybk-gateway/internal/cache"
	"mybk-gateway/internal/config"
	"mybk-gateway/internal/lms"
	"mybk-gateway/internal/middleware"
	"mybk-gateway/internal/registration"
	"mybk-gateway/internal/session"
	"mybk-gateway/internal/student"
	"mybk-gateway/internal/upstream"

	"github.com/gin-gonic/gin"
)

func setupHTTP(_ context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	box, err := session.NewBox(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	sessionStore := session.NewRedisStore(infra.Redis, box, cfg.SessionTTL)
	refreshStore := session.NewRefreshStore(infra.Redis, box, cfg.RefreshTTL)

	budget := cache.NewBudget(cfg.DailyCommandLimit, cfg.BudgetThreshold)
	swrCache := cache.New(infra.Redis, budget)

	gateway := upstream.NewGateway(cfg)
	ssoContexts := upstream.NewContextRegistry()
	flows := registration.NewRegistry()

	// Deleting a session tears down every live automation context it
	// owned.
	sessionStore.OnDelete = func(token string) {
		flows.EvictSession(token)
		ssoContexts.Delete(token)
	}

	driver := registration.NewDriver(cfg, flows, registration.DefaultParsers())

	authHandler := handler.NewHandler(gateway, sessionStore, refreshStore, ssoContexts)
	registrationHandler := registration.NewHandler(driver)
	studentHandler := student.NewHandler(gateway, swrCache, cfg)
	lmsHandler := lms.NewHandler(gateway, sessionStore, ssoContexts)

	authMiddleware := middleware.NewAuthMiddleware(sessionStore)
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Public Routes
	// ----------------------------

	public := router.Group("/")
	public.Use(loginLimiter.Middleware())

	// ----------------------------
	// Protected Routes
	// ----------------------------

	protected := router.Group("/")
	protected.Use(authMiddleware.RequireAuth())

	authHandler.RegisterRoutes(public, protected)
	registrationHandler.RegisterRoutes(protected)
	studentHandler.RegisterRoutes(protected)
	lmsHandler.RegisterRoutes(protected)

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		return infra.Redis.Close()
	}, nil
}
