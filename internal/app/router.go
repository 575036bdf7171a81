package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"dedicated/internal/domain"
	"dedicated/internal/handler"
	"dedicated/internal/middleware"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	BookingHandler  *handler.BookingHandler
	WalletHandler   *handler.WalletHandler
	RealtimeHandler *handler.RealtimeHandler
	DB              Pinger
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
	Log             logrus.FieldLogger
	JWTSecret       string
	RequestTimeout  time.Duration
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Log))
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", healthHandler(deps))

	auth := middleware.AuthRequired(deps.JWTSecret)
	user := middleware.RequireRole(domain.UserRoleUser)
	driver := middleware.RequireRole(domain.UserRoleDriver)
	admin := middleware.RequireRole(domain.UserRoleAdmin)
	userOrAdmin := middleware.RequireRole(domain.UserRoleUser, domain.UserRoleAdmin)

	// The websocket is long-lived and must not inherit the request timeout.
	router.GET("/v1/ws", auth, middleware.RequireRole(domain.UserRoleUser, domain.UserRoleDriver), deps.RealtimeHandler.Connect)

	// API v1 routes.
	v1 := router.Group("/v1", middleware.Timeout(deps.RequestTimeout), auth)
	{
		bh := deps.BookingHandler
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", user, middleware.IdempotencyMiddleware(deps.RedisClient, deps.Log), bh.CreateBooking)
			bookings.GET("", bh.ListBookings)
			bookings.GET("/available", driver, bh.ListAvailable)
			bookings.GET("/:id", bh.GetBooking)
			bookings.PATCH("/:id/status", admin, bh.UpdateStatus)
			bookings.DELETE("/:id", userOrAdmin, bh.DeleteBooking)
			bookings.POST("/:id/assign-driver", admin, bh.AssignDriver)
			bookings.POST("/:id/accept", driver, bh.AcceptBooking)
			bookings.POST("/:id/approve", admin, bh.ApproveBooking)
			bookings.POST("/:id/depart", driver, bh.DepartBooking)
			bookings.POST("/:id/start", driver, bh.StartBooking)
			bookings.POST("/:id/end", driver, bh.EndBooking)
			bookings.POST("/:id/cancel", bh.CancelBooking)
			bookings.GET("/:id/invoice", bh.GetInvoice)
			bookings.GET("/:id/location", bh.GetLocation)
			bookings.GET("/:id/locations", bh.GetLocationHistory)
		}

		wh := deps.WalletHandler
		wallets := v1.Group("/wallets")
		{
			wallets.GET("/:userId", wh.GetWallet)
			wallets.GET("/:userId/entries", wh.ListEntries)
			wallets.GET("/:userId/verify", admin, wh.VerifyWallet)
		}

		adminGroup := v1.Group("/admin", admin)
		{
			adminGroup.GET("/commission", wh.GetCommission)
			adminGroup.POST("/commission", wh.SetCommission)
			adminGroup.POST("/earnings/backfill", wh.BackfillEarnings)
			adminGroup.GET("/bookings/nearby", bh.ListNearby)
		}
	}

	return router
}

// healthHandler reports 503 when PostgreSQL or Redis does not answer.
func healthHandler(deps RouterDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		checks := gin.H{"database": "ok", "redis": "ok"}
		status := http.StatusOK

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				checks["database"] = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
		if deps.RedisClient != nil {
			if err := deps.RedisClient.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	}
}
