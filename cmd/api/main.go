package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/cache"
	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/config"
	"github.com/p2hgit/p2h_api/internal/database"
	"github.com/p2hgit/p2h_api/internal/handler"
	"github.com/p2hgit/p2h_api/internal/middleware"
	"github.com/p2hgit/p2h_api/internal/repository"
	"github.com/p2hgit/p2h_api/internal/service"
	"github.com/p2hgit/p2h_api/internal/sse"
	"github.com/p2hgit/p2h_api/internal/utils"
	"github.com/p2hgit/p2h_api/internal/worker"
	"github.com/p2hgit/p2h_api/pkg/razorpay"
)

// main is the application entrypoint for the P2H booking API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting p2h api")

	utils.SetJWTSecret(cfg.JWTSecret)
	decimal.MarshalJSONWithoutQuotes = true

	// 3. Connect database
	db, err := database.Connect(context.Background(), &cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := runMigrations(db.DB); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("redis connection failed")
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected successfully")

	// 3c. Caches
	priceCache := cache.NewPriceCache(redisClient, cfg.Cache.PriceTTL)
	adminStatusCache := cache.NewTTLCache[int, bool](cfg.Cache.AdminStatusTTL, nil)

	// 4. External clients
	rzp := razorpay.NewClient(razorpay.Config{
		BaseURL:       cfg.Razorpay.BaseURL,
		KeyID:         cfg.Razorpay.KeyID,
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
	})

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	mailer, err := service.NewSESMailer(bootCtx, &cfg.Mail)
	bootCancel()
	if err != nil {
		log.Warn().Err(err).Msg("SES mailer initialization failed - confirmation emails will be retried by the worker")
		mailer = service.NopMailer{}
	}
	sms := service.NewTwilioSMS(&cfg.SMS)

	// 5. Initialize repositories
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	discountRepo := repository.NewDiscountRepository(db)
	priceRepo := repository.NewPriceRepository(db)
	adminRepo := repository.NewAdminUserRepository(db)

	// 6. Initialize services
	hub := sse.NewHub()
	notifier := sse.NewHubNotifier(hub)

	mapper := catalog.NewMapper()
	fallback := catalog.NewFallbackTable(mapper, decimal.NewFromInt(cfg.Pricing.TestServicePrice), cfg.Pricing.InjectPackageFallbacks)
	fetcher := service.NewPriceFetcher(priceRepo, priceCache, cfg.Pricing.FetchTimeout)

	discountSvc := service.NewDiscountService(discountRepo, nil)
	pricingSvc := service.NewPricingService(mapper, fetcher, fallback, discountSvc, cfg.Pricing.BundleDiscountRate, cfg.Razorpay.Currency)
	bookingSvc := service.NewBookingService(bookingRepo, pricingSvc, rzp, notifier)
	reconcileSvc := service.NewReconciliationService(
		bookingRepo, paymentRepo, rzp, discountSvc, mailer, sms, notifier, cfg.Razorpay.Currency,
	)
	priceCatalogSvc := service.NewPriceCatalogService(priceRepo, priceCache, mapper)
	adminAuthSvc := service.NewAdminAuthService(adminRepo, adminStatusCache)

	// 7. Initialize handlers
	handlers := &Handlers{
		Health:        handler.NewHealthHandler(db, redisClient),
		Pricing:       handler.NewPricingHandler(pricingSvc, discountSvc, mapper),
		Booking:       handler.NewBookingHandler(bookingSvc),
		Payment:       handler.NewPaymentHandler(reconcileSvc),
		Webhook:       handler.NewWebhookHandler(reconcileSvc, rzp),
		Auth:          handler.NewAuthHandler(adminAuthSvc),
		SSE:           handler.NewSSEHandler(hub, adminAuthSvc),
		AdminBooking:  handler.NewAdminBookingHandler(bookingSvc, reconcileSvc),
		AdminDiscount: handler.NewAdminDiscountHandler(discountSvc),
		AdminPrice:    handler.NewAdminPriceHandler(priceCatalogSvc),
	}

	// 8. Initialize middleware
	jwtMw := middleware.NewJWTMiddleware(adminAuthSvc)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// 9. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORS))
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers, jwtMw, limiter)

	// 10. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 11. Start workers
	go worker.NewReconciliationWorker(
		reconcileSvc,
		cfg.Worker.ReconcileInterval,
		cfg.Worker.ReconcileStaleAfter,
		cfg.Worker.ReconcileMaxAge,
	).Start(ctx)
	go worker.NewEmailRetryWorker(reconcileSvc, cfg.Worker.EmailRetryInterval).Start(ctx)

	// 12. Start HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 13. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 14. Cancel context to stop workers
	cancel()

	// 15. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health        *handler.HealthHandler
	Pricing       *handler.PricingHandler
	Booking       *handler.BookingHandler
	Payment       *handler.PaymentHandler
	Webhook       *handler.WebhookHandler
	Auth          *handler.AuthHandler
	SSE           *handler.SSEHandler
	AdminBooking  *handler.AdminBookingHandler
	AdminDiscount *handler.AdminDiscountHandler
	AdminPrice    *handler.AdminPriceHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, jwtMiddleware *middleware.JWTMiddleware, limiter *middleware.RateLimiter) {
	// Gateway webhook
	router.POST("/webhook/razorpay", handlers.Webhook.HandleRazorpay)

	router.GET("/v1/health", handlers.Health.GetHealth)

	// Public booking flow (rate limited per IP)
	public := router.Group("/v1")
	public.Use(limiter.Handle())
	{
		public.POST("/pricing/quote", handlers.Pricing.Quote)
		public.POST("/discounts/validate", handlers.Pricing.ValidateDiscount)
		public.POST("/bookings", handlers.Booking.Create)
		public.GET("/bookings/:referenceId", handlers.Booking.Get)
		public.POST("/payments/verify", handlers.Payment.Verify)
		public.GET("/payments/status", handlers.Payment.Status)
	}

	// Admin routes
	admin := router.Group("/v1/admin")
	admin.POST("/auth/login", limiter.Handle(), handlers.Auth.Login)
	// EventSource cannot set headers; the stream checks its own token
	admin.GET("/sse", handlers.SSE.Stream)
	admin.Use(jwtMiddleware.Handle())
	{
		// Bookings
		admin.GET("/bookings", handlers.AdminBooking.List)
		admin.GET("/bookings/:id", handlers.AdminBooking.Get)
		admin.PATCH("/bookings/:id/status", handlers.AdminBooking.UpdateStatus)
		admin.POST("/bookings/:id/complete", handlers.AdminBooking.CompleteRecovery)
		admin.DELETE("/bookings/:id", handlers.AdminBooking.Delete)
		admin.POST("/payments/recover", handlers.AdminBooking.RecoverPayment)

		// Discount codes
		admin.GET("/discounts", handlers.AdminDiscount.List)
		admin.POST("/discounts", handlers.AdminDiscount.Create)
		admin.GET("/discounts/:id", handlers.AdminDiscount.Get)
		admin.PUT("/discounts/:id", handlers.AdminDiscount.Update)
		admin.PATCH("/discounts/:id/toggle", handlers.AdminDiscount.Toggle)
		admin.DELETE("/discounts/:id", handlers.AdminDiscount.Delete)

		// Prices
		admin.GET("/prices", handlers.AdminPrice.List)
		admin.PUT("/prices/:serviceId", handlers.AdminPrice.Upsert)
		admin.PATCH("/prices/:serviceId/toggle", handlers.AdminPrice.Toggle)
	}
}

// runMigrations runs database migrations using golang-migrate.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
