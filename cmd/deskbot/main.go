package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/deskly/deskbot/internal/dispatch"
	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/internal/handlers"
	"github.com/deskly/deskbot/internal/repository"
	"github.com/deskly/deskbot/internal/service"
	"github.com/deskly/deskbot/pkg/config"
	"github.com/deskly/deskbot/pkg/database"
	"github.com/deskly/deskbot/pkg/events"
	"github.com/deskly/deskbot/pkg/logger"
	mw "github.com/deskly/deskbot/pkg/middleware"
	"github.com/deskly/deskbot/pkg/ratelimit"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	if err := database.Migrate(ctx, cfg.Database.URL); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	limiter, err := ratelimit.NewRedisLimiter(cfg.Redis.URL)
	if err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer limiter.Close()

	userRepo := repository.NewUserRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)

	if err := seedSuperadmin(ctx, userRepo, cfg); err != nil {
		logger.Error("Failed to seed superadmin", "error", err)
		os.Exit(1)
	}

	accessService := service.NewAccessService(userRepo, cfg.Admin.Identity)
	bookingService := service.NewBookingService(bookingRepo, eventBus, cfg)
	userService := service.NewUserService(userRepo, eventBus, cfg)

	dispatcher := dispatch.New(accessService, bookingService, userService, limiter, cfg)
	h := handlers.New(dispatcher)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("deskbot"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Post("/commands", h.HandleCommand)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down deskbot...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Deskbot shutdown error", "error", err)
		}
	}()

	logger.Info("Deskbot listening", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// seedSuperadmin makes sure the config-designated admin exists in the user
// store so roster listings and admin counts include it.
func seedSuperadmin(ctx context.Context, userRepo repository.UserRepository, cfg *config.Config) error {
	if cfg.Admin.Identity == "" {
		return nil
	}

	existing, err := userRepo.Get(ctx, cfg.Admin.Identity)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	logger.Info("Seeding superadmin", "identity", cfg.Admin.Identity)
	return userRepo.Upsert(ctx, &domain.User{
		Identity:    cfg.Admin.Identity,
		DisplayName: cfg.Admin.DisplayName,
		Role:        domain.RoleAdmin,
	})
}
