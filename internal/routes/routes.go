package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/coffre-pay/coffre/internal/account"
	"github.com/coffre-pay/coffre/internal/auth"
	"github.com/coffre-pay/coffre/internal/config"
	"github.com/coffre-pay/coffre/internal/identity"
	"github.com/coffre-pay/coffre/internal/infra"
	"github.com/coffre-pay/coffre/internal/ledger"
	"github.com/coffre-pay/coffre/internal/middleware"
	"github.com/coffre-pay/coffre/internal/notification"
	"github.com/coffre-pay/coffre/internal/registry"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var ledgerBackend ledger.Ledger
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
	}

	var notifier notification.Notifier
	if d.Cache != nil {
		notifier = notification.NewRedisNotifier(d.Cache, d.Logger)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	var accountRepo account.Repository
	var registryRepo registry.Repository
	var identityRepo identity.Repository
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
		registryRepo = registry.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
		registryRepo = registry.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
	}

	var txRunner account.Atomic
	if d.DB != nil {
		txRunner = infra.NewPgTxRunner(d.DB)
	}

	accountSvc := account.NewService(accountRepo, ledgerBackend, notifier, txRunner)
	registrySvc := registry.NewService(registryRepo, accountSvc, notifier, txRunner)
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg)

	accountHandler := account.NewHandler(accountSvc)
	registryHandler := registry.NewHandler(registrySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc, identitySvc))
	RegisterRegistryRoutes(protected, registryHandler)
	RegisterAccountRoutes(protected, accountHandler)

	return nil
}
