package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/aegis/pkg/config"
	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
)

func main() {
	// .env is a development convenience; the deployed contract is plain env.
	_ = godotenv.Load()

	cfg := config.Load()
	logx.Init(cfg.App.LogLevel, !cfg.App.IsDevelopment())

	if err := cfg.Validate(); err != nil {
		logx.Fatalf("invalid configuration: %v", err)
	}

	logx.Infof("starting aegis (%s)", cfg.App.Env)

	container := NewContainer(cfg)
	defer container.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	container.StartBackgroundServices(ctx)

	app := fiber.New(fiber.Config{
		AppName:               "Aegis Auth API",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New(requestid.Config{Header: "X-Request-ID"}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.App.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Get("/health", healthCheckHandler(container))

	container.IAM.AuthHandlers.RegisterRoutes(app, container.IAM.AuthMiddleware)
	logx.Info("auth routes registered")
	container.IAM.PermissionHandlers.RegisterRoutes(app, container.IAM.AuthMiddleware)
	logx.Info("permission routes registered")

	app.Use(notFoundHandler)

	startServer(ctx, app, cfg.App.Port)
}

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{"status": "healthy", "service": "aegis"}
		status := fiber.StatusOK

		if err := container.DB.PingContext(c.Context()); err != nil {
			health["db"] = "unhealthy"
			health["status"] = "degraded"
			status = fiber.StatusServiceUnavailable
		} else {
			health["db"] = "healthy"
		}
		if err := container.Redis.Ping(c.Context()).Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			status = fiber.StatusServiceUnavailable
		} else {
			health["redis"] = "healthy"
		}

		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"request_id": c.GetRespHeader("X-Request-ID"),
	})
}

// globalErrorHandler converts internal errors to the standard JSON envelope.
func globalErrorHandler(c *fiber.Ctx, err error) error {
	requestID := c.GetRespHeader("X-Request-ID")

	if e, ok := err.(*errx.Error); ok {
		if e.HTTPStatus >= fiber.StatusInternalServerError {
			logx.WithFields(logx.Fields{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			}).Errorf("request error: %v", err)
		}
		response := fiber.Map{
			"error":      e.Message,
			"code":       e.Code,
			"type":       string(e.Type),
			"status":     e.HTTPStatus,
			"request_id": requestID,
		}
		if len(e.Details) > 0 {
			response["details"] = e.Details
		}
		return c.Status(e.HTTPStatus).JSON(response)
	}

	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"error":      e.Message,
			"code":       "HTTP_ERROR",
			"status":     e.Code,
			"request_id": requestID,
		})
	}

	logx.WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": requestID,
	}).Errorf("unhandled error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "Internal Server Error",
		"code":       "INTERNAL_ERROR",
		"status":     fiber.StatusInternalServerError,
		"request_id": requestID,
	})
}

func startServer(ctx context.Context, app *fiber.App, port string) {
	go func() {
		logx.Infof("server listening on :%s", port)
		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logx.Info("shutting down")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("forced shutdown: %v", err)
	}
	logx.Info("server exited")
}
