package server

import (
	"context"
	"errors"

	"backend-quranicare/internal/auth"
	"backend-quranicare/internal/catalog"
	"backend-quranicare/internal/config"
	"backend-quranicare/internal/db"
	"backend-quranicare/internal/engagement"
	"backend-quranicare/internal/history"
	"backend-quranicare/internal/logging"
	"backend-quranicare/internal/stream"
	"backend-quranicare/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Log    *zap.Logger
}

func NewServer(cfg config.Config, pool db.Pool, redisClient *redis.Client, log *zap.Logger) *Server {
	log = logging.OrNop(log)

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler(log)})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log),
		Log:    log,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	gateway := auth.NewGateway(s.Cfg.JWTSecret)
	jwtMiddleware := auth.JWTMiddleware(gateway)

	counters := engagement.NewService(s.DB, s.Cfg.CounterRetryAttempts)
	sessions := tracking.NewService(s.DB, counters, s.Stream, s.Cfg.CounterRetryAttempts, s.Log)

	auth.RegisterRoutes(s.App.Group("/auth"), gateway)
	catalog.RegisterRoutes(s.App.Group("/catalog"), catalog.NewService(s.DB, s.Redis, s.Cfg.CatalogCacheTTL, s.Log))
	tracking.RegisterRoutes(s.App, sessions, jwtMiddleware)
	engagement.RegisterRoutes(s.App.Group("/engagement"), counters, jwtMiddleware)
	history.RegisterRoutes(s.App.Group("/history"), history.NewService(s.DB), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, auth.StreamMiddleware(gateway),
		func(ctx context.Context, userID, sessionID string) error {
			_, err := sessions.Get(ctx, userID, sessionID)
			return err
		})
}

// errorHandler logs server-side failures and otherwise behaves like fiber's
// default handler.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}
		return fiber.DefaultErrorHandler(c, err)
	}
}
