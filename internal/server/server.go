package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/eirki/trek-api/internal/auth"
	"github.com/eirki/trek-api/internal/config"
	"github.com/eirki/trek-api/internal/stream"
	"github.com/eirki/trek-api/internal/tracker"
	"github.com/eirki/trek-api/internal/trek"
	"github.com/eirki/trek-api/internal/upload"
	"github.com/eirki/trek-api/internal/user"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	trackers := tracker.NewRegistry(s.Cfg, s.Redis)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	user.RegisterRoutes(s.App.Group("/users"), user.NewService(s.DB, s.Redis, trackers), s.Cfg.FrontendURL, jwtMiddleware)
	trek.RegisterRoutes(s.App.Group("/treks"), trek.NewService(s.DB, s.Cfg.JWTSecret), jwtMiddleware)
	upload.RegisterRoutes(s.App.Group("/storage"), upload.NewService(s.DB, s.Cfg.UploadBaseURL))
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
