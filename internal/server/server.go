package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/repository"
	"whiteboard-backend/internal/room"
	"whiteboard-backend/internal/session"
	"whiteboard-backend/internal/undo"
)

// Server wraps the Fiber app and the realtime core.
type Server struct {
	app               *fiber.App
	cfg               *config.Config
	authHandler       *handler.AuthHandler
	whiteboardHandler *handler.WhiteboardHandler
	boardWSHandler    *handler.BoardWSHandler
	healthHandler     *handler.HealthHandler
	jwtManager        *auth.JWTManager
}

// New wires repositories, the realtime core, and HTTP handlers.
func New(cfg *config.Config, db *gorm.DB, presenceMgr *presence.Manager) *Server {
	app := fiber.New(fiber.Config{
		AppName:        "Collaborative Whiteboard",
		ServerHeader:   "Fiber",
		StrictRouting:  true,
		CaseSensitive:  true,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		Prefork:        false, // incompatible with in-process rooms
		ReadBufferSize: 16384,
		BodyLimit:      5 * 1024 * 1024,
	})

	userRepo := repository.NewUserRepository(db)
	boardRepo := repository.NewBoardRepository(db)
	strokeRepo := repository.NewStrokeRepository(db)

	registry := room.NewRegistry()
	ledger := undo.NewLedger()
	lifecycle := session.NewLifecycle(userRepo)

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	googleAuth := auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)

	return &Server{
		app:               app,
		cfg:               cfg,
		authHandler:       handler.NewAuthHandler(db, boardRepo, jwtManager, googleAuth, cfg.Auth.SecureCookie),
		whiteboardHandler: handler.NewWhiteboardHandler(boardRepo, userRepo, presenceMgr),
		boardWSHandler:    handler.NewBoardWSHandler(userRepo, boardRepo, strokeRepo, registry, ledger, lifecycle, presenceMgr),
		healthHandler:     handler.NewHealthHandler(db),
		jwtManager:        jwtManager,
	}
}

// SetupMiddleware installs the middleware chain.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes installs all routes.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)

	// Brute-force protection on the auth surface.
	authLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	authGroup := s.app.Group("/auth")
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/guest", authLimiter, s.authHandler.GuestLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", auth.AuthMiddleware(s.jwtManager), s.authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetMe)

	boardGroup := s.app.Group("/api/whiteboards", auth.AuthMiddleware(s.jwtManager))
	boardGroup.Get("", s.whiteboardHandler.ListBoards)
	boardGroup.Post("", s.whiteboardHandler.CreateBoard)
	boardGroup.Delete("/:id", s.whiteboardHandler.DeleteBoard)
	boardGroup.Post("/:id/share", s.whiteboardHandler.ShareBoard)
	boardGroup.Get("/:id/online", s.whiteboardHandler.OnlineUsers)

	// WebSocket upgrade gate.
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws/board", websocket.New(s.boardWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server with graceful shutdown.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Collaborative whiteboard starting on %s", s.cfg.Server.Port)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws/board", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
