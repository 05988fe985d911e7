package main

import (
	"log"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}
	log.Println("Database connection verified")

	var presenceMgr *presence.Manager
	if cfg.Redis.Addr != "" {
		mgr, err := presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer mgr.Close()
		presenceMgr = mgr
		log.Println("Presence tracking enabled")
	} else {
		log.Println("REDIS_ADDR not set, presence tracking disabled")
	}

	srv := server.New(cfg, db, presenceMgr)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
