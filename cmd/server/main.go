package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mikeboe/site-gpt/pkg/config"
	"github.com/mikeboe/site-gpt/pkg/mcpserver"
	"github.com/mikeboe/site-gpt/pkg/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Service
	svc, closeBackend, err := server.NewFromConfig(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to init service: %v", err)
	}
	defer closeBackend()

	mcpSrv, err := mcpserver.NewServer(svc)
	if err != nil {
		log.Fatalf("Failed to init MCP server: %v", err)
	}
	handler := server.NewHandler(svc, mcpSrv.Handler())

	// Web Server Setup
	r := gin.Default()

	// CORS Setup
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	fmt.Printf("Server starting on port %s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
