package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"tile-ops-server/config"
	"tile-ops-server/database"
	"tile-ops-server/jobs"
	"tile-ops-server/middleware"
	"tile-ops-server/routes"
	"tile-ops-server/services"
	"tile-ops-server/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, using system environment variables")
	}

	config.Load()
	gin.SetMode(config.AppConfig.Server.GinMode)

	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Redis backs both live fan-out and the task queue. The server still
	// runs without it, in degraded single-process mode.
	if err := database.InitRedis(config.AppConfig.Redis); err != nil {
		log.Printf("⚠️ Redis unavailable, running single-process: %v", err)
	}

	// Live channel hub
	store := services.NewNotificationStore(database.DB)
	hub := websocket.NewHub(store, database.Redis)
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go hub.RunSubscriber(ctx)

	// Background task queue
	var (
		enqueuer    *jobs.Enqueuer
		worker      *jobs.Worker
		asynqClient *asynq.Client
	)
	gate := services.NewPreferenceGate(store)
	stats := services.NewStatsService(database.DB)
	push := services.NewPushService(store, gate, config.AppConfig.VAPID, config.AppConfig.Jobs)

	if database.Redis != nil {
		redisOpt := asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		}
		asynqClient = asynq.NewClient(redisOpt)
		enqueuer = jobs.NewEnqueuer(
			asynqClient,
			config.AppConfig.Jobs.PushMaxRetry,
			time.Duration(config.AppConfig.Jobs.PushTimeoutSecs+5)*time.Second,
		)

		worker = jobs.NewWorker(redisOpt, store, push, stats, config.AppConfig.Jobs)
		if err := worker.Start(); err != nil {
			log.Fatalf("❌ Failed to start background worker: %v", err)
		}
	} else {
		enqueuer = jobs.NewEnqueuer(nil, 0, 0)
	}

	notificationService := services.NewNotificationService(store, gate, hub, enqueuer)
	routes.Init(store, notificationService, stats, enqueuer)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware(rate.Limit(20), 40))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "https://tolatiles.com"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	// Live notification channel; token auth happens inside the handler so
	// bad tokens still get a proper close frame.
	router.GET("/ws/notifications", websocket.HandleNotifications(hub, middleware.ResolveWebSocketUser))

	api := router.Group("/api/v1")
	routes.SetupAuthRoutes(api)
	routes.SetupNotificationRoutes(api)
	routes.SetupLeadRoutes(api)
	routes.SetupQuoteRoutes(api)

	server := &http.Server{
		Addr:    ":" + config.AppConfig.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Server starting on port %s", config.AppConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}
	if worker != nil {
		worker.Shutdown()
	}
	if asynqClient != nil {
		asynqClient.Close()
	}
	log.Println("✅ Server stopped")
	os.Exit(0)
}
