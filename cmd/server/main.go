package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/themobileprof/lambdachat/internal/api"
	"github.com/themobileprof/lambdachat/internal/api/middleware"
	"github.com/themobileprof/lambdachat/internal/chat"
	"github.com/themobileprof/lambdachat/internal/config"
	"github.com/themobileprof/lambdachat/internal/session"
	"github.com/themobileprof/lambdachat/internal/telemetry"
	"github.com/themobileprof/lambdachat/pkg/lambda"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("lambdachat", cfg)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracer()

	store, closeStore, err := session.Open(context.Background(), cfg.SessionStore, cfg.RedisAddr, cfg.SessionTTL, cfg.TurnTimeout())
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer closeStore()
	log.Printf("✅ Session store ready: %s", cfg.SessionStore)

	client := lambda.NewHTTPClient(cfg.LambdaConfig())

	chatEngine := chat.NewEngine(store, client, chat.Options{
		Greeting:      cfg.InitialMessage,
		Timeout:       cfg.RequestTimeout,
		MaxInputChars: cfg.MaxInputChars,
	})

	ipLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	defer ipLimiter.Close()
	sessionLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute / 5)
	defer sessionLimiter.Close()

	router := api.NewRouter(api.RouterConfig{
		Engine:            chatEngine,
		Sessions:          middleware.NewSessions(cfg.SessionSecret, cfg.SessionTTL, chatEngine),
		Stream:            cfg.StreamResponses,
		AllowedOrigins:    cfg.AllowedOrigins,
		MessagesPerMinute: cfg.RateLimitPerMinute / 5,
		IPLimiter:         ipLimiter,
		SessionLimiter:    sessionLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://localhost:%s", cfg.Port)
		log.Printf("📝 Endpoints:")
		log.Printf("   GET    /")
		log.Printf("   GET    /api/session")
		log.Printf("   POST   /api/session/reset")
		log.Printf("   POST   /api/chat")
		log.Printf("   WS     /ws/chat")
		log.Printf("   GET    /health")
		log.Printf("")
		log.Printf("Press Ctrl+C to stop")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
