package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/credlens/coordinator/internal/api"
	"github.com/credlens/coordinator/internal/auth"
	"github.com/credlens/coordinator/internal/bus"
	"github.com/credlens/coordinator/internal/config"
	"github.com/credlens/coordinator/internal/dispatch"
	"github.com/credlens/coordinator/internal/liveness"
	"github.com/credlens/coordinator/internal/ratelimit"
	"github.com/credlens/coordinator/internal/remote"
	"github.com/credlens/coordinator/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Starting CredLens Coordinator...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("✓ Configuration loaded")

	// Notification bus: everything downstream publishes into it
	notifier := bus.New()
	log.Println("✓ Notification bus initialized")

	// Session store (in memory, wiped on restart)
	sessions := store.New(notifier)
	log.Println("✓ Session store initialized")

	// Identity manager with the standard userinfo/revoke client
	identityClient := auth.NewHTTPIdentityClient(cfg.UserInfoURL, cfg.RevokeURL, cfg.RequestTimeout)
	provider := auth.NewFileProvider(cfg.CredentialFile)
	authMgr := auth.NewManager(provider, identityClient, notifier, cfg.RequestTimeout)
	log.Println("✓ Identity manager initialized")

	// Try to pick up a cached credential from before the restart
	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if err := authMgr.Rehydrate(rehydrateCtx); err != nil {
		log.Printf("No credential to rehydrate, starting signed out: %v", err)
	} else {
		log.Println("✓ Credential rehydrated")
	}
	cancelRehydrate()

	// Remote analysis client with retry and concurrency bounds
	analyzer := remote.NewClient(remote.Config{
		TextURL:       cfg.TextAnalysisURL,
		ImageURL:      cfg.ImageAnalysisURL,
		VideoURL:      cfg.VideoAnalysisURL,
		AudioURL:      cfg.AudioAnalysisURL,
		Timeout:       cfg.RequestTimeout,
		MaxRetries:    cfg.MaxRetries,
		MaxConcurrent: cfg.MaxConcurrentCalls,
	})
	log.Printf("✓ Remote analysis client initialized (%d retries, %d concurrent)", cfg.MaxRetries, cfg.MaxConcurrentCalls)

	// Dispatcher: the call timeout covers the whole retry schedule
	dispatcher := dispatch.New(dispatch.Config{
		MinTextChars: cfg.MinTextChars,
		MaxTextChars: cfg.MaxTextChars,
		CallTimeout:  cfg.RequestTimeout * time.Duration(cfg.MaxRetries+1),
	}, sessions, analyzer, authMgr, notifier)
	log.Println("✓ Dispatcher initialized")

	// Per-context rate limiter
	limiter := ratelimit.NewLimiter(cfg.RatePerMinute, cfg.RateBurst)
	log.Printf("✓ Rate limiter initialized (%d req/min per context, burst %d)", cfg.RatePerMinute, cfg.RateBurst)

	// HTTP + channel surface
	handler := api.NewHandler(dispatcher, authMgr, notifier, limiter)
	router := handler.SetupRoutes()
	log.Println("✓ HTTP routes configured")

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the channel endpoint holds its connection open
		IdleTimeout:  60 * time.Second,
	}

	// Liveness self-probe: flushes out silent wedges between events
	probeCtx, cancelProbe := context.WithCancel(context.Background())
	defer cancelProbe()
	prober := liveness.New(liveness.SelfTarget(cfg.ListenAddr), cfg.ProbeInterval)
	go prober.Run(probeCtx)
	log.Printf("✓ Liveness prober started (every %s)", cfg.ProbeInterval)

	go func() {
		log.Printf("🚀 Coordinator listening on %s", cfg.ListenAddr)
		log.Printf("📍 API endpoints available at http://localhost%s/v1", cfg.ListenAddr)
		log.Printf("🔌 Message channel at ws://localhost%s/v1/channel", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("\n⏳ Shutting down coordinator gracefully...")
	cancelProbe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Coordinator stopped cleanly")
}
