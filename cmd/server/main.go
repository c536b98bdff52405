package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketplace-listing-api/internal/config"
	"marketplace-listing-api/internal/fetchers"
	"marketplace-listing-api/internal/handlers"
	"marketplace-listing-api/internal/session"
	"marketplace-listing-api/pkg/cache"
	"marketplace-listing-api/pkg/credentials"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	creds, err := credentials.NewCookieStore(cfg.APIURL, cfg.AuthCookie)
	if err != nil {
		log.Fatal("Failed to create credential store:", err)
	}
	if cfg.Token != "" {
		creds.Set(cfg.Token)
	}

	redisCache := cache.NewRedisCache()
	defer func() {
		if err := redisCache.Close(); err != nil {
			log.Printf("Failed to close Redis: %v", err)
		}
	}()

	views := make([]*session.View, 0, len(cfg.Views))
	for _, vc := range cfg.Views {
		fc := vc.FetcherConfig(cfg.APIURL, cfg.HTTPTimeout)
		view := session.New(vc.Name,
			fetchers.NewCollectionFetcher(fc, creds, redisCache),
			fetchers.NewMutationDispatcher(fc, creds))
		views = append(views, view)
	}

	mountCtx, cancelMount := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	for _, view := range views {
		if err := view.Mount(mountCtx); err != nil {
			log.Printf("View %s mounted empty: %v", view.Name(), err)
		} else {
			log.Printf("View %s mounted", view.Name())
		}
	}
	cancelMount()

	server := handlers.NewServer(views, creds, redisCache, handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting marketplace listing server on :%s (%d views)", cfg.Port, len(views))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	for _, view := range views {
		view.Unmount()
	}
	log.Println("Server exited")
}
