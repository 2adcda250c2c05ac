package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gorilla/sessions"

	"github.com/tolgabayrakdev/tabfer-project/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	audit, auditCloser, err := core.NewAuditLogger(cfg)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}
	defer auditCloser.Close()

	if err := core.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	// Gorilla cookie store backs the CSRF session.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	repos := core.Repositories{
		Users:    core.NewPgUserRepository(db),
		Contacts: core.NewPgContactRepository(db),
		Deals:    core.NewPgDealRepository(db),
		Tickets:  core.NewPgTicketRepository(db),
	}
	tokenService := core.NewTokenService(cfg)
	authService := core.NewAuthService(repos.Users, tokenService)
	threats := core.NewThreatMetrics(redisClient)

	if err := core.BootstrapAdmin(ctx, repos.Users, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	router := core.NewRouter(cfg, store, authService, repos, audit, threats)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
