package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/agrifin/auth-service/internal/config"
	"github.com/agrifin/auth-service/internal/database"
	"github.com/agrifin/auth-service/internal/handler"
	"github.com/agrifin/auth-service/internal/queue"
	"github.com/agrifin/auth-service/internal/ratelimit"
	"github.com/agrifin/auth-service/internal/repository"
	"github.com/agrifin/auth-service/internal/router"
	"github.com/agrifin/auth-service/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	// Redis is a hard dependency: sessions, reset tokens and the
	// login limiter live there. Refusing to start beats running with
	// no revocation and no throttling.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Fatal("redis: connection failed")
	}

	signer, err := token.NewSignerFromConfig(cfg.JWTPrivateKeyFile, cfg.JWTPublicKeyFile, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("jwt signer: %v", err)
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(rdb)
	resets := repository.NewResetRepo(rdb)
	tokens := token.NewService(signer, sessions, users, cfg.AccessTTL, cfg.RefreshTTL)
	limiter := ratelimit.New(rdb, rlCfg.Prefix)

	authHandler := handler.NewAuthHandler(cfg, rlCfg, users, resets, tokens, limiter)
	userHandler := handler.NewUserHandler(users, tokens)

	// Local security audit trail for replay events.
	go func() {
		if err := queue.StartSecurityAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.Register(e, authHandler, userHandler, limiter, rlCfg)

	addr := ":" + cfg.Port
	log.Printf("auth service listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
