package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/db"
	productrepo "storefront/internal/repository/product"
	userrepo "storefront/internal/repository/user"
	"storefront/internal/seed"
)

func main() {
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed dev tokens")
	flag.Parse()

	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	if err := config.LoadDotEnv(); err != nil {
		logger.Fatalf("%v", err)
	}
	cfg := config.FromEnv()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	res, err := seed.Apply(ctx, productrepo.NewPostgres(pool, logger), userrepo.NewPostgres(pool, logger))
	if err != nil {
		logger.Fatalf("seed apply: %v", err)
	}
	logger.Printf("seed applied products=%d users=%d", len(res.Products), len(res.Users))

	if cfg.JWTSecret == "" {
		return
	}
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	for _, u := range res.Users {
		token, err := verifier.Issue(u, *tokenTTL)
		if err != nil {
			logger.Fatalf("issue token for %s: %v", u.Email, err)
		}
		logger.Printf("dev token role=%s email=%s token=%s", u.Role, u.Email, token)
	}
}
