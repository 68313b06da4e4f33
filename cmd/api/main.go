package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/realtime"
	cartrepo "storefront/internal/repository/cart"
	chatrepo "storefront/internal/repository/chat"
	orderrepo "storefront/internal/repository/order"
	productrepo "storefront/internal/repository/product"
	userrepo "storefront/internal/repository/user"
	cartsvc "storefront/internal/service/cart"
	chatsvc "storefront/internal/service/chat"
	"storefront/internal/service/checkout"
	productsvc "storefront/internal/service/product"

	"github.com/redis/go-redis/v9"
)

func main() {
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	if err := config.LoadDotEnv(); err != nil {
		logger.Fatalf("%v", err)
	}
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("connect to redis: %v", err)
		}
		defer rdb.Close()
	}

	var broker realtime.Broker
	if rdb != nil {
		broker = realtime.NewRedisBroker(rdb, logger)
	} else {
		logger.Printf("REDIS_ADDR not set, realtime events stay in-process")
		broker = realtime.NewMemoryBroker()
	}

	var cartStore cartrepo.Store
	switch cfg.CartStore {
	case config.CartStoreRedis:
		cartStore = cartrepo.NewRedis(rdb, logger)
	default:
		cartStore = cartrepo.NewPostgres(dbpool, logger)
	}
	policy, err := cartsvc.ParseStockPolicy(cfg.CartStockPolicy)
	if err != nil {
		logger.Fatalf("cart stock policy: %v", err)
	}

	productRepo := productrepo.NewPostgres(dbpool, logger)
	userRepo := userrepo.NewPostgres(dbpool, logger)
	orderRepo := orderrepo.NewPostgres(dbpool, logger)
	chatRepo := chatrepo.NewPostgres(dbpool, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		ProductSvc:            productsvc.New(productRepo),
		Carts:                 cartsvc.NewRegistry(cartStore, cfg.CartStorageKey, cartsvc.WithLogger(logger), cartsvc.WithStockPolicy(policy)),
		CheckoutSvc:           checkout.New(productRepo, orderRepo, logger),
		ChatSvc:               chatsvc.New(chatRepo, userRepo, broker, logger),
		Verifier:              auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Users:                 userRepo,
		Redis:                 rdb,
		CORSAllowedOrigins:    cfg.CORSAllowedOrigins,
		ChatSendRatePerMinute: cfg.ChatSendRatePerMinute,
		ChatPollInterval:      cfg.ChatPollInterval,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
