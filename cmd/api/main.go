package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/outbox"
	cartrepo "storefront/internal/repository/cart"
	customerrepo "storefront/internal/repository/customer"
	entitlementrepo "storefront/internal/repository/entitlement"
	orderrepo "storefront/internal/repository/order"
	productrepo "storefront/internal/repository/product"
	reviewrepo "storefront/internal/repository/review"
	tokenrepo "storefront/internal/repository/token"
	anonymoussvc "storefront/internal/service/anonymous"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/catalog"
	"storefront/internal/service/checkout"
	customersvc "storefront/internal/service/customer"
	entitlementsvc "storefront/internal/service/entitlement"
	"storefront/internal/service/identity"
	"storefront/internal/service/pricing"
	reviewsvc "storefront/internal/service/review"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	var (
		rdb            *redis.Client
		sessionBacking cartrepo.SessionBacking
		sessions       *anonymoussvc.Service
	)
	if cfg.RedisAddr != "" {
		rdb, err = db.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatalf("connect to redis: %v", err)
		}
		defer rdb.Close()
		sessionBacking = cartrepo.NewRedis(rdb, cfg.SessionCartTTL, logger)
		sessions = anonymoussvc.NewRedis(rdb, cfg.SessionCartTTL, logger)
	} else {
		logger.Printf("REDIS_ADDR not set, session carts and tokens are kept in process")
		sessionBacking = cartrepo.NewMemory(cfg.SessionCartTTL)
		sessions = anonymoussvc.New(cfg.SessionCartTTL)
	}

	recorder := entitlementsvc.NewRecorder(entitlementrepo.NewPostgres(dbpool, logger), logger)
	catalogService := catalog.New(productrepo.NewPostgres(dbpool, logger), recorder, logger)
	engine := pricing.New(func() pricing.Resolver { return catalogService.NewResolver() }, cfg.PricingConcurrency, logger)

	cartStore := cartrepo.NewStore(sessionBacking, cartrepo.NewPostgres(dbpool, logger))
	customerService := customersvc.New(customerrepo.NewPostgres(dbpool, logger), tokenrepo.NewPostgres(dbpool))
	orders := orderrepo.NewPostgres(dbpool, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Catalog:     catalogService,
		Carts:       cartsvc.New(cartStore, engine, catalogService),
		Customers:   customerService,
		Sessions:    sessions,
		Identity:    identity.NewBridge(cartStore, engine, logger),
		Checkout:    checkout.New(cartStore, engine, customerService, orders, recorder, cfg.GrantAttempts, logger),
		Reviews:     reviewsvc.New(reviewrepo.NewPostgres(dbpool, logger), catalogService, recorder),
		Orders:      orders,
		Redis:       rdb,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	relayDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer writer.Close()
		hostname, _ := os.Hostname()
		relay := outbox.NewRelay(logger, outbox.NewPostgresStore(dbpool, logger),
			outbox.NewDispatcher(logger, writer, cfg.OrderEventsTopic), "api-"+hostname)
		go func() {
			defer close(relayDone)
			logger.Printf("starting outbox relay topic=%s", cfg.OrderEventsTopic)
			_ = relay.Run(ctx)
		}()
	} else {
		logger.Printf("KAFKA_BROKERS not set, order events stay in the outbox")
		close(relayDone)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
	stop()
	<-relayDone
}
