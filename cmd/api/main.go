package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shelfmerch/shopify-bridge/internal/application"
	"github.com/shelfmerch/shopify-bridge/internal/application/webhook_handlers"
	"github.com/shelfmerch/shopify-bridge/internal/config"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/auth"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/metrics"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/repository"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/session"
	shopifyinfra "github.com/shelfmerch/shopify-bridge/internal/infrastructure/shopify"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/synclock"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("No .env file found, reading environment directly")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Connect to MongoDB
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())
	db := client.Database(cfg.MongoDatabase)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	// Repositories
	storeRepo := repository.NewMongoStoreRepository(db)
	deliveryRepo := repository.NewMongoDeliveryRepository(db)
	recordRepo := repository.NewMongoRecordRepository(db)

	// Upstream and verification infrastructure
	upstream := shopifyinfra.NewClient(cfg.APIKey, cfg.APISecret, cfg.APIVersion, cfg.UpstreamTimeout, logger)
	verifier := shopifyinfra.NewVerifier(cfg.APISecret)
	subscriptions := shopifyinfra.NewSubscriptionManager(cfg.APIKey, cfg.APISecret, cfg.AppURL, logger)
	locker := synclock.NewRedisLocker(redisClient, cfg.SyncLockTTL)

	m := metrics.New()

	cookies := session.NewCookieCodec(
		cfg.CookieHashKey,
		cfg.CookieBlockKey,
		cfg.StateCookieTTL,
		cfg.OperatorCookieTTL,
		strings.HasPrefix(cfg.AppURL, "https://"),
	)
	tokens := auth.NewTokenVerifier(cfg.JWTSecret)

	// Application services
	handshake := application.NewHandshakeService(
		storeRepo,
		upstream,
		subscriptions,
		verifier,
		m,
		logger,
		cfg.APIKey,
		cfg.Scopes,
		cfg.AppURL,
	)

	dispatcher := application.NewWebhookDispatcher(logger)
	dispatcher.RegisterHandler(webhook_handlers.NewOrderHandler(recordRepo, logger))
	dispatcher.RegisterHandler(webhook_handlers.NewUninstallHandler(storeRepo, subscriptions, m, logger))

	receiver := application.NewWebhookReceiver(deliveryRepo, storeRepo, verifier, dispatcher, m, logger)

	syncService := application.NewSyncService(
		storeRepo,
		recordRepo,
		upstream,
		locker,
		m,
		logger,
		cfg.SyncPageSize,
		cfg.OrdersLookback,
		cfg.ProductsLookback,
	)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", healthHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Browser-facing OAuth handshake
	r.Get("/install/start", installStartHandler(handshake, cookies, tokens, logger))
	r.Get("/install/callback", installCallbackHandler(handshake, cookies, cfg.EmbeddedAppURL, logger))
	r.Get("/status", statusHandler(handshake, logger))

	// Upstream-facing webhook receiver
	r.Post("/webhooks/*", webhookReceiveHandler(receiver, logger))

	// Operator routes require a platform bearer token.
	r.Group(func(r chi.Router) {
		r.Use(bearerMiddleware(tokens, logger))
		r.Post("/link-account", linkAccountHandler(handshake, logger))
		r.Get("/stores", listStoresHandler(handshake, logger))
		r.Post("/sync", syncHandler(syncService, logger))
		r.Get("/deliveries", deliveriesHandler(receiver, logger))
	})

	logger.Info().Str("port", cfg.Port).Msg("Starting shopify-bridge API server")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}
