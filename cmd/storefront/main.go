package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/catalog"
	"github.com/KoushikPanda1729/client-ui/internal/events"
	"github.com/KoushikPanda1729/client-ui/internal/handlers"
	"github.com/KoushikPanda1729/client-ui/internal/platform/config"
	"github.com/KoushikPanda1729/client-ui/internal/platform/format"
	"github.com/KoushikPanda1729/client-ui/internal/platform/idempotency"
	"github.com/KoushikPanda1729/client-ui/internal/platform/observability"
	"github.com/KoushikPanda1729/client-ui/internal/platform/requestctx"
	"github.com/KoushikPanda1729/client-ui/internal/platform/secrets"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
	"github.com/KoushikPanda1729/client-ui/internal/realtime"
	"github.com/KoushikPanda1729/client-ui/internal/services"
	"github.com/KoushikPanda1729/client-ui/internal/session"
)

const secretHealthReference = "secret://system/healthz?version=latest"

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger.Named("secrets"), envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Session.HashKey"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	eventLogger := observability.EventLogger(logger)

	gateway, err := upstream.New(upstream.Config{
		Name:            "gateway",
		BaseURL:         cfg.Upstream.GatewayURL,
		Timeout:         cfg.Upstream.Timeout,
		BreakerFailures: uint32(cfg.Upstream.BreakerFailures),
		BreakerCooldown: cfg.Upstream.BreakerCooldown,
		OnBreakerChange: metrics.BreakerTransition,
	})
	if err != nil {
		logger.Fatal("failed to initialise gateway client", zap.Error(err))
	}

	var history *realtime.HistoryClient
	if cfg.Upstream.ChatURL != "" {
		chatAPI, err := upstream.New(upstream.Config{
			Name:            "chat",
			BaseURL:         cfg.Upstream.ChatURL,
			Timeout:         cfg.Upstream.Timeout,
			BreakerFailures: uint32(cfg.Upstream.BreakerFailures),
			BreakerCooldown: cfg.Upstream.BreakerCooldown,
			OnBreakerChange: metrics.BreakerTransition,
		})
		if err != nil {
			logger.Fatal("failed to initialise chat client", zap.Error(err))
		}
		if history, err = realtime.NewHistoryClient(chatAPI); err != nil {
			logger.Fatal("failed to initialise chat history client", zap.Error(err))
		}
	}

	publicAuth, err := auth.NewClient(gateway)
	if err != nil {
		logger.Fatal("failed to initialise auth client", zap.Error(err))
	}
	authService, err := services.NewAuthService(services.AuthServiceDeps{
		Public: publicAuth,
		Logger: eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise auth service", zap.Error(err))
	}
	catalogClient, err := catalog.NewClient(gateway)
	if err != nil {
		logger.Fatal("failed to initialise catalog client", zap.Error(err))
	}

	publisher, closePublisher := newPublisher(ctx, logger, cfg.Events)
	defer closePublisher()

	factory, err := session.NewFactory(session.FactoryDeps{
		Gateway:                 gateway,
		Keys:                    idempotency.NewGenerator(time.Now, nil),
		Publisher:               publisher,
		Metrics:                 metrics,
		Currency:                cfg.Checkout.Currency,
		CouponAttemptsPerMinute: cfg.Checkout.CouponAttemptsPerMinute,
		RefreshBuffer:           cfg.Auth.RefreshBuffer,
		Logger:                  eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise session factory", zap.Error(err))
	}
	store := session.NewStore(cfg.Session.IdleTTL, time.Now, eventLogger)
	manager, err := session.NewManager(session.ManagerConfig{
		CookieName: cfg.Session.CookieName,
		HashKey:    []byte(cfg.Session.HashKey),
		BlockKey:   []byte(cfg.Session.BlockKey),
		Secure:     cfg.Session.Secure,
	}, store, factory)
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	sweepCtx, sweepCancel := context.WithCancel(ctx)
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		store.Run(sweepCtx, cfg.Session.SweepInterval)
	}()

	money := format.NewMoney(cfg.Checkout.Currency, cfg.Checkout.Locale)
	authHandlers := handlers.NewAuthHandlers(authService)
	catalogHandlers := handlers.NewCatalogHandlers(catalogClient)
	cartHandlers := handlers.NewCartHandlers(catalogClient, money)
	checkoutHandlers := handlers.NewCheckoutHandlers(money)
	accountHandlers := handlers.NewAccountHandlers()
	chatHandlers := handlers.NewChatHandlers(history)
	socketHandlers := handlers.NewSocketHandlers(handlers.SocketConfig{
		ChatURL:        cfg.Upstream.ChatURL,
		CallURL:        cfg.Upstream.CallURL,
		OrderURL:       cfg.Upstream.OrderSocketURL,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, history, eventLogger)

	var healthOpts []handlers.HealthOption
	if cfg.Secrets.ProjectID != "" && cfg.Secrets.Environment != "local" {
		healthOpts = append(healthOpts, handlers.WithHealthCheck("secretManager", secretManagerCheck(fetcher)))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware,
			observability.RequestLoggerMiddleware,
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithSessions(manager.Middleware),
		handlers.WithAllowedOrigins(cfg.CORS.AllowedOrigins),
		handlers.WithAPIRoutes(
			authHandlers.Routes,
			catalogHandlers.Routes,
			cartHandlers.Routes,
			checkoutHandlers.Routes,
			accountHandlers.Routes,
			chatHandlers.Routes,
		),
		handlers.WithSocketRoutes(socketHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening",
			zap.String("gateway", cfg.Upstream.GatewayURL),
			zap.Bool("pubsub", cfg.Events.Enabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// Stopping the sweeper closes every live session and its sockets.
	sweepCancel()
	sweepWG.Wait()
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	environment := strings.ToLower(lookup("STOREFRONT_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	var opts []option.ClientOption
	if credentials := lookup("STOREFRONT_GCP_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	return secrets.NewFetcher(ctx, secrets.Config{
		ProjectID:    lookup("STOREFRONT_SECRETS_PROJECT_ID"),
		Environment:  environment,
		FallbackPath: lookup("STOREFRONT_SECRETS_LOCAL_FILE"),
		Logger:       logger,
		ClientOpts:   opts,
	})
}

// newPublisher returns the Pub/Sub publisher when a topic is configured and a
// log publisher otherwise. The returned func stops the topic and client.
func newPublisher(ctx context.Context, logger *zap.Logger, cfg config.EventsConfig) (events.Publisher, func()) {
	fallback := events.NewLogPublisher(logger.Named("events"))
	if !cfg.Enabled() {
		return fallback, func() {}
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Warn("pubsub unavailable; order events will be logged", zap.Error(err))
		return fallback, func() {}
	}
	topic := client.Topic(cfg.TopicID)
	publisher, err := events.NewPubSubPublisher(topic)
	if err != nil {
		_ = client.Close()
		logger.Warn("pubsub publisher unavailable; order events will be logged", zap.Error(err))
		return fallback, func() {}
	}
	return publisher, func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
}

func secretManagerCheck(fetcher *secrets.Fetcher) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := fetcher.Resolve(ctx, secretHealthReference)
		if err == nil {
			return nil
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return err
	}
}
