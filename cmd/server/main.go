package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"folio/internal/auth"
	"folio/internal/config"
	"folio/internal/domain/services"
	"folio/internal/handler"
	"folio/internal/middleware"
	authService "folio/internal/service/auth"
	"folio/internal/service/blob"
	serviceDocsys "folio/internal/service/docsystem"
	fanoutSvc "folio/internal/service/fanout"
	serviceRevision "folio/internal/service/revision"
	serviceTimeline "folio/internal/service/timeline"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLog, err := config.NewLogger(cfg.Environment, cfg.LogDir, cfg.LogMaxFiles)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"storage", cfg.Storage,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	// Fan-out hub, with optional cross-instance relay and change feed
	hub := fanoutSvc.NewHub(fanoutSvc.Config{
		Shards:     cfg.Engine.Hub.Shards,
		BufferSize: cfg.Engine.Hub.BufferSize,
	}, logger)
	defer hub.Close()

	healthChecks := map[string]handler.HealthCheck{"storage": store.health}

	var relay *fanoutSvc.RedisRelay
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		relay = fanoutSvc.NewRedisRelay(rdb, cfg.RedisChannel, hub, logger)
		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("redis relay enabled", "channel", cfg.RedisChannel)
	}

	var sink *fanoutSvc.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		sink = fanoutSvc.NewKafkaSink(fanoutSvc.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), hub, logger)
		logger.Info("change feed enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	stripes := fanoutSvc.NewStripes(cfg.Engine.Hub.Shards * 4)
	authorizer := authService.NewDocumentAccessAuthorizer(store.docs)

	// Attachment blobs are optional; without a bucket file references are not verified
	var blobs services.BlobStore
	if cfg.BlobBucket != "" {
		s3Store, err := blob.NewS3Store(ctx, cfg.BlobRegion, cfg.BlobBucket)
		if err != nil {
			return err
		}
		blobs = s3Store
		logger.Info("blob store enabled", "bucket", cfg.BlobBucket, "region", cfg.BlobRegion)
	}

	// Services
	timelineService := serviceTimeline.NewService(serviceTimeline.Config{
		EventRepo:        store.events,
		FlaggedRepo:      store.flagged,
		MessageRepo:      store.messages,
		Authorizer:       authorizer,
		TxManager:        store.txManager,
		Publisher:        hub,
		Stripes:          stripes,
		MaxSummaryLength: cfg.Engine.Timeline.MaxSummaryLength,
		Logger:           logger,
	})
	flaggedService := serviceTimeline.NewFlaggedVersionService(serviceTimeline.Config{
		EventRepo:   store.events,
		FlaggedRepo: store.flagged,
		MessageRepo: store.messages,
		Authorizer:  authorizer,
		TxManager:   store.txManager,
		Publisher:   hub,
		Stripes:     stripes,
		Logger:      logger,
	})
	documentService := serviceDocsys.NewDocumentService(serviceDocsys.DocumentServiceConfig{
		DocRepo:         store.docs,
		ContentRepo:     store.contents,
		Authorizer:      authorizer,
		TxManager:       store.txManager,
		Recorder:        timelineService,
		Publisher:       hub,
		Stripes:         stripes,
		MaxPayloadBytes: cfg.Engine.Revision.MaxPayloadBytes,
		Logger:          logger,
	})
	contentStore := serviceDocsys.NewContentStore(store.contents, authorizer, cfg.Engine.Revision.MaxPayloadBytes, logger)

	// Revision jobs run as mstream streams keyed by message id
	provider, err := serviceRevision.NewProvider(cfg.RevisionProvider, cfg.AnthropicAPIKey)
	if err != nil {
		return err
	}
	reviser := serviceRevision.NewDirectReviser(serviceRevision.NewLLMReviser(provider, cfg.RevisionModel))
	runner := serviceRevision.NewStreamRunner(mstream.NewRegistry(), store.contents, reviser, cfg.Engine.Revision.Timeout, logger)

	messageService := serviceRevision.NewService(serviceRevision.Config{
		MessageRepo:      store.messages,
		ThreadRepo:       store.threads,
		DocRepo:          store.docs,
		ContentRepo:      store.contents,
		Authorizer:       authorizer,
		TxManager:        store.txManager,
		Recorder:         timelineService,
		Timeline:         timelineService,
		Publisher:        hub,
		Blobs:            blobs,
		Runner:           runner,
		Stripes:          stripes,
		MaxSummaryLength: cfg.Engine.Timeline.MaxSummaryLength,
		Logger:           logger,
	})
	runner.Attach(messageService)

	// Jobs cut off by the previous shutdown cannot resume
	recovered, err := messageService.RecoverOrphans(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		logger.Warn("failed orphaned revisions", "count", recovered)
	}

	logger.Info("services initialized", "revision_provider", cfg.RevisionProvider)

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	routes := &handler.Routes{
		Health:    handler.NewHealthHandler(healthChecks),
		Documents: handler.NewDocumentHandler(documentService, contentStore, logger),
		Timeline:  handler.NewTimelineHandler(timelineService, flaggedService, logger),
		Messages:  handler.NewMessageHandler(messageService, logger),
		Events: handler.NewEventsHandler(hub, documentService, messageService, handler.EventsConfig{
			KeepAlive:      cfg.Engine.Hub.KeepAlive,
			AllowedOrigins: corsOrigins,
		}, logger),
	}
	routes.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware, closeAuth, err := newAuthMiddleware(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAuth()

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → RequestLogger → Recovery → Auth → Routes
	var h http.Handler = mux
	h = authMiddleware(h)
	h = middleware.Recovery(logger)(h)
	h = middleware.RequestLogger(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE and WebSocket streams
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	if sink != nil {
		g.Go(func() error { return sink.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Ending subscriptions first lets SSE and WebSocket handlers return
		hub.Close()
		err := server.Shutdown(shutdownCtx)
		if waitErr := runner.Wait(shutdownCtx); waitErr != nil {
			logger.Warn("revision jobs still running at shutdown", "error", waitErr)
		}
		return err
	})

	return g.Wait()
}

// newAuthMiddleware picks JWKS, shared-secret or (dev only) static-user authentication
func newAuthMiddleware(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, func(), error) {
	var (
		verifier *auth.JWTVerifier
		err      error
	)
	switch {
	case cfg.JWTSecret != "":
		verifier, err = auth.NewSecretVerifier([]byte(cfg.JWTSecret), logger)
	case cfg.SupabaseJWKSURL != "":
		verifier, err = auth.NewJWKSVerifier(ctx, cfg.SupabaseJWKSURL, logger)
	case cfg.Environment == "dev" || cfg.Environment == "test":
		logger.Warn("DEV MODE: authentication disabled, all requests act as the dev user", "user_id", cfg.DevUserID)
		return middleware.StaticUserMiddleware(cfg.DevUserID), func() {}, nil
	default:
		return nil, nil, errors.New("no authentication configured")
	}
	if err != nil {
		return nil, nil, err
	}
	return middleware.AuthMiddleware(verifier, logger), func() { verifier.Close() }, nil
}
