package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gcs "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"

	"habitat/internal/inspection/adapters"
	inspectionhandler "habitat/internal/inspection/handler"
	inspectionmetrics "habitat/internal/inspection/metrics"
	"habitat/internal/inspection/models"
	"habitat/internal/inspection/ports"
	inspectionservice "habitat/internal/inspection/service"
	inspectionstore "habitat/internal/inspection/store/inspection"
	signerstore "habitat/internal/inspection/store/signer"
	"habitat/internal/inspection/store/tokencache"
	jwttoken "habitat/internal/jwt_token"
	"habitat/internal/platform/config"
	"habitat/internal/platform/httpserver"
	"habitat/internal/platform/logger"
	"habitat/internal/platform/metrics"
	"habitat/internal/platform/postgres"
	redisclient "habitat/internal/platform/redis"
	"habitat/internal/ratelimit"
	"habitat/internal/storage"
	"habitat/pkg/platform/audit"
	"habitat/pkg/platform/audit/publisher"
	auditmemory "habitat/pkg/platform/audit/store/memory"
	auditpostgres "habitat/pkg/platform/audit/store/postgres"
	"habitat/pkg/platform/circuit"
	"habitat/pkg/platform/outbox"
	"habitat/pkg/platform/outbox/kafka"
	"habitat/pkg/platform/outbox/relay"
	outboxmemory "habitat/pkg/platform/outbox/store/memory"
	outboxpostgres "habitat/pkg/platform/outbox/store/postgres"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type partyProvider interface {
	ports.LeaseRoster
	ports.Profiles
	ports.Leases
}

// infra holds the persistence chosen by configuration: postgres when a
// database URL is set, process memory otherwise.
type infra struct {
	db          *sql.DB
	inspections inspectionservice.InspectionStore
	signers     inspectionservice.SignerStore
	outbox      outbox.Store
	audit       audit.Store
	tx          inspectionservice.InspectionTx
	txRunner    relay.TxRunner
}

func newInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, running with in-memory stores")
		return &infra{
			inspections: inspectionstore.NewInMemory(),
			signers:     signerstore.NewInMemory(),
			outbox:      outboxmemory.New(),
			audit:       auditmemory.New(),
			tx:          inspectionservice.NewShardedTx(cfg.Inspection.TxTimeout),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.ApplySchema {
		if err := postgres.ApplySchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("database schema applied")
	}
	tx := newInspectionPostgresTx(db, cfg.Inspection.TxTimeout)
	return &infra{
		db:          db,
		inspections: inspectionstore.NewPostgres(db),
		signers:     signerstore.NewPostgres(db),
		outbox:      outboxpostgres.New(db),
		audit:       auditpostgres.New(db),
		tx:          tx,
		txRunner:    tx.runInTx,
	}, nil
}

// newBlobStore returns the configured backend wrapped in upload retries, and
// the local backend itself when it must be served over HTTP.
func newBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, *storage.Local, error) {
	var (
		backend storage.BlobStore
		local   *storage.Local
	)
	switch cfg.Storage.Backend {
	case "memory":
		backend = storage.NewInMemory()
	case "local":
		l, err := storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.LocalBaseURL, []byte(cfg.Storage.LocalSignKey))
		if err != nil {
			return nil, nil, err
		}
		backend, local = l, l
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		g, err := storage.NewGCS(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			return nil, nil, err
		}
		if err := g.Check(ctx); err != nil {
			return nil, nil, fmt.Errorf("gcs bucket check: %w", err)
		}
		backend = g
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return storage.NewRetrying(backend, cfg.Inspection.UploadMaxAttempts, cfg.Inspection.UploadInitialDelay), local, nil
}

// startRelay publishes outbox entries to Kafka until ctx ends or the returned
// stop func is called. Without brokers the entries stay in the outbox.
func startRelay(ctx context.Context, cfg config.Config, inf *infra, log *slog.Logger) (func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("KAFKA_BROKERS not set, outbox relay disabled")
		return func() {}, nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		producer.Close()
		return nil, fmt.Errorf("ensure kafka topic: %w", err)
	}

	opts := []relay.Option{
		relay.WithLogger(log),
		relay.WithMetrics(relay.NewMetrics()),
		relay.WithInterval(cfg.Kafka.RelayInterval),
		relay.WithBatchSize(cfg.Kafka.RelayBatchSize),
		relay.WithBreaker(circuit.New("kafka", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(1))),
	}
	if inf.txRunner != nil {
		opts = append(opts, relay.WithTxRunner(inf.txRunner))
	}
	r := relay.New(inf.outbox, producer, opts...)

	stop := r.Start(ctx)
	log.Info("outbox relay started", "topic", cfg.Kafka.Topic, "brokers", strings.Join(cfg.Kafka.Brokers, ","))
	return func() {
		stop()
		producer.Close()
	}, nil
}

// healthz reports 503 when a configured backing service does not answer.
func healthz(db *sql.DB, rc *redisclient.Client, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		if db != nil {
			err = db.PingContext(r.Context())
		}
		if err == nil && rc != nil {
			err = rc.Health(r.Context())
		}
		if err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	inf, err := newInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	if inf.db != nil {
		defer inf.db.Close()
	}

	blobs, local, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	auditPublisher := publisher.NewPublisher(inf.audit,
		publisher.WithAsyncBuffer(cfg.Inspection.AuditBufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	// The in-memory directory starts empty.
	var parties partyProvider = adapters.NewDirectory()
	if inf.db != nil {
		parties = adapters.NewPostgres(inf.db)
	}

	opts := []inspectionservice.Option{
		inspectionservice.WithLogger(log),
		inspectionservice.WithMetrics(inspectionmetrics.New()),
		inspectionservice.WithEventSink(outbox.NewSink(inf.outbox, models.EntityInspection)),
		inspectionservice.WithAuditSink(auditPublisher),
		inspectionservice.WithAuditTrail(auditPublisher),
		inspectionservice.WithTx(inf.tx),
		inspectionservice.WithInvitationTTL(cfg.Inspection.InvitationTTL),
		inspectionservice.WithSignedURLTTL(cfg.Inspection.SignedURLTTL),
		inspectionservice.WithMaxSignatureBytes(int(cfg.Inspection.MaxSignatureBytes)),
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		opts = append(opts, inspectionservice.WithTokenIndex(tokencache.New(rc.Client, cfg.Redis.TokenTTL)))
		log.Info("invitation token cache enabled")
	}

	svc, err := inspectionservice.New(inspectionservice.Dependencies{
		Inspections: inf.inspections,
		Signers:     inf.signers,
		Roster:      parties,
		Profiles:    parties,
		Leases:      parties,
		Blobs:       blobs,
	}, opts...)
	if err != nil {
		return err
	}

	stopRelay, err := startRelay(ctx, cfg, inf, log)
	if err != nil {
		return err
	}
	defer stopRelay()

	jwtService := jwttoken.New(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", healthz(inf.db, rc, log))
	if local != nil {
		prefix := "/files"
		if u, err := url.Parse(cfg.Storage.LocalBaseURL); err == nil && u.Path != "" {
			prefix = strings.TrimSuffix(u.Path, "/")
		}
		router.Handle(prefix+"/*", http.StripPrefix(prefix, local))
	}
	var buckets ratelimit.BucketStore = ratelimit.NewInMemoryBucketStore()
	if rc != nil {
		buckets = ratelimit.NewRedisBucketStore(rc.Client)
	}
	limiter := ratelimit.New(buckets, log, cfg.RateLimit.TokenRequests, cfg.RateLimit.TokenWindow,
		ratelimit.WithMetrics(ratelimit.NewMetrics()))
	inspectionhandler.New(svc, log, metrics.New(), jwtService,
		inspectionhandler.WithTokenRateLimit(limiter.ByIP("sign")),
	).Register(router)

	srv := httpserver.New(cfg.Server, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting habitat", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
