package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"profilevault/internal/barrier"
	"profilevault/internal/cryptoprov"
	"profilevault/internal/encryption"
	"profilevault/internal/isolation"
	"profilevault/internal/keys"
	"profilevault/internal/platform/config"
	"profilevault/internal/platform/httpserver"
	"profilevault/internal/platform/logger"
	"profilevault/internal/platform/metrics"
	platformredis "profilevault/internal/platform/redis"
	"profilevault/internal/profile"
	"profilevault/internal/recordstore"
	"profilevault/internal/segregation"
	"profilevault/internal/sessiontoken"
	httptransport "profilevault/internal/transport/http"
	audit "profilevault/pkg/platform/audit"
	security "profilevault/pkg/platform/audit/publishers/security"
	"profilevault/pkg/platform/audit/retention"
	auditrecord "profilevault/pkg/platform/audit/store/record"
)

const (
	tokenIssuer   = "profilevault"
	tokenAudience = "profilevault"
)

// main wires the record store, crypto stack, domain services, and transport,
// then runs the server until interrupted. Business logic lives in the
// internal packages; everything here is assembly.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "profilevault:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, closeStore, err := openRecordStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	auditStore := auditrecord.New(records)

	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithAsyncBuffer(1024),
	}
	var sink *security.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		buffer := security.NewRingBuffer(10000)
		sink, err = security.NewKafkaSink(ctx, security.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, buffer, log)
		if err != nil {
			return fmt.Errorf("security sink: %w", err)
		}
		auditOpts = append(auditOpts, audit.WithSecuritySink(sink))
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)
	defer publisher.Close()

	provider := cryptoprov.New()
	keySvc := keys.NewService(provider, keys.WithLogger(log))
	encryptor := encryption.NewEncryptor(keySvc, provider,
		encryption.WithLogger(log),
		encryption.WithMetrics(m),
	)
	segregator := segregation.NewSegregator(records, encryptor, provider,
		segregation.WithLogger(log),
		segregation.WithMetrics(m),
		segregation.WithAudit(publisher),
	)
	isolationMgr := isolation.NewManager(records, provider,
		isolation.WithLogger(log),
		isolation.WithMetrics(m),
		isolation.WithAudit(publisher),
	)
	barrierStore := barrier.NewStore(records)
	barrierMgr := barrier.NewManager(barrierStore, records,
		barrier.WithLogger(log),
		barrier.WithMetrics(m),
		barrier.WithAudit(publisher),
	)
	profiles := profile.NewService(profile.NewStore(records), records, keySvc, provider,
		isolationMgr, barrierMgr,
		profile.WithLogger(log),
		profile.WithMetrics(m),
		profile.WithAudit(publisher),
	)

	sessions := sessiontoken.NewService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)

	handler := httptransport.NewHandler(profiles, segregator, isolationMgr, barrierMgr,
		barrierStore, auditStore, sessions, cfg.SessionTTL, log)
	router := httptransport.NewRouter(handler, httptransport.Config{
		AdminToken: cfg.AdminToken,
		SessionTTL: cfg.SessionTTL,
	})

	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("profilevault listening", "addr", cfg.Addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if sink != nil {
		group.Go(func() error {
			err := sink.Run(ctx)
			sink.Close()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if cfg.StoreBackend == "postgres" {
		db, err := retention.Open(cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		sweeper := retention.NewSweeper(db, log)
		group.Go(func() error {
			if err := sweeper.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("profilevault stopped")
	return nil
}

// openRecordStore selects the record store backend. The returned closer is
// always safe to call.
func openRecordStore(ctx context.Context, cfg config.Config) (recordstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return recordstore.NewInMemory(), func() {}, nil

	case "redis":
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		if client == nil {
			return nil, nil, errors.New("redis store selected but PROFILEVAULT_REDIS_URL is empty")
		}
		return recordstore.NewRedis(client.Client), func() { _ = client.Close() }, nil

	case "postgres":
		if cfg.Postgres.URL == "" {
			return nil, nil, errors.New("postgres store selected but PROFILEVAULT_POSTGRES_URL is empty")
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		store := recordstore.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
