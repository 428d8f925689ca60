package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"vitalproof/internal/anchoring"
	anchorhandler "vitalproof/internal/anchoring/handler"
	"vitalproof/internal/anchoring/ledger/httpledger"
	kafkaledger "vitalproof/internal/anchoring/ledger/kafka"
	anchorstore "vitalproof/internal/anchoring/store"
	"vitalproof/internal/constraints"
	constrainthandler "vitalproof/internal/constraints/handler"
	constraintstore "vitalproof/internal/constraints/store"
	"vitalproof/internal/environment"
	envcache "vitalproof/internal/environment/cache"
	envhandler "vitalproof/internal/environment/handler"
	"vitalproof/internal/environment/providers/openelevation"
	"vitalproof/internal/environment/providers/openweather"
	envstore "vitalproof/internal/environment/store"
	jwttoken "vitalproof/internal/jwt_token"
	"vitalproof/internal/platform/config"
	"vitalproof/internal/platform/httpserver"
	"vitalproof/internal/platform/kafka"
	"vitalproof/internal/platform/logger"
	"vitalproof/internal/platform/metrics"
	"vitalproof/internal/platform/postgres"
	"vitalproof/internal/platform/redis"
	"vitalproof/internal/proof"
	proofhandler "vitalproof/internal/proof/handler"
	proofstore "vitalproof/internal/proof/store"
	httptransport "vitalproof/internal/transport/http"
	"vitalproof/internal/validation"
	validationhandler "vitalproof/internal/validation/handler"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/platform/audit/publishers/compliance"
	"vitalproof/pkg/platform/audit/publishers/ops"
	auditmemory "vitalproof/pkg/platform/audit/store/memory"
	auditpostgres "vitalproof/pkg/platform/audit/store/postgres"
	auditworker "vitalproof/pkg/platform/audit/worker"
	"vitalproof/pkg/platform/circuit"
	"vitalproof/pkg/platform/retry"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	contexts    environment.ContextStore
	constraints constraints.Store
	proofs      proof.Store
	receipts    anchoring.ReceiptStore
	audit       audit.Store
}

func openStores(ctx context.Context, db *sql.DB) (stores, error) {
	if db == nil {
		return stores{
			contexts:    envstore.NewInMemoryStore(),
			constraints: constraintstore.NewInMemoryStore(),
			proofs:      proofstore.NewInMemoryStore(),
			receipts:    anchorstore.NewInMemoryStore(),
			audit:       auditmemory.NewInMemoryStore(),
		}, nil
	}
	if err := postgres.Migrate(ctx, db,
		envstore.Schema,
		constraintstore.Schema,
		proofstore.Schema,
		anchorstore.Schema,
		auditpostgres.Schema,
	); err != nil {
		return stores{}, err
	}
	return stores{
		contexts:    envstore.NewPostgres(db),
		constraints: constraintstore.NewPostgres(db),
		proofs:      proofstore.NewPostgres(db),
		receipts:    anchorstore.NewPostgres(db),
		audit:       auditpostgres.New(db),
	}, nil
}

// openLedger returns nil when anchoring is disabled. The returned closer
// releases any client the ledger holds.
func openLedger(ctx context.Context, cfg config.LedgerConfig) (anchoring.Ledger, func(), error) {
	switch cfg.Backend {
	case "kafka":
		client, err := kafka.NewClient(cfg.KafkaBrokers, cfg.KafkaTopic, kgo.ProduceRequestTimeout(cfg.SubmitTimeout))
		if err != nil {
			return nil, nil, err
		}
		if err := kafka.EnsureTopic(ctx, client, cfg.KafkaTopic, 3, -1); err != nil {
			client.Close()
			return nil, nil, err
		}
		return kafkaledger.New(client, cfg.KafkaTopic), client.Close, nil
	case "http":
		l := httpledger.New(cfg.HTTPBaseURL, cfg.HTTPNetwork, cfg.RequestsPerSec,
			httpledger.WithHTTPClient(&http.Client{Timeout: cfg.SubmitTimeout}),
		)
		return l, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	st, err := openStores(ctx, db)
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var cache environment.Cache = envcache.NewInMemoryCache()
	if redisClient != nil {
		defer redisClient.Close()
		cache = envcache.NewRedisCache(redisClient.Client)
	}

	tracker := ops.New(1024)
	auditor := compliance.New(st.audit, compliance.WithLogger(log))

	weather := openweather.New(cfg.Providers.WeatherBaseURL, cfg.Providers.WeatherAPIKey,
		openweather.WithHTTPClient(&http.Client{Timeout: cfg.Providers.AttemptTimeout}),
	)
	elevation := openelevation.New(cfg.Providers.ElevationBaseURL,
		openelevation.WithHTTPClient(&http.Client{Timeout: cfg.Providers.AttemptTimeout}),
	)
	breaker := func(name string) *circuit.Breaker {
		return circuit.New(name,
			circuit.WithFailureThreshold(cfg.Providers.BreakerFailures),
			circuit.WithCooldown(cfg.Providers.BreakerCooldown),
		)
	}
	envService := environment.NewService(weather, elevation, st.contexts, cache,
		environment.WithLogger(log),
		environment.WithMetrics(m),
		environment.WithOpsTracker(tracker),
		environment.WithStaleness(cfg.Engine.ContextStaleness),
		environment.WithCacheBucket(cfg.Engine.CacheBucket),
		environment.WithBreakers(breaker(weather.ID()), breaker(elevation.ID())),
		environment.WithRetryPolicy(retry.Policy{
			Attempts:       cfg.Providers.RetryAttempts,
			AttemptTimeout: cfg.Providers.AttemptTimeout,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		}),
	)

	policy := constraints.DefaultPolicy()
	if cfg.Engine.PolicyFile != "" {
		if policy, err = constraints.LoadPolicy(cfg.Engine.PolicyFile); err != nil {
			return err
		}
	}
	constraintService := constraints.NewService(policy, envService, st.constraints,
		constraints.WithLogger(log),
		constraints.WithMetrics(m),
		constraints.WithOpsTracker(tracker),
	)

	validationOpts := validation.DefaultOptions()
	validationOpts.SigmaThreshold = cfg.Engine.SigmaThreshold
	validationOpts.Window = cfg.Engine.HistoryWindow
	validationService := validation.NewService(constraintService,
		validation.WithOptions(validationOpts),
		validation.WithLogger(log),
		validation.WithMetrics(m),
		validation.WithOpsTracker(tracker),
	)

	proofService := proof.NewService(st.proofs, validationService, constraintService, envService,
		proof.WithLogger(log),
		proof.WithMetrics(m),
		proof.WithAuditor(auditor),
	)
	proofs := proofhandler.New(proofService, log)

	ledger, closeLedger, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer closeLedger()

	authenticated := []httptransport.Registrar{
		envhandler.New(envService, log),
		constrainthandler.New(constraintService, log),
		validationhandler.New(validationService, log),
		proofs,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCancel(auditworker.NewWorker(st.audit, tracker.Events(), log).Run(gctx))
	})

	var anchorService *anchoring.Service
	if ledger != nil {
		anchorService = anchoring.NewService(proofService, ledger, st.receipts,
			anchoring.WithLogger(log),
			anchoring.WithMetrics(m),
			anchoring.WithAuditor(auditor),
			anchoring.WithOpsTracker(tracker),
			anchoring.WithRetryPolicy(retry.Policy{
				Attempts:       cfg.Ledger.SubmitAttempts,
				AttemptTimeout: cfg.Ledger.SubmitTimeout,
				InitialBackoff: 500 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
			}),
		)
		authenticated = append(authenticated, anchorhandler.New(anchorService, log))
		worker := anchoring.NewConfirmationWorker(ledger, st.receipts, cfg.Ledger.PollInterval, log, m)
		g.Go(func() error { return ignoreCancel(worker.Run(gctx)) })
		log.Info("ledger anchoring enabled", "ledger", ledger.ID())
	}

	health := map[string]httptransport.HealthCheck{}
	if db != nil {
		health["postgres"] = db.PingContext
	}
	if redisClient != nil {
		health["redis"] = redisClient.Health
	}

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:        log,
		Validator:     jwttoken.NewValidator(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience),
		Authenticated: authenticated,
		Public:        []httptransport.Registrar{httptransport.RegistrarFunc(proofs.RegisterPublic)},
		Metrics:       promhttp.Handler(),
		Health:        health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g.Go(func() error {
		log.Info("starting vitalproof", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		if anchorService != nil {
			err = errors.Join(err, anchorService.Shutdown(shutdownCtx))
		}
		if dropped := tracker.Dropped(); dropped > 0 {
			log.Warn("operational audit events dropped", "count", dropped)
		}
		return err
	})

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
