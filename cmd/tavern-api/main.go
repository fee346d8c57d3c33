package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/PabloGalante/tavern-agent/internal/adapters/http"
	"github.com/PabloGalante/tavern-agent/internal/adapters/llm"
	boltstore "github.com/PabloGalante/tavern-agent/internal/adapters/storage/bbolt"
	firestorestore "github.com/PabloGalante/tavern-agent/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/tavern-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/tavern-agent/internal/adapters/storage/sealed"
	sqlitestore "github.com/PabloGalante/tavern-agent/internal/adapters/storage/sqlite"
	supabasestore "github.com/PabloGalante/tavern-agent/internal/adapters/storage/supabase"
	"github.com/PabloGalante/tavern-agent/internal/app/chronicle"
	"github.com/PabloGalante/tavern-agent/internal/app/session"
	"github.com/PabloGalante/tavern-agent/internal/config"
	"github.com/PabloGalante/tavern-agent/internal/domain"
	"github.com/PabloGalante/tavern-agent/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	observability.SetLevel(cfg.LogLevel)

	shutdownTracing, err := observability.SetupTracing(ctx, "tavern-api", cfg.OTelEndpoint)
	if err != nil {
		log.Error("error initializing tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	newGateway, err := gatewayFactory(cfg)
	if err != nil {
		log.Error("error initializing completion gateway", "error", err)
		os.Exit(1)
	}

	kv, chron, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		log.Error("error initializing storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if cfg.SealKey != "" {
		key, err := cfg.SealKeyBytes()
		if err != nil {
			log.Error("invalid seal key", "error", err)
			os.Exit(1)
		}
		if kv, err = sealed.Wrap(kv, key); err != nil {
			log.Error("error initializing credential sealing", "error", err)
			os.Exit(1)
		}
		log.Info("credential sealing enabled")
	}

	registry := session.NewRegistry(session.Options{
		Store:      kv,
		NewGateway: newGateway,
		Chronicle:  chron,
	})
	handler := httpadapter.NewServer(registry, chronicle.NewService(chron))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("tavern API listening", "port", cfg.Port, "llm_backend", cfg.LLMBackend, "storage_backend", cfg.StorageBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func gatewayFactory(cfg *config.Config) (domain.GatewayFactory, error) {
	log := observability.Logger()

	switch cfg.LLMBackend {
	case config.LLMBackendMock:
		log.Info("using mock completion gateway")
		return llm.NewMockGatewayFactory(), nil
	case config.LLMBackendGemini:
		log.Info("using Gemini completion gateway", "model", cfg.GeminiModel)
		return llm.NewGeminiGatewayFactory(cfg.GeminiModel), nil
	default:
		var tokens *llm.TokenEstimator
		if cfg.TokenEstimates {
			var err error
			if tokens, err = llm.NewTokenEstimator(); err != nil {
				return nil, err
			}
		}
		log.Info("using HTTP completion gateway", "token_estimates", tokens != nil)
		return llm.NewHTTPGatewayFactory(cfg.Origin, &http.Client{Timeout: llm.RequestTimeout}, tokens), nil
	}
}

// openStorage returns the credential store, the chronicle store and a closer.
// Supabase only holds the credential; its chronicle stays in memory.
func openStorage(ctx context.Context, cfg *config.Config) (domain.KVStore, domain.ChronicleStore, func(), error) {
	log := observability.Logger()
	noop := func() {}

	switch cfg.StorageBackend {
	case config.StorageBolt:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Info("using bbolt storage", "path", cfg.BoltPath)
		return s, s, func() { _ = s.Close() }, nil

	case config.StorageSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		return s, s, func() { _ = s.Close() }, nil

	case config.StorageFirestore:
		s, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Info("using Firestore storage", "project", cfg.GCPProjectID)
		return s, s, func() { _ = s.Close() }, nil

	case config.StorageSupabase:
		s, err := supabasestore.NewStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Info("using Supabase storage", "table", cfg.SupabaseTable)
		return s, memstore.NewChronicleStore(), noop, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewKVStore(), memstore.NewChronicleStore(), noop, nil
	}
}
