// Command server runs the Ecombot backend: an HTTP API for guided learning
// sessions with retrieval-augmented question answering.
//
// Startup order:
//  1. Load .env (best effort) and typed configuration from the environment
//  2. Configure zerolog (level, optional pretty console output)
//  3. Initialize OpenTelemetry tracing when enabled
//  4. Open SQLite and run migrations
//  5. Build the retriever tier chain (vector → lexical → stub) and the
//     generation pipeline
//  6. Register routes and serve with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/config"
	httpapi "github.com/greenverse/ecombot-backend/internal/http"
	"github.com/greenverse/ecombot-backend/internal/observability"
	"github.com/greenverse/ecombot-backend/internal/rag"
	"github.com/greenverse/ecombot-backend/internal/repo"
	"github.com/greenverse/ecombot-backend/internal/services"
	"github.com/greenverse/ecombot-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    sysutil.IsTruthy(os.Getenv("NO_COLOR")),
		})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	factories := retrieverFactories(cfg, db)
	retriever, status := rag.BuildRetriever(ctx, factories...)
	holder := rag.NewHolder(retriever, status)
	log.Info().Str("retriever", retriever.Name()).Str("status", status).Msg("retrieval ready")

	var answerer rag.Answerer
	if cfg.RAG.GeminiAPIKey != "" {
		answerer, err = rag.NewGeminiAnswerer(ctx, cfg.RAG.GeminiAPIKey, cfg.RAG.GenModel, cfg.RAG.AnswerTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("generation client unavailable, serving apologies")
			answerer = nil
		}
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, generation disabled")
	}
	pipeline := rag.NewPipeline(answerer, holder, cfg.RAG.TopK, cfg.RAG.HistoryLimit)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, pipeline, holder, factories, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// retrieverFactories assembles the tier chain honoring the configured mode.
// The vector tier needs a Gemini key; it reuses persisted embeddings when
// present and embeds the corpus once when not. The lexical tier only needs
// the corpus file. An empty chain leaves the stub as the last resort.
func retrieverFactories(cfg config.Config, db *gorm.DB) []rag.RetrieverFactory {
	var factories []rag.RetrieverFactory
	mode := cfg.RAG.RetrieverMode

	if (mode == "auto" || mode == "vector") && cfg.RAG.GeminiAPIKey != "" {
		store := &services.GormVectorStore{DB: db}
		factories = append(factories, rag.RetrieverFactory{
			Name: "vector",
			Build: func(ctx context.Context) (rag.Retriever, error) {
				embedder, err := rag.NewGenAIEmbedder(ctx, cfg.RAG.GeminiAPIKey, cfg.RAG.EmbedModel)
				if err != nil {
					return nil, err
				}
				docs, err := store.Load(ctx)
				if err != nil {
					return nil, err
				}
				if len(docs) == 0 {
					snippets, err := rag.CorpusSnippets(cfg.CorpusPath)
					if err != nil {
						return nil, err
					}
					docs, err = rag.BuildVectorCorpus(ctx, embedder, store, snippets, cfg.RAG.EmbedModel)
					if err != nil {
						return nil, err
					}
				}
				return rag.NewVector(embedder, docs)
			},
		})
	}

	if mode == "auto" || mode == "vector" || mode == "lexical" {
		factories = append(factories, rag.RetrieverFactory{
			Name: "lexical",
			Build: func(context.Context) (rag.Retriever, error) {
				return rag.NewLexicalFromCorpus(cfg.CorpusPath)
			},
		})
	}

	return factories
}
