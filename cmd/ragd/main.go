package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ragd/internal/chunker"
	"ragd/internal/config"
	"ragd/internal/contextbuilder"
	"ragd/internal/domain"
	openaiembed "ragd/internal/embedding/openai"
	"ragd/internal/embedding/tfidf"
	"ragd/internal/llm"
	"ragd/internal/loader"
	"ragd/internal/promptbuilder"
	"ragd/internal/ratelimit"
	"ragd/internal/retriever"
	"ragd/internal/service"
	"ragd/internal/vectorstore/memory"
	"ragd/internal/vectorstore/qdrant"
)

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "ragd",
		Short:         "Retrieval-augmented question answering over your documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newServeCmd(), newIngestCmd(), newQueryCmd(), newChatCmd(), newHealthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if flagVerbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func loadConfig() (*config.AppConfig, error) {
	if flagConfig != "" {
		return config.Load(flagConfig)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// app bundles the assembled components behind one config.
type app struct {
	cfg      *config.AppConfig
	logger   *logrus.Logger
	loader   *loader.Loader
	splitter *chunker.Splitter
	embedder domain.Embedder
	tfidf    *tfidf.Embedder // non-nil only for the tfidf embedder
	store    domain.VectorStore
	svc      *service.Service
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		loader:   loader.New(logger),
		splitter: chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, logger),
	}

	switch cfg.Embedder.Type {
	case "openai":
		ocfg := openaiembed.Config{}
		if o := cfg.Embedder.OpenAI; o != nil {
			ocfg = openaiembed.Config{
				BaseURL:   o.BaseURL,
				APIKeyEnv: o.APIKeyEnv,
				Model:     o.Model,
				Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
				BatchSize: o.BatchSize,
			}
		}
		client, err := openaiembed.NewClient(ocfg, logger)
		if err != nil {
			return nil, err
		}
		a.embedder = client
	case "tfidf", "":
		a.tfidf = tfidf.New()
		a.embedder = a.tfidf
	default:
		return nil, fmt.Errorf("unknown embedder type %q", cfg.Embedder.Type)
	}

	switch cfg.VectorStore.Type {
	case "qdrant":
		qcfg := qdrant.Config{}
		if q := cfg.VectorStore.Qdrant; q != nil {
			qcfg = qdrant.Config{
				URL:        q.URL,
				APIKeyEnv:  q.APIKeyEnv,
				Collection: q.Collection,
				Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
			}
		}
		a.store = qdrant.New(qcfg, a.embedder, logger)
	case "memory", "":
		a.store = memory.New(a.embedder)
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}

	model, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.svc = service.New(service.Config{
		Retriever:       retriever.New(a.store, nil, logger),
		Builder:         contextbuilder.New(logger),
		Splitter:        a.splitter,
		SectionAware:    cfg.Chunker.SectionAware,
		Store:           a.store,
		LLM:             model,
		Limiter:         ratelimit.New(time.Duration(cfg.MinRequestInterval) * time.Millisecond),
		IngestBatchSize: cfg.IngestBatchSize,
		Logger:          logger,
	})
	return a, nil
}

// queryOptions maps configured retrieval and context defaults into one call.
func (a *app) queryOptions() service.QueryOptions {
	return service.QueryOptions{
		K:             a.cfg.Retriever.TopK,
		Threshold:     a.cfg.Retriever.Threshold,
		Strategy:      retriever.Strategy(a.cfg.Retriever.Strategy),
		Rerank:        a.cfg.Retriever.Rerank,
		ContextLayout: contextbuilder.Layout(a.cfg.Context.Strategy),
		ContextLength: a.cfg.Context.MaxLength,
		Style:         promptbuilder.StyleDetailed,
	}
}
