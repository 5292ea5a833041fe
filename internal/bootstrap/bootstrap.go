package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Anudeepsrib/ClinIQ/internal/config"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
	"github.com/Anudeepsrib/ClinIQ/internal/core/usecase"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/chunking"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/extractor"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/lexical"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/llm/ollama"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/pii"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/queue/nats"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/repository/postgres"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/resilience"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/storage/localfs"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    ports.MessageQueue
	Repo     ports.DocumentRepository
	Redactor ports.Redactor

	Retrieval *usecase.HybridEngine
	QueryUC   ports.QueryService
	UploadUC  ports.DocumentUploader
	ProcessUC ports.DocumentProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	auditRepo := postgres.NewQueryAuditRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queueExecutor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: queueExecutor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:  120 * time.Second,
		Executor: resilience.NewExecutor(resilience.InferenceConfig()),
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	inferencer := ollama.NewInferencer(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix)
	lexicalCatalog := lexical.NewCatalog()
	redactor := pii.NewRedactor()
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractors := extractor.NewRegistry(storage)

	retrieval := usecase.NewHybridEngine(embedder, vectorDB, lexicalCatalog, cfg.Groups, cfg.FusionRRFK, logger)
	queryUC := usecase.NewQueryPipeline(retrieval, inferencer, auditRepo, usecase.PipelineConfig{
		MaxRetries: cfg.MaxQueryRetries,
		TopK:       cfg.RAGTopK,
	}, logger)
	uploadUC := usecase.NewUploadDocumentUseCase(repo, storage, queue, cfg.Groups)
	processUC := usecase.NewProcessDocumentUseCase(repo, extractors, redactor, chunker, retrieval)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:    queue,
		Repo:     repo,
		Redactor: redactor,

		Retrieval: retrieval,
		QueryUC:   queryUC,
		UploadUC:  uploadUC,
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
