package main

import (
	"context"
	"log"
	"time"

	"orcaflow/internal/activities"
	"orcaflow/internal/config"
	"orcaflow/internal/docstore"
	"orcaflow/internal/providers"
	"orcaflow/internal/storage"
	"orcaflow/internal/workflows"

	"github.com/joho/godotenv"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	docs, err := docstore.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	model, err := providers.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.AIRequestsPerMin)
	if err != nil {
		log.Fatal(err)
	}
	defer model.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, db, docs, model))

	// One sweeper per task queue; duplicate starts are rejected and ignored.
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()
	_, err = c.ExecuteWorkflow(startCtx, client.StartWorkflowOptions{
		ID:                    "retry-sweep",
		TaskQueue:             cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.RetrySweepWorkflow, workflows.SweepInput{
		BatchSize:      cfg.SweepBatchSize,
		IntervalSecs:   cfg.SweepIntervalSecs,
		StaleAfterSecs: cfg.StaleHeartbeatSecs,
		Extraction: workflows.ExtractionInput{
			ModelCandidates:  providers.ParseModelList(cfg.ModelCandidates),
			ChunkSize:        cfg.ChunkSize,
			ChunkOverlap:     cfg.ChunkOverlap,
			BoundaryMode:     cfg.ChunkBoundaryMode,
			MaxChunks:        cfg.MaxChunks,
			ChunkConcurrency: cfg.ChunkConcurrency,
			MinItemThreshold: cfg.MinItemThreshold,
			ItemsPerPage:     cfg.ItemsPerPage,
			MinExpectedItems: cfg.MinExpectedItems,
			RetryAfterSecs:   cfg.RetryAfterSecs,
		},
	})
	if err != nil {
		log.Printf("retry sweep not started (may already be running): %v", err)
	}

	log.Printf("orcaflow worker listening on %s queue=%s models=%q doc_backend=%s", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.ModelCandidates, cfg.DocBackend)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
