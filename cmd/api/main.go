package main

import (
	"context"
	"log"
	"net/http"

	"disputeflow/auth"
	"disputeflow/config"
	"disputeflow/db"
	"disputeflow/dispute"
	"disputeflow/generator"
	"disputeflow/reputation"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	model, err := generator.ParseModel(cfg.Generator.Model)
	if err != nil {
		log.Fatalf("bootstrap generator: %v", err)
	}

	registry := dispute.NewRegistry(pool)
	reputationService := reputation.NewService(reputation.NewRepository(pool))

	var gen generator.Generator
	if spec, ok := generator.SpecFor(model); !ok || !spec.Human {
		gen, err = generator.NewHeuristic(model)
		if err != nil {
			log.Fatalf("bootstrap generator: %v", err)
		}
	}

	orchestrator := dispute.NewOrchestrator(registry, gen).
		WithModel(model).
		WithTimeout(cfg.Generator.Timeout).
		WithReviewThreshold(cfg.Generator.ReviewThreshold).
		WithReputation(reputationService)

	server := &Server{
		authService:       auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret),
		disputeService:    registry,
		joinService:       dispute.NewJoinCoordinator(registry),
		truthService:      dispute.NewEvidenceGate(registry).WithResolver(orchestrator),
		signatureService:  dispute.NewSignatureCollector(registry),
		lifecycleService:  dispute.NewLifecycle(registry),
		resolveService:    orchestrator,
		reputationService: reputationService,
		shareHost:         cfg.Share.Host,
	}

	log.Printf("listening on %s", cfg.HTTP.Addr)
	if err := http.ListenAndServe(cfg.HTTP.Addr, server.routes()); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
