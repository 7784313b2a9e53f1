package reputation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"disputeflow/dispute"
)

// Service loads both parties, runs the pure engine, and persists the
// results. It satisfies the orchestrator's ReputationApplier.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ApplyResolution updates both parties' reputation from a finalized
// resolution. Loads and saves of the two independent profiles run
// concurrently.
func (s *Service) ApplyResolution(ctx context.Context, res dispute.Resolution, partyA, partyB string) error {
	var a, b Profile

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = s.repo.GetProfile(gctx, partyA)
		return err
	})
	g.Go(func() error {
		var err error
		b, err = s.repo.GetProfile(gctx, partyB)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("reputation: load parties: %w", err)
	}

	updatedA, updatedB := Apply(res, a, b)

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error { return s.repo.SaveProfile(gctx, updatedA) })
	g.Go(func() error { return s.repo.SaveProfile(gctx, updatedB) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("reputation: save parties: %w", err)
	}
	return nil
}

// Get exposes a single profile for the API layer.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}
