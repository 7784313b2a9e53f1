// Package actors holds the concurrent workers driven by the stress test.
// Each actor hammers one lifecycle service through its public API and treats
// the domain's contention errors as expected outcomes.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/dispute"
)

// Creator opens fresh disputes and reports their identifiers so the other
// actors can pile onto them.
func Creator(ctx context.Context, registry *dispute.Registry, partyA string, created chan<- dispute.Dispute, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		rec, err := registry.Create(ctx, dispute.Draft{
			PartyA:            partyA,
			Title:             fmt.Sprintf("stress dispute %d", rand.Int63()),
			Category:          "stress",
			DisputeValue:      int64(rand.Intn(20000)),
			Urgency:           dispute.UrgencyStandard,
			RequiresSignature: rand.Intn(2) == 0,
		})
		if err != nil {
			return fmt.Errorf("creator: %w", err)
		}
		select {
		case created <- rec:
		default:
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Joiner races to claim the partyB slot of one dispute. Losing the race is
// the expected outcome for all but one joiner.
func Joiner(ctx context.Context, coordinator *dispute.JoinCoordinator, shareCode, joinerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := coordinator.Join(ctx, shareCode, joinerID)
		switch {
		case err == nil:
		case errors.Is(err, dispute.ErrAlreadyJoined),
			errors.Is(err, dispute.ErrSelfJoin),
			errors.Is(err, dispute.ErrNotFound):
			// expected under contention
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return fmt.Errorf("joiner: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// TruthSubmitter repeatedly submits the party's truth; everything after the
// first accepted submission must be rejected.
func TruthSubmitter(ctx context.Context, gate *dispute.EvidenceGate, disputeID, partyID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := gate.SubmitTruth(ctx, dispute.SubmitTruthParams{
			DisputeID: disputeID,
			PartyID:   partyID,
			Content:   fmt.Sprintf("statement of %s at %d", partyID, time.Now().UnixNano()),
		})
		switch {
		case err == nil:
		case errors.Is(err, dispute.ErrDuplicateSubmission),
			errors.Is(err, dispute.ErrEvidenceClosed),
			errors.Is(err, dispute.ErrForbidden):
			// expected after the first accepted truth
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return fmt.Errorf("truth submitter: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Signer attaches the party's signature over and over; only one attempt may
// land.
func Signer(ctx context.Context, collector *dispute.SignatureCollector, disputeID, partyID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := collector.Attach(ctx, disputeID, partyID, []byte("stress-signature"))
		switch {
		case err == nil:
		case errors.Is(err, dispute.ErrAlreadySigned),
			errors.Is(err, dispute.ErrSignatureNotRequired),
			errors.Is(err, dispute.ErrForbidden):
			// expected under contention
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return fmt.Errorf("signer: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Retrier pokes the orchestrator's retry path, which must be a no-op unless
// a consumed claim is waiting in analyzing or expert review.
func Retrier(ctx context.Context, orch *dispute.Orchestrator, disputeID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		err := orch.Retry(ctx, disputeID)
		switch {
		case err == nil:
		case errors.Is(err, dispute.ErrNotClaimed),
			errors.Is(err, dispute.ErrGeneratorTimeout),
			errors.Is(err, dispute.ErrGeneratorFailure),
			errors.Is(err, dispute.ErrNotFound):
			// expected while the dispute is elsewhere in its lifecycle
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return fmt.Errorf("retrier: %w", err)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks
// them processed, occasionally simulating a delivery failure.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed' WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
