package dispute

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"disputeflow/generator"
)

var (
	// ErrGeneratorTimeout signals the generator exceeded its deadline.
	// The dispute stays in analyzing; retry via Retry.
	ErrGeneratorTimeout = errors.New("dispute: generator timed out")
	// ErrGeneratorFailure signals the generator returned an error.
	ErrGeneratorFailure = errors.New("dispute: generator failed")
	// ErrNotClaimed signals a resolve call before the evidence gate consumed
	// the claim; resolution is only ever triggered through the gate.
	ErrNotClaimed = errors.New("dispute: resolution not claimed")
	// ErrResolutionDiscarded signals the dispute moved out of the status the
	// generator ran against, for example a party requested expert review while
	// generation was in flight; the produced outcome was dropped.
	ErrResolutionDiscarded = errors.New("dispute: resolution discarded, dispute moved during generation")

	errAlreadyResolved = errors.New("dispute: already resolved")
)

// ReputationApplier persists updated reputation for both parties after a
// resolution is finalized.
type ReputationApplier interface {
	ApplyResolution(ctx context.Context, res Resolution, partyA, partyB string) error
}

// Orchestrator invokes the external resolution generator at most once per
// claim and writes the outcome back through the registry. A failed or timed
// out generation leaves the dispute in analyzing with the claim consumed;
// recovery goes through Retry, never back through the evidence gate.
type Orchestrator struct {
	store           Store
	gen             generator.Generator
	reputation      ReputationApplier
	model           generator.Model
	timeout         time.Duration
	reviewThreshold float64
	now             func() time.Time
}

func NewOrchestrator(store Store, gen generator.Generator) *Orchestrator {
	return &Orchestrator{
		store:           store,
		gen:             gen,
		model:           generator.ModelBasic,
		timeout:         30 * time.Second,
		reviewThreshold: 0.55,
		now:             time.Now,
	}
}

func (o *Orchestrator) WithModel(m generator.Model) *Orchestrator {
	o.model = m
	return o
}

func (o *Orchestrator) WithTimeout(d time.Duration) *Orchestrator {
	o.timeout = d
	return o
}

// WithReviewThreshold sets the confidence floor below which an automated
// outcome is discarded in favor of expert review.
func (o *Orchestrator) WithReviewThreshold(v float64) *Orchestrator {
	o.reviewThreshold = v
	return o
}

func (o *Orchestrator) WithReputation(r ReputationApplier) *Orchestrator {
	o.reputation = r
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Resolve runs one generation attempt for a claimed dispute in analyzing.
func (o *Orchestrator) Resolve(ctx context.Context, disputeID string) error {
	rec, err := o.store.Get(ctx, disputeID)
	if err != nil {
		return err
	}
	if rec.Resolution != nil {
		return nil
	}
	if !rec.ResolutionClaimed {
		return ErrNotClaimed
	}
	if rec.Status != StatusAnalyzing {
		return fmt.Errorf("dispute: cannot resolve in status %s", rec.Status)
	}

	if spec, ok := generator.SpecFor(o.model); ok && spec.Human {
		return o.routeToExpert(ctx, disputeID)
	}

	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	out, err := o.gen.Generate(genCtx, buildInput(rec))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrGeneratorTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrGeneratorFailure, err)
	}

	if out.Confidence < o.reviewThreshold {
		return o.routeToExpert(ctx, disputeID)
	}

	return o.writeBack(ctx, disputeID, StatusAnalyzing, outcomeToResolution(out, string(o.model)))
}

// Retry re-runs generation for a dispute whose claim is already consumed.
// A dispute parked in expert review is first returned to analyzing.
func (o *Orchestrator) Retry(ctx context.Context, disputeID string) error {
	rec, err := o.store.Get(ctx, disputeID)
	if err != nil {
		return err
	}
	if rec.Resolution != nil {
		return nil
	}
	if !rec.ResolutionClaimed {
		return ErrNotClaimed
	}
	if rec.Status == StatusExpertReview {
		if _, err := o.store.Mutate(ctx, disputeID, func(d *Dispute) error {
			if d.Status != StatusExpertReview {
				return nil
			}
			d.Status = StatusAnalyzing
			return nil
		}); err != nil {
			return err
		}
	}
	return o.Resolve(ctx, disputeID)
}

// CompleteExpertReview records an expert's verdict for a dispute parked in
// expert review, finalizing it directly to resolved.
func (o *Orchestrator) CompleteExpertReview(ctx context.Context, disputeID string, out generator.Outcome) error {
	rec, err := o.store.Get(ctx, disputeID)
	if err != nil {
		return err
	}
	if rec.Status != StatusExpertReview {
		return fmt.Errorf("dispute: expert review completion in status %s", rec.Status)
	}
	return o.writeBack(ctx, disputeID, StatusExpertReview, outcomeToResolution(out, string(generator.ModelHumanReview)))
}

func (o *Orchestrator) routeToExpert(ctx context.Context, disputeID string) error {
	_, err := o.store.Mutate(ctx, disputeID, func(d *Dispute) error {
		if d.Status != StatusAnalyzing {
			return nil
		}
		d.Status = StatusExpertReview
		return nil
	})
	return err
}

// writeBack stores the resolution atomically. The dispute must still be in
// the status the caller generated against; anything else means the dispute
// moved while generation was in flight and the produced result is stale.
func (o *Orchestrator) writeBack(ctx context.Context, disputeID string, from Status, res Resolution) error {
	rec, err := o.store.Mutate(ctx, disputeID, func(d *Dispute) error {
		if d.Resolution != nil {
			return errAlreadyResolved
		}
		if d.Status != from {
			return ErrResolutionDiscarded
		}
		now := o.now().UTC()
		res.CreatedAt = now
		d.Resolution = &res
		d.Status = StatusResolved
		d.ResolvedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyResolved) {
			return nil
		}
		return err
	}

	if o.reputation != nil && rec.PartyB != nil && rec.Resolution != nil {
		if err := o.reputation.ApplyResolution(ctx, *rec.Resolution, rec.PartyA, *rec.PartyB); err != nil {
			// the resolution itself is committed; score updates can lag
			log.Printf("dispute: reputation update failed for %s: %v", disputeID, err)
		}
	}
	return nil
}

func buildInput(rec Dispute) generator.Input {
	in := generator.Input{
		DisputeID:    rec.ID,
		Title:        rec.Title,
		Category:     rec.Category,
		DisputeValue: rec.DisputeValue,
		Statements:   make([]generator.Statement, 0, 2),
	}
	for _, t := range rec.Truths {
		st := generator.Statement{PartyID: t.PartyID, Text: t.Content}
		for _, a := range t.Attachments {
			st.Attachments = append(st.Attachments, a.URL)
		}
		in.Statements = append(in.Statements, st)
	}
	return in
}

func outcomeToResolution(out generator.Outcome, model string) Resolution {
	return Resolution{
		Summary:      out.Summary,
		Decision:     out.Decision,
		Reasoning:    out.Reasoning,
		Confidence:   out.Confidence,
		WinnerID:     out.WinnerID,
		Compensation: out.Compensation,
		Model:        model,
	}
}
