package dispute

import (
	"context"
	"fmt"
	"log"
)

// Resolver is the hand-off target invoked exactly once per dispute when the
// second party's truth lands.
type Resolver interface {
	Resolve(ctx context.Context, disputeID string) error
}

// SubmitTruthParams carries one party's evidence submission.
type SubmitTruthParams struct {
	DisputeID   string
	PartyID     string
	Content     string
	Attachments []Attachment
}

// Ack reports the outcome of a truth submission.
type Ack struct {
	TruthID string
	// ResolutionTriggered is true for exactly one submission per dispute:
	// the one that completed the two-party truth set and consumed the claim.
	ResolutionTriggered bool
}

// EvidenceGate accepts per-party truth submissions and decides when
// resolution generation fires. The claim check runs inside the same atomic
// mutation as the truth append, so concurrent submissions from both parties
// produce exactly one hand-off.
type EvidenceGate struct {
	store    Store
	resolver Resolver
}

func NewEvidenceGate(store Store) *EvidenceGate {
	return &EvidenceGate{store: store}
}

func (g *EvidenceGate) WithResolver(r Resolver) *EvidenceGate {
	g.resolver = r
	return g
}

// SubmitTruth appends the party's truth under the reject-duplicate policy.
// When the distinct submitting-party set first reaches two, the claim flag is
// consumed in the same critical section and the resolver is invoked once.
func (g *EvidenceGate) SubmitTruth(ctx context.Context, params SubmitTruthParams) (Ack, error) {
	if params.DisputeID == "" {
		return Ack{}, fmt.Errorf("dispute: missing dispute id")
	}
	if params.PartyID == "" {
		return Ack{}, fmt.Errorf("dispute: missing party id")
	}
	if params.Content == "" {
		return Ack{}, fmt.Errorf("dispute: empty truth content")
	}

	claimed := false
	rec, err := g.store.Mutate(ctx, params.DisputeID, func(d *Dispute) error {
		if !d.IsParticipant(params.PartyID) {
			return ErrForbidden
		}
		if d.TruthFrom(params.PartyID) != nil {
			return ErrDuplicateSubmission
		}
		d.Truths = append(d.Truths, Truth{
			PartyID:     params.PartyID,
			Content:     params.Content,
			Attachments: params.Attachments,
		})
		if !d.ResolutionClaimed && d.DistinctTruthParties() == 2 {
			d.ResolutionClaimed = true
			d.Status = StatusAnalyzing
			claimed = true
		}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}

	ack := Ack{
		TruthID:             rec.Truths[len(rec.Truths)-1].ID,
		ResolutionTriggered: claimed,
	}

	if claimed && g.resolver != nil {
		// The claim is consumed either way; a failed generation leaves the
		// dispute in analyzing and is recovered through the explicit retry
		// path, never by re-firing the gate.
		if err := g.resolver.Resolve(ctx, params.DisputeID); err != nil {
			log.Printf("dispute: resolution generation failed for %s: %v", params.DisputeID, err)
		}
	}

	return ack, nil
}
