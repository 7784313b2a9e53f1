package dispute

import (
	"context"
	"fmt"
)

// Lifecycle covers the post-resolution operations: appeal, expert review
// requests, retention archival, and satisfaction feedback.
type Lifecycle struct {
	store Store
}

func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// Appeal moves a resolved dispute to appealed on behalf of a dissatisfied
// participant.
func (l *Lifecycle) Appeal(ctx context.Context, disputeID, partyID string) (Dispute, error) {
	return l.store.Mutate(ctx, disputeID, func(d *Dispute) error {
		if !d.IsParticipant(partyID) {
			return ErrForbidden
		}
		if d.Status != StatusResolved {
			return fmt.Errorf("%w: appeal from %s", ErrInvalidTransition, d.Status)
		}
		d.Status = StatusAppealed
		return nil
	})
}

// RequestExpertReview parks an analyzing dispute for human review at a
// participant's explicit request.
func (l *Lifecycle) RequestExpertReview(ctx context.Context, disputeID, partyID string) (Dispute, error) {
	return l.store.Mutate(ctx, disputeID, func(d *Dispute) error {
		if !d.IsParticipant(partyID) {
			return ErrForbidden
		}
		if d.Status != StatusAnalyzing {
			return fmt.Errorf("%w: expert review from %s", ErrInvalidTransition, d.Status)
		}
		d.Status = StatusExpertReview
		return nil
	})
}

// Archive applies the retention policy: terminal disputes move to archived.
// Archival is a status, never a physical delete.
func (l *Lifecycle) Archive(ctx context.Context, disputeID string) (Dispute, error) {
	return l.store.Mutate(ctx, disputeID, func(d *Dispute) error {
		if !d.Status.Terminal() {
			return fmt.Errorf("%w: archive from %s", ErrInvalidTransition, d.Status)
		}
		d.Status = StatusArchived
		return nil
	})
}

// Rate records post-resolution satisfaction feedback, once per participant.
func (l *Lifecycle) Rate(ctx context.Context, disputeID, partyID string, score int, comment string) (Dispute, error) {
	return l.store.Mutate(ctx, disputeID, func(d *Dispute) error {
		if !d.IsParticipant(partyID) {
			return ErrForbidden
		}
		if d.Resolution == nil {
			return fmt.Errorf("dispute: rating before resolution")
		}
		for _, rt := range d.Ratings {
			if rt.PartyID == partyID {
				return ErrAlreadyRated
			}
		}
		d.Ratings = append(d.Ratings, SatisfactionRating{
			PartyID: partyID,
			Score:   score,
			Comment: comment,
		})
		return nil
	})
}
