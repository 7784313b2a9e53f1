package dispute

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// JoinCoordinator executes join-by-code and join-by-link requests. The
// check-and-set on partyB runs inside a single registry mutation, so two
// concurrent joiners presenting the same code cannot both win.
type JoinCoordinator struct {
	store Store
}

func NewJoinCoordinator(store Store) *JoinCoordinator {
	return &JoinCoordinator{store: store}
}

// Join resolves the dispute behind a share code, share link, or raw
// identifier and atomically admits the joiner as partyB, transitioning the
// dispute from invited to in_progress. The losing side of a concurrent join
// receives ErrAlreadyJoined.
func (c *JoinCoordinator) Join(ctx context.Context, codeOrLink, joinerID string) (Dispute, error) {
	if joinerID == "" {
		return Dispute{}, fmt.Errorf("dispute: joiner identity required")
	}

	id, err := c.resolveTarget(ctx, codeOrLink)
	if err != nil {
		return Dispute{}, err
	}

	return c.store.Mutate(ctx, id, func(d *Dispute) error {
		if d.PartyB != nil {
			return ErrAlreadyJoined
		}
		if joinerID == d.PartyA {
			return ErrSelfJoin
		}
		joiner := joinerID
		d.PartyB = &joiner
		d.Status = StatusInProgress
		return nil
	})
}

func (c *JoinCoordinator) resolveTarget(ctx context.Context, codeOrLink string) (string, error) {
	if id, ok := ParseShareLink(codeOrLink); ok {
		return id, nil
	}
	if _, err := uuid.Parse(codeOrLink); err == nil {
		return codeOrLink, nil
	}
	rec, err := c.store.GetByCode(ctx, codeOrLink)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}
