package dispute

import (
	"context"
	"fmt"
)

// SignatureCollector records per-party digital signatures. Signing is
// orthogonal to the main lifecycle: it is legal before or after resolution,
// and completing both signatures forces no status transition.
type SignatureCollector struct {
	store Store
}

func NewSignatureCollector(store Store) *SignatureCollector {
	return &SignatureCollector{store: store}
}

// Attach records a signature for the given party. Only legal when the
// dispute requires signatures; a party may sign exactly once.
func (c *SignatureCollector) Attach(ctx context.Context, disputeID, partyID string, image []byte) (Dispute, error) {
	if partyID == "" {
		return Dispute{}, fmt.Errorf("dispute: missing party id")
	}
	if len(image) == 0 {
		return Dispute{}, fmt.Errorf("dispute: empty signature image")
	}

	return c.store.Mutate(ctx, disputeID, func(d *Dispute) error {
		if !d.RequiresSignature {
			return ErrSignatureNotRequired
		}
		if !d.IsParticipant(partyID) {
			return ErrForbidden
		}
		if d.SignatureFor(partyID) != nil {
			return ErrAlreadySigned
		}
		sig := &Signature{PartyID: partyID, Image: image}
		if partyID == d.PartyA {
			d.PartyASignature = sig
		} else {
			d.PartyBSignature = sig
		}
		return nil
	})
}
