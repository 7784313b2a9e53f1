package dispute

import (
	"bytes"
	"fmt"
)

// validateMutation checks a transformed dispute against its pre-image.
// Every structural invariant is enforced here, in one place, so no caller
// can bypass them regardless of which service issued the mutation.
func validateMutation(old, next *Dispute) error {
	if next.ID != old.ID || next.ShareCode != old.ShareCode || next.PartyA != old.PartyA {
		return fmt.Errorf("dispute: identity fields are immutable")
	}
	if next.Title != old.Title || next.Description != old.Description ||
		next.Category != old.Category || next.DisputeValue != old.DisputeValue ||
		next.Urgency != old.Urgency {
		return fmt.Errorf("dispute: content fields are fixed at creation")
	}
	if next.RequiresContract != old.RequiresContract ||
		next.RequiresSignature != old.RequiresSignature ||
		next.RequiresEscrow != old.RequiresEscrow {
		return fmt.Errorf("dispute: contractual flags are fixed at creation")
	}

	if err := validateParties(old, next); err != nil {
		return err
	}
	if err := validateStatus(old, next); err != nil {
		return err
	}
	if err := validateTruths(old, next); err != nil {
		return err
	}
	if err := validateClaim(old, next); err != nil {
		return err
	}
	if err := validateResolution(old, next); err != nil {
		return err
	}
	if err := validateSignatures(old, next); err != nil {
		return err
	}
	return validateRatings(old, next)
}

func validateParties(old, next *Dispute) error {
	if old.PartyB != nil {
		if next.PartyB == nil || *next.PartyB != *old.PartyB {
			return ErrAlreadyJoined
		}
		return nil
	}
	if next.PartyB != nil {
		if *next.PartyB == "" {
			return fmt.Errorf("dispute: empty joiner identity")
		}
		if *next.PartyB == next.PartyA {
			return ErrSelfJoin
		}
	}
	return nil
}

func validateStatus(old, next *Dispute) error {
	if !next.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next.Status)
	}
	if next.Status == old.Status {
		return nil
	}
	if !CanTransition(old.Status, next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, old.Status, next.Status)
	}
	if next.Status == StatusInProgress && next.PartyB == nil {
		return fmt.Errorf("%w: in_progress requires a joined partyB", ErrInvalidTransition)
	}
	return nil
}

func validateTruths(old, next *Dispute) error {
	if len(next.Truths) < len(old.Truths) {
		return fmt.Errorf("dispute: truths are append-only")
	}
	for i := range old.Truths {
		if next.Truths[i].PartyID != old.Truths[i].PartyID ||
			next.Truths[i].Content != old.Truths[i].Content {
			return fmt.Errorf("dispute: truths are immutable")
		}
	}
	seen := make(map[string]struct{}, 2)
	for _, t := range old.Truths {
		seen[t.PartyID] = struct{}{}
	}
	for _, t := range next.Truths[len(old.Truths):] {
		if old.Status != StatusInvited && old.Status != StatusInProgress {
			return ErrEvidenceClosed
		}
		if !next.IsParticipant(t.PartyID) {
			return ErrForbidden
		}
		if t.Content == "" {
			return fmt.Errorf("dispute: empty truth content")
		}
		if _, dup := seen[t.PartyID]; dup {
			return ErrDuplicateSubmission
		}
		seen[t.PartyID] = struct{}{}
	}
	return nil
}

func validateClaim(old, next *Dispute) error {
	if old.ResolutionClaimed && !next.ResolutionClaimed {
		return fmt.Errorf("dispute: resolution claim cannot be revoked")
	}
	if !old.ResolutionClaimed && next.ResolutionClaimed && next.DistinctTruthParties() < 2 {
		return fmt.Errorf("dispute: resolution claim requires truths from both parties")
	}
	return nil
}

func validateResolution(old, next *Dispute) error {
	if old.Resolution != nil {
		if next.Resolution == nil || !resolutionEqual(old.Resolution, next.Resolution) {
			return ErrResolutionImmutable
		}
		if next.ResolvedAt == nil || old.ResolvedAt == nil || !next.ResolvedAt.Equal(*old.ResolvedAt) {
			return fmt.Errorf("dispute: resolvedAt is immutable")
		}
		return nil
	}
	if next.Resolution != nil {
		if !next.ResolutionClaimed {
			return fmt.Errorf("dispute: resolution without a consumed claim")
		}
		if next.ResolvedAt == nil {
			return fmt.Errorf("dispute: resolution requires resolvedAt")
		}
		if next.Resolution.Confidence < 0 || next.Resolution.Confidence > 1 {
			return fmt.Errorf("dispute: confidence out of range")
		}
		if next.Status != StatusResolved {
			return fmt.Errorf("%w: recording a resolution requires status resolved", ErrInvalidTransition)
		}
	}
	return nil
}

func validateSignatures(old, next *Dispute) error {
	check := func(before, after *Signature, slotParty string) error {
		if before != nil {
			if after == nil || after.PartyID != before.PartyID || !bytes.Equal(after.Image, before.Image) {
				return ErrAlreadySigned
			}
			return nil
		}
		if after == nil {
			return nil
		}
		if !next.RequiresSignature {
			return ErrSignatureNotRequired
		}
		if slotParty == "" || after.PartyID != slotParty {
			return ErrForbidden
		}
		if len(after.Image) == 0 {
			return fmt.Errorf("dispute: empty signature image")
		}
		return nil
	}
	if err := check(old.PartyASignature, next.PartyASignature, next.PartyA); err != nil {
		return err
	}
	partyB := ""
	if next.PartyB != nil {
		partyB = *next.PartyB
	}
	return check(old.PartyBSignature, next.PartyBSignature, partyB)
}

func validateRatings(old, next *Dispute) error {
	if len(next.Ratings) < len(old.Ratings) {
		return fmt.Errorf("dispute: ratings are append-only")
	}
	seen := make(map[string]struct{}, 2)
	for _, rt := range old.Ratings {
		seen[rt.PartyID] = struct{}{}
	}
	for _, rt := range next.Ratings[len(old.Ratings):] {
		if next.Resolution == nil {
			return fmt.Errorf("dispute: rating before resolution")
		}
		if !next.IsParticipant(rt.PartyID) {
			return ErrForbidden
		}
		if rt.Score < 1 || rt.Score > 5 {
			return fmt.Errorf("dispute: rating score out of range")
		}
		if _, dup := seen[rt.PartyID]; dup {
			return ErrAlreadyRated
		}
		seen[rt.PartyID] = struct{}{}
	}
	return nil
}

func resolutionEqual(a, b *Resolution) bool {
	if a.Summary != b.Summary || a.Decision != b.Decision || a.Reasoning != b.Reasoning ||
		a.Confidence != b.Confidence || a.Model != b.Model {
		return false
	}
	if (a.WinnerID == nil) != (b.WinnerID == nil) {
		return false
	}
	if a.WinnerID != nil && *a.WinnerID != *b.WinnerID {
		return false
	}
	if (a.Compensation == nil) != (b.Compensation == nil) {
		return false
	}
	if a.Compensation != nil && *a.Compensation != *b.Compensation {
		return false
	}
	return true
}
