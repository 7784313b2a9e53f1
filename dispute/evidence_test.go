package dispute

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// countingResolver records how many times the gate hands off.
type countingResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingResolver) Resolve(_ context.Context, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingResolver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSubmitTruth_FirstParty(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	gate := NewEvidenceGate(store)

	ack, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID,
		PartyID:   "party-a",
		Content:   "the deposit was withheld without cause",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ack.TruthID == "" {
		t.Fatal("expected a truth id")
	}
	if ack.ResolutionTriggered {
		t.Fatal("first submission must not trigger resolution")
	}

	rec, _ := store.Get(context.Background(), seeded.ID)
	if rec.Status != StatusInProgress || rec.ResolutionClaimed {
		t.Fatalf("dispute should stay in_progress unclaimed: %+v", rec)
	}
}

func TestSubmitTruth_SecondPartyTriggers(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	resolver := &countingResolver{}
	gate := NewEvidenceGate(store).WithResolver(resolver)

	if _, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID, PartyID: "party-a", Content: "my side",
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	ack, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID, PartyID: "party-b", Content: "their side",
	})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !ack.ResolutionTriggered {
		t.Fatal("second party's truth must trigger resolution")
	}
	if resolver.count() != 1 {
		t.Fatalf("expected one hand-off, got %d", resolver.count())
	}

	rec, _ := store.Get(context.Background(), seeded.ID)
	if rec.Status != StatusAnalyzing || !rec.ResolutionClaimed {
		t.Fatalf("expected claimed analyzing dispute: status=%s claimed=%v", rec.Status, rec.ResolutionClaimed)
	}
}

func TestSubmitTruth_DuplicateRejected(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	gate := NewEvidenceGate(store)

	if _, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID, PartyID: "party-a", Content: "original",
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID, PartyID: "party-a", Content: "revised",
	})
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	rec, _ := store.Get(context.Background(), seeded.ID)
	if len(rec.Truths) != 1 || rec.Truths[0].Content != "original" {
		t.Fatalf("stored truth must be untouched: %+v", rec.Truths)
	}
}

func TestSubmitTruth_OutsiderForbidden(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	gate := NewEvidenceGate(store)

	_, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID, PartyID: "stranger", Content: "let me in",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSubmitTruth_EmptyContent(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	gate := NewEvidenceGate(store)

	if _, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID, PartyID: "party-a",
	}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestSubmitTruth_AfterAnalyzingRejected(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	gate := NewEvidenceGate(store)

	for _, p := range []string{"party-a", "party-b"} {
		if _, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
			DisputeID: seeded.ID, PartyID: p, Content: "position of " + p,
		}); err != nil {
			t.Fatalf("submit %s: %v", p, err)
		}
	}

	// dispute sits in analyzing now; late evidence is closed out
	_, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID, PartyID: "party-a", Content: "one more thing",
	})
	if !errors.Is(err, ErrDuplicateSubmission) && !errors.Is(err, ErrEvidenceClosed) {
		t.Fatalf("expected duplicate or closed, got %v", err)
	}
}

// Both parties submit at the same time; the claim must fire exactly once no
// matter how the mutations interleave.
func TestSubmitTruth_ConcurrentClaimFiresOnce(t *testing.T) {
	for round := 0; round < 50; round++ {
		store := newMemStore()
		seeded := seedJoinedDispute(store)
		resolver := &countingResolver{}
		gate := NewEvidenceGate(store).WithResolver(resolver)

		var wg sync.WaitGroup
		acks := make([]Ack, 2)
		errs := make([]error, 2)
		for i, party := range []string{"party-a", "party-b"} {
			wg.Add(1)
			go func(n int, p string) {
				defer wg.Done()
				acks[n], errs[n] = gate.SubmitTruth(context.Background(), SubmitTruthParams{
					DisputeID: seeded.ID, PartyID: p, Content: "position of " + p,
				})
			}(i, party)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("round %d: submit %d: %v", round, i, err)
			}
		}

		triggered := 0
		for _, ack := range acks {
			if ack.ResolutionTriggered {
				triggered++
			}
		}
		if triggered != 1 {
			t.Fatalf("round %d: expected exactly one trigger, got %d", round, triggered)
		}
		if resolver.count() != 1 {
			t.Fatalf("round %d: expected one resolver call, got %d", round, resolver.count())
		}
	}
}

// A failing resolver leaves the claim consumed and the dispute in analyzing;
// submitting again must not re-fire the gate.
func TestSubmitTruth_ResolverFailureKeepsClaim(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	resolver := &countingResolver{err: errors.New("generator down")}
	gate := NewEvidenceGate(store).WithResolver(resolver)

	for _, p := range []string{"party-a", "party-b"} {
		if _, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
			DisputeID: seeded.ID, PartyID: p, Content: "position of " + p,
		}); err != nil {
			t.Fatalf("submit %s: %v", p, err)
		}
	}

	rec, _ := store.Get(context.Background(), seeded.ID)
	if rec.Status != StatusAnalyzing || !rec.ResolutionClaimed {
		t.Fatalf("claim must stay consumed after resolver failure: %+v", rec)
	}
	if resolver.count() != 1 {
		t.Fatalf("expected one resolver call, got %d", resolver.count())
	}
}
