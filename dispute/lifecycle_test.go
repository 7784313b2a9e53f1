package dispute

import (
	"context"
	"errors"
	"testing"

	"disputeflow/generator"
)

// seedResolvedDispute drives a dispute all the way to resolved.
func seedResolvedDispute(t *testing.T, store *memStore) Dispute {
	t.Helper()
	rec := seedAnalyzingDispute(t, store)
	orch := NewOrchestrator(store, &fakeGenerator{out: winnerOutcome("party-a", 0.9)})
	if err := orch.Resolve(context.Background(), rec.ID); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}
	got, err := store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("seed get: %v", err)
	}
	return got
}

func TestAppeal(t *testing.T) {
	store := newMemStore()
	rec := seedResolvedDispute(t, store)
	lc := NewLifecycle(store)

	got, err := lc.Appeal(context.Background(), rec.ID, "party-b")
	if err != nil {
		t.Fatalf("appeal: %v", err)
	}
	if got.Status != StatusAppealed {
		t.Fatalf("expected appealed, got %s", got.Status)
	}
	if got.Resolution == nil {
		t.Fatal("appeal must keep the resolution on record")
	}
}

func TestAppeal_BeforeResolution(t *testing.T) {
	store := newMemStore()
	rec := seedAnalyzingDispute(t, store)
	lc := NewLifecycle(store)

	_, err := lc.Appeal(context.Background(), rec.ID, "party-a")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAppeal_Outsider(t *testing.T) {
	store := newMemStore()
	rec := seedResolvedDispute(t, store)
	lc := NewLifecycle(store)

	_, err := lc.Appeal(context.Background(), rec.ID, "stranger")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequestExpertReview(t *testing.T) {
	store := newMemStore()
	rec := seedAnalyzingDispute(t, store)
	lc := NewLifecycle(store)

	got, err := lc.RequestExpertReview(context.Background(), rec.ID, "party-a")
	if err != nil {
		t.Fatalf("request expert review: %v", err)
	}
	if got.Status != StatusExpertReview {
		t.Fatalf("expected expert_review, got %s", got.Status)
	}
}

func TestRequestExpertReview_WrongStatus(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	lc := NewLifecycle(store)

	_, err := lc.RequestExpertReview(context.Background(), seeded.ID, "party-a")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestArchive(t *testing.T) {
	store := newMemStore()
	rec := seedResolvedDispute(t, store)
	lc := NewLifecycle(store)

	got, err := lc.Archive(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got.Status != StatusArchived {
		t.Fatalf("expected archived, got %s", got.Status)
	}

	// archival keeps the record readable
	loaded, err := store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("get after archive: %v", err)
	}
	if loaded.Resolution == nil || len(loaded.Truths) != 2 {
		t.Fatal("archived dispute must retain its history")
	}
}

func TestArchive_AppealedDispute(t *testing.T) {
	store := newMemStore()
	rec := seedResolvedDispute(t, store)
	lc := NewLifecycle(store)

	if _, err := lc.Appeal(context.Background(), rec.ID, "party-a"); err != nil {
		t.Fatalf("appeal: %v", err)
	}
	if _, err := lc.Archive(context.Background(), rec.ID); err != nil {
		t.Fatalf("archive appealed dispute: %v", err)
	}
}

func TestArchive_NonTerminal(t *testing.T) {
	store := newMemStore()
	rec := seedAnalyzingDispute(t, store)
	lc := NewLifecycle(store)

	_, err := lc.Archive(context.Background(), rec.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRate(t *testing.T) {
	store := newMemStore()
	rec := seedResolvedDispute(t, store)
	lc := NewLifecycle(store)

	got, err := lc.Rate(context.Background(), rec.ID, "party-a", 4, "fair outcome")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if len(got.Ratings) != 1 || got.Ratings[0].Score != 4 {
		t.Fatalf("unexpected ratings: %+v", got.Ratings)
	}

	if _, err := lc.Rate(context.Background(), rec.ID, "party-b", 2, ""); err != nil {
		t.Fatalf("rate party-b: %v", err)
	}

	_, err = lc.Rate(context.Background(), rec.ID, "party-a", 5, "changed my mind")
	if !errors.Is(err, ErrAlreadyRated) {
		t.Fatalf("expected ErrAlreadyRated, got %v", err)
	}
}

func TestRate_BeforeResolution(t *testing.T) {
	store := newMemStore()
	seeded := seedJoinedDispute(store)
	lc := NewLifecycle(store)

	if _, err := lc.Rate(context.Background(), seeded.ID, "party-a", 3, ""); err == nil {
		t.Fatal("expected error rating before resolution")
	}
}

func TestRate_ScoreOutOfRange(t *testing.T) {
	store := newMemStore()
	rec := seedResolvedDispute(t, store)
	lc := NewLifecycle(store)

	if _, err := lc.Rate(context.Background(), rec.ID, "party-a", 6, ""); err == nil {
		t.Fatal("expected error for score above 5")
	}
}

// Full run: invite, join, both truths, automated resolution, feedback,
// appeal, archive.
func TestDisputeLifecycle_EndToEnd(t *testing.T) {
	store := newMemStore()
	seeded := seedDispute(store)

	gen, err := generator.NewHeuristic(generator.ModelAdvanced)
	if err != nil {
		t.Fatalf("heuristic: %v", err)
	}
	orch := NewOrchestrator(store, gen).WithModel(generator.ModelAdvanced)
	gate := NewEvidenceGate(store).WithResolver(orch)
	lc := NewLifecycle(store)

	if _, err := NewJoinCoordinator(store).Join(context.Background(), seeded.ShareCode, "party-b"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID,
		PartyID:   "party-a",
		Content:   "I paid the full deposit and left the apartment in pristine condition, documented room by room with photos taken during the final walkthrough with the agent present.",
		Attachments: []Attachment{
			{Name: "walkthrough.pdf", URL: "https://files.test/walkthrough.pdf"},
			{Name: "photos.zip", URL: "https://files.test/photos.zip"},
		},
	}); err != nil {
		t.Fatalf("truth a: %v", err)
	}

	ack, err := gate.SubmitTruth(context.Background(), SubmitTruthParams{
		DisputeID: seeded.ID,
		PartyID:   "party-b",
		Content:   "There was damage.",
	})
	if err != nil {
		t.Fatalf("truth b: %v", err)
	}
	if !ack.ResolutionTriggered {
		t.Fatal("second truth must trigger resolution")
	}

	rec, _ := store.Get(context.Background(), seeded.ID)
	if rec.Status != StatusResolved {
		t.Fatalf("expected resolved after triggered generation, got %s", rec.Status)
	}
	if rec.Resolution == nil || rec.Resolution.WinnerID == nil || *rec.Resolution.WinnerID != "party-a" {
		t.Fatalf("expected party-a to prevail: %+v", rec.Resolution)
	}
	if rec.Priority() != PriorityHigh {
		t.Fatalf("expected high priority for value 5000, got %s", rec.Priority())
	}

	if _, err := lc.Rate(context.Background(), seeded.ID, "party-a", 5, "clear and quick"); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if _, err := lc.Appeal(context.Background(), seeded.ID, "party-b"); err != nil {
		t.Fatalf("appeal: %v", err)
	}
	if _, err := lc.Archive(context.Background(), seeded.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	final, _ := store.Get(context.Background(), seeded.ID)
	if final.Status != StatusArchived {
		t.Fatalf("expected archived, got %s", final.Status)
	}
}
