package dispute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestRegistry_Integration connects to a real PostgreSQL via DATABASE_URL and
// drives a full dispute through the registry, verifying the transactional
// event trail and outbox writes.
func TestRegistry_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "disputes") || !tableExists(ctx, t, pool, "truths") ||
		!tableExists(ctx, t, pool, "dispute_events") || !tableExists(ctx, t, pool, "outbox") {
		t.Skip("database schema missing; apply the files under migrations/ first")
	}

	// seed the two participants required by foreign keys
	var partyA, partyB string
	nano := time.Now().UnixNano()
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name) VALUES ($1, $2) RETURNING id`,
		fmt.Sprintf("itest-a+%d@example.com", nano), "Alice Itest").Scan(&partyA); err != nil {
		t.Fatalf("seed party a: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name) VALUES ($1, $2) RETURNING id`,
		fmt.Sprintf("itest-b+%d@example.com", nano), "Bob Itest").Scan(&partyB); err != nil {
		t.Fatalf("seed party b: %v", err)
	}

	registry := NewRegistry(pool)

	rec, err := registry.Create(ctx, Draft{
		PartyA:       partyA,
		Title:        "integration dispute",
		Category:     "rental",
		DisputeValue: 5000,
		Urgency:      UrgencyStandard,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM dispute_events WHERE dispute_id = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'dispute_id' = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM truths WHERE dispute_id = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM disputes WHERE id = $1`, rec.ID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, partyA, partyB)
	})

	if rec.Status != StatusInvited || !validShareCode(rec.ShareCode) {
		t.Fatalf("unexpected created record: %+v", rec)
	}

	// lookup by code resolves to the same dispute
	byCode, err := registry.GetByCode(ctx, rec.ShareCode)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if byCode.ID != rec.ID {
		t.Fatalf("code resolved to %s, want %s", byCode.ID, rec.ID)
	}

	// join through a mutation
	coordinator := NewJoinCoordinator(registry)
	joined, err := coordinator.Join(ctx, rec.ShareCode, partyB)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Status != StatusInProgress || joined.PartyB == nil || *joined.PartyB != partyB {
		t.Fatalf("unexpected joined record: %+v", joined)
	}

	// second join must lose
	if _, err := coordinator.Join(ctx, rec.ShareCode, partyA); !errors.Is(err, ErrSelfJoin) {
		t.Fatalf("expected ErrSelfJoin, got %v", err)
	}

	// both truths through the gate, no resolver attached
	gate := NewEvidenceGate(registry)
	for _, p := range []string{partyA, partyB} {
		if _, err := gate.SubmitTruth(ctx, SubmitTruthParams{
			DisputeID: rec.ID, PartyID: p, Content: "statement of " + p,
		}); err != nil {
			t.Fatalf("truth %s: %v", p, err)
		}
	}

	// duplicate rejected by the unique constraint as well as the validator
	if _, err := gate.SubmitTruth(ctx, SubmitTruthParams{
		DisputeID: rec.ID, PartyID: partyA, Content: "late addendum",
	}); !errors.Is(err, ErrDuplicateSubmission) && !errors.Is(err, ErrEvidenceClosed) {
		t.Fatalf("expected duplicate or closed, got %v", err)
	}

	loaded, err := registry.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != StatusAnalyzing || !loaded.ResolutionClaimed || len(loaded.Truths) != 2 {
		t.Fatalf("unexpected state after truths: %+v", loaded)
	}

	// event trail is gapless from seq 1
	var evCount, maxSeq int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(MAX(seq),0) FROM dispute_events WHERE dispute_id = $1`, rec.ID).
		Scan(&evCount, &maxSeq); err != nil {
		t.Fatalf("verify events: %v", err)
	}
	if evCount == 0 || evCount != maxSeq {
		t.Fatalf("expected gapless event trail, count=%d max=%d", evCount, maxSeq)
	}

	// creation and join each enqueued an outbox message
	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE payload->>'dispute_id' = $1`, rec.ID).Scan(&outCount); err != nil {
		t.Fatalf("verify outbox: %v", err)
	}
	if outCount < 2 {
		t.Fatalf("expected at least 2 outbox messages, got %d", outCount)
	}

	// listing covers both sides
	forB, err := registry.ListForParty(ctx, partyB)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, d := range forB {
		if d.ID == rec.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dispute in partyB listing")
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
