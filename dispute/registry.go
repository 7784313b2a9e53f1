package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrForbidden signals the actor is not a participant of the dispute.
	ErrForbidden = errors.New("dispute: forbidden")
	// ErrAlreadyJoined signals partyB is already set.
	ErrAlreadyJoined = errors.New("dispute: already joined")
	// ErrSelfJoin signals the joiner is the creator.
	ErrSelfJoin = errors.New("dispute: cannot join own dispute")
	// ErrDuplicateSubmission signals the party already submitted a truth.
	ErrDuplicateSubmission = errors.New("dispute: truth already submitted")
	// ErrSignatureNotRequired signals the dispute carries no signature requirement.
	ErrSignatureNotRequired = errors.New("dispute: signature not required")
	// ErrAlreadySigned signals the party already attached a signature.
	ErrAlreadySigned = errors.New("dispute: already signed")
	// ErrInvalidTransition signals a status change outside the state machine.
	// It indicates a logic defect in the caller, not a user mistake.
	ErrInvalidTransition = errors.New("dispute: invalid status transition")
	// ErrResolutionImmutable signals an attempt to change a stored resolution.
	ErrResolutionImmutable = errors.New("dispute: resolution is immutable")
	// ErrEvidenceClosed signals truth submission after evidence collection ended.
	ErrEvidenceClosed = errors.New("dispute: evidence collection closed")
	// ErrAlreadyRated signals the party already left satisfaction feedback.
	ErrAlreadyRated = errors.New("dispute: already rated")
)

// Store is the registry surface the lifecycle services operate against.
// Mutate applies an atomic read-modify-write: the transform runs on a
// snapshot, structural invariants are checked against the pre-image, and a
// violating transform aborts without any partial write.
type Store interface {
	Get(ctx context.Context, id string) (Dispute, error)
	GetByCode(ctx context.Context, code string) (Dispute, error)
	Mutate(ctx context.Context, id string, transform func(*Dispute) error) (Dispute, error)
}

// Draft carries the creation parameters. Everything here is fixed at
// creation; later mutation of these fields is rejected by the registry.
type Draft struct {
	PartyA            string
	Title             string
	Description       string
	Category          string
	DisputeValue      int64
	Urgency           Urgency
	RequiresContract  bool
	RequiresSignature bool
	RequiresEscrow    bool
	IsPublic          bool
	Tags              []string
}

// Registry owns the authoritative dispute collection backed by PostgreSQL.
// The row lock taken inside Mutate is the single serialization point per
// dispute; cross-dispute operations proceed fully in parallel.
type Registry struct {
	pool    *pgxpool.Pool
	idGen   func() string
	codeGen func() string
	now     func() time.Time
}

func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{
		pool:    pool,
		idGen:   NewDisputeID,
		codeGen: NewShareCode,
		now:     time.Now,
	}
}

// WithIdentifierSource overrides id/code generation, for tests.
func (r *Registry) WithIdentifierSource(idGen, codeGen func() string) *Registry {
	r.idGen = idGen
	r.codeGen = codeGen
	return r
}

func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Share codes come from an independent random source, so a collision with an
// existing dispute is possible; creation retries with a fresh code.
const createAttempts = 5

// Create stores a new dispute in status invited and mints its identifier and
// share code.
func (r *Registry) Create(ctx context.Context, draft Draft) (Dispute, error) {
	if draft.PartyA == "" {
		return Dispute{}, fmt.Errorf("dispute: creator required")
	}
	if draft.Title == "" {
		return Dispute{}, fmt.Errorf("dispute: title required")
	}
	if draft.DisputeValue < 0 {
		return Dispute{}, fmt.Errorf("dispute: negative dispute value")
	}
	if draft.Urgency == "" {
		draft.Urgency = UrgencyStandard
	}
	if !draft.Urgency.Valid() {
		return Dispute{}, fmt.Errorf("dispute: invalid urgency %q", draft.Urgency)
	}
	if draft.Category == "" {
		draft.Category = "general"
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		rec, err := r.createOnce(ctx, draft)
		if err == nil {
			return rec, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// share code collision, mint a new one
			lastErr = err
			continue
		}
		return Dispute{}, err
	}
	return Dispute{}, fmt.Errorf("dispute: exhausted share code attempts: %w", lastErr)
}

func (r *Registry) createOnce(ctx context.Context, draft Draft) (Dispute, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := Dispute{
		ID:                r.idGen(),
		ShareCode:         r.codeGen(),
		PartyA:            draft.PartyA,
		Status:            StatusInvited,
		Title:             draft.Title,
		Description:       draft.Description,
		Category:          draft.Category,
		DisputeValue:      draft.DisputeValue,
		Urgency:           draft.Urgency,
		RequiresContract:  draft.RequiresContract,
		RequiresSignature: draft.RequiresSignature,
		RequiresEscrow:    draft.RequiresEscrow,
		IsPublic:          draft.IsPublic,
		Tags:              append([]string(nil), draft.Tags...),
	}

	const insertSQL = `
		INSERT INTO disputes (id, share_code, party_a, status, title, description, category,
		                      dispute_value, urgency, requires_contract, requires_signature,
		                      requires_escrow, is_public, tags)
		VALUES ($1,$2,$3,'invited',$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, insertSQL,
		rec.ID, rec.ShareCode, rec.PartyA, rec.Title, rec.Description, rec.Category,
		rec.DisputeValue, rec.Urgency, rec.RequiresContract, rec.RequiresSignature,
		rec.RequiresEscrow, rec.IsPublic, rec.Tags,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Dispute{}, fmt.Errorf("dispute: insert: %w", err)
	}

	payload := map[string]any{
		"share_code": rec.ShareCode,
		"title":      rec.Title,
		"priority":   rec.Priority(),
		"urgency":    rec.Urgency,
	}
	if err := insertEvent(ctx, tx, rec.ID, 1, "DISPUTE_CREATED", &rec.PartyA, payload); err != nil {
		return Dispute{}, err
	}
	if err := enqueueOutbox(ctx, tx, "dispute.created", map[string]any{
		"dispute_id": rec.ID,
		"party_a":    rec.PartyA,
	}); err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit create: %w", err)
	}
	return rec, nil
}

// Get loads a dispute with its truths, resolution, signatures, and ratings.
func (r *Registry) Get(ctx context.Context, id string) (Dispute, error) {
	rec, err := loadDispute(ctx, r.pool, id, false)
	if err != nil {
		return Dispute{}, err
	}
	return *rec, nil
}

// GetByCode resolves a dispute by its 6-character share code.
func (r *Registry) GetByCode(ctx context.Context, code string) (Dispute, error) {
	code = NormalizeShareCode(code)
	if !validShareCode(code) {
		return Dispute{}, ErrNotFound
	}
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM disputes WHERE share_code = $1`, code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: resolve code: %w", err)
	}
	return r.Get(ctx, id)
}

// ListForParty returns dispute rows where the user is either party, newest
// first. Child collections are not loaded.
func (r *Registry) ListForParty(ctx context.Context, userID string) ([]Dispute, error) {
	const query = `
		SELECT id, share_code, party_a, party_b, status::text, title, description, category,
		       dispute_value, urgency, requires_contract, requires_signature, requires_escrow,
		       is_public, tags, resolution_claimed, created_at, updated_at, resolved_at
		FROM disputes
		WHERE party_a = $1 OR party_b = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Dispute, 0, 8)
	for rows.Next() {
		var rec Dispute
		if err := scanDisputeRow(rows, &rec); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// Mutate is the atomic entry point for every dispute mutation. The row is
// locked for the duration of the transaction, the transform runs against a
// deep copy, and the result is validated against the pre-image before any
// write happens.
func (r *Registry) Mutate(ctx context.Context, id string, transform func(*Dispute) error) (Dispute, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cur, err := loadDispute(ctx, tx, id, true)
	if err != nil {
		return Dispute{}, err
	}

	next := cur.clone()
	if err := transform(next); err != nil {
		return Dispute{}, err
	}

	if err := validateMutation(cur, next); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Printf("dispute: DEFECT: rejected mutation on %s: %v", id, err)
		}
		return Dispute{}, err
	}

	if err := r.applyChanges(ctx, tx, cur, next); err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit mutation: %w", err)
	}
	return *next, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadDispute(ctx context.Context, q querier, id string, forUpdate bool) (*Dispute, error) {
	query := `
		SELECT id, share_code, party_a, party_b, status::text, title, description, category,
		       dispute_value, urgency, requires_contract, requires_signature, requires_escrow,
		       is_public, tags, resolution_claimed, created_at, updated_at, resolved_at
		FROM disputes
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var rec Dispute
	if err := scanDisputeRow(q.QueryRow(ctx, query, id), &rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dispute: load: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, party_id, seq, content, attachments, created_at
		FROM truths WHERE dispute_id = $1 ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("dispute: load truths: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t   Truth
			att []byte
		)
		if err := rows.Scan(&t.ID, &t.PartyID, &t.Seq, &t.Content, &att, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan truth: %w", err)
		}
		if len(att) > 0 {
			if err := json.Unmarshal(att, &t.Attachments); err != nil {
				return nil, fmt.Errorf("dispute: decode attachments: %w", err)
			}
		}
		rec.Truths = append(rec.Truths, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate truths: %w", err)
	}

	var res Resolution
	err = q.QueryRow(ctx, `
		SELECT summary, decision, reasoning, confidence, winner_id, compensation, model, created_at
		FROM resolutions WHERE dispute_id = $1
	`, id).Scan(&res.Summary, &res.Decision, &res.Reasoning, &res.Confidence,
		&res.WinnerID, &res.Compensation, &res.Model, &res.CreatedAt)
	switch {
	case err == nil:
		rec.Resolution = &res
	case errors.Is(err, pgx.ErrNoRows):
		// no resolution yet
	default:
		return nil, fmt.Errorf("dispute: load resolution: %w", err)
	}

	sigRows, err := q.Query(ctx, `
		SELECT party_id, image, signed_at FROM signatures WHERE dispute_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("dispute: load signatures: %w", err)
	}
	defer sigRows.Close()
	for sigRows.Next() {
		var sig Signature
		if err := sigRows.Scan(&sig.PartyID, &sig.Image, &sig.SignedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan signature: %w", err)
		}
		s := sig
		switch {
		case sig.PartyID == rec.PartyA:
			rec.PartyASignature = &s
		case rec.PartyB != nil && sig.PartyID == *rec.PartyB:
			rec.PartyBSignature = &s
		}
	}
	if err := sigRows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate signatures: %w", err)
	}

	rateRows, err := q.Query(ctx, `
		SELECT id, party_id, score, comment, created_at
		FROM satisfaction_ratings WHERE dispute_id = $1 ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("dispute: load ratings: %w", err)
	}
	defer rateRows.Close()
	for rateRows.Next() {
		var rt SatisfactionRating
		if err := rateRows.Scan(&rt.ID, &rt.PartyID, &rt.Score, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan rating: %w", err)
		}
		rec.Ratings = append(rec.Ratings, rt)
	}
	if err := rateRows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate ratings: %w", err)
	}

	return &rec, nil
}

func scanDisputeRow(row pgx.Row, rec *Dispute) error {
	return row.Scan(
		&rec.ID, &rec.ShareCode, &rec.PartyA, &rec.PartyB, &rec.Status,
		&rec.Title, &rec.Description, &rec.Category, &rec.DisputeValue, &rec.Urgency,
		&rec.RequiresContract, &rec.RequiresSignature, &rec.RequiresEscrow,
		&rec.IsPublic, &rec.Tags, &rec.ResolutionClaimed,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt,
	)
}

// applyChanges writes the delta between the pre-image and the mutated record:
// the disputes row update, child inserts, timeline events, and outbox
// messages, all inside the surrounding transaction.
func (r *Registry) applyChanges(ctx context.Context, tx pgx.Tx, old, next *Dispute) error {
	var seq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq),0) FROM dispute_events WHERE dispute_id = $1`, next.ID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("dispute: event seq: %w", err)
	}
	appendEvent := func(eventType string, actorID *string, payload map[string]any) error {
		seq++
		return insertEvent(ctx, tx, next.ID, seq, eventType, actorID, payload)
	}

	const updateSQL = `
		UPDATE disputes
		SET party_b = $2,
		    status = $3::dispute_status,
		    resolution_claimed = $4,
		    is_public = $5,
		    tags = $6,
		    resolved_at = $7,
		    updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, updateSQL,
		next.ID, next.PartyB, next.Status, next.ResolutionClaimed,
		next.IsPublic, next.Tags, next.ResolvedAt,
	); err != nil {
		return fmt.Errorf("dispute: update row: %w", err)
	}

	if old.PartyB == nil && next.PartyB != nil {
		if err := appendEvent("PARTY_JOINED", next.PartyB, map[string]any{
			"party_b": *next.PartyB,
		}); err != nil {
			return err
		}
		if err := enqueueOutbox(ctx, tx, "dispute.joined", map[string]any{
			"dispute_id": next.ID,
			"party_b":    *next.PartyB,
		}); err != nil {
			return err
		}
	}

	for i := len(old.Truths); i < len(next.Truths); i++ {
		t := &next.Truths[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Seq = i + 1
		att, err := json.Marshal(t.Attachments)
		if err != nil {
			return fmt.Errorf("dispute: encode attachments: %w", err)
		}
		if att == nil || string(att) == "null" {
			att = []byte("[]")
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO truths (id, dispute_id, party_id, seq, content, attachments)
			VALUES ($1,$2,$3,$4,$5,$6::jsonb)
			RETURNING created_at
		`, t.ID, next.ID, t.PartyID, t.Seq, t.Content, att).Scan(&t.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateSubmission
			}
			return fmt.Errorf("dispute: insert truth: %w", err)
		}
		if err := appendEvent("TRUTH_SUBMITTED", &t.PartyID, map[string]any{
			"truth_id":   t.ID,
			"word_count": len(strings.Fields(t.Content)),
		}); err != nil {
			return err
		}
	}

	if !old.ResolutionClaimed && next.ResolutionClaimed {
		if err := appendEvent("RESOLUTION_CLAIMED", nil, map[string]any{}); err != nil {
			return err
		}
	}

	if old.Status != next.Status {
		if err := appendEvent("STATUS_CHANGED", nil, map[string]any{
			"previous_status": old.Status,
			"next_status":     next.Status,
		}); err != nil {
			return err
		}
		if next.Status == StatusAppealed {
			if err := enqueueOutbox(ctx, tx, "dispute.appealed", map[string]any{
				"dispute_id": next.ID,
			}); err != nil {
				return err
			}
		}
	}

	if old.Resolution == nil && next.Resolution != nil {
		res := next.Resolution
		if res.CreatedAt.IsZero() {
			res.CreatedAt = r.now().UTC()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO resolutions (dispute_id, summary, decision, reasoning, confidence,
			                         winner_id, compensation, model, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, next.ID, res.Summary, res.Decision, res.Reasoning, res.Confidence,
			res.WinnerID, res.Compensation, res.Model, res.CreatedAt); err != nil {
			return fmt.Errorf("dispute: insert resolution: %w", err)
		}
		if err := appendEvent("RESOLUTION_RECORDED", nil, map[string]any{
			"confidence": res.Confidence,
			"model":      res.Model,
		}); err != nil {
			return err
		}
		outPayload := map[string]any{
			"dispute_id": next.ID,
			"confidence": res.Confidence,
		}
		if res.WinnerID != nil {
			outPayload["winner_id"] = *res.WinnerID
		}
		if err := enqueueOutbox(ctx, tx, "dispute.resolved", outPayload); err != nil {
			return err
		}
	}

	for _, pair := range []struct{ before, after *Signature }{
		{old.PartyASignature, next.PartyASignature},
		{old.PartyBSignature, next.PartyBSignature},
	} {
		if pair.before != nil || pair.after == nil {
			continue
		}
		sig := pair.after
		if sig.SignedAt.IsZero() {
			sig.SignedAt = r.now().UTC()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO signatures (dispute_id, party_id, image, signed_at)
			VALUES ($1,$2,$3,$4)
		`, next.ID, sig.PartyID, sig.Image, sig.SignedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadySigned
			}
			return fmt.Errorf("dispute: insert signature: %w", err)
		}
		if err := appendEvent("SIGNATURE_ATTACHED", &sig.PartyID, map[string]any{}); err != nil {
			return err
		}
	}
	if !old.IsFullyExecuted() && next.IsFullyExecuted() {
		if err := appendEvent("FULLY_EXECUTED", nil, map[string]any{}); err != nil {
			return err
		}
	}

	for i := len(old.Ratings); i < len(next.Ratings); i++ {
		rt := &next.Ratings[i]
		if rt.ID == "" {
			rt.ID = uuid.NewString()
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO satisfaction_ratings (id, dispute_id, party_id, score, comment)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING created_at
		`, rt.ID, next.ID, rt.PartyID, rt.Score, rt.Comment).Scan(&rt.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyRated
			}
			return fmt.Errorf("dispute: insert rating: %w", err)
		}
		if err := appendEvent("SATISFACTION_RATED", &rt.PartyID, map[string]any{
			"score": rt.Score,
		}); err != nil {
			return err
		}
	}

	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, disputeID string, seq int, eventType string, actorID *string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispute: marshal event payload: %w", err)
	}
	var actor any
	if actorID != nil && *actorID != "" {
		actor = *actorID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO dispute_events (dispute_id, seq, type, actor_id, payload)
		VALUES ($1,$2,$3,$4::uuid,$5::jsonb)
	`, disputeID, seq, eventType, actor, body); err != nil {
		return fmt.Errorf("dispute: insert event: %w", err)
	}
	return nil
}

func enqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispute: marshal outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("dispute: enqueue outbox: %w", err)
	}
	return nil
}
