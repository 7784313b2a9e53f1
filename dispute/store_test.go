package dispute

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStore is a Store backed by a map and a mutex. It runs transforms against
// deep copies and enforces the same pre-image validation as the registry, so
// lifecycle services can be exercised without a database.
type memStore struct {
	mu     sync.Mutex
	byID   map[string]*Dispute
	byCode map[string]string
	nextID int
}

func newMemStore() *memStore {
	return &memStore{
		byID:   make(map[string]*Dispute),
		byCode: make(map[string]string),
	}
}

func (m *memStore) add(d Dispute) Dispute {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = NewDisputeID()
	}
	if d.ShareCode == "" {
		d.ShareCode = NewShareCode()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	m.byID[d.ID] = d.clone()
	m.byCode[d.ShareCode] = d.ID
	return d
}

func (m *memStore) Get(_ context.Context, id string) (Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return Dispute{}, ErrNotFound
	}
	return *rec.clone(), nil
}

func (m *memStore) GetByCode(ctx context.Context, code string) (Dispute, error) {
	m.mu.Lock()
	id, ok := m.byCode[NormalizeShareCode(code)]
	m.mu.Unlock()
	if !ok {
		return Dispute{}, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *memStore) Mutate(_ context.Context, id string, transform func(*Dispute) error) (Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.byID[id]
	if !ok {
		return Dispute{}, ErrNotFound
	}

	next := cur.clone()
	if err := transform(next); err != nil {
		return Dispute{}, err
	}
	if err := validateMutation(cur, next); err != nil {
		return Dispute{}, err
	}

	now := time.Now().UTC()
	for i := range next.Truths {
		if next.Truths[i].ID == "" {
			m.nextID++
			next.Truths[i].ID = fmt.Sprintf("truth-%d", m.nextID)
			next.Truths[i].Seq = i + 1
			next.Truths[i].CreatedAt = now
		}
	}
	for i := range next.Ratings {
		if next.Ratings[i].ID == "" {
			m.nextID++
			next.Ratings[i].ID = fmt.Sprintf("rating-%d", m.nextID)
			next.Ratings[i].CreatedAt = now
		}
	}
	if next.PartyASignature != nil && next.PartyASignature.SignedAt.IsZero() {
		next.PartyASignature.SignedAt = now
	}
	if next.PartyBSignature != nil && next.PartyBSignature.SignedAt.IsZero() {
		next.PartyBSignature.SignedAt = now
	}
	next.UpdatedAt = now

	m.byID[id] = next
	return *next.clone(), nil
}

// seedDispute stores a fresh invited dispute owned by partyA.
func seedDispute(store *memStore, mutate ...func(*Dispute)) Dispute {
	d := Dispute{
		PartyA:       "party-a",
		Status:       StatusInvited,
		Title:        "Unreturned deposit",
		Description:  "Landlord kept the full deposit after move-out.",
		Category:     "rental",
		DisputeValue: 5000,
		Urgency:      UrgencyStandard,
	}
	for _, fn := range mutate {
		fn(&d)
	}
	return store.add(d)
}

// seedJoinedDispute stores a dispute already joined by partyB.
func seedJoinedDispute(store *memStore, mutate ...func(*Dispute)) Dispute {
	partyB := "party-b"
	return seedDispute(store, append([]func(*Dispute){func(d *Dispute) {
		d.PartyB = &partyB
		d.Status = StatusInProgress
	}}, mutate...)...)
}
