package dispute

import (
	"strings"
	"time"
)

// Urgency selects the fee multiplier tier chosen at creation.
type Urgency string

const (
	UrgencyStandard Urgency = "standard"
	UrgencyPriority Urgency = "priority"
	UrgencyUrgent   Urgency = "urgent"
)

// FeeMultiplier returns the fee factor applied for the tier.
func (u Urgency) FeeMultiplier() float64 {
	switch u {
	case UrgencyPriority:
		return 1.5
	case UrgencyUrgent:
		return 2.0
	default:
		return 1.0
	}
}

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyStandard, UrgencyPriority, UrgencyUrgent:
		return true
	default:
		return false
	}
}

// Priority is derived from the dispute value and never stored.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityForValue maps a monetary magnitude to a priority tier.
func PriorityForValue(value int64) Priority {
	switch {
	case value >= 10000:
		return PriorityCritical
	case value >= 1000:
		return PriorityHigh
	case value >= 100:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Attachment is a named reference to uploaded evidence material.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Truth is one party's statement of their position plus attachments.
// Truths are append-only; at most one per party per dispute.
type Truth struct {
	ID          string
	PartyID     string
	Seq         int
	Content     string
	Attachments []Attachment
	CreatedAt   time.Time
}

// Resolution is the immutable outcome written back exactly once.
type Resolution struct {
	Summary      string
	Decision     string
	Reasoning    string
	Confidence   float64
	WinnerID     *string
	Compensation *int64
	Model        string
	CreatedAt    time.Time
}

// Signature records one party's executed signature. Immutable once attached.
type Signature struct {
	PartyID  string
	Image    []byte
	SignedAt time.Time
}

// SatisfactionRating is post-resolution feedback from a participant.
type SatisfactionRating struct {
	ID        string
	PartyID   string
	Score     int
	Comment   string
	CreatedAt time.Time
}

// Dispute is the unit of mediation between exactly two parties.
type Dispute struct {
	ID        string
	ShareCode string

	PartyA string
	PartyB *string

	Status       Status
	Title        string
	Description  string
	Category     string
	DisputeValue int64
	Urgency      Urgency

	RequiresContract  bool
	RequiresSignature bool
	RequiresEscrow    bool

	IsPublic bool
	Tags     []string

	Truths            []Truth
	Resolution        *Resolution
	ResolutionClaimed bool

	PartyASignature *Signature
	PartyBSignature *Signature

	Ratings []SatisfactionRating

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// Priority derives the priority tier from the dispute value.
func (d *Dispute) Priority() Priority {
	return PriorityForValue(d.DisputeValue)
}

// WordCount sums the words across all submitted truths.
func (d *Dispute) WordCount() int {
	total := 0
	for _, t := range d.Truths {
		total += len(strings.Fields(t.Content))
	}
	return total
}

// IsParticipant reports whether userID is partyA or the joined partyB.
func (d *Dispute) IsParticipant(userID string) bool {
	if userID == d.PartyA {
		return true
	}
	return d.PartyB != nil && *d.PartyB == userID
}

// TruthFrom returns the truth submitted by the given party, if any.
func (d *Dispute) TruthFrom(partyID string) *Truth {
	for i := range d.Truths {
		if d.Truths[i].PartyID == partyID {
			return &d.Truths[i]
		}
	}
	return nil
}

// DistinctTruthParties counts the distinct submitting identities.
func (d *Dispute) DistinctTruthParties() int {
	seen := make(map[string]struct{}, 2)
	for _, t := range d.Truths {
		seen[t.PartyID] = struct{}{}
	}
	return len(seen)
}

// SignatureFor returns the signature attached by the given party, if any.
func (d *Dispute) SignatureFor(partyID string) *Signature {
	if d.PartyASignature != nil && d.PartyASignature.PartyID == partyID {
		return d.PartyASignature
	}
	if d.PartyBSignature != nil && d.PartyBSignature.PartyID == partyID {
		return d.PartyBSignature
	}
	return nil
}

// IsFullyExecuted reports whether both parties have signed. It is a derived
// predicate and forces no status transition on its own.
func (d *Dispute) IsFullyExecuted() bool {
	return d.PartyASignature != nil && d.PartyBSignature != nil
}

// clone deep-copies the dispute so transforms can run against a snapshot.
func (d *Dispute) clone() *Dispute {
	out := *d
	if d.PartyB != nil {
		b := *d.PartyB
		out.PartyB = &b
	}
	out.Tags = append([]string(nil), d.Tags...)
	out.Truths = make([]Truth, len(d.Truths))
	for i, t := range d.Truths {
		out.Truths[i] = t
		out.Truths[i].Attachments = append([]Attachment(nil), t.Attachments...)
	}
	if d.Resolution != nil {
		res := *d.Resolution
		if d.Resolution.WinnerID != nil {
			w := *d.Resolution.WinnerID
			res.WinnerID = &w
		}
		if d.Resolution.Compensation != nil {
			c := *d.Resolution.Compensation
			res.Compensation = &c
		}
		out.Resolution = &res
	}
	out.PartyASignature = cloneSignature(d.PartyASignature)
	out.PartyBSignature = cloneSignature(d.PartyBSignature)
	out.Ratings = append([]SatisfactionRating(nil), d.Ratings...)
	if d.ResolvedAt != nil {
		ts := *d.ResolvedAt
		out.ResolvedAt = &ts
	}
	return &out
}

func cloneSignature(s *Signature) *Signature {
	if s == nil {
		return nil
	}
	out := *s
	out.Image = append([]byte(nil), s.Image...)
	return &out
}
