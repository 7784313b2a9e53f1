package dispute

// Status represents the lifecycle state of a dispute. Transitions are
// monotonic along the table below; archival is a status, never a removal.
type Status string

const (
	StatusInvited      Status = "invited"
	StatusInProgress   Status = "in_progress"
	StatusAnalyzing    Status = "analyzing"
	StatusExpertReview Status = "expert_review"
	StatusResolved     Status = "resolved"
	StatusAppealed     Status = "appealed"
	StatusArchived     Status = "archived"
)

var transitions = map[Status][]Status{
	StatusInvited:      {StatusInProgress},
	StatusInProgress:   {StatusAnalyzing},
	StatusAnalyzing:    {StatusExpertReview, StatusResolved},
	StatusExpertReview: {StatusAnalyzing, StatusResolved},
	StatusResolved:     {StatusAppealed, StatusArchived},
	StatusAppealed:     {StatusArchived},
	StatusArchived:     {},
}

// CanTransition reports whether from -> to is allowed by the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the retention policy may archive from s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusAppealed
}
