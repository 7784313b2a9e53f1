// Package generator defines the boundary to the external resolution
// generator. The engine core passes both parties' statements through this
// interface and has zero knowledge of how the resolution text is produced.
package generator

import "context"

// Statement is one party's position as handed to the generator.
type Statement struct {
	PartyID     string
	Text        string
	Attachments []string
}

// Input carries the ordered statements of exactly two parties plus the
// dispute context the generator may weigh.
type Input struct {
	DisputeID    string
	Title        string
	Category     string
	DisputeValue int64
	Statements   []Statement
}

// Outcome is the generator's verdict. Confidence is in [0,1]; WinnerID and
// Compensation are optional.
type Outcome struct {
	Summary      string
	Decision     string
	Reasoning    string
	Confidence   float64
	WinnerID     *string
	Compensation *int64
}

// Generator produces a resolution outcome. Implementations may fail or run
// long; callers bound the call with a context deadline and treat both
// failure and timeout as retryable.
type Generator interface {
	Generate(ctx context.Context, in Input) (Outcome, error)
}
