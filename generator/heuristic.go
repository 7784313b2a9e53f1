package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrHumanModel is returned when a heuristic generation is requested for the
// human-review variant, which never produces automated outcomes.
var ErrHumanModel = errors.New("generator: human review model produces no automated outcome")

// Heuristic is the shipped Generator: a deterministic scorer that weighs the
// detail of each statement. It stands behind the same interface a remote AI
// service would, so swapping it out touches nothing in the engine.
type Heuristic struct {
	spec Spec
}

func NewHeuristic(model Model) (*Heuristic, error) {
	spec, ok := SpecFor(model)
	if !ok {
		return nil, fmt.Errorf("generator: unknown model %q", model)
	}
	if spec.Human {
		return nil, ErrHumanModel
	}
	return &Heuristic{spec: spec}, nil
}

// Generate scores both statements and declares a winner unless the margin is
// too thin to call. Confidence scales with the model accuracy and the score
// margin.
func (h *Heuristic) Generate(ctx context.Context, in Input) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if len(in.Statements) != 2 {
		return Outcome{}, fmt.Errorf("generator: expected statements from exactly two parties, got %d", len(in.Statements))
	}

	a, b := in.Statements[0], in.Statements[1]
	scoreA := statementScore(a)
	scoreB := statementScore(b)

	out := Outcome{
		Summary: fmt.Sprintf("Dispute %q: positions of both parties reviewed (%d vs %d evidence points).",
			in.Title, scoreA, scoreB),
	}

	total := scoreA + scoreB
	if total == 0 {
		total = 1
	}
	margin := float64(abs(scoreA-scoreB)) / float64(total)
	out.Confidence = h.spec.Accuracy * (0.5 + margin/2)

	switch {
	case margin < 0.1:
		out.Decision = "No clear prevailing party; both positions carry comparable weight."
		out.Reasoning = "The submitted statements are of comparable substance and neither party provided decisive supporting material."
	default:
		winner := a
		if scoreB > scoreA {
			winner = b
		}
		w := winner.PartyID
		out.WinnerID = &w
		out.Decision = fmt.Sprintf("The position of party %s prevails.", w)
		out.Reasoning = "The prevailing statement provided materially more substantiated detail and supporting attachments."
		if in.DisputeValue > 0 {
			comp := in.DisputeValue * int64(margin*100) / 100
			if comp > 0 {
				out.Compensation = &comp
			}
		}
	}

	return out, nil
}

func statementScore(s Statement) int {
	words := len(strings.Fields(s.Text))
	return words + 25*len(s.Attachments)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
