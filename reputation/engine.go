// Package reputation derives updated participant scores from finalized
// resolutions. The scoring itself is a pure function; persistence lives in
// the service.
package reputation

import "disputeflow/dispute"

const (
	// ScoreFloor and ScoreCeil bound every sub-score.
	ScoreFloor = 0
	ScoreCeil  = 1000

	winTruthfulnessDelta = 25
	winFairnessDelta     = 15
)

// Score holds the reputation sub-scores plus the derived overall value.
type Score struct {
	Truthfulness   int
	Fairness       int
	Responsiveness int
	Overall        int
}

// Stats tracks cumulative dispute outcomes for a participant.
type Stats struct {
	Total int
	Won   int
}

// WinRate is Won over Total, 0 for a fresh participant.
func (s Stats) WinRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Won) / float64(s.Total)
}

// Profile is the reputation state of one participant.
type Profile struct {
	UserID string
	Score  Score
	Stats  Stats
}

// Level derives the display tier from overall score and history.
func (p Profile) Level() string {
	switch {
	case p.Score.Overall >= 800 && p.Stats.Total >= 10:
		return "platinum"
	case p.Score.Overall >= 650:
		return "gold"
	case p.Score.Overall >= 450:
		return "silver"
	default:
		return "bronze"
	}
}

// Apply computes both parties' updated profiles from a finalized resolution.
// The declared winner's truthfulness and fairness move up and the loser's
// move down, bounded to [ScoreFloor, ScoreCeil]; a tie moves neither. The
// overall score is recomputed as a fixed-weight blend either way. Pure: the
// caller persists the results.
func Apply(res dispute.Resolution, a, b Profile) (Profile, Profile) {
	a.Stats.Total++
	b.Stats.Total++

	if res.WinnerID != nil {
		switch *res.WinnerID {
		case a.UserID:
			reward(&a)
			penalize(&b)
		case b.UserID:
			reward(&b)
			penalize(&a)
		}
	}

	recompute(&a)
	recompute(&b)
	return a, b
}

func reward(p *Profile) {
	p.Score.Truthfulness = clamp(p.Score.Truthfulness + winTruthfulnessDelta)
	p.Score.Fairness = clamp(p.Score.Fairness + winFairnessDelta)
	p.Stats.Won++
}

func penalize(p *Profile) {
	p.Score.Truthfulness = clamp(p.Score.Truthfulness - winTruthfulnessDelta)
	p.Score.Fairness = clamp(p.Score.Fairness - winFairnessDelta)
}

// recompute blends the sub-scores 50/30/20.
func recompute(p *Profile) {
	p.Score.Overall = clamp((p.Score.Truthfulness*50 + p.Score.Fairness*30 + p.Score.Responsiveness*20) / 100)
}

func clamp(v int) int {
	if v < ScoreFloor {
		return ScoreFloor
	}
	if v > ScoreCeil {
		return ScoreCeil
	}
	return v
}
