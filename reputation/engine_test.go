package reputation

import (
	"testing"

	"disputeflow/dispute"
)

func freshProfile(userID string) Profile {
	return Profile{
		UserID: userID,
		Score:  Score{Truthfulness: 500, Fairness: 500, Responsiveness: 500, Overall: 500},
	}
}

func resolutionWithWinner(winner string) dispute.Resolution {
	return dispute.Resolution{
		Summary:    "summary",
		Decision:   "decision",
		Confidence: 0.9,
		WinnerID:   &winner,
	}
}

func TestApply_WinnerAndLoser(t *testing.T) {
	a := freshProfile("party-a")
	b := freshProfile("party-b")

	gotA, gotB := Apply(resolutionWithWinner("party-a"), a, b)

	if gotA.Score.Truthfulness != 525 || gotA.Score.Fairness != 515 {
		t.Fatalf("winner scores wrong: %+v", gotA.Score)
	}
	if gotB.Score.Truthfulness != 475 || gotB.Score.Fairness != 485 {
		t.Fatalf("loser scores wrong: %+v", gotB.Score)
	}
	if gotA.Stats.Won != 1 || gotB.Stats.Won != 0 {
		t.Fatalf("win counters wrong: %+v %+v", gotA.Stats, gotB.Stats)
	}
	if gotA.Stats.Total != 1 || gotB.Stats.Total != 1 {
		t.Fatal("both parties must count the dispute")
	}

	// overall = (truth*50 + fair*30 + resp*20) / 100
	wantOverallA := (525*50 + 515*30 + 500*20) / 100
	if gotA.Score.Overall != wantOverallA {
		t.Fatalf("winner overall = %d, want %d", gotA.Score.Overall, wantOverallA)
	}
}

func TestApply_Tie(t *testing.T) {
	a := freshProfile("party-a")
	b := freshProfile("party-b")

	gotA, gotB := Apply(dispute.Resolution{Summary: "even", Confidence: 0.6}, a, b)

	if gotA.Score != a.Score || gotB.Score != b.Score {
		t.Fatal("a tie must not move sub-scores")
	}
	if gotA.Stats.Total != 1 || gotB.Stats.Total != 1 {
		t.Fatal("a tie still counts as a dispute")
	}
	if gotA.Stats.Won != 0 || gotB.Stats.Won != 0 {
		t.Fatal("a tie has no winner")
	}
}

func TestApply_ClampsAtBounds(t *testing.T) {
	a := freshProfile("party-a")
	a.Score = Score{Truthfulness: 995, Fairness: 995, Responsiveness: 1000}
	b := freshProfile("party-b")
	b.Score = Score{Truthfulness: 10, Fairness: 5}

	gotA, gotB := Apply(resolutionWithWinner("party-a"), a, b)

	if gotA.Score.Truthfulness != ScoreCeil {
		t.Fatalf("truthfulness must clamp at %d, got %d", ScoreCeil, gotA.Score.Truthfulness)
	}
	if gotB.Score.Truthfulness != ScoreFloor || gotB.Score.Fairness != ScoreFloor {
		t.Fatalf("loser scores must clamp at %d: %+v", ScoreFloor, gotB.Score)
	}
}

func TestApply_UnknownWinnerMovesNothing(t *testing.T) {
	a := freshProfile("party-a")
	b := freshProfile("party-b")

	gotA, gotB := Apply(resolutionWithWinner("someone-else"), a, b)

	if gotA.Score != a.Score || gotB.Score != b.Score {
		t.Fatal("an unknown winner id must not move scores")
	}
}

func TestStatsWinRate(t *testing.T) {
	if rate := (Stats{}).WinRate(); rate != 0 {
		t.Fatalf("fresh win rate = %v, want 0", rate)
	}
	if rate := (Stats{Total: 4, Won: 3}).WinRate(); rate != 0.75 {
		t.Fatalf("win rate = %v, want 0.75", rate)
	}
}

func TestProfileLevel(t *testing.T) {
	cases := []struct {
		overall int
		total   int
		want    string
	}{
		{900, 12, "platinum"},
		{900, 2, "gold"},
		{700, 1, "gold"},
		{500, 0, "silver"},
		{300, 0, "bronze"},
	}
	for _, tc := range cases {
		p := Profile{Score: Score{Overall: tc.overall}, Stats: Stats{Total: tc.total}}
		if got := p.Level(); got != tc.want {
			t.Errorf("Level(overall=%d, total=%d) = %s, want %s", tc.overall, tc.total, got, tc.want)
		}
	}
}
