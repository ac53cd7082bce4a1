package engine

import (
	"math"
	"testing"
	"time"

	"warroom/internal/adjudicator"
)

func TestClampScore(t *testing.T) {
	cases := []struct {
		name string
		v    float64
		max  float64
		want float64
	}{
		{"above max", 200, MaxAccuracyScore, 60},
		{"negative", -5, MaxSourcesScore, 0},
		{"in range", 10, MaxPresentationScore, 10},
		{"nan", math.NaN(), MaxAccuracyScore, 0},
		{"positive inf", math.Inf(1), MaxAccuracyScore, 0},
		{"negative inf", math.Inf(-1), MaxAccuracyScore, 0},
		{"at max", 15, MaxSourcesScore, 15},
	}
	for _, c := range cases {
		if got := clampScore(c.v, c.max); got != c.want {
			t.Errorf("%s: clampScore(%v, %v) = %v, want %v", c.name, c.v, c.max, got, c.want)
		}
	}
}

func TestSpeedScoreDecaysWithElapsed(t *testing.T) {
	limit := 60 * time.Minute
	fast := speedScore(20*time.Minute, limit)
	slow := speedScore(59*time.Minute+59*time.Second, limit)
	if fast <= slow {
		t.Fatalf("faster submission should score higher: fast=%v slow=%v", fast, slow)
	}
	if slow <= 0 {
		t.Fatalf("just under the limit should still score: %v", slow)
	}
	if got := speedScore(0, limit); got != MaxSpeedScore {
		t.Fatalf("instant submission: %v", got)
	}
	if got := speedScore(limit, limit); got != 0 {
		t.Fatalf("at the limit: %v", got)
	}
	if got := speedScore(2*limit, limit); got != 0 {
		t.Fatalf("past the limit: %v", got)
	}
	if got := speedScore(10*time.Minute, 0); got != 0 {
		t.Fatalf("zero limit: %v", got)
	}
}

func TestScoreTeamTotals(t *testing.T) {
	raw := adjudicator.TeamScore{
		AccuracyScore:     200,
		SourcesScore:      -5,
		PresentationScore: 10,
		Reasoning:         "thorough",
	}
	got := scoreTeam(raw, 0, 60*time.Minute)
	// 60 + 0 + 10 + 10
	if got.Total != 80 {
		t.Fatalf("total = %v", got.Total)
	}
	if got.Reasoning != "thorough" {
		t.Fatalf("reasoning lost: %q", got.Reasoning)
	}
}

func TestDecideWinner(t *testing.T) {
	if w := decideWinner(TeamResult{Total: 70}, TeamResult{Total: 69.9}); w != "alpha" {
		t.Fatalf("alpha ahead: %s", w)
	}
	if w := decideWinner(TeamResult{Total: 10}, TeamResult{Total: 10.1}); w != "beta" {
		t.Fatalf("beta ahead: %s", w)
	}
	if w := decideWinner(TeamResult{Total: 50}, TeamResult{Total: 50}); w != "tie" {
		t.Fatalf("equal totals: %s", w)
	}
}
