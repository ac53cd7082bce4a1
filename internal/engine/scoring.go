package engine

import (
	"math"
	"time"

	"warroom/internal/adjudicator"
	"warroom/internal/domain"
)

// Category maxima. Accuracy dominates the total; speed is the smallest
// lever so a fast sloppy dossier cannot beat a slow thorough one.
const (
	MaxAccuracyScore     = 60.0
	MaxSourcesScore      = 15.0
	MaxPresentationScore = 15.0
	MaxSpeedScore        = 10.0
)

// clampScore pins a raw mark into [0, max]. Non-finite input counts as zero.
func clampScore(v, max float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// speedScore rewards finishing early: full marks at the gun, linearly
// down to zero at the time limit and beyond.
func speedScore(elapsed, limit time.Duration) float64 {
	if limit <= 0 {
		return 0
	}
	frac := 1 - elapsed.Minutes()/limit.Minutes()
	return clampScore(MaxSpeedScore*frac, MaxSpeedScore)
}

// TeamResult is one team's scored breakdown as persisted with the mission.
type TeamResult struct {
	AccuracyScore     float64 `json:"accuracy_score"`
	SourcesScore      float64 `json:"sources_score"`
	PresentationScore float64 `json:"presentation_score"`
	SpeedScore        float64 `json:"speed_score"`
	Total             float64 `json:"total"`
	Reasoning         string  `json:"reasoning,omitempty"`
}

// MissionResult is the full persisted verdict for a completed mission.
type MissionResult struct {
	MissionID            string                     `json:"mission_id"`
	Winner               string                     `json:"winner"`
	Alpha                TeamResult                 `json:"alpha"`
	Beta                 TeamResult                 `json:"beta"`
	WinningTeamReasoning string                     `json:"winning_team_reasoning,omitempty"`
	BattleWinners        []adjudicator.BattleWinner `json:"battle_winners,omitempty"`
	AdjudicatedAt        string                     `json:"adjudicated_at"`
}

func scoreTeam(raw adjudicator.TeamScore, elapsed, limit time.Duration) TeamResult {
	r := TeamResult{
		AccuracyScore:     clampScore(raw.AccuracyScore, MaxAccuracyScore),
		SourcesScore:      clampScore(raw.SourcesScore, MaxSourcesScore),
		PresentationScore: clampScore(raw.PresentationScore, MaxPresentationScore),
		SpeedScore:        speedScore(elapsed, limit),
		Reasoning:         raw.Reasoning,
	}
	r.Total = r.AccuracyScore + r.SourcesScore + r.PresentationScore + r.SpeedScore
	return r
}

// decideWinner requires a strictly higher total; equal totals tie.
func decideWinner(alpha, beta TeamResult) string {
	switch {
	case alpha.Total > beta.Total:
		return domain.TeamAlpha
	case beta.Total > alpha.Total:
		return domain.TeamBeta
	default:
		return "tie"
	}
}
