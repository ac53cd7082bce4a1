package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"warroom/internal/adjudicator"
	"warroom/internal/domain"
	"warroom/internal/events"
)

// TimingError marks a mission whose timestamps cannot support scoring.
// There is no sane recovery: the mission record itself is broken.
type TimingError struct {
	MissionID string
	Missing   string
}

func (e TimingError) Error() string {
	return fmt.Sprintf("mission %s cannot be scored: missing %s", e.MissionID, e.Missing)
}

// ErrNoResult is returned when a mission has no verdict yet.
var ErrNoResult = errors.New("mission has no result yet")

// FinalizeMission runs the adjudication protocol. Any number of
// callers may race it: the adjudicator is consulted outside the
// transaction, then exactly one caller lands the conditional score
// write and propagates stats; everyone else discards their verdict and
// returns the stored one.
func (e Engine) FinalizeMission(ctx context.Context, missionID, actorID string) (MissionResult, error) {
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return MissionResult{}, err
	}
	if m.ScoreDetailsJSON != nil {
		return decodeResult(*m.ScoreDetailsJSON)
	}
	if m.Status != domain.MissionEvaluation {
		return MissionResult{}, fmt.Errorf("mission %s is not ready for adjudication (status %s)", missionID, m.Status)
	}
	if e.Adjudicator == nil {
		return MissionResult{}, errors.New("adjudicator not configured")
	}

	repAlpha, err := e.Repo.GetReport(ctx, missionID, domain.TeamAlpha)
	if err != nil {
		return MissionResult{}, fmt.Errorf("alpha report: %w", err)
	}
	repBeta, err := e.Repo.GetReport(ctx, missionID, domain.TeamBeta)
	if err != nil {
		return MissionResult{}, fmt.Errorf("beta report: %w", err)
	}
	teamAlpha, err := e.Repo.GetTeamByName(ctx, missionID, domain.TeamAlpha)
	if err != nil {
		return MissionResult{}, err
	}
	teamBeta, err := e.Repo.GetTeamByName(ctx, missionID, domain.TeamBeta)
	if err != nil {
		return MissionResult{}, err
	}

	if m.StartTime == nil {
		return MissionResult{}, TimingError{MissionID: missionID, Missing: "start_time"}
	}
	if teamAlpha.SubmittedAt == nil {
		return MissionResult{}, TimingError{MissionID: missionID, Missing: "alpha submitted_at"}
	}
	if teamBeta.SubmittedAt == nil {
		return MissionResult{}, TimingError{MissionID: missionID, Missing: "beta submitted_at"}
	}
	start, err := time.Parse(time.RFC3339, *m.StartTime)
	if err != nil {
		return MissionResult{}, TimingError{MissionID: missionID, Missing: "parseable start_time"}
	}
	alphaAt, err := time.Parse(time.RFC3339, *teamAlpha.SubmittedAt)
	if err != nil {
		return MissionResult{}, TimingError{MissionID: missionID, Missing: "parseable alpha submitted_at"}
	}
	betaAt, err := time.Parse(time.RFC3339, *teamBeta.SubmittedAt)
	if err != nil {
		return MissionResult{}, TimingError{MissionID: missionID, Missing: "parseable beta submitted_at"}
	}
	limit := time.Duration(m.TimeLimitMinutes) * time.Minute
	alphaElapsed := alphaAt.Sub(start)
	betaElapsed := betaAt.Sub(start)

	verdict, err := e.Adjudicator.Adjudicate(ctx, adjudicator.Request{
		MissionID:   m.ID,
		Title:       m.Title,
		Subject:     m.Subject,
		ReportAlpha: json.RawMessage(repAlpha.DossierJSON),
		ReportBeta:  json.RawMessage(repBeta.DossierJSON),
		Timing: adjudicator.Timing{
			StartTime:           *m.StartTime,
			TimeLimitMinutes:    m.TimeLimitMinutes,
			AlphaSubmittedAt:    *teamAlpha.SubmittedAt,
			BetaSubmittedAt:     *teamBeta.SubmittedAt,
			AlphaElapsedMinutes: alphaElapsed.Minutes(),
			BetaElapsedMinutes:  betaElapsed.Minutes(),
		},
	})
	if err != nil {
		return MissionResult{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	result := MissionResult{
		MissionID:            m.ID,
		Alpha:                scoreTeam(verdict.Alpha, alphaElapsed, limit),
		Beta:                 scoreTeam(verdict.Beta, betaElapsed, limit),
		WinningTeamReasoning: verdict.WinningTeamReasoning,
		BattleWinners:        verdict.BattleWinners,
		AdjudicatedAt:        now,
	}
	result.Winner = decideWinner(result.Alpha, result.Beta)
	detailsJSON, err := json.Marshal(result)
	if err != nil {
		return MissionResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MissionResult{}, err
	}
	defer tx.Rollback()

	claimed, err := e.Repo.ClaimMissionScoreTx(ctx, tx, m.ID, string(detailsJSON), result.Winner, result.Alpha.Total, result.Beta.Total, now)
	if err != nil {
		return MissionResult{}, err
	}
	if !claimed {
		// A concurrent finalization landed first; our verdict is discarded.
		if err := tx.Rollback(); err != nil {
			return MissionResult{}, err
		}
		stored, err := e.Repo.GetMission(ctx, missionID)
		if err != nil {
			return MissionResult{}, err
		}
		if stored.ScoreDetailsJSON == nil {
			return MissionResult{}, ErrNoResult
		}
		return decodeResult(*stored.ScoreDetailsJSON)
	}

	players, err := e.Repo.MissionTeamPlayersTx(ctx, tx, m.ID)
	if err != nil {
		return MissionResult{}, err
	}
	for playerID, teamName := range players {
		if err := e.Repo.EnsurePlayerTx(ctx, tx, playerID, "", now); err != nil {
			return MissionResult{}, err
		}
		won := result.Winner != "tie" && teamName == result.Winner
		if _, err := e.Repo.AwardMissionTx(ctx, tx, m.ArenaID, m.ID, playerID, won, now); err != nil {
			return MissionResult{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "mission.scored", m.ArenaID, "mission", m.ID, actorID, events.EventPayload{
		"winner": result.Winner, "score_alpha": result.Alpha.Total, "score_beta": result.Beta.Total,
	}); err != nil {
		return MissionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "mission.completed", m.ArenaID, "mission", m.ID, actorID, events.EventPayload{
		"from": domain.MissionEvaluation,
	}); err != nil {
		return MissionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return MissionResult{}, err
	}
	return result, nil
}

// Result returns the stored verdict for a completed mission.
func (e Engine) Result(ctx context.Context, missionID string) (MissionResult, error) {
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return MissionResult{}, err
	}
	if m.ScoreDetailsJSON == nil {
		return MissionResult{}, ErrNoResult
	}
	return decodeResult(*m.ScoreDetailsJSON)
}

func decodeResult(detailsJSON string) (MissionResult, error) {
	var r MissionResult
	if err := json.Unmarshal([]byte(detailsJSON), &r); err != nil {
		return MissionResult{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}
