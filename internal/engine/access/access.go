package access

import (
	"context"
	"database/sql"
	"fmt"
)

// ForbiddenError indicates the player has no standing to perform an action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// ForbiddenSectionError indicates a dossier section the player cannot edit.
type ForbiddenSectionError struct {
	Section string
}

func (e ForbiddenSectionError) Error() string {
	return fmt.Sprintf("section %s requires its assigned role or team leadership", e.Section)
}

// Service answers authorization questions backed by the team tables.
type Service struct {
	DB *sql.DB
}

// TeamOf returns the id and name of the team the player belongs to on a
// mission, or ok=false when the player is on neither roster.
func (s Service) TeamOf(ctx context.Context, tx *sql.Tx, missionID, playerID string) (teamID, teamName string, ok bool, err error) {
	row := tx.QueryRowContext(ctx, `
SELECT t.id, t.name FROM members m
JOIN teams t ON t.id=m.team_id
WHERE t.mission_id=? AND m.player_id=? LIMIT 1`, missionID, playerID)
	err = row.Scan(&teamID, &teamName)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return teamID, teamName, true, nil
}

// IsLeader reports whether the player holds the team's leader seat.
func (s Service) IsLeader(ctx context.Context, tx *sql.Tx, teamID, playerID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM teams WHERE id=? AND leader_id=? LIMIT 1`, teamID, playerID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// HoldsRole reports whether the player currently holds the given role on the team.
func (s Service) HoldsRole(ctx context.Context, tx *sql.Tx, teamID, playerID, role string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM members WHERE team_id=? AND player_id=? AND role=? LIMIT 1`, teamID, playerID, role)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CanEditSection allows the holder of the section's mapped role, or the
// team leader as a fallback for unfilled roles.
func (s Service) CanEditSection(ctx context.Context, tx *sql.Tx, teamID, playerID, role string) (bool, error) {
	if role != "" {
		has, err := s.HoldsRole(ctx, tx, teamID, playerID, role)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return s.IsLeader(ctx, tx, teamID, playerID)
}
