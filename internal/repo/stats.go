package repo

import (
	"context"
	"database/sql"

	"warroom/internal/domain"
)

func (r Repo) EnsurePlayer(ctx context.Context, id, name, createdAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO players(id,name,created_at) VALUES (?,?,?)`,
		id, nullable(name), createdAt)
	return err
}

func (r Repo) EnsurePlayerTx(ctx context.Context, tx *sql.Tx, id, name, createdAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO players(id,name,created_at) VALUES (?,?,?)`,
		id, nullable(name), createdAt)
	return err
}

func (r Repo) GetPlayer(ctx context.Context, id string) (domain.Player, error) {
	var p domain.Player
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM players WHERE id=?`, id).
		Scan(&p.ID, &name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if name.Valid {
		p.Name = name.String
	}
	return p, err
}

func (r Repo) GetPlayerStats(ctx context.Context, arenaID, playerID string) (domain.PlayerStats, error) {
	var s domain.PlayerStats
	err := r.DB.QueryRowContext(ctx, `SELECT arena_id,player_id,total_missions,missions_won,updated_at FROM player_stats WHERE arena_id=? AND player_id=?`, arenaID, playerID).
		Scan(&s.ArenaID, &s.PlayerID, &s.TotalMissions, &s.MissionsWon, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListPlayerStats(ctx context.Context, arenaID string) ([]domain.PlayerStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT arena_id,player_id,total_missions,missions_won,updated_at FROM player_stats WHERE arena_id=? ORDER BY missions_won DESC, total_missions DESC, player_id ASC`, arenaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PlayerStats
	for rows.Next() {
		var s domain.PlayerStats
		if err := rows.Scan(&s.ArenaID, &s.PlayerID, &s.TotalMissions, &s.MissionsWon, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// AwardMissionTx credits one mission toward a player's tally. The
// mission_awards row is the once-only gate: if it already exists the
// stats rows are left untouched, so retried finalizations never double
// count.
func (r Repo) AwardMissionTx(ctx context.Context, tx *sql.Tx, arenaID, missionID, playerID string, won bool, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO mission_awards(mission_id,player_id,won,created_at) VALUES (?,?,?,?)`,
		missionID, playerID, boolInt(won), now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	wonInc := 0
	if won {
		wonInc = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO player_stats(arena_id,player_id,total_missions,missions_won,updated_at)
VALUES (?,?,1,?,?)
ON CONFLICT(arena_id,player_id) DO UPDATE SET total_missions=total_missions+1, missions_won=missions_won+?, updated_at=excluded.updated_at`,
		arenaID, playerID, wonInc, now, wonInc)
	if err != nil {
		return false, err
	}
	return true, nil
}
