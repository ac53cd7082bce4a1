package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"warroom/internal/config"
	"warroom/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertArena(ctx context.Context, a domain.Arena) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO arenas(id,status,description,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Status, nullable(a.Description), a.CreatedAt)
	return err
}

func (r Repo) GetArena(ctx context.Context, id string) (domain.Arena, error) {
	var a domain.Arena
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,status,description,created_at FROM arenas WHERE id=?`, id).
		Scan(&a.ID, &a.Status, &desc, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if desc.Valid {
		a.Description = desc.String
	}
	return a, err
}

func (r Repo) SingleArena(ctx context.Context) (domain.Arena, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,status,COALESCE(description,''),created_at FROM arenas`)
	if err != nil {
		return domain.Arena{}, err
	}
	defer rows.Close()
	var arenas []domain.Arena
	for rows.Next() {
		var a domain.Arena
		if err := rows.Scan(&a.ID, &a.Status, &a.Description, &a.CreatedAt); err != nil {
			return domain.Arena{}, err
		}
		arenas = append(arenas, a)
	}
	if len(arenas) == 0 {
		return domain.Arena{}, ErrNotFound
	}
	if len(arenas) > 1 {
		return domain.Arena{}, fmt.Errorf("multiple arenas exist; specify --arena")
	}
	return arenas[0], nil
}

func (r Repo) ListArenas(ctx context.Context) ([]domain.Arena, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,status,COALESCE(description,''),created_at FROM arenas ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Arena
	for rows.Next() {
		var a domain.Arena
		if err := rows.Scan(&a.ID, &a.Status, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) DeleteArena(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM arenas WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertArenaConfig(ctx context.Context, arenaID string, cfg *config.Config) error {
	return upsertArenaConfig(ctx, r.DB, nil, arenaID, cfg)
}

func (r Repo) UpsertArenaConfigTx(ctx context.Context, tx *sql.Tx, arenaID string, cfg *config.Config) error {
	return upsertArenaConfig(ctx, nil, tx, arenaID, cfg)
}

func upsertArenaConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, arenaID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Arena.ID = arenaID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO arena_configs(arena_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(arena_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, arenaID, string(payload), now, now)
	return err
}

func (r Repo) GetArenaConfig(ctx context.Context, arenaID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM arena_configs WHERE arena_id=?`, arenaID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Arena.ID == "" {
		cfg.Arena.ID = arenaID
	}
	return &cfg, cfg.Validate()
}

// --- missions ---

const missionColumns = `id,arena_id,owner_id,title,subject,capacity_per_team,time_limit_minutes,status,start_time,winner,score_alpha,score_beta,score_details_json,created_at,updated_at`

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var m domain.Mission
	var startTime, winner, scoreDetails sql.NullString
	var scoreAlpha, scoreBeta sql.NullFloat64
	err := scan(&m.ID, &m.ArenaID, &m.OwnerID, &m.Title, &m.Subject, &m.CapacityPerTeam, &m.TimeLimitMinutes,
		&m.Status, &startTime, &winner, &scoreAlpha, &scoreBeta, &scoreDetails, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if startTime.Valid {
		m.StartTime = &startTime.String
	}
	if winner.Valid {
		m.Winner = &winner.String
	}
	if scoreAlpha.Valid {
		m.ScoreAlpha = &scoreAlpha.Float64
	}
	if scoreBeta.Valid {
		m.ScoreBeta = &scoreBeta.Float64
	}
	if scoreDetails.Valid {
		m.ScoreDetailsJSON = &scoreDetails.String
	}
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO missions(`+missionColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ArenaID, m.OwnerID, m.Title, m.Subject, m.CapacityPerTeam, m.TimeLimitMinutes,
		m.Status, nullableStringPtr(m.StartTime), nullableStringPtr(m.Winner),
		nullableFloatPtr(m.ScoreAlpha), nullableFloatPtr(m.ScoreBeta), nullableStringPtr(m.ScoreDetailsJSON),
		m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

type MissionFilters struct {
	ArenaID         string
	Status          string
	OwnerID         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if f.ArenaID != "" {
		clauses = append(clauses, "arena_id=?")
		args = append(args, f.ArenaID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + missionColumns + ` FROM missions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// DueScheduledMissions returns scheduled missions whose start time has passed.
func (r Repo) DueScheduledMissions(ctx context.Context, arenaID, now string) ([]domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE status='scheduled' AND start_time IS NOT NULL AND start_time<=?`
	args := []any{now}
	if arenaID != "" {
		query += " AND arena_id=?"
		args = append(args, arenaID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ActiveMissions returns missions whose clock is running.
func (r Repo) ActiveMissions(ctx context.Context, arenaID string) ([]domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE status='active'`
	var args []any
	if arenaID != "" {
		query += " AND arena_id=?"
		args = append(args, arenaID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMissionConfigTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET title=?, subject=?, capacity_per_team=?, time_limit_minutes=?, updated_at=? WHERE id=?`,
		m.Title, m.Subject, m.CapacityPerTeam, m.TimeLimitMinutes, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMissionStatusTx applies a status change; the caller has already
// validated the transition. Re-applying the same status is a no-op.
func (r Repo) SetMissionStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE missions SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	return err
}

// PromoteScheduledTx moves a due scheduled mission to recruiting. The
// status guard makes concurrent promotions converge on a single write.
func (r Repo) PromoteScheduledTx(ctx context.Context, tx *sql.Tx, id, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET status='recruiting', updated_at=? WHERE id=? AND status='scheduled'`, updatedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// StartMissionTx moves recruiting to active. The clock runs from the
// actual activation moment, not from any earlier scheduled opening.
func (r Repo) StartMissionTx(ctx context.Context, tx *sql.Tx, id, startTime, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET status='active', start_time=?, updated_at=? WHERE id=? AND status='recruiting'`,
		startTime, updatedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClaimMissionScoreTx is the exactly-once claim: it persists the verdict
// only if score_details_json has never been set. Returns false when a
// concurrent coordinator already won.
func (r Repo) ClaimMissionScoreTx(ctx context.Context, tx *sql.Tx, id, detailsJSON, winner string, scoreAlpha, scoreBeta float64, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE missions
SET score_details_json=?, winner=?, score_alpha=?, score_beta=?, status='completed', updated_at=?
WHERE id=? AND score_details_json IS NULL`,
		detailsJSON, winner, scoreAlpha, scoreBeta, updatedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- teams & members ---

func (r Repo) InsertTeamTx(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO teams(id,mission_id,name,leader_id,report_submitted,submitted_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.MissionID, t.Name, nullableStringPtr(t.LeaderID), boolInt(t.ReportSubmitted), nullableStringPtr(t.SubmittedAt))
	return err
}

func scanTeam(scan func(dest ...any) error) (domain.Team, error) {
	var t domain.Team
	var leader, submittedAt sql.NullString
	var submitted int
	err := scan(&t.ID, &t.MissionID, &t.Name, &leader, &submitted, &submittedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if leader.Valid {
		t.LeaderID = &leader.String
	}
	if submittedAt.Valid {
		t.SubmittedAt = &submittedAt.String
	}
	t.ReportSubmitted = submitted != 0
	return t, nil
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,mission_id,name,leader_id,report_submitted,submitted_at FROM teams WHERE id=?`, id)
	return scanTeam(row.Scan)
}

func (r Repo) GetTeamByName(ctx context.Context, missionID, name string) (domain.Team, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,mission_id,name,leader_id,report_submitted,submitted_at FROM teams WHERE mission_id=? AND name=?`, missionID, name)
	return scanTeam(row.Scan)
}

func (r Repo) GetTeamByNameTx(ctx context.Context, tx *sql.Tx, missionID, name string) (domain.Team, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,mission_id,name,leader_id,report_submitted,submitted_at FROM teams WHERE mission_id=? AND name=?`, missionID, name)
	return scanTeam(row.Scan)
}

func (r Repo) ListTeams(ctx context.Context, missionID string) ([]domain.Team, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,mission_id,name,leader_id,report_submitted,submitted_at FROM teams WHERE mission_id=? ORDER BY name ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		t, err := scanTeam(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		members, err := r.ListMembers(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Members = members
	}
	return res, nil
}

// ClaimLeadershipTx sets the leader only while the seat is empty.
func (r Repo) ClaimLeadershipTx(ctx context.Context, tx *sql.Tx, teamID, playerID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE teams SET leader_id=? WHERE id=? AND leader_id IS NULL`, playerID, teamID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkTeamSubmittedTx records the submission timestamp once; repeated
// submissions leave the original timestamp in place.
func (r Repo) MarkTeamSubmittedTx(ctx context.Context, tx *sql.Tx, teamID, submittedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE teams SET report_submitted=1, submitted_at=? WHERE id=? AND submitted_at IS NULL`, submittedAt, teamID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) InsertMemberTx(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO members(team_id,player_id,role,joined_at) VALUES (?,?,?,?)`,
		m.TeamID, m.PlayerID, nullableStringPtr(m.Role), m.JoinedAt)
	return err
}

func (r Repo) ListMembers(ctx context.Context, teamID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT team_id,player_id,role,joined_at FROM members WHERE team_id=? ORDER BY joined_at ASC, player_id ASC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		var role sql.NullString
		if err := rows.Scan(&m.TeamID, &m.PlayerID, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		if role.Valid {
			m.Role = &role.String
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) GetMember(ctx context.Context, teamID, playerID string) (domain.Member, error) {
	var m domain.Member
	var role sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT team_id,player_id,role,joined_at FROM members WHERE team_id=? AND player_id=?`, teamID, playerID).
		Scan(&m.TeamID, &m.PlayerID, &role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if role.Valid {
		m.Role = &role.String
	}
	return m, nil
}

func (r Repo) CountMembersTx(ctx context.Context, tx *sql.Tx, teamID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM members WHERE team_id=?`, teamID).Scan(&n)
	return n, err
}

// AssignRoleTx gives a role to a member, displacing any current holder
// back to unassigned within the same statement pair.
func (r Repo) AssignRoleTx(ctx context.Context, tx *sql.Tx, teamID, playerID, role string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE members SET role=NULL WHERE team_id=? AND role=?`, teamID, role); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE members SET role=? WHERE team_id=? AND player_id=?`, role, teamID, playerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MissionTeamPlayers returns all player ids on either team of a mission.
func (r Repo) MissionTeamPlayersTx(ctx context.Context, tx *sql.Tx, missionID string) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT m.player_id, t.name FROM members m JOIN teams t ON t.id=m.team_id WHERE t.mission_id=?`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var playerID, teamName string
		if err := rows.Scan(&playerID, &teamName); err != nil {
			return nil, err
		}
		res[playerID] = teamName
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, arenaID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, arenaID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, arenaID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if arenaID != "" {
		clauses = append(clauses, "arena_id=?")
		args = append(args, arenaID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,arena_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ArenaID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, arenaID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if arenaID != "" {
		clauses = append(clauses, "arena_id=?")
		args = append(args, arenaID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,arena_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ArenaID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

// LatestEventID returns the most recent event ID for an arena.
func (r Repo) LatestEventID(ctx context.Context, arenaID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE arena_id=?`, arenaID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) CountMissionsByStatus(ctx context.Context, arenaID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM missions WHERE arena_id=? GROUP BY status`, arenaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
