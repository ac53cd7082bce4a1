package repo

import (
	"context"
	"database/sql"

	"warroom/internal/domain"
)

// UpsertReportTx stores a team's dossier, replacing any earlier submission.
func (r Repo) UpsertReportTx(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reports(mission_id,team_name,dossier_json,forced,created_at,updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(mission_id,team_name) DO UPDATE SET dossier_json=excluded.dossier_json, forced=excluded.forced, updated_at=excluded.updated_at`,
		rep.MissionID, rep.TeamName, rep.DossierJSON, boolInt(rep.Forced), rep.CreatedAt, rep.UpdatedAt)
	return err
}

func scanReport(scan func(dest ...any) error) (domain.Report, error) {
	var rep domain.Report
	var forced int
	err := scan(&rep.MissionID, &rep.TeamName, &rep.DossierJSON, &forced, &rep.CreatedAt, &rep.UpdatedAt)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	rep.Forced = forced != 0
	return rep, nil
}

func (r Repo) GetReport(ctx context.Context, missionID, teamName string) (domain.Report, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT mission_id,team_name,dossier_json,forced,created_at,updated_at FROM reports WHERE mission_id=? AND team_name=?`, missionID, teamName)
	return scanReport(row.Scan)
}

func (r Repo) GetReportTx(ctx context.Context, tx *sql.Tx, missionID, teamName string) (domain.Report, error) {
	row := tx.QueryRowContext(ctx, `SELECT mission_id,team_name,dossier_json,forced,created_at,updated_at FROM reports WHERE mission_id=? AND team_name=?`, missionID, teamName)
	return scanReport(row.Scan)
}

func (r Repo) ListReports(ctx context.Context, missionID string) ([]domain.Report, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT mission_id,team_name,dossier_json,forced,created_at,updated_at FROM reports WHERE mission_id=? ORDER BY team_name ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Report
	for rows.Next() {
		rep, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

// --- drafts ---

func (r Repo) UpsertDraftTx(ctx context.Context, tx *sql.Tx, d domain.Draft) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO drafts(mission_id,team_name,dossier_json,updated_at)
VALUES (?,?,?,?)
ON CONFLICT(mission_id,team_name) DO UPDATE SET dossier_json=excluded.dossier_json, updated_at=excluded.updated_at`,
		d.MissionID, d.TeamName, d.DossierJSON, d.UpdatedAt)
	return err
}

func scanDraft(scan func(dest ...any) error) (domain.Draft, error) {
	var d domain.Draft
	err := scan(&d.MissionID, &d.TeamName, &d.DossierJSON, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) GetDraft(ctx context.Context, missionID, teamName string) (domain.Draft, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT mission_id,team_name,dossier_json,updated_at FROM drafts WHERE mission_id=? AND team_name=?`, missionID, teamName)
	return scanDraft(row.Scan)
}

func (r Repo) GetDraftTx(ctx context.Context, tx *sql.Tx, missionID, teamName string) (domain.Draft, error) {
	row := tx.QueryRowContext(ctx, `SELECT mission_id,team_name,dossier_json,updated_at FROM drafts WHERE mission_id=? AND team_name=?`, missionID, teamName)
	return scanDraft(row.Scan)
}
