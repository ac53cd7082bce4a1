package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warroom/internal/adjudicator"
	"warroom/internal/config"
	"warroom/internal/domain"
	"warroom/internal/engine/access"
	"warroom/internal/events"
	"warroom/internal/repo"
)

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Access      access.Service
	Config      *config.Config
	Adjudicator adjudicator.Client
	Now         func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Access: access.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
	if cfg != nil && cfg.Adjudicator.URL != "" {
		e.Adjudicator = adjudicator.NewHTTPClient(cfg.Adjudicator.URL, time.Duration(cfg.Adjudicator.TimeoutSeconds)*time.Second)
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// InitArena initializes a new arena with migrations already run.
func (e Engine) InitArena(ctx context.Context, arenaID, description, actorID string) (domain.Arena, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Arena{}, err
	}
	defer tx.Rollback()

	a := domain.Arena{
		ID:          arenaID,
		Status:      "active",
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO arenas(id,status,description,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Status, nullable(a.Description), a.CreatedAt); err != nil {
		return domain.Arena{}, fmt.Errorf("insert arena: %w", err)
	}
	if err := e.Repo.UpsertArenaConfigTx(ctx, tx, a.ID, config.Default(a.ID)); err != nil {
		return domain.Arena{}, fmt.Errorf("insert arena config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "arena.init", a.ID, "arena", a.ID, actorID, events.EventPayload{"status": a.Status}); err != nil {
		return domain.Arena{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Arena{}, err
	}
	return a, nil
}

func ensureMissionTransition(old, new string) error {
	switch old {
	case domain.MissionDraft:
		if new == domain.MissionScheduled || new == domain.MissionRecruiting {
			return nil
		}
	case domain.MissionScheduled:
		if new == domain.MissionRecruiting {
			return nil
		}
	case domain.MissionRecruiting:
		if new == domain.MissionActive {
			return nil
		}
	case domain.MissionActive:
		if new == domain.MissionEvaluation {
			return nil
		}
	case domain.MissionEvaluation:
		if new == domain.MissionCompleted {
			return nil
		}
	}
	return fmt.Errorf("invalid mission transition %s -> %s", old, new)
}

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	ID               string
	ArenaID          string
	Title            string
	Subject          string
	CapacityPerTeam  int
	TimeLimitMinutes int
	StartAt          string
	ActorID          string
}

// CreateMission creates a mission and both of its team rosters in one
// transaction. A start time makes the mission scheduled; otherwise it
// stays in draft until opened.
func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	if e.Config == nil {
		return domain.Mission{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Mission{}, errors.New("title is required")
	}
	if opts.Subject == "" {
		return domain.Mission{}, errors.New("subject is required")
	}
	if opts.ArenaID == "" {
		return domain.Mission{}, errors.New("arena is required")
	}
	if _, err := e.Repo.GetArena(ctx, opts.ArenaID); err != nil {
		return domain.Mission{}, err
	}
	if opts.CapacityPerTeam <= 0 {
		opts.CapacityPerTeam = e.Config.Game.CapacityPerTeam
	}
	if opts.TimeLimitMinutes <= 0 {
		opts.TimeLimitMinutes = e.Config.Game.TimeLimitMinutes
	}
	status := domain.MissionDraft
	var startTime *string
	if opts.StartAt != "" {
		t, err := time.Parse(time.RFC3339, opts.StartAt)
		if err != nil {
			return domain.Mission{}, fmt.Errorf("invalid start time: %w", err)
		}
		s := t.UTC().Format(time.RFC3339)
		startTime = &s
		status = domain.MissionScheduled
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.ArenaID+"|"+opts.Title+"|"+now)).String()
	}
	m := domain.Mission{
		ID:               id,
		ArenaID:          opts.ArenaID,
		OwnerID:          opts.ActorID,
		Title:            opts.Title,
		Subject:          opts.Subject,
		CapacityPerTeam:  opts.CapacityPerTeam,
		TimeLimitMinutes: opts.TimeLimitMinutes,
		Status:           status,
		StartTime:        startTime,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsurePlayerTx(ctx, tx, m.OwnerID, "", now); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, err
	}
	for _, name := range []string{domain.TeamAlpha, domain.TeamBeta} {
		team := domain.Team{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(m.ID+"|"+name)).String(),
			MissionID: m.ID,
			Name:      name,
		}
		if err := e.Repo.InsertTeamTx(ctx, tx, team); err != nil {
			return domain.Mission{}, fmt.Errorf("insert team %s: %w", name, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "mission.created", m.ArenaID, "mission", m.ID, opts.ActorID, events.EventPayload{
		"title": m.Title, "subject": m.Subject, "status": m.Status,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// GetMission loads a mission, first promoting it to recruiting when its
// scheduled opening has passed and force-submitting its teams when the
// deadline of an active mission has. Readers therefore never observe a
// stale scheduled mission, and a late SubmitReport (which reads the
// mission first) finds it already out of the active phase.
func (e Engine) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, id)
	if err != nil {
		return domain.Mission{}, err
	}
	promoted, err := e.maybePromote(ctx, m)
	if err != nil {
		return domain.Mission{}, err
	}
	expired, err := e.maybeExpire(ctx, m)
	if err != nil {
		return domain.Mission{}, err
	}
	if promoted || expired {
		return e.Repo.GetMission(ctx, id)
	}
	return m, nil
}

func (e Engine) maybePromote(ctx context.Context, m domain.Mission) (bool, error) {
	if m.Status != domain.MissionScheduled || m.StartTime == nil {
		return false, nil
	}
	now := e.now().UTC()
	start, err := time.Parse(time.RFC3339, *m.StartTime)
	if err != nil || start.After(now) {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.PromoteScheduledTx(ctx, tx, m.ID, now.Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	if !ok {
		// Someone else promoted it first; the fresh read will see recruiting.
		return true, tx.Rollback()
	}
	if err := e.Events.Append(ctx, tx, "mission.recruiting", m.ArenaID, "mission", m.ID, "", events.EventPayload{"from": domain.MissionScheduled}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListMissions promotes any due scheduled missions, then lists.
func (e Engine) ListMissions(ctx context.Context, f repo.MissionFilters) ([]domain.Mission, error) {
	due, err := e.Repo.DueScheduledMissions(ctx, f.ArenaID, e.now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	for _, m := range due {
		if _, err := e.maybePromote(ctx, m); err != nil {
			return nil, err
		}
	}
	return e.Repo.ListMissions(ctx, f)
}

// OpenRecruiting moves a draft or scheduled mission into recruiting by hand.
func (e Engine) OpenRecruiting(ctx context.Context, missionID, actorID string) (domain.Mission, error) {
	return e.transition(ctx, missionID, domain.MissionRecruiting, actorID)
}

func (e Engine) transition(ctx context.Context, missionID, target, actorID string) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if m.Status == target {
		return m, nil
	}
	if err := ensureMissionTransition(m.Status, target); err != nil {
		return domain.Mission{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetMissionStatusTx(ctx, tx, m.ID, target, now); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, "mission."+target, m.ArenaID, "mission", m.ID, actorID, events.EventPayload{"from": m.Status}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	m.Status = target
	m.UpdatedAt = now
	return m, nil
}

// StartMission moves a recruiting mission to active and starts its clock.
func (e Engine) StartMission(ctx context.Context, missionID, actorID string) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if err := ensureMissionTransition(m.Status, domain.MissionActive); err != nil {
		return domain.Mission{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.StartMissionTx(ctx, tx, m.ID, now, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if !ok {
		return domain.Mission{}, fmt.Errorf("invalid mission transition %s -> %s", m.Status, domain.MissionActive)
	}
	if err := e.Events.Append(ctx, tx, "mission.started", m.ArenaID, "mission", m.ID, actorID, events.EventPayload{
		"start_time": now, "time_limit_minutes": m.TimeLimitMinutes,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	m.Status = domain.MissionActive
	m.StartTime = &now
	m.UpdatedAt = now
	return m, nil
}

// JoinMission places a player on a roster while the mission is
// recruiting. Without a preference the emptier team gets the player,
// alpha on ties. Joining again is a no-op returning the current seat.
func (e Engine) JoinMission(ctx context.Context, missionID, playerID, teamPref string) (domain.Member, string, error) {
	if playerID == "" {
		return domain.Member{}, "", errors.New("player_id required")
	}
	if teamPref != "" && !domain.ValidTeamName(teamPref) {
		return domain.Member{}, "", fmt.Errorf("unknown team %s", teamPref)
	}
	m, err := e.GetMission(ctx, missionID)
	if err != nil {
		return domain.Member{}, "", err
	}
	if m.Status != domain.MissionRecruiting {
		return domain.Member{}, "", fmt.Errorf("mission %s is not recruiting", missionID)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsurePlayer(ctx, playerID, "", now); err != nil {
		return domain.Member{}, "", err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, "", err
	}
	defer tx.Rollback()

	if _, teamName, ok, err := e.Access.TeamOf(ctx, tx, missionID, playerID); err != nil {
		return domain.Member{}, "", err
	} else if ok {
		team, err := e.Repo.GetTeamByNameTx(ctx, tx, missionID, teamName)
		if err != nil {
			return domain.Member{}, "", err
		}
		member, err := memberTx(ctx, tx, team.ID, playerID)
		return member, teamName, err
	}

	alpha, err := e.Repo.GetTeamByNameTx(ctx, tx, missionID, domain.TeamAlpha)
	if err != nil {
		return domain.Member{}, "", err
	}
	beta, err := e.Repo.GetTeamByNameTx(ctx, tx, missionID, domain.TeamBeta)
	if err != nil {
		return domain.Member{}, "", err
	}
	alphaCount, err := e.Repo.CountMembersTx(ctx, tx, alpha.ID)
	if err != nil {
		return domain.Member{}, "", err
	}
	betaCount, err := e.Repo.CountMembersTx(ctx, tx, beta.ID)
	if err != nil {
		return domain.Member{}, "", err
	}

	var target domain.Team
	var count int
	switch teamPref {
	case domain.TeamAlpha:
		target, count = alpha, alphaCount
	case domain.TeamBeta:
		target, count = beta, betaCount
	default:
		if betaCount < alphaCount {
			target, count = beta, betaCount
		} else {
			target, count = alpha, alphaCount
		}
	}
	if count >= m.CapacityPerTeam {
		if teamPref != "" {
			return domain.Member{}, "", fmt.Errorf("team %s is full", target.Name)
		}
		return domain.Member{}, "", fmt.Errorf("mission %s is full", missionID)
	}
	member := domain.Member{TeamID: target.ID, PlayerID: playerID, JoinedAt: now}
	if err := e.Repo.InsertMemberTx(ctx, tx, member); err != nil {
		return domain.Member{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "team.joined", m.ArenaID, "team", target.ID, playerID, events.EventPayload{
		"mission_id": m.ID, "team": target.Name,
	}); err != nil {
		return domain.Member{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, "", err
	}
	return member, target.Name, nil
}

func memberTx(ctx context.Context, tx *sql.Tx, teamID, playerID string) (domain.Member, error) {
	var m domain.Member
	var role sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT team_id,player_id,role,joined_at FROM members WHERE team_id=? AND player_id=?`, teamID, playerID).
		Scan(&m.TeamID, &m.PlayerID, &role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return m, repo.ErrNotFound
	}
	if role.Valid {
		m.Role = &role.String
	}
	return m, err
}

// ClaimLeadership gives the player their team's leader seat if nobody
// holds it yet. The first claim wins; later claims conflict.
func (e Engine) ClaimLeadership(ctx context.Context, missionID, playerID string) (domain.Team, error) {
	m, err := e.GetMission(ctx, missionID)
	if err != nil {
		return domain.Team{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()
	teamID, teamName, ok, err := e.Access.TeamOf(ctx, tx, missionID, playerID)
	if err != nil {
		return domain.Team{}, err
	}
	if !ok {
		return domain.Team{}, access.ForbiddenError{Action: "claim leadership of a team you are not on"}
	}
	won, err := e.Repo.ClaimLeadershipTx(ctx, tx, teamID, playerID)
	if err != nil {
		return domain.Team{}, err
	}
	if !won {
		team, err := e.Repo.GetTeamByNameTx(ctx, tx, missionID, teamName)
		if err != nil {
			return domain.Team{}, err
		}
		if team.LeaderID != nil && *team.LeaderID == playerID {
			return team, nil
		}
		return domain.Team{}, fmt.Errorf("leadership of team %s already claimed", teamName)
	}
	if err := e.Events.Append(ctx, tx, "team.leader", m.ArenaID, "team", teamID, playerID, events.EventPayload{
		"mission_id": missionID, "team": teamName,
	}); err != nil {
		return domain.Team{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Team{}, err
	}
	return e.Repo.GetTeam(ctx, teamID)
}

// AssignRole lets a team leader hand a battle role to a teammate. A
// role held by someone else moves: the previous holder drops back to
// unassigned in the same transaction.
func (e Engine) AssignRole(ctx context.Context, missionID, leaderID, playerID, role string) (domain.Member, error) {
	if !domain.ValidRole(role) {
		return domain.Member{}, fmt.Errorf("unknown role %s", role)
	}
	m, err := e.GetMission(ctx, missionID)
	if err != nil {
		return domain.Member{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	teamID, teamName, ok, err := e.Access.TeamOf(ctx, tx, missionID, leaderID)
	if err != nil {
		return domain.Member{}, err
	}
	if !ok {
		return domain.Member{}, access.ForbiddenError{Action: "assign roles on a team you are not on"}
	}
	isLeader, err := e.Access.IsLeader(ctx, tx, teamID, leaderID)
	if err != nil {
		return domain.Member{}, err
	}
	if !isLeader {
		return domain.Member{}, access.ForbiddenError{Action: "assign roles without team leadership"}
	}
	if _, err := memberTx(ctx, tx, teamID, playerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Member{}, fmt.Errorf("player %s is not on team %s", playerID, teamName)
		}
		return domain.Member{}, err
	}
	if err := e.Repo.AssignRoleTx(ctx, tx, teamID, playerID, role); err != nil {
		return domain.Member{}, err
	}
	if err := e.Events.Append(ctx, tx, "team.role.assigned", m.ArenaID, "team", teamID, leaderID, events.EventPayload{
		"mission_id": missionID, "team": teamName, "player_id": playerID, "role": role,
	}); err != nil {
		return domain.Member{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	return e.Repo.GetMember(ctx, teamID, playerID)
}

// UpdateDraftSection writes one dossier section of the team's working
// draft. Only the holder of the section's role, or the team leader, may
// edit it, and only while the mission clock is running.
func (e Engine) UpdateDraftSection(ctx context.Context, missionID, playerID, section string, content json.RawMessage) (domain.Draft, error) {
	roleForSection := ""
	for role, s := range domain.RoleSections() {
		if s == section {
			roleForSection = role
		}
	}
	if roleForSection == "" {
		return domain.Draft{}, fmt.Errorf("unknown section %s", section)
	}
	if len(content) == 0 || !json.Valid(content) {
		return domain.Draft{}, errors.New("section content must be valid JSON")
	}
	m, err := e.GetMission(ctx, missionID)
	if err != nil {
		return domain.Draft{}, err
	}
	if m.Status != domain.MissionActive {
		return domain.Draft{}, fmt.Errorf("mission %s is not active", missionID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Draft{}, err
	}
	defer tx.Rollback()
	teamID, teamName, ok, err := e.Access.TeamOf(ctx, tx, missionID, playerID)
	if err != nil {
		return domain.Draft{}, err
	}
	if !ok {
		return domain.Draft{}, access.ForbiddenError{Action: "edit a dossier for a mission you are not on"}
	}
	allowed, err := e.Access.CanEditSection(ctx, tx, teamID, playerID, roleForSection)
	if err != nil {
		return domain.Draft{}, err
	}
	if !allowed {
		return domain.Draft{}, access.ForbiddenSectionError{Section: section}
	}
	dossier := map[string]json.RawMessage{}
	draft, err := e.Repo.GetDraftTx(ctx, tx, missionID, teamName)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Draft{}, err
	}
	if err == nil && draft.DossierJSON != "" {
		if err := json.Unmarshal([]byte(draft.DossierJSON), &dossier); err != nil {
			return domain.Draft{}, fmt.Errorf("decode draft: %w", err)
		}
	}
	dossier[section] = content
	payload, err := json.Marshal(dossier)
	if err != nil {
		return domain.Draft{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	out := domain.Draft{MissionID: missionID, TeamName: teamName, DossierJSON: string(payload), UpdatedAt: now}
	if err := e.Repo.UpsertDraftTx(ctx, tx, out); err != nil {
		return domain.Draft{}, err
	}
	if err := e.Events.Append(ctx, tx, "draft.updated", m.ArenaID, "mission", missionID, playerID, events.EventPayload{
		"team": teamName, "section": section,
	}); err != nil {
		return domain.Draft{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Draft{}, err
	}
	return out, nil
}

// SubmitReport turns the team's draft into its submitted dossier. Only
// the team leader submits. Resubmitting replaces the content but never
// moves the original submission timestamp; once both teams are in, the
// mission enters evaluation.
func (e Engine) SubmitReport(ctx context.Context, missionID, playerID string, dossier json.RawMessage) (domain.Report, error) {
	m, err := e.GetMission(ctx, missionID)
	if err != nil {
		return domain.Report{}, err
	}
	if m.Status != domain.MissionActive {
		return domain.Report{}, fmt.Errorf("mission %s is not active", missionID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()
	teamID, teamName, ok, err := e.Access.TeamOf(ctx, tx, missionID, playerID)
	if err != nil {
		return domain.Report{}, err
	}
	if !ok {
		return domain.Report{}, access.ForbiddenError{Action: "submit a report for a mission you are not on"}
	}
	isLeader, err := e.Access.IsLeader(ctx, tx, teamID, playerID)
	if err != nil {
		return domain.Report{}, err
	}
	if !isLeader {
		return domain.Report{}, access.ForbiddenError{Action: "submit a report without team leadership"}
	}
	if len(dossier) == 0 {
		draft, err := e.Repo.GetDraftTx(ctx, tx, missionID, teamName)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.Report{}, err
		}
		if draft.DossierJSON != "" {
			dossier = json.RawMessage(draft.DossierJSON)
		} else {
			dossier = json.RawMessage("{}")
		}
	}
	if !json.Valid(dossier) {
		return domain.Report{}, errors.New("dossier must be valid JSON")
	}
	rep, err := e.submitReportTx(ctx, tx, m, teamID, teamName, playerID, string(dossier), false)
	if err != nil {
		return domain.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

// submitReportTx stores a report and, when the opposing team has already
// submitted, ends the mission's active phase. Forced submissions skip
// the leadership gate; the sweeper uses them at the deadline.
func (e Engine) submitReportTx(ctx context.Context, tx *sql.Tx, m domain.Mission, teamID, teamName, actorID, dossierJSON string, forced bool) (domain.Report, error) {
	now := e.now().UTC().Format(time.RFC3339)
	rep := domain.Report{
		MissionID:   m.ID,
		TeamName:    teamName,
		DossierJSON: dossierJSON,
		Forced:      forced,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, err := e.Repo.GetReportTx(ctx, tx, m.ID, teamName); err == nil {
		rep.CreatedAt = existing.CreatedAt
		rep.Forced = existing.Forced || forced
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Report{}, err
	}
	if err := e.Repo.UpsertReportTx(ctx, tx, rep); err != nil {
		return domain.Report{}, err
	}
	first, err := e.Repo.MarkTeamSubmittedTx(ctx, tx, teamID, now)
	if err != nil {
		return domain.Report{}, err
	}
	evtType := "report.submitted"
	if forced {
		evtType = "report.forced"
	}
	if first {
		if err := e.Events.Append(ctx, tx, evtType, m.ArenaID, "mission", m.ID, actorID, events.EventPayload{
			"team": teamName, "forced": forced,
		}); err != nil {
			return domain.Report{}, err
		}
	}
	other := domain.TeamAlpha
	if teamName == domain.TeamAlpha {
		other = domain.TeamBeta
	}
	otherTeam, err := e.Repo.GetTeamByNameTx(ctx, tx, m.ID, other)
	if err != nil {
		return domain.Report{}, err
	}
	if otherTeam.SubmittedAt != nil && m.Status == domain.MissionActive {
		if err := e.Repo.SetMissionStatusTx(ctx, tx, m.ID, domain.MissionEvaluation, now); err != nil {
			return domain.Report{}, err
		}
		if err := e.Events.Append(ctx, tx, "mission.evaluation", m.ArenaID, "mission", m.ID, actorID, events.EventPayload{
			"from": domain.MissionActive,
		}); err != nil {
			return domain.Report{}, err
		}
	}
	return rep, nil
}

// Sweep advances time-driven state: it opens recruiting for due
// scheduled missions and force-submits drafts for teams that blew the
// deadline of an active mission.
func (e Engine) Sweep(ctx context.Context, arenaID string) error {
	now := e.now().UTC()
	due, err := e.Repo.DueScheduledMissions(ctx, arenaID, now.Format(time.RFC3339))
	if err != nil {
		return err
	}
	for _, m := range due {
		if _, err := e.maybePromote(ctx, m); err != nil {
			return err
		}
	}
	active, err := e.Repo.ActiveMissions(ctx, arenaID)
	if err != nil {
		return err
	}
	for _, m := range active {
		if _, err := e.maybeExpire(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// maybeExpire force-submits both teams of an active mission whose time
// limit has run out.
func (e Engine) maybeExpire(ctx context.Context, m domain.Mission) (bool, error) {
	if m.Status != domain.MissionActive || m.StartTime == nil {
		return false, nil
	}
	start, err := time.Parse(time.RFC3339, *m.StartTime)
	if err != nil {
		return false, nil
	}
	deadline := start.Add(time.Duration(m.TimeLimitMinutes) * time.Minute)
	if e.now().UTC().Before(deadline) {
		return false, nil
	}
	return true, e.forceSubmit(ctx, m)
}

func (e Engine) forceSubmit(ctx context.Context, m domain.Mission) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	fresh, err := e.Repo.GetMissionTx(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	if fresh.Status != domain.MissionActive {
		return nil
	}
	for _, name := range []string{domain.TeamAlpha, domain.TeamBeta} {
		team, err := e.Repo.GetTeamByNameTx(ctx, tx, m.ID, name)
		if err != nil {
			return err
		}
		if team.SubmittedAt != nil {
			continue
		}
		dossier := "{}"
		draft, err := e.Repo.GetDraftTx(ctx, tx, m.ID, name)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if draft.DossierJSON != "" {
			dossier = draft.DossierJSON
		}
		if _, err := e.submitReportTx(ctx, tx, fresh, team.ID, name, "", dossier, true); err != nil {
			return err
		}
		// Later iterations see the submission we just made.
		fresh, err = e.Repo.GetMissionTx(ctx, tx, m.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
