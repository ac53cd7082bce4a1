package server

import (
	"encoding/json"

	"warroom/internal/config"
	"warroom/internal/domain"
)

// Request payloads

type CreateArenaRequest struct {
	ID          string  `json:"id"`
	Description *string `json:"description,omitempty"`
}

type CreateMissionRequest struct {
	ID               *string `json:"id,omitempty"`
	Title            string  `json:"title"`
	Subject          string  `json:"subject"`
	CapacityPerTeam  *int    `json:"capacity_per_team,omitempty"`
	TimeLimitMinutes *int    `json:"time_limit_minutes,omitempty"`
	StartAt          *string `json:"start_at,omitempty"`
}

type JoinMissionRequest struct {
	Team *string `json:"team,omitempty" enum:"alpha,beta"`
}

type AssignRoleRequest struct {
	PlayerID string `json:"player_id"`
	Role     string `json:"role" enum:"market_commander,arsenal_ranger,capital_quartermaster,customer_analyst,alliance_broker"`
}

type UpdateDraftRequest struct {
	Section string          `json:"section" enum:"battle1_leadership,battle2_products,battle3_funding,battle4_customers,battle5_alliances"`
	Content json.RawMessage `json:"content"`
}

type SubmitReportRequest struct {
	Dossier json.RawMessage `json:"dossier,omitempty"`
}

type DevLoginRequest struct {
	PlayerID string `json:"player_id"`
}

// Response payloads

type ArenaResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ArenaConfigResponse struct {
	ArenaID          string                       `json:"arena_id"`
	CapacityPerTeam  int                          `json:"capacity_per_team"`
	TimeLimitMinutes int                          `json:"time_limit_minutes"`
	Roles            map[string]config.RoleConfig `json:"roles"`
	Targets          []config.TargetConfig        `json:"targets,omitempty"`
}

type MissionResponse struct {
	ID               string   `json:"id"`
	ArenaID          string   `json:"arena_id"`
	OwnerID          string   `json:"owner_id,omitempty"`
	Title            string   `json:"title"`
	Subject          string   `json:"subject"`
	CapacityPerTeam  int      `json:"capacity_per_team"`
	TimeLimitMinutes int      `json:"time_limit_minutes"`
	Status           string   `json:"status"`
	StartTime        *string  `json:"start_time,omitempty"`
	Winner           *string  `json:"winner,omitempty"`
	ScoreAlpha       *float64 `json:"score_alpha,omitempty"`
	ScoreBeta        *float64 `json:"score_beta,omitempty"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

type MemberResponse struct {
	PlayerID string  `json:"player_id"`
	Role     *string `json:"role,omitempty"`
	JoinedAt string  `json:"joined_at"`
}

type TeamResponse struct {
	ID              string           `json:"id"`
	MissionID       string           `json:"mission_id"`
	Name            string           `json:"name"`
	LeaderID        *string          `json:"leader_id,omitempty"`
	ReportSubmitted bool             `json:"report_submitted"`
	SubmittedAt     *string          `json:"submitted_at,omitempty"`
	Members         []MemberResponse `json:"members"`
}

type JoinMissionResponse struct {
	Team   string         `json:"team"`
	Member MemberResponse `json:"member"`
}

type DraftResponse struct {
	MissionID string          `json:"mission_id"`
	TeamName  string          `json:"team"`
	Dossier   json.RawMessage `json:"dossier"`
	UpdatedAt string          `json:"updated_at"`
}

type ReportResponse struct {
	MissionID string          `json:"mission_id"`
	TeamName  string          `json:"team"`
	Dossier   json.RawMessage `json:"dossier"`
	Forced    bool            `json:"forced"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type PlayerStatsResponse struct {
	ArenaID       string `json:"arena_id"`
	PlayerID      string `json:"player_id"`
	TotalMissions int    `json:"total_missions"`
	MissionsWon   int    `json:"missions_won"`
	UpdatedAt     string `json:"updated_at"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	ArenaID    string          `json:"arena_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type paginatedMissions struct {
	Items      []MissionResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	PlayerID string `json:"player_id"`
	Source   string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Conversions

func arenaResponse(a domain.Arena) ArenaResponse {
	return ArenaResponse{ID: a.ID, Status: a.Status, Description: a.Description, CreatedAt: a.CreatedAt}
}

func mapArenas(items []domain.Arena) []ArenaResponse {
	res := make([]ArenaResponse, 0, len(items))
	for _, a := range items {
		res = append(res, arenaResponse(a))
	}
	return res
}

func configResponse(cfg *config.Config) ArenaConfigResponse {
	out := ArenaConfigResponse{}
	if cfg == nil {
		return out
	}
	out.ArenaID = cfg.Arena.ID
	out.CapacityPerTeam = cfg.Game.CapacityPerTeam
	out.TimeLimitMinutes = cfg.Game.TimeLimitMinutes
	out.Roles = cfg.Game.Roles
	out.Targets = cfg.Game.Targets
	return out
}

func missionResponse(m domain.Mission) MissionResponse {
	return MissionResponse{
		ID:               m.ID,
		ArenaID:          m.ArenaID,
		OwnerID:          m.OwnerID,
		Title:            m.Title,
		Subject:          m.Subject,
		CapacityPerTeam:  m.CapacityPerTeam,
		TimeLimitMinutes: m.TimeLimitMinutes,
		Status:           m.Status,
		StartTime:        m.StartTime,
		Winner:           m.Winner,
		ScoreAlpha:       m.ScoreAlpha,
		ScoreBeta:        m.ScoreBeta,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func mapMissions(items []domain.Mission) []MissionResponse {
	res := make([]MissionResponse, 0, len(items))
	for _, m := range items {
		res = append(res, missionResponse(m))
	}
	return res
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse{PlayerID: m.PlayerID, Role: m.Role, JoinedAt: m.JoinedAt}
}

func teamResponse(t domain.Team) TeamResponse {
	out := TeamResponse{
		ID:              t.ID,
		MissionID:       t.MissionID,
		Name:            t.Name,
		LeaderID:        t.LeaderID,
		ReportSubmitted: t.ReportSubmitted,
		SubmittedAt:     t.SubmittedAt,
		Members:         []MemberResponse{},
	}
	for _, m := range t.Members {
		out.Members = append(out.Members, memberResponse(m))
	}
	return out
}

func mapTeams(items []domain.Team) []TeamResponse {
	res := make([]TeamResponse, 0, len(items))
	for _, t := range items {
		res = append(res, teamResponse(t))
	}
	return res
}

func reportResponse(r domain.Report) ReportResponse {
	return ReportResponse{
		MissionID: r.MissionID,
		TeamName:  r.TeamName,
		Dossier:   json.RawMessage(r.DossierJSON),
		Forced:    r.Forced,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func draftResponse(d domain.Draft) DraftResponse {
	return DraftResponse{
		MissionID: d.MissionID,
		TeamName:  d.TeamName,
		Dossier:   json.RawMessage(d.DossierJSON),
		UpdatedAt: d.UpdatedAt,
	}
}

func statsResponse(s domain.PlayerStats) PlayerStatsResponse {
	return PlayerStatsResponse{
		ArenaID:       s.ArenaID,
		PlayerID:      s.PlayerID,
		TotalMissions: s.TotalMissions,
		MissionsWon:   s.MissionsWon,
		UpdatedAt:     s.UpdatedAt,
	}
}

func mapStats(items []domain.PlayerStats) []PlayerStatsResponse {
	res := make([]PlayerStatsResponse, 0, len(items))
	for _, s := range items {
		res = append(res, statsResponse(s))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	out := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ArenaID:    e.ArenaID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		out.Payload = json.RawMessage(e.Payload)
	}
	return out
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func intOrZero(ptr *int) int {
	if ptr == nil {
		return 0
	}
	return *ptr
}
