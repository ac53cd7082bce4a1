package domain

type Arena struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Mission struct {
	ID               string   `json:"id"`
	ArenaID          string   `json:"arena_id"`
	OwnerID          string   `json:"owner_id"`
	Title            string   `json:"title"`
	Subject          string   `json:"subject"`
	CapacityPerTeam  int      `json:"capacity_per_team"`
	TimeLimitMinutes int      `json:"time_limit_minutes"`
	Status           string   `json:"status" enum:"draft,scheduled,recruiting,active,evaluation,completed"`
	StartTime        *string  `json:"start_time,omitempty" format:"date-time"`
	Winner           *string  `json:"winner,omitempty" enum:"alpha,beta,tie"`
	ScoreAlpha       *float64 `json:"score_alpha,omitempty"`
	ScoreBeta        *float64 `json:"score_beta,omitempty"`
	ScoreDetailsJSON *string  `json:"score_details_json,omitempty"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
	UpdatedAt        string   `json:"updated_at" format:"date-time"`
}

type Team struct {
	ID              string   `json:"id"`
	MissionID       string   `json:"mission_id"`
	Name            string   `json:"name" enum:"alpha,beta"`
	LeaderID        *string  `json:"leader_id,omitempty"`
	ReportSubmitted bool     `json:"report_submitted"`
	SubmittedAt     *string  `json:"submitted_at,omitempty" format:"date-time"`
	Members         []Member `json:"members,omitempty"`
}

type Member struct {
	TeamID   string  `json:"team_id"`
	PlayerID string  `json:"player_id"`
	Role     *string `json:"role,omitempty"`
	JoinedAt string  `json:"joined_at" format:"date-time"`
}

type Report struct {
	MissionID   string `json:"mission_id"`
	TeamName    string `json:"team_name" enum:"alpha,beta"`
	DossierJSON string `json:"dossier_json"`
	Forced      bool   `json:"forced"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Draft struct {
	MissionID   string `json:"mission_id"`
	TeamName    string `json:"team_name" enum:"alpha,beta"`
	DossierJSON string `json:"dossier_json"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type PlayerStats struct {
	ArenaID       string `json:"arena_id"`
	PlayerID      string `json:"player_id"`
	TotalMissions int    `json:"total_missions"`
	MissionsWon   int    `json:"missions_won"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ArenaID    string `json:"arena_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	PlayerID  string `json:"player_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Mission lifecycle states in order. Status never regresses.
const (
	MissionDraft      = "draft"
	MissionScheduled  = "scheduled"
	MissionRecruiting = "recruiting"
	MissionActive     = "active"
	MissionEvaluation = "evaluation"
	MissionCompleted  = "completed"
)

const (
	TeamAlpha = "alpha"
	TeamBeta  = "beta"
)

// Dossier sections, in battle order.
const (
	SectionLeadership = "battle1_leadership"
	SectionProducts   = "battle2_products"
	SectionFunding    = "battle3_funding"
	SectionCustomers  = "battle4_customers"
	SectionAlliances  = "battle5_alliances"
)

// Specialization roles, each mapped 1:1 onto a dossier section.
const (
	RoleMarketCommander      = "market_commander"
	RoleArsenalRanger        = "arsenal_ranger"
	RoleCapitalQuartermaster = "capital_quartermaster"
	RoleCustomerAnalyst      = "customer_analyst"
	RoleAllianceBroker       = "alliance_broker"
)

// Sections returns the five dossier sections in battle order.
func Sections() []string {
	return []string{
		SectionLeadership,
		SectionProducts,
		SectionFunding,
		SectionCustomers,
		SectionAlliances,
	}
}

// RoleSections maps each specialization role to the section it edits.
func RoleSections() map[string]string {
	return map[string]string{
		RoleMarketCommander:      SectionLeadership,
		RoleArsenalRanger:        SectionProducts,
		RoleCapitalQuartermaster: SectionFunding,
		RoleCustomerAnalyst:      SectionCustomers,
		RoleAllianceBroker:       SectionAlliances,
	}
}

// ValidRole reports whether role is one of the five specializations.
func ValidRole(role string) bool {
	_, ok := RoleSections()[role]
	return ok
}

// ValidTeamName reports whether name is alpha or beta.
func ValidTeamName(name string) bool {
	return name == TeamAlpha || name == TeamBeta
}

// StatusRank orders lifecycle states; -1 for unknown.
func StatusRank(status string) int {
	switch status {
	case MissionDraft:
		return 0
	case MissionScheduled:
		return 1
	case MissionRecruiting:
		return 2
	case MissionActive:
		return 3
	case MissionEvaluation:
		return 4
	case MissionCompleted:
		return 5
	}
	return -1
}
