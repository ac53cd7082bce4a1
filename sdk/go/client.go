package warroomsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Warroom HTTP API client.
type Client struct {
	BaseURL     string
	ArenaID     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, arenaID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ArenaID: arenaID,
		Timeout: 10 * time.Second,
	}
}

// Mission represents the API mission model (partial).
type Mission struct {
	ID               string  `json:"id"`
	ArenaID          string  `json:"arena_id"`
	Title            string  `json:"title"`
	Subject          string  `json:"subject"`
	Status           string  `json:"status"`
	CapacityPerTeam  int     `json:"capacity_per_team"`
	TimeLimitMinutes int     `json:"time_limit_minutes"`
	StartTime        *string `json:"start_time,omitempty"`
	Winner           *string `json:"winner,omitempty"`
}

// Member is one seat on a mission roster.
type Member struct {
	TeamID   string  `json:"team_id"`
	PlayerID string  `json:"player_id"`
	Role     *string `json:"role,omitempty"`
	JoinedAt string  `json:"joined_at"`
}

// Team is one of the two mission rosters.
type Team struct {
	ID          string   `json:"id"`
	MissionID   string   `json:"mission_id"`
	Name        string   `json:"name"`
	LeaderID    *string  `json:"leader_id,omitempty"`
	SubmittedAt *string  `json:"submitted_at,omitempty"`
	Members     []Member `json:"members"`
}

// Draft is a team's in-progress dossier.
type Draft struct {
	MissionID string          `json:"mission_id"`
	TeamName  string          `json:"team_name"`
	Dossier   json.RawMessage `json:"dossier"`
	UpdatedAt string          `json:"updated_at"`
}

// Report is a submitted dossier.
type Report struct {
	MissionID   string          `json:"mission_id"`
	TeamName    string          `json:"team_name"`
	Dossier     json.RawMessage `json:"dossier"`
	Forced      bool            `json:"forced"`
	SubmittedAt string          `json:"submitted_at"`
}

// TeamScore is one team's scored result.
type TeamScore struct {
	AccuracyScore     float64 `json:"accuracy_score"`
	SourcesScore      float64 `json:"sources_score"`
	PresentationScore float64 `json:"presentation_score"`
	SpeedScore        float64 `json:"speed_score"`
	Total             float64 `json:"total"`
	Reasoning         string  `json:"reasoning,omitempty"`
}

// BattleWinner names which side took one dossier section.
type BattleWinner struct {
	Battle    string `json:"battle"`
	Winner    string `json:"winner"`
	Reasoning string `json:"reasoning,omitempty"`
}

// MissionResult is the recorded verdict for a completed mission.
type MissionResult struct {
	MissionID            string         `json:"mission_id"`
	Winner               string         `json:"winner"`
	Alpha                TeamScore      `json:"alpha"`
	Beta                 TeamScore      `json:"beta"`
	WinningTeamReasoning string         `json:"winning_team_reasoning,omitempty"`
	BattleWinners        []BattleWinner `json:"battle_winners,omitempty"`
	AdjudicatedAt        string         `json:"adjudicated_at"`
}

// PlayerStats is a leaderboard row.
type PlayerStats struct {
	ArenaID       string `json:"arena_id"`
	PlayerID      string `json:"player_id"`
	TotalMissions int    `json:"total_missions"`
	MissionsWon   int    `json:"missions_won"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ArenaID    string         `json:"arena_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateMission creates a mission.
func (c *Client) CreateMission(ctx context.Context, title, subject string) (Mission, error) {
	body := map[string]any{
		"title":   title,
		"subject": subject,
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.arenaPath("missions"), body, &resp)
	return resp, err
}

// GetMission fetches one mission.
func (c *Client) GetMission(ctx context.Context, missionID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, c.missionPath(missionID, ""), nil, &resp)
	return resp, err
}

// OpenRecruiting moves a mission into recruiting.
func (c *Client) OpenRecruiting(ctx context.Context, missionID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "open"), nil, &resp)
	return resp, err
}

// StartMission starts the mission clock.
func (c *Client) StartMission(ctx context.Context, missionID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "start"), nil, &resp)
	return resp, err
}

// JoinMission joins the caller to a mission team. Team is optional.
func (c *Client) JoinMission(ctx context.Context, missionID, team string) (string, Member, error) {
	body := map[string]any{}
	if team != "" {
		body["team"] = team
	}
	var resp struct {
		Team   string `json:"team"`
		Member Member `json:"member"`
	}
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "join"), body, &resp)
	return resp.Team, resp.Member, err
}

// ClaimLeadership claims team leadership for the caller.
func (c *Client) ClaimLeadership(ctx context.Context, missionID string) (Team, error) {
	var resp Team
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "leader"), nil, &resp)
	return resp, err
}

// AssignRole gives a teammate a battle role. Leader only.
func (c *Client) AssignRole(ctx context.Context, missionID, playerID, role string) (Member, error) {
	body := map[string]any{
		"player_id": playerID,
		"role":      role,
	}
	var resp Member
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "roles"), body, &resp)
	return resp, err
}

// UpdateDraft writes one dossier section of the caller's team draft.
func (c *Client) UpdateDraft(ctx context.Context, missionID, section string, content any) (Draft, error) {
	body := map[string]any{
		"section": section,
		"content": content,
	}
	var resp Draft
	err := c.do(ctx, http.MethodPut, c.missionPath(missionID, "draft"), body, &resp)
	return resp, err
}

// SubmitReport submits the caller's team dossier. A nil dossier submits the draft.
func (c *Client) SubmitReport(ctx context.Context, missionID string, dossier any) (Report, error) {
	body := map[string]any{}
	if dossier != nil {
		body["dossier"] = dossier
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "report"), body, &resp)
	return resp, err
}

// FinalizeMission triggers adjudication and returns the verdict.
func (c *Client) FinalizeMission(ctx context.Context, missionID string) (MissionResult, error) {
	var resp MissionResult
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "finalize"), nil, &resp)
	return resp, err
}

// Result fetches the stored verdict.
func (c *Client) Result(ctx context.Context, missionID string) (MissionResult, error) {
	var resp MissionResult
	err := c.do(ctx, http.MethodGet, c.missionPath(missionID, "result"), nil, &resp)
	return resp, err
}

// WaitForResult polls Result every five seconds until a verdict exists
// or the context ends. A 404 means no verdict yet.
func (c *Client) WaitForResult(ctx context.Context, missionID string) (MissionResult, error) {
	for {
		result, err := c.Result(ctx, missionID)
		if err == nil {
			return result, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			return MissionResult{}, err
		}
		select {
		case <-ctx.Done():
			return MissionResult{}, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// Stats returns the arena leaderboard.
func (c *Client) Stats(ctx context.Context) ([]PlayerStats, error) {
	var resp struct {
		Items []PlayerStats `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.arenaPath("stats"), nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.arenaPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) missionPath(missionID, action string) string {
	p := fmt.Sprintf("missions/%s", url.PathEscape(missionID))
	if action != "" {
		p += "/" + action
	}
	return c.arenaPath(p)
}

func (c *Client) arenaPath(p string) string {
	arena := url.PathEscape(c.ArenaID)
	return fmt.Sprintf("v0/arenas/%s/%s", arena, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
