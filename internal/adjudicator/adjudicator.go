// Package adjudicator talks to the external scoring service that
// compares the two teams' dossiers and returns per-category verdicts.
package adjudicator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Timing carries the wall-clock inputs the service echoes back in its
// reasoning. Elapsed minutes are computed by the caller.
type Timing struct {
	StartTime           string  `json:"start_time"`
	TimeLimitMinutes    int     `json:"time_limit_minutes"`
	AlphaSubmittedAt    string  `json:"alpha_submitted_at"`
	BetaSubmittedAt     string  `json:"beta_submitted_at"`
	AlphaElapsedMinutes float64 `json:"alpha_elapsed_minutes"`
	BetaElapsedMinutes  float64 `json:"beta_elapsed_minutes"`
}

type Request struct {
	MissionID   string          `json:"mission_id"`
	Title       string          `json:"title"`
	Subject     string          `json:"subject"`
	ReportAlpha json.RawMessage `json:"report_alpha"`
	ReportBeta  json.RawMessage `json:"report_beta"`
	Timing      Timing          `json:"timing"`
}

// TeamScore holds the raw per-category marks for one team, before any
// clamping or weighting the caller applies.
type TeamScore struct {
	AccuracyScore     float64 `json:"accuracy_score"`
	SourcesScore      float64 `json:"sources_score"`
	PresentationScore float64 `json:"presentation_score"`
	SpeedScore        float64 `json:"speed_score"`
	Reasoning         string  `json:"reasoning"`
}

type BattleWinner struct {
	Battle    string `json:"battle"`
	Winner    string `json:"winner"`
	Reasoning string `json:"reasoning"`
}

type Verdict struct {
	Alpha                TeamScore      `json:"alpha"`
	Beta                 TeamScore      `json:"beta"`
	WinningTeamReasoning string         `json:"winning_team_reasoning"`
	BattleWinners        []BattleWinner `json:"battle_winners"`
}

// Client produces a verdict for a finished mission.
type Client interface {
	Adjudicate(ctx context.Context, req Request) (Verdict, error)
}

type HTTPClient struct {
	URL     string
	Timeout time.Duration
	client  *http.Client
}

func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{URL: url, Timeout: timeout, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Adjudicate(ctx context.Context, req Request) (Verdict, error) {
	var verdict Verdict
	if strings.TrimSpace(c.URL) == "" {
		return verdict, fmt.Errorf("adjudicator url not configured")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return verdict, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return verdict, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return verdict, fmt.Errorf("adjudicator request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return verdict, fmt.Errorf("adjudicator response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return verdict, fmt.Errorf("adjudicator status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, &verdict); err != nil {
		return verdict, fmt.Errorf("adjudicator decode: %w", err)
	}
	if len(verdict.BattleWinners) > 0 {
		for _, bw := range verdict.BattleWinners {
			switch bw.Winner {
			case "alpha", "beta", "tie":
			default:
				return verdict, fmt.Errorf("adjudicator decode: unknown battle winner %q", bw.Winner)
			}
		}
	}
	return verdict, nil
}
