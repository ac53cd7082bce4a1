package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"warroom/internal/adjudicator"
	"warroom/internal/config"
	"warroom/internal/db"
	"warroom/internal/engine"
	"warroom/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type stubAdjudicator struct {
	verdict adjudicator.Verdict
	err     error
}

func (s *stubAdjudicator) Adjudicate(ctx context.Context, req adjudicator.Request) (adjudicator.Verdict, error) {
	return s.verdict, s.err
}

func newTestServer(t *testing.T, mods ...func(*engine.Engine)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("test-arena")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitArena(context.Background(), "test-arena", "", "tester"); err != nil {
		t.Fatalf("init arena: %v", err)
	}
	for _, mod := range mods {
		mod(&e)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:               "test-secret",
			AllowLegacyPlayerHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asPlayer(id string) map[string]string {
	return map[string]string{"X-Player-Id": id}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v: %s", err, string(data))
	}
	return envelope.Error.Code
}

func TestHealthSkipsAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/arenas/test-arena", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("error code: %s", code)
	}
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"player_id": "p1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("decode token: %v %s", err, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatal(err)
	}
	if who.PlayerID != "p1" || who.Source != "jwt" {
		t.Fatalf("whoami: %+v", who)
	}
	// A garbage token is rejected.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
}

func TestFullMissionFlow(t *testing.T) {
	stub := &stubAdjudicator{verdict: adjudicator.Verdict{
		Alpha: adjudicator.TeamScore{AccuracyScore: 55, SourcesScore: 12, PresentationScore: 13},
		Beta:  adjudicator.TeamScore{AccuracyScore: 30, SourcesScore: 8, PresentationScore: 9},
	}}
	srv, cleanup := newTestServer(t, func(e *engine.Engine) {
		e.Adjudicator = stub
	})
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/arenas/test-arena"

	res, data := doJSON(t, client, http.MethodPost, base+"/missions", map[string]any{
		"title":   "Operation Test",
		"subject": "Acme Corp",
	}, asPlayer("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission: %d %s", res.StatusCode, string(data))
	}
	var mission MissionResponse
	if err := json.Unmarshal(data, &mission); err != nil {
		t.Fatal(err)
	}
	missionURL := base + "/missions/" + mission.ID

	res, data = doJSON(t, client, http.MethodPost, missionURL+"/open", nil, asPlayer("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("open: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, missionURL+"/join", map[string]any{"team": "alpha"}, asPlayer("p-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join alpha: %d %s", res.StatusCode, string(data))
	}
	var joined JoinMissionResponse
	if err := json.Unmarshal(data, &joined); err != nil || joined.Team != "alpha" {
		t.Fatalf("join response: %v %s", err, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, missionURL+"/join", map[string]any{"team": "beta"}, asPlayer("p-b"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join beta: %d %s", res.StatusCode, string(data))
	}

	for _, p := range []string{"p-a", "p-b"} {
		res, data = doJSON(t, client, http.MethodPost, missionURL+"/leader", nil, asPlayer(p))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("leader %s: %d %s", p, res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, client, http.MethodPost, missionURL+"/start", nil, asPlayer("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, missionURL+"/draft", map[string]any{
		"section": "battle1_leadership",
		"content": map[string]any{"summary": "strong"},
	}, asPlayer("p-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("draft: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, missionURL+"/draft", nil, asPlayer("p-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get draft: %d %s", res.StatusCode, string(data))
	}
	var draft DraftResponse
	if err := json.Unmarshal(data, &draft); err != nil || draft.TeamName != "alpha" {
		t.Fatalf("draft response: %v %s", err, string(data))
	}

	// Alpha submits its draft; beta submits an explicit dossier.
	res, data = doJSON(t, client, http.MethodPost, missionURL+"/report", map[string]any{}, asPlayer("p-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("alpha report: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, missionURL+"/report", map[string]any{
		"dossier": map[string]any{"battle1_leadership": map[string]any{"summary": "weak"}},
	}, asPlayer("p-b"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("beta report: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, missionURL, nil, asPlayer("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get mission: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &mission); err != nil || mission.Status != "evaluation" {
		t.Fatalf("expected evaluation: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, missionURL+"/finalize", nil, asPlayer("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finalize: %d %s", res.StatusCode, string(data))
	}
	var result engine.MissionResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if result.Winner != "alpha" {
		t.Fatalf("winner: %s", result.Winner)
	}

	res, data = doJSON(t, client, http.MethodGet, missionURL+"/result", nil, asPlayer("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("result: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/stats/p-a", nil, asPlayer("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", res.StatusCode, string(data))
	}
	var stats PlayerStatsResponse
	if err := json.Unmarshal(data, &stats); err != nil || stats.MissionsWon != 1 || stats.TotalMissions != 1 {
		t.Fatalf("stats response: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?limit=50", nil, asPlayer("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var events paginatedEvents
	if err := json.Unmarshal(data, &events); err != nil || len(events.Items) == 0 {
		t.Fatalf("events response: %v %s", err, string(data))
	}
}

func TestJoinBeforeRecruitingConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/arenas/test-arena"
	res, data := doJSON(t, client, http.MethodPost, base+"/missions", map[string]any{
		"title":   "Operation Closed",
		"subject": "Acme Corp",
	}, asPlayer("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var mission MissionResponse
	_ = json.Unmarshal(data, &mission)
	res, data = doJSON(t, client, http.MethodPost, base+"/missions/"+mission.ID+"/join", map[string]any{}, asPlayer("p1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("error code: %s", code)
	}
}

func TestLeadershipConflictAndForbiddenRole(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/arenas/test-arena"
	res, data := doJSON(t, client, http.MethodPost, base+"/missions", map[string]any{
		"title":   "Operation Crowded",
		"subject": "Acme Corp",
	}, asPlayer("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var mission MissionResponse
	_ = json.Unmarshal(data, &mission)
	missionURL := base + "/missions/" + mission.ID
	if res, data := doJSON(t, client, http.MethodPost, missionURL+"/open", nil, asPlayer("owner")); res.StatusCode != http.StatusOK {
		t.Fatalf("open: %d %s", res.StatusCode, string(data))
	}
	for _, p := range []string{"p1", "p2"} {
		if res, data := doJSON(t, client, http.MethodPost, missionURL+"/join", map[string]any{"team": "alpha"}, asPlayer(p)); res.StatusCode != http.StatusOK {
			t.Fatalf("join %s: %d %s", p, res.StatusCode, string(data))
		}
	}
	if res, data := doJSON(t, client, http.MethodPost, missionURL+"/leader", nil, asPlayer("p1")); res.StatusCode != http.StatusOK {
		t.Fatalf("first claim: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, missionURL+"/leader", nil, asPlayer("p2"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second claim, got %d %s", res.StatusCode, string(data))
	}
	// Role assignment needs leadership.
	res, data = doJSON(t, client, http.MethodPost, missionURL+"/roles", map[string]any{
		"player_id": "p1",
		"role":      "market_commander",
	}, asPlayer("p2"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("error code: %s", code)
	}
}

func TestMissionNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/arenas/test-arena/missions/nope", nil, asPlayer("p1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("error code: %s", code)
	}
}

func TestResultBeforeFinalizeIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/arenas/test-arena"
	res, data := doJSON(t, client, http.MethodPost, base+"/missions", map[string]any{
		"title":   "Operation Pending",
		"subject": "Acme Corp",
	}, asPlayer("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var mission MissionResponse
	_ = json.Unmarshal(data, &mission)
	res, data = doJSON(t, client, http.MethodGet, base+"/missions/"+mission.ID+"/result", nil, asPlayer("owner"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "no_result" {
		t.Fatalf("error code: %s", code)
	}
}
