package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"warroom/internal/adjudicator"
	"warroom/internal/config"
	"warroom/internal/db"
	"warroom/internal/domain"
	"warroom/internal/engine"
	"warroom/internal/engine/access"
	"warroom/internal/migrate"
	"warroom/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    *time.Time
}

func (env testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test-arena")
	eng := engine.New(conn, cfg)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return now }
	env := testEnv{Engine: eng, Ctx: context.Background(), now: &now}
	if _, err := env.Engine.InitArena(env.Ctx, "test-arena", "test", "tester"); err != nil {
		t.Fatalf("init arena: %v", err)
	}
	return env
}

type stubAdjudicator struct {
	verdict adjudicator.Verdict
	err     error
	calls   int32
	onCall  func()
}

func (s *stubAdjudicator) Adjudicate(ctx context.Context, req adjudicator.Request) (adjudicator.Verdict, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.onCall != nil {
		s.onCall()
	}
	return s.verdict, s.err
}

func createMission(t *testing.T, env testEnv, capacity int) domain.Mission {
	t.Helper()
	m, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
		ArenaID:         "test-arena",
		Title:           "Operation Test",
		Subject:         "Acme Corp",
		CapacityPerTeam: capacity,
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

// setupActiveMission creates a mission with one leader per team and a
// running clock.
func setupActiveMission(t *testing.T, env testEnv) domain.Mission {
	t.Helper()
	m := createMission(t, env, 2)
	if _, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatalf("open: %v", err)
	}
	for player, team := range map[string]string{"p-a": domain.TeamAlpha, "p-b": domain.TeamBeta} {
		if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, player, team); err != nil {
			t.Fatalf("join %s: %v", player, err)
		}
		if _, err := env.Engine.ClaimLeadership(env.Ctx, m.ID, player); err != nil {
			t.Fatalf("leader %s: %v", player, err)
		}
	}
	m, err := env.Engine.StartMission(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return m
}

func TestMissionTransitions(t *testing.T) {
	env := newTestEnv(t)
	m := createMission(t, env, 2)
	if m.Status != domain.MissionDraft {
		t.Fatalf("expected draft, got %s", m.Status)
	}
	// A draft mission cannot start; recruiting comes first.
	if _, err := env.Engine.StartMission(env.Ctx, m.ID, "tester"); err == nil {
		t.Fatalf("expected transition error starting a draft mission")
	}
	m, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester")
	if err != nil || m.Status != domain.MissionRecruiting {
		t.Fatalf("open recruiting: %v status=%s", err, m.Status)
	}
	// Opening again is a no-op.
	m, err = env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester")
	if err != nil || m.Status != domain.MissionRecruiting {
		t.Fatalf("reopen: %v status=%s", err, m.Status)
	}
	m, err = env.Engine.StartMission(env.Ctx, m.ID, "tester")
	if err != nil || m.Status != domain.MissionActive {
		t.Fatalf("start: %v status=%s", err, m.Status)
	}
	if m.StartTime == nil {
		t.Fatalf("expected start time after activation")
	}
	// Active missions cannot fall back to recruiting.
	if _, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester"); err == nil {
		t.Fatalf("expected transition error reopening an active mission")
	}
}

func TestScheduledMissionPromotesOnRead(t *testing.T) {
	env := newTestEnv(t)
	startAt := env.now.Add(30 * time.Minute).Format(time.RFC3339)
	m, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
		ArenaID: "test-arena",
		Title:   "Operation Later",
		Subject: "Acme Corp",
		StartAt: startAt,
		ActorID: "tester",
	})
	if err != nil || m.Status != domain.MissionScheduled {
		t.Fatalf("create scheduled: %v status=%s", err, m.Status)
	}
	m, err = env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || m.Status != domain.MissionScheduled {
		t.Fatalf("before opening time: %v status=%s", err, m.Status)
	}
	env.advance(31 * time.Minute)
	m, err = env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || m.Status != domain.MissionRecruiting {
		t.Fatalf("after opening time: %v status=%s", err, m.Status)
	}
	missions, err := env.Engine.ListMissions(env.Ctx, repo.MissionFilters{ArenaID: "test-arena", Status: domain.MissionRecruiting})
	if err != nil || len(missions) != 1 {
		t.Fatalf("list recruiting: %v n=%d", err, len(missions))
	}
}

func TestJoinAutoBalanceAndCapacity(t *testing.T) {
	env := newTestEnv(t)
	m := createMission(t, env, 1)
	if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, "p1", ""); err == nil {
		t.Fatalf("expected join rejected before recruiting")
	}
	if _, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	_, team1, err := env.Engine.JoinMission(env.Ctx, m.ID, "p1", "")
	if err != nil || team1 != domain.TeamAlpha {
		t.Fatalf("first join: %v team=%s", err, team1)
	}
	_, team2, err := env.Engine.JoinMission(env.Ctx, m.ID, "p2", "")
	if err != nil || team2 != domain.TeamBeta {
		t.Fatalf("second join should balance to beta: %v team=%s", err, team2)
	}
	if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, "p3", ""); err == nil || !strings.Contains(err.Error(), "is full") {
		t.Fatalf("expected mission full, got %v", err)
	}
	if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, "p3", domain.TeamAlpha); err == nil || !strings.Contains(err.Error(), "team alpha is full") {
		t.Fatalf("expected team alpha full, got %v", err)
	}
	// Joining again is a no-op returning the existing seat.
	member, team, err := env.Engine.JoinMission(env.Ctx, m.ID, "p1", domain.TeamBeta)
	if err != nil || team != domain.TeamAlpha || member.PlayerID != "p1" {
		t.Fatalf("rejoin: %v team=%s", err, team)
	}
}

func TestLeadershipFirstClaimWins(t *testing.T) {
	env := newTestEnv(t)
	m := createMission(t, env, 2)
	if _, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"p1", "p2"} {
		if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, p, domain.TeamAlpha); err != nil {
			t.Fatal(err)
		}
	}
	team, err := env.Engine.ClaimLeadership(env.Ctx, m.ID, "p1")
	if err != nil || team.LeaderID == nil || *team.LeaderID != "p1" {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := env.Engine.ClaimLeadership(env.Ctx, m.ID, "p2"); err == nil || !strings.Contains(err.Error(), "already claimed") {
		t.Fatalf("expected already claimed, got %v", err)
	}
	// The holder re-claiming is a no-op.
	team, err = env.Engine.ClaimLeadership(env.Ctx, m.ID, "p1")
	if err != nil || team.LeaderID == nil || *team.LeaderID != "p1" {
		t.Fatalf("re-claim: %v", err)
	}
	var forbidden access.ForbiddenError
	if _, err := env.Engine.ClaimLeadership(env.Ctx, m.ID, "outsider"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for non-member, got %v", err)
	}
}

func TestAssignRoleMovesHolder(t *testing.T) {
	env := newTestEnv(t)
	m := createMission(t, env, 3)
	if _, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"lead", "p1", "p2"} {
		if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, p, domain.TeamAlpha); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Engine.ClaimLeadership(env.Ctx, m.ID, "lead"); err != nil {
		t.Fatal(err)
	}
	var forbidden access.ForbiddenError
	if _, err := env.Engine.AssignRole(env.Ctx, m.ID, "p1", "p2", "market_commander"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for non-leader, got %v", err)
	}
	member, err := env.Engine.AssignRole(env.Ctx, m.ID, "lead", "p1", "market_commander")
	if err != nil || member.Role == nil || *member.Role != "market_commander" {
		t.Fatalf("assign: %v", err)
	}
	// Reassigning the role displaces the previous holder.
	if _, err := env.Engine.AssignRole(env.Ctx, m.ID, "lead", "p2", "market_commander"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	team, err := env.Engine.Repo.GetTeamByName(env.Ctx, m.ID, domain.TeamAlpha)
	if err != nil {
		t.Fatal(err)
	}
	p1, err := env.Engine.Repo.GetMember(env.Ctx, team.ID, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p1.Role != nil {
		t.Fatalf("expected p1 displaced, still holds %s", *p1.Role)
	}
	if _, err := env.Engine.AssignRole(env.Ctx, m.ID, "lead", "p1", "supreme_overlord"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestDraftSectionAccess(t *testing.T) {
	env := newTestEnv(t)
	m := createMission(t, env, 2)
	if _, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	for player, team := range map[string]string{"lead": domain.TeamAlpha, "p2": domain.TeamAlpha, "p-b": domain.TeamBeta} {
		if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, player, team); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Engine.ClaimLeadership(env.Ctx, m.ID, "lead"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignRole(env.Ctx, m.ID, "lead", "p2", "arsenal_ranger"); err != nil {
		t.Fatal(err)
	}
	content := json.RawMessage(`{"summary":"strong leadership"}`)
	// Drafting only happens on the clock.
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "lead", "battle1_leadership", content); err == nil {
		t.Fatalf("expected draft rejected before active")
	}
	if _, err := env.Engine.StartMission(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	// The leader can edit any section.
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "lead", "battle1_leadership", content); err != nil {
		t.Fatalf("leader edit: %v", err)
	}
	// p2 holds arsenal_ranger, so battle2 is theirs and battle1 is not.
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "p2", "battle2_products", json.RawMessage(`{"summary":"solid"}`)); err != nil {
		t.Fatalf("role holder edit: %v", err)
	}
	var sectionErr access.ForbiddenSectionError
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "p2", "battle1_leadership", content); !errors.As(err, &sectionErr) {
		t.Fatalf("expected forbidden section, got %v", err)
	}
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "lead", "battle9_unknown", content); err == nil {
		t.Fatalf("expected unknown section error")
	}
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "lead", "battle3_funding", json.RawMessage(`not json`)); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
	// Sections accumulate in the team draft.
	d, err := env.Engine.Repo.GetDraft(env.Ctx, m.ID, domain.TeamAlpha)
	if err != nil {
		t.Fatal(err)
	}
	var dossier map[string]json.RawMessage
	if err := json.Unmarshal([]byte(d.DossierJSON), &dossier); err != nil {
		t.Fatal(err)
	}
	if len(dossier) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(dossier))
	}
}

func TestDraftLeaderEditsBothTeamsOwnDraftOnly(t *testing.T) {
	env := newTestEnv(t)
	m := setupActiveMission(t, env)
	content := json.RawMessage(`{"summary":"beta view"}`)
	d, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "p-b", "battle1_leadership", content)
	if err != nil {
		t.Fatalf("beta leader edit: %v", err)
	}
	if d.TeamName != domain.TeamBeta {
		t.Fatalf("expected write on beta draft, got %s", d.TeamName)
	}
	if _, err := env.Engine.Repo.GetDraft(env.Ctx, m.ID, domain.TeamAlpha); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("alpha draft should not exist: %v", err)
	}
}

func TestSubmitKeepsFirstTimestampAndEntersEvaluation(t *testing.T) {
	env := newTestEnv(t)
	m := setupActiveMission(t, env)
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-a", json.RawMessage(`{"battle1_leadership":{}}`)); err != nil {
		t.Fatalf("alpha submit: %v", err)
	}
	alpha, err := env.Engine.Repo.GetTeamByName(env.Ctx, m.ID, domain.TeamAlpha)
	if err != nil || alpha.SubmittedAt == nil {
		t.Fatalf("alpha submitted_at: %v", err)
	}
	firstAt := *alpha.SubmittedAt
	env.advance(5 * time.Minute)
	// Resubmission replaces content but never moves the timestamp.
	rep, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-a", json.RawMessage(`{"battle1_leadership":{"v":2}}`))
	if err != nil {
		t.Fatalf("alpha resubmit: %v", err)
	}
	if !strings.Contains(rep.DossierJSON, `"v":2`) {
		t.Fatalf("resubmission content not stored: %s", rep.DossierJSON)
	}
	alpha, err = env.Engine.Repo.GetTeamByName(env.Ctx, m.ID, domain.TeamAlpha)
	if err != nil || alpha.SubmittedAt == nil || *alpha.SubmittedAt != firstAt {
		t.Fatalf("submitted_at moved: %v", alpha.SubmittedAt)
	}
	got, err := env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != domain.MissionActive {
		t.Fatalf("one submission should not end the mission: %v status=%s", err, got.Status)
	}
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-b", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("beta submit: %v", err)
	}
	got, err = env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != domain.MissionEvaluation {
		t.Fatalf("expected evaluation after both submissions, got %s", got.Status)
	}
	// Submission is closed once evaluation begins.
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-a", nil); err == nil || !strings.Contains(err.Error(), "not active") {
		t.Fatalf("expected not active error, got %v", err)
	}
}

func TestSubmitRequiresLeadership(t *testing.T) {
	env := newTestEnv(t)
	m := createMission(t, env, 2)
	if _, err := env.Engine.OpenRecruiting(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	for player, team := range map[string]string{"lead": domain.TeamAlpha, "p2": domain.TeamAlpha, "p-b": domain.TeamBeta} {
		if _, _, err := env.Engine.JoinMission(env.Ctx, m.ID, player, team); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Engine.ClaimLeadership(env.Ctx, m.ID, "lead"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartMission(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	var forbidden access.ForbiddenError
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p2", json.RawMessage(`{}`)); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for non-leader, got %v", err)
	}
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "outsider", json.RawMessage(`{}`)); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
}

func TestSweepForcesDeadlineSubmissions(t *testing.T) {
	env := newTestEnv(t)
	m := setupActiveMission(t, env)
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "p-a", "battle1_leadership", json.RawMessage(`{"summary":"drafted"}`)); err != nil {
		t.Fatal(err)
	}
	env.advance(30 * time.Minute)
	if err := env.Engine.Sweep(env.Ctx, "test-arena"); err != nil {
		t.Fatalf("sweep before deadline: %v", err)
	}
	got, _ := env.Engine.GetMission(env.Ctx, m.ID)
	if got.Status != domain.MissionActive {
		t.Fatalf("sweep fired early: %s", got.Status)
	}
	env.advance(31 * time.Minute)
	if err := env.Engine.Sweep(env.Ctx, "test-arena"); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, err := env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != domain.MissionEvaluation {
		t.Fatalf("expected evaluation after forced submissions, got %s", got.Status)
	}
	alphaRep, err := env.Engine.Repo.GetReport(env.Ctx, m.ID, domain.TeamAlpha)
	if err != nil || !alphaRep.Forced {
		t.Fatalf("alpha forced report: %v forced=%v", err, alphaRep.Forced)
	}
	if !strings.Contains(alphaRep.DossierJSON, "drafted") {
		t.Fatalf("alpha draft not used: %s", alphaRep.DossierJSON)
	}
	betaRep, err := env.Engine.Repo.GetReport(env.Ctx, m.ID, domain.TeamBeta)
	if err != nil || !betaRep.Forced || betaRep.DossierJSON != "{}" {
		t.Fatalf("beta empty forced report: %v %q", err, betaRep.DossierJSON)
	}
	// A second sweep is a no-op.
	if err := env.Engine.Sweep(env.Ctx, "test-arena"); err != nil {
		t.Fatalf("resweep: %v", err)
	}
}

func TestMissionReadForcesExpiredDeadline(t *testing.T) {
	// No sweeper here: the read path alone must notice the blown
	// deadline, so CLI-only use keeps the same guarantee.
	env := newTestEnv(t)
	m := setupActiveMission(t, env)
	if _, err := env.Engine.UpdateDraftSection(env.Ctx, m.ID, "p-a", "battle1_leadership", json.RawMessage(`{"summary":"late work"}`)); err != nil {
		t.Fatal(err)
	}
	env.advance(61 * time.Minute)
	got, err := env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != domain.MissionEvaluation {
		t.Fatalf("expected evaluation on read past deadline, got %s (%v)", got.Status, err)
	}
	alphaRep, err := env.Engine.Repo.GetReport(env.Ctx, m.ID, domain.TeamAlpha)
	if err != nil || !alphaRep.Forced || !strings.Contains(alphaRep.DossierJSON, "late work") {
		t.Fatalf("alpha forced report from draft: %v %q", err, alphaRep.DossierJSON)
	}
	// A submission after the deadline finds the active phase over.
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-b", json.RawMessage(`{}`)); err == nil || !strings.Contains(err.Error(), "not active") {
		t.Fatalf("expected not active after deadline, got %v", err)
	}
}

func evaluationReadyMission(t *testing.T, env testEnv) domain.Mission {
	t.Helper()
	m := setupActiveMission(t, env)
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-a", json.RawMessage(`{"battle1_leadership":{"x":1}}`)); err != nil {
		t.Fatal(err)
	}
	env.advance(10 * time.Minute)
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-b", json.RawMessage(`{"battle1_leadership":{"x":2}}`)); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || m.Status != domain.MissionEvaluation {
		t.Fatalf("mission not in evaluation: %v %s", err, m.Status)
	}
	return m
}

func TestFinalizeMissionScoresAndStats(t *testing.T) {
	env := newTestEnv(t)
	m := evaluationReadyMission(t, env)
	stub := &stubAdjudicator{verdict: adjudicator.Verdict{
		// Out-of-range marks are clamped to the category maxima.
		Alpha:                adjudicator.TeamScore{AccuracyScore: 200, SourcesScore: -5, PresentationScore: 10},
		Beta:                 adjudicator.TeamScore{AccuracyScore: 40, SourcesScore: 10, PresentationScore: 10},
		WinningTeamReasoning: "alpha was sharper",
	}}
	env.Engine.Adjudicator = stub
	result, err := env.Engine.FinalizeMission(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.Alpha.AccuracyScore != 60 {
		t.Fatalf("accuracy not clamped: %v", result.Alpha.AccuracyScore)
	}
	if result.Alpha.SourcesScore != 0 {
		t.Fatalf("negative sources not clamped: %v", result.Alpha.SourcesScore)
	}
	// Alpha submitted at the start, beta ten minutes on a 60 minute clock.
	if result.Alpha.SpeedScore != 10 {
		t.Fatalf("alpha speed: %v", result.Alpha.SpeedScore)
	}
	if result.Beta.SpeedScore >= result.Alpha.SpeedScore {
		t.Fatalf("beta should be slower: %v", result.Beta.SpeedScore)
	}
	if result.Winner != domain.TeamAlpha {
		t.Fatalf("winner: %s", result.Winner)
	}
	got, err := env.Engine.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != domain.MissionCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Winner == nil || *got.Winner != domain.TeamAlpha {
		t.Fatalf("stored winner: %v", got.Winner)
	}
	// Stats are counted once per player.
	winner, err := env.Engine.Repo.GetPlayerStats(env.Ctx, "test-arena", "p-a")
	if err != nil || winner.TotalMissions != 1 || winner.MissionsWon != 1 {
		t.Fatalf("winner stats: %+v err=%v", winner, err)
	}
	loser, err := env.Engine.Repo.GetPlayerStats(env.Ctx, "test-arena", "p-b")
	if err != nil || loser.TotalMissions != 1 || loser.MissionsWon != 0 {
		t.Fatalf("loser stats: %+v err=%v", loser, err)
	}
	// Finalizing again returns the stored verdict without re-adjudicating.
	again, err := env.Engine.FinalizeMission(env.Ctx, m.ID, "tester")
	if err != nil || again.Winner != result.Winner || again.AdjudicatedAt != result.AdjudicatedAt {
		t.Fatalf("refinalize: %v %+v", err, again)
	}
	if atomic.LoadInt32(&stub.calls) != 1 {
		t.Fatalf("adjudicator called %d times", stub.calls)
	}
	winner, _ = env.Engine.Repo.GetPlayerStats(env.Ctx, "test-arena", "p-a")
	if winner.TotalMissions != 1 {
		t.Fatalf("stats double counted: %+v", winner)
	}
}

func TestFinalizeTieAwardsNoWins(t *testing.T) {
	env := newTestEnv(t)
	m := setupActiveMission(t, env)
	// Both teams submit at the same instant so speed matches too.
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-a", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitReport(env.Ctx, m.ID, "p-b", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	even := adjudicator.TeamScore{AccuracyScore: 50, SourcesScore: 10, PresentationScore: 10}
	env.Engine.Adjudicator = &stubAdjudicator{verdict: adjudicator.Verdict{Alpha: even, Beta: even}}
	result, err := env.Engine.FinalizeMission(env.Ctx, m.ID, "tester")
	if err != nil || result.Winner != "tie" {
		t.Fatalf("expected tie: %v %s", err, result.Winner)
	}
	for _, p := range []string{"p-a", "p-b"} {
		stats, err := env.Engine.Repo.GetPlayerStats(env.Ctx, "test-arena", p)
		if err != nil || stats.TotalMissions != 1 || stats.MissionsWon != 0 {
			t.Fatalf("tie stats for %s: %+v err=%v", p, stats, err)
		}
	}
}

func TestFinalizeRaceReturnsStoredVerdict(t *testing.T) {
	env := newTestEnv(t)
	m := evaluationReadyMission(t, env)
	rivalVerdict := adjudicator.Verdict{
		Alpha: adjudicator.TeamScore{AccuracyScore: 55},
		Beta:  adjudicator.TeamScore{AccuracyScore: 10},
	}
	rival := env.Engine
	rival.Adjudicator = &stubAdjudicator{verdict: rivalVerdict}
	// The rival finalization lands while our adjudicator call is in flight.
	stub := &stubAdjudicator{
		verdict: adjudicator.Verdict{
			Alpha: adjudicator.TeamScore{AccuracyScore: 5},
			Beta:  adjudicator.TeamScore{AccuracyScore: 50},
		},
		onCall: func() {
			if _, err := rival.FinalizeMission(env.Ctx, m.ID, "rival"); err != nil {
				t.Errorf("rival finalize: %v", err)
			}
		},
	}
	env.Engine.Adjudicator = stub
	result, err := env.Engine.FinalizeMission(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// Our verdict favored beta, but the rival's stored verdict wins.
	if result.Winner != domain.TeamAlpha {
		t.Fatalf("expected stored winner alpha, got %s", result.Winner)
	}
	if result.Alpha.AccuracyScore != 55 {
		t.Fatalf("expected stored scores, got %v", result.Alpha.AccuracyScore)
	}
	for _, p := range []string{"p-a", "p-b"} {
		stats, err := env.Engine.Repo.GetPlayerStats(env.Ctx, "test-arena", p)
		if err != nil || stats.TotalMissions != 1 {
			t.Fatalf("stats for %s counted %d times", p, stats.TotalMissions)
		}
	}
}

func TestFinalizeMissingTiming(t *testing.T) {
	env := newTestEnv(t)
	now := env.now.Format(time.RFC3339)
	// Hand-build a broken mission: evaluation phase, reports in, no clock.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := domain.Mission{
		ID: "broken", ArenaID: "test-arena", OwnerID: "tester",
		Title: "Operation Broken", Subject: "Acme Corp",
		CapacityPerTeam: 2, TimeLimitMinutes: 60,
		Status: domain.MissionEvaluation, CreatedAt: now, UpdatedAt: now,
	}
	if err := env.Engine.Repo.EnsurePlayerTx(env.Ctx, tx, m.OwnerID, "", now); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertMission(env.Ctx, tx, m); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{domain.TeamAlpha, domain.TeamBeta} {
		team := domain.Team{ID: "broken-" + name, MissionID: m.ID, Name: name, SubmittedAt: &now}
		if err := env.Engine.Repo.InsertTeamTx(env.Ctx, tx, team); err != nil {
			t.Fatal(err)
		}
		rep := domain.Report{MissionID: m.ID, TeamName: name, DossierJSON: "{}", CreatedAt: now, UpdatedAt: now}
		if err := env.Engine.Repo.UpsertReportTx(env.Ctx, tx, rep); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	env.Engine.Adjudicator = &stubAdjudicator{}
	var timingErr engine.TimingError
	_, err = env.Engine.FinalizeMission(env.Ctx, m.ID, "tester")
	if !errors.As(err, &timingErr) || timingErr.Missing != "start_time" {
		t.Fatalf("expected timing error for start_time, got %v", err)
	}
}

func TestFinalizeRequiresEvaluation(t *testing.T) {
	env := newTestEnv(t)
	m := setupActiveMission(t, env)
	env.Engine.Adjudicator = &stubAdjudicator{}
	if _, err := env.Engine.FinalizeMission(env.Ctx, m.ID, "tester"); err == nil || !strings.Contains(err.Error(), "not ready for adjudication") {
		t.Fatalf("expected not ready error, got %v", err)
	}
}

func TestResultBeforeFinalize(t *testing.T) {
	env := newTestEnv(t)
	m := createMission(t, env, 2)
	if _, err := env.Engine.Result(env.Ctx, m.ID); !errors.Is(err, engine.ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}
