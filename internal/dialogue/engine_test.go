package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"postflow/internal/catalog"
	"postflow/internal/classifier"
	"postflow/internal/config"
	"postflow/internal/generate"
	"postflow/internal/models"
	"postflow/internal/storage"
)

type scriptedGen struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (g *scriptedGen) Generate(_ context.Context, prompt string) (string, error) {
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, prompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return "", errors.New("unexpected model call")
}

func newTestEngine(t *testing.T, gen *scriptedGen) (*Engine, *storage.Store) {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: fmt.Sprintf("file:dialogue_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (1, 'u1', 'x', ?)`, time.Now().UTC()); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	store := storage.NewStore(db)
	engine := NewEngine(store, classifier.New(gen), generate.NewPipeline(gen, store))
	return engine, store
}

func send(t *testing.T, e *Engine, msg string) *Reply {
	t.Helper()
	reply, err := e.Handle(context.Background(), 1, msg)
	if err != nil {
		t.Fatalf("Handle(%q): %v", msg, err)
	}
	return reply
}

func qualifyAnswers(years string) []string {
	return []string{"Senior engineer", years, "fintech and saas", "Led a team of 10", "Become a CTO"}
}

// Intake answers up to but not including the post count question.
var intakePrefix = []string{
	"Software engineer", "Building payment infra", "Grow my audience",
	"fintech", "founders and CTOs", "Sample post about shipping fast.",
}

func validPost(i int) string {
	return fmt.Sprintf("Post number %d: a substantial insight about engineering leadership worth reading twice. #golang #leadership", i)
}

func delimited(posts ...string) string {
	var b strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&b, "%s\n%s\n%s\n", generate.PostStart, p, generate.PostEnd)
	}
	return b.String()
}

func TestQualificationFlowTransitionsToIntake(t *testing.T) {
	gen := &scriptedGen{}
	engine, store := newTestEngine(t, gen)

	answers := qualifyAnswers("8 years")
	for i, msg := range answers[:4] {
		reply := send(t, engine, msg)
		if len(reply.Responses) != 1 {
			t.Fatalf("answer %d: got %d responses", i, len(reply.Responses))
		}
		want := catalog.Qualify()[i+1].Format()
		if reply.Responses[0] != want {
			t.Fatalf("answer %d: response = %q, want %q", i, reply.Responses[0], want)
		}
		if reply.Phase != models.PhaseQualify {
			t.Fatalf("answer %d: phase = %s", i, reply.Phase)
		}
	}

	reply := send(t, engine, answers[4])
	if len(reply.Responses) != 2 {
		t.Fatalf("transition should emit 2 responses, got %d: %v", len(reply.Responses), reply.Responses)
	}
	if !strings.Contains(reply.Responses[0], "mentor") {
		t.Fatalf("transition message missing role: %q", reply.Responses[0])
	}
	if reply.Responses[1] != catalog.Intake()[0].Format() {
		t.Fatalf("second response = %q, want first intake question", reply.Responses[1])
	}
	if reply.Role != classifier.RoleMentor {
		t.Fatalf("role = %s, want mentor", reply.Role)
	}
	// 8 years is outside the borderline band, no model consult.
	if gen.calls != 0 {
		t.Fatalf("model called %d times during qualification", gen.calls)
	}

	state, err := store.LoadSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if state.Phase != models.PhaseIntake || state.QuestionIndex != 0 {
		t.Fatalf("persisted state = phase %s index %d", state.Phase, state.QuestionIndex)
	}
	if state.Answers[catalog.KeyExperienceYears] != "8 years" {
		t.Fatalf("qualification answers not kept: %#v", state.Answers)
	}
}

func TestBorderlineYearsConsultModel(t *testing.T) {
	gen := &scriptedGen{responses: []string{"mentee"}}
	engine, _ := newTestEngine(t, gen)

	var reply *Reply
	for _, msg := range qualifyAnswers("5") {
		reply = send(t, engine, msg)
	}
	if gen.calls != 1 {
		t.Fatalf("borderline case should consult the model once, got %d calls", gen.calls)
	}
	if reply.Role != classifier.RoleMentee {
		t.Fatalf("role = %s, want mentee", reply.Role)
	}
	if !strings.Contains(reply.Responses[0], "mentee") {
		t.Fatalf("transition message missing role: %q", reply.Responses[0])
	}
}

func TestBlankMessageReEmitsCurrentQuestion(t *testing.T) {
	gen := &scriptedGen{}
	engine, store := newTestEngine(t, gen)

	send(t, engine, "Senior engineer")
	send(t, engine, "8")

	reply := send(t, engine, "   ")
	want := catalog.Qualify()[2].Format()
	if len(reply.Responses) != 1 || reply.Responses[0] != want {
		t.Fatalf("blank nudge response = %v, want %q", reply.Responses, want)
	}

	state, _ := store.LoadSession(context.Background(), 1)
	if state.QuestionIndex != 2 {
		t.Fatalf("blank message advanced the index to %d", state.QuestionIndex)
	}
	if len(state.Answers) != 2 {
		t.Fatalf("blank message recorded an answer: %#v", state.Answers)
	}

	// The nudge turn is still part of the ledger.
	history, _ := store.History(context.Background(), 1)
	if len(history) != 6 {
		t.Fatalf("history rows = %d, want 6", len(history))
	}
}

func TestCompletedSessionShortCircuits(t *testing.T) {
	gen := &scriptedGen{}
	engine, store := newTestEngine(t, gen)

	state := models.NewSessionState(1)
	state.Phase = models.PhaseIntake
	state.QuestionIndex = 3
	state.Answers["profession"] = "engineer"
	state.Completed = true
	if err := store.SaveTurn(context.Background(), state, nil); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	reply := send(t, engine, "hello again")
	if !reply.Completed {
		t.Fatalf("reply should report completed")
	}
	if len(reply.Responses) != 1 || reply.Responses[0] != alreadyCompletedResponse {
		t.Fatalf("unexpected responses: %v", reply.Responses)
	}

	loaded, _ := store.LoadSession(context.Background(), 1)
	if loaded.QuestionIndex != 3 || len(loaded.Answers) != 1 {
		t.Fatalf("completed session was mutated: %+v", loaded)
	}
	if gen.calls != 0 {
		t.Fatalf("model called on a completed session")
	}
}

func TestPostCountValidation(t *testing.T) {
	gen := &scriptedGen{}
	engine, store := newTestEngine(t, gen)

	for _, msg := range qualifyAnswers("10") {
		send(t, engine, msg)
	}
	for _, msg := range intakePrefix {
		send(t, engine, msg)
	}

	for _, bad := range []string{"abc", "0", "-2"} {
		reply := send(t, engine, bad)
		if len(reply.Responses) != 1 || reply.Responses[0] != countCorrection {
			t.Fatalf("input %q: responses = %v, want corrective prompt", bad, reply.Responses)
		}
	}
	state, _ := store.LoadSession(context.Background(), 1)
	if state.QuestionIndex != len(intakePrefix) {
		t.Fatalf("invalid count advanced the index to %d", state.QuestionIndex)
	}
	if _, ok := state.Answers[catalog.KeyPostCount]; ok {
		t.Fatalf("invalid count was recorded as an answer")
	}

	reply := send(t, engine, "5")
	want := catalog.Intake()[len(intakePrefix)+1].Format()
	if reply.Responses[0] != want {
		t.Fatalf("valid count response = %q, want %q", reply.Responses[0], want)
	}
}

func TestIntakeCompletionGeneratesSchedule(t *testing.T) {
	gen := &scriptedGen{
		responses: []string{
			delimited(validPost(1), "short", validPost(2), "x", validPost(3)),
			delimited(validPost(4), validPost(5), validPost(6)),
		},
	}
	engine, store := newTestEngine(t, gen)

	for _, msg := range qualifyAnswers("10") {
		send(t, engine, msg)
	}
	for _, msg := range intakePrefix {
		send(t, engine, msg)
	}
	send(t, engine, "5")
	send(t, engine, "personal brand")
	reply := send(t, engine, "30 days")

	if !reply.Completed {
		t.Fatalf("final turn should complete the session: %+v", reply)
	}
	if len(reply.Schedule) != 5 {
		t.Fatalf("schedule length = %d, want 5", len(reply.Schedule))
	}
	if !strings.Contains(reply.Responses[0], "5 posts") || !strings.Contains(reply.Responses[0], "30 days") {
		t.Fatalf("done message = %q", reply.Responses[0])
	}
	if gen.calls != 2 {
		t.Fatalf("model calls = %d, want batch plus one backfill", gen.calls)
	}
	if !strings.Contains(gen.prompts[1], "exactly 2") {
		t.Fatalf("backfill prompt should request the shortfall: %q", gen.prompts[1])
	}

	for i := 1; i < len(reply.Schedule); i++ {
		gap := reply.Schedule[i].ScheduledDate.Sub(reply.Schedule[i-1].ScheduledDate)
		if gap != 6*24*time.Hour {
			t.Fatalf("gap %d = %v, want 6 days", i, gap)
		}
	}

	persona, err := store.LatestPersona(context.Background(), 1)
	if err != nil {
		t.Fatalf("LatestPersona: %v", err)
	}
	if persona.PostCount != 5 || persona.TimelineDays != 30 {
		t.Fatalf("persisted persona: %+v", persona)
	}
	posts, _ := store.PostsByPersona(context.Background(), persona.ID)
	if len(posts) != 5 {
		t.Fatalf("persisted posts = %d, want 5", len(posts))
	}

	state, _ := store.LoadSession(context.Background(), 1)
	if !state.Completed {
		t.Fatalf("session not marked completed")
	}
}

func TestGenerationFailureIsRetriable(t *testing.T) {
	gen := &scriptedGen{errs: []error{errors.New("model down")}}
	engine, store := newTestEngine(t, gen)

	for _, msg := range qualifyAnswers("10") {
		send(t, engine, msg)
	}
	for _, msg := range intakePrefix {
		send(t, engine, msg)
	}
	send(t, engine, "3")
	send(t, engine, "personal brand")
	reply := send(t, engine, "21 days")

	if reply.Completed {
		t.Fatalf("failed generation must not complete the session")
	}
	if len(reply.Responses) != 1 || reply.Responses[0] != retryResponse {
		t.Fatalf("unexpected responses: %v", reply.Responses)
	}

	// State is parked past the last question so the next message retries.
	state, _ := store.LoadSession(context.Background(), 1)
	if state.Completed || state.QuestionIndex != len(catalog.Intake()) {
		t.Fatalf("retry state = completed %v index %d", state.Completed, state.QuestionIndex)
	}

	// Heal the model: the failed call consumed the first scripted slot.
	gen.errs = nil
	gen.responses = []string{"", delimited(validPost(1), validPost(2), validPost(3))}

	retry := send(t, engine, "try again")
	if !retry.Completed {
		t.Fatalf("retry should complete: %+v", retry)
	}
	if len(retry.Schedule) != 3 {
		t.Fatalf("retry schedule = %d posts, want 3", len(retry.Schedule))
	}
	// The retry message is not consumed as an answer.
	state, _ = store.LoadSession(context.Background(), 1)
	if state.Answers[catalog.KeyTimeline] != "21 days" {
		t.Fatalf("retry message overwrote an answer: %#v", state.Answers)
	}
	// Timeline of 21 days across 3 posts spreads one week apart.
	if gap := retry.Schedule[1].ScheduledDate.Sub(retry.Schedule[0].ScheduledDate); gap != 7*24*time.Hour {
		t.Fatalf("gap = %v, want 7 days", gap)
	}
}
