package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"gorm.io/datatypes"

	"weekly-assistant/internal/ai"
	"weekly-assistant/internal/model"
)

type recorder struct {
	calls []string
}

func (r *recorder) record(call string) {
	r.calls = append(r.calls, call)
}

type fakeLLM struct {
	rec         *recorder
	embedErr    error
	completeErr error
	answer      string

	embedInputs []string
	messages    []ai.ChatMessage
	chatConfig  ai.ChatConfig
}

func (f *fakeLLM) Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error) {
	f.rec.record("embed")
	f.embedInputs = append(f.embedInputs, text)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeLLM) Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	f.rec.record("complete")
	f.messages = messages
	f.chatConfig = cfg
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.answer, nil
}

type fakeMatcher struct {
	rec   *recorder
	rows  []model.MatchRow
	err   error
	count int
}

func (f *fakeMatcher) Match(ctx context.Context, embedding []float32, count int) ([]model.MatchRow, error) {
	f.rec.record("match")
	f.count = count
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type fakeDirectory struct {
	rec       *recorder
	employees []model.Employee
	err       error
	ids       []string
}

func (f *fakeDirectory) ListByIDs(ctx context.Context, ids []string) ([]model.Employee, error) {
	f.rec.record("employees")
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.employees, nil
}

type fakeCache struct {
	entries map[string][]float32
	getErr  error
}

func (f *fakeCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	vec, ok := f.entries[text]
	return vec, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, text string, vec []float32) error {
	f.entries[text] = vec
	return nil
}

type fixture struct {
	rec       *recorder
	llm       *fakeLLM
	matcher   *fakeMatcher
	directory *fakeDirectory
	service   *AskService
}

func newFixture(rows []model.MatchRow, employees []model.Employee) *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:       rec,
		llm:       &fakeLLM{rec: rec, answer: "  Rollout is on track (Ada Lovelace@2024-05-03).\n"},
		matcher:   &fakeMatcher{rec: rec, rows: rows},
		directory: &fakeDirectory{rec: rec, employees: employees},
	}
	f.service = NewAskService(f.llm, f.matcher, f.directory, AskServiceOptions{
		ChatConfig:   ai.ChatConfig{Model: "gpt-4o-mini", Temperature: 0.3},
		SystemPrompt: "You are a concise operations advisor. Cite sources like (Name@date).",
		MatchCount:   5,
	})
	return f
}

func adaRow() model.MatchRow {
	return model.MatchRow{
		EmployeeID:  "e1",
		WeekEnding:  "2024-05-03",
		AnswersJSON: datatypes.JSON(`{"status":"on track"}`),
		Similarity:  0.91,
	}
}

func TestAsk_ScenarioA_ResolvedName(t *testing.T) {
	f := newFixture(
		[]model.MatchRow{adaRow()},
		[]model.Employee{{ID: "e1", FullName: "Ada Lovelace"}},
	)

	result, err := f.service.Ask(context.Background(), "How is the rollout going?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	wantUser := "How is the rollout going?\n\nContext:\nAda Lovelace (2024-05-03):\n{\"status\":\"on track\"}"
	if got := f.llm.messages[1].Content; got != wantUser {
		t.Errorf("user message mismatch:\n got %q\nwant %q", got, wantUser)
	}
	if f.llm.messages[0].Role != ai.RoleSystem || f.llm.messages[0].Content != "You are a concise operations advisor. Cite sources like (Name@date)." {
		t.Errorf("unexpected system message: %+v", f.llm.messages[0])
	}
	if f.llm.chatConfig.Temperature != 0.3 {
		t.Errorf("unexpected temperature: %v", f.llm.chatConfig.Temperature)
	}
	if !reflect.DeepEqual(result.Sources, []string{"Ada Lovelace@2024-05-03"}) {
		t.Errorf("unexpected sources: %v", result.Sources)
	}
	if result.Answer != "Rollout is on track (Ada Lovelace@2024-05-03)." {
		t.Errorf("answer should be trimmed, got %q", result.Answer)
	}
}

func TestAsk_ScenarioB_FallsBackToID(t *testing.T) {
	f := newFixture([]model.MatchRow{adaRow()}, nil)

	result, err := f.service.Ask(context.Background(), "How is the rollout going?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	wantUser := "How is the rollout going?\n\nContext:\ne1 (2024-05-03):\n{\"status\":\"on track\"}"
	if got := f.llm.messages[1].Content; got != wantUser {
		t.Errorf("user message mismatch:\n got %q\nwant %q", got, wantUser)
	}
	if !reflect.DeepEqual(result.Sources, []string{"e1@2024-05-03"}) {
		t.Errorf("unexpected sources: %v", result.Sources)
	}
}

func TestAsk_BlankNameFallsBackToID(t *testing.T) {
	f := newFixture(
		[]model.MatchRow{adaRow()},
		[]model.Employee{{ID: "e1", FullName: "   "}},
	)

	result, err := f.service.Ask(context.Background(), "status?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if result.Sources[0] != "e1@2024-05-03" {
		t.Errorf("unexpected source: %s", result.Sources[0])
	}
}

func TestAsk_ScenarioC_BlankQuestion(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		f := newFixture([]model.MatchRow{adaRow()}, nil)

		_, err := f.service.Ask(context.Background(), q)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("question %q: expected ErrInvalidInput, got %v", q, err)
		}
		if len(f.rec.calls) != 0 {
			t.Errorf("question %q: expected no external calls, got %v", q, f.rec.calls)
		}
	}
}

func TestAsk_ScenarioD_RetrievalError(t *testing.T) {
	f := newFixture(nil, nil)
	f.matcher.err = errors.New("timeout")

	_, err := f.service.Ask(context.Background(), "How is the rollout going?")

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if stageErr.Stage != StageRetrieve || stageErr.Err.Error() != "timeout" {
		t.Errorf("unexpected stage error: %+v", stageErr)
	}
	if !reflect.DeepEqual(f.rec.calls, []string{"embed", "match"}) {
		t.Errorf("identity lookup and completion must not run, calls: %v", f.rec.calls)
	}
}

func TestAsk_CallOrderAndCounts(t *testing.T) {
	f := newFixture(
		[]model.MatchRow{adaRow()},
		[]model.Employee{{ID: "e1", FullName: "Ada Lovelace"}},
	)

	if _, err := f.service.Ask(context.Background(), "  How is the rollout going?  "); err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if !reflect.DeepEqual(f.rec.calls, []string{"embed", "match", "employees", "complete"}) {
		t.Errorf("unexpected call order: %v", f.rec.calls)
	}
	if f.matcher.count != 5 {
		t.Errorf("expected match count 5, got %d", f.matcher.count)
	}
	if f.llm.embedInputs[0] != "How is the rollout going?" {
		t.Errorf("embedding input should be trimmed, got %q", f.llm.embedInputs[0])
	}
}

func TestAsk_NoRows(t *testing.T) {
	f := newFixture(nil, nil)

	result, err := f.service.Ask(context.Background(), "anything new?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if !reflect.DeepEqual(f.rec.calls, []string{"embed", "match", "complete"}) {
		t.Errorf("identity lookup should be skipped, calls: %v", f.rec.calls)
	}
	if got := f.llm.messages[1].Content; got != "anything new?\n\nContext:\n" {
		t.Errorf("expected empty context, got %q", got)
	}
	if result.Sources == nil || len(result.Sources) != 0 {
		t.Errorf("expected empty non-nil sources, got %#v", result.Sources)
	}
}

func TestAsk_DeduplicatesEmployeeIDs(t *testing.T) {
	second := adaRow()
	second.WeekEnding = "2024-04-26"
	other := model.MatchRow{EmployeeID: "e2", WeekEnding: "2024-05-03", AnswersJSON: datatypes.JSON(`{}`)}
	f := newFixture(
		[]model.MatchRow{adaRow(), other, second},
		[]model.Employee{{ID: "e1", FullName: "Ada Lovelace"}, {ID: "e2", FullName: "Alan Turing"}},
	)

	result, err := f.service.Ask(context.Background(), "status?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if !reflect.DeepEqual(f.directory.ids, []string{"e1", "e2"}) {
		t.Errorf("lookup ids should be distinct, got %v", f.directory.ids)
	}
	want := []string{"Ada Lovelace@2024-05-03", "Alan Turing@2024-05-03", "Ada Lovelace@2024-04-26"}
	if !reflect.DeepEqual(result.Sources, want) {
		t.Errorf("sources should follow row order:\n got %v\nwant %v", result.Sources, want)
	}
}

func TestAsk_StageErrors(t *testing.T) {
	tests := []struct {
		name      string
		configure func(f *fixture)
		stage     string
		calls     []string
	}{
		{
			name:      "embed",
			configure: func(f *fixture) { f.llm.embedErr = errors.New("401 unauthorized") },
			stage:     StageEmbed,
			calls:     []string{"embed"},
		},
		{
			name:      "resolve",
			configure: func(f *fixture) { f.directory.err = errors.New("connection reset") },
			stage:     StageResolve,
			calls:     []string{"embed", "match", "employees"},
		},
		{
			name:      "generate",
			configure: func(f *fixture) { f.llm.completeErr = errors.New("503") },
			stage:     StageGenerate,
			calls:     []string{"embed", "match", "employees", "complete"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture([]model.MatchRow{adaRow()}, nil)
			tt.configure(f)

			_, err := f.service.Ask(context.Background(), "status?")

			var stageErr *StageError
			if !errors.As(err, &stageErr) || stageErr.Stage != tt.stage {
				t.Fatalf("expected %s stage error, got %v", tt.stage, err)
			}
			if !reflect.DeepEqual(f.rec.calls, tt.calls) {
				t.Errorf("unexpected calls: %v", f.rec.calls)
			}
		})
	}
}

func TestAsk_EmbeddingCache(t *testing.T) {
	f := newFixture(nil, nil)
	cache := &fakeCache{entries: map[string][]float32{}}
	f.service.cache = cache

	for i := 0; i < 2; i++ {
		if _, err := f.service.Ask(context.Background(), "repeat me"); err != nil {
			t.Fatalf("ask %d failed: %v", i, err)
		}
	}
	if len(f.llm.embedInputs) != 1 {
		t.Errorf("second ask should reuse cached embedding, embeds: %d", len(f.llm.embedInputs))
	}
}

func TestAsk_EmbeddingCacheFailureIgnored(t *testing.T) {
	f := newFixture(nil, nil)
	f.service.cache = &fakeCache{entries: map[string][]float32{}, getErr: errors.New("redis down")}

	if _, err := f.service.Ask(context.Background(), "still works?"); err != nil {
		t.Fatalf("cache failure should not fail ask: %v", err)
	}
	if len(f.llm.embedInputs) != 1 {
		t.Errorf("expected fallback embed call, got %d", len(f.llm.embedInputs))
	}
}

func TestBuildContext_Deterministic(t *testing.T) {
	rows := []model.MatchRow{
		adaRow(),
		{EmployeeID: "e2", WeekEnding: "2024-05-10", AnswersJSON: datatypes.JSON(`{"risk": "low"}`)},
	}
	names := map[string]string{"e1": "Ada Lovelace"}

	first := BuildContext(rows, names)
	want := "Ada Lovelace (2024-05-03):\n{\"status\":\"on track\"}\n---\ne2 (2024-05-10):\n{\"risk\":\"low\"}"
	if first != want {
		t.Errorf("context mismatch:\n got %q\nwant %q", first, want)
	}
	for i := 0; i < 3; i++ {
		if again := BuildContext(rows, names); again != first {
			t.Errorf("context changed between calls: %q", again)
		}
	}
}

func TestBuildContext_Empty(t *testing.T) {
	if got := BuildContext(nil, nil); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestNewAskService_DefaultMatchCount(t *testing.T) {
	s := NewAskService(nil, nil, nil, AskServiceOptions{})
	if s.matchCount != 5 {
		t.Errorf("expected default match count 5, got %d", s.matchCount)
	}
}
