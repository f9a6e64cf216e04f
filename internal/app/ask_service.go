package app

import (
	"context"
	"log"
	"strings"

	"weekly-assistant/internal/ai"
	"weekly-assistant/internal/model"
)

const (
	defaultMatchCount = 5
	contextSeparator  = "\n---\n"
)

type LLMClient interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

type ReportMatcher interface {
	Match(ctx context.Context, embedding []float32, count int) ([]model.MatchRow, error)
}

type EmployeeDirectory interface {
	ListByIDs(ctx context.Context, ids []string) ([]model.Employee, error)
}

type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, vec []float32) error
}

type AskService struct {
	llmClient    LLMClient
	reports      ReportMatcher
	employees    EmployeeDirectory
	cache        EmbeddingCache
	embConfig    ai.EmbeddingConfig
	chatConfig   ai.ChatConfig
	systemPrompt string
	matchCount   int
}

type AskServiceOptions struct {
	EmbeddingConfig ai.EmbeddingConfig
	ChatConfig      ai.ChatConfig
	SystemPrompt    string
	MatchCount      int
	// Cache is optional; nil disables embedding reuse.
	Cache EmbeddingCache
}

// AskResult is the JSON body of a successful answer.
type AskResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func NewAskService(llmClient LLMClient, reports ReportMatcher, employees EmployeeDirectory, opts AskServiceOptions) *AskService {
	matchCount := opts.MatchCount
	if matchCount <= 0 {
		matchCount = defaultMatchCount
	}
	return &AskService{
		llmClient:    llmClient,
		reports:      reports,
		employees:    employees,
		cache:        opts.Cache,
		embConfig:    opts.EmbeddingConfig,
		chatConfig:   opts.ChatConfig,
		systemPrompt: opts.SystemPrompt,
		matchCount:   matchCount,
	}
}

// Ask embeds the question, retrieves the closest weekly reports, resolves
// employee names and asks the chat model for a cited answer. Each step gates
// the next; the first failure is returned as a *StageError.
func (s *AskService) Ask(ctx context.Context, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	embedding, err := s.embed(ctx, question)
	if err != nil {
		return nil, &StageError{Stage: StageEmbed, Err: err}
	}

	rows, err := s.reports.Match(ctx, embedding, s.matchCount)
	if err != nil {
		return nil, &StageError{Stage: StageRetrieve, Err: err}
	}

	names, err := s.resolveNames(ctx, rows)
	if err != nil {
		return nil, &StageError{Stage: StageResolve, Err: err}
	}

	messages := []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: s.systemPrompt},
		{Role: ai.RoleUser, Content: BuildPrompt(question, BuildContext(rows, names))},
	}
	answer, err := s.llmClient.Complete(ctx, s.chatConfig, messages)
	if err != nil {
		return nil, &StageError{Stage: StageGenerate, Err: err}
	}

	return &AskResult{
		Answer:  strings.TrimSpace(answer),
		Sources: Citations(rows, names),
	}, nil
}

func (s *AskService) embed(ctx context.Context, question string) ([]float32, error) {
	if s.cache != nil {
		vec, ok, err := s.cache.Get(ctx, question)
		if err != nil {
			log.Printf("embedding cache read failed: %v", err)
		} else if ok {
			return vec, nil
		}
	}

	vec, err := s.llmClient.Embed(ctx, s.embConfig, question)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, question, vec); err != nil {
			log.Printf("embedding cache write failed: %v", err)
		}
	}
	return vec, nil
}

// resolveNames looks up display names once for the distinct employee ids in
// rows. With no rows the directory is not contacted.
func (s *AskService) resolveNames(ctx context.Context, rows []model.MatchRow) (map[string]string, error) {
	ids := DistinctEmployeeIDs(rows)
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	employees, err := s.employees.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(employees))
	for _, e := range employees {
		if name := strings.TrimSpace(e.FullName); name != "" {
			names[e.ID] = name
		}
	}
	return names, nil
}

// DistinctEmployeeIDs returns each employee id once, in first-seen order.
func DistinctEmployeeIDs(rows []model.MatchRow) []string {
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.EmployeeID]; ok {
			continue
		}
		seen[r.EmployeeID] = struct{}{}
		ids = append(ids, r.EmployeeID)
	}
	return ids
}

func displayName(names map[string]string, employeeID string) string {
	if name, ok := names[employeeID]; ok {
		return name
	}
	return employeeID
}

// BuildContext formats rows as "<name> (<week>):\n<answers>" joined by "\n---\n".
func BuildContext(rows []model.MatchRow, names map[string]string) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = displayName(names, r.EmployeeID) + " (" + r.WeekEnding + "):\n" + r.AnswersText()
	}
	return strings.Join(parts, contextSeparator)
}

func BuildPrompt(question, contextBlock string) string {
	return question + "\n\nContext:\n" + contextBlock
}

// Citations returns one "<name>@<week>" entry per row, in row order.
func Citations(rows []model.MatchRow, names map[string]string) []string {
	sources := make([]string, len(rows))
	for i, r := range rows {
		sources[i] = displayName(names, r.EmployeeID) + "@" + r.WeekEnding
	}
	return sources
}
