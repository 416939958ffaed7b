package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"recap-board/internal/domain"
	openai "recap-board/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI строит структурированный день через OpenAI Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewOpenAI создаёт провайдер суммаризации рекапов.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

var _ domain.RecapSummarizer = (*OpenAI)(nil)

const systemPrompt = `Ты аналитик личного времени. Из свободного рассказа о дне собери таймлайн
и метрики. Верни один JSON без пояснений:
{"date":"YYYY-MM-DD","events":[{"label":"...","category":"productive|neutral|waste|sleep|untracked","startTime":"HH:MM","endTime":"HH:MM","notes":"..."}],
"summary":"...","metrics":{"productiveHours":0,"neutralHours":0,"wastedHours":0,"sleepHours":0,"focusBlocks":0,"contextSwitches":0},
"suggestions":["..."]}.
Ничего не выдумывай сверх рассказа. Интервал сна, начавшийся вечером и
закончившийся утром, оставляй как есть (startTime > endTime) — разрез по
полуночи сделает сервер.`

// SummarizeRecap вызывает модель и строго разбирает её ответ. Любая
// несобираемость ответа — ошибка: день не достраивается угадыванием.
func (s *OpenAI) SummarizeRecap(ctx context.Context, req domain.SummarizeRequest) (domain.CandidateDay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	userPrompt, err := buildUserPrompt(req)
	if err != nil {
		return domain.CandidateDay{}, fmt.Errorf("сборка промпта: %w", err)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.2,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	})
	if err != nil {
		return domain.CandidateDay{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.CandidateDay{}, fmt.Errorf("openai completion: пустой ответ")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	var candidate domain.CandidateDay
	if err := json.Unmarshal([]byte(content), &candidate); err != nil {
		return domain.CandidateDay{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	if candidate.Events == nil {
		return domain.CandidateDay{}, fmt.Errorf("ответ LLM без events")
	}
	if candidate.Date == "" {
		candidate.Date = req.Date
	}
	return candidate, nil
}

// existingState сериализуемое прежнее состояние дня для контекста модели.
type existingState struct {
	Summary     string           `json:"summary"`
	Suggestions []string         `json:"suggestions"`
	Metrics     map[string]any   `json:"metrics"`
	Events      []map[string]any `json:"events"`
}

func buildUserPrompt(req domain.SummarizeRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Дата: %s\n", req.Date)
	if req.NowLocalTime != "" {
		fmt.Fprintf(&b, "Сейчас по местному времени: %s\n", req.NowLocalTime)
	}

	if req.ExistingState == nil {
		b.WriteString("Прежнего состояния дня нет.\n")
	} else {
		state := existingState{
			Summary:     req.ExistingState.Summary,
			Suggestions: req.ExistingState.Suggestions,
			Metrics: map[string]any{
				"productiveHours": req.ExistingState.Metrics.ProductiveHours,
				"neutralHours":    req.ExistingState.Metrics.NeutralHours,
				"wastedHours":     req.ExistingState.Metrics.WastedHours,
				"sleepHours":      req.ExistingState.Metrics.SleepHours,
				"focusBlocks":     req.ExistingState.Metrics.FocusBlocks,
				"contextSwitches": req.ExistingState.Metrics.ContextSwitches,
			},
		}
		for _, ev := range req.ExistingState.Events {
			state.Events = append(state.Events, map[string]any{
				"label":     ev.Label,
				"category":  ev.Category,
				"startTime": ev.StartTime,
				"endTime":   ev.EndTime,
				"notes":     ev.Notes,
			})
		}
		raw, err := json.Marshal(state)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "Прежнее состояние дня:\n%s\n", raw)
	}

	b.WriteString("Рассказы за день, от старых к новым:\n")
	for i, t := range req.Transcripts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	b.WriteString("Пересобери день целиком с учётом всех рассказов.")
	return b.String(), nil
}
