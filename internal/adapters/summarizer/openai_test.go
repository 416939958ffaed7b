package summarizer

import (
	"context"
	"strings"
	"testing"

	"recap-board/internal/domain"
	openai "recap-board/internal/infra/openai"
)

type fakeChatClient struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: f.content}}},
	}, nil
}

func TestSummarizeRecapParsesResponse(t *testing.T) {
	client := &fakeChatClient{content: `{
		"date": "2025-01-11",
		"events": [{"label": "Сон", "category": "sleep", "startTime": "23:00", "endTime": "07:00"}],
		"summary": "День с ранним подъёмом",
		"metrics": {"productiveHours": 6, "neutralHours": 2, "wastedHours": 1, "sleepHours": 8, "focusBlocks": 3, "contextSwitches": 4},
		"suggestions": ["ложиться раньше"]
	}`}
	s := NewOpenAI(client, "", 0)

	candidate, err := s.SummarizeRecap(context.Background(), domain.SummarizeRequest{
		Date:        "2025-01-11",
		Transcripts: []string{"проснулся в 7"},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(candidate.Events) != 1 || candidate.Events[0].StartTime != "23:00" {
		t.Fatalf("события должны разобраться: %+v", candidate.Events)
	}
	if candidate.Metrics.SleepHours != 8 {
		t.Fatalf("метрики должны разобраться: %+v", candidate.Metrics)
	}
	if client.lastReq.ResponseFormat == nil || client.lastReq.ResponseFormat.Type != openai.ResponseFormatTypeJSONObject {
		t.Fatalf("запрос должен требовать json_object")
	}
}

func TestSummarizeRecapMalformedJSON(t *testing.T) {
	client := &fakeChatClient{content: "сегодня был хороший день"}
	s := NewOpenAI(client, "", 0)

	_, err := s.SummarizeRecap(context.Background(), domain.SummarizeRequest{Date: "2025-01-11", Transcripts: []string{"день"}})
	if err == nil {
		t.Fatalf("не-JSON должен быть ошибкой")
	}
}

func TestSummarizeRecapMissingEvents(t *testing.T) {
	client := &fakeChatClient{content: `{"date": "2025-01-11", "summary": "день"}`}
	s := NewOpenAI(client, "", 0)

	_, err := s.SummarizeRecap(context.Background(), domain.SummarizeRequest{Date: "2025-01-11", Transcripts: []string{"день"}})
	if err == nil {
		t.Fatalf("ответ без events должен быть ошибкой")
	}
}

func TestSummarizeRecapPromptContents(t *testing.T) {
	client := &fakeChatClient{content: `{"date": "2025-01-11", "events": []}`}
	s := NewOpenAI(client, "", 0)

	existing := &domain.Day{
		Summary: "утро за почтой",
		Metrics: domain.Metrics{ProductiveHours: 4},
		Events:  []domain.Event{{Label: "Почта", Category: domain.CategoryNeutral, StartTime: "09:00", EndTime: "10:00"}},
	}
	_, err := s.SummarizeRecap(context.Background(), domain.SummarizeRequest{
		Date:          "2025-01-11",
		NowLocalTime:  "21:30",
		ExistingState: existing,
		Transcripts:   []string{"утро за почтой", "вечером спортзал"},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	prompt := client.lastReq.Messages[1].Content
	for _, want := range []string{"2025-01-11", "21:30", "утро за почтой", "вечером спортзал", "Прежнее состояние дня"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("в промпте нет %q:\n%s", want, prompt)
		}
	}
}

func TestSummarizeRecapNoExistingStateMarker(t *testing.T) {
	client := &fakeChatClient{content: `{"date": "2025-01-11", "events": []}`}
	s := NewOpenAI(client, "", 0)

	if _, err := s.SummarizeRecap(context.Background(), domain.SummarizeRequest{Date: "2025-01-11", Transcripts: []string{"день"}}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(client.lastReq.Messages[1].Content, "Прежнего состояния дня нет") {
		t.Fatalf("маркер отсутствия состояния обязателен")
	}
}

func TestSimpleSummarizer(t *testing.T) {
	s := NewSimple()
	candidate, err := s.SummarizeRecap(context.Background(), domain.SummarizeRequest{
		Date:        "2025-01-11",
		Transcripts: []string{"первый", "второй рассказ"},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if candidate.Summary != "второй рассказ" {
		t.Fatalf("summary строится из последнего рассказа: %q", candidate.Summary)
	}
	if candidate.Events == nil {
		t.Fatalf("events не должен быть nil")
	}
}
