package summarizer

import (
	"context"
	"strings"
	"unicode/utf8"

	"recap-board/internal/domain"
)

// SimpleSummarizer реализует доменный интерфейс эвристикой без LLM.
// Используется в dev-окружении без API-ключа: весь рассказ ложится в
// summary, таймлайн остаётся пустым.
type SimpleSummarizer struct{}

// NewSimple создаёт суммаризатор-заглушку.
func NewSimple() *SimpleSummarizer {
	return &SimpleSummarizer{}
}

var _ domain.RecapSummarizer = (*SimpleSummarizer)(nil)

// SummarizeRecap строит минимальный день из последнего рассказа.
func (s *SimpleSummarizer) SummarizeRecap(_ context.Context, req domain.SummarizeRequest) (domain.CandidateDay, error) {
	summary := ""
	if len(req.Transcripts) > 0 {
		summary = truncate(strings.TrimSpace(req.Transcripts[len(req.Transcripts)-1]), 200)
	}
	return domain.CandidateDay{
		Date:        req.Date,
		Events:      []domain.CandidateEvent{},
		Summary:     summary,
		Suggestions: []string{},
	}, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
