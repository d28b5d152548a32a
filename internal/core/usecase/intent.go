package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/ports"
)

// IntentThresholds partition classifier confidence: at or above High the
// model's single-namespace label stands, between Low and High a single-
// namespace label widens to hybrid, below Low the query is unclear and
// triggers clarification instead of retrieval.
type IntentThresholds struct {
	High float64
	Low  float64
}

type IntentClassifier struct {
	llm        ports.TextGenerator
	thresholds IntentThresholds
}

func NewIntentClassifier(llm ports.TextGenerator, thresholds IntentThresholds) *IntentClassifier {
	if thresholds.High <= 0 {
		thresholds.High = 0.75
	}
	if thresholds.Low <= 0 {
		thresholds.Low = 0.40
	}
	return &IntentClassifier{llm: llm, thresholds: thresholds}
}

// Classify labels the query using the LLM in JSON mode, consulting the last
// turns so follow-ups ("what about for the scheme instead?") resolve against
// context. Pure function of query plus short history; never mutates state.
func (c *IntentClassifier) Classify(ctx context.Context, query domain.Query, recent []domain.ConversationTurn) (domain.Intent, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return domain.Intent{}, domain.WrapError(domain.ErrInvalidQuery, "classify intent", fmt.Errorf("query text is empty"))
	}

	raw, err := c.llm.GenerateJSON(ctx, buildIntentPrompt(text, recent))
	if err != nil {
		return domain.Intent{}, fmt.Errorf("intent model: %w", err)
	}

	return c.resolve(parseIntentResponse(raw)), nil
}

func (c *IntentClassifier) resolve(intent domain.Intent) domain.Intent {
	if intent.Confidence < 0 {
		intent.Confidence = 0
	}
	if intent.Confidence > 1 {
		intent.Confidence = 1
	}
	if intent.Label == domain.IntentUnclear || intent.Confidence < c.thresholds.Low {
		intent.Label = domain.IntentUnclear
		return intent
	}
	if intent.Confidence < c.thresholds.High &&
		(intent.Label == domain.IntentDisease || intent.Label == domain.IntentScheme) {
		intent.Label = domain.IntentHybrid
	}
	return intent
}

func parseIntentResponse(raw string) domain.Intent {
	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.Intent{Label: domain.IntentUnclear}
	}

	label := domain.IntentLabel(strings.ToLower(strings.TrimSpace(parsed.Intent)))
	switch label {
	case domain.IntentDisease, domain.IntentScheme, domain.IntentHybrid, domain.IntentUnclear:
	default:
		return domain.Intent{Label: domain.IntentUnclear}
	}
	return domain.Intent{Label: label, Confidence: parsed.Confidence}
}

func buildIntentPrompt(question string, recent []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString(`You classify farmer questions about citrus cultivation.
Return strict JSON with keys:
intent (one of "disease", "scheme", "hybrid", "unclear") and confidence (number from 0 to 1).
"disease" covers pests, symptoms and treatments. "scheme" covers government
schemes, subsidies and loans. "hybrid" means the question needs both.
No markdown, no extra keys.
`)

	history := recentTurnsTail(recent, 2)
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range history {
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
			b.WriteString(turn.Text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nQuestion:\n")
	b.WriteString(question)
	return b.String()
}

func recentTurnsTail(turns []domain.ConversationTurn, n int) []domain.ConversationTurn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
