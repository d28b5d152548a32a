package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

type fakeTextGenerator struct {
	response    string
	jsonErr     error
	generateErr error
	prompts     []string
	jsonPrompts []string
}

func (f *fakeTextGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.response, nil
}

func (f *fakeTextGenerator) GenerateJSON(_ context.Context, prompt string) (string, error) {
	f.jsonPrompts = append(f.jsonPrompts, prompt)
	if f.jsonErr != nil {
		return "", f.jsonErr
	}
	return f.response, nil
}

func classify(t *testing.T, response string) domain.Intent {
	t.Helper()
	llm := &fakeTextGenerator{response: response}
	classifier := NewIntentClassifier(llm, IntentThresholds{High: 0.75, Low: 0.40})
	intent, err := classifier.Classify(context.Background(), domain.Query{Text: "my orange leaves are curling"}, nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	return intent
}

func TestClassifyHighConfidenceKeepsLabel(t *testing.T) {
	intent := classify(t, `{"intent":"disease","confidence":0.9}`)
	if intent.Label != domain.IntentDisease {
		t.Fatalf("expected disease, got %s", intent.Label)
	}
	if intent.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", intent.Confidence)
	}
}

func TestClassifyMidConfidenceWidensToHybrid(t *testing.T) {
	for _, label := range []string{"disease", "scheme"} {
		intent := classify(t, fmt.Sprintf(`{"intent":%q,"confidence":0.6}`, label))
		if intent.Label != domain.IntentHybrid {
			t.Fatalf("expected %s at 0.6 to widen to hybrid, got %s", label, intent.Label)
		}
	}
}

func TestClassifyMidConfidenceHybridStaysHybrid(t *testing.T) {
	intent := classify(t, `{"intent":"hybrid","confidence":0.5}`)
	if intent.Label != domain.IntentHybrid {
		t.Fatalf("expected hybrid, got %s", intent.Label)
	}
}

func TestClassifyLowConfidenceBecomesUnclear(t *testing.T) {
	intent := classify(t, `{"intent":"disease","confidence":0.2}`)
	if intent.Label != domain.IntentUnclear {
		t.Fatalf("expected unclear below the low threshold, got %s", intent.Label)
	}
}

func TestClassifyThresholdBoundariesInclusive(t *testing.T) {
	// Exactly at High keeps the label; exactly at Low avoids unclear.
	intent := classify(t, `{"intent":"disease","confidence":0.75}`)
	if intent.Label != domain.IntentDisease {
		t.Fatalf("expected disease at the high threshold, got %s", intent.Label)
	}
	intent = classify(t, `{"intent":"disease","confidence":0.40}`)
	if intent.Label != domain.IntentHybrid {
		t.Fatalf("expected hybrid at the low threshold, got %s", intent.Label)
	}
}

func TestClassifyUnclearLabelIgnoresConfidence(t *testing.T) {
	intent := classify(t, `{"intent":"unclear","confidence":0.95}`)
	if intent.Label != domain.IntentUnclear {
		t.Fatalf("expected unclear, got %s", intent.Label)
	}
}

func TestClassifyMalformedResponseFallsBackToUnclear(t *testing.T) {
	for _, raw := range []string{"not json at all", `{"intent":"weather","confidence":0.9}`, ""} {
		intent := classify(t, raw)
		if intent.Label != domain.IntentUnclear {
			t.Fatalf("expected unclear for %q, got %s", raw, intent.Label)
		}
	}
}

func TestClassifyExtractsJSONFromChatter(t *testing.T) {
	intent := classify(t, "Sure! Here is the classification:\n{\"intent\":\"scheme\",\"confidence\":0.85}\nHope that helps.")
	if intent.Label != domain.IntentScheme {
		t.Fatalf("expected scheme, got %s", intent.Label)
	}
}

func TestClassifyClampsConfidence(t *testing.T) {
	intent := classify(t, `{"intent":"disease","confidence":1.7}`)
	if intent.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", intent.Confidence)
	}
}

func TestClassifyEmptyQueryRejected(t *testing.T) {
	classifier := NewIntentClassifier(&fakeTextGenerator{}, IntentThresholds{})
	_, err := classifier.Classify(context.Background(), domain.Query{Text: "   "}, nil)
	if !domain.IsKind(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestClassifyModelErrorPropagates(t *testing.T) {
	llm := &fakeTextGenerator{jsonErr: fmt.Errorf("model down")}
	classifier := NewIntentClassifier(llm, IntentThresholds{})
	_, err := classifier.Classify(context.Background(), domain.Query{Text: "leaf spots"}, nil)
	if err == nil {
		t.Fatal("expected an error when the model fails")
	}
}

func TestClassifyPromptCarriesRecentTurns(t *testing.T) {
	llm := &fakeTextGenerator{response: `{"intent":"scheme","confidence":0.9}`}
	classifier := NewIntentClassifier(llm, IntentThresholds{})

	recent := []domain.ConversationTurn{
		{Role: domain.RoleUser, Text: "oldest turn"},
		{Role: domain.RoleUser, Text: "what subsidy covers drip irrigation?"},
		{Role: domain.RoleAssistant, Text: "PMKSY covers drip irrigation."},
	}
	if _, err := classifier.Classify(context.Background(), domain.Query{Text: "and for citrus?"}, recent); err != nil {
		t.Fatalf("classify: %v", err)
	}

	if len(llm.jsonPrompts) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(llm.jsonPrompts))
	}
	prompt := llm.jsonPrompts[0]
	if !strings.Contains(prompt, "drip irrigation") {
		t.Fatalf("expected prompt to carry recent turns, got:\n%s", prompt)
	}
	if strings.Contains(prompt, "oldest turn") {
		t.Fatalf("expected prompt to keep only the last 2 turns, got:\n%s", prompt)
	}
}
