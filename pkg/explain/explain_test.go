package explain

import (
	"context"
	"strings"
	"testing"

	"github.com/edgerun/skippy/internal/skippy/model"
)

func TestExplain_DisabledReturnsUnavailableResponse(t *testing.T) {
	e, err := NewExplainer(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewExplainer: %v", err)
	}

	resp, err := e.Explain(context.Background(), Request{Pod: model.Pod{Name: "p1"}})
	if err != nil {
		t.Fatalf("Explain() error = %v, want nil", err)
	}
	if resp.Summary != "" {
		t.Errorf("Summary = %q, want empty when disabled", resp.Summary)
	}
	if resp.Reasoning == "" {
		t.Error("Reasoning should explain why no explanation is available")
	}
}

func TestExplain_NilReceiverIsSafe(t *testing.T) {
	var e *Explainer
	resp, err := e.Explain(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Explain() on nil receiver error = %v, want nil", err)
	}
	if resp == nil {
		t.Fatal("Explain() on nil receiver returned nil response")
	}
}

func TestFindJSONStartAndEnd(t *testing.T) {
	text := "here is some preamble\n```json\n{\"summary\": \"ok\", \"nested\": {\"a\": 1}}\n```"
	start := findJSONStart(text)
	if start < 0 {
		t.Fatal("findJSONStart returned -1")
	}
	end := findJSONEnd(text, start)
	if end <= start {
		t.Fatal("findJSONEnd did not find a matching close brace")
	}
	extracted := text[start : end+1]
	if extracted != `{"summary": "ok", "nested": {"a": 1}}` {
		t.Errorf("extracted = %q", extracted)
	}
}

func TestBuildExplainPrompt_IncludesPodAndOutcome(t *testing.T) {
	req := Request{
		Pod:    model.Pod{Name: "p1", Namespace: "ns"},
		Result: model.SchedulingResult{SuggestedHost: &model.Node{Name: "n1"}, FeasibleNodes: 2},
	}
	prompt := buildExplainPrompt(req)
	if !strings.Contains(prompt, "ns/p1") || !strings.Contains(prompt, "n1") {
		t.Errorf("prompt missing pod or node identity: %s", prompt)
	}
}
