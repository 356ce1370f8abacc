// Package explain provides an optional, advisory natural-language
// explanation of a scheduling decision. It is never on the path of a
// Schedule call: internal/skippy/scheduler has no dependency on this
// package. A nil or disabled Explainer, a timeout or an API error yields a
// Response saying no explanation is available; only an empty or
// unparseable reply is returned as an error. Either way the placement
// itself already happened.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/edgerun/skippy/internal/skippy/model"
)

const (
	DefaultModel   = "claude-3-5-haiku-latest"
	DefaultTimeout = 10 * time.Second
)

// Explainer generates advisory explanations of scheduling decisions using
// Claude.
type Explainer struct {
	client  *anthropic.Client
	model   string
	enabled bool
	timeout time.Duration
}

// Config holds Explainer configuration.
type Config struct {
	Enabled bool
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewExplainer creates a new Explainer. A disabled config returns a
// non-nil, disabled Explainer rather than an error, so callers can always
// invoke Explain unconditionally.
func NewExplainer(cfg Config) (*Explainer, error) {
	if !cfg.Enabled {
		return &Explainer{enabled: false}, nil
	}

	client := anthropic.NewClient()

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Explainer{
		client:  &client,
		model:   model,
		enabled: true,
		timeout: timeout,
	}, nil
}

// Request carries the context of one scheduling decision to explain.
type Request struct {
	Pod               model.Pod
	Result            model.SchedulingResult
	CandidateNodes    []*model.Node
	PriorityBreakdown map[string]int // priority name -> weighted score contributed by the winner
}

// Response is the parsed explanation.
type Response struct {
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Caveats    []string `json:"caveats"`
}

// Explain asks Claude to narrate why the scheduler made the decision it
// did. On a nil receiver, a disabled Explainer, a timeout, or any API
// error, it returns a Response describing that the explanation is
// unavailable and a nil error — callers should treat an unexplained
// decision as a normal outcome, not a failure of the scheduler.
func (e *Explainer) Explain(ctx context.Context, req Request) (*Response, error) {
	if e == nil || !e.enabled {
		return &Response{
			Reasoning: "explain is disabled; the placement above was not influenced by this feature",
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := buildExplainPrompt(req)

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(512),
		System: []anthropic.TextBlockParam{
			{Text: explainSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return &Response{
			Reasoning: fmt.Sprintf("explain API error (no explanation available): %v", err),
		}, nil
	}

	return parseExplainResponse(resp)
}

func parseExplainResponse(resp *anthropic.Message) (*Response, error) {
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from explain")
	}

	text := resp.Content[0].Text

	var result Response
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		jsonStart := findJSONStart(text)
		if jsonStart >= 0 {
			jsonEnd := findJSONEnd(text, jsonStart)
			if jsonEnd > jsonStart {
				if err2 := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &result); err2 != nil {
					return nil, fmt.Errorf("parsing explain response: %w (raw: %s)", err2, text)
				}
				return &result, nil
			}
		}
		return nil, fmt.Errorf("parsing explain response: %w (raw: %s)", err, text)
	}
	return &result, nil
}

func findJSONStart(s string) int {
	for i, c := range s {
		if c == '{' {
			return i
		}
	}
	return -1
}

func findJSONEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
