package explain

import (
	"fmt"
	"strings"
)

const explainSystemPrompt = `You are an assistant that explains scheduling decisions made by Skippy, an edge/cloud container scheduler.

You are NOT making the decision — it has already been made and committed. Your only job is to narrate, in plain language, why the chosen node (or the absence of one) is the reasonable outcome given the candidate nodes and the priority scores that were computed.

Key principles:
1. Be faithful to the numbers given. Do not invent resource figures, bandwidth values, or labels not present in the request.
2. If no node was feasible, explain in terms of the predicate that most plausibly excluded the candidates (resource fit is the only predicate currently evaluated).
3. Keep the explanation short: a sentence or two of summary, then the reasoning.
4. Note any caveat that the weighted-score breakdown doesn't fully capture — e.g. ties broken by node order, or priorities that scored identically across candidates.

Respond in the following JSON format:
{
    "summary": "one-sentence takeaway",
    "confidence": 0.0-1.0,
    "reasoning": "a short paragraph",
    "caveats": ["caveat1", "caveat2"]
}`

func buildExplainPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("## Scheduling Decision\n\n")
	b.WriteString(fmt.Sprintf("**Pod:** %s/%s\n\n", req.Pod.Namespace, req.Pod.Name))

	b.WriteString("### Outcome\n")
	if req.Result.SuggestedHost != nil {
		b.WriteString(fmt.Sprintf("- Chosen node: %s\n", req.Result.SuggestedHost.Name))
	} else {
		b.WriteString("- No feasible node was found\n")
	}
	b.WriteString(fmt.Sprintf("- Feasible nodes considered: %d\n", req.Result.FeasibleNodes))
	if len(req.Result.NeededImages) > 0 {
		b.WriteString(fmt.Sprintf("- Images still needing a pull: %s\n", strings.Join(req.Result.NeededImages, ", ")))
	}
	b.WriteString("\n")

	if len(req.CandidateNodes) > 0 {
		b.WriteString("### Candidate Nodes\n")
		for _, n := range req.CandidateNodes {
			b.WriteString(fmt.Sprintf("- %s: allocatable cpu=%dm memory=%dB\n", n.Name, n.Allocatable.CPUMillis, n.Allocatable.Memory))
		}
		b.WriteString("\n")
	}

	if len(req.PriorityBreakdown) > 0 {
		b.WriteString("### Priority Score Breakdown (winner)\n")
		for name, score := range req.PriorityBreakdown {
			b.WriteString(fmt.Sprintf("- %s: %d\n", name, score))
		}
		b.WriteString("\n")
	}

	b.WriteString("Explain this outcome.\n")

	return b.String()
}
