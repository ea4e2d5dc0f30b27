package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Truths are facts computed in code that the model must not contradict.
type Truths struct {
	Instrument string
	Timeframe  string
	Mode       string
}

const outputContract = `OUTPUT (strict JSON, no markdown, no prose):
{
  "meta": {"instrument": string, "timeframe": string, "mode": "scalp|swing", "confidence": number},
  "questions": [{"id": string, "text": string, "options": [string]}],
  "suggestions": [{
    "side": "long|short",
    "entry": {"zone": [number, number], "rationale": string},
    "invalidation": {"price": number, "rationale": string},
    "targets": [{"rr": number, "price": number, "note": string}]
  }],
  "warnings": [string]
}
Fill exactly one of "questions" or "suggestions". Never populate both; the other must be [].
Every suggestion needs a two-number entry zone, a numeric invalidation price and at least one target.`

// BuildSystemPrompt renders the planner system prompt. The output depends
// only on its arguments.
func BuildSystemPrompt(edge Edge, truths Truths) string {
	var b strings.Builder
	b.WriteString("Return your answer as a single valid JSON object only. Do not include markdown, backticks, or explanations.\n\n")
	b.WriteString("You are an SMC trading coach. Apply ONLY this edge. Never invent rules.\n\n")

	fmt.Fprintf(&b, "EDGE %s (v%d)", edge.ID, edge.Version)
	if s := strings.TrimSpace(edge.Summary); s != "" {
		b.WriteString(": " + s)
	}
	b.WriteString("\nSequence (all steps required, in order):\n")
	for i, step := range edge.Sequence {
		fmt.Fprintf(&b, "%d) %s\n", i+1, strings.TrimSpace(step))
	}
	writeList(&b, "Filters", edge.Filters)
	if inv := strings.TrimSpace(edge.Invalidation); inv != "" {
		b.WriteString("Invalidation: " + inv + "\n")
	}
	writeList(&b, "Targets", edge.Targets)
	if len(edge.Modes) > 0 {
		b.WriteString("Modes:\n")
		keys := make([]string, 0, len(edge.Modes))
		for k := range edge.Modes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, strings.TrimSpace(edge.Modes[k]))
		}
	}

	b.WriteString("\nTRUTHS (authoritative; do not contradict, do not ask for them):\n")
	fmt.Fprintf(&b, "- instrument: %s\n", orUnknown(truths.Instrument))
	fmt.Fprintf(&b, "- timeframe: %s\n", orUnknown(truths.Timeframe))
	fmt.Fprintf(&b, "- mode: %s (computed from timeframe: <=15m is scalp, otherwise swing)\n", orUnknown(truths.Mode))

	b.WriteString("\nHINTS: the user message carries a \"hints\" object that may contain instrument, timeframe and risk_pct.\n")
	b.WriteString("Any field present in hints or truths MUST NOT be asked for again. Use them when drafting the plan.\n")
	b.WriteString("Ask at most one clarifying question, and only when critical information is missing (conflicting signals, unknown direction).\n")
	b.WriteString("Prefer delivering a concrete plan when you have enough context.\n\n")
	b.WriteString(outputContract)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.WriteString("- " + it + "\n")
		}
	}
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
