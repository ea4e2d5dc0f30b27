// Package plan defines the trade plan returned to clients and the validator
// that turns coerced model output into one.
package plan

// Question is one clarification the planner needs from the user.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// Entry is the price zone to enter within.
type Entry struct {
	Zone      [2]float64 `json:"zone"`
	Rationale string     `json:"rationale,omitempty"`
}

// Invalidation is the price at which the idea is wrong.
type Invalidation struct {
	Price     float64 `json:"price"`
	Rationale string  `json:"rationale,omitempty"`
}

// Target is a take-profit expressed as reward:risk, a price, or both.
type Target struct {
	RR    *float64 `json:"rr,omitempty"`
	Price *float64 `json:"price,omitempty"`
	Note  string   `json:"note,omitempty"`
}

const (
	SideLong  = "long"
	SideShort = "short"
)

// Suggestion is a single trade idea.
type Suggestion struct {
	Side         string       `json:"side"`
	Entry        Entry        `json:"entry"`
	Invalidation Invalidation `json:"invalidation"`
	Targets      []Target     `json:"targets"`
}

// TradePlan is the canonical planner output. A well-behaved planner fills
// exactly one of Questions or Suggestions.
type TradePlan struct {
	Meta        map[string]any `json:"meta"`
	Questions   []Question     `json:"questions"`
	Suggestions []Suggestion   `json:"suggestions"`
	Warnings    []string       `json:"warnings"`
}

func (p TradePlan) HasQuestions() bool   { return len(p.Questions) > 0 }
func (p TradePlan) HasSuggestions() bool { return len(p.Suggestions) > 0 }

// Empty reports a plan with neither questions nor suggestions.
func (p TradePlan) Empty() bool { return !p.HasQuestions() && !p.HasSuggestions() }

// Normalized replaces nil collections with empty ones so the JSON form always
// carries arrays and an object.
func (p TradePlan) Normalized() TradePlan {
	if p.Meta == nil {
		p.Meta = map[string]any{}
	}
	if p.Questions == nil {
		p.Questions = []Question{}
	}
	if p.Suggestions == nil {
		p.Suggestions = []Suggestion{}
	}
	if p.Warnings == nil {
		p.Warnings = []string{}
	}
	for i := range p.Suggestions {
		if p.Suggestions[i].Targets == nil {
			p.Suggestions[i].Targets = []Target{}
		}
	}
	return p
}

const (
	RepairQuestionID   = "repair"
	FallbackQuestionID = "fallback"
	RepairWarning      = "Schema validation failed; asked for minimal clarifiers."
	repairQuestionText = "I need risk %, instrument, and timeframe (e.g., 1, BTCUSDT, 15m)."
)

// Repair builds the degraded plan used when model output fails validation.
func Repair() TradePlan {
	return TradePlan{
		Meta:        map[string]any{"mode": "unknown", "confidence": 0.2},
		Questions:   []Question{{ID: RepairQuestionID, Text: repairQuestionText}},
		Suggestions: []Suggestion{},
		Warnings:    []string{RepairWarning},
	}
}
