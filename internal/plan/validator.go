package plan

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaSource string

// Outcome tags how a plan was produced.
type Outcome int

const (
	// Valid means the model output matched the schema.
	Valid Outcome = iota
	// Repaired means the model output was replaced by Repair().
	Repaired
)

func (o Outcome) String() string {
	if o == Valid {
		return "valid"
	}
	return "repaired"
}

// Result is the outcome of validating one model response.
type Result struct {
	Plan    TradePlan
	Outcome Outcome
	Reason  string
}

// Validator checks coerced model output against the trade plan schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaSource)); err != nil {
		return nil, fmt.Errorf("add trade plan schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile trade plan schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustValidator panics if the embedded schema does not compile.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateRaw coerces arbitrary model output and validates it.
func (v *Validator) ValidateRaw(raw any) Result {
	candidate, ok := jsonutil.Coerce(raw)
	if !ok {
		return repaired("model output is not a JSON object")
	}
	return v.Validate(candidate)
}

// Validate never fails: invalid input yields a Repaired result.
func (v *Validator) Validate(candidate map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("trade plan validation panic: %v", r)
			res = repaired(fmt.Sprintf("validation panic: %v", r))
		}
	}()
	if candidate == nil {
		return repaired("empty candidate")
	}
	clean, _ := sanitize(candidate).(map[string]any)
	if err := v.schema.Validate(clean); err != nil {
		return repaired(err.Error())
	}
	buf, err := json.Marshal(clean)
	if err != nil {
		return repaired(err.Error())
	}
	var out TradePlan
	if err := json.Unmarshal(buf, &out); err != nil {
		return repaired(err.Error())
	}
	return Result{Plan: out.Normalized(), Outcome: Valid}
}

func repaired(reason string) Result {
	logger.Debugf("trade plan repaired: %s", reason)
	return Result{Plan: Repair(), Outcome: Repaired, Reason: reason}
}

// sanitize fixes the shapes models commonly get slightly wrong: numeric
// strings in price fields, upper-case sides, and null collections.
func sanitize(candidate map[string]any) any {
	out := make(map[string]any, len(candidate))
	for k, val := range candidate {
		out[k] = val
	}
	for _, key := range []string{"questions", "suggestions", "warnings"} {
		if out[key] == nil {
			out[key] = []any{}
		}
	}
	if out["meta"] == nil {
		out["meta"] = map[string]any{}
	}
	if list, ok := out["suggestions"].([]any); ok {
		fixed := make([]any, len(list))
		for i, item := range list {
			fixed[i] = sanitizeSuggestion(item)
		}
		out["suggestions"] = fixed
	}
	return out
}

func sanitizeSuggestion(item any) any {
	s, ok := item.(map[string]any)
	if !ok {
		return item
	}
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	if side, ok := out["side"].(string); ok {
		out["side"] = strings.ToLower(strings.TrimSpace(side))
	}
	if entry, ok := out["entry"].(map[string]any); ok {
		e := copyMap(entry)
		if zone, ok := e["zone"].([]any); ok {
			nums := make([]any, len(zone))
			for i, z := range zone {
				nums[i] = numeric(z)
			}
			e["zone"] = nums
		}
		out["entry"] = e
	}
	if inv, ok := out["invalidation"].(map[string]any); ok {
		i := copyMap(inv)
		i["price"] = numeric(i["price"])
		out["invalidation"] = i
	}
	if targets, ok := out["targets"].([]any); ok {
		fixed := make([]any, len(targets))
		for idx, tg := range targets {
			m, ok := tg.(map[string]any)
			if !ok {
				fixed[idx] = tg
				continue
			}
			c := copyMap(m)
			for _, key := range []string{"rr", "price"} {
				if val, present := c[key]; present {
					if val == nil {
						delete(c, key)
						continue
					}
					c[key] = numeric(val)
				}
			}
			fixed[idx] = c
		}
		out["targets"] = fixed
	}
	return out
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func numeric(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if num, err := strconv.ParseFloat(s, 64); err == nil {
		return num
	}
	return v
}
