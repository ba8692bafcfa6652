// Package usage provides token usage value types and validation.
// All functions are pure - no side effects.
package usage

import (
	"fmt"
	"math"
)

// RawUsage carries token counts as reported by a model provider.
// Values are pointers because providers may omit any of them; a raw
// total is accepted but never trusted (see NewTotals).
type RawUsage struct {
	InputTokens  *float64
	OutputTokens *float64
	TotalTokens  *float64
}

// RawFromInts builds a RawUsage from provider-reported integer counts.
func RawFromInts(input, output, total int64) RawUsage {
	in := float64(input)
	out := float64(output)
	tot := float64(total)
	return RawUsage{InputTokens: &in, OutputTokens: &out, TotalTokens: &tot}
}

// Totals is the canonical token count record (immutable value type).
// TotalTokens is always InputTokens + OutputTokens.
type Totals struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// InvalidUsageValueError reports a token count that is not a
// non-negative integer.
type InvalidUsageValueError struct {
	Field string
	Value float64
}

func (e *InvalidUsageValueError) Error() string {
	return fmt.Sprintf("invalid %s: expected non-negative integer, got %v", e.Field, e.Value)
}

// NewTotals validates raw provider counts into canonical Totals.
// Absent values default to zero. Present values must be finite,
// non-negative integers. The raw TotalTokens is discarded and
// recomputed as input+output, which guards against inconsistent
// upstream data.
func NewTotals(raw RawUsage) (Totals, error) {
	input, err := nonNegInt("inputTokens", raw.InputTokens)
	if err != nil {
		return Totals{}, err
	}
	output, err := nonNegInt("outputTokens", raw.OutputTokens)
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
	}, nil
}

func nonNegInt(field string, v *float64) (int64, error) {
	if v == nil {
		return 0, nil
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
		return 0, &InvalidUsageValueError{Field: field, Value: f}
	}
	return int64(f), nil
}
