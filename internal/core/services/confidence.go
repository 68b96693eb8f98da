package services

import (
	"fmt"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// ConfidenceGate decides whether a structured result can be used as is or
// needs more input. It performs no I/O.
type ConfidenceGate struct {
	// Threshold is the inclusive acceptance score (0-100).
	Threshold float64
}

// NewConfidenceGate creates a gate with the given threshold. Settings apply
// domain.DefaultConfidenceThreshold when none is configured; an explicit 0
// accepts every result that reports a confidence.
func NewConfidenceGate(threshold float64) ConfidenceGate {
	return ConfidenceGate{Threshold: threshold}
}

// Evaluate inspects the confidence and alternatives fields of value.
//
// When the result needs review and schema declares an alternatives field,
// at least one alternative must be present. Otherwise the annotated result
// is returned together with domain.ErrAlternativesMissing.
func (g ConfidenceGate) Evaluate(schema domain.OutputSchema, value map[string]any) (*domain.GateResult, error) {
	threshold := g.Threshold

	confidence, ok := numeric(value[domain.ConfidenceField])
	if !ok {
		return nil, fmt.Errorf("%w: field %q missing or not a number", domain.ErrNoConfidence, domain.ConfidenceField)
	}

	result := &domain.GateResult{
		Decision:   domain.DecisionConfident,
		Confidence: confidence,
		Threshold:  threshold,
	}
	if alts, ok := value[domain.AlternativesField].([]any); ok && len(alts) > 0 {
		result.Alternatives = alts
	}
	if confidence >= threshold {
		return result, nil
	}

	result.Decision = domain.DecisionNeedsReview
	result.NeedsInput = true
	result.Reason = fmt.Sprintf("confidence %g is below threshold %g", confidence, threshold)

	if _, declared := schema.Field(domain.AlternativesField); declared && len(result.Alternatives) == 0 {
		result.Reason += "; no alternatives were provided"
		return result, fmt.Errorf("%w: confidence %g", domain.ErrAlternativesMissing, confidence)
	}
	return result, nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
