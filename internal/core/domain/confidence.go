package domain

// DefaultConfidenceThreshold is the inclusive confidence (0-100) at which a
// structured result is accepted without review.
const DefaultConfidenceThreshold = 70.0

// ConfidenceDecision is the terminal state chosen by the confidence gate.
type ConfidenceDecision string

// Gate decisions.
const (
	DecisionConfident   ConfidenceDecision = "confident"
	DecisionNeedsReview ConfidenceDecision = "needs_review"
)

// GateResult annotates a structured result with the gate decision.
type GateResult struct {
	Decision     ConfidenceDecision `json:"decision"`
	Confidence   float64            `json:"confidence"`
	Threshold    float64            `json:"threshold"`
	Alternatives []any              `json:"alternatives,omitempty"`

	// NeedsInput tells the caller to ask for more information rather
	// than proceed on the primary prediction.
	NeedsInput bool   `json:"needs_input"`
	Reason     string `json:"reason,omitempty"`
}
