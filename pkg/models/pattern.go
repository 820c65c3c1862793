package models

import (
	"time"

	"github.com/google/uuid"
)

// PatternStatus is the review lifecycle of a detected pattern.
type PatternStatus string

const (
	PatternDetected    PatternStatus = "detected"
	PatternUnderReview PatternStatus = "under_review"
	PatternConfirmed   PatternStatus = "confirmed"
	PatternDismissed   PatternStatus = "dismissed"
	PatternEscalated   PatternStatus = "escalated"
)

// DetectedPattern is emitted by the realtime rule engine or the batch
// detectors. It pins the exact (RuleID, RuleVersion) that produced it so
// later rule edits never rewrite history.
//
// Per-kind detail fields are tagged variants rather than a free map; the
// Extra map preserves forward compatibility for fields this version does
// not model.
type DetectedPattern struct {
	ID              uuid.UUID     `json:"id"`
	PatternType     PatternType   `json:"patternType"`
	Severity        Severity      `json:"severity"`
	Status          PatternStatus `json:"status"`
	PrimaryEntityID uuid.UUID     `json:"primaryEntityId"`
	TransactionIDs  []uuid.UUID   `json:"transactionIds"`
	Confidence      float64       `json:"confidence"` // [0,1]
	RuleID          uuid.UUID     `json:"ruleId"`
	RuleVersion     int           `json:"ruleVersion"`
	DetectionDate   time.Time     `json:"detectionDate"`
	Indicators      []string      `json:"indicators,omitempty"`

	Structuring *StructuringDetail `json:"structuring,omitempty"`
	Layering    *LayeringDetail    `json:"layering,omitempty"`
	RoundTrip   *RoundTripDetail   `json:"roundTrip,omitempty"`
	RapidMove   *RapidMoveDetail   `json:"rapidMove,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// StructuringDetail describes below-threshold splitting activity.
type StructuringDetail struct {
	Threshold     float64 `json:"threshold"`
	Count         int     `json:"count"`
	TotalAmount   float64 `json:"totalAmount"`
	WindowHours   float64 `json:"windowHours"`
	RoundFraction float64 `json:"roundFraction"` // share of round-hundred amounts
}

// LayeringDetail describes a chain of transfers through intermediaries.
type LayeringDetail struct {
	SourceAccount        string   `json:"sourceAccount"`
	DestinationAccount   string   `json:"destinationAccount"`
	IntermediateEntities []string `json:"intermediateEntities"`
	LayerCount           int      `json:"layerCount"`
}

// RoundTripDetail describes funds returning to their origin.
type RoundTripDetail struct {
	Account        string  `json:"account"`
	Counterparty   string  `json:"counterparty"`
	OutboundAmount float64 `json:"outboundAmount"`
	InboundAmount  float64 `json:"inboundAmount"`
	ReturnRatio    float64 `json:"returnRatio"`
}

// RapidMoveDetail describes in-and-out movement through an account.
type RapidMoveDetail struct {
	Account      string  `json:"account"`
	CreditAmount float64 `json:"creditAmount"`
	DebitAmount  float64 `json:"debitAmount"`
	GapHours     float64 `json:"gapHours"`
}
