package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Money is a decimal amount paired with a 3-letter ISO currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money value from a float amount. Convenience for
// tests and seed data; production ingestion paths parse decimals directly.
func NewMoney(amount float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// TransactionDirection classifies the movement relative to the source account.
type TransactionDirection string

const (
	DirectionCredit   TransactionDirection = "credit"
	DirectionDebit    TransactionDirection = "debit"
	DirectionTransfer TransactionDirection = "transfer"
)

// Transaction is an immutable inbound transaction record. The core never
// mutates transactions; it only reads them during rule evaluation and
// batch pattern analysis.
type Transaction struct {
	ID              uuid.UUID            `json:"id"`
	Amount          Money                `json:"amount"`
	Direction       TransactionDirection `json:"direction"`
	SourceAccount   string               `json:"sourceAccount"`
	TargetAccount   string               `json:"targetAccount"`
	Timestamp       time.Time            `json:"timestamp"`
	Channel         string               `json:"channel"` // wire/ach/cash/card/online
	CounterpartyID  string               `json:"counterpartyId,omitempty"`
	MerchantName    string               `json:"merchantName,omitempty"`
	CountryCode     string               `json:"countryCode,omitempty"`
	IsCash          bool                 `json:"isCash,omitempty"`
	CustomerID      uuid.UUID            `json:"customerId"`
}

// CustomerContext is the read-only sliding-counter view the caller computes
// before invoking the realtime rule engine. The engine owns no state
// between calls; evaluation does no I/O on the hot path.
type CustomerContext struct {
	CustomerID                 uuid.UUID `json:"customerId"`
	RecentBelowThresholdCount  int       `json:"recentBelowThresholdCount"`  // txs in [0.8T, T) within 1 day
	CurrentVelocity            float64   `json:"currentVelocity"`            // txs per hour, trailing window
	BaselineVelocity           float64   `json:"baselineVelocity"`           // long-run txs per hour
	LastCreditAmount           Money     `json:"lastCreditAmount"`
	HoursSinceLastCredit       float64   `json:"hoursSinceLastCredit"`
	DaysSinceLastActivity      float64   `json:"daysSinceLastActivity"`
	CountryOfResidence         string    `json:"countryOfResidence"`
}
