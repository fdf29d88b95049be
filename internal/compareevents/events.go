// Package compareevents publishes Tapcompare results for offline analysis.
package compareevents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is one comparison between a served cached route and a fresh one.
type Event struct {
	ID            string          `json:"id"`
	TS            time.Time       `json:"ts"`
	RequestID     string          `json:"requestId,omitempty"`
	Pair          string          `json:"pair"`
	Strategy      string          `json:"strategy"`
	Threshold     decimal.Decimal `json:"threshold"`
	Amount        decimal.Decimal `json:"amount"`
	ServedRouteID string          `json:"servedRouteId"`
	FreshRouteID  string          `json:"freshRouteId"`
	ServedQuote   decimal.Decimal `json:"servedQuote"`
	FreshQuote    decimal.Decimal `json:"freshQuote"`
	DeltaBps      float64         `json:"deltaBps"`
	SamePath      bool            `json:"samePath"`
	BlockDelta    int64           `json:"blockDelta"`
}

// NewID returns a random event identifier.
func NewID() string { return uuid.NewString() }

type Publisher interface {
	Publish(ev Event)
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close() error  { return nil }
