package nats

import (
	"time"

	"github.com/brojonat/stellar-explain/service/explain"
)

// ExplanationEvent is published to "explanations.tx.{hash}" the first time a
// transaction is explained.
type ExplanationEvent struct {
	TransactionHash   string `json:"transaction_hash"`
	Successful        bool   `json:"successful"`
	Summary           string `json:"summary"`
	PaymentCount      int    `json:"payment_count"`
	SkippedOperations int    `json:"skipped_operations"`
	Ledger            int64  `json:"ledger,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`

	// Accounts that sent or received a payment, in ledger order, deduplicated.
	Accounts []string `json:"accounts,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromExplanation converts an explanation into an event.
func FromExplanation(exp *explain.TransactionExplanation) *ExplanationEvent {
	event := &ExplanationEvent{
		TransactionHash:   exp.TransactionHash,
		Successful:        exp.Successful,
		Summary:           exp.Summary,
		PaymentCount:      len(exp.PaymentExplanations),
		SkippedOperations: exp.SkippedOperations,
		Ledger:            exp.Ledger,
		CreatedAt:         exp.CreatedAt,
		PublishedAt:       time.Now().UTC(),
	}

	seen := make(map[string]bool)
	for _, p := range exp.PaymentExplanations {
		for _, addr := range []string{p.From, p.To} {
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			event.Accounts = append(event.Accounts, addr)
		}
	}
	return event
}

// Subject returns the subject the event is published on.
func (e *ExplanationEvent) Subject() string {
	return SubjectPrefix + e.TransactionHash
}
