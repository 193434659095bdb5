package explain

import (
	"errors"
	"fmt"
)

// PaymentExplainer explains payment operations.
type PaymentExplainer struct{}

func (PaymentExplainer) Kind() OperationKind {
	return KindPayment
}

func (PaymentExplainer) Explain(op Operation) (PaymentExplanation, error) {
	p := op.Payment
	if p == nil {
		return PaymentExplanation{}, errors.New("payment operation without payment payload")
	}

	from := p.From
	if from == "" {
		from = op.SourceAccount
	}
	asset := p.Asset.String()

	var summary string
	if from != "" {
		summary = fmt.Sprintf("%s sent %s %s to %s", ShortAddress(from), p.Amount, asset, ShortAddress(p.To))
	} else {
		summary = fmt.Sprintf("Sent %s %s to %s", p.Amount, asset, ShortAddress(p.To))
	}

	return PaymentExplanation{
		OperationID: op.ID,
		Summary:     summary,
		From:        from,
		To:          p.To,
		Asset:       asset,
		Amount:      p.Amount,
	}, nil
}

// ShortAddress abbreviates addresses longer than 12 characters to their first
// and last four.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
