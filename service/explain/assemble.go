package explain

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/stellar-explain/service/apperror"
)

// Assemble combines the explained operations of tx into the final
// explanation. ops must hold one entry per operation, in ledger order.
// feeStats may be nil, in which case only the fee explanation is absent.
func Assemble(tx *Transaction, ops []ExplainedOperation, feeStats *FeeStats, policy FeePolicy) (*TransactionExplanation, error) {
	if tx == nil {
		return nil, apperror.Invalid("no transaction to assemble")
	}
	if len(ops) != len(tx.Operations) {
		return nil, apperror.Invalid("got %d explained operations for %d operations", len(ops), len(tx.Operations))
	}

	payments := make([]PaymentExplanation, 0, len(ops))
	skipped := 0
	for _, op := range ops {
		if op.Skipped || op.Payment == nil {
			skipped++
			continue
		}
		payments = append(payments, *op.Payment)
	}

	var fee *string
	if feeStats != nil {
		s := ExplainFee(tx.FeeCharged, len(tx.Operations), *feeStats, policy)
		fee = &s
	}

	return &TransactionExplanation{
		TransactionHash:     tx.Hash,
		Successful:          tx.Successful,
		Summary:             summarize(tx, payments, skipped),
		PaymentExplanations: payments,
		SkippedOperations:   skipped,
		MemoExplanation:     ExplainMemo(tx.Memo),
		FeeExplanation:      fee,
		CreatedAt:           tx.CreatedAt,
		Ledger:              tx.Ledger,
	}, nil
}

func summarize(tx *Transaction, payments []PaymentExplanation, skipped int) string {
	status := "failed"
	if tx.Successful {
		status = "successful"
	}

	var b strings.Builder
	if len(payments) == 0 {
		fmt.Fprintf(&b, "This %s transaction contains %s, none of which is a payment that can be explained yet.",
			status, plural(len(tx.Operations), "operation", "operations"))
	} else {
		fmt.Fprintf(&b, "This %s transaction contains %s. %s.",
			status, plural(len(payments), "payment", "payments"), payments[0].Summary)
		if skipped > 0 {
			verb := "were"
			if skipped == 1 {
				verb = "was"
			}
			fmt.Fprintf(&b, " %s %s skipped.", plural(skipped, "other operation", "other operations"), verb)
		}
	}

	if confirmed, ok := confirmation(tx.CreatedAt, tx.Ledger); ok {
		b.WriteString(" ")
		b.WriteString(confirmed)
	}
	return b.String()
}

// confirmation describes when the ledger closed. It reads only the record.
func confirmation(createdAt string, ledger int64) (string, bool) {
	if ledger <= 0 || createdAt == "" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return "", false
	}
	t = t.UTC()
	return fmt.Sprintf("It was confirmed on %s at %s UTC (ledger #%d).", t.Format("2006-01-02"), t.Format("15:04"), ledger), true
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
