package explain

import "fmt"

// ExplainMemo renders a memo as a sentence. It returns nil when there is no memo.
func ExplainMemo(m *Memo) *string {
	if m == nil {
		return nil
	}

	var s string
	switch m.Type {
	case MemoText:
		s = fmt.Sprintf("This transaction includes a text memo: \"%s\"", m.Value)
	case MemoID:
		s = fmt.Sprintf("This transaction includes an ID memo: %s. This is typically used as a reference number, customer ID, or invoice number.", m.Value)
	case MemoHash:
		s = fmt.Sprintf("This transaction includes a hash memo: %s. This is typically used to reference a document, contract, or other data.", shortHash(m.Value))
	case MemoReturn:
		s = fmt.Sprintf("This transaction includes a return memo: %s. This indicates a refund or return transaction.", shortHash(m.Value))
	default:
		return nil
	}
	return &s
}

func shortHash(h string) string {
	if len(h) <= 20 {
		return h
	}
	return h[:8] + "..." + h[len(h)-8:]
}
