// Package explain turns normalized Stellar ledger records into plain-English
// explanations. Everything in this package is pure: no I/O, no clocks, no
// randomness. The same inputs always produce the same outputs.
package explain

import "fmt"

// MemoType is the kind of memo attached to a transaction.
type MemoType string

const (
	MemoText   MemoType = "text"
	MemoID     MemoType = "id"
	MemoHash   MemoType = "hash"
	MemoReturn MemoType = "return"
)

// Memo is a transaction memo. Value is the upstream string verbatim.
type Memo struct {
	Type  MemoType `json:"type"`
	Value string   `json:"value"`
}

// OperationKind is the closed set of operation kinds the registry dispatches on.
type OperationKind string

const (
	KindPayment     OperationKind = "payment"
	KindUnsupported OperationKind = "unsupported"
)

// Transaction is a normalized transaction. It is not modified after Normalize
// returns it.
type Transaction struct {
	Hash          string      `json:"hash"`
	Successful    bool        `json:"successful"`
	SourceAccount string      `json:"source_account"`
	Memo          *Memo       `json:"memo,omitempty"`
	FeeCharged    int64       `json:"fee_charged"`
	CreatedAt     string      `json:"created_at,omitempty"`
	Ledger        int64       `json:"ledger,omitempty"`
	Operations    []Operation `json:"operations"`
}

// Operation is one operation of a transaction. Payment is set only when Kind
// is KindPayment. RawType keeps the upstream type name for unsupported kinds.
type Operation struct {
	ID            string        `json:"id"`
	Kind          OperationKind `json:"kind"`
	SourceAccount string        `json:"source_account,omitempty"`
	Payment       *Payment      `json:"payment,omitempty"`
	RawType       string        `json:"raw_type"`
}

// Payment is the payload of a payment operation. Amount is the decimal string
// exactly as the ledger reported it.
type Payment struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Asset  Asset  `json:"asset"`
	Amount string `json:"amount"`
}

// Asset identifies the native asset or an issued asset.
type Asset struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Issuer string `json:"issuer,omitempty"`
}

// IsNative reports whether a is lumens.
func (a Asset) IsNative() bool {
	return a.Type == "native"
}

// String renders the asset as a single display token.
func (a Asset) String() string {
	if a.IsNative() {
		return "XLM"
	}
	if a.Code == "" || a.Issuer == "" {
		return "Unknown Asset"
	}
	issuer := a.Issuer
	if len(issuer) > 8 {
		issuer = issuer[:8]
	}
	return fmt.Sprintf("%s (%s...)", a.Code, issuer)
}

// PaymentExplanation explains a single payment operation.
type PaymentExplanation struct {
	OperationID string `json:"operation_id"`
	Summary     string `json:"summary"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

// ExplainedOperation is the registry's verdict on one operation: either a
// payment explanation or Skipped.
type ExplainedOperation struct {
	Payment *PaymentExplanation
	Skipped bool
}

// TransactionExplanation is the complete explanation served for a transaction.
// len(PaymentExplanations)+SkippedOperations always equals the number of
// operations in the source transaction.
type TransactionExplanation struct {
	TransactionHash     string               `json:"transaction_hash"`
	Successful          bool                 `json:"successful"`
	Summary             string               `json:"summary"`
	PaymentExplanations []PaymentExplanation `json:"payment_explanations"`
	SkippedOperations   int                  `json:"skipped_operations"`
	MemoExplanation     *string              `json:"memo_explanation"`
	FeeExplanation      *string              `json:"fee_explanation"`
	CreatedAt           string               `json:"created_at,omitempty"`
	Ledger              int64                `json:"ledger,omitempty"`
}

// AccountExplanation explains the current state of an account.
type AccountExplanation struct {
	Address          string   `json:"address"`
	Summary          string   `json:"summary"`
	XLMBalance       string   `json:"xlm_balance"`
	AssetCount       int      `json:"asset_count"`
	SignerCount      int      `json:"signer_count"`
	HomeDomain       *string  `json:"home_domain"`
	OrgName          *string  `json:"org_name"`
	FlagDescriptions []string `json:"flag_descriptions"`
}

// AccountTransactionSummary is one line of an account's transaction history.
type AccountTransactionSummary struct {
	Hash           string  `json:"hash"`
	CreatedAt      string  `json:"created_at"`
	Successful     bool    `json:"successful"`
	OperationCount int     `json:"operation_count"`
	Memo           *string `json:"memo"`
	Summary        string  `json:"summary"`
}

// AccountTransactionsPage is a page of account history with Horizon paging
// tokens for the neighbouring pages.
type AccountTransactionsPage struct {
	Items      []AccountTransactionSummary `json:"items"`
	NextCursor string                      `json:"next_cursor,omitempty"`
	PrevCursor string                      `json:"prev_cursor,omitempty"`
}
