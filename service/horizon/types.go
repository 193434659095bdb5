package horizon

import "encoding/json"

// RawTransaction is a transaction exactly as Horizon served it: the
// transaction resource and the first page of its operations. It is opaque to
// everything except the normalizer and the raw passthrough route.
type RawTransaction struct {
	Hash       string          `json:"hash"`
	Body       json.RawMessage `json:"body"`
	Operations json.RawMessage `json:"operations"`
}

// RawAccount is an account resource as served by Horizon.
type RawAccount struct {
	Address string          `json:"address"`
	Body    json.RawMessage `json:"body"`
}

// RawFeeStats is the /fee_stats resource as served by Horizon.
type RawFeeStats struct {
	Body json.RawMessage `json:"body"`
}

// RawTransactionPage is one page of /accounts/{id}/transactions.
type RawTransactionPage struct {
	Body json.RawMessage `json:"body"`
}

// PageParams controls pagination of collection endpoints.
type PageParams struct {
	Limit  int
	Cursor string
	Order  string // "asc" or "desc"
}
