package explain

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/brojonat/stellar-explain/service/apperror"
	"github.com/brojonat/stellar-explain/service/horizon"
	"github.com/shopspring/decimal"
)

// Pointer fields let us tell "absent" apart from the zero value.
type rawTransaction struct {
	Hash          *string         `json:"hash"`
	Successful    *bool           `json:"successful"`
	SourceAccount string          `json:"source_account"`
	FeeCharged    json.RawMessage `json:"fee_charged"`
	CreatedAt     string          `json:"created_at"`
	Ledger        int64           `json:"ledger"`
	MemoType      string          `json:"memo_type"`
	Memo          *string         `json:"memo"`
}

type rawOperationsPage struct {
	Embedded *struct {
		Records *[]rawOperation `json:"records"`
	} `json:"_embedded"`
}

type rawOperation struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	SourceAccount string  `json:"source_account"`
	From          string  `json:"from"`
	To            *string `json:"to"`
	Amount        *string `json:"amount"`
	AssetType     string  `json:"asset_type"`
	AssetCode     string  `json:"asset_code"`
	AssetIssuer   string  `json:"asset_issuer"`
}

// Normalize translates a raw Horizon transaction into a Transaction. It fails
// with MalformedUpstreamData when the hash, success flag or operations array
// is missing or mistyped, or when a payment cannot be read. Unknown fields are
// ignored and unknown operation types become KindUnsupported.
func Normalize(raw *horizon.RawTransaction) (*Transaction, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, apperror.Malformed("empty transaction record")
	}

	var rt rawTransaction
	if err := json.Unmarshal(raw.Body, &rt); err != nil {
		return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "decode transaction")
	}
	if rt.Hash == nil || *rt.Hash == "" {
		return nil, apperror.Malformed("transaction record has no hash")
	}
	if rt.Successful == nil {
		return nil, apperror.Malformed("transaction %s has no success flag", *rt.Hash)
	}

	fee, err := parseStroops(rt.FeeCharged)
	if err != nil {
		return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "transaction %s fee_charged", *rt.Hash)
	}

	ops, err := normalizeOperations(raw.Operations)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		Hash:          *rt.Hash,
		Successful:    *rt.Successful,
		SourceAccount: rt.SourceAccount,
		Memo:          normalizeMemo(rt.MemoType, rt.Memo),
		FeeCharged:    fee,
		CreatedAt:     rt.CreatedAt,
		Ledger:        rt.Ledger,
		Operations:    ops,
	}, nil
}

func normalizeOperations(body json.RawMessage) ([]Operation, error) {
	if len(body) == 0 {
		return nil, apperror.Malformed("missing operations page")
	}
	var page rawOperationsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "decode operations")
	}
	if page.Embedded == nil || page.Embedded.Records == nil {
		return nil, apperror.Malformed("operations page has no records array")
	}

	records := *page.Embedded.Records
	ops := make([]Operation, 0, len(records))
	for _, r := range records {
		op, err := normalizeOperation(r)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func normalizeOperation(r rawOperation) (Operation, error) {
	op := Operation{
		ID:            r.ID,
		SourceAccount: r.SourceAccount,
		RawType:       r.Type,
	}

	if r.Type != string(KindPayment) {
		op.Kind = KindUnsupported
		return op, nil
	}

	if r.To == nil || *r.To == "" {
		return Operation{}, apperror.Malformed("payment operation %s has no destination", r.ID)
	}
	if r.Amount == nil {
		return Operation{}, apperror.Malformed("payment operation %s has no amount", r.ID)
	}
	if _, err := decimal.NewFromString(*r.Amount); err != nil {
		return Operation{}, apperror.Wrap(apperror.MalformedUpstreamData, err, "payment operation %s amount %q", r.ID, *r.Amount)
	}

	op.Kind = KindPayment
	op.Payment = &Payment{
		From:   r.From,
		To:     *r.To,
		Amount: *r.Amount,
		Asset: Asset{
			Type:   r.AssetType,
			Code:   r.AssetCode,
			Issuer: r.AssetIssuer,
		},
	}
	return op, nil
}

// normalizeMemo maps Horizon's memo_type/memo pair. "none", an unknown type or
// a missing value all mean no memo.
func normalizeMemo(memoType string, value *string) *Memo {
	if value == nil {
		return nil
	}
	switch t := MemoType(memoType); t {
	case MemoText, MemoID, MemoHash, MemoReturn:
		return &Memo{Type: t, Value: *value}
	default:
		return nil
	}
}

// parseStroops reads an integer stroop amount that Horizon may encode either
// as a JSON string or as a JSON number. Absent or null reads as zero.
func parseStroops(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

type rawAccount struct {
	ID         string        `json:"id"`
	AccountID  string        `json:"account_id"`
	Balances   *[]rawBalance `json:"balances"`
	Signers    *[]struct{}   `json:"signers"`
	NumSigners *int          `json:"num_signers"`
	HomeDomain string        `json:"home_domain"`
	Flags      struct {
		AuthRequired        bool `json:"auth_required"`
		AuthRevocable       bool `json:"auth_revocable"`
		AuthImmutable       bool `json:"auth_immutable"`
		AuthClawbackEnabled bool `json:"auth_clawback_enabled"`
	} `json:"flags"`
}

type rawBalance struct {
	Balance     *string `json:"balance"`
	AssetType   string  `json:"asset_type"`
	AssetCode   string  `json:"asset_code"`
	AssetIssuer string  `json:"asset_issuer"`
}

// NormalizeAccount translates a raw Horizon account. The balances array is
// required; signers may be given as an array or as a count.
func NormalizeAccount(raw *horizon.RawAccount) (*Account, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, apperror.Malformed("empty account record")
	}

	var ra rawAccount
	if err := json.Unmarshal(raw.Body, &ra); err != nil {
		return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "decode account")
	}
	if ra.Balances == nil {
		return nil, apperror.Malformed("account record has no balances array")
	}

	address := ra.AccountID
	if address == "" {
		address = ra.ID
	}
	if address == "" {
		address = raw.Address
	}

	acct := &Account{
		Address:    address,
		HomeDomain: ra.HomeDomain,
		Flags: AccountFlags{
			AuthRequired:        ra.Flags.AuthRequired,
			AuthRevocable:       ra.Flags.AuthRevocable,
			AuthImmutable:       ra.Flags.AuthImmutable,
			AuthClawbackEnabled: ra.Flags.AuthClawbackEnabled,
		},
	}

	switch {
	case ra.Signers != nil:
		acct.SignerCount = len(*ra.Signers)
	case ra.NumSigners != nil:
		acct.SignerCount = *ra.NumSigners
	}

	for _, b := range *ra.Balances {
		if b.Balance == nil {
			return nil, apperror.Malformed("account %s has a balance with no amount", address)
		}
		if _, err := decimal.NewFromString(*b.Balance); err != nil {
			return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "account %s balance %q", address, *b.Balance)
		}
		acct.Balances = append(acct.Balances, Balance{
			Asset:  Asset{Type: b.AssetType, Code: b.AssetCode, Issuer: b.AssetIssuer},
			Amount: *b.Balance,
		})
	}
	return acct, nil
}

type rawFeeStats struct {
	LastLedgerBaseFee json.RawMessage `json:"last_ledger_base_fee"`
	FeeCharged        *struct {
		Min  json.RawMessage `json:"min"`
		Max  json.RawMessage `json:"max"`
		Mode json.RawMessage `json:"mode"`
		P90  json.RawMessage `json:"p90"`
	} `json:"fee_charged"`
}

// NormalizeFeeStats translates Horizon's /fee_stats resource.
func NormalizeFeeStats(raw *horizon.RawFeeStats) (*FeeStats, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, apperror.Malformed("empty fee stats record")
	}

	var rf rawFeeStats
	if err := json.Unmarshal(raw.Body, &rf); err != nil {
		return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "decode fee stats")
	}
	if len(rf.LastLedgerBaseFee) == 0 || rf.FeeCharged == nil {
		return nil, apperror.Malformed("fee stats missing base fee or fee_charged")
	}

	var stats FeeStats
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *int64
	}{
		{"last_ledger_base_fee", rf.LastLedgerBaseFee, &stats.BaseFee},
		{"fee_charged.min", rf.FeeCharged.Min, &stats.MinFee},
		{"fee_charged.max", rf.FeeCharged.Max, &stats.MaxFee},
		{"fee_charged.mode", rf.FeeCharged.Mode, &stats.ModeFee},
		{"fee_charged.p90", rf.FeeCharged.P90, &stats.P90Fee},
	}

	for _, f := range fields {
		v, err := parseStroops(f.raw)
		if err != nil {
			return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "fee stats %s", f.name)
		}
		*f.dst = v
	}
	return &stats, nil
}

type rawTransactionsPage struct {
	Embedded *struct {
		Records *[]rawTransactionRecord `json:"records"`
	} `json:"_embedded"`
}

type rawTransactionRecord struct {
	Hash           *string `json:"hash"`
	Successful     *bool   `json:"successful"`
	CreatedAt      string  `json:"created_at"`
	OperationCount int     `json:"operation_count"`
	MemoType       string  `json:"memo_type"`
	Memo           *string `json:"memo"`
	PagingToken    string  `json:"paging_token"`
}

// NormalizeTransactionPage translates one page of an account's transaction
// history.
func NormalizeTransactionPage(raw *horizon.RawTransactionPage) ([]TransactionRecord, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, apperror.Malformed("empty transactions page")
	}

	var page rawTransactionsPage
	if err := json.Unmarshal(raw.Body, &page); err != nil {
		return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "decode transactions page")
	}
	if page.Embedded == nil || page.Embedded.Records == nil {
		return nil, apperror.Malformed("transactions page has no records array")
	}

	records := make([]TransactionRecord, 0, len(*page.Embedded.Records))
	for _, r := range *page.Embedded.Records {
		if r.Hash == nil || r.Successful == nil {
			return nil, apperror.Malformed("transactions page record missing hash or success flag")
		}
		records = append(records, TransactionRecord{
			Hash:           *r.Hash,
			Successful:     *r.Successful,
			CreatedAt:      r.CreatedAt,
			OperationCount: r.OperationCount,
			Memo:           normalizeMemo(r.MemoType, r.Memo),
			PagingToken:    r.PagingToken,
		})
	}
	return records, nil
}
