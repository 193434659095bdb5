package explain

import "fmt"

// Account is a normalized account record.
type Account struct {
	Address     string
	Balances    []Balance
	SignerCount int
	HomeDomain  string
	Flags       AccountFlags
}

// Balance is one trustline or the native balance. Amount is verbatim.
type Balance struct {
	Asset  Asset
	Amount string
}

// AccountFlags are the issuer authorization flags.
type AccountFlags struct {
	AuthRequired        bool
	AuthRevocable       bool
	AuthImmutable       bool
	AuthClawbackEnabled bool
}

// ExplainAccount describes acct. labels may be nil.
func ExplainAccount(acct *Account, labels *LabelDirectory) *AccountExplanation {
	xlm := "0"
	others := 0
	for _, b := range acct.Balances {
		if b.Asset.IsNative() {
			xlm = b.Amount
			continue
		}
		others++
	}

	summary := fmt.Sprintf("This account holds %s XLM", xlm)
	if others > 0 {
		summary += " and " + plural(others, "other asset", "other assets")
	}
	summary += fmt.Sprintf(". It has %s", plural(acct.SignerCount, "signer", "signers"))

	var homeDomain *string
	if acct.HomeDomain != "" {
		d := acct.HomeDomain
		homeDomain = &d
		summary += " and home domain " + d + "."
	} else {
		summary += "."
	}

	var orgName *string
	if name, ok := labels.Resolve(acct.Address); ok {
		orgName = &name
	}

	return &AccountExplanation{
		Address:          acct.Address,
		Summary:          summary,
		XLMBalance:       xlm,
		AssetCount:       others,
		SignerCount:      acct.SignerCount,
		HomeDomain:       homeDomain,
		OrgName:          orgName,
		FlagDescriptions: describeFlags(acct.Flags),
	}
}

func describeFlags(f AccountFlags) []string {
	out := []string{}
	if f.AuthRequired {
		out = append(out, "Auth required: accounts must be authorized before holding this asset.")
	}
	if f.AuthRevocable {
		out = append(out, "Auth revocable: the issuer can freeze this asset in a holder's account.")
	}
	if f.AuthImmutable {
		out = append(out, "Auth immutable: account flags and signers can no longer be changed.")
	}
	if f.AuthClawbackEnabled {
		out = append(out, "Clawback enabled: the issuer can claw back this asset from holders.")
	}
	return out
}

// SummarizeTransactions turns a page of history records into one-line
// summaries. Cursors are the paging tokens of the last and first records.
func SummarizeTransactions(records []TransactionRecord) *AccountTransactionsPage {
	page := &AccountTransactionsPage{Items: make([]AccountTransactionSummary, 0, len(records))}
	for _, r := range records {
		status := "Failed"
		if r.Successful {
			status = "Successful"
		}
		var memo *string
		if r.Memo != nil {
			v := r.Memo.Value
			memo = &v
		}
		page.Items = append(page.Items, AccountTransactionSummary{
			Hash:           r.Hash,
			CreatedAt:      r.CreatedAt,
			Successful:     r.Successful,
			OperationCount: r.OperationCount,
			Memo:           memo,
			Summary:        fmt.Sprintf("%s transaction with %s.", status, plural(r.OperationCount, "operation", "operations")),
		})
	}
	if n := len(records); n > 0 {
		page.PrevCursor = records[0].PagingToken
		page.NextCursor = records[n-1].PagingToken
	}
	return page
}

// TransactionRecord is one entry of an account's transaction history.
type TransactionRecord struct {
	Hash           string
	Successful     bool
	CreatedAt      string
	OperationCount int
	Memo           *Memo
	PagingToken    string
}
