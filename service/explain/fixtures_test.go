package explain

import (
	"testing"

	"github.com/brojonat/stellar-explain/service/horizon"
)

const (
	testHash     = "3389e9f0f1a65f19736cacf544c2e825313e8447f569233bb8db39aa607c8889"
	testSender   = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"
	testDest     = "GBSGKZTHNBUWU23MNVXG64DROJZXI5LWO54HS6T3PR6X474AQGBIGHPW"
	testIssuer   = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	txBodyNoMemo = `{
		"hash": "` + testHash + `",
		"successful": true,
		"source_account": "` + testSender + `",
		"fee_charged": "100",
		"created_at": "2024-01-15T14:32:00Z",
		"ledger": 50123456,
		"memo_type": "none",
		"paging_token": "215271300423278592"
	}`
	nativePaymentOps = `{"_embedded":{"records":[{
		"id": "215271300423278593",
		"type": "payment",
		"type_i": 1,
		"source_account": "` + testSender + `",
		"from": "` + testSender + `",
		"to": "` + testDest + `",
		"asset_type": "native",
		"amount": "100.0000000"
	}]}}`
	mixedOps = `{"_embedded":{"records":[
		{"id":"1","type":"create_account","source_account":"` + testSender + `","account":"` + testDest + `","starting_balance":"5.0000000"},
		{"id":"2","type":"payment","from":"` + testSender + `","to":"` + testDest + `","asset_type":"credit_alphanum4","asset_code":"USDC","asset_issuer":"` + testIssuer + `","amount":"25.5000000"},
		{"id":"3","type":"manage_sell_offer","source_account":"` + testSender + `"}
	]}}`
)

func rawTx(t *testing.T, body, ops string) *horizon.RawTransaction {
	t.Helper()
	return &horizon.RawTransaction{Hash: testHash, Body: []byte(body), Operations: []byte(ops)}
}
