package horizontest

// Sample ledger data shaped like Horizon responses.
const (
	SampleHash     = "3389e9f0f1a65f19736cacf544c2e825313e8447f569233bb8db39aa607c8889"
	SampleSender   = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"
	SampleReceiver = "GBSGKZTHNBUWU23MNVXG64DROJZXI5LWO54HS6T3PR6X474AQGBIGHPW"
	SampleIssuer   = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"

	SampleTransaction = `{
		"id": "` + SampleHash + `",
		"paging_token": "215271300423278592",
		"successful": true,
		"hash": "` + SampleHash + `",
		"ledger": 50123456,
		"created_at": "2024-01-15T14:32:00Z",
		"source_account": "` + SampleSender + `",
		"fee_charged": "100",
		"max_fee": "100000",
		"operation_count": 1,
		"memo_type": "text",
		"memo": "rent"
	}`

	SampleOperations = `{"_embedded":{"records":[{
		"id": "215271300423278593",
		"paging_token": "215271300423278593",
		"transaction_successful": true,
		"source_account": "` + SampleSender + `",
		"type": "payment",
		"type_i": 1,
		"transaction_hash": "` + SampleHash + `",
		"asset_type": "native",
		"from": "` + SampleSender + `",
		"to": "` + SampleReceiver + `",
		"amount": "100.0000000"
	}]}}`

	SampleFeeStats = `{
		"last_ledger": "50123456",
		"last_ledger_base_fee": "100",
		"ledger_capacity_usage": "0.42",
		"fee_charged": {"max":"5000","min":"100","mode":"100","p10":"100","p50":"100","p90":"250","p99":"3000"}
	}`

	SampleAccount = `{
		"id": "` + SampleIssuer + `",
		"account_id": "` + SampleIssuer + `",
		"sequence": "1234",
		"home_domain": "centre.io",
		"balances": [
			{"balance":"12.5000000","asset_type":"credit_alphanum4","asset_code":"USDC","asset_issuer":"` + SampleIssuer + `"},
			{"balance":"104.5000000","asset_type":"native"}
		],
		"signers": [{"key":"` + SampleIssuer + `","weight":1,"type":"ed25519_public_key"}],
		"flags": {"auth_required":false,"auth_revocable":true,"auth_immutable":false,"auth_clawback_enabled":false}
	}`

	SampleAccountTransactions = `{"_embedded":{"records":[
		{"hash":"` + SampleHash + `","successful":true,"created_at":"2024-01-15T14:32:00Z","operation_count":1,"memo_type":"text","memo":"rent","paging_token":"215271300423278592"},
		{"hash":"aa00000000000000000000000000000000000000000000000000000000000000","successful":false,"created_at":"2024-01-14T09:00:00Z","operation_count":3,"memo_type":"none","paging_token":"215271300423270000"}
	]}}`
)
