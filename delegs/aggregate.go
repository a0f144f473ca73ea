package delegs

// Aggregate joins delegations against a balance snapshot and sums per
// endpoint. A signer absent from the balance map contributes nothing and
// introduces no endpoint key; an explicit zero balance still introduces the
// endpoint with a zero total. Multiple signers delegating to the same
// endpoint all contribute.
func Aggregate(delegations []Delegation, balances map[string]int64) map[string]int64 {
	totals := make(map[string]int64)
	for _, d := range delegations {
		balance, ok := balances[d.SignerKey]
		if !ok {
			continue
		}
		totals[d.Endpoint] += balance
	}
	return totals
}
