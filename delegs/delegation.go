package delegs

import "time"

// Delegation represents one signer's currently-effective declaration of a
// routing endpoint. A delegation is immutable once constructed; a later
// declaration by the same signer supersedes it via Merge, it is never
// mutated in place.
type Delegation struct {
	Credential  string `json:"credential"`  // stake credential of the declaring output
	SignerKey   string `json:"signerKey"`   // hex verification key of the declaring party
	TxOutRef    string `json:"txOutRef"`    // "txhash#index" of the declaring output
	CreatedSlot uint64 `json:"createdSlot"` // ledger slot of the declaring transaction
	Endpoint    string `json:"endpoint"`    // routing address the signer delegates to
}

// Supersedes reports whether d wins over other when both declare for the
// same signer key. Greater slot wins; equal slots are broken by the output
// reference so the outcome never depends on discovery order.
func (d Delegation) Supersedes(other Delegation) bool {
	if d.CreatedSlot != other.CreatedSlot {
		return d.CreatedSlot > other.CreatedSlot
	}
	return d.TxOutRef > other.TxOutRef
}

// Registry is the checkpointed scan state: the newest transaction already
// folded in, plus the effective delegation per signer. It is replaced
// atomically each cycle, never partially mutated.
type Registry struct {
	LastTxID    string       `json:"lastTxId"`
	Delegations []Delegation `json:"delegations"`
}

// Snapshot is the published (registry, balances) tuple handed to readers.
// Balances reflect current holdings at BalancesAt and are fully replaced
// each cycle, not merged.
type Snapshot struct {
	Registry   Registry         `json:"registry"`
	Balances   map[string]int64 `json:"balances"`
	RegistryAt time.Time        `json:"registryAt"`
	BalancesAt time.Time        `json:"balancesAt"`
}
