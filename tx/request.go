package tx

import (
	"fmt"

	"github.com/arcsign/evmrpc/types"
)

// TransactionRequest is the builder-populated, partially-specified input
// to the signer facade (§3, §4.5): a caller fills in only what it knows
// (to, value, data, a fee preference) and leaves gas/fee/nonce fields for
// the submitter to default via the gas strategy (§4.4) and a node round
// trip. Optional fields are nil until resolved; Value/Data default to
// their Go zero values (zero Wei, empty HexData) per §4.5 step 4.
type TransactionRequest struct {
	From                 *types.Address
	To                   *types.Address
	Value                types.Wei
	GasLimit             *uint64
	GasPrice             *types.Wei
	MaxPriorityFeePerGas *types.Wei
	MaxFeePerGas         *types.Wei
	Nonce                *uint64
	Data                 types.HexData
	IsEIP1559            bool
	AccessList           types.AccessList
}

// Validate enforces §3's fee-field invariant: a request must not carry
// both a legacy gasPrice and EIP-1559 fee fields, and the fields present
// must agree with IsEIP1559.
func (r TransactionRequest) Validate() error {
	has1559Fields := r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil
	hasLegacyField := r.GasPrice != nil

	if has1559Fields && hasLegacyField {
		return fmt.Errorf("transaction request cannot carry both gasPrice and EIP-1559 fee fields")
	}
	if r.IsEIP1559 && hasLegacyField {
		return fmt.Errorf("transaction request is marked EIP-1559 but carries a legacy gasPrice")
	}
	if !r.IsEIP1559 && has1559Fields {
		return fmt.Errorf("transaction request carries EIP-1559 fee fields but is not marked EIP-1559")
	}
	return nil
}
