package types

// ChainProfile describes the EVM-compatible chain a client is configured
// against (§3). Signer facades use it to detect a chain-id mismatch
// between configuration and what the node actually reports.
type ChainProfile struct {
	ChainID             uint64
	RPCURL              string
	SupportsEIP1559     bool
	DefaultPriorityFee  Wei
}
