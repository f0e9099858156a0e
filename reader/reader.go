// Package reader implements the typed read facade (component C3): one
// method per node read call, each encoding request parameters and
// decoding the hex-wire response into the types package's values.
// Grounded on the teacher's ethereum/rpc.go RPCHelper, generalized from
// a handful of ad hoc helpers into full node read-call coverage and
// routed through a retry.Do governor instead of being called bare.
package reader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/arcsign/evmrpc/retry"
	"github.com/arcsign/evmrpc/rpc"
	"github.com/arcsign/evmrpc/types"
)

// Reader is the read-only facade over a Provider (§4.3).
type Reader struct {
	provider rpc.Provider
	policy   retry.Policy
}

// New constructs a Reader. A zero Policy uses retry.DefaultPolicy().
func New(provider rpc.Provider, policy retry.Policy) *Reader {
	return &Reader{provider: provider, policy: policy}
}

func (r *Reader) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (json.RawMessage, error) {
		return r.provider.Send(ctx, method, params)
	})
}

// ChainID returns the node's configured chain id (§4.3).
func (r *Reader) ChainID(ctx context.Context) (uint64, error) {
	raw, err := r.call(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	return decodeUint64(raw)
}

// BlockNumber returns the latest block number known to the node.
func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := r.call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	return decodeUint64(raw)
}

// Balance reads the wei balance of addr at the given block (§4.3).
func (r *Reader) Balance(ctx context.Context, addr types.Address, block types.BlockTag) (types.Wei, error) {
	raw, err := r.call(ctx, "eth_getBalance", addr.String(), block.String())
	if err != nil {
		return types.ZeroWei, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.ZeroWei, fmt.Errorf("malformed balance response: %w", err)
	}
	return types.ParseWei(hex)
}

// TransactionCount reads addr's nonce at the given block.
func (r *Reader) TransactionCount(ctx context.Context, addr types.Address, block types.BlockTag) (uint64, error) {
	raw, err := r.call(ctx, "eth_getTransactionCount", addr.String(), block.String())
	if err != nil {
		return 0, err
	}
	return decodeUint64(raw)
}

// Code reads the bytecode deployed at addr.
func (r *Reader) Code(ctx context.Context, addr types.Address, block types.BlockTag) (types.HexData, error) {
	raw, err := r.call(ctx, "eth_getCode", addr.String(), block.String())
	if err != nil {
		return types.EmptyHexData, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.EmptyHexData, fmt.Errorf("malformed code response: %w", err)
	}
	return types.ParseHexData(hex)
}

// StorageAt reads a single storage slot.
func (r *Reader) StorageAt(ctx context.Context, addr types.Address, slot types.Hash, block types.BlockTag) (types.Hash, error) {
	raw, err := r.call(ctx, "eth_getStorageAt", addr.String(), slot.String(), block.String())
	if err != nil {
		return types.Hash{}, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.Hash{}, fmt.Errorf("malformed storage response: %w", err)
	}
	return types.ParseHash(hex)
}

// GasPrice returns the node's suggested legacy gas price.
func (r *Reader) GasPrice(ctx context.Context) (types.Wei, error) {
	raw, err := r.call(ctx, "eth_gasPrice")
	if err != nil {
		return types.ZeroWei, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.ZeroWei, fmt.Errorf("malformed gas price response: %w", err)
	}
	return types.ParseWei(hex)
}

// MaxPriorityFeePerGas returns the node's suggested EIP-1559 tip.
func (r *Reader) MaxPriorityFeePerGas(ctx context.Context) (types.Wei, error) {
	raw, err := r.call(ctx, "eth_maxPriorityFeePerGas")
	if err != nil {
		return types.ZeroWei, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.ZeroWei, fmt.Errorf("malformed priority fee response: %w", err)
	}
	return types.ParseWei(hex)
}

// BlobBaseFee returns the current EIP-4844 blob base fee.
func (r *Reader) BlobBaseFee(ctx context.Context) (types.Wei, error) {
	raw, err := r.call(ctx, "eth_blobBaseFee")
	if err != nil {
		return types.ZeroWei, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.ZeroWei, fmt.Errorf("malformed blob base fee response: %w", err)
	}
	return types.ParseWei(hex)
}

// Block is the subset of eth_getBlockBy* fields the reader surfaces.
type Block struct {
	Number       uint64
	Hash         types.Hash
	ParentHash   types.Hash
	Timestamp    uint64
	BaseFeePerGas types.Wei
	Transactions []types.Hash
}

type wireBlock struct {
	Number        string   `json:"number"`
	Hash          string   `json:"hash"`
	ParentHash    string   `json:"parentHash"`
	Timestamp     string   `json:"timestamp"`
	BaseFeePerGas string   `json:"baseFeePerGas"`
	Transactions  []string `json:"transactions"`
}

func (wb wireBlock) toBlock() (Block, error) {
	var b Block
	var err error
	if b.Number, err = hexutil.DecodeUint64(wb.Number); err != nil {
		return b, fmt.Errorf("malformed block number: %w", err)
	}
	if b.Hash, err = types.ParseHash(wb.Hash); err != nil {
		return b, err
	}
	if b.ParentHash, err = types.ParseHash(wb.ParentHash); err != nil {
		return b, err
	}
	if b.Timestamp, err = hexutil.DecodeUint64(wb.Timestamp); err != nil {
		return b, fmt.Errorf("malformed block timestamp: %w", err)
	}
	if wb.BaseFeePerGas != "" {
		if b.BaseFeePerGas, err = types.ParseWei(wb.BaseFeePerGas); err != nil {
			return b, err
		}
	}
	for _, h := range wb.Transactions {
		hash, err := types.ParseHash(h)
		if err != nil {
			return b, err
		}
		b.Transactions = append(b.Transactions, hash)
	}
	return b, nil
}

// BlockByNumber reads a block by its reference (§4.3; never silently
// converts a symbolic tag to a number or vice versa).
func (r *Reader) BlockByNumber(ctx context.Context, block types.BlockTag, fullTx bool) (Block, error) {
	raw, err := r.call(ctx, "eth_getBlockByNumber", block.String(), fullTx)
	if err != nil {
		return Block{}, err
	}
	return decodeBlockOrNotFound(raw, "block")
}

// BlockByHash reads a block by hash.
func (r *Reader) BlockByHash(ctx context.Context, hash types.Hash, fullTx bool) (Block, error) {
	raw, err := r.call(ctx, "eth_getBlockByHash", hash.String(), fullTx)
	if err != nil {
		return Block{}, err
	}
	return decodeBlockOrNotFound(raw, "block")
}

func decodeBlockOrNotFound(raw json.RawMessage, what string) (Block, error) {
	if isJSONNull(raw) {
		return Block{}, fmt.Errorf("%s not found", what)
	}
	var wb wireBlock
	if err := json.Unmarshal(raw, &wb); err != nil {
		return Block{}, fmt.Errorf("malformed %s response: %w", what, err)
	}
	return wb.toBlock()
}

// Receipt is the subset of eth_getTransactionReceipt fields surfaced.
type Receipt struct {
	TransactionHash types.Hash
	BlockNumber     uint64
	BlockHash       types.Hash
	Status          bool
	GasUsed         uint64
	ContractAddress *types.Address
	Logs            []Log
}

// Log is a single eth_getLogs / receipt log entry.
type Log struct {
	Address types.Address
	Topics  []types.Hash
	Data    types.HexData
	BlockNumber uint64
	TxHash  types.Hash
	LogIndex uint64
	Removed bool
}

type wireLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

func (wl wireLog) toLog() (Log, error) {
	var l Log
	var err error
	if l.Address, err = types.ParseAddress(wl.Address); err != nil {
		return l, err
	}
	for _, t := range wl.Topics {
		h, err := types.ParseHash(t)
		if err != nil {
			return l, err
		}
		l.Topics = append(l.Topics, h)
	}
	if l.Data, err = types.ParseHexData(wl.Data); err != nil {
		return l, err
	}
	if wl.BlockNumber != "" {
		if l.BlockNumber, err = hexutil.DecodeUint64(wl.BlockNumber); err != nil {
			return l, fmt.Errorf("malformed log block number: %w", err)
		}
	}
	if l.TxHash, err = types.ParseHash(wl.TxHash); err != nil {
		return l, err
	}
	if wl.LogIndex != "" {
		if l.LogIndex, err = hexutil.DecodeUint64(wl.LogIndex); err != nil {
			return l, fmt.Errorf("malformed log index: %w", err)
		}
	}
	l.Removed = wl.Removed
	return l, nil
}

type wireReceipt struct {
	TransactionHash string     `json:"transactionHash"`
	BlockNumber     string     `json:"blockNumber"`
	BlockHash       string     `json:"blockHash"`
	Status          string     `json:"status"`
	GasUsed         string     `json:"gasUsed"`
	ContractAddress string     `json:"contractAddress"`
	Logs            []wireLog  `json:"logs"`
}

// TransactionReceipt fetches a transaction's receipt. A nil node result
// (not yet mined) is surfaced as an error per §4.3's "null results are
// errors, not zero values" invariant.
func (r *Reader) TransactionReceipt(ctx context.Context, hash types.Hash) (Receipt, error) {
	raw, err := r.call(ctx, "eth_getTransactionReceipt", hash.String())
	if err != nil {
		return Receipt{}, err
	}
	if isJSONNull(raw) {
		return Receipt{}, fmt.Errorf("transaction %s not yet mined", hash)
	}
	var wr wireReceipt
	if err := json.Unmarshal(raw, &wr); err != nil {
		return Receipt{}, fmt.Errorf("malformed receipt response: %w", err)
	}

	var rcpt Receipt
	if rcpt.TransactionHash, err = types.ParseHash(wr.TransactionHash); err != nil {
		return Receipt{}, err
	}
	if rcpt.BlockNumber, err = hexutil.DecodeUint64(wr.BlockNumber); err != nil {
		return Receipt{}, fmt.Errorf("malformed receipt block number: %w", err)
	}
	if rcpt.BlockHash, err = types.ParseHash(wr.BlockHash); err != nil {
		return Receipt{}, err
	}
	rcpt.Status = wr.Status == "0x1"
	if rcpt.GasUsed, err = hexutil.DecodeUint64(wr.GasUsed); err != nil {
		return Receipt{}, fmt.Errorf("malformed gas used: %w", err)
	}
	if wr.ContractAddress != "" {
		addr, err := types.ParseAddress(wr.ContractAddress)
		if err != nil {
			return Receipt{}, err
		}
		rcpt.ContractAddress = &addr
	}
	for _, wl := range wr.Logs {
		l, err := wl.toLog()
		if err != nil {
			return Receipt{}, err
		}
		rcpt.Logs = append(rcpt.Logs, l)
	}
	return rcpt, nil
}

// LogFilter is the eth_getLogs query parameter shape.
type LogFilter struct {
	FromBlock types.BlockTag
	ToBlock   types.BlockTag
	Address   []types.Address
	Topics    [][]types.Hash
}

// Logs runs an eth_getLogs query.
func (r *Reader) Logs(ctx context.Context, filter LogFilter) ([]Log, error) {
	params := map[string]interface{}{
		"fromBlock": filter.FromBlock.String(),
		"toBlock":   filter.ToBlock.String(),
	}
	if len(filter.Address) == 1 {
		params["address"] = filter.Address[0].String()
	} else if len(filter.Address) > 1 {
		addrs := make([]string, len(filter.Address))
		for i, a := range filter.Address {
			addrs[i] = a.String()
		}
		params["address"] = addrs
	}
	if len(filter.Topics) > 0 {
		topics := make([][]string, len(filter.Topics))
		for i, group := range filter.Topics {
			row := make([]string, len(group))
			for j, h := range group {
				row[j] = h.String()
			}
			topics[i] = row
		}
		params["topics"] = topics
	}

	raw, err := r.call(ctx, "eth_getLogs", params)
	if err != nil {
		return nil, err
	}
	var wireLogs []wireLog
	if err := json.Unmarshal(raw, &wireLogs); err != nil {
		return nil, fmt.Errorf("malformed logs response: %w", err)
	}
	logs := make([]Log, len(wireLogs))
	for i, wl := range wireLogs {
		logs[i], err = wl.toLog()
		if err != nil {
			return nil, err
		}
	}
	return logs, nil
}

// CallRequest is the eth_call / eth_estimateGas message object.
type CallRequest struct {
	From     *types.Address
	To       *types.Address
	Gas      uint64
	GasPrice types.Wei
	Value    types.Wei
	Data     types.HexData
}

func (c CallRequest) toParams() map[string]interface{} {
	p := map[string]interface{}{}
	if c.From != nil {
		p["from"] = c.From.String()
	}
	if c.To != nil {
		p["to"] = c.To.String()
	}
	if c.Gas > 0 {
		p["gas"] = hexutil.EncodeUint64(c.Gas)
	}
	if !c.GasPrice.IsZero() {
		p["gasPrice"] = c.GasPrice.String()
	}
	if !c.Value.IsZero() {
		p["value"] = c.Value.String()
	}
	if len(c.Data) > 0 {
		p["data"] = c.Data.String()
	}
	return p
}

// Call executes eth_call against block, returning the raw return data.
// A revert is NOT decoded here: decoding requires the §6 RevertDecoder
// capability, which lives in the tx package alongside the signer facade.
func (r *Reader) Call(ctx context.Context, call CallRequest, block types.BlockTag) (types.HexData, error) {
	raw, err := r.call(ctx, "eth_call", call.toParams(), block.String())
	if err != nil {
		return types.EmptyHexData, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.EmptyHexData, fmt.Errorf("malformed call response: %w", err)
	}
	return types.ParseHexData(hex)
}

// EstimateGas runs eth_estimateGas.
func (r *Reader) EstimateGas(ctx context.Context, call CallRequest) (uint64, error) {
	raw, err := r.call(ctx, "eth_estimateGas", call.toParams())
	if err != nil {
		return 0, err
	}
	return decodeUint64(raw)
}

// FeeHistoryResult is the decoded eth_feeHistory response.
type FeeHistoryResult struct {
	OldestBlock   uint64
	BaseFeePerGas []types.Wei
	Reward        [][]types.Wei
}

// FeeHistory runs eth_feeHistory over blockCount blocks ending at
// newestBlock, at the given reward percentiles.
func (r *Reader) FeeHistory(ctx context.Context, blockCount uint64, newestBlock types.BlockTag, percentiles []float64) (FeeHistoryResult, error) {
	raw, err := r.call(ctx, "eth_feeHistory", hexutil.EncodeUint64(blockCount), newestBlock.String(), percentiles)
	if err != nil {
		return FeeHistoryResult{}, err
	}

	var wire struct {
		OldestBlock   string     `json:"oldestBlock"`
		BaseFeePerGas []string   `json:"baseFeePerGas"`
		Reward        [][]string `json:"reward"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return FeeHistoryResult{}, fmt.Errorf("malformed fee history response: %w", err)
	}

	var result FeeHistoryResult
	if result.OldestBlock, err = hexutil.DecodeUint64(wire.OldestBlock); err != nil {
		return FeeHistoryResult{}, fmt.Errorf("malformed oldest block: %w", err)
	}
	for _, h := range wire.BaseFeePerGas {
		w, err := types.ParseWei(h)
		if err != nil {
			return FeeHistoryResult{}, err
		}
		result.BaseFeePerGas = append(result.BaseFeePerGas, w)
	}
	for _, row := range wire.Reward {
		var parsedRow []types.Wei
		for _, h := range row {
			w, err := types.ParseWei(h)
			if err != nil {
				return FeeHistoryResult{}, err
			}
			parsedRow = append(parsedRow, w)
		}
		result.Reward = append(result.Reward, parsedRow)
	}
	return result, nil
}

// SimulateV1 runs eth_simulateV1, a multi-call batch simulation (named
// in scope but underspecified in body; supplemented here). Each entry's
// raw result or revert data is returned undecoded, matching Call's
// division of labor with the tx package's RevertDecoder.
func (r *Reader) SimulateV1(ctx context.Context, calls []CallRequest, block types.BlockTag) ([]types.HexData, error) {
	paramCalls := make([]map[string]interface{}, len(calls))
	for i, c := range calls {
		paramCalls[i] = c.toParams()
	}
	payload := map[string]interface{}{
		"blockStateCalls": []map[string]interface{}{
			{"calls": paramCalls},
		},
	}
	raw, err := r.call(ctx, "eth_simulateV1", payload, block.String())
	if err != nil {
		return nil, err
	}

	var wire []struct {
		Calls []struct {
			ReturnData string `json:"returnData"`
		} `json:"calls"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("malformed eth_simulateV1 response: %w", err)
	}

	var results []types.HexData
	for _, block := range wire {
		for _, c := range block.Calls {
			hd, err := types.ParseHexData(c.ReturnData)
			if err != nil {
				return nil, err
			}
			results = append(results, hd)
		}
	}
	return results, nil
}

func decodeUint64(raw json.RawMessage) (uint64, error) {
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return 0, fmt.Errorf("malformed hex response: %w", err)
	}
	return hexutil.DecodeUint64(hex)
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := string(raw)
	return trimmed == "" || trimmed == "null"
}
