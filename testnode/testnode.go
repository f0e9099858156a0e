// Package testnode implements the tester controller (component C7): a
// thin wrapper over the anvil_/hardhat_/evm_ test-node RPC namespace,
// exposing state manipulation, mining, time travel, snapshots,
// impersonation, and fork control. Grounded on the teacher's rpc helper
// style (ethereum/rpc.go) for hex-encoded call parameters, since the
// teacher never needed a test-node controller of its own.
package testnode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/arcsign/evmrpc/rpc"
	"github.com/arcsign/evmrpc/types"
)

// Controller drives a developer test node's debug/state RPC namespace
// (§4.7).
type Controller struct {
	provider       rpc.Provider
	snapshotMethod string
	revertMethod   string
}

// New constructs a Controller that uses Anvil's method names: anvil_*
// for state overrides, multi-block mining, impersonation, automine,
// block config, dump/load and reset, and evm_* for single-block mining,
// time, snapshots, interval mining and the block gas limit. Hardhat's
// hardhat_* method names are not used.
func New(provider rpc.Provider) *Controller {
	return &Controller{provider: provider, snapshotMethod: "evm_snapshot", revertMethod: "evm_revert"}
}

func (c *Controller) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	return c.provider.Send(ctx, method, params)
}

// SetBalance sets addr's wei balance directly, bypassing transaction
// execution.
func (c *Controller) SetBalance(ctx context.Context, addr types.Address, balance types.Wei) error {
	_, err := c.call(ctx, "anvil_setBalance", addr.String(), balance.String())
	return err
}

// SetCode overwrites the bytecode deployed at addr.
func (c *Controller) SetCode(ctx context.Context, addr types.Address, code types.HexData) error {
	_, err := c.call(ctx, "anvil_setCode", addr.String(), code.String())
	return err
}

// SetNonce overwrites addr's transaction count.
func (c *Controller) SetNonce(ctx context.Context, addr types.Address, nonce uint64) error {
	_, err := c.call(ctx, "anvil_setNonce", addr.String(), hexutil.EncodeUint64(nonce))
	return err
}

// SetStorageAt overwrites a single storage slot.
func (c *Controller) SetStorageAt(ctx context.Context, addr types.Address, slot, value types.Hash) error {
	_, err := c.call(ctx, "anvil_setStorageAt", addr.String(), slot.String(), value.String())
	return err
}

// Mine mines one block.
func (c *Controller) Mine(ctx context.Context) error {
	_, err := c.call(ctx, "evm_mine")
	return err
}

// MineN mines n blocks.
func (c *Controller) MineN(ctx context.Context, n uint64) error {
	_, err := c.call(ctx, "anvil_mine", hexutil.EncodeUint64(n))
	return err
}

// MineNWithInterval mines n blocks, intervalSeconds apart.
func (c *Controller) MineNWithInterval(ctx context.Context, n uint64, intervalSeconds uint64) error {
	_, err := c.call(ctx, "anvil_mine", hexutil.EncodeUint64(n), hexutil.EncodeUint64(intervalSeconds))
	return err
}

// MineAt pins the next block's timestamp and mines exactly one block with
// it (§4.7). Equivalent to SetNextBlockTimestamp followed by Mine, since
// the pinned timestamp is consumed by the very next block.
func (c *Controller) MineAt(ctx context.Context, unixSeconds uint64) error {
	if err := c.SetNextBlockTimestamp(ctx, unixSeconds); err != nil {
		return err
	}
	return c.Mine(ctx)
}

// IncreaseTime advances the node's internal clock by seconds, applied
// to the next mined block.
func (c *Controller) IncreaseTime(ctx context.Context, seconds uint64) error {
	_, err := c.call(ctx, "evm_increaseTime", hexutil.EncodeUint64(seconds))
	return err
}

// SetNextBlockTimestamp pins the next mined block's timestamp exactly.
// Per §4.7 this setting applies to the next block only; callers mining
// a further block without re-setting get the node's natural clock.
func (c *Controller) SetNextBlockTimestamp(ctx context.Context, unixSeconds uint64) error {
	_, err := c.call(ctx, "evm_setNextBlockTimestamp", unixSeconds)
	return err
}

// SnapshotID identifies a point the chain state can be reverted to.
// Nested snapshots are supported; reverting an outer id invalidates all
// inner ids taken after it (§4.7).
type SnapshotID string

// Snapshot records the current chain state.
func (c *Controller) Snapshot(ctx context.Context) (SnapshotID, error) {
	raw, err := c.call(ctx, c.snapshotMethod)
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("malformed snapshot id: %w", err)
	}
	return SnapshotID(id), nil
}

// Revert restores chain state to id, invalidating any snapshot taken
// after it.
func (c *Controller) Revert(ctx context.Context, id SnapshotID) (bool, error) {
	raw, err := c.call(ctx, c.revertMethod, string(id))
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, nil
	}
	return ok, nil
}

// ImpersonationSession is a scoped resource: Impersonate starts
// impersonating addr and Close releases it. The session exposes only
// the impersonated Address and Close; it has no method for sending
// transactions. Impersonation alone does not credit ETH; pair it with
// SetBalance.
type ImpersonationSession struct {
	controller *Controller
	addr       types.Address
	closed     bool
}

// Address returns the impersonated address.
func (s *ImpersonationSession) Address() types.Address { return s.addr }

// Close stops impersonating. Idempotent.
func (s *ImpersonationSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.controller.call(ctx, "anvil_stopImpersonatingAccount", s.addr.String())
	return err
}

// Impersonate begins impersonating addr and returns a session that must
// be closed to release it.
func (c *Controller) Impersonate(ctx context.Context, addr types.Address) (*ImpersonationSession, error) {
	if _, err := c.call(ctx, "anvil_impersonateAccount", addr.String()); err != nil {
		return nil, err
	}
	return &ImpersonationSession{controller: c, addr: addr}, nil
}

// GetAutomine reports whether the node mines a block per transaction.
func (c *Controller) GetAutomine(ctx context.Context) (bool, error) {
	raw, err := c.call(ctx, "anvil_getAutomine")
	if err != nil {
		return false, err
	}
	var automine bool
	if err := json.Unmarshal(raw, &automine); err != nil {
		return false, fmt.Errorf("malformed automine response: %w", err)
	}
	return automine, nil
}

// SetAutomine toggles automine.
func (c *Controller) SetAutomine(ctx context.Context, enabled bool) error {
	_, err := c.call(ctx, "anvil_setAutomine", enabled)
	return err
}

// SetIntervalMining mines a block every intervalSeconds instead of per
// transaction. 0 disables interval mining.
func (c *Controller) SetIntervalMining(ctx context.Context, intervalSeconds uint64) error {
	_, err := c.call(ctx, "evm_setIntervalMining", intervalSeconds)
	return err
}

// SetNextBlockBaseFee pins the base fee the next mined block will use.
func (c *Controller) SetNextBlockBaseFee(ctx context.Context, baseFee types.Wei) error {
	_, err := c.call(ctx, "anvil_setNextBlockBaseFeePerGas", baseFee.String())
	return err
}

// SetBlockGasLimit sets the per-block gas limit.
func (c *Controller) SetBlockGasLimit(ctx context.Context, gasLimit uint64) error {
	_, err := c.call(ctx, "evm_setBlockGasLimit", hexutil.EncodeUint64(gasLimit))
	return err
}

// SetCoinbase sets the address credited with block rewards.
func (c *Controller) SetCoinbase(ctx context.Context, addr types.Address) error {
	_, err := c.call(ctx, "anvil_setCoinbase", addr.String())
	return err
}

// DumpState serializes the entire chain state.
func (c *Controller) DumpState(ctx context.Context) (types.HexData, error) {
	raw, err := c.call(ctx, "anvil_dumpState")
	if err != nil {
		return types.EmptyHexData, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return types.EmptyHexData, fmt.Errorf("malformed dump state response: %w", err)
	}
	return types.ParseHexData(hex)
}

// LoadState restores chain state previously produced by DumpState.
func (c *Controller) LoadState(ctx context.Context, state types.HexData) (bool, error) {
	raw, err := c.call(ctx, "anvil_loadState", state.String())
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, nil
	}
	return ok, nil
}

// Reset wipes all chain state back to a clean genesis.
func (c *Controller) Reset(ctx context.Context) error {
	_, err := c.call(ctx, "anvil_reset")
	return err
}

// ResetFork forks from forkRPCURL at blockNumber: subsequent local reads
// see remote state as of that block, while local transactions advance
// independently of the remote chain (§4.7 forking contract).
func (c *Controller) ResetFork(ctx context.Context, forkRPCURL string, blockNumber uint64) error {
	_, err := c.call(ctx, "anvil_reset", map[string]interface{}{
		"forking": map[string]interface{}{
			"jsonRpcUrl":  forkRPCURL,
			"blockNumber": blockNumber,
		},
	})
	return err
}
