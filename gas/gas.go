// Package gas implements the fee and gas-limit strategy (component C4):
// EIP-1559 fee defaulting with legacy fallback, and gas-limit estimation
// with a safety buffer. Grounded on the teacher's ethereum/fee.go
// FeeEstimator, which multiplies a base/priority fee pair by a
// speed-dependent factor; this strategy keeps that shape but replaces
// the speed tiers with the spec's fixed defaulting formula and adds the
// legacy fallback fee.go never needed (the teacher assumed EIP-1559 is
// always available).
package gas

import (
	"context"

	"go.uber.org/zap"

	"github.com/arcsign/evmrpc/reader"
	"github.com/arcsign/evmrpc/types"
)

// Strategy tunes fee defaulting and gas-limit estimation (§4.4).
type Strategy struct {
	// GasLimitBufferNumerator/Denominator scale an eth_estimateGas result
	// (default 120/100, i.e. a 20% buffer).
	GasLimitBufferNumerator   uint64
	GasLimitBufferDenominator uint64
	// Logger records the EIP-1559→legacy fallback at debug (§4.4 step 1:
	// "fall back to legacy silently (log at debug, preserve caller intent
	// for diagnostics)"). Nil is a no-op.
	Logger *zap.Logger
}

// DefaultStrategy mirrors §4.4's 120/100 buffer ratio.
func DefaultStrategy() Strategy {
	return Strategy{GasLimitBufferNumerator: 120, GasLimitBufferDenominator: 100}
}

func (s Strategy) withDefaults() Strategy {
	if s.GasLimitBufferNumerator == 0 {
		s.GasLimitBufferNumerator = 120
	}
	if s.GasLimitBufferDenominator == 0 {
		s.GasLimitBufferDenominator = 100
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	return s
}

// FeeSuggestion is the strategy's output: a fully populated fee pair,
// and whether it fell back to legacy pricing because the chain profile
// or node does not support EIP-1559 (§4.4).
type FeeSuggestion struct {
	MaxFeePerGas         types.Wei
	MaxPriorityFeePerGas types.Wei
	GasPrice             types.Wei
	FellBackToLegacy     bool
}

// SuggestFees reads the current base fee and priority fee and defaults
// MaxFeePerGas to baseFee*2 + priorityFee (§4.4). If profile does not
// advertise EIP-1559 support, it falls back to eth_gasPrice instead.
func (s Strategy) SuggestFees(ctx context.Context, r *reader.Reader, profile types.ChainProfile) (FeeSuggestion, error) {
	s = s.withDefaults()

	if !profile.SupportsEIP1559 {
		s.Logger.Debug("chain profile does not support EIP-1559, falling back to legacy gas pricing",
			zap.Uint64("chainId", profile.ChainID))
		price, err := r.GasPrice(ctx)
		if err != nil {
			return FeeSuggestion{}, err
		}
		return FeeSuggestion{GasPrice: price, FellBackToLegacy: true}, nil
	}

	// Prefer the chain profile's configured priority-fee hint over a node
	// round-trip (§4.4 step 2: "chain default or eth_maxPriorityFeePerGas").
	priorityFee := profile.DefaultPriorityFee
	if priorityFee.IsZero() {
		fetched, err := r.MaxPriorityFeePerGas(ctx)
		if err != nil {
			// Node may not implement eth_maxPriorityFeePerGas even while
			// advertising EIP-1559 support generally; fall back to legacy
			// pricing rather than fail the caller outright.
			price, gpErr := r.GasPrice(ctx)
			if gpErr != nil {
				return FeeSuggestion{}, gpErr
			}
			return FeeSuggestion{GasPrice: price, FellBackToLegacy: true}, nil
		}
		priorityFee = fetched
	}

	block, err := r.BlockByNumber(ctx, types.Latest, false)
	if err != nil {
		return FeeSuggestion{}, err
	}
	baseFee := block.BaseFeePerGas
	if baseFee.IsZero() {
		// Pre-London chain despite the advertised profile; fall back.
		price, gpErr := r.GasPrice(ctx)
		if gpErr != nil {
			return FeeSuggestion{}, gpErr
		}
		return FeeSuggestion{GasPrice: price, FellBackToLegacy: true}, nil
	}

	maxFee := baseFee.Mul(2).Add(priorityFee)

	return FeeSuggestion{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: priorityFee,
	}, nil
}

// EstimateGasLimit runs eth_estimateGas and applies the configured
// safety buffer (§4.4's default 120/100, i.e. +20%).
func (s Strategy) EstimateGasLimit(ctx context.Context, r *reader.Reader, call reader.CallRequest) (uint64, error) {
	s = s.withDefaults()
	estimate, err := r.EstimateGas(ctx, call)
	if err != nil {
		return 0, err
	}
	buffered := estimate * s.GasLimitBufferNumerator / s.GasLimitBufferDenominator
	if buffered < estimate {
		// Overflow guard: buffer math shouldn't shrink the estimate.
		return estimate, nil
	}
	return buffered, nil
}
