/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/bimakw/deposit-tracker/internal/domain"
)

// ContractCaller executes read-only contract calls
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// symbolSelector is the 4-byte selector of ERC-20 symbol()
var symbolSelector = crypto.Keccak256([]byte("symbol()"))[:4]

var stringArguments = func() abi.Arguments {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// SymbolResolver looks up ERC-20 symbols on-chain and remembers them
type SymbolResolver struct {
	caller ContractCaller
	logger *zap.Logger

	mu      sync.RWMutex
	symbols map[common.Address]string
}

// NewSymbolResolver creates a new symbol resolver
func NewSymbolResolver(caller ContractCaller, logger *zap.Logger) *SymbolResolver {
	return &SymbolResolver{
		caller:  caller,
		logger:  logger,
		symbols: make(map[common.Address]string),
	}
}

// Symbol returns the token's symbol() result
func (r *SymbolResolver) Symbol(ctx context.Context, tokenAddress string) (string, error) {
	if !common.IsHexAddress(tokenAddress) {
		return "", fmt.Errorf("%w: invalid token address %q", domain.ErrValidation, tokenAddress)
	}
	addr := common.HexToAddress(tokenAddress)

	r.mu.RLock()
	sym, ok := r.symbols[addr]
	r.mu.RUnlock()
	if ok {
		return sym, nil
	}

	result, err := r.caller.CallContract(ctx, addr, symbolSelector)
	if err != nil {
		return "", fmt.Errorf("failed to fetch symbol: %w", err)
	}

	sym, err = decodeSymbol(result)
	if err != nil {
		return "", fmt.Errorf("failed to decode symbol of %s: %w", addr.Hex(), err)
	}
	if sym == "" {
		return "", errors.New("token has an empty symbol")
	}

	r.mu.Lock()
	r.symbols[addr] = sym
	r.mu.Unlock()

	r.logger.Debug("Resolved token symbol",
		zap.String("token_address", strings.ToLower(addr.Hex())),
		zap.String("symbol", sym),
	)
	return sym, nil
}

// decodeSymbol accepts both the standard ABI string return and the
// bytes32 return some older tokens (e.g. MKR) use
func decodeSymbol(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty response")
	}

	if values, err := stringArguments.Unpack(data); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return strings.TrimRight(s, "\x00"), nil
		}
	}

	if len(data) < 32 {
		return "", fmt.Errorf("response too short: %d bytes", len(data))
	}

	raw := bytes.TrimRight(data[:32], "\x00")
	if !printable(raw) {
		return "", errors.New("bytes32 symbol is not printable")
	}
	return string(raw), nil
}

func printable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
