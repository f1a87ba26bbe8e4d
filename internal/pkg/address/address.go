// Package address validates and normalises EVM addresses and transaction hashes.
package address

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/pkg/validator"
)

// Normalize validates a 0x-prefixed 20-byte hex address and returns it lowercased
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if err := validator.Var(addr, "required,eth_addr"); err != nil {
		return "", fmt.Errorf("%w: invalid address %q", domain.ErrValidation, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// Short renders an address as 0x12345678...abcdef
func Short(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-6:]
}

// IsTxHash reports whether s is a 0x-prefixed 32-byte hex hash
func IsTxHash(s string) bool {
	if !strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	return validator.Var(s, fmt.Sprintf("len=%d,hexadecimal", 2+2*common.HashLength)) == nil
}
