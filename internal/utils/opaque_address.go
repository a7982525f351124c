package utils

import (
	"strings"

	"bridge-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// AddressToBytes32 left-pads a 20-byte EVM address into the 32-byte ledger encoding
func AddressToBytes32(addr common.Address) common.Hash {
	var out common.Hash
	copy(out[12:], addr.Bytes())
	return out
}

// TryBytes32ToAddress recovers an EVM address only when the 12 high-order
// bytes are zero. Anything else belongs to another ecosystem.
func TryBytes32ToAddress(raw common.Hash) (common.Address, bool) {
	for _, b := range raw[:12] {
		if b != 0 {
			return common.Address{}, false
		}
	}
	return common.BytesToAddress(raw[12:]), true
}

// DecodeOpaqueAccount tags a 32-byte token/account value as EVM or foreign
func DecodeOpaqueAccount(raw common.Hash) models.OpaqueAccount {
	if addr, ok := TryBytes32ToAddress(raw); ok {
		return models.OpaqueAccount{Kind: models.AccountEVM, Address: &addr, Raw: raw}
	}
	return models.OpaqueAccount{Kind: models.AccountForeign, Raw: raw}
}

// LowerHex lowercase 0x-prefixed hex, used for set keys
func LowerHex(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

// IsEvmAddress checks for a 0x-prefixed 20-byte hex address
func IsEvmAddress(address string) bool {
	return strings.HasPrefix(strings.ToLower(address), "0x") && common.IsHexAddress(address)
}

// IsBytes32Hex checks for a 0x-prefixed 32-byte hex value
func IsBytes32Hex(value string) bool {
	if !strings.HasPrefix(strings.ToLower(value), "0x") || len(value) != 66 {
		return false
	}
	for _, c := range value[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
