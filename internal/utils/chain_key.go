package utils

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ChainTypeEVM tag used by the ChainRegistry for EVM chains
const ChainTypeEVM = "EVM"

var chainKeyArgs = abi.Arguments{
	{Type: mustType("string")},
	{Type: mustType("bytes32")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid type: %s: %v", t, err))
	}
	return typ
}

// DeriveChainKey keccak256(abi.encode(string tag, bytes32(chainID))), the
// derivation ChainRegistry.addEVMChainKey uses on-chain.
func DeriveChainKey(tag string, chainID uint64) common.Hash {
	encoded, err := chainKeyArgs.Pack(tag, ChainIDBytes32(chainID))
	if err != nil {
		// string and bytes32 always pack
		panic(fmt.Sprintf("chain key encode: %v", err))
	}
	return crypto.Keccak256Hash(encoded)
}

// EVMChainKey DeriveChainKey with the EVM tag
func EVMChainKey(chainID uint64) common.Hash {
	return DeriveChainKey(ChainTypeEVM, chainID)
}

// ChainIDBytes32 big-endian chain id left-padded to 32 bytes
func ChainIDBytes32(chainID uint64) [32]byte {
	var out [32]byte
	binary.BigEndian.PutUint64(out[24:], chainID)
	return out
}
