package main

import (
	"flag"
	"fmt"
	"os"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/config"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

// chain-key prints the registry key of a chain, or resolves a key against
// the configured networks.
func main() {
	tag := flag.String("tag", "EVM", "ecosystem tag")
	chainID := flag.Uint64("chain", 0, "chain id to derive a key for")
	decode := flag.String("decode", "", "bytes32 chain key to resolve")
	configPath := flag.String("config", "", "config file used by -decode")
	flag.Parse()

	switch {
	case *decode != "":
		if !utils.IsBytes32Hex(*decode) {
			fmt.Fprintf(os.Stderr, "not a bytes32 hex value: %s\n", *decode)
			os.Exit(2)
		}
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		registry := clients.NewChainRegistry(clients.DescriptorsFromConfig(cfg), nil)
		ref := registry.DecodeChainKey(common.HexToHash(*decode))
		fmt.Printf("kind:     %s\n", ref.Kind)
		if ref.ChainID != 0 {
			fmt.Printf("chain id: %d\n", ref.ChainID)
		}
	case *chainID != 0:
		fmt.Println(utils.DeriveChainKey(*tag, *chainID).Hex())
	default:
		flag.Usage()
		os.Exit(2)
	}
}
