// Bridge contract address configuration
package config

import "strings"

// ContractAddresses bridge deployment on one chain. Empty means not deployed there.
type ContractAddresses struct {
	Bridge        string `yaml:"bridge" json:"bridge"`
	Router        string `yaml:"router" json:"router"`
	AccessManager string `yaml:"accessManager" json:"access_manager"`
	ChainRegistry string `yaml:"chainRegistry" json:"chain_registry"`
	TokenRegistry string `yaml:"tokenRegistry" json:"token_registry"`
}

// Deployed addresses (CREATE3, identical across the chains that have them)
const (
	defaultBridge        = "0x9981937e53758C46464fF89B35dF9A46175A7212"
	defaultRouter        = "0x52cDA4D1D1cC1B1499E25f75933D8A83a9c111c0"
	defaultAccessManager = "0xA1012cf7d54650A01608161E7C70400dE7A3B476"
	defaultChainRegistry = "0x0B43A43A64284f49A9FDa3282C1a5f2eb74620D8"
	defaultTokenRegistry = "0x23F054503f163Fc5196E1D7E29B3cCDe73282101"
)

const (
	ChainIDBSC          uint64 = 56
	ChainIDBSCTestnet   uint64 = 97
	ChainIDOpBNB        uint64 = 204
	ChainIDOpBNBTestnet uint64 = 5611
)

// deployments chains where the bridge suite is live
var deployments = map[uint64]ContractAddresses{
	ChainIDBSC:          deployedSuite(),
	ChainIDBSCTestnet:   deployedSuite(),
	ChainIDOpBNBTestnet: deployedSuite(),
}

func deployedSuite() ContractAddresses {
	return ContractAddresses{
		Bridge:        defaultBridge,
		Router:        defaultRouter,
		AccessManager: defaultAccessManager,
		ChainRegistry: defaultChainRegistry,
		TokenRegistry: defaultTokenRegistry,
	}
}

// DefaultNetworks the four supported chains with public RPC endpoints
func DefaultNetworks() map[string]NetworkConfig {
	mainnet, testnet := false, true
	return map[string]NetworkConfig{
		"bsc": {
			ChainID:      ChainIDBSC,
			Name:         "bsc",
			Label:        "BNB Smart Chain (BSC)",
			Testnet:      &mainnet,
			RPCEndpoints: []string{"https://bsc-dataseed.bnbchain.org", "https://bsc-dataseed1.defibit.io"},
			Enabled:      true,
		},
		"bscTestnet": {
			ChainID:      ChainIDBSCTestnet,
			Name:         "bscTestnet",
			Label:        "BSC Testnet",
			Testnet:      &testnet,
			RPCEndpoints: []string{"https://data-seed-prebsc-1-s1.bnbchain.org:8545"},
			Enabled:      true,
		},
		"opBNB": {
			ChainID:      ChainIDOpBNB,
			Name:         "opBNB",
			Label:        "opBNB",
			Testnet:      &mainnet,
			RPCEndpoints: []string{"https://opbnb-mainnet-rpc.bnbchain.org"},
			Enabled:      true,
		},
		"opBNBTestnet": {
			ChainID:      ChainIDOpBNBTestnet,
			Name:         "opBNBTestnet",
			Label:        "opBNB Testnet",
			Testnet:      &testnet,
			RPCEndpoints: []string{"https://opbnb-testnet-rpc.bnbchain.org"},
			Enabled:      true,
		},
	}
}

// withDefaults fills unset addresses from the known deployment for chainID
func (c ContractAddresses) withDefaults(chainID uint64) ContractAddresses {
	d, ok := deployments[chainID]
	if !ok {
		return c
	}
	c.Bridge = firstNonEmpty(c.Bridge, d.Bridge)
	c.Router = firstNonEmpty(c.Router, d.Router)
	c.AccessManager = firstNonEmpty(c.AccessManager, d.AccessManager)
	c.ChainRegistry = firstNonEmpty(c.ChainRegistry, d.ChainRegistry)
	c.TokenRegistry = firstNonEmpty(c.TokenRegistry, d.TokenRegistry)
	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
