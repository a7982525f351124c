package clients

import (
	"context"
	"sort"
	"sync"

	"bridge-backend/internal/config"
	"bridge-backend/internal/models"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ChainRegistry immutable set of supported chains and their clients.
// Descriptors are ordered by chain id.
type ChainRegistry struct {
	descriptors []models.ChainDescriptor
	byID        map[uint64]int
	clients     map[uint64]ChainClient
}

// NewChainRegistry builds the registry. Chains without a client are kept as
// descriptors and reported unavailable.
func NewChainRegistry(descriptors []models.ChainDescriptor, clients map[uint64]ChainClient) *ChainRegistry {
	sorted := make([]models.ChainDescriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChainID < sorted[j].ChainID })

	r := &ChainRegistry{
		descriptors: sorted,
		byID:        make(map[uint64]int, len(sorted)),
		clients:     make(map[uint64]ChainClient, len(clients)),
	}
	for i, d := range sorted {
		r.byID[d.ChainID] = i
	}
	for id, c := range clients {
		if c != nil {
			r.clients[id] = c
		}
	}
	return r
}

// DescriptorsFromConfig converts configured networks into descriptors
func DescriptorsFromConfig(cfg *config.Config) []models.ChainDescriptor {
	out := make([]models.ChainDescriptor, 0, len(cfg.Blockchain.Networks))
	for _, n := range cfg.Blockchain.Networks {
		out = append(out, models.ChainDescriptor{
			ChainID: n.ChainID,
			Name:    n.Name,
			Label:   n.Label,
			Testnet: n.Testnet,
			Key:     utils.EVMChainKey(n.ChainID),
			Contracts: models.ContractSet{
				Bridge:        parseAddress(n.Contracts.Bridge),
				Router:        parseAddress(n.Contracts.Router),
				AccessManager: parseAddress(n.Contracts.AccessManager),
				ChainRegistry: parseAddress(n.Contracts.ChainRegistry),
				TokenRegistry: parseAddress(n.Contracts.TokenRegistry),
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

func parseAddress(s string) common.Address {
	if !common.IsHexAddress(s) {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// DialChainClients connects every enabled network with a bridge deployment.
// A network that cannot be reached is logged and left out.
func DialChainClients(ctx context.Context, cfg *config.Config, logger *logrus.Logger) map[uint64]ChainClient {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[uint64]ChainClient)
	)
	for name, n := range cfg.Blockchain.Networks {
		if !n.Enabled {
			logger.Infof("⏭️ Network %s disabled, skipping", name)
			continue
		}
		if n.Contracts.Bridge == "" {
			logger.Infof("⏭️ Network %s has no bridge deployment, skipping", name)
			continue
		}

		wg.Add(1)
		go func(n config.NetworkConfig) {
			defer wg.Done()
			client, err := DialEVMChainClient(ctx, n, EVMClientOptions{
				PrivateKey: cfg.SigningKeyFor(n),
				GasLimit:   cfg.Operator.GasLimit,
			}, logger)
			if err != nil {
				logger.WithError(err).WithField("chain_id", n.ChainID).Error("❌ Chain unavailable")
				return
			}
			mu.Lock()
			out[n.ChainID] = client
			mu.Unlock()
		}(n)
	}
	wg.Wait()
	return out
}

// Client returns the client for chainID, if reachable
func (r *ChainRegistry) Client(chainID uint64) (ChainClient, bool) {
	c, ok := r.clients[chainID]
	return c, ok
}

// Descriptor returns the configured chain, if any
func (r *ChainRegistry) Descriptor(chainID uint64) (models.ChainDescriptor, bool) {
	i, ok := r.byID[chainID]
	if !ok {
		return models.ChainDescriptor{}, false
	}
	return r.descriptors[i], true
}

// Descriptors all configured chains ordered by chain id
func (r *ChainRegistry) Descriptors() []models.ChainDescriptor {
	out := make([]models.ChainDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Available reports whether chainID has both a client and a bridge address
func (r *ChainRegistry) Available(chainID uint64) bool {
	d, ok := r.Descriptor(chainID)
	if !ok || !d.Contracts.HasBridge() {
		return false
	}
	_, ok = r.clients[chainID]
	return ok
}

// ChainIDFromKey scans the configured chains for one whose derived key equals key
func (r *ChainRegistry) ChainIDFromKey(key common.Hash) (uint64, bool) {
	for _, d := range r.descriptors {
		if utils.EVMChainKey(d.ChainID) == key {
			return d.ChainID, true
		}
	}
	return 0, false
}

// DecodeChainKey resolves key to a configured EVM chain or marks it foreign
func (r *ChainRegistry) DecodeChainKey(key common.Hash) models.ChainRef {
	if id, ok := r.ChainIDFromKey(key); ok {
		return models.ChainRef{Kind: models.ChainRefEVM, ChainID: id, Raw: key}
	}
	return models.ChainRef{Kind: models.ChainRefForeign, Raw: key}
}

// PeerChains chains sharing current's testnet flag, excluding current.
// An unknown current chain is treated as mainnet.
func (r *ChainRegistry) PeerChains(current uint64) []models.ChainDescriptor {
	testnet := false
	if d, ok := r.Descriptor(current); ok {
		testnet = d.IsTestnet()
	}
	var peers []models.ChainDescriptor
	for _, d := range r.descriptors {
		if d.ChainID == current || d.IsTestnet() != testnet {
			continue
		}
		peers = append(peers, d)
	}
	return peers
}
