package services

import (
	"context"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/models"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	MetaSourceTokenList = "tokenlist"
	MetaSourceBridged   = "bridged"
	MetaSourceERC20     = "erc20"
)

// TokenLister static token list lookup
type TokenLister interface {
	Lookup(ctx context.Context, chainID uint64, token common.Address) (clients.TokenListItem, bool, error)
}

// metadataStrategy one resolution source; ok=false passes to the next
type metadataStrategy func(ctx context.Context, chainID uint64, token common.Address) (*models.TokenMetadata, bool)

// MetadataResolver best-effort token display metadata per (chain, token)
type MetadataResolver struct {
	registry  *clients.ChainRegistry
	tokenList TokenLister
	cache     *ViewCache
	logger    *logrus.Entry
}

// NewMetadataResolver creates a resolver. tokenList may be nil.
func NewMetadataResolver(registry *clients.ChainRegistry, tokenList TokenLister, cache *ViewCache, logger *logrus.Logger) *MetadataResolver {
	return &MetadataResolver{
		registry:  registry,
		tokenList: tokenList,
		cache:     cache,
		logger:    logger.WithField("component", "metadata_resolver"),
	}
}

// Resolve returns metadata or ok=false. It never fails.
func (r *MetadataResolver) Resolve(ctx context.Context, chainID uint64, token common.Address) (*models.TokenMetadata, bool) {
	key := QueryKey{ChainID: chainID, Contract: token, Query: QueryTokenMeta}
	meta, err := cached(ctx, r.cache, key, func(ctx context.Context) (*models.TokenMetadata, error) {
		for _, strategy := range []metadataStrategy{r.fromTokenList, r.fromBridgedToken, r.fromERC20} {
			if meta, ok := strategy(ctx, chainID, token); ok {
				return meta, nil
			}
		}
		r.logger.WithFields(logrus.Fields{"chain_id": chainID, "token": token.Hex()}).Debug("no metadata source answered")
		return nil, nil
	})
	if err != nil || meta == nil {
		return nil, false
	}
	return meta, true
}

// ResolveMany resolves unique tokens concurrently, keyed by lowercased address
func (r *MetadataResolver) ResolveMany(ctx context.Context, chainID uint64, tokens []common.Address) map[string]*models.TokenMetadata {
	unique := make([]common.Address, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		k := lowerAddress(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, t)
	}

	metas := make([]*models.TokenMetadata, len(unique))
	fanOut(ctx, len(unique), func(ctx context.Context, i int) {
		metas[i], _ = r.Resolve(ctx, chainID, unique[i])
	})

	out := make(map[string]*models.TokenMetadata, len(unique))
	for i, t := range unique {
		if metas[i] != nil {
			out[lowerAddress(t)] = metas[i]
		}
	}
	return out
}

func (r *MetadataResolver) fromTokenList(ctx context.Context, chainID uint64, token common.Address) (*models.TokenMetadata, bool) {
	if r.tokenList == nil {
		return nil, false
	}
	item, ok, err := r.tokenList.Lookup(ctx, chainID, token)
	if err != nil {
		r.logger.WithError(err).Debug("token list unavailable")
	}
	if !ok {
		return nil, false
	}
	decimals := item.Decimals
	meta := &models.TokenMetadata{
		Name:     item.Name,
		Symbol:   item.Symbol,
		Decimals: &decimals,
		Source:   MetaSourceTokenList,
	}
	if logo, ok := utils.SanitizeLogoURI(item.LogoURI); ok {
		meta.LogoURI = logo
	}
	return meta, true
}

// fromBridgedToken name, symbol, logoLink and decimals; all four must answer
func (r *MetadataResolver) fromBridgedToken(ctx context.Context, chainID uint64, token common.Address) (*models.TokenMetadata, bool) {
	methods := []string{contracts.MethodName, contracts.MethodSymbol, contracts.MethodLogoLink, contracts.MethodDecimals}
	data, ok := r.readAll(ctx, chainID, token, contracts.BridgedTokenABI, methods)
	if !ok {
		return nil, false
	}
	meta, ok := decodeTokenFields(contracts.BridgedTokenABI, data[0], data[1], data[3])
	if !ok {
		return nil, false
	}
	if link, err := contracts.DecodeString(contracts.BridgedTokenABI, contracts.MethodLogoLink, data[2]); err == nil {
		if logo, ok := utils.SanitizeLogoURI(link); ok {
			meta.LogoURI = logo
		}
	}
	meta.Source = MetaSourceBridged
	return meta, true
}

func (r *MetadataResolver) fromERC20(ctx context.Context, chainID uint64, token common.Address) (*models.TokenMetadata, bool) {
	methods := []string{contracts.MethodName, contracts.MethodSymbol, contracts.MethodDecimals}
	data, ok := r.readAll(ctx, chainID, token, contracts.ERC20ABI, methods)
	if !ok {
		return nil, false
	}
	meta, ok := decodeTokenFields(contracts.ERC20ABI, data[0], data[1], data[2])
	if !ok {
		return nil, false
	}
	meta.Source = MetaSourceERC20
	return meta, true
}

// readAll batches the no-arg reads and succeeds only if every one did
func (r *MetadataResolver) readAll(ctx context.Context, chainID uint64, token common.Address, a *abi.ABI, methods []string) ([][]byte, bool) {
	if r.registry == nil {
		return nil, false
	}
	client, ok := r.registry.Client(chainID)
	if !ok {
		return nil, false
	}
	calls := make([]clients.CallMsg, len(methods))
	for i, m := range methods {
		input, err := a.Pack(m)
		if err != nil {
			return nil, false
		}
		calls[i] = clients.CallMsg{To: token, Data: input}
	}
	results, err := client.BatchCall(ctx, calls)
	if err != nil || len(results) != len(calls) {
		return nil, false
	}
	out := make([][]byte, len(results))
	for i, res := range results {
		if res.Err != nil || len(res.Data) == 0 {
			return nil, false
		}
		out[i] = res.Data
	}
	return out, true
}

func decodeTokenFields(a *abi.ABI, nameData, symbolData, decimalsData []byte) (*models.TokenMetadata, bool) {
	name, err := contracts.DecodeString(a, contracts.MethodName, nameData)
	if err != nil {
		return nil, false
	}
	symbol, err := contracts.DecodeString(a, contracts.MethodSymbol, symbolData)
	if err != nil {
		return nil, false
	}
	decimals, err := contracts.DecodeUint8(a, contracts.MethodDecimals, decimalsData)
	if err != nil {
		return nil, false
	}
	return &models.TokenMetadata{Name: name, Symbol: symbol, Decimals: &decimals}, true
}
