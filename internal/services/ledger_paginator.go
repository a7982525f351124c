package services

import (
	"context"
	"fmt"
	"math/big"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/config"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/metrics"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// LedgerList describes one enumerable list exposed by a contract. Any of the
// three methods may be empty when the contract does not offer that form.
type LedgerList struct {
	Name        string
	ABI         *abi.ABI
	BulkMethod  string        // returns the whole list
	CountMethod string        // returns the list length
	PageMethod  string        // (prefix..., index, count) -> page
	Prefix      []interface{} // leading arguments shared by all three methods
	PageSize    uint64        // 0 uses the paginator default
}

// DepositHashes the bridge ledger's deposit identifiers
func DepositHashes() LedgerList {
	return LedgerList{Name: "deposit_hashes", ABI: contracts.BridgeABI, PageMethod: contracts.MethodGetDepositHashes}
}

// WithdrawHashes the bridge ledger's withdraw identifiers
func WithdrawHashes() LedgerList {
	return LedgerList{Name: "withdraw_hashes", ABI: contracts.BridgeABI, PageMethod: contracts.MethodGetWithdrawHashes}
}

// RegisteredChainKeys chain keys on the ChainRegistry
func RegisteredChainKeys(pageSize uint64) LedgerList {
	return LedgerList{
		Name:        "chain_keys",
		ABI:         contracts.ChainRegistryABI,
		BulkMethod:  contracts.MethodGetChainKeys,
		CountMethod: contracts.MethodGetChainKeyCount,
		PageMethod:  contracts.MethodGetChainKeysFrom,
		PageSize:    pageSize,
	}
}

// RegisteredTokens token addresses on the TokenRegistry, as left-padded words
func RegisteredTokens(pageSize uint64) LedgerList {
	return LedgerList{
		Name:        "tokens",
		ABI:         contracts.TokenRegistryABI,
		BulkMethod:  contracts.MethodGetAllTokens,
		CountMethod: contracts.MethodGetTokenCount,
		PageMethod:  contracts.MethodGetTokensFrom,
		PageSize:    pageSize,
	}
}

// RoleMembers active members of an AccessManager role, as left-padded words
func RoleMembers(roleID uint64, pageSize uint64) LedgerList {
	return LedgerList{
		Name:        fmt.Sprintf("role_%d_members", roleID),
		ABI:         contracts.AccessManagerABI,
		BulkMethod:  contracts.MethodGetRoleMembers,
		CountMethod: contracts.MethodGetRoleMemberCount,
		PageMethod:  contracts.MethodGetRoleMembersFrom,
		Prefix:      []interface{}{roleID},
		PageSize:    pageSize,
	}
}

// enumerationStrategy returns ok=false when the contract does not support its
// form; a supported form that fails part way returns what it collected with ok=true
type enumerationStrategy func(ctx context.Context, client clients.ChainClient, contract common.Address, list LedgerList) ([]common.Hash, bool)

// LedgerPaginator enumerates identifier lists held by ledger and registry contracts
type LedgerPaginator struct {
	pageSize uint64
	maxItems uint64
	logger   *logrus.Entry
}

// NewLedgerPaginator creates a paginator with the configured page size and ceiling
func NewLedgerPaginator(cfg config.LedgerConfig, logger *logrus.Logger) *LedgerPaginator {
	p := &LedgerPaginator{
		pageSize: cfg.PageSize,
		maxItems: cfg.MaxItems,
		logger:   logger.WithField("component", "ledger_paginator"),
	}
	if p.pageSize == 0 {
		p.pageSize = 100
	}
	if p.maxItems == 0 {
		p.maxItems = 10000
	}
	return p
}

// EnumerateRecordIDs returns the list in contract order, capped at the
// configured ceiling. Failures degrade to a partial or empty result.
func (p *LedgerPaginator) EnumerateRecordIDs(ctx context.Context, client clients.ChainClient, contract common.Address, list LedgerList) []common.Hash {
	log := p.logger.WithFields(logrus.Fields{"chain_id": client.ChainID(), "contract": contract.Hex(), "fn": list.Name})

	for _, strategy := range []enumerationStrategy{p.bulk, p.countedPages, p.openPages} {
		ids, ok := strategy(ctx, client, contract, list)
		if !ok {
			continue
		}
		if uint64(len(ids)) > p.maxItems {
			ids = ids[:p.maxItems]
		}
		metrics.LedgerItems.WithLabelValues(fmt.Sprint(client.ChainID()), list.Name).Set(float64(len(ids)))
		log.WithField("count", len(ids)).Debug("enumerated")
		return ids
	}
	log.Debug("no enumeration form succeeded")
	return nil
}

func (p *LedgerPaginator) bulk(ctx context.Context, client clients.ChainClient, contract common.Address, list LedgerList) ([]common.Hash, bool) {
	if list.BulkMethod == "" {
		return nil, false
	}
	data, err := p.call(ctx, client, contract, list, list.BulkMethod, list.Prefix...)
	if err != nil {
		p.logger.WithError(err).WithField("fn", list.BulkMethod).Debug("bulk enumeration unsupported")
		return nil, false
	}
	ids, err := contracts.DecodeWords(list.ABI, list.BulkMethod, data)
	if err != nil {
		return nil, false
	}
	return ids, true
}

func (p *LedgerPaginator) countedPages(ctx context.Context, client clients.ChainClient, contract common.Address, list LedgerList) ([]common.Hash, bool) {
	if list.CountMethod == "" || list.PageMethod == "" {
		return nil, false
	}
	data, err := p.call(ctx, client, contract, list, list.CountMethod, list.Prefix...)
	if err != nil {
		return nil, false
	}
	count, err := contracts.DecodeUint(list.ABI, list.CountMethod, data)
	if err != nil {
		return nil, false
	}

	total := p.maxItems
	if count.IsUint64() && count.Uint64() < total {
		total = count.Uint64()
	}
	size := p.pageSizeFor(list)

	var ids []common.Hash
	for index := uint64(0); index < total; index += size {
		want := size
		if remaining := total - index; remaining < want {
			want = remaining
		}
		page, err := p.page(ctx, client, contract, list, index, want)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{"fn": list.PageMethod, "index": index}).Warn("page read failed, returning partial list")
			break
		}
		ids = append(ids, page...)
		if uint64(len(page)) < want {
			break
		}
	}
	return ids, true
}

func (p *LedgerPaginator) openPages(ctx context.Context, client clients.ChainClient, contract common.Address, list LedgerList) ([]common.Hash, bool) {
	if list.PageMethod == "" {
		return nil, false
	}
	size := p.pageSizeFor(list)

	var ids []common.Hash
	for index := uint64(0); index < p.maxItems; index += size {
		page, err := p.page(ctx, client, contract, list, index, size)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{"fn": list.PageMethod, "index": index}).Warn("page read failed, returning partial list")
			break
		}
		if len(page) == 0 {
			break
		}
		ids = append(ids, page...)
		if uint64(len(page)) < size {
			break
		}
	}
	return ids, true
}

func (p *LedgerPaginator) page(ctx context.Context, client clients.ChainClient, contract common.Address, list LedgerList, index, count uint64) ([]common.Hash, error) {
	args := append(append([]interface{}{}, list.Prefix...), new(big.Int).SetUint64(index), new(big.Int).SetUint64(count))
	data, err := p.call(ctx, client, contract, list, list.PageMethod, args...)
	if err != nil {
		return nil, err
	}
	return contracts.DecodeWords(list.ABI, list.PageMethod, data)
}

func (p *LedgerPaginator) call(ctx context.Context, client clients.ChainClient, contract common.Address, list LedgerList, method string, args ...interface{}) ([]byte, error) {
	input, err := list.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return client.Call(ctx, clients.CallMsg{To: contract, Data: input})
}

func (p *LedgerPaginator) pageSizeFor(list LedgerList) uint64 {
	if list.PageSize > 0 {
		return list.PageSize
	}
	return p.pageSize
}
