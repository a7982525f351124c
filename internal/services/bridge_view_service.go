package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/config"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/models"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// BridgeViewService builds the per-chain read projections from chain state
type BridgeViewService struct {
	registry   *clients.ChainRegistry
	paginator  *LedgerPaginator
	fetcher    *BatchFetcher
	correlator *Correlator
	meta       *MetadataResolver
	cache      *ViewCache
	ledger     config.LedgerConfig
	logger     *logrus.Entry
	now        func() time.Time
}

// NewBridgeViewService wires the engine components
func NewBridgeViewService(
	registry *clients.ChainRegistry,
	paginator *LedgerPaginator,
	fetcher *BatchFetcher,
	correlator *Correlator,
	meta *MetadataResolver,
	cache *ViewCache,
	ledger config.LedgerConfig,
	logger *logrus.Logger,
) *BridgeViewService {
	return &BridgeViewService{
		registry:   registry,
		paginator:  paginator,
		fetcher:    fetcher,
		correlator: correlator,
		meta:       meta,
		cache:      cache,
		ledger:     ledger,
		logger:     logger.WithField("component", "bridge_view"),
		now:        time.Now,
	}
}

// ChainStatus a configured chain and whether views can be built for it
type ChainStatus struct {
	models.ChainDescriptor
	Available bool `json:"available"`
}

// Chains every configured chain with its availability
func (s *BridgeViewService) Chains() []ChainStatus {
	ds := s.registry.Descriptors()
	out := make([]ChainStatus, len(ds))
	for i, d := range ds {
		out[i] = ChainStatus{ChainDescriptor: d, Available: s.registry.Available(d.ChainID)}
	}
	return out
}

// Registry the chain registry the service reads through
func (s *BridgeViewService) Registry() *clients.ChainRegistry {
	return s.registry
}

// bridgeOn resolves the client and bridge suite for chainID
func (s *BridgeViewService) bridgeOn(chainID uint64) (clients.ChainClient, models.ChainDescriptor, bool) {
	desc, ok := s.registry.Descriptor(chainID)
	if !ok || !desc.Contracts.HasBridge() {
		return nil, desc, false
	}
	client, ok := s.registry.Client(chainID)
	if !ok {
		return nil, desc, false
	}
	return client, desc, true
}

// withdrawRowsKey cache key of the actor-independent part of a withdraw view
func withdrawRowsKey(chainID uint64) QueryKey {
	return QueryKey{ChainID: chainID, Query: QueryWithdrawView}
}

// DepositView deposits on chainID joined with destination-side state.
// Every read behind it is cached under its own refresh interval, so the view
// is assembled per call. An unconfigured chain yields an empty, unavailable view.
func (s *BridgeViewService) DepositView(ctx context.Context, chainID uint64, actor *common.Address) (*models.DepositView, error) {
	return s.buildDepositView(ctx, chainID, actor)
}

func (s *BridgeViewService) buildDepositView(ctx context.Context, chainID uint64, actor *common.Address) (*models.DepositView, error) {
	view := &models.DepositView{ChainID: chainID, Actor: actor, Items: []models.CorrelatedView{}, RefreshedAt: s.now()}
	if _, _, ok := s.bridgeOn(chainID); !ok {
		return view, nil
	}
	view.Available = true

	deposits, err := s.deposits(ctx, chainID)
	if err != nil {
		return nil, err
	}
	view.Items = s.correlator.CorrelateDeposits(ctx, chainID, deposits, actor)

	s.logger.WithFields(logrus.Fields{"chain_id": chainID, "count": len(view.Items)}).Debug("deposit view built")
	return view, nil
}

// deposits enumerated deposit hashes with bodies, cached per hash set
func (s *BridgeViewService) deposits(ctx context.Context, chainID uint64) ([]models.DepositEntry, error) {
	client, desc, ok := s.bridgeOn(chainID)
	if !ok {
		return nil, nil
	}
	bridge := desc.Contracts.Bridge

	hashes, err := cached(ctx, s.cache, QueryKey{ChainID: chainID, Contract: bridge, Query: QueryDepositHashes},
		func(ctx context.Context) ([]common.Hash, error) {
			return s.paginator.EnumerateRecordIDs(ctx, client, bridge, DepositHashes()), nil
		})
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	key := QueryKey{ChainID: chainID, Contract: bridge, Query: QueryDeposits, Param: "ids=" + hashListDigest(hashes)}
	return cached(ctx, s.cache, key, func(ctx context.Context) ([]models.DepositEntry, error) {
		entries := s.fetcher.FetchDeposits(ctx, client, bridge, hashes)
		out := make([]models.DepositEntry, 0, len(entries))
		for _, e := range entries {
			if e.Deposit != nil {
				out = append(out, e)
			}
		}
		return out, nil
	})
}

// WithdrawView withdraws on chainID with countdowns. The id set is the local
// withdraw ledger plus deposits on peer chains that target chainID. Rows are
// cached without the actor; eligibility is recomputed on every call from the
// cached block time and the actor's execution delay.
func (s *BridgeViewService) WithdrawView(ctx context.Context, chainID uint64, actor *common.Address) (*models.WithdrawView, error) {
	rows, err := cached(ctx, s.cache, withdrawRowsKey(chainID), func(ctx context.Context) (*models.WithdrawView, error) {
		return s.buildWithdrawRows(ctx, chainID)
	})
	if err != nil {
		return nil, err
	}

	view := *rows
	view.Actor = actor
	view.Items = make([]models.WithdrawRow, len(rows.Items))
	copy(view.Items, rows.Items)
	if !view.Available {
		return &view, nil
	}
	client, desc, ok := s.bridgeOn(chainID)
	if !ok {
		return &view, nil
	}

	view.BlockTime = s.blockTime(ctx, chainID, client)
	view.ExecutionDelay = s.executionDelay(ctx, chainID, client, desc.Contracts, actor)
	hasActor := actorPresent(actor)
	for i := range view.Items {
		view.Items[i].Eligibility = ComputeEligibility(view.Items[i].Approval, view.BlockTime, view.ExecutionDelay, hasActor)
	}
	return &view, nil
}

// buildWithdrawRows the withdraw rows of chainID without eligibility
func (s *BridgeViewService) buildWithdrawRows(ctx context.Context, chainID uint64) (*models.WithdrawView, error) {
	view := &models.WithdrawView{ChainID: chainID, Items: []models.WithdrawRow{}, RefreshedAt: s.now()}
	client, desc, ok := s.bridgeOn(chainID)
	if !ok {
		return view, nil
	}
	view.Available = true
	bridge := desc.Contracts.Bridge

	local, err := cached(ctx, s.cache, QueryKey{ChainID: chainID, Contract: bridge, Query: QueryWithdrawHashes},
		func(ctx context.Context) ([]common.Hash, error) {
			return s.paginator.EnumerateRecordIDs(ctx, client, bridge, WithdrawHashes()), nil
		})
	if err != nil {
		return nil, err
	}
	fromDeposits, err := cached(ctx, s.cache, QueryKey{ChainID: chainID, Query: QueryPeerDepositHashes},
		func(ctx context.Context) ([]common.Hash, error) {
			return s.peerDepositHashes(ctx, chainID), nil
		})
	if err != nil {
		return nil, err
	}
	hashes := MergeHashes(local, fromDeposits)

	entries := []models.WithdrawEntry{}
	if len(hashes) > 0 {
		key := QueryKey{ChainID: chainID, Contract: bridge, Query: QueryWithdraws, Param: "ids=" + hashListDigest(hashes)}
		entries, err = cached(ctx, s.cache, key, func(ctx context.Context) ([]models.WithdrawEntry, error) {
			all := s.fetcher.FetchRecordsAndApprovals(ctx, client, bridge, hashes)
			out := make([]models.WithdrawEntry, 0, len(all))
			for _, e := range all {
				if e.Withdraw != nil || (e.Approval != nil && e.Approval.IsApproved) {
					out = append(out, e)
				}
			}
			return out, nil
		})
		if err != nil {
			return nil, err
		}
	}

	tokens := make([]common.Address, 0, len(entries))
	for _, e := range entries {
		if e.Withdraw != nil {
			tokens = append(tokens, e.Withdraw.Token)
		}
	}
	metas := s.meta.ResolveMany(ctx, chainID, tokens)

	for _, e := range entries {
		row := models.WithdrawRow{
			Hash:     e.Hash,
			Withdraw: e.Withdraw,
			Approval: e.Approval,
			Status:   e.Approval.Status(),
		}
		if e.Withdraw != nil {
			ref := s.registry.DecodeChainKey(e.Withdraw.SrcChainKey)
			row.Source = &ref
			row.TokenMeta = metas[lowerAddress(e.Withdraw.Token)]
		}
		view.Items = append(view.Items, row)
	}

	s.logger.WithFields(logrus.Fields{"chain_id": chainID, "count": len(view.Items)}).Debug("withdraw rows built")
	return view, nil
}

// peerDepositHashes deposits on same-network peers whose destination is chainID,
// deduplicated in peer order
func (s *BridgeViewService) peerDepositHashes(ctx context.Context, chainID uint64) []common.Hash {
	peers := s.registry.PeerChains(chainID)
	perPeer := make([][]common.Hash, len(peers))

	fanOut(ctx, len(peers), func(ctx context.Context, i int) {
		deposits, err := s.deposits(ctx, peers[i].ChainID)
		if err != nil {
			return
		}
		for _, e := range deposits {
			if id, ok := s.registry.ChainIDFromKey(e.Deposit.DestChainKey); ok && id == chainID {
				perPeer[i] = append(perPeer[i], e.Hash)
			}
		}
	})

	var out []common.Hash
	for _, hs := range perPeer {
		out = MergeHashes(out, hs)
	}
	return out
}

// blockTime latest block timestamp, 0 when unavailable
func (s *BridgeViewService) blockTime(ctx context.Context, chainID uint64, client clients.ChainClient) uint64 {
	ts, err := cached(ctx, s.cache, QueryKey{ChainID: chainID, Query: QueryBlockTime},
		func(ctx context.Context) (uint64, error) {
			return client.LatestBlockTime(ctx)
		})
	if err != nil {
		s.logger.WithError(err).WithField("chain_id", chainID).Debug("block time unavailable")
		return 0
	}
	return ts
}

func (s *BridgeViewService) executionDelay(ctx context.Context, chainID uint64, client clients.ChainClient, set models.ContractSet, actor *common.Address) uint32 {
	if !actorPresent(actor) {
		return 0
	}
	key := QueryKey{ChainID: chainID, Contract: set.AccessManager, Query: QueryExecutionDelay, Param: lowerAddress(*actor)}
	delay, err := cached(ctx, s.cache, key, func(ctx context.Context) (uint32, error) {
		return ExecutionDelay(ctx, client, set, actor)
	})
	if err != nil {
		s.logger.WithError(err).WithField("chain_id", chainID).Debug("execution delay unavailable")
		return 0
	}
	return delay
}

// RegistryView chain keys, registered tokens and bridge operators on chainID
func (s *BridgeViewService) RegistryView(ctx context.Context, chainID uint64) (*models.RegistryView, error) {
	empty := &models.RegistryView{
		ChainID:         chainID,
		ChainKeys:       []models.RegistryChainKey{},
		Tokens:          []models.RegistryToken{},
		BridgeOperators: []common.Address{},
		RefreshedAt:     s.now(),
	}
	desc, ok := s.registry.Descriptor(chainID)
	if !ok {
		return empty, nil
	}
	client, ok := s.registry.Client(chainID)
	if !ok {
		return empty, nil
	}

	return cached(ctx, s.cache, QueryKey{ChainID: chainID, Contract: desc.Contracts.ChainRegistry, Query: QueryRegistry},
		func(ctx context.Context) (*models.RegistryView, error) {
			view := *empty
			view.Available = true
			set := desc.Contracts
			pageSize := s.ledger.RegistryPageSize

			if set.ChainRegistry != (common.Address{}) {
				for _, key := range s.paginator.EnumerateRecordIDs(ctx, client, set.ChainRegistry, RegisteredChainKeys(pageSize)) {
					entry := models.RegistryChainKey{Key: key, Ref: s.registry.DecodeChainKey(key)}
					if entry.Ref.IsEVM() {
						if d, ok := s.registry.Descriptor(entry.Ref.ChainID); ok {
							entry.Label = d.Label
						}
					}
					view.ChainKeys = append(view.ChainKeys, entry)
				}
			}

			if set.TokenRegistry != (common.Address{}) {
				words := s.paginator.EnumerateRecordIDs(ctx, client, set.TokenRegistry, RegisteredTokens(pageSize))
				tokens := make([]common.Address, 0, len(words))
				for _, w := range words {
					if addr, ok := utils.TryBytes32ToAddress(w); ok {
						tokens = append(tokens, addr)
					}
				}
				metas := s.meta.ResolveMany(ctx, chainID, tokens)
				for _, t := range tokens {
					view.Tokens = append(view.Tokens, models.RegistryToken{Address: t, Meta: metas[lowerAddress(t)]})
				}
			}

			if set.AccessManager != (common.Address{}) {
				words := s.paginator.EnumerateRecordIDs(ctx, client, set.AccessManager, RoleMembers(contracts.RoleBridgeOperator, pageSize))
				for _, w := range words {
					if addr, ok := utils.TryBytes32ToAddress(w); ok {
						view.BridgeOperators = append(view.BridgeOperators, addr)
					}
				}
			}
			view.RefreshedAt = s.now()
			return &view, nil
		})
}

// RefreshDepositView re-reads the deposit ledger of chainID and warms the
// reads behind its actor-less view
func (s *BridgeViewService) RefreshDepositView(ctx context.Context, chainID uint64) error {
	s.cache.InvalidateMatching(func(k QueryKey) bool {
		return k.ChainID == chainID && (k.Query == QueryDepositHashes || k.Query == QueryDeposits)
	})
	_, err := s.buildDepositView(ctx, chainID, nil)
	return err
}

// RefreshCrossChainState re-reads what the deposit view of chainID shows from
// its destinations: approvals of its deposits and the withdraw ledgers of its
// peers
func (s *BridgeViewService) RefreshCrossChainState(ctx context.Context, chainID uint64) error {
	peers := make(map[uint64]struct{})
	for _, d := range s.registry.PeerChains(chainID) {
		peers[d.ChainID] = struct{}{}
	}
	approvalsPrefix := fmt.Sprintf("src=%d;", chainID)
	s.cache.InvalidateMatching(func(k QueryKey) bool {
		switch k.Query {
		case QueryXChainApprovals:
			return strings.HasPrefix(k.Param, approvalsPrefix)
		case QueryXChainWithdrawHashes:
			_, ok := peers[k.ChainID]
			return ok
		}
		return false
	})
	_, err := s.buildDepositView(ctx, chainID, nil)
	return err
}

// RefreshWithdrawView re-reads the withdraw ledger of chainID and stores the
// actor-independent rows
func (s *BridgeViewService) RefreshWithdrawView(ctx context.Context, chainID uint64) error {
	s.cache.InvalidateMatching(func(k QueryKey) bool {
		if k.ChainID != chainID {
			return false
		}
		switch k.Query {
		case QueryWithdrawHashes, QueryWithdraws, QueryPeerDepositHashes:
			return true
		}
		return false
	})
	_, err := s.cache.Refresh(ctx, withdrawRowsKey(chainID), func(ctx context.Context) (interface{}, error) {
		return s.buildWithdrawRows(ctx, chainID)
	})
	return err
}

// RefreshBlockTime re-reads the latest block timestamp of chainID, which
// every withdraw countdown is computed from
func (s *BridgeViewService) RefreshBlockTime(ctx context.Context, chainID uint64) error {
	client, ok := s.registry.Client(chainID)
	if !ok {
		return nil
	}
	_, err := s.cache.Refresh(ctx, QueryKey{ChainID: chainID, Query: QueryBlockTime}, func(ctx context.Context) (interface{}, error) {
		return client.LatestBlockTime(ctx)
	})
	return err
}

// RefreshRegistryView drops and rebuilds the registry view of chainID
func (s *BridgeViewService) RefreshRegistryView(ctx context.Context, chainID uint64) error {
	s.cache.InvalidateMatching(func(k QueryKey) bool {
		return k.ChainID == chainID && k.Query == QueryRegistry
	})
	_, err := s.RegistryView(ctx, chainID)
	return err
}

// MergeHashes appends b to a, skipping ids already present (case-insensitive),
// and keeps first-seen order
func MergeHashes(a, b []common.Hash) []common.Hash {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]common.Hash, 0, len(a)+len(b))
	for _, list := range [][]common.Hash{a, b} {
		for _, h := range list {
			k := utils.LowerHex(h)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// InvalidateAfterApprove drops the cached state an approveWithdraw on
// destChainID changes, plus the source chain's deposit-derived entries
func (s *BridgeViewService) InvalidateAfterApprove(sourceChainID, destChainID uint64) int {
	return s.cache.InvalidateMatching(func(k QueryKey) bool {
		if k.ChainID == destChainID {
			switch k.Query {
			case QueryXChainApprovals, QueryXChainWithdrawHashes, QueryWithdrawHashes,
				QueryWithdraws, QueryWithdrawView:
				return true
			}
		}
		// the source chain's deposit view reads the destination's state
		// through the keys above; only its peer-derived withdraw rows remain
		return k.ChainID == sourceChainID && k.Query == QueryWithdrawView
	})
}

// InvalidateAfterExecute drops the withdraw-side state of chainID
func (s *BridgeViewService) InvalidateAfterExecute(chainID uint64) int {
	return s.cache.InvalidateMatching(func(k QueryKey) bool {
		if k.ChainID != chainID {
			return false
		}
		switch k.Query {
		case QueryWithdraws, QueryWithdrawHashes, QueryWithdrawView,
			// deposit views elsewhere read this chain's approval state
			QueryXChainApprovals, QueryXChainWithdrawHashes:
			return true
		}
		return false
	})
}

// ApplyAction drops the cached state a confirmed action changed, whether it
// ran here or on a sibling instance
func (s *BridgeViewService) ApplyAction(result models.ActionResult) int {
	switch result.Action {
	case ActionApproveWithdraw:
		return s.InvalidateAfterApprove(result.SourceChainID, result.ChainID)
	case ActionExecuteWithdraw:
		return s.InvalidateAfterExecute(result.ChainID)
	}
	return s.InvalidateChain(result.ChainID)
}

// InvalidateChain drops every cached entry for chainID
func (s *BridgeViewService) InvalidateChain(chainID uint64) int {
	return s.cache.InvalidateChain(chainID)
}
