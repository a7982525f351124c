package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/models"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxFanOut = 8

// Correlator joins source-chain deposits with the approval and withdraw state
// on their destination chains
type Correlator struct {
	registry  *clients.ChainRegistry
	paginator *LedgerPaginator
	fetcher   *BatchFetcher
	cache     *ViewCache
	meta      *MetadataResolver
	logger    *logrus.Entry
}

// NewCorrelator creates a Correlator
func NewCorrelator(registry *clients.ChainRegistry, paginator *LedgerPaginator, fetcher *BatchFetcher, cache *ViewCache, meta *MetadataResolver, logger *logrus.Logger) *Correlator {
	return &Correlator{
		registry:  registry,
		paginator: paginator,
		fetcher:   fetcher,
		cache:     cache,
		meta:      meta,
		logger:    logger.WithField("component", "correlator"),
	}
}

// destinationState what one destination chain knows about a group of deposits
type destinationState struct {
	approvals  map[string]*models.ApprovalState // lowercased hash
	withdraws  map[string]struct{}
	canApprove *models.Permission
	tokenMeta  map[string]*models.TokenMetadata
}

// CorrelateDeposits decodes each deposit's destination, then for every distinct
// destination chain reads approvals, the withdraw ledger and approve permission
// once. Entries whose deposit read failed are dropped; order is kept.
func (c *Correlator) CorrelateDeposits(ctx context.Context, sourceChainID uint64, deposits []models.DepositEntry, actor *common.Address) []models.CorrelatedView {
	views := make([]models.CorrelatedView, 0, len(deposits))
	groups := make(map[uint64][]int)

	for _, entry := range deposits {
		if entry.Deposit == nil {
			continue
		}
		d := entry.Deposit
		view := models.CorrelatedView{
			Hash:           entry.Hash,
			SourceChainID:  sourceChainID,
			Deposit:        *d,
			Destination:    c.registry.DecodeChainKey(d.DestChainKey),
			DestToken:      utils.DecodeOpaqueAccount(d.DestTokenAddress),
			DestAccount:    utils.DecodeOpaqueAccount(d.DestAccount),
			ApprovalStatus: models.ApprovalStatusNone,
		}
		view.CrossEcosystem = !view.Destination.IsEVM() ||
			view.DestToken.Kind != models.AccountEVM ||
			view.DestAccount.Kind != models.AccountEVM

		if !view.CrossEcosystem {
			dest := view.Destination.ChainID
			groups[dest] = append(groups[dest], len(views))
		}
		views = append(views, view)
	}

	destIDs := make([]uint64, 0, len(groups))
	for id := range groups {
		destIDs = append(destIDs, id)
	}
	sort.Slice(destIDs, func(i, j int) bool { return destIDs[i] < destIDs[j] })

	states := make([]*destinationState, len(destIDs))
	fanOut(ctx, len(destIDs), func(ctx context.Context, i int) {
		destID := destIDs[i]
		idx := groups[destID]
		hashes := make([]common.Hash, len(idx))
		tokens := make([]common.Address, len(idx))
		for j, vi := range idx {
			hashes[j] = views[vi].Hash
			tokens[j] = *views[vi].DestToken.Address
		}
		states[i] = c.destinationState(ctx, sourceChainID, destID, hashes, tokens, actor)
	})

	for i, destID := range destIDs {
		state := states[i]
		if state == nil {
			continue
		}
		for _, vi := range groups[destID] {
			v := &views[vi]
			key := utils.LowerHex(v.Hash)
			v.Approval = state.approvals[key]
			v.ApprovalStatus = v.Approval.Status()
			_, v.WithdrawPresent = state.withdraws[key]
			v.ApprovedAndMatched = v.Approval != nil && v.Approval.IsApproved && v.WithdrawPresent
			v.CanApprove = state.canApprove
			v.DestTokenMeta = state.tokenMeta[lowerAddress(*v.DestToken.Address)]
		}
	}
	return views
}

// destinationState returns nil when the destination chain is unreachable
func (c *Correlator) destinationState(ctx context.Context, sourceChainID, destID uint64, hashes []common.Hash, tokens []common.Address, actor *common.Address) *destinationState {
	desc, ok := c.registry.Descriptor(destID)
	if !ok || !desc.Contracts.HasBridge() {
		return nil
	}
	client, ok := c.registry.Client(destID)
	if !ok {
		return nil
	}
	bridge := desc.Contracts.Bridge
	log := c.logger.WithFields(logrus.Fields{"chain_id": destID, "bridge": bridge.Hex()})

	state := &destinationState{}

	approvalsKey := QueryKey{
		ChainID:  destID,
		Contract: bridge,
		Query:    QueryXChainApprovals,
		Param:    fmt.Sprintf("src=%d;ids=%s", sourceChainID, hashListDigest(hashes)),
	}
	state.approvals, _ = cached(ctx, c.cache, approvalsKey, func(ctx context.Context) (map[string]*models.ApprovalState, error) {
		approvals := c.fetcher.FetchApprovals(ctx, client, bridge, hashes)
		out := make(map[string]*models.ApprovalState, len(approvals))
		for i, a := range approvals {
			if a != nil {
				out[utils.LowerHex(hashes[i])] = a
			}
		}
		log.WithField("count", len(out)).Debug("xchain approvals")
		return out, nil
	})

	withdrawsKey := QueryKey{ChainID: destID, Contract: bridge, Query: QueryXChainWithdrawHashes}
	state.withdraws, _ = cached(ctx, c.cache, withdrawsKey, func(ctx context.Context) (map[string]struct{}, error) {
		ids := c.paginator.EnumerateRecordIDs(ctx, client, bridge, WithdrawHashes())
		return hashSet(ids), nil
	})

	if actorPresent(actor) && desc.Contracts.AccessManager != (common.Address{}) {
		permKey := QueryKey{ChainID: destID, Contract: desc.Contracts.AccessManager, Query: QueryCanApprove, Param: lowerAddress(*actor)}
		perm, err := cached(ctx, c.cache, permKey, func(ctx context.Context) (models.Permission, error) {
			return CanCall(ctx, client, desc.Contracts.AccessManager, *actor, bridge, contracts.ApproveWithdrawSelector())
		})
		if err != nil {
			log.WithError(err).Debug("canCall failed")
		} else {
			state.canApprove = &perm
		}
	}

	if c.meta != nil {
		state.tokenMeta = c.meta.ResolveMany(ctx, destID, tokens)
	}
	return state
}

// fanOut runs fn for 0..n-1 concurrently with bounded parallelism and waits
func fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if n == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func hashSet(ids []common.Hash) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[utils.LowerHex(id)] = struct{}{}
	}
	return set
}

// hashListDigest order-independent fingerprint of an id list, used to key
// cached reads whose result depends on the exact ids requested
func hashListDigest(ids []common.Hash) string {
	sorted := make([]common.Hash, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })
	buf := make([]byte, 0, len(sorted)*common.HashLength)
	for _, id := range sorted {
		buf = append(buf, id[:]...)
	}
	return crypto.Keccak256Hash(buf).Hex()
}

func lowerAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}
