package services

import (
	"context"
	"testing"
	"time"

	"bridge-backend/internal/contracts"
	"bridge-backend/internal/models"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeHashesKeepsFirstSeenOrder(t *testing.T) {
	a := []common.Hash{hashN(1), hashN(2)}
	b := []common.Hash{hashN(2), hashN(3), hashN(1), hashN(4)}

	merged := MergeHashes(a, b)
	assert.Equal(t, []common.Hash{hashN(1), hashN(2), hashN(3), hashN(4)}, merged)
	assert.Empty(t, MergeHashes(nil, nil))
}

// withdrawFixture: 97 holds withdraw h1; 5611 deposits h1, h2 and h3 towards 97
// and h4 towards 80002. h2 is approved on 97 without a withdraw record.
func withdrawFixture(t *testing.T) (*testEngine, *fakeChain) {
	t.Helper()
	dest := newFakeChain(97, true)
	src := newFakeChain(5611, true)
	other := newFakeChain(80002, true)
	mainnet := newFakeChain(56, false)

	dest.addWithdraw(hashN(1), 5611, tokenA, userA, 10)
	dest.approve(hashN(1), 1000)
	dest.approve(hashN(2), 1000)
	dest.blockTime = 1200
	dest.tokens[tokenA] = fakeToken{name: "Token A", symbol: "TKA", decimals: 18}

	for i := 1; i <= 3; i++ {
		src.addDeposit(hashN(i), 97, tokenA, userA, 10)
	}
	src.addDeposit(hashN(4), 80002, tokenA, userA, 10)
	mainnet.addDeposit(hashN(5), 97, tokenA, userA, 10)

	return newTestEngine(t, nil, dest, src, other, mainnet), dest
}

func TestWithdrawViewMergesPeerDeposits(t *testing.T) {
	e, _ := withdrawFixture(t)

	view, err := e.views.WithdrawView(context.Background(), 97, nil)
	require.NoError(t, err)
	require.True(t, view.Available)
	assert.Equal(t, uint64(1200), view.BlockTime)

	require.Len(t, view.Items, 2, "h3 has neither record nor approval, h4 and h5 target elsewhere")
	h1, h2 := view.Items[0], view.Items[1]

	assert.Equal(t, hashN(1), h1.Hash)
	require.NotNil(t, h1.Withdraw)
	require.NotNil(t, h1.Source)
	assert.Equal(t, uint64(5611), h1.Source.ChainID)
	assert.Equal(t, models.ApprovalStatusApproved, h1.Status)
	require.NotNil(t, h1.TokenMeta)
	assert.Equal(t, "TKA", h1.TokenMeta.Symbol)

	assert.Equal(t, hashN(2), h2.Hash)
	assert.Nil(t, h2.Withdraw)
	assert.Nil(t, h2.Source)
	assert.Equal(t, models.ApprovalStatusApproved, h2.Status)
}

func TestWithdrawViewEligibilityFollowsActor(t *testing.T) {
	e, dest := withdrawFixture(t)
	dest.permissions[contracts.RouterWithdrawSelector()] = models.Permission{Delay: 300}

	anonymous, err := e.views.WithdrawView(context.Background(), 97, nil)
	require.NoError(t, err)
	assert.Zero(t, anonymous.ExecutionDelay)
	assert.False(t, anonymous.Items[0].Eligibility.ActionableNow)

	actor := operatorAddr
	view, err := e.views.WithdrawView(context.Background(), 97, &actor)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), view.ExecutionDelay)

	elig := view.Items[0].Eligibility
	assert.Equal(t, uint64(1300), elig.AllowedAt)
	assert.Equal(t, uint64(100), elig.RemainingSeconds)
	assert.False(t, elig.ActionableNow)

	// once the delay has passed the row becomes actionable
	dest.blockTime = 1300
	require.NoError(t, e.views.RefreshBlockTime(context.Background(), 97))
	view, err = e.views.WithdrawView(context.Background(), 97, &actor)
	require.NoError(t, err)
	assert.True(t, view.Items[0].Eligibility.ActionableNow)

	anonymous, err = e.views.WithdrawView(context.Background(), 97, nil)
	require.NoError(t, err)
	assert.Nil(t, anonymous.Actor)
	assert.False(t, anonymous.Items[0].Eligibility.ActionableNow, "rows shared between actors keep per-actor eligibility")
}

func TestWithdrawCountdownFollowsBlockTimeBetweenRowRefreshes(t *testing.T) {
	e, dest := withdrawFixture(t)
	dest.permissions[contracts.RouterWithdrawSelector()] = models.Permission{Delay: 600}
	dest.blockTime = 1599
	actor := operatorAddr
	ctx := context.Background()

	view, err := e.views.WithdrawView(ctx, 97, &actor)
	require.NoError(t, err)
	elig := view.Items[0].Eligibility
	assert.Equal(t, uint64(1600), elig.AllowedAt)
	assert.Equal(t, uint64(1), elig.RemainingSeconds)
	assert.False(t, elig.ActionableNow)
	_, _, _, pages := dest.counters()

	// the block time window lapses while the withdraw rows are still fresh
	dest.blockTime = 1611
	e.advance(12 * time.Second)

	view, err = e.views.WithdrawView(ctx, 97, &actor)
	require.NoError(t, err)
	assert.Equal(t, uint64(1611), view.BlockTime)
	elig = view.Items[0].Eligibility
	assert.Zero(t, elig.RemainingSeconds)
	assert.True(t, elig.ActionableNow)

	_, _, _, pagesAfter := dest.counters()
	assert.Equal(t, pages, pagesAfter, "withdraw ledger is not re-enumerated")
}

func TestDepositViewPicksUpDestinationApprovalAfterItsInterval(t *testing.T) {
	src := newFakeChain(5611, true)
	dest := newFakeChain(97, true)
	src.addDeposit(hashN(1), 97, tokenA, userA, 1)
	e := newTestEngine(t, nil, src, dest)
	ctx := context.Background()

	view, err := e.views.DepositView(ctx, 5611, nil)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.NotEqual(t, models.ApprovalStatusApproved, view.Items[0].ApprovalStatus)
	assert.False(t, view.Items[0].WithdrawPresent)

	dest.addWithdraw(hashN(1), 5611, tokenA, userA, 1)
	dest.approve(hashN(1), 1000)

	e.advance(5 * time.Second)
	view, err = e.views.DepositView(ctx, 5611, nil)
	require.NoError(t, err)
	assert.False(t, view.Items[0].ApprovedAndMatched, "destination reads are still fresh")

	// past the cross-chain interval, well within the deposit ledger's
	e.advance(15 * time.Second)
	view, err = e.views.DepositView(ctx, 5611, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, view.Items[0].ApprovalStatus)
	assert.True(t, view.Items[0].WithdrawPresent)
	assert.True(t, view.Items[0].ApprovedAndMatched)
}

func TestRefreshCrossChainStateRereadsDestinations(t *testing.T) {
	src := newFakeChain(5611, true)
	dest := newFakeChain(97, true)
	src.addDeposit(hashN(1), 97, tokenA, userA, 1)
	e := newTestEngine(t, nil, src, dest)
	ctx := context.Background()

	_, err := e.views.DepositView(ctx, 5611, nil)
	require.NoError(t, err)
	_, _, _, srcPages := src.counters()

	dest.addWithdraw(hashN(1), 5611, tokenA, userA, 1)
	dest.approve(hashN(1), 1000)
	require.NoError(t, e.views.RefreshCrossChainState(ctx, 5611))

	view, err := e.views.DepositView(ctx, 5611, nil)
	require.NoError(t, err)
	assert.True(t, view.Items[0].ApprovedAndMatched)
	_, _, _, srcPagesAfter := src.counters()
	assert.Equal(t, srcPages, srcPagesAfter, "source ledger stays cached")
}

func TestUnconfiguredChainViewsAreUnavailable(t *testing.T) {
	e := newTestEngine(t, nil, newFakeChain(97, true))

	deposits, err := e.views.DepositView(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.False(t, deposits.Available)
	assert.Empty(t, deposits.Items)

	withdraws, err := e.views.WithdrawView(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.False(t, withdraws.Available)
	assert.NotNil(t, withdraws.Items)

	reg, err := e.views.RegistryView(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, reg.Available)
}

func TestDepositViewReadsAreCached(t *testing.T) {
	src := newFakeChain(5611, true)
	dest := newFakeChain(97, true)
	src.addDeposit(hashN(1), 97, tokenA, userA, 1)
	e := newTestEngine(t, nil, src, dest)

	first, err := e.views.DepositView(context.Background(), 5611, nil)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	_, batches, _, pages := src.counters()

	second, err := e.views.DepositView(context.Background(), 5611, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items)
	_, batchesAfter, _, pagesAfter := src.counters()
	assert.Equal(t, batches, batchesAfter)
	assert.Equal(t, pages, pagesAfter)
}

func TestRefreshDepositViewPicksUpNewDeposits(t *testing.T) {
	src := newFakeChain(5611, true)
	dest := newFakeChain(97, true)
	src.addDeposit(hashN(1), 97, tokenA, userA, 1)
	e := newTestEngine(t, nil, src, dest)

	view, err := e.views.DepositView(context.Background(), 5611, nil)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	src.addDeposit(hashN(2), 97, tokenA, userA, 2)
	require.NoError(t, e.views.RefreshDepositView(context.Background(), 5611))

	view, err = e.views.DepositView(context.Background(), 5611, nil)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
}

func TestRegistryView(t *testing.T) {
	chain := newFakeChain(97, true)
	peer := newFakeChain(5611, true)
	foreign := utils.DeriveChainKey("COSMW", 1)
	chain.chainKeys = []common.Hash{utils.EVMChainKey(5611), foreign}
	chain.registryTokens = []common.Address{tokenA}
	chain.operators = []common.Address{operatorAddr}
	chain.tokens[tokenA] = fakeToken{name: "Token A", symbol: "TKA", decimals: 6}
	e := newTestEngine(t, nil, chain, peer)

	view, err := e.views.RegistryView(context.Background(), 97)
	require.NoError(t, err)
	require.True(t, view.Available)

	require.Len(t, view.ChainKeys, 2)
	assert.Equal(t, uint64(5611), view.ChainKeys[0].Ref.ChainID)
	assert.Equal(t, "Chain 5611", view.ChainKeys[0].Label)
	assert.Equal(t, models.ChainRefForeign, view.ChainKeys[1].Ref.Kind)
	assert.Empty(t, view.ChainKeys[1].Label)

	require.Len(t, view.Tokens, 1)
	assert.Equal(t, tokenA, view.Tokens[0].Address)
	require.NotNil(t, view.Tokens[0].Meta)
	assert.Equal(t, "TKA", view.Tokens[0].Meta.Symbol)

	assert.Equal(t, []common.Address{operatorAddr}, view.BridgeOperators)
}

// cachedQueries query names cached for chainID
func cachedQueries(e *testEngine, chainID uint64) map[string]bool {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()
	out := make(map[string]bool)
	for k := range e.cache.entries {
		if k.ChainID == chainID {
			out[k.Query] = true
		}
	}
	return out
}

func TestApplyActionInvalidatesAffectedViews(t *testing.T) {
	e, _ := withdrawFixture(t)
	ctx := context.Background()

	_, err := e.views.WithdrawView(ctx, 97, nil)
	require.NoError(t, err)
	_, err = e.views.DepositView(ctx, 5611, nil)
	require.NoError(t, err)
	_, err = e.views.WithdrawView(ctx, 80002, nil)
	require.NoError(t, err)
	require.True(t, cachedQueries(e, 97)[QueryXChainApprovals])

	n := e.views.ApplyAction(models.ActionResult{Action: ActionApproveWithdraw, ChainID: 97, SourceChainID: 5611})
	assert.Positive(t, n)

	dest := cachedQueries(e, 97)
	assert.False(t, dest[QueryWithdrawView])
	assert.False(t, dest[QueryXChainApprovals])
	assert.False(t, dest[QueryXChainWithdrawHashes])
	assert.True(t, dest[QueryBlockTime])
	assert.True(t, cachedQueries(e, 5611)[QueryDepositHashes], "the source ledger is unchanged by an approval")
	assert.True(t, cachedQueries(e, 80002)[QueryWithdrawView], "unrelated chains keep their views")
}

func TestInvalidateAfterExecuteReachesDepositViews(t *testing.T) {
	e, _ := withdrawFixture(t)
	ctx := context.Background()

	_, err := e.views.DepositView(ctx, 5611, nil)
	require.NoError(t, err)
	_, err = e.views.RegistryView(ctx, 97)
	require.NoError(t, err)
	require.True(t, cachedQueries(e, 97)[QueryXChainApprovals])

	e.views.InvalidateAfterExecute(97)

	assert.False(t, cachedQueries(e, 97)[QueryXChainApprovals])
	assert.True(t, cachedQueries(e, 5611)[QueryDeposits])
	_, ok := e.cache.Get(QueryKey{ChainID: 97, Contract: chainRegAddr, Query: QueryRegistry})
	assert.True(t, ok)
}
