package services

import (
	"context"
	"testing"

	"bridge-backend/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaginator(pageSize, maxItems uint64) *LedgerPaginator {
	return NewLedgerPaginator(config.LedgerConfig{PageSize: pageSize, MaxItems: maxItems}, testLogger())
}

func TestOpenPagesWalkUntilShortPage(t *testing.T) {
	chain := newFakeChain(97, true)
	for i := 0; i < 250; i++ {
		chain.depositHashes = append(chain.depositHashes, hashN(i))
	}

	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, bridgeAddr, DepositHashes())

	require.Len(t, ids, 250)
	assert.Equal(t, hashN(0), ids[0])
	assert.Equal(t, hashN(249), ids[249])
	_, _, _, pages := chain.counters()
	assert.Equal(t, 3, pages)
}

func TestOpenPagesExactMultipleReadsOneEmptyPage(t *testing.T) {
	chain := newFakeChain(97, true)
	for i := 0; i < 200; i++ {
		chain.withdrawHashes = append(chain.withdrawHashes, hashN(i))
	}

	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, bridgeAddr, WithdrawHashes())

	assert.Len(t, ids, 200)
	_, _, _, pages := chain.counters()
	assert.Equal(t, 3, pages)
}

func TestEmptyLedger(t *testing.T) {
	chain := newFakeChain(97, true)
	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, bridgeAddr, DepositHashes())
	assert.Empty(t, ids)
}

func TestPageFailureKeepsEarlierPages(t *testing.T) {
	chain := newFakeChain(97, true)
	for i := 0; i < 250; i++ {
		chain.depositHashes = append(chain.depositHashes, hashN(i))
	}
	chain.failPageAt = 100

	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, bridgeAddr, DepositHashes())

	require.Len(t, ids, 100)
	assert.Equal(t, hashN(99), ids[99])
}

func TestFirstPageFailureYieldsEmpty(t *testing.T) {
	chain := newFakeChain(97, true)
	chain.depositHashes = []common.Hash{hashN(1)}
	chain.failPageAt = 0

	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, bridgeAddr, DepositHashes())
	assert.Empty(t, ids)
}

func TestMaxItemsCeiling(t *testing.T) {
	chain := newFakeChain(97, true)
	for i := 0; i < 400; i++ {
		chain.depositHashes = append(chain.depositHashes, hashN(i))
	}

	ids := newPaginator(100, 150).EnumerateRecordIDs(context.Background(), chain, bridgeAddr, DepositHashes())

	require.Len(t, ids, 150)
	assert.Equal(t, hashN(149), ids[149])
}

func TestRegistryPrefersBulkRead(t *testing.T) {
	chain := newFakeChain(97, true)
	chain.chainKeys = []common.Hash{hashN(1), hashN(2), hashN(3)}

	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, chainRegAddr, RegisteredChainKeys(500))

	assert.Equal(t, chain.chainKeys, ids)
	calls, _, _, pages := chain.counters()
	assert.Equal(t, 1, calls)
	assert.Zero(t, pages)
}

func TestRegistryFallsBackToCountedPages(t *testing.T) {
	chain := newFakeChain(97, true)
	chain.noBulk = true
	for i := 0; i < 1200; i++ {
		chain.chainKeys = append(chain.chainKeys, hashN(i))
	}

	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, chainRegAddr, RegisteredChainKeys(500))

	require.Len(t, ids, 1200)
	assert.Equal(t, hashN(1199), ids[1199])
	_, _, _, pages := chain.counters()
	assert.Equal(t, 3, pages)
}

func TestRoleMembersAsWords(t *testing.T) {
	chain := newFakeChain(97, true)
	chain.noBulk = true
	chain.operators = []common.Address{operatorAddr, common.HexToAddress("0x00000000000000000000000000000000000000a2")}

	ids := newPaginator(100, 10000).EnumerateRecordIDs(context.Background(), chain, accessAddr, RoleMembers(2, 500))

	require.Len(t, ids, 2)
	assert.Equal(t, common.BytesToHash(operatorAddr.Bytes()), ids[0])
}
