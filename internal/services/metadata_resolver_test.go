package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"bridge-backend/internal/clients"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokenList struct {
	items   map[string]clients.TokenListItem
	err     error
	lookups int32
}

func (s *stubTokenList) Lookup(ctx context.Context, chainID uint64, token common.Address) (clients.TokenListItem, bool, error) {
	atomic.AddInt32(&s.lookups, 1)
	if s.err != nil {
		return clients.TokenListItem{}, false, s.err
	}
	item, ok := s.items[strings.ToLower(token.Hex())]
	if !ok || item.ChainID != chainID {
		return clients.TokenListItem{}, false, nil
	}
	return item, true, nil
}

var (
	listedToken  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	bridgedToken = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	plainToken   = common.HexToAddress("0x00000000000000000000000000000000000000d3")
	unknownToken = common.HexToAddress("0x00000000000000000000000000000000000000d4")
)

func metadataFixture(t *testing.T) (*testEngine, *fakeChain, *stubTokenList) {
	t.Helper()
	chain := newFakeChain(97, true)
	chain.tokens[listedToken] = fakeToken{name: "On Chain Name", symbol: "OCN", decimals: 6}
	chain.tokens[bridgedToken] = fakeToken{name: "Bridged USD", symbol: "bUSD", decimals: 18, logo: "ipfs://QmLogo/usd.png", bridged: true}
	chain.tokens[plainToken] = fakeToken{name: "Plain", symbol: "PLN", decimals: 8}

	list := &stubTokenList{items: map[string]clients.TokenListItem{
		strings.ToLower(listedToken.Hex()): {
			Name: "Listed", Symbol: "LST", ChainID: 97, Decimals: 18,
			LogoURI: "https://tokens.example/lst.png",
		},
	}}
	return newTestEngine(t, list, chain), chain, list
}

func TestTokenListWins(t *testing.T) {
	e, chain, _ := metadataFixture(t)

	meta, ok := e.meta.Resolve(context.Background(), 97, listedToken)
	require.True(t, ok)
	assert.Equal(t, "Listed", meta.Name)
	assert.Equal(t, MetaSourceTokenList, meta.Source)
	assert.Equal(t, "https://tokens.example/lst.png", meta.LogoURI)
	require.NotNil(t, meta.Decimals)
	assert.Equal(t, uint8(18), *meta.Decimals)

	_, batches, _, _ := chain.counters()
	assert.Zero(t, batches, "no on-chain reads when the list answers")
}

func TestBridgedTokenBeforeERC20(t *testing.T) {
	e, _, _ := metadataFixture(t)

	meta, ok := e.meta.Resolve(context.Background(), 97, bridgedToken)
	require.True(t, ok)
	assert.Equal(t, MetaSourceBridged, meta.Source)
	assert.Equal(t, "bUSD", meta.Symbol)
	assert.Equal(t, "https://ipfs.io/ipfs/QmLogo/usd.png", meta.LogoURI)
}

func TestERC20WhenLogoLinkMissing(t *testing.T) {
	e, _, _ := metadataFixture(t)

	meta, ok := e.meta.Resolve(context.Background(), 97, plainToken)
	require.True(t, ok)
	assert.Equal(t, MetaSourceERC20, meta.Source)
	assert.Equal(t, "Plain", meta.Name)
	assert.Empty(t, meta.LogoURI)
	assert.Equal(t, uint8(8), *meta.Decimals)
}

func TestAbsentMetadataIsCached(t *testing.T) {
	e, chain, list := metadataFixture(t)

	_, ok := e.meta.Resolve(context.Background(), 97, unknownToken)
	assert.False(t, ok)
	_, batches, _, _ := chain.counters()
	assert.Equal(t, 2, batches)

	_, ok = e.meta.Resolve(context.Background(), 97, unknownToken)
	assert.False(t, ok)
	_, batchesAfter, _, _ := chain.counters()
	assert.Equal(t, batches, batchesAfter)
	assert.Equal(t, int32(1), atomic.LoadInt32(&list.lookups))
}

func TestTokenListErrorFallsThrough(t *testing.T) {
	e, _, list := metadataFixture(t)
	list.err = errors.New("list unreachable")

	meta, ok := e.meta.Resolve(context.Background(), 97, listedToken)
	require.True(t, ok)
	assert.Equal(t, MetaSourceERC20, meta.Source)
	assert.Equal(t, "On Chain Name", meta.Name)
}

func TestResolveManyDeduplicates(t *testing.T) {
	e, _, list := metadataFixture(t)

	metas := e.meta.ResolveMany(context.Background(), 97, []common.Address{listedToken, listedToken, unknownToken, plainToken})

	assert.Len(t, metas, 2)
	assert.Contains(t, metas, lowerAddress(listedToken))
	assert.Contains(t, metas, lowerAddress(plainToken))
	assert.Equal(t, int32(3), atomic.LoadInt32(&list.lookups))
}

func TestUnknownChainHasNoOnChainSource(t *testing.T) {
	e, _, _ := metadataFixture(t)
	_, ok := e.meta.Resolve(context.Background(), 1, plainToken)
	assert.False(t, ok)
}
