package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"bridge-backend/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTokenList = `{
  "name": "test list",
  "tokens": [
    {"chainId": 97, "address": "0xAbCdEf0000000000000000000000000000000001", "name": "Test USD", "symbol": "TUSD", "decimals": 6, "logoURI": "ipfs://QmLogo"},
    {"chainId": 56, "address": "0xabcdef0000000000000000000000000000000001", "name": "Other", "symbol": "OTH", "decimals": 18},
    {"chainId": 97, "address": "not-an-address", "name": "Bad", "symbol": "BAD", "decimals": 18}
  ]
}`

func TestTokenListLookupByChainAndLowercasedAddress(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(sampleTokenList))
	}))
	defer server.Close()

	c := NewTokenListClient(config.TokenListConfig{URL: server.URL}, time.Minute)
	token := common.HexToAddress("0xabcdef0000000000000000000000000000000001")

	item, ok, err := c.Lookup(context.Background(), 97, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "TUSD", item.Symbol)
	assert.Equal(t, uint8(6), item.Decimals)

	item, ok, err = c.Lookup(context.Background(), 56, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "OTH", item.Symbol)

	_, ok, err = c.Lookup(context.Background(), 5611, token)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "list cached within ttl")
}

func TestTokenListFromFileAndFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenlist.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleTokenList), 0o600))

	c := NewTokenListClient(config.TokenListConfig{Path: path}, time.Minute)
	_, ok, err := c.Lookup(context.Background(), 97, common.HexToAddress("0xabcdef0000000000000000000000000000000001"))
	require.NoError(t, err)
	assert.True(t, ok)

	missing := NewTokenListClient(config.TokenListConfig{Path: filepath.Join(t.TempDir(), "nope.json")}, time.Minute)
	_, ok, err = missing.Lookup(context.Background(), 97, common.Address{})
	assert.Error(t, err)
	assert.False(t, ok)

	none := NewTokenListClient(config.TokenListConfig{}, time.Minute)
	_, ok, err = none.Lookup(context.Background(), 97, common.Address{})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenListLoadedOncePerProcess(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sampleTokenList))
	}))
	defer server.Close()

	c := NewTokenListClient(config.TokenListConfig{URL: server.URL}, 0)
	token := common.HexToAddress("0xabcdef0000000000000000000000000000000001")

	_, ok, err := c.Lookup(context.Background(), 97, token)
	assert.Error(t, err)
	assert.False(t, ok)

	fail.Store(false)
	_, ok, err = c.Lookup(context.Background(), 97, token)
	require.NoError(t, err)
	assert.True(t, ok, "a failed first load is retried")

	c.loadedAt = time.Now().Add(-24 * time.Hour)
	for i := 0; i < 3; i++ {
		_, ok, err = c.Lookup(context.Background(), 56, token)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
