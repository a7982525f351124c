package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"bridge-backend/internal/config"

	"github.com/ethereum/go-ethereum/common"
)

// TokenListItem one entry of a tokenlist.json document
type TokenListItem struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	ChainID  uint64 `json:"chainId"`
	Decimals uint8  `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

type tokenListDocument struct {
	Name   string          `json:"name"`
	Tokens []TokenListItem `json:"tokens"`
}

// TokenListClient loads the static token list from a URL or local file and
// indexes it by chain and lowercased address
type TokenListClient struct {
	url        string
	path       string
	ttl        time.Duration
	httpClient *http.Client

	mu       sync.RWMutex
	index    map[uint64]map[string]TokenListItem
	loadedAt time.Time
}

// NewTokenListClient creates a token list client. Both source fields empty
// yields a client whose lookups always miss. A ttl of zero loads the list once
// per process; until a load succeeds every lookup retries it.
func NewTokenListClient(cfg config.TokenListConfig, ttl time.Duration) *TokenListClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenListClient{
		url:  cfg.URL,
		path: cfg.Path,
		ttl:  ttl,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Lookup finds token on chainID. The list is loaded lazily on first use and,
// with a positive TTL, reloaded once it lapses; a failed reload keeps serving
// the previous copy.
func (c *TokenListClient) Lookup(ctx context.Context, chainID uint64, token common.Address) (TokenListItem, bool, error) {
	if c.url == "" && c.path == "" {
		return TokenListItem{}, false, nil
	}

	c.mu.RLock()
	index, fresh := c.index, c.ttl <= 0 || time.Since(c.loadedAt) < c.ttl
	c.mu.RUnlock()

	var loadErr error
	if index == nil || !fresh {
		var err error
		index, err = c.reload(ctx)
		if err != nil {
			loadErr = err
		}
	}
	if index == nil {
		return TokenListItem{}, false, loadErr
	}

	item, ok := index[chainID][strings.ToLower(token.Hex())]
	return item, ok, nil
}

func (c *TokenListClient) reload(ctx context.Context) (map[uint64]map[string]TokenListItem, error) {
	doc, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return c.index, err
	}

	index := make(map[uint64]map[string]TokenListItem)
	for _, t := range doc.Tokens {
		if !common.IsHexAddress(t.Address) {
			continue
		}
		byAddr, ok := index[t.ChainID]
		if !ok {
			byAddr = make(map[string]TokenListItem)
			index[t.ChainID] = byAddr
		}
		byAddr[strings.ToLower(t.Address)] = t
	}
	c.index = index
	c.loadedAt = time.Now()
	return index, nil
}

func (c *TokenListClient) fetch(ctx context.Context) (*tokenListDocument, error) {
	var body []byte
	if c.url != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch token list: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("token list error (status %d): %s", resp.StatusCode, string(msg))
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read token list: %w", err)
		}
	} else {
		var err error
		body, err = os.ReadFile(c.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read token list: %w", err)
		}
	}

	var doc tokenListDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}
	return &doc, nil
}
