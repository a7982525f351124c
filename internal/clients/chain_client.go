package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bridge-backend/internal/config"
	"bridge-backend/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// ErrNoSigner the client was built without a signing key
var ErrNoSigner = errors.New("no signing key configured for chain")

// CallMsg a read-only contract call
type CallMsg struct {
	From *common.Address
	To   common.Address
	Data []byte
}

// CallResult one element of a batched call. Err is set when that call failed.
type CallResult struct {
	Data []byte
	Err  error
}

// ChainClient everything the reconciliation engine needs from one chain's RPC endpoint
type ChainClient interface {
	ChainID() uint64
	Call(ctx context.Context, msg CallMsg) ([]byte, error)
	// BatchCall dispatches all calls in one JSON-RPC batch. Results are positional.
	BatchCall(ctx context.Context, msgs []CallMsg) ([]CallResult, error)
	LatestBlockTime(ctx context.Context) (uint64, error)
	Sender() (common.Address, bool)
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EVMChainClient ChainClient over go-ethereum's ethclient and rpc batch
type EVMChainClient struct {
	chainID     uint64
	endpoint    string
	rpc         *rpc.Client
	eth         *ethclient.Client
	key         *ecdsa.PrivateKey
	from        common.Address
	gasLimit    uint64
	batchLimit  int
	receiptPoll time.Duration
	logger      *logrus.Entry
}

// EVMClientOptions optional settings for DialEVMChainClient
type EVMClientOptions struct {
	PrivateKey  string
	GasLimit    uint64
	BatchLimit  int
	ReceiptPoll time.Duration
}

// DialEVMChainClient tries each RPC endpoint in order and keeps the first one
// whose eth_chainId matches the configured chain.
func DialEVMChainClient(ctx context.Context, network config.NetworkConfig, opts EVMClientOptions, logger *logrus.Logger) (*EVMChainClient, error) {
	entry := logger.WithFields(logrus.Fields{"component": "chain_client", "chain_id": network.ChainID})

	if len(network.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("network %s: no rpc endpoints", network.Name)
	}

	var lastErr error
	for i, endpoint := range network.RPCEndpoints {
		entry.Debugf("Trying endpoint %d/%d: %s", i+1, len(network.RPCEndpoints), endpoint)

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		rc, err := rpc.DialContext(dialCtx, endpoint)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("dial %s: %w", endpoint, err)
			entry.WithError(err).Warn("❌ Dial failed")
			continue
		}

		eth := ethclient.NewClient(rc)
		id, err := eth.ChainID(dialCtx)
		cancel()
		if err != nil {
			rc.Close()
			lastErr = fmt.Errorf("chain id check %s: %w", endpoint, err)
			entry.WithError(err).Warn("❌ ChainID check failed")
			continue
		}
		if id.Uint64() != network.ChainID {
			rc.Close()
			lastErr = fmt.Errorf("endpoint %s serves chain %s, expected %d", endpoint, id, network.ChainID)
			entry.Warn(lastErr.Error())
			continue
		}

		client, err := newEVMChainClient(network.ChainID, endpoint, rc, opts, entry)
		if err != nil {
			rc.Close()
			return nil, err
		}
		entry.WithField("endpoint", endpoint).Info("✅ Connected to RPC endpoint")
		return client, nil
	}
	return nil, fmt.Errorf("all rpc endpoints failed for %s: %w", network.Name, lastErr)
}

// NewEVMChainClient wraps an already connected rpc client without the chain id check
func NewEVMChainClient(chainID uint64, rc *rpc.Client, opts EVMClientOptions, logger *logrus.Logger) (*EVMChainClient, error) {
	entry := logger.WithFields(logrus.Fields{"component": "chain_client", "chain_id": chainID})
	return newEVMChainClient(chainID, "", rc, opts, entry)
}

func newEVMChainClient(chainID uint64, endpoint string, rc *rpc.Client, opts EVMClientOptions, entry *logrus.Entry) (*EVMChainClient, error) {
	c := &EVMChainClient{
		chainID:     chainID,
		endpoint:    endpoint,
		rpc:         rc,
		eth:         ethclient.NewClient(rc),
		gasLimit:    opts.GasLimit,
		batchLimit:  opts.BatchLimit,
		receiptPoll: opts.ReceiptPoll,
		logger:      entry,
	}
	if c.batchLimit <= 0 {
		c.batchLimit = 1000
	}
	if c.receiptPoll <= 0 {
		c.receiptPoll = 2 * time.Second
	}
	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("chain %d: invalid private key: %w", chainID, err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// ChainID implements ChainClient
func (c *EVMChainClient) ChainID() uint64 { return c.chainID }

// Sender the operator address, if a key is configured
func (c *EVMChainClient) Sender() (common.Address, bool) {
	return c.from, c.key != nil
}

// Call implements ChainClient
func (c *EVMChainClient) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	chainLabel := fmt.Sprint(c.chainID)
	metrics.RPCCalls.WithLabelValues(chainLabel, "call").Inc()

	call := ethereum.CallMsg{To: &msg.To, Data: msg.Data}
	if msg.From != nil {
		call.From = *msg.From
	}
	out, err := c.eth.CallContract(ctx, call, nil)
	if err != nil {
		metrics.RPCCallFailures.WithLabelValues(chainLabel, "call").Inc()
		return nil, err
	}
	return out, nil
}

// BatchCall implements ChainClient. Batches larger than the provider limit are
// split into sequential chunks.
func (c *EVMChainClient) BatchCall(ctx context.Context, msgs []CallMsg) ([]CallResult, error) {
	results := make([]CallResult, len(msgs))
	if len(msgs) == 0 {
		return results, nil
	}
	chainLabel := fmt.Sprint(c.chainID)

	for start := 0; start < len(msgs); start += c.batchLimit {
		end := start + c.batchLimit
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[start:end]

		raw := make([]hexutil.Bytes, len(chunk))
		elems := make([]rpc.BatchElem, len(chunk))
		for i, m := range chunk {
			arg := map[string]interface{}{
				"to":   m.To,
				"data": hexutil.Bytes(m.Data),
			}
			if m.From != nil {
				arg["from"] = *m.From
			}
			elems[i] = rpc.BatchElem{
				Method: "eth_call",
				Args:   []interface{}{arg, "latest"},
				Result: &raw[i],
			}
		}

		metrics.RPCCalls.WithLabelValues(chainLabel, "batch").Inc()
		metrics.RPCBatchSize.Observe(float64(len(chunk)))
		if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
			metrics.RPCCallFailures.WithLabelValues(chainLabel, "batch").Inc()
			return nil, fmt.Errorf("batch eth_call on chain %d: %w", c.chainID, err)
		}

		for i, el := range elems {
			if el.Error != nil {
				metrics.RPCCallFailures.WithLabelValues(chainLabel, "batch_element").Inc()
				results[start+i] = CallResult{Err: el.Error}
				continue
			}
			results[start+i] = CallResult{Data: raw[i]}
		}
	}
	return results, nil
}

// LatestBlockTime timestamp of the latest header
func (c *EVMChainClient) LatestBlockTime(ctx context.Context) (uint64, error) {
	metrics.RPCCalls.WithLabelValues(fmt.Sprint(c.chainID), "header").Inc()
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		metrics.RPCCallFailures.WithLabelValues(fmt.Sprint(c.chainID), "header").Inc()
		return 0, fmt.Errorf("latest header on chain %d: %w", c.chainID, err)
	}
	return header.Time, nil
}

// SendTransaction signs a legacy EIP-155 transaction with the operator key and submits it
func (c *EVMChainClient) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoSigner
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	// 20% headroom
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(120)), big.NewInt(100))

	gasLimit := c.gasLimit
	if estimated, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}); err == nil {
		gasLimit = estimated * 12 / 10
	} else if gasLimit == 0 {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(c.chainID)), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	c.logger.WithFields(logrus.Fields{
		"tx":        signed.Hash().Hex(),
		"to":        to.Hex(),
		"nonce":     nonce,
		"gas_limit": gasLimit,
	}).Info("📤 Transaction submitted")
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until it exists or ctx ends
func (c *EVMChainClient) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.WithError(err).WithField("tx", txHash.Hex()).Debug("receipt query failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the rpc connection
func (c *EVMChainClient) Close() {
	c.rpc.Close()
}
