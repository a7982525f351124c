package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/config"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/models"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

var (
	bridgeAddr   = common.HexToAddress("0x9981937e53758C46464fF89B35dF9A46175A7212")
	routerAddr   = common.HexToAddress("0x52cDA4D1D1cC1B1499E25f75933D8A83a9c111c0")
	accessAddr   = common.HexToAddress("0xA1012cf7d54650A01608161E7C70400dE7A3B476")
	chainRegAddr = common.HexToAddress("0x0B43A43A64284f49A9FDa3282C1a5f2eb74620D8")
	tokenRegAddr = common.HexToAddress("0x23F054503f163Fc5196E1D7E29B3cCDe73282101")

	operatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")

	errReverted = errors.New("execution reverted")
)

// revertError carries revert data the way a JSON-RPC error does
type revertError struct {
	msg  string
	data string
}

func (e *revertError) Error() string          { return e.msg }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return e.data }

type fakeToken struct {
	name     string
	symbol   string
	decimals uint8
	logo     string
	bridged  bool
}

type sentTx struct {
	to   common.Address
	data []byte
}

// fakeChain answers bridge suite calls from in-memory state. Calldata is
// decoded by selector and outputs are ABI packed, so the real codec runs.
type fakeChain struct {
	id        uint64
	testnet   bool
	blockTime uint64
	sender    *common.Address

	depositHashes  []common.Hash
	withdrawHashes []common.Hash
	deposits       map[common.Hash]contracts.DepositTuple
	withdraws      map[common.Hash]contracts.WithdrawTuple
	approvals      map[common.Hash]contracts.ApprovalTuple
	broken         map[common.Hash]bool
	permissions    map[[4]byte]models.Permission
	tokens         map[common.Address]fakeToken

	chainKeys      []common.Hash
	registryTokens []common.Address
	operators      []common.Address
	noBulk         bool
	failPageAt     int64

	batchErr      error
	simulateErr   error
	sendErr       error
	receiptStatus uint64

	mu         sync.Mutex
	calls      int
	batches    int
	batchElems int
	pageCalls  int
	sent       []sentTx
}

func newFakeChain(id uint64, testnet bool) *fakeChain {
	return &fakeChain{
		id:            id,
		testnet:       testnet,
		deposits:      make(map[common.Hash]contracts.DepositTuple),
		withdraws:     make(map[common.Hash]contracts.WithdrawTuple),
		approvals:     make(map[common.Hash]contracts.ApprovalTuple),
		broken:        make(map[common.Hash]bool),
		permissions:   make(map[[4]byte]models.Permission),
		tokens:        make(map[common.Address]fakeToken),
		failPageAt:    -1,
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeChain) descriptor() models.ChainDescriptor {
	testnet := f.testnet
	return models.ChainDescriptor{
		ChainID: f.id,
		Name:    fmt.Sprintf("chain-%d", f.id),
		Label:   fmt.Sprintf("Chain %d", f.id),
		Testnet: &testnet,
		Key:     utils.EVMChainKey(f.id),
		Contracts: models.ContractSet{
			Bridge:        bridgeAddr,
			Router:        routerAddr,
			AccessManager: accessAddr,
			ChainRegistry: chainRegAddr,
			TokenRegistry: tokenRegAddr,
		},
	}
}

// addDeposit records a deposit on this chain towards destChain
func (f *fakeChain) addDeposit(hash common.Hash, destChain uint64, token, to common.Address, amount int64) {
	f.depositHashes = append(f.depositHashes, hash)
	f.deposits[hash] = contracts.DepositTuple{
		DestChainKey:     utils.EVMChainKey(destChain),
		DestTokenAddress: utils.AddressToBytes32(token),
		DestAccount:      utils.AddressToBytes32(to),
		From:             common.HexToAddress("0x00000000000000000000000000000000000000f0"),
		Amount:           big.NewInt(amount),
		Nonce:            big.NewInt(int64(len(f.depositHashes))),
	}
}

// addWithdraw registers a withdraw on this chain coming from srcChain
func (f *fakeChain) addWithdraw(hash common.Hash, srcChain uint64, token, to common.Address, amount int64) {
	f.withdrawHashes = append(f.withdrawHashes, hash)
	f.withdraws[hash] = contracts.WithdrawTuple{
		SrcChainKey: utils.EVMChainKey(srcChain),
		Token:       token,
		DestAccount: utils.AddressToBytes32(to),
		To:          to,
		Amount:      big.NewInt(amount),
		Nonce:       big.NewInt(int64(len(f.withdrawHashes))),
	}
}

func (f *fakeChain) approve(hash common.Hash, approvedAt uint64) {
	f.approvals[hash] = contracts.ApprovalTuple{Fee: big.NewInt(0), ApprovedAt: approvedAt, IsApproved: true}
}

func (f *fakeChain) counters() (calls, batches, batchElems, pages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.batches, f.batchElems, f.pageCalls
}

func (f *fakeChain) sentTxs() []sentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentTx(nil), f.sent...)
}

func (f *fakeChain) ChainID() uint64 { return f.id }

func (f *fakeChain) Call(ctx context.Context, msg clients.CallMsg) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.dispatch(msg)
}

func (f *fakeChain) BatchCall(ctx context.Context, msgs []clients.CallMsg) ([]clients.CallResult, error) {
	f.mu.Lock()
	f.batches++
	f.batchElems += len(msgs)
	f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]clients.CallResult, len(msgs))
	for i, m := range msgs {
		data, err := f.dispatch(m)
		out[i] = clients.CallResult{Data: data, Err: err}
	}
	return out, nil
}

func (f *fakeChain) LatestBlockTime(ctx context.Context) (uint64, error) {
	return f.blockTime, nil
}

func (f *fakeChain) Sender() (common.Address, bool) {
	if f.sender == nil {
		return common.Address{}, false
	}
	return *f.sender, true
}

func (f *fakeChain) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if f.sender == nil {
		return common.Hash{}, clients.ErrNoSigner
	}
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentTx{to: to, data: data})
	return crypto.Keccak256Hash(data, big.NewInt(int64(len(f.sent))).Bytes()), nil
}

func (f *fakeChain) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status:      f.receiptStatus,
		TxHash:      txHash,
		BlockNumber: big.NewInt(100),
		GasUsed:     21000,
	}, nil
}

var dispatchABIs = []*abi.ABI{
	contracts.BridgeABI,
	contracts.RouterABI,
	contracts.AccessManagerABI,
	contracts.ChainRegistryABI,
	contracts.TokenRegistryABI,
	contracts.BridgedTokenABI,
}

func (f *fakeChain) dispatch(msg clients.CallMsg) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errReverted
	}
	for _, a := range dispatchABIs {
		m, err := a.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		in, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		return f.answer(msg, m, in)
	}
	return nil, errReverted
}

func (f *fakeChain) answer(msg clients.CallMsg, m *abi.Method, in []interface{}) ([]byte, error) {
	switch m.Name {
	case contracts.MethodGetDepositHashes:
		return f.hashPage(m, f.depositHashes, in[0].(*big.Int), in[1].(*big.Int))
	case contracts.MethodGetWithdrawHashes:
		return f.hashPage(m, f.withdrawHashes, in[0].(*big.Int), in[1].(*big.Int))

	case contracts.MethodGetDepositFromHash:
		h := common.Hash(in[0].([32]byte))
		d, ok := f.deposits[h]
		if !ok || f.broken[h] {
			return nil, errReverted
		}
		return m.Outputs.Pack(d)
	case contracts.MethodGetWithdrawFromHash:
		h := common.Hash(in[0].([32]byte))
		w, ok := f.withdraws[h]
		if !ok || f.broken[h] {
			return nil, errReverted
		}
		return m.Outputs.Pack(w)
	case contracts.MethodGetWithdrawApproval:
		h := common.Hash(in[0].([32]byte))
		if f.broken[h] {
			return nil, errReverted
		}
		a, ok := f.approvals[h]
		if !ok {
			a = contracts.ApprovalTuple{Fee: big.NewInt(0)}
		}
		return m.Outputs.Pack(a)

	case contracts.MethodCanCall:
		perm := f.permissions[in[2].([4]byte)]
		return m.Outputs.Pack(perm.Immediate, perm.Delay)

	case contracts.MethodGetChainKeys:
		if f.noBulk {
			return nil, errReverted
		}
		return m.Outputs.Pack(words(f.chainKeys))
	case contracts.MethodGetChainKeyCount:
		return m.Outputs.Pack(big.NewInt(int64(len(f.chainKeys))))
	case contracts.MethodGetChainKeysFrom:
		return f.hashPage(m, f.chainKeys, in[0].(*big.Int), in[1].(*big.Int))

	case contracts.MethodGetAllTokens:
		if f.noBulk {
			return nil, errReverted
		}
		return m.Outputs.Pack(f.registryTokens)
	case contracts.MethodGetTokenCount:
		return m.Outputs.Pack(big.NewInt(int64(len(f.registryTokens))))
	case contracts.MethodGetTokensFrom:
		f.countPage()
		lo, hi := bounds(len(f.registryTokens), in[0].(*big.Int), in[1].(*big.Int))
		return m.Outputs.Pack(f.registryTokens[lo:hi])

	case contracts.MethodGetRoleMembers:
		if f.noBulk {
			return nil, errReverted
		}
		return m.Outputs.Pack(f.operators)
	case contracts.MethodGetRoleMemberCount:
		return m.Outputs.Pack(big.NewInt(int64(len(f.operators))))
	case contracts.MethodGetRoleMembersFrom:
		f.countPage()
		lo, hi := bounds(len(f.operators), in[1].(*big.Int), in[2].(*big.Int))
		return m.Outputs.Pack(f.operators[lo:hi])

	case contracts.MethodName, contracts.MethodSymbol, contracts.MethodDecimals, contracts.MethodLogoLink:
		tok, ok := f.tokens[msg.To]
		if !ok {
			return nil, errReverted
		}
		switch m.Name {
		case contracts.MethodName:
			return m.Outputs.Pack(tok.name)
		case contracts.MethodSymbol:
			return m.Outputs.Pack(tok.symbol)
		case contracts.MethodDecimals:
			return m.Outputs.Pack(tok.decimals)
		}
		if !tok.bridged {
			return nil, errReverted
		}
		return m.Outputs.Pack(tok.logo)

	case contracts.MethodApproveWithdraw, contracts.MethodWithdraw:
		if f.simulateErr != nil {
			return nil, f.simulateErr
		}
		return []byte{}, nil
	}
	return nil, errReverted
}

func (f *fakeChain) countPage() {
	f.mu.Lock()
	f.pageCalls++
	f.mu.Unlock()
}

func (f *fakeChain) hashPage(m *abi.Method, list []common.Hash, index, count *big.Int) ([]byte, error) {
	f.countPage()
	if f.failPageAt >= 0 && index.Int64() == f.failPageAt {
		return nil, errReverted
	}
	lo, hi := bounds(len(list), index, count)
	return m.Outputs.Pack(words(list[lo:hi]))
}

func bounds(n int, index, count *big.Int) (int, int) {
	lo := int(index.Int64())
	if lo > n {
		lo = n
	}
	hi := lo + int(count.Int64())
	if hi > n {
		hi = n
	}
	return lo, hi
}

func words(hs []common.Hash) [][32]byte {
	out := make([][32]byte, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}

func hashN(n int) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("record-%d", n)))
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// testEngine wires the read and write path over fake chains
type testEngine struct {
	registry   *clients.ChainRegistry
	cache      *ViewCache
	paginator  *LedgerPaginator
	fetcher    *BatchFetcher
	meta       *MetadataResolver
	correlator *Correlator
	views      *BridgeViewService
	actions    *ActionService
	published  []models.ActionResult

	clockMu sync.Mutex
	clock   time.Time
}

func (e *testEngine) now() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	return e.clock
}

// advance moves the cache clock forward
func (e *testEngine) advance(d time.Duration) {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	e.clock = e.clock.Add(d)
}

func (e *testEngine) PublishActionConfirmed(result models.ActionResult) error {
	e.published = append(e.published, result)
	return nil
}

func newTestEngine(t *testing.T, tokenList TokenLister, chains ...*fakeChain) *testEngine {
	t.Helper()
	descriptors := make([]models.ChainDescriptor, 0, len(chains))
	clientMap := make(map[uint64]clients.ChainClient, len(chains))
	for _, c := range chains {
		descriptors = append(descriptors, c.descriptor())
		clientMap[c.id] = c
	}

	logger := testLogger()
	ledger := config.LedgerConfig{PageSize: 100, MaxItems: 10000, RegistryPageSize: 500}

	refresh := config.RefreshConfig{}
	refresh.Deposits.Duration = 30 * time.Second
	refresh.Withdraws.Duration = 30 * time.Second
	refresh.XChainApprovals.Duration = 15 * time.Second
	refresh.XChainWithdrawHashes.Duration = 15 * time.Second
	refresh.CanApprove.Duration = 30 * time.Second
	refresh.ExecutionDelay.Duration = time.Minute
	refresh.BlockTime.Duration = 10 * time.Second
	refresh.TokenMeta.Duration = time.Minute
	refresh.Registry.Duration = 30 * time.Second

	e := &testEngine{clock: time.Unix(1_700_000_000, 0)}
	e.registry = clients.NewChainRegistry(descriptors, clientMap)
	e.cache = NewViewCache(TTLsFromConfig(refresh), time.Minute)
	e.cache.now = e.now
	e.paginator = NewLedgerPaginator(ledger, logger)
	e.fetcher = NewBatchFetcher(logger)
	e.meta = NewMetadataResolver(e.registry, tokenList, e.cache, logger)
	e.correlator = NewCorrelator(e.registry, e.paginator, e.fetcher, e.cache, e.meta, logger)
	e.views = NewBridgeViewService(e.registry, e.paginator, e.fetcher, e.correlator, e.meta, e.cache, ledger, logger)
	e.actions = NewActionService(e.views, e.fetcher, e, 0, logger)
	return e
}
