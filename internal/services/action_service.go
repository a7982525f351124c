package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/metrics"
	"bridge-backend/internal/models"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const (
	ActionApproveWithdraw = "approve_withdraw"
	ActionExecuteWithdraw = "execute_withdraw"
)

var userRejected = regexp.MustCompile(`(?i)user rejected`)

// ActionPublisher is notified of confirmed actions
type ActionPublisher interface {
	PublishActionConfirmed(result models.ActionResult) error
}

// ActionService submits approveWithdraw and router withdraw with the operator key
type ActionService struct {
	views          *BridgeViewService
	fetcher        *BatchFetcher
	publisher      ActionPublisher
	receiptTimeout time.Duration
	logger         *logrus.Entry
}

// NewActionService creates an ActionService. publisher may be nil.
func NewActionService(views *BridgeViewService, fetcher *BatchFetcher, publisher ActionPublisher, receiptTimeout time.Duration, logger *logrus.Logger) *ActionService {
	if receiptTimeout <= 0 {
		receiptTimeout = 2 * time.Minute
	}
	return &ActionService{
		views:          views,
		fetcher:        fetcher,
		publisher:      publisher,
		receiptTimeout: receiptTimeout,
		logger:         logger.WithField("component", "actions"),
	}
}

// ApproveWithdraw approves, on the destination bridge, the withdraw matching
// depositHash on sourceChainID
func (s *ActionService) ApproveWithdraw(ctx context.Context, sourceChainID uint64, depositHash common.Hash) (*models.ActionResult, error) {
	srcClient, srcDesc, ok := s.views.bridgeOn(sourceChainID)
	if !ok {
		return nil, s.fail(ActionApproveWithdraw, sourceChainID, unavailable(s.views.registry, sourceChainID))
	}

	entries := s.fetcher.FetchDeposits(ctx, srcClient, srcDesc.Contracts.Bridge, []common.Hash{depositHash})
	if len(entries) != 1 || entries[0].Deposit == nil {
		return nil, s.fail(ActionApproveWithdraw, sourceChainID, fmt.Errorf("deposit %s: %w", depositHash.Hex(), ErrRecordNotFound))
	}
	d := entries[0].Deposit

	destID, ok := s.views.registry.ChainIDFromKey(d.DestChainKey)
	if !ok {
		return nil, s.fail(ActionApproveWithdraw, sourceChainID, ErrUndecodableRecord)
	}
	token, tokenOK := utils.TryBytes32ToAddress(d.DestTokenAddress)
	to, toOK := utils.TryBytes32ToAddress(d.DestAccount)
	if !tokenOK || !toOK {
		return nil, s.fail(ActionApproveWithdraw, destID, ErrUndecodableRecord)
	}

	destClient, destDesc, ok := s.views.bridgeOn(destID)
	if !ok {
		return nil, s.fail(ActionApproveWithdraw, destID, unavailable(s.views.registry, destID))
	}

	input, err := contracts.BridgeABI.Pack(contracts.MethodApproveWithdraw,
		[32]byte(utils.EVMChainKey(sourceChainID)),
		token,
		to,
		[32]byte(d.DestAccount),
		d.Amount,
		d.Nonce,
		big.NewInt(0),
		common.Address{},
		false,
	)
	if err != nil {
		return nil, s.fail(ActionApproveWithdraw, destID, fmt.Errorf("pack approveWithdraw: %w", err))
	}

	result, err := s.submit(ctx, ActionApproveWithdraw, destClient, destDesc.Contracts.Bridge, input, depositHash,
		contracts.BridgeABI, contracts.AccessManagerABI)
	if err != nil {
		return nil, err
	}
	result.SourceChainID = sourceChainID

	n := s.views.ApplyAction(*result)
	s.logger.WithFields(logrus.Fields{"chain_id": destID, "hash": depositHash.Hex(), "invalidated": n}).Debug("caches invalidated")
	s.publish(*result)
	return result, nil
}

// ExecuteWithdraw calls router.withdraw for withdrawHash on chainID once its
// approval is actionable for the operator
func (s *ActionService) ExecuteWithdraw(ctx context.Context, chainID uint64, withdrawHash common.Hash) (*models.ActionResult, error) {
	client, desc, ok := s.views.bridgeOn(chainID)
	if !ok || desc.Contracts.Router == (common.Address{}) {
		return nil, s.fail(ActionExecuteWithdraw, chainID, unavailable(s.views.registry, chainID))
	}
	sender, ok := client.Sender()
	if !ok {
		return nil, s.fail(ActionExecuteWithdraw, chainID, clients.ErrNoSigner)
	}

	entries := s.fetcher.FetchRecordsAndApprovals(ctx, client, desc.Contracts.Bridge, []common.Hash{withdrawHash})
	if len(entries) != 1 || entries[0].Withdraw == nil {
		return nil, s.fail(ActionExecuteWithdraw, chainID, fmt.Errorf("withdraw %s: %w", withdrawHash.Hex(), ErrRecordNotFound))
	}
	w, approval := entries[0].Withdraw, entries[0].Approval

	blockTime, err := client.LatestBlockTime(ctx)
	if err != nil {
		return nil, s.fail(ActionExecuteWithdraw, chainID, err)
	}
	delay, err := ExecutionDelay(ctx, client, desc.Contracts, &sender)
	if err != nil {
		return nil, s.fail(ActionExecuteWithdraw, chainID, err)
	}
	eligibility := ComputeEligibility(approval, blockTime, delay, true)
	if !eligibility.ActionableNow {
		return nil, s.fail(ActionExecuteWithdraw, chainID, &ActionError{
			Op:      ActionExecuteWithdraw,
			ChainID: chainID,
			Reason:  fmt.Sprintf("withdraw is %s, %ds remaining", approval.Status(), eligibility.RemainingSeconds),
			Err:     ErrNotActionable,
		})
	}

	input, err := contracts.RouterABI.Pack(contracts.MethodWithdraw,
		[32]byte(w.SrcChainKey), w.Token, w.To, w.Amount, w.Nonce)
	if err != nil {
		return nil, s.fail(ActionExecuteWithdraw, chainID, fmt.Errorf("pack withdraw: %w", err))
	}

	result, err := s.submit(ctx, ActionExecuteWithdraw, client, desc.Contracts.Router, input, withdrawHash,
		contracts.RouterABI, contracts.BridgeABI, contracts.AccessManagerABI)
	if err != nil {
		return nil, err
	}

	n := s.views.ApplyAction(*result)
	s.logger.WithFields(logrus.Fields{"chain_id": chainID, "hash": withdrawHash.Hex(), "invalidated": n}).Debug("caches invalidated")
	s.publish(*result)
	return result, nil
}

// submit simulates from the operator address, sends and waits for the receipt
func (s *ActionService) submit(ctx context.Context, op string, client clients.ChainClient, to common.Address, input []byte, recordHash common.Hash, abis ...*abi.ABI) (*models.ActionResult, error) {
	chainID := client.ChainID()
	sender, ok := client.Sender()
	if !ok {
		return nil, s.fail(op, chainID, clients.ErrNoSigner)
	}

	if _, err := client.Call(ctx, clients.CallMsg{From: &sender, To: to, Data: input}); err != nil {
		return nil, s.fail(op, chainID, MapActionError(op, chainID, err, abis...))
	}

	txHash, err := client.SendTransaction(ctx, to, input)
	if err != nil {
		return nil, s.fail(op, chainID, MapActionError(op, chainID, err, abis...))
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()
	receipt, err := client.WaitMined(waitCtx, txHash)
	if err != nil {
		return nil, s.fail(op, chainID, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, s.fail(op, chainID, &ActionError{
			Op:      op,
			ChainID: chainID,
			Reason:  "transaction reverted",
			Err:     fmt.Errorf("tx %s reverted in block %d", txHash.Hex(), receipt.BlockNumber),
		})
	}

	metrics.Actions.WithLabelValues(op, "confirmed").Inc()
	s.logger.WithFields(logrus.Fields{"chain_id": chainID, "tx": txHash.Hex(), "hash": recordHash.Hex()}).Infof("✅ %s confirmed", op)

	result := &models.ActionResult{
		Action:     op,
		ChainID:    chainID,
		RecordHash: recordHash,
		TxHash:     txHash,
		GasUsed:    receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result, nil
}

// fail wraps err as an ActionError (unless it already is one), counts and logs it
func (s *ActionService) fail(op string, chainID uint64, err error) error {
	var ae *ActionError
	if !errors.As(err, &ae) {
		ae = &ActionError{Op: op, ChainID: chainID, Reason: err.Error(), Err: err}
	}
	metrics.Actions.WithLabelValues(op, "failed").Inc()
	s.logger.WithError(ae.Err).WithFields(logrus.Fields{"chain_id": chainID, "fn": op}).Errorf("❌ %s", ae.Reason)
	return ae
}

func (s *ActionService) publish(result models.ActionResult) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishActionConfirmed(result); err != nil {
		s.logger.WithError(err).Warn("failed to publish action event")
	}
}

// MapActionError converts a simulation or submission failure into the
// operator-facing reason: "Transaction canceled" for signer rejection, the
// decoded custom error when revert data matches abis, the raw message otherwise.
func MapActionError(op string, chainID uint64, err error, abis ...*abi.ABI) *ActionError {
	ae := &ActionError{Op: op, ChainID: chainID, Reason: err.Error(), Err: err}
	if userRejected.MatchString(err.Error()) {
		ae.Reason = "Transaction canceled"
		ae.Err = fmt.Errorf("%w: %v", ErrUserRejected, err)
		return ae
	}
	if data, ok := revertData(err); ok {
		if reason, ok := contracts.DecodeRevert(data, abis...); ok {
			ae.Reason = reason
		}
	}
	return ae
}

// revertData extracts the revert payload carried by a JSON-RPC error
func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	switch v := de.ErrorData().(type) {
	case string:
		data, err := hexutil.Decode(v)
		return data, err == nil
	case []byte:
		return v, true
	}
	return nil, false
}

func unavailable(registry *clients.ChainRegistry, chainID uint64) error {
	if _, ok := registry.Descriptor(chainID); !ok {
		return fmt.Errorf("chain %d: %w", chainID, ErrChainUnavailable)
	}
	if !registry.Available(chainID) {
		return fmt.Errorf("chain %d: %w", chainID, ErrChainUnavailable)
	}
	return fmt.Errorf("chain %d: %w", chainID, ErrBridgeNotConfigured)
}
