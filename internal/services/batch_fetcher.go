package services

import (
	"context"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// BatchFetcher reads record bodies and approval states for many ids in a
// single batched round trip. Results are positional; a failed element leaves
// its field nil.
type BatchFetcher struct {
	logger *logrus.Entry
}

// NewBatchFetcher creates a BatchFetcher
func NewBatchFetcher(logger *logrus.Logger) *BatchFetcher {
	return &BatchFetcher{logger: logger.WithField("component", "batch_fetcher")}
}

// FetchDeposits getDepositFromHash for every id
func (f *BatchFetcher) FetchDeposits(ctx context.Context, client clients.ChainClient, ledger common.Address, ids []common.Hash) []models.DepositEntry {
	results := f.batch(ctx, client, hashCalls(ledger, contracts.MethodGetDepositFromHash, ids))

	out := make([]models.DepositEntry, len(ids))
	for i, id := range ids {
		out[i] = models.DepositEntry{Hash: id}
		if results[i].Err != nil {
			continue
		}
		if rec, err := contracts.DecodeDeposit(results[i].Data); err == nil {
			out[i].Deposit = rec
		}
	}
	return out
}

// FetchApprovals getWithdrawApproval for every id
func (f *BatchFetcher) FetchApprovals(ctx context.Context, client clients.ChainClient, ledger common.Address, ids []common.Hash) []*models.ApprovalState {
	results := f.batch(ctx, client, hashCalls(ledger, contracts.MethodGetWithdrawApproval, ids))

	out := make([]*models.ApprovalState, len(ids))
	for i := range ids {
		if results[i].Err != nil {
			continue
		}
		if approval, err := contracts.DecodeApproval(results[i].Data); err == nil {
			out[i] = approval
		}
	}
	return out
}

// FetchRecordsAndApprovals issues N withdraw reads followed by N approval reads
// in one batch and zips them back by position
func (f *BatchFetcher) FetchRecordsAndApprovals(ctx context.Context, client clients.ChainClient, ledger common.Address, ids []common.Hash) []models.WithdrawEntry {
	calls := append(
		hashCalls(ledger, contracts.MethodGetWithdrawFromHash, ids),
		hashCalls(ledger, contracts.MethodGetWithdrawApproval, ids)...,
	)
	results := f.batch(ctx, client, calls)

	n := len(ids)
	out := make([]models.WithdrawEntry, n)
	for i, id := range ids {
		out[i] = models.WithdrawEntry{Hash: id}
		if r := results[i]; r.Err == nil {
			if rec, err := contracts.DecodeWithdraw(r.Data); err == nil {
				out[i].Withdraw = rec
			}
		}
		if r := results[n+i]; r.Err == nil {
			if approval, err := contracts.DecodeApproval(r.Data); err == nil {
				out[i].Approval = approval
			}
		}
	}
	return out
}

// batch never fails as a whole: a transport error marks every element failed
func (f *BatchFetcher) batch(ctx context.Context, client clients.ChainClient, calls []clients.CallMsg) []clients.CallResult {
	if len(calls) == 0 {
		return nil
	}
	results, err := client.BatchCall(ctx, calls)
	if err == nil && len(results) == len(calls) {
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			f.logger.WithFields(logrus.Fields{"chain_id": client.ChainID(), "count": len(calls), "failed": failed}).Debug("batch elements failed")
		}
		return results
	}

	f.logger.WithError(err).WithFields(logrus.Fields{"chain_id": client.ChainID(), "count": len(calls)}).Warn("batch read failed")
	if err == nil {
		err = errBatchLength
	}
	out := make([]clients.CallResult, len(calls))
	for i := range out {
		out[i].Err = err
	}
	return out
}

func hashCalls(contract common.Address, method string, ids []common.Hash) []clients.CallMsg {
	calls := make([]clients.CallMsg, len(ids))
	for i, id := range ids {
		// bytes32 arguments always pack
		input, _ := contracts.BridgeABI.Pack(method, [32]byte(id))
		calls[i] = clients.CallMsg{To: contract, Data: input}
	}
	return calls
}
