package services

import (
	"context"
	"fmt"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/contracts"
	"bridge-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// ComputeEligibility allowedAt = approvedAt + delay; remaining counts down to it
// against blockTime. A nil approval is never actionable.
func ComputeEligibility(approval *models.ApprovalState, blockTime uint64, delay uint32, hasActor bool) models.Eligibility {
	if approval == nil {
		return models.Eligibility{}
	}
	allowedAt := approval.ApprovedAt + uint64(delay)

	var remaining uint64
	if allowedAt > blockTime {
		remaining = allowedAt - blockTime
	}

	return models.Eligibility{
		AllowedAt:        allowedAt,
		RemainingSeconds: remaining,
		ActionableNow: approval.IsApproved &&
			!approval.Executed &&
			!approval.Cancelled &&
			remaining == 0 &&
			hasActor,
	}
}

// CanCall reads AccessManager.canCall(caller, target, selector)
func CanCall(ctx context.Context, client clients.ChainClient, accessManager, caller, target common.Address, selector [4]byte) (models.Permission, error) {
	input, err := contracts.AccessManagerABI.Pack(contracts.MethodCanCall, caller, target, selector)
	if err != nil {
		return models.Permission{}, fmt.Errorf("pack canCall: %w", err)
	}
	data, err := client.Call(ctx, clients.CallMsg{To: accessManager, Data: input})
	if err != nil {
		return models.Permission{}, err
	}
	return contracts.DecodeCanCall(data)
}

// ExecutionDelay the delay AccessManager imposes on actor calling router.withdraw.
// No actor or no access manager yields zero.
func ExecutionDelay(ctx context.Context, client clients.ChainClient, contractSet models.ContractSet, actor *common.Address) (uint32, error) {
	if !actorPresent(actor) || contractSet.AccessManager == (common.Address{}) {
		return 0, nil
	}
	perm, err := CanCall(ctx, client, contractSet.AccessManager, *actor, contractSet.Router, contracts.RouterWithdrawSelector())
	if err != nil {
		return 0, err
	}
	return perm.Delay, nil
}

func actorPresent(actor *common.Address) bool {
	return actor != nil && *actor != (common.Address{})
}
