// Contract ABIs for the bridge suite. Only the entry points the backend reads
// or writes are declared.
package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method names
const (
	MethodGetDepositHashes    = "getDepositHashes"
	MethodGetWithdrawHashes   = "getWithdrawHashes"
	MethodGetDepositFromHash  = "getDepositFromHash"
	MethodGetWithdrawFromHash = "getWithdrawFromHash"
	MethodGetWithdrawApproval = "getWithdrawApproval"
	MethodApproveWithdraw     = "approveWithdraw"
	MethodWithdraw            = "withdraw"
	MethodCanCall             = "canCall"

	MethodGetChainKeys          = "getChainKeys"
	MethodGetChainKeyCount      = "getChainKeyCount"
	MethodGetChainKeysFrom      = "getChainKeysFrom"
	MethodGetAllTokens          = "getAllTokens"
	MethodGetTokenCount         = "getTokenCount"
	MethodGetTokensFrom         = "getTokensFrom"
	MethodGetTokenDestChainKeys = "getTokenDestChainKeys"
	MethodGetRoleMembers        = "getActiveRoleMembers"
	MethodGetRoleMemberCount    = "getActiveRoleMemberCount"
	MethodGetRoleMembersFrom    = "getActiveRoleMembersFrom"

	MethodName     = "name"
	MethodSymbol   = "symbol"
	MethodDecimals = "decimals"
	MethodLogoLink = "logoLink"
)

// Role ids on the AccessManager
const (
	RoleAdmin           uint64 = 0
	RoleBridgeOperator  uint64 = 2
	RoleBridgeCanceller uint64 = 3
	RoleRegistrar       uint64 = 8
)

const bridgeJSON = `[
	{"type":"function","name":"getDepositHashes","stateMutability":"view",
	 "inputs":[{"name":"index","type":"uint256"},{"name":"count","type":"uint256"}],
	 "outputs":[{"name":"","type":"bytes32[]"}]},
	{"type":"function","name":"getWithdrawHashes","stateMutability":"view",
	 "inputs":[{"name":"index","type":"uint256"},{"name":"count","type":"uint256"}],
	 "outputs":[{"name":"","type":"bytes32[]"}]},
	{"type":"function","name":"getDepositFromHash","stateMutability":"view",
	 "inputs":[{"name":"depositHash","type":"bytes32"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"destChainKey","type":"bytes32"},
		{"name":"destTokenAddress","type":"bytes32"},
		{"name":"destAccount","type":"bytes32"},
		{"name":"from","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"nonce","type":"uint256"}]}]},
	{"type":"function","name":"getWithdrawFromHash","stateMutability":"view",
	 "inputs":[{"name":"withdrawHash","type":"bytes32"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"srcChainKey","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"destAccount","type":"bytes32"},
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"nonce","type":"uint256"}]}]},
	{"type":"function","name":"getWithdrawApproval","stateMutability":"view",
	 "inputs":[{"name":"withdrawHash","type":"bytes32"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"fee","type":"uint256"},
		{"name":"feeRecipient","type":"address"},
		{"name":"approvedAt","type":"uint64"},
		{"name":"isApproved","type":"bool"},
		{"name":"deductFromAmount","type":"bool"},
		{"name":"cancelled","type":"bool"},
		{"name":"executed","type":"bool"}]}]},
	{"type":"function","name":"approveWithdraw","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"srcChainKey","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"to","type":"address"},
		{"name":"destAccount","type":"bytes32"},
		{"name":"amount","type":"uint256"},
		{"name":"nonce","type":"uint256"},
		{"name":"fee","type":"uint256"},
		{"name":"feeRecipient","type":"address"},
		{"name":"deductFromAmount","type":"bool"}],
	 "outputs":[]},
	{"type":"error","name":"AccessManagedUnauthorized","inputs":[{"name":"caller","type":"address"}]},
	{"type":"error","name":"AccessManagedRequiredDelay","inputs":[{"name":"caller","type":"address"},{"name":"delay","type":"uint32"}]},
	{"type":"error","name":"WithdrawNotApproved","inputs":[{"name":"withdrawHash","type":"bytes32"}]},
	{"type":"error","name":"WithdrawAlreadyExecuted","inputs":[{"name":"withdrawHash","type":"bytes32"}]},
	{"type":"error","name":"ApprovalCancelled","inputs":[{"name":"withdrawHash","type":"bytes32"}]},
	{"type":"error","name":"WithdrawDelayNotElapsed","inputs":[{"name":"withdrawHash","type":"bytes32"},{"name":"allowedAt","type":"uint256"}]},
	{"type":"error","name":"NonceAlreadyApproved","inputs":[{"name":"srcChainKey","type":"bytes32"},{"name":"nonce","type":"uint256"}]}
]`

const routerJSON = `[
	{"type":"function","name":"withdraw","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"srcChainKey","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"nonce","type":"uint256"}],
	 "outputs":[]},
	{"type":"error","name":"AccessManagedUnauthorized","inputs":[{"name":"caller","type":"address"}]},
	{"type":"error","name":"EnforcedPause","inputs":[]}
]`

const accessManagerJSON = `[
	{"type":"function","name":"canCall","stateMutability":"view",
	 "inputs":[{"name":"caller","type":"address"},{"name":"target","type":"address"},{"name":"selector","type":"bytes4"}],
	 "outputs":[{"name":"immediate","type":"bool"},{"name":"delay","type":"uint32"}]},
	{"type":"function","name":"getActiveRoleMembers","stateMutability":"view",
	 "inputs":[{"name":"roleId","type":"uint64"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getActiveRoleMemberCount","stateMutability":"view",
	 "inputs":[{"name":"roleId","type":"uint64"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getActiveRoleMembersFrom","stateMutability":"view",
	 "inputs":[{"name":"roleId","type":"uint64"},{"name":"index","type":"uint256"},{"name":"count","type":"uint256"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"error","name":"AccessManagerUnauthorizedAccount","inputs":[{"name":"msgsender","type":"address"},{"name":"roleId","type":"uint64"}]},
	{"type":"error","name":"AccessManagerUnauthorizedCall","inputs":[{"name":"caller","type":"address"},{"name":"target","type":"address"},{"name":"selector","type":"bytes4"}]},
	{"type":"error","name":"AccessManagerNotReady","inputs":[{"name":"operationId","type":"bytes32"}]}
]`

const chainRegistryJSON = `[
	{"type":"function","name":"getChainKeys","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes32[]"}]},
	{"type":"function","name":"getChainKeyCount","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getChainKeysFrom","stateMutability":"view",
	 "inputs":[{"name":"index","type":"uint256"},{"name":"count","type":"uint256"}],
	 "outputs":[{"name":"","type":"bytes32[]"}]}
]`

const tokenRegistryJSON = `[
	{"type":"function","name":"getAllTokens","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getTokenCount","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTokensFrom","stateMutability":"view",
	 "inputs":[{"name":"index","type":"uint256"},{"name":"count","type":"uint256"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getTokenDestChainKeys","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"bytes32[]"}]}
]`

const erc20JSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const bridgedTokenJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"logoLink","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var (
	BridgeABI        = mustParse("CL8YBridge", bridgeJSON)
	RouterABI        = mustParse("BridgeRouter", routerJSON)
	AccessManagerABI = mustParse("AccessManager", accessManagerJSON)
	ChainRegistryABI = mustParse("ChainRegistry", chainRegistryJSON)
	TokenRegistryABI = mustParse("TokenRegistry", tokenRegistryJSON)
	ERC20ABI         = mustParse("ERC20", erc20JSON)
	BridgedTokenABI  = mustParse("TokenCl8yBridged", bridgedTokenJSON)
)

func mustParse(name, raw string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid %s ABI: %v", name, err))
	}
	return &parsed
}

// Selector 4-byte function selector of method in a
func Selector(a *abi.ABI, method string) [4]byte {
	var sel [4]byte
	m, ok := a.Methods[method]
	if !ok {
		return sel
	}
	copy(sel[:], m.ID)
	return sel
}

// ApproveWithdrawSelector the selector AccessManager gates approvals with
func ApproveWithdrawSelector() [4]byte {
	return Selector(BridgeABI, MethodApproveWithdraw)
}

// RouterWithdrawSelector the selector whose canCall delay is the execution delay
func RouterWithdrawSelector() [4]byte {
	return Selector(RouterABI, MethodWithdraw)
}
