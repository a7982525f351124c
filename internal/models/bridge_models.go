package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChainDescriptor one reachable chain, built once from configuration
type ChainDescriptor struct {
	ChainID   uint64      `json:"chain_id"`
	Name      string      `json:"name"`
	Label     string      `json:"label"`
	Testnet   *bool       `json:"testnet,omitempty"`
	Key       common.Hash `json:"chain_key"`
	Contracts ContractSet `json:"contracts"`
}

// IsTestnet unknown flag counts as mainnet
func (d ChainDescriptor) IsTestnet() bool {
	return d.Testnet != nil && *d.Testnet
}

// ContractSet bridge suite addresses on one chain. Zero address means not deployed.
type ContractSet struct {
	Bridge        common.Address `json:"bridge"`
	Router        common.Address `json:"router"`
	AccessManager common.Address `json:"access_manager"`
	ChainRegistry common.Address `json:"chain_registry"`
	TokenRegistry common.Address `json:"token_registry"`
}

// HasBridge reports whether the ledger contract is configured
func (c ContractSet) HasBridge() bool {
	return c.Bridge != (common.Address{})
}

// ChainRefKind discriminates decoded chain keys
type ChainRefKind string

const (
	ChainRefEVM     ChainRefKind = "evm"     // key matches a configured EVM chain
	ChainRefForeign ChainRefKind = "foreign" // unknown or non-EVM ecosystem
)

// ChainRef decoded form of a 32-byte ChainKey
type ChainRef struct {
	Kind    ChainRefKind `json:"kind"`
	ChainID uint64       `json:"chain_id,omitempty"`
	Raw     common.Hash  `json:"raw"`
}

// IsEVM reports whether the key resolved to a configured chain
func (r ChainRef) IsEVM() bool {
	return r.Kind == ChainRefEVM
}

// AccountKind discriminates decoded 32-byte account/token values
type AccountKind string

const (
	AccountEVM     AccountKind = "evm"     // left-padded 20-byte address
	AccountForeign AccountKind = "foreign" // high-order bytes set, raw only
)

// OpaqueAccount decoded form of a 32-byte destination token or account
type OpaqueAccount struct {
	Kind    AccountKind     `json:"kind"`
	Address *common.Address `json:"address,omitempty"`
	Raw     common.Hash     `json:"raw"`
}

// DepositRecord a deposit on the source chain ledger
type DepositRecord struct {
	DestChainKey     common.Hash    `json:"dest_chain_key"`
	DestTokenAddress common.Hash    `json:"dest_token_address"`
	DestAccount      common.Hash    `json:"dest_account"`
	From             common.Address `json:"from"`
	Amount           *big.Int       `json:"amount"`
	Nonce            *big.Int       `json:"nonce"`
}

// WithdrawRecord a withdraw intent registered on the destination chain ledger
type WithdrawRecord struct {
	SrcChainKey common.Hash    `json:"src_chain_key"`
	Token       common.Address `json:"token"`
	DestAccount common.Hash    `json:"dest_account"`
	To          common.Address `json:"to"`
	Amount      *big.Int       `json:"amount"`
	Nonce       *big.Int       `json:"nonce"`
}

// ApprovalState authorization and execution status of a pending withdraw
type ApprovalState struct {
	Fee              *big.Int       `json:"fee"`
	FeeRecipient     common.Address `json:"fee_recipient"`
	ApprovedAt       uint64         `json:"approved_at"`
	IsApproved       bool           `json:"is_approved"`
	DeductFromAmount bool           `json:"deduct_from_amount"`
	Cancelled        bool           `json:"cancelled"`
	Executed         bool           `json:"executed"`
}

// ApprovalStatus display status derived from ApprovalState
type ApprovalStatus string

const (
	ApprovalStatusNone      ApprovalStatus = "none"      // no approval record
	ApprovalStatusPending   ApprovalStatus = "pending"   // record exists, not approved
	ApprovalStatusApproved  ApprovalStatus = "approved"  // approved, awaiting execution
	ApprovalStatusExecuted  ApprovalStatus = "executed"  // terminal
	ApprovalStatusCancelled ApprovalStatus = "cancelled" // terminal
)

// Status collapses the flags. Terminal states win over approval.
func (a *ApprovalState) Status() ApprovalStatus {
	switch {
	case a == nil:
		return ApprovalStatusNone
	case a.Executed:
		return ApprovalStatusExecuted
	case a.Cancelled:
		return ApprovalStatusCancelled
	case a.IsApproved:
		return ApprovalStatusApproved
	}
	return ApprovalStatusPending
}

// DepositEntry a deposit hash with its record, nil when the read failed
type DepositEntry struct {
	Hash    common.Hash    `json:"hash"`
	Deposit *DepositRecord `json:"deposit,omitempty"`
}

// WithdrawEntry a withdraw hash with its record and approval; either may be nil
type WithdrawEntry struct {
	Hash     common.Hash     `json:"hash"`
	Withdraw *WithdrawRecord `json:"withdraw,omitempty"`
	Approval *ApprovalState  `json:"approval,omitempty"`
}

// TokenMetadata display metadata, never authoritative
type TokenMetadata struct {
	Name     string `json:"name,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals *uint8 `json:"decimals,omitempty"`
	LogoURI  string `json:"logo_uri,omitempty"`
	Source   string `json:"source"`
}

// Permission result of AccessManager.canCall
type Permission struct {
	Immediate bool   `json:"immediate"`
	Delay     uint32 `json:"delay"`
}

// Eligibility time-windowed actionability of an approved withdraw
type Eligibility struct {
	AllowedAt        uint64 `json:"allowed_at"`
	RemainingSeconds uint64 `json:"remaining_seconds"`
	ActionableNow    bool   `json:"actionable_now"`
}

// CorrelatedView a source deposit joined with destination-side state
type CorrelatedView struct {
	Hash               common.Hash    `json:"hash"`
	SourceChainID      uint64         `json:"source_chain_id"`
	Deposit            DepositRecord  `json:"deposit"`
	Destination        ChainRef       `json:"destination"`
	DestToken          OpaqueAccount  `json:"dest_token"`
	DestAccount        OpaqueAccount  `json:"dest_account"`
	CrossEcosystem     bool           `json:"cross_ecosystem"`
	Approval           *ApprovalState `json:"approval,omitempty"`
	ApprovalStatus     ApprovalStatus `json:"approval_status"`
	WithdrawPresent    bool           `json:"withdraw_present"`
	ApprovedAndMatched bool           `json:"approved_and_matched"`
	CanApprove         *Permission    `json:"can_approve,omitempty"`
	DestTokenMeta      *TokenMetadata `json:"dest_token_meta,omitempty"`
}

// DepositView deposits recorded on one chain with destination state
type DepositView struct {
	ChainID     uint64           `json:"chain_id"`
	Available   bool             `json:"available"`
	Actor       *common.Address  `json:"actor,omitempty"`
	Items       []CorrelatedView `json:"items"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// WithdrawRow one withdraw on the viewed chain with its countdown
type WithdrawRow struct {
	Hash        common.Hash     `json:"hash"`
	Withdraw    *WithdrawRecord `json:"withdraw,omitempty"`
	Source      *ChainRef       `json:"source,omitempty"`
	Approval    *ApprovalState  `json:"approval,omitempty"`
	Status      ApprovalStatus  `json:"status"`
	Eligibility Eligibility     `json:"eligibility"`
	TokenMeta   *TokenMetadata  `json:"token_meta,omitempty"`
}

// WithdrawView withdraws pending on one chain
type WithdrawView struct {
	ChainID        uint64          `json:"chain_id"`
	Available      bool            `json:"available"`
	Actor          *common.Address `json:"actor,omitempty"`
	BlockTime      uint64          `json:"block_time"`
	ExecutionDelay uint32          `json:"execution_delay"`
	Items          []WithdrawRow   `json:"items"`
	RefreshedAt    time.Time       `json:"refreshed_at"`
}

// RegistryChainKey a chain key registered on the ChainRegistry
type RegistryChainKey struct {
	Key   common.Hash `json:"key"`
	Ref   ChainRef    `json:"ref"`
	Label string      `json:"label,omitempty"`
}

// RegistryToken a token registered on the TokenRegistry
type RegistryToken struct {
	Address common.Address `json:"address"`
	Meta    *TokenMetadata `json:"meta,omitempty"`
}

// RegistryView chain keys, registered tokens and bridge operators on one chain
type RegistryView struct {
	ChainID         uint64             `json:"chain_id"`
	Available       bool               `json:"available"`
	ChainKeys       []RegistryChainKey `json:"chain_keys"`
	Tokens          []RegistryToken    `json:"tokens"`
	BridgeOperators []common.Address   `json:"bridge_operators"`
	RefreshedAt     time.Time          `json:"refreshed_at"`
}

// ActionResult a confirmed mutating transaction
type ActionResult struct {
	Action        string      `json:"action"`
	ChainID       uint64      `json:"chain_id"`
	SourceChainID uint64      `json:"source_chain_id,omitempty"` // approvals: chain holding the deposit
	RecordHash    common.Hash `json:"record_hash"`
	TxHash        common.Hash `json:"tx_hash"`
	BlockNumber   uint64      `json:"block_number"`
	GasUsed       uint64      `json:"gas_used"`
}
