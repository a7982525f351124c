package contracts

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"bridge-backend/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DepositTuple mirrors the getDepositFromHash return struct
type DepositTuple struct {
	DestChainKey     [32]byte
	DestTokenAddress [32]byte
	DestAccount      [32]byte
	From             common.Address
	Amount           *big.Int
	Nonce            *big.Int
}

// WithdrawTuple mirrors the getWithdrawFromHash return struct
type WithdrawTuple struct {
	SrcChainKey [32]byte
	Token       common.Address
	DestAccount [32]byte
	To          common.Address
	Amount      *big.Int
	Nonce       *big.Int
}

// ApprovalTuple mirrors the getWithdrawApproval return struct
type ApprovalTuple struct {
	Fee              *big.Int
	FeeRecipient     common.Address
	ApprovedAt       uint64
	IsApproved       bool
	DeductFromAmount bool
	Cancelled        bool
	Executed         bool
}

// Model converts to the domain record
func (t DepositTuple) Model() *models.DepositRecord {
	return &models.DepositRecord{
		DestChainKey:     t.DestChainKey,
		DestTokenAddress: t.DestTokenAddress,
		DestAccount:      t.DestAccount,
		From:             t.From,
		Amount:           nonNil(t.Amount),
		Nonce:            nonNil(t.Nonce),
	}
}

// Model converts to the domain record
func (t WithdrawTuple) Model() *models.WithdrawRecord {
	return &models.WithdrawRecord{
		SrcChainKey: t.SrcChainKey,
		Token:       t.Token,
		DestAccount: t.DestAccount,
		To:          t.To,
		Amount:      nonNil(t.Amount),
		Nonce:       nonNil(t.Nonce),
	}
}

// Model converts to the domain record
func (t ApprovalTuple) Model() *models.ApprovalState {
	return &models.ApprovalState{
		Fee:              nonNil(t.Fee),
		FeeRecipient:     t.FeeRecipient,
		ApprovedAt:       t.ApprovedAt,
		IsApproved:       t.IsApproved,
		DeductFromAmount: t.DeductFromAmount,
		Cancelled:        t.Cancelled,
		Executed:         t.Executed,
	}
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// DecodeDeposit unpacks getDepositFromHash output
func DecodeDeposit(data []byte) (*models.DepositRecord, error) {
	out, err := unpackSingle(BridgeABI, MethodGetDepositFromHash, data)
	if err != nil {
		return nil, err
	}
	var t DepositTuple
	if err := convert(out, &t); err != nil {
		return nil, err
	}
	return t.Model(), nil
}

// DecodeWithdraw unpacks getWithdrawFromHash output
func DecodeWithdraw(data []byte) (*models.WithdrawRecord, error) {
	out, err := unpackSingle(BridgeABI, MethodGetWithdrawFromHash, data)
	if err != nil {
		return nil, err
	}
	var t WithdrawTuple
	if err := convert(out, &t); err != nil {
		return nil, err
	}
	return t.Model(), nil
}

// DecodeApproval unpacks getWithdrawApproval output
func DecodeApproval(data []byte) (*models.ApprovalState, error) {
	out, err := unpackSingle(BridgeABI, MethodGetWithdrawApproval, data)
	if err != nil {
		return nil, err
	}
	var t ApprovalTuple
	if err := convert(out, &t); err != nil {
		return nil, err
	}
	return t.Model(), nil
}

// DecodeCanCall unpacks AccessManager.canCall output
func DecodeCanCall(data []byte) (models.Permission, error) {
	out, err := AccessManagerABI.Unpack(MethodCanCall, data)
	if err != nil {
		return models.Permission{}, err
	}
	if len(out) != 2 {
		return models.Permission{}, fmt.Errorf("canCall: unexpected %d outputs", len(out))
	}
	immediate, ok1 := out[0].(bool)
	delay, ok2 := out[1].(uint32)
	if !ok1 || !ok2 {
		return models.Permission{}, fmt.Errorf("canCall: unexpected output types %T, %T", out[0], out[1])
	}
	return models.Permission{Immediate: immediate, Delay: delay}, nil
}

// DecodeWords unpacks a single bytes32[] or address[] output as 32-byte words.
// Addresses are left-padded.
func DecodeWords(a *abi.ABI, method string, data []byte) ([]common.Hash, error) {
	out, err := unpackSingle(a, method, data)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case [][32]byte:
		words := make([]common.Hash, len(v))
		for i, w := range v {
			words[i] = w
		}
		return words, nil
	case []common.Address:
		words := make([]common.Hash, len(v))
		for i, addr := range v {
			words[i] = common.BytesToHash(addr.Bytes())
		}
		return words, nil
	}
	return nil, fmt.Errorf("%s: unexpected output type %T", method, out)
}

// DecodeUint unpacks a single uint output
func DecodeUint(a *abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := unpackSingle(a, method, data)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	}
	return nil, fmt.Errorf("%s: unexpected output type %T", method, out)
}

// DecodeString unpacks a single string output
func DecodeString(a *abi.ABI, method string, data []byte) (string, error) {
	out, err := unpackSingle(a, method, data)
	if err != nil {
		return "", err
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected output type %T", method, out)
	}
	return s, nil
}

// DecodeUint8 unpacks a single uint8 output (decimals)
func DecodeUint8(a *abi.ABI, method string, data []byte) (uint8, error) {
	out, err := unpackSingle(a, method, data)
	if err != nil {
		return 0, err
	}
	v, ok := out.(uint8)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected output type %T", method, out)
	}
	return v, nil
}

func unpackSingle(a *abi.ABI, method string, data []byte) (interface{}, error) {
	out, err := a.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 output, got %d", method, len(out))
	}
	return out[0], nil
}

// convert copies an anonymous unpacked tuple struct into dst, turning the
// panic abi.ConvertType raises on layout mismatch into an error
func convert(in interface{}, dst interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("abi convert: %v", r)
		}
	}()
	abi.ConvertType(in, dst)
	return nil
}

// DecodeRevert renders revert data as ErrorName(args...) using the custom
// errors declared in abis, falling back to Error(string) and Panic(uint256).
func DecodeRevert(data []byte, abis ...*abi.ABI) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	for _, a := range abis {
		if a == nil {
			continue
		}
		for name, e := range a.Errors {
			if !bytes.Equal(e.ID[:4], data[:4]) {
				continue
			}
			args, err := e.Inputs.Unpack(data[4:])
			if err != nil {
				continue
			}
			return formatCall(name, args), true
		}
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return formatCall("Error", []interface{}{reason}), true
	}
	return "", false
}

func formatCall(name string, args []interface{}) string {
	if len(args) == 0 {
		return name
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = formatArg(a)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func formatArg(v interface{}) string {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case [32]byte:
		return hexutil.Encode(x[:])
	case [4]byte:
		return hexutil.Encode(x[:])
	case []byte:
		return hexutil.Encode(x)
	}
	return fmt.Sprint(v)
}
