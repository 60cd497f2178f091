// Package bindings drives the deployed contracts: method calls are ABI packed
// here and transactions go through the transaction manager of the sending account.
package bindings

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/donatehub/donatehub/dh-service/txmgr"
)

var (
	ErrNoCode   = errors.New("no contract code at given address")
	ErrReadOnly = errors.New("contract is bound without a sender")
)

// ContractBackend is the read side of the node. *ethclient.Client satisfies it.
type ContractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// GasRecorder collects the gas used by contract transactions.
type GasRecorder interface {
	RecordCall(contract, method string, gasUsed uint64)
	RecordDeployment(contract string, gasUsed uint64)
}

// BoundContract is a deployed contract with its ABI.
type BoundContract struct {
	name    string
	address common.Address
	abi     abi.ABI
	backend ContractBackend
	txmgr   txmgr.TxManager
	rec     GasRecorder
}

// NewBoundContract binds name at address. tm may be nil for read only use.
func NewBoundContract(name string, address common.Address, parsed abi.ABI, backend ContractBackend, tm txmgr.TxManager) *BoundContract {
	return &BoundContract{
		name:    name,
		address: address,
		abi:     parsed,
		backend: backend,
		txmgr:   tm,
	}
}

func (c *BoundContract) Name() string {
	return c.name
}

func (c *BoundContract) Address() common.Address {
	return c.address
}

func (c *BoundContract) ABI() abi.ABI {
	return c.abi
}

// Connect returns a copy of the contract that sends from tm's account.
func (c *BoundContract) Connect(tm txmgr.TxManager) *BoundContract {
	out := *c
	out.txmgr = tm
	return &out
}

// WithRecorder returns a copy of the contract that reports gas to rec.
func (c *BoundContract) WithRecorder(rec GasRecorder) *BoundContract {
	out := *c
	out.rec = rec
	return &out
}

// Balance is the ether held by the contract.
func (c *BoundContract) Balance(ctx context.Context) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, c.address, nil)
}

// Call executes a constant method and returns its unpacked outputs.
func (c *BoundContract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", c.name, method, err)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if c.txmgr != nil {
		msg.From = c.txmgr.From()
	}
	output, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		if rev := DecodeRevert(err, &c.abi); rev != nil {
			return nil, rev
		}
		return nil, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}
	if len(output) == 0 {
		if code, err := c.backend.CodeAt(ctx, c.address, nil); err != nil {
			return nil, err
		} else if len(code) == 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrNoCode, c.name, c.address)
		}
	}
	return c.abi.Unpack(method, output)
}

// Transact sends a transaction invoking method with value attached and waits for
// its receipt. A rejected call comes back as a *RevertError.
func (c *BoundContract) Transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	if c.txmgr == nil {
		return nil, ErrReadOnly
	}
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", c.name, method, err)
	}
	receipt, err := c.txmgr.Send(ctx, txmgr.TxCandidate{
		TxData: input,
		To:     &c.address,
		Value:  value,
	})
	if err != nil {
		if rev := DecodeRevert(err, &c.abi); rev != nil {
			return receipt, rev
		}
		return receipt, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}
	if c.rec != nil {
		c.rec.RecordCall(c.name, method, receipt.GasUsed)
	}
	return receipt, nil
}

// GasCost is what the sender paid for a transaction.
func GasCost(receipt *types.Receipt) *big.Int {
	if receipt.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
