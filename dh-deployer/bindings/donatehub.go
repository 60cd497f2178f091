package bindings

import (
	"context"
	_ "embed"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/donatehub/donatehub/dh-service/txmgr"
)

const (
	DonateHubName = "DonateHub"

	// Reverts of the donation contract.
	NotEnoughETHReason = "You need to spend more ETH!"
	NotOwnerError      = "DonateHub__NotOwner"
)

// DonateHubABIJSON is the contract ABI as compiled.
//
//go:embed abi/DonateHub.json
var DonateHubABIJSON string

var donateHubABI = mustParseABI(DonateHubABIJSON)

func DonateHubABI() abi.ABI {
	return donateHubABI
}

// DonateHub accepts donations and lets its owner withdraw them.
type DonateHub struct {
	*BoundContract
}

func NewDonateHub(address common.Address, backend ContractBackend, tm txmgr.TxManager) *DonateHub {
	return &DonateHub{NewBoundContract(DonateHubName, address, donateHubABI, backend, tm)}
}

// Connect returns the contract as seen by another sender.
func (d *DonateHub) Connect(tm txmgr.TxManager) *DonateHub {
	return &DonateHub{d.BoundContract.Connect(tm)}
}

func (d *DonateHub) WithRecorder(rec GasRecorder) *DonateHub {
	return &DonateHub{d.BoundContract.WithRecorder(rec)}
}

func (d *DonateHub) Fund(ctx context.Context, value *big.Int) (*types.Receipt, error) {
	return d.Transact(ctx, value, "fund")
}

func (d *DonateHub) Withdraw(ctx context.Context) (*types.Receipt, error) {
	return d.Transact(ctx, nil, "withdraw")
}

// CheaperWithdraw withdraws like Withdraw, reading the funders from memory.
func (d *DonateHub) CheaperWithdraw(ctx context.Context) (*types.Receipt, error) {
	return d.Transact(ctx, nil, "cheaperWithdraw")
}

func (d *DonateHub) GetAddressToAmountFunded(ctx context.Context, funder common.Address) (*big.Int, error) {
	out, err := d.Call(ctx, "getAddressToAmountFunded", funder)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (d *DonateHub) GetFundersArray(ctx context.Context) ([]common.Address, error) {
	out, err := d.Call(ctx, "getFundersArray")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (d *DonateHub) GetOwner(ctx context.Context) (common.Address, error) {
	return d.callAddress(ctx, "getOwner")
}

func (d *DonateHub) GetPriceFeed(ctx context.Context) (common.Address, error) {
	return d.callAddress(ctx, "getPriceFeed")
}

func (d *DonateHub) MinimumUSD(ctx context.Context) (*big.Int, error) {
	out, err := d.Call(ctx, "MINIMUM_USD")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (d *DonateHub) callAddress(ctx context.Context, method string) (common.Address, error) {
	out, err := d.Call(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
