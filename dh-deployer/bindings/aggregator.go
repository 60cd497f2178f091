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

const MockV3AggregatorName = "MockV3Aggregator"

// MockV3AggregatorABIJSON is the mock ABI as compiled.
//
//go:embed abi/MockV3Aggregator.json
var MockV3AggregatorABIJSON string

var mockV3AggregatorABI = mustParseABI(MockV3AggregatorABIJSON)

func MockV3AggregatorABI() abi.ABI {
	return mockV3AggregatorABI
}

// MockV3Aggregator is the price feed stand-in deployed on development chains.
type MockV3Aggregator struct {
	*BoundContract
}

func NewMockV3Aggregator(address common.Address, backend ContractBackend, tm txmgr.TxManager) *MockV3Aggregator {
	return &MockV3Aggregator{NewBoundContract(MockV3AggregatorName, address, mockV3AggregatorABI, backend, tm)}
}

type RoundData struct {
	RoundId         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

func (m *MockV3Aggregator) Decimals(ctx context.Context) (uint8, error) {
	out, err := m.Call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (m *MockV3Aggregator) LatestAnswer(ctx context.Context) (*big.Int, error) {
	out, err := m.Call(ctx, "latestAnswer")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (m *MockV3Aggregator) LatestRoundData(ctx context.Context) (RoundData, error) {
	out, err := m.Call(ctx, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}
	return RoundData{
		RoundId:         *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Answer:          *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		StartedAt:       *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		UpdatedAt:       *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		AnsweredInRound: *abi.ConvertType(out[4], new(*big.Int)).(**big.Int),
	}, nil
}

func (m *MockV3Aggregator) UpdateAnswer(ctx context.Context, answer *big.Int) (*types.Receipt, error) {
	return m.Transact(ctx, nil, "updateAnswer", answer)
}
