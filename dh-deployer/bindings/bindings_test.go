package bindings

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/donatehub/donatehub/dh-service/txmgr"
)

// rpcDataError mimics the JSON-RPC error ethclient returns for a revert.
type rpcDataError struct {
	msg  string
	data interface{}
}

func (e *rpcDataError) Error() string          { return e.msg }
func (e *rpcDataError) ErrorData() interface{} { return e.data }

func errorStringData(t *testing.T, reason string) string {
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func TestDecodeRevertData(t *testing.T) {
	parsed := DonateHubABI()

	t.Run("reason string", func(t *testing.T) {
		err := fmt.Errorf("failed to estimate gas: %w", &rpcDataError{
			msg:  "execution reverted: You need to spend more ETH!",
			data: errorStringData(t, NotEnoughETHReason),
		})
		rev := DecodeRevert(err, &parsed)
		require.NotNil(t, rev)
		require.Equal(t, NotEnoughETHReason, rev.Reason)
		require.False(t, rev.Custom)
		require.True(t, IsRevert(rev, NotEnoughETHReason))
		require.ErrorIs(t, rev, err)
	})

	t.Run("custom error", func(t *testing.T) {
		selector := crypto.Keccak256([]byte("DonateHub__NotOwner()"))[:4]
		rev := DecodeRevert(&rpcDataError{msg: "execution reverted", data: hexutil.Encode(selector)}, &parsed)
		require.NotNil(t, rev)
		require.Equal(t, NotOwnerError, rev.Reason)
		require.True(t, rev.Custom)
	})

	t.Run("panic", func(t *testing.T) {
		data := append([]byte{0x4e, 0x48, 0x7b, 0x71}, common.LeftPadBytes([]byte{0x11}, 32)...)
		rev := DecodeRevert(&rpcDataError{msg: "execution reverted", data: hexutil.Encode(data)}, &parsed)
		require.Equal(t, "panic code 0x11", rev.Reason)
	})

	t.Run("unknown selector", func(t *testing.T) {
		rev := DecodeRevert(&rpcDataError{msg: "execution reverted", data: "0xdeadbeef"}, &parsed)
		require.Equal(t, "unknown error 0xdeadbeef", rev.Reason)
	})

	t.Run("no data", func(t *testing.T) {
		rev := DecodeRevert(&rpcDataError{msg: "execution reverted", data: "0x"}, &parsed)
		require.NotNil(t, rev)
		require.Equal(t, "", rev.Reason)
		require.Equal(t, "execution reverted", rev.Error())
	})
}

func TestDecodeRevertMessage(t *testing.T) {
	tests := []struct {
		msg    string
		reason string
		custom bool
	}{
		{"VM Exception while processing transaction: reverted with reason string 'You need to spend more ETH!'", NotEnoughETHReason, false},
		{"VM Exception while processing transaction: reverted with custom error 'DonateHub__NotOwner()'", NotOwnerError, true},
		{"execution reverted: You need to spend more ETH!", NotEnoughETHReason, false},
	}
	for _, tt := range tests {
		rev := DecodeRevert(errors.New(tt.msg), nil)
		require.NotNil(t, rev, tt.msg)
		require.Equal(t, tt.reason, rev.Reason, tt.msg)
		require.Equal(t, tt.custom, rev.Custom, tt.msg)
	}

	require.Nil(t, DecodeRevert(errors.New("connection refused"), nil))
	require.Nil(t, DecodeRevert(nil, nil))
}

type fakeBackend struct {
	calls   []ethereum.CallMsg
	output  []byte
	callErr error
	code    []byte
	balance *big.Int
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.calls = append(b.calls, call)
	return b.output, b.callErr
}

func (b *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return b.code, nil
}

func (b *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return b.balance, nil
}

type fakeTxManager struct {
	from       common.Address
	candidates []txmgr.TxCandidate
	err        error
}

func (m *fakeTxManager) From() common.Address {
	return m.from
}

func (m *fakeTxManager) Send(ctx context.Context, candidate txmgr.TxCandidate) (*types.Receipt, error) {
	m.candidates = append(m.candidates, candidate)
	if m.err != nil {
		return nil, m.err
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 50_000, EffectiveGasPrice: big.NewInt(params.GWei)}, nil
}

type gasCall struct {
	contract, method string
	gasUsed          uint64
}

type fakeRecorder struct {
	calls []gasCall
}

func (r *fakeRecorder) RecordCall(contract, method string, gasUsed uint64) {
	r.calls = append(r.calls, gasCall{contract, method, gasUsed})
}

func (r *fakeRecorder) RecordDeployment(contract string, gasUsed uint64) {}

func TestDonateHubCalls(t *testing.T) {
	funder := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	parsed := DonateHubABI()

	backend := &fakeBackend{}
	tm := &fakeTxManager{from: funder}
	hub := NewDonateHub(addr, backend, tm)

	out, err := parsed.Methods["getAddressToAmountFunded"].Outputs.Pack(big.NewInt(params.Ether))
	require.NoError(t, err)
	backend.output = out
	amount, err := hub.GetAddressToAmountFunded(context.Background(), funder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(params.Ether), amount)
	require.Equal(t, funder, backend.calls[0].From)
	require.Equal(t, addr, *backend.calls[0].To)

	out, err = parsed.Methods["getFundersArray"].Outputs.Pack([]common.Address{funder})
	require.NoError(t, err)
	backend.output = out
	funders, err := hub.GetFundersArray(context.Background())
	require.NoError(t, err)
	require.Equal(t, []common.Address{funder}, funders)

	out, err = parsed.Methods["getPriceFeed"].Outputs.Pack(addr)
	require.NoError(t, err)
	backend.output = out
	feed, err := hub.GetPriceFeed(context.Background())
	require.NoError(t, err)
	require.Equal(t, addr, feed)

	minimum := new(big.Int).Mul(big.NewInt(50), big.NewInt(params.Ether))
	out, err = parsed.Methods["MINIMUM_USD"].Outputs.Pack(minimum)
	require.NoError(t, err)
	backend.output = out
	got, err := hub.MinimumUSD(context.Background())
	require.NoError(t, err)
	require.Equal(t, minimum, got)
}

func TestCallWithoutCode(t *testing.T) {
	hub := NewDonateHub(common.HexToAddress("0x01"), &fakeBackend{}, nil)
	_, err := hub.GetOwner(context.Background())
	require.ErrorIs(t, err, ErrNoCode)
}

func TestDonateHubTransact(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	owner := &fakeTxManager{from: common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")}
	rec := &fakeRecorder{}
	hub := NewDonateHub(addr, &fakeBackend{}, owner).WithRecorder(rec)

	receipt, err := hub.Fund(context.Background(), big.NewInt(params.Ether))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50_000*params.GWei), GasCost(receipt))
	require.Len(t, owner.candidates, 1)
	require.Equal(t, big.NewInt(params.Ether), owner.candidates[0].Value)
	require.Equal(t, DonateHubABI().Methods["fund"].ID, owner.candidates[0].TxData)
	require.Equal(t, []gasCall{{DonateHubName, "fund", 50_000}}, rec.calls)

	// a connected copy sends from the other account and keeps the recorder
	attacker := &fakeTxManager{
		from: common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		err:  fmt.Errorf("failed to create the tx: %w", errors.New("VM Exception while processing transaction: reverted with custom error 'DonateHub__NotOwner()'")),
	}
	_, err = hub.Connect(attacker).Withdraw(context.Background())
	require.True(t, IsRevert(err, NotOwnerError))
	require.Len(t, owner.candidates, 1)
	require.Len(t, attacker.candidates, 1)

	_, err = NewDonateHub(addr, &fakeBackend{}, nil).Withdraw(context.Background())
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestMockV3AggregatorCalls(t *testing.T) {
	parsed := MockV3AggregatorABI()
	backend := &fakeBackend{}
	agg := NewMockV3Aggregator(common.HexToAddress("0x01"), backend, nil)

	out, err := parsed.Methods["decimals"].Outputs.Pack(uint8(8))
	require.NoError(t, err)
	backend.output = out
	decimals, err := agg.Decimals(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint8(8), decimals)

	out, err = parsed.Methods["latestRoundData"].Outputs.Pack(big.NewInt(1), big.NewInt(200000000000), big.NewInt(10), big.NewInt(10), big.NewInt(1))
	require.NoError(t, err)
	backend.output = out
	round, err := agg.LatestRoundData(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(200000000000), round.Answer)

	require.Len(t, parsed.Constructor.Inputs, 2)
}
