// Package deployments persists what the deployment steps deployed, per network,
// in the layout hardhat-deploy uses: deployments/<network>/<Name>.json next to a
// .chainId file.
package deployments

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrNotFound = errors.New("deployment not found")

// Record is a deployed contract.
type Record struct {
	Address         common.Address  `json:"address"`
	ABI             json.RawMessage `json:"abi"`
	TransactionHash common.Hash     `json:"transactionHash"`
	Receipt         ReceiptInfo     `json:"receipt"`
	// Args are the constructor arguments, formatted as strings.
	Args             []string      `json:"args"`
	NumDeployments   int           `json:"numDeployments"`
	SolcInputHash    string        `json:"solcInputHash,omitempty"`
	Bytecode         hexutil.Bytes `json:"bytecode"`
	DeployedBytecode hexutil.Bytes `json:"deployedBytecode,omitempty"`
}

type ReceiptInfo struct {
	From        common.Address `json:"from"`
	BlockHash   common.Hash    `json:"blockHash"`
	BlockNumber uint64         `json:"blockNumber"`
	GasUsed     uint64         `json:"gasUsed"`
	Status      uint64         `json:"status"`
}

// ParseABI decodes the recorded ABI.
func (r *Record) ParseABI() (abi.ABI, error) {
	var parsed abi.ABI
	if err := json.Unmarshal(r.ABI, &parsed); err != nil {
		return abi.ABI{}, err
	}
	return parsed, nil
}

// Copy returns a deep copy of the record.
func (r *Record) Copy() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ABI = append(json.RawMessage(nil), r.ABI...)
	out.Args = append([]string(nil), r.Args...)
	out.Bytecode = append(hexutil.Bytes(nil), r.Bytecode...)
	out.DeployedBytecode = append(hexutil.Bytes(nil), r.DeployedBytecode...)
	return &out
}

// Store reads and writes deployment records of one network.
type Store interface {
	Get(name string) (*Record, error)
	Save(name string, r *Record) error
	Delete(name string) error
	Names() ([]string, error)
}
