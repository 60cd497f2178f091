package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/slices"

	"github.com/donatehub/donatehub/dh-deployer/bindings"
	"github.com/donatehub/donatehub/dh-deployer/deployments"
	"github.com/donatehub/donatehub/dh-node/chaincfg"
	"github.com/donatehub/donatehub/dh-service/txmgr"
)

// DeployOptions describe a deployment.
type DeployOptions struct {
	// Contract is the artifact to deploy. Defaults to the deployment name.
	Contract string
	// From is the named account deploying. Defaults to "deployer".
	From string
	Args []interface{}
	// Confirmations overrides the transaction manager's depth when non-zero.
	Confirmations uint64
}

// Deploy deploys name unless the recorded deployment still matches: same
// bytecode and constructor arguments, and code still present at its address.
func (e *Env) Deploy(ctx context.Context, name string, opts DeployOptions) (*deployments.Record, error) {
	if opts.Contract == "" {
		opts.Contract = name
	}
	if opts.From == "" {
		opts.From = "deployer"
	}
	l := e.Log.New("deployment", name)

	artifact, err := e.Artifacts.Artifact(opts.Contract)
	if err != nil {
		return nil, err
	}
	code, err := artifact.Code()
	if err != nil {
		return nil, err
	}
	parsed, err := artifact.ParseABI()
	if err != nil {
		return nil, err
	}
	packedArgs, err := parsed.Constructor.Inputs.Pack(opts.Args...)
	if err != nil {
		return nil, fmt.Errorf("invalid constructor arguments for %s: %w", opts.Contract, err)
	}
	args := formatArgs(opts.Args)

	prev, err := e.Store.Get(name)
	switch {
	case errors.Is(err, deployments.ErrNotFound):
		prev = nil
	case err != nil:
		return nil, err
	}
	if prev != nil {
		reuse, err := e.reusable(ctx, prev, code, args)
		if err != nil {
			return nil, err
		}
		if reuse {
			l.Info("reusing deployment", "address", prev.Address)
			return prev, nil
		}
	}

	tm, err := e.Account(opts.From)
	if err != nil {
		return nil, err
	}
	l.Info("deploying", "contract", opts.Contract, "from", tm.From())
	receipt, err := tm.Send(ctx, txmgr.TxCandidate{
		TxData:        append(slices.Clone(code), packedArgs...),
		Confirmations: opts.Confirmations,
	})
	if err != nil {
		if rev := bindings.DecodeRevert(err, &parsed); rev != nil {
			return nil, fmt.Errorf("deployment of %s reverted: %w", name, rev)
		}
		return nil, fmt.Errorf("failed to deploy %s: %w", name, err)
	}
	if receipt.ContractAddress == (common.Address{}) {
		return nil, fmt.Errorf("receipt of %s deployment has no contract address", name)
	}

	rec := &deployments.Record{
		Address:         receipt.ContractAddress,
		ABI:             artifact.ABI,
		TransactionHash: receipt.TxHash,
		Receipt: deployments.ReceiptInfo{
			From:        tm.From(),
			BlockHash:   receipt.BlockHash,
			BlockNumber: chaincfg.ReceiptBlockID(receipt).Number,
			GasUsed:     receipt.GasUsed,
			Status:      receipt.Status,
		},
		Args:           args,
		NumDeployments: 1,
		Bytecode:       code,
	}
	if deployed, err := artifact.DeployedCode(); err == nil {
		rec.DeployedBytecode = deployed
	}
	if bi, err := e.Artifacts.BuildInfo(opts.Contract); err == nil {
		rec.SolcInputHash = bi.ID
	}
	if prev != nil {
		rec.NumDeployments = prev.NumDeployments + 1
	}
	if err := e.Store.Save(name, rec); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", name, err)
	}
	if e.Gas != nil {
		e.Gas.RecordDeployment(name, receipt.GasUsed)
	}
	l.Info("deployed", "address", rec.Address, "tx", receipt.TxHash, "block", chaincfg.ReceiptBlockID(receipt), "gasUsed", receipt.GasUsed)
	return rec, nil
}

func (e *Env) reusable(ctx context.Context, prev *deployments.Record, code []byte, args []string) (bool, error) {
	if !bytes.Equal(prev.Bytecode, code) || !slices.Equal(prev.Args, args) {
		return false, nil
	}
	onchain, err := e.Backend.CodeAt(ctx, prev.Address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check code at %s: %w", prev.Address, err)
	}
	return len(onchain) > 0, nil
}

// formatArgs renders constructor arguments the way they are recorded.
func formatArgs(args []interface{}) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case common.Address:
			out[i] = v.Hex()
		case *big.Int:
			out[i] = v.String()
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
