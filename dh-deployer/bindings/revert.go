package bindings

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Panic(uint256)
var panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}

// RevertError is a call or transaction the contract rejected. Reason is the
// revert string, or the name of the custom error when Custom is set.
type RevertError struct {
	Reason string
	Custom bool
	Data   []byte

	err error
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.err
}

// IsRevert reports whether err is a revert with the given reason or custom error name.
func IsRevert(err error, reason string) bool {
	var rev *RevertError
	return errors.As(err, &rev) && rev.Reason == reason
}

// DecodeRevert extracts the revert carried by err, if any. The JSON-RPC error data
// is decoded against contractABI's custom errors. Nodes that only report text
// are handled by matching their messages.
func DecodeRevert(err error, contractABI *abi.ABI) *RevertError {
	if err == nil {
		return nil
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := revertData(dataErr.ErrorData()); ok {
			rev := decodeRevertData(data, contractABI)
			rev.err = err
			return rev
		}
	}
	if rev := revertFromMessage(err.Error()); rev != nil {
		rev.err = err
		return rev
	}
	return nil
}

func revertData(v interface{}) ([]byte, bool) {
	switch data := v.(type) {
	case string:
		out, err := hexutil.Decode(data)
		return out, err == nil
	case []byte:
		return data, true
	case map[string]interface{}:
		// some nodes nest the data one level deeper
		return revertData(data["data"])
	}
	return nil, false
}

func decodeRevertData(data []byte, contractABI *abi.ABI) *RevertError {
	rev := &RevertError{Data: data}
	if len(data) < 4 {
		return rev
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		rev.Reason = reason
		return rev
	}
	if bytes.Equal(data[:4], panicSelector) && len(data) >= 36 {
		rev.Reason = fmt.Sprintf("panic code 0x%x", new(big.Int).SetBytes(data[4:36]))
		return rev
	}
	if contractABI != nil {
		for _, e := range contractABI.Errors {
			if bytes.Equal(e.ID[:4], data[:4]) {
				rev.Reason = e.Name
				rev.Custom = true
				return rev
			}
		}
	}
	rev.Reason = fmt.Sprintf("unknown error %s", hexutil.Encode(data[:4]))
	return rev
}

const (
	reasonStringPrefix = "reverted with reason string '"
	customErrorPrefix  = "reverted with custom error '"
	executionReverted  = "execution reverted"
)

func revertFromMessage(msg string) *RevertError {
	if i := strings.Index(msg, reasonStringPrefix); i >= 0 {
		rest := msg[i+len(reasonStringPrefix):]
		if j := strings.LastIndex(rest, "'"); j >= 0 {
			rest = rest[:j]
		}
		return &RevertError{Reason: rest}
	}
	if i := strings.Index(msg, customErrorPrefix); i >= 0 {
		rest := msg[i+len(customErrorPrefix):]
		if j := strings.IndexAny(rest, "('"); j >= 0 {
			rest = rest[:j]
		}
		return &RevertError{Reason: rest, Custom: true}
	}
	if i := strings.Index(msg, executionReverted); i >= 0 {
		rest := strings.TrimPrefix(msg[i+len(executionReverted):], ":")
		return &RevertError{Reason: strings.TrimSpace(rest)}
	}
	return nil
}
