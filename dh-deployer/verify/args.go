package verify

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EncodeConstructorArgs ABI encodes constructor arguments recorded as strings.
func EncodeConstructorArgs(parsed abi.ABI, args []string) ([]byte, error) {
	inputs := parsed.Constructor.Inputs
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("constructor takes %d arguments, %d recorded", len(inputs), len(args))
	}
	values := make([]interface{}, len(args))
	for i, input := range inputs {
		v, err := parseArg(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", input.Name, err)
		}
		values[i] = v
	}
	return inputs.Pack(values...)
}

func parseArg(typ abi.Type, s string) (interface{}, error) {
	switch typ.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return s, nil
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return fitInt(typ, n)
	default:
		return nil, fmt.Errorf("unsupported constructor argument type %s", typ)
	}
}

// fitInt converts n to the Go type the ABI packer expects for typ.
func fitInt(typ abi.Type, n *big.Int) (interface{}, error) {
	if typ.Size > 64 {
		return n, nil
	}
	if typ.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > typ.Size {
			return nil, fmt.Errorf("%s out of range for %s", n, typ)
		}
		v := n.Uint64()
		switch typ.Size {
		case 8:
			return uint8(v), nil
		case 16:
			return uint16(v), nil
		case 32:
			return uint32(v), nil
		case 64:
			return v, nil
		}
	} else {
		// two's complement range of the type
		mag := n
		if n.Sign() < 0 {
			mag = new(big.Int).Sub(new(big.Int).Neg(n), big.NewInt(1))
		}
		if mag.BitLen() > typ.Size-1 {
			return nil, fmt.Errorf("%s out of range for %s", n, typ)
		}
		v := n.Int64()
		switch typ.Size {
		case 8:
			return int8(v), nil
		case 16:
			return int16(v), nil
		case 32:
			return int32(v), nil
		case 64:
			return v, nil
		}
	}
	return n, nil
}
