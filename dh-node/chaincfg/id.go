package chaincfg

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash.String(), id.Number)
}

// TerminalString implements log.TerminalStringer, formatting a string for console
// output during logging.
func (id BlockID) TerminalString() string {
	return fmt.Sprintf("%s:%d", id.Hash.TerminalString(), id.Number)
}

// ReceiptBlockID is the block a receipt was included in.
func ReceiptBlockID(r *types.Receipt) BlockID {
	id := BlockID{Hash: r.BlockHash}
	if r.BlockNumber != nil {
		id.Number = r.BlockNumber.Uint64()
	}
	return id
}
