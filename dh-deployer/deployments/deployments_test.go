package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testRecord() *Record {
	return &Record{
		Address:         common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		ABI:             json.RawMessage(`[{"type":"function","name":"fund","inputs":[],"outputs":[],"stateMutability":"payable"}]`),
		TransactionHash: common.HexToHash("0xabc"),
		Receipt: ReceiptInfo{
			From:        common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
			BlockNumber: 1,
			GasUsed:     569_635,
			Status:      1,
		},
		Args:           []string{"8", "200000000000"},
		NumDeployments: 1,
		Bytecode:       []byte{0x60, 0x80},
	}
}

func storeTests(t *testing.T, s Store) {
	_, err := s.Get("DonateHub")
	require.ErrorIs(t, err, ErrNotFound)

	want := testRecord()
	require.NoError(t, s.Save("DonateHub", want))
	require.NoError(t, s.Save("MockV3Aggregator", testRecord()))

	got, err := s.Get("DonateHub")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	// returned records do not alias the store
	got.Args[0] = "9"
	again, err := s.Get("DonateHub")
	require.NoError(t, err)
	require.Equal(t, "8", again.Args[0])

	names, err := s.Names()
	require.NoError(t, err)
	require.Equal(t, []string{"DonateHub", "MockV3Aggregator"}, names)

	require.NoError(t, s.Delete("DonateHub"))
	require.NoError(t, s.Delete("DonateHub"))
	_, err = s.Get("DonateHub")
	require.ErrorIs(t, err, ErrNotFound)

	parsed, err := want.ParseABI()
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, "fund")
}

func TestMemoryStore(t *testing.T) {
	storeTests(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, "localhost", 31337)
	require.NoError(t, err)
	storeTests(t, s)

	chainID, err := os.ReadFile(filepath.Join(root, "localhost", ".chainId"))
	require.NoError(t, err)
	require.Equal(t, "31337", string(chainID))
}

func TestFileStorePersists(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, "localhost", 31337)
	require.NoError(t, err)
	want := testRecord()
	require.NoError(t, s.Save("DonateHub", want))

	reopened, err := OpenFileStore(root, "localhost")
	require.NoError(t, err)
	require.Equal(t, uint64(31337), reopened.ChainID())
	got, err := reopened.Get("DonateHub")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	var raw map[string]any
	data, err := os.ReadFile(filepath.Join(root, "localhost", "DonateHub.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	require.True(t, strings.EqualFold("0x5fbdb2315678afecb367f032d93f642f64180aa3", raw["address"].(string)))
	require.Contains(t, raw, "abi")
	require.Contains(t, raw, "transactionHash")
}

func TestFileStoreChainMismatch(t *testing.T) {
	root := t.TempDir()
	_, err := NewFileStore(root, "localhost", 31337)
	require.NoError(t, err)
	_, err = NewFileStore(root, "localhost", 1)
	require.ErrorContains(t, err, "belong to chain 31337")
}

func TestOpenFileStoreMissing(t *testing.T) {
	_, err := OpenFileStore(t.TempDir(), "sepolia")
	require.ErrorContains(t, err, "no deployments for network sepolia")
}
