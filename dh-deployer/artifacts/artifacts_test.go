package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writeArtifact(t *testing.T, root, source, contract, bytecode string) {
	dir := filepath.Join(root, source)
	writeJSON(t, filepath.Join(dir, contract+".json"), map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     contract,
		"sourceName":       source,
		"abi":              []any{map[string]any{"type": "constructor", "inputs": []any{map[string]any{"name": "priceFeed", "type": "address"}}}},
		"bytecode":         bytecode,
		"deployedBytecode": "0x6080",
	})
	writeJSON(t, filepath.Join(dir, contract+".dbg.json"), map[string]any{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": "../../build-info/abc123.json",
	})
}

func TestLoaderArtifact(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "contracts/DonateHub.sol", "DonateHub", "0x60806040")
	writeJSON(t, filepath.Join(root, "build-info", "abc123.json"), map[string]any{
		"id":              "abc123",
		"solcVersion":     "0.8.8",
		"solcLongVersion": "0.8.8+commit.dddeac2f",
		"input":           map[string]any{"language": "Solidity"},
	})

	l := NewLoader(root)
	a, err := l.Artifact("DonateHub")
	require.NoError(t, err)
	require.Equal(t, "contracts/DonateHub.sol:DonateHub", a.FullyQualifiedName())
	code, err := a.Code()
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x80, 0x60, 0x40}, code)

	parsed, err := a.ParseABI()
	require.NoError(t, err)
	require.Len(t, parsed.Constructor.Inputs, 1)

	qualified, err := l.Artifact("contracts/DonateHub.sol:DonateHub")
	require.NoError(t, err)
	require.Equal(t, a, qualified)

	bi, err := l.BuildInfo("DonateHub")
	require.NoError(t, err)
	require.Equal(t, "0.8.8+commit.dddeac2f", bi.SolcLongVersion)
	require.JSONEq(t, `{"language":"Solidity"}`, string(bi.Input))

	_, err = l.Artifact("Missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoaderAmbiguous(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "contracts/test/MockV3Aggregator.sol", "MockV3Aggregator", "0x6080")
	writeArtifact(t, root, "@chainlink/contracts/src/v0.6/tests/MockV3Aggregator.sol", "MockV3Aggregator", "0x6080")

	l := NewLoader(root)
	_, err := l.Artifact("MockV3Aggregator")
	require.ErrorContains(t, err, "fully qualified")

	a, err := l.Artifact("contracts/test/MockV3Aggregator.sol:MockV3Aggregator")
	require.NoError(t, err)
	require.Equal(t, "contracts/test/MockV3Aggregator.sol", a.SourceName)
}

func TestArtifactCode(t *testing.T) {
	_, err := (&Artifact{ContractName: "Lib", Bytecode: "0x60__$1234$__"}).Code()
	require.ErrorContains(t, err, "unlinked")
	_, err = (&Artifact{ContractName: "Iface", Bytecode: "0x"}).Code()
	require.ErrorContains(t, err, "no bytecode")
}
