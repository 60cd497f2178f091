// Package artifacts reads the contract artifacts a hardhat compile leaves under
// artifacts/: the per-contract ABI and bytecode files and the build-info files
// holding the compiler input.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrNotFound = errors.New("artifact not found")

// Artifact is a compiled contract.
type Artifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// FullyQualifiedName is source:contract, as the explorer expects it.
func (a *Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

// Code decodes the creation bytecode. Bytecode that still needs libraries linked
// is rejected.
func (a *Artifact) Code() ([]byte, error) {
	return decodeCode(a.ContractName, a.Bytecode)
}

func (a *Artifact) DeployedCode() ([]byte, error) {
	return decodeCode(a.ContractName, a.DeployedBytecode)
}

func decodeCode(name, code string) ([]byte, error) {
	if strings.Contains(code, "__$") {
		return nil, fmt.Errorf("bytecode of %s has unlinked libraries", name)
	}
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("%s has no bytecode, is it abstract?", name)
	}
	out, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode of %s: %w", name, err)
	}
	return out, nil
}

func (a *Artifact) ParseABI() (abi.ABI, error) {
	var parsed abi.ABI
	if err := json.Unmarshal(a.ABI, &parsed); err != nil {
		return abi.ABI{}, fmt.Errorf("invalid ABI of %s: %w", a.ContractName, err)
	}
	return parsed, nil
}

// BuildInfo is the compiler run that produced a set of artifacts.
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

// debugFile points an artifact at its build-info.
type debugFile struct {
	BuildInfo string `json:"buildInfo"`
}

// Source supplies artifacts by contract name.
type Source interface {
	Artifact(name string) (*Artifact, error)
	BuildInfo(name string) (*BuildInfo, error)
}

// Loader finds artifacts in a hardhat artifacts directory. Names are either bare
// contract names or fully qualified source:contract names.
type Loader struct {
	root string

	once  sync.Once
	index map[string][]string
	err   error
}

var _ Source = (*Loader)(nil)

func NewLoader(root string) *Loader {
	return &Loader{root: root}
}

func (l *Loader) buildIndex() {
	l.index = make(map[string][]string)
	l.err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".dbg.json") {
			return nil
		}
		contract := strings.TrimSuffix(name, ".json")
		l.index[contract] = append(l.index[contract], path)
		return nil
	})
	if l.err != nil {
		l.err = fmt.Errorf("failed to scan artifacts in %s: %w", l.root, l.err)
	}
}

func (l *Loader) find(name string) (string, error) {
	l.once.Do(l.buildIndex)
	if l.err != nil {
		return "", l.err
	}
	source, contract, qualified := strings.Cut(name, ":")
	if !qualified {
		contract = source
	}
	var matches []string
	for _, p := range l.index[contract] {
		// artifacts/<sourceName>/<Contract>.json
		if qualified && filepath.ToSlash(filepath.Dir(p)) != filepath.ToSlash(filepath.Join(l.root, source)) {
			continue
		}
		matches = append(matches, p)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("multiple artifacts for %s, use a fully qualified name", name)
	}
}

func (l *Loader) Artifact(name string) (*Artifact, error) {
	path, err := l.find(name)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := readJSON(path, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (l *Loader) BuildInfo(name string) (*BuildInfo, error) {
	path, err := l.find(name)
	if err != nil {
		return nil, err
	}
	var dbg debugFile
	if err := readJSON(strings.TrimSuffix(path, ".json")+".dbg.json", &dbg); err != nil {
		return nil, err
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("no build info recorded for %s", name)
	}
	var bi BuildInfo
	if err := readJSON(filepath.Join(filepath.Dir(path), filepath.FromSlash(dbg.BuildInfo)), &bi); err != nil {
		return nil, err
	}
	return &bi, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
