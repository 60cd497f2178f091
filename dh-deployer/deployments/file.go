package deployments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/slices"
)

const (
	chainIDFile = ".chainId"
	recordExt   = ".json"
	cacheSize   = 64
)

// FileStore keeps the records of one network as JSON files in a directory.
type FileStore struct {
	dir     string
	chainID uint64
	cache   *lru.Cache[string, *Record]
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens, creating it if needed, the record directory of network
// under root. A directory written for another chain is rejected.
func NewFileStore(root, network string, chainID uint64) (*FileStore, error) {
	dir := filepath.Join(root, network)
	existing, err := readChainID(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, chainIDFile), []byte(strconv.FormatUint(chainID, 10)), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write chain id: %w", err)
		}
	case err != nil:
		return nil, err
	case existing != chainID:
		return nil, fmt.Errorf("deployments for %s belong to chain %d, not %d", network, existing, chainID)
	}
	return newFileStore(dir, chainID)
}

// OpenFileStore opens the existing record directory of network under root.
func OpenFileStore(root, network string) (*FileStore, error) {
	dir := filepath.Join(root, network)
	chainID, err := readChainID(dir)
	if err != nil {
		return nil, fmt.Errorf("no deployments for network %s: %w", network, err)
	}
	return newFileStore(dir, chainID)
}

func newFileStore(dir string, chainID uint64) (*FileStore, error) {
	cache, err := lru.New[string, *Record](cacheSize)
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, chainID: chainID, cache: cache}, nil
}

func readChainID(dir string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(dir, chainIDFile))
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id file in %s: %w", dir, err)
	}
	return id, nil
}

// ChainID is the chain the records were deployed to.
func (s *FileStore) ChainID() uint64 {
	return s.chainID
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+recordExt)
}

func (s *FileStore) Get(name string) (*Record, error) {
	if r, ok := s.cache.Get(name); ok {
		return r.Copy(), nil
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	} else if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path(name), err)
	}
	// records are written indented
	var abiJSON bytes.Buffer
	if err := json.Compact(&abiJSON, r.ABI); err == nil {
		r.ABI = abiJSON.Bytes()
	}
	s.cache.Add(name, &r)
	return r.Copy(), nil
}

// Save writes the record through a temporary file so readers never see a
// partial record.
func (s *FileStore) Save(name string, r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return err
	}
	s.cache.Add(name, r.Copy())
	return nil
}

func (s *FileStore) Delete(name string) error {
	s.cache.Remove(name)
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), recordExt))
	}
	slices.Sort(names)
	return names, nil
}
