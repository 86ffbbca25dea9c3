package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/sanketsaagar/lumenchain/pkg/runtime"
)

// BlockStore persists one RLP-encoded block file per height.
type BlockStore struct {
	basePath string
}

// NewBlockStore creates the block directory if needed.
func NewBlockStore(basePath string) (*BlockStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create block store: %w", err)
	}
	return &BlockStore{basePath: basePath}, nil
}

func (bs *BlockStore) blockPath(height uint64) string {
	return filepath.Join(bs.basePath, fmt.Sprintf("%06d.block", height))
}

// Save writes a block crash-safely.
func (bs *BlockStore) Save(height uint64, block *runtime.Block) error {
	data, err := rlp.EncodeToBytes(block)
	if err != nil {
		return &SerializationError{Key: fmt.Sprintf("block:%d", height), Err: err}
	}
	return atomicWrite(bs.blockPath(height), data)
}

// Load reads the block at a height.
func (bs *BlockStore) Load(height uint64) (*runtime.Block, error) {
	data, err := os.ReadFile(bs.blockPath(height))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, height)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", height, err)
	}

	var block runtime.Block
	if err := rlp.DecodeBytes(data, &block); err != nil {
		return nil, &SerializationError{Key: fmt.Sprintf("block:%d", height), Err: err}
	}
	return &block, nil
}

// Exists reports whether a block file exists at a height.
func (bs *BlockStore) Exists(height uint64) bool {
	_, err := os.Stat(bs.blockPath(height))
	return err == nil
}

// LatestHeight scans the directory for the highest stored block. Returns
// (0, false) when no blocks are stored.
func (bs *BlockStore) LatestHeight() (uint64, bool, error) {
	entries, err := os.ReadDir(bs.basePath)
	if err != nil {
		return 0, false, fmt.Errorf("failed to scan block store: %w", err)
	}

	var (
		highest uint64
		found   bool
	)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".block") {
			continue
		}
		height, err := strconv.ParseUint(strings.TrimSuffix(name, ".block"), 10, 64)
		if err != nil {
			continue
		}
		if !found || height > highest {
			highest, found = height, true
		}
	}
	return highest, found, nil
}
