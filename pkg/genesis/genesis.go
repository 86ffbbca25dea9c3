// Package genesis defines the chain bootstrap document: the validator
// registry and the initial account allocations.
package genesis

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sanketsaagar/lumenchain/pkg/consensus"
	"github.com/sanketsaagar/lumenchain/pkg/runtime"
	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Document is the YAML genesis file.
type Document struct {
	// ChainID names the chain.
	ChainID string `yaml:"chain_id"`

	// Validators is the ordered validator registry. Order matters: leader
	// rotation follows it.
	Validators []ValidatorEntry `yaml:"validators"`

	// Alloc funds accounts at height 0.
	Alloc []AllocEntry `yaml:"alloc"`
}

// ValidatorEntry registers one validator.
type ValidatorEntry struct {
	// PubKey is the hex-encoded 32-byte Ed25519 public key.
	PubKey string `yaml:"pubkey"`

	// Weight is the voting weight (defaults to 1).
	Weight uint64 `yaml:"weight"`
}

// AllocEntry funds one account at genesis.
type AllocEntry struct {
	// Address is the hex-encoded 32-byte account address.
	Address string `yaml:"address"`

	// Balance is the initial balance.
	Balance uint64 `yaml:"balance"`
}

// Load reads and parses a genesis file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis file %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes the document as YAML.
func (d *Document) Save(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write genesis file %s: %w", path, err)
	}
	return nil
}

// Validate checks the document for structural problems.
func (d *Document) Validate() error {
	if len(d.Validators) == 0 {
		return fmt.Errorf("at least one validator is required")
	}
	for i, v := range d.Validators {
		if _, err := types.HexToAddress(v.PubKey); err != nil {
			return fmt.Errorf("validator %d: %w", i, err)
		}
	}
	for i, a := range d.Alloc {
		if _, err := types.HexToAddress(a.Address); err != nil {
			return fmt.Errorf("alloc %d: %w", i, err)
		}
	}
	return nil
}

// ValidatorSet builds the consensus validator set from the registry,
// preserving registry order.
func (d *Document) ValidatorSet() (*consensus.ValidatorSet, error) {
	validators := make([]consensus.Validator, 0, len(d.Validators))
	for i, entry := range d.Validators {
		pubkey, err := types.HexToAddress(entry.PubKey)
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		weight := entry.Weight
		if weight == 0 {
			weight = 1
		}
		validators = append(validators, consensus.Validator{ID: pubkey, PubKey: pubkey, Weight: weight})
	}
	return consensus.NewValidatorSetWeighted(validators), nil
}

// State builds the funded genesis state.
func (d *Document) State() (*runtime.State, error) {
	state := runtime.NewState()
	for i, entry := range d.Alloc {
		addr, err := types.HexToAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("alloc %d: %w", i, err)
		}
		state.SetBalance(addr, entry.Balance)
	}
	return state, nil
}

// Dev returns a single-validator development genesis: the given key is the
// sole validator (quorum of one) and holds the full dev allocation.
func Dev(pubkey types.Address) *Document {
	return &Document{
		ChainID: "lumen-devnet",
		Validators: []ValidatorEntry{
			{PubKey: pubkey.Hex(), Weight: 1},
		},
		Alloc: []AllocEntry{
			{Address: pubkey.Hex(), Balance: 1_000_000_000},
		},
	}
}
