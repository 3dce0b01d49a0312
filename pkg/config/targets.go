package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opencollective/odoo-web3/pkg/chain"
)

// ErrNoTargets is returned for a targets file without entries.
var ErrNoTargets = errors.New("no targets configured")

// Target is one (wallet, token) pair of the targets file.
type Target struct {
	Wallet     string `yaml:"wallet"`
	Token      string `yaml:"token"`
	Symbol     string `yaml:"symbol"`
	JournalID  int64  `yaml:"journal_id"`
	StartBlock int64  `yaml:"start_block"`
}

// TargetsFile is the YAML list of targets synced by a multi-target run.
type TargetsFile struct {
	Targets []Target `yaml:"targets"`
}

// Validate checks the addresses and symbol of t.
func (t Target) Validate() error {
	if err := chain.ValidateAddress(t.Wallet); err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	if err := chain.ValidateAddress(t.Token); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if t.Symbol == "" {
		return errors.New("symbol is required")
	}
	if t.JournalID < 0 || t.StartBlock < 0 {
		return errors.New("journal_id and start_block must not be negative")
	}
	return nil
}

// LoadTargets reads and validates a targets file.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var file TargetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTargets, path)
	}

	for i, t := range file.Targets {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i+1, err)
		}
	}

	return file.Targets, nil
}
