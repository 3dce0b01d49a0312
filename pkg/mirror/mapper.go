package mirror

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opencollective/odoo-web3/pkg/chain"
)

// Default accounts used when no mapping file is given.
const (
	DefaultAssetPrefix = "Assets:Crypto"
	DefaultIncome      = "Income:Crypto:Unmapped"
	DefaultExpenses    = "Expenses:Crypto:Unmapped"
)

// CounterpartyMapping maps a counterparty address to a Beancount account.
type CounterpartyMapping struct {
	Address string `yaml:"address"`
	Account string `yaml:"account"`
	Name    string `yaml:"name"`
}

// AccountMappingConfig is the YAML account mapping file.
type AccountMappingConfig struct {
	AssetPrefix    string                `yaml:"asset_prefix"`
	Income         string                `yaml:"income"`
	Expenses       string                `yaml:"expenses"`
	Counterparties []CounterpartyMapping `yaml:"counterparties"`
}

// Mapper picks the Beancount accounts of a mirrored line.
type Mapper struct {
	config    AccountMappingConfig
	byAddress map[string]CounterpartyMapping
}

// NewMapper creates a Mapper from a YAML configuration file.
func NewMapper(configPath string) (*Mapper, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AccountMappingConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return newMapper(config), nil
}

// DefaultMapper returns a Mapper with the default accounts and no counterparty mappings.
func DefaultMapper() *Mapper {
	return newMapper(AccountMappingConfig{})
}

func newMapper(config AccountMappingConfig) *Mapper {
	if config.AssetPrefix == "" {
		config.AssetPrefix = DefaultAssetPrefix
	}
	if config.Income == "" {
		config.Income = DefaultIncome
	}
	if config.Expenses == "" {
		config.Expenses = DefaultExpenses
	}

	m := &Mapper{config: config, byAddress: make(map[string]CounterpartyMapping)}
	for _, mapping := range config.Counterparties {
		m.byAddress[chain.NormalizeAddress(mapping.Address)] = mapping
	}
	return m
}

// AssetAccount returns the account holding the wallet's balance of a journal.
// Example: Assets:Crypto:USDC-111111
func (m *Mapper) AssetAccount(journalCode string) string {
	return strings.TrimSuffix(m.config.AssetPrefix, ":") + ":" + sanitizeAccountComponent(journalCode)
}

// CounterAccount returns the account on the other side of a line: the mapped account of
// the counterparty, otherwise the income or expense fallback depending on direction.
func (m *Mapper) CounterAccount(counterparty string, incoming bool) string {
	if mapping, ok := m.byAddress[chain.NormalizeAddress(counterparty)]; ok && mapping.Account != "" {
		return mapping.Account
	}
	if incoming {
		return m.config.Income
	}
	return m.config.Expenses
}

// Payee returns the display name of a counterparty, its address when unmapped.
func (m *Mapper) Payee(counterparty string) string {
	if mapping, ok := m.byAddress[chain.NormalizeAddress(counterparty)]; ok && mapping.Name != "" {
		return mapping.Name
	}
	return chain.NormalizeAddress(counterparty)
}
