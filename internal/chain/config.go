package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definitions models the structure of configs/chains.yaml.
type Definitions struct {
	Chains map[string]Definition `yaml:"chains"`
}

// Definition describes a single supported chain: its RPC endpoint, its
// canonical USDC deployment and the static name->address table used to
// resolve protocol labels that the market data feed does not carry an
// address for.
type Definition struct {
	ChainID     int64             `yaml:"chain_id"`
	Name        string            `yaml:"name"`
	RPCURL      string            `yaml:"rpc_url"`
	USDCAddress string            `yaml:"usdc_address"`
	USDCDecimal int               `yaml:"usdc_decimals"`
	Protocols   map[string]string `yaml:"protocols"`
	Description string            `yaml:"description"`
}

// defaultDefinitions covers the chains the executor ships with. A YAML
// file extends or overrides these entries.
var defaultDefinitions = map[string]Definition{
	"base": {
		ChainID:     8453,
		Name:        "base",
		RPCURL:      "https://mainnet.base.org",
		USDCAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		USDCDecimal: 6,
		Protocols: map[string]string{
			// Aave v3 Pool on Base.
			"aave": "0x0595D1Df64279ddB51F1bdC405Fe2D0b4Cc86681",
		},
		Description: "Base mainnet",
	},
	"arbitrum": {
		ChainID:     42161,
		Name:        "arbitrum",
		RPCURL:      "https://arb1.arbitrum.io/rpc",
		USDCAddress: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		USDCDecimal: 6,
		Protocols:   map[string]string{},
		Description: "Arbitrum One",
	},
}

// LoadDefinitions parses the YAML chain table and merges it over the
// built-in defaults. An empty path returns the defaults unchanged.
func LoadDefinitions(path string) (Definitions, error) {
	defs := Definitions{Chains: make(map[string]Definition, len(defaultDefinitions))}
	for name, def := range defaultDefinitions {
		defs.Chains[name] = cloneDefinition(def)
	}

	if strings.TrimSpace(path) == "" {
		return defs, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var loaded Definitions
	if err := yaml.Unmarshal(content, &loaded); err != nil {
		return Definitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	for name, def := range loaded.Chains {
		if existing, ok := defs.Chains[name]; ok {
			defs.Chains[name] = mergeDefinition(existing, def)
			continue
		}
		defs.Chains[name] = def
	}
	return defs, nil
}

// ByChainID looks a definition up by its numeric chain id.
func (d Definitions) ByChainID(chainID int64) (Definition, bool) {
	for _, def := range d.Chains {
		if def.ChainID == chainID {
			return def, true
		}
	}
	return Definition{}, false
}

// ProtocolAddress returns the static table entry for a protocol label.
func (d Definition) ProtocolAddress(name string) (string, bool) {
	addr, ok := d.Protocols[strings.ToLower(strings.TrimSpace(name))]
	return addr, ok
}

// cloneDefinition copies a definition together with its protocol table so
// merges never write into the shared defaults.
func cloneDefinition(def Definition) Definition {
	if def.Protocols != nil {
		protocols := make(map[string]string, len(def.Protocols))
		for name, addr := range def.Protocols {
			protocols[name] = addr
		}
		def.Protocols = protocols
	}
	return def
}

func mergeDefinition(base, override Definition) Definition {
	if override.ChainID != 0 {
		base.ChainID = override.ChainID
	}
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.RPCURL != "" {
		base.RPCURL = override.RPCURL
	}
	if override.USDCAddress != "" {
		base.USDCAddress = override.USDCAddress
	}
	if override.USDCDecimal != 0 {
		base.USDCDecimal = override.USDCDecimal
	}
	if override.Description != "" {
		base.Description = override.Description
	}
	for name, addr := range override.Protocols {
		if base.Protocols == nil {
			base.Protocols = map[string]string{}
		}
		base.Protocols[strings.ToLower(name)] = addr
	}
	return base
}
