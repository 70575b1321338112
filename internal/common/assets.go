package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// AssetConfig describes one tradable asset: its display symbol, the on-chain
// mint address swaps route through, and the mint's decimal precision.
type AssetConfig struct {
	Symbol   string `yaml:"symbol"`
	Mint     string `yaml:"mint"`
	Decimals int64  `yaml:"decimals"`
	Network  string `yaml:"network"`
}

type AssetsConfig struct {
	Assets []AssetConfig `yaml:"assets"`
}

func LoadAssetConfig(assetsFile string) ([]AssetConfig, error) {
	var assetsPath string
	if filepath.IsAbs(assetsFile) {
		assetsPath = assetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}

	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", assetsFile, err)
	}

	for i, asset := range config.Assets {
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if asset.Mint == "" {
			return nil, fmt.Errorf("asset at index %d missing mint", i)
		}
		if asset.Decimals < 0 || asset.Decimals > 18 {
			return nil, fmt.Errorf("asset %s has invalid decimals %d", asset.Symbol, asset.Decimals)
		}
	}

	return config.Assets, nil
}

// AssetCatalog indexes the configured assets by upper-cased symbol.
type AssetCatalog struct {
	assets map[string]AssetConfig
}

func NewAssetCatalog(assets []AssetConfig) *AssetCatalog {
	catalog := &AssetCatalog{assets: make(map[string]AssetConfig, len(assets))}
	for _, asset := range assets {
		catalog.assets[strings.ToUpper(asset.Symbol)] = asset
	}
	return catalog
}

func (c *AssetCatalog) Lookup(symbol string) (AssetConfig, bool) {
	asset, ok := c.assets[strings.ToUpper(symbol)]
	return asset, ok
}

func (c *AssetCatalog) Symbols() []string {
	symbols := make([]string, 0, len(c.assets))
	for symbol := range c.assets {
		symbols = append(symbols, symbol)
	}
	return symbols
}
