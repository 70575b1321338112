package common

import (
	"os"
	"path/filepath"
	"testing"
)

func writeAssetsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assets.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write assets file: %v", err)
	}
	return path
}

func TestLoadAssetConfig(t *testing.T) {
	path := writeAssetsFile(t, `
assets:
  - symbol: SOL
    mint: So11111111111111111111111111111111111111112
    decimals: 9
    network: solana
  - symbol: PRIVY
    mint: mint-privy
    decimals: 6
`)

	assets, err := LoadAssetConfig(path)
	if err != nil {
		t.Fatalf("LoadAssetConfig failed: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(assets))
	}
	if assets[0].Symbol != "SOL" || assets[0].Decimals != 9 {
		t.Errorf("Unexpected first asset: %+v", assets[0])
	}
}

func TestLoadAssetConfig_MissingMint(t *testing.T) {
	path := writeAssetsFile(t, `
assets:
  - symbol: SOL
    decimals: 9
`)

	if _, err := LoadAssetConfig(path); err == nil {
		t.Fatal("Expected error for asset without mint")
	}
}

func TestLoadAssetConfig_InvalidDecimals(t *testing.T) {
	path := writeAssetsFile(t, `
assets:
  - symbol: SOL
    mint: mint-sol
    decimals: 30
`)

	if _, err := LoadAssetConfig(path); err == nil {
		t.Fatal("Expected error for out-of-range decimals")
	}
}

func TestAssetCatalog_LookupCaseInsensitive(t *testing.T) {
	catalog := NewAssetCatalog([]AssetConfig{
		{Symbol: "Privy", Mint: "mint-privy", Decimals: 6},
	})

	asset, ok := catalog.Lookup("PRIVY")
	if !ok {
		t.Fatal("Expected lookup to succeed")
	}
	if asset.Mint != "mint-privy" {
		t.Errorf("Unexpected asset: %+v", asset)
	}

	if _, ok := catalog.Lookup("DOGE"); ok {
		t.Fatal("Expected lookup of unknown symbol to fail")
	}
}
