package common

import (
	"context"
	"log"
	"strings"

	"veilswap/internal/gateway"
	"veilswap/internal/ledger"
	"veilswap/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *ledger.Service
	Swaps     *gateway.SwapClient
	Bridge    *gateway.BridgeClient
	Chain     *gateway.ChainClient
	Catalog   *AssetCatalog
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := ledger.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Loading asset catalog", zap.String("file", cfg.Engine.AssetsFile))
	assets, err := LoadAssetConfig(cfg.Engine.AssetsFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	catalog := NewAssetCatalog(assets)

	swaps, err := gateway.NewSwapClient(cfg.Gateway)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	bridge, err := gateway.NewBridgeClient(cfg.Gateway)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	chain, err := gateway.NewChainClient(cfg.Gateway)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	return &Services{
		DbService: dbService,
		Swaps:     swaps,
		Bridge:    bridge,
		Chain:     chain,
		Catalog:   catalog,
	}, nil
}

// InitializeDatabaseOnly initializes just the ledger store without the
// external gateways. Useful for read-only operations like querying balances.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*ledger.Service, error) {
	dbService, err := ledger.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
