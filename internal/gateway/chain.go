package gateway

import (
	"context"
	"fmt"
	"net/http"

	"veilswap/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChainGateway performs treasury-side on-chain operations: sending funds to
// an exchange deposit address and reading address balances.
type ChainGateway interface {
	Send(ctx context.Context, params SendParams) (string, error)
	AddressBalance(ctx context.Context, asset, address string) (decimal.Decimal, error)
}

type SendParams struct {
	Asset     string
	Amount    decimal.Decimal
	ToAddress string
}

type ChainClient struct {
	rpcUrl string
	client http.Client
}

func NewChainClient(cfg models.GatewayConfig) (*ChainClient, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}
	return &ChainClient{
		rpcUrl: cfg.ChainRpcUrl,
		client: httpClient,
	}, nil
}

type sendRequest struct {
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Address string `json:"address"`
}

type sendResponse struct {
	TxHash string `json:"tx_hash"`
}

// Send transfers funds from the treasury to the given address and returns
// the transaction hash. Callers must hold the operation's send lock.
func (c *ChainClient) Send(ctx context.Context, params SendParams) (string, error) {
	zap.L().Info("Sending on-chain transfer",
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount.String()),
		zap.String("to", params.ToAddress))

	request := sendRequest{
		Asset:   params.Asset,
		Amount:  params.Amount.String(),
		Address: params.ToAddress,
	}

	var resp sendResponse
	if err := postJson(ctx, &c.client, c.rpcUrl+"/send", request, &resp); err != nil {
		return "", fmt.Errorf("on-chain send failed: %w", err)
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("chain gateway returned empty transaction hash")
	}
	return resp.TxHash, nil
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

func (c *ChainClient) AddressBalance(ctx context.Context, asset, address string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/balance/%s/%s", c.rpcUrl, asset, address)

	var resp balanceResponse
	if err := getJson(ctx, &c.client, url, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("balance lookup failed: %w", err)
	}
	return parseAmount(resp.Balance)
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
