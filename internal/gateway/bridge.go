package gateway

import (
	"context"
	"fmt"
	"net/http"

	"veilswap/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BridgeGateway creates and tracks cross-asset exchanges on the external
// bridge service. An exchange converts whatever arrives at its deposit
// address and sends the result to the destination address.
type BridgeGateway interface {
	CreateExchange(ctx context.Context, params CreateExchangeParams) (*models.Exchange, error)
	GetStatus(ctx context.Context, exchangeId string) (*models.ExchangeState, error)
}

type CreateExchangeParams struct {
	FromAsset          string
	ToAsset            string
	DestinationAddress string
	RefundAddress      string
}

type BridgeClient struct {
	baseUrl string
	client  http.Client
}

func NewBridgeClient(cfg models.GatewayConfig) (*BridgeClient, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}
	return &BridgeClient{
		baseUrl: cfg.BridgeBaseUrl,
		client:  httpClient,
	}, nil
}

type createExchangeRequest struct {
	FromCurrency   string `json:"from_currency"`
	ToCurrency     string `json:"to_currency"`
	AddressTo      string `json:"address_to"`
	RefundAddress  string `json:"refund_address,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

type createExchangeResponse struct {
	Id          string `json:"id"`
	AddressFrom string `json:"address_from"`
}

func (c *BridgeClient) CreateExchange(ctx context.Context, params CreateExchangeParams) (*models.Exchange, error) {
	request := createExchangeRequest{
		FromCurrency:   params.FromAsset,
		ToCurrency:     params.ToAsset,
		AddressTo:      params.DestinationAddress,
		RefundAddress:  params.RefundAddress,
		IdempotencyKey: uuid.New().String(),
	}

	var resp createExchangeResponse
	if err := postJson(ctx, &c.client, c.baseUrl+"/exchanges", request, &resp); err != nil {
		return nil, fmt.Errorf("exchange creation failed: %w", err)
	}
	if resp.Id == "" || resp.AddressFrom == "" {
		return nil, fmt.Errorf("bridge gateway returned incomplete exchange")
	}

	zap.L().Info("Bridge exchange created",
		zap.String("exchange_id", resp.Id),
		zap.String("from", params.FromAsset),
		zap.String("to", params.ToAsset))

	return &models.Exchange{
		Id:             resp.Id,
		DepositAddress: resp.AddressFrom,
	}, nil
}

type exchangeStatusResponse struct {
	Status         string `json:"status"`
	AmountReceived string `json:"amount_received"`
	PayoutHash     string `json:"payout_hash"`
}

func (c *BridgeClient) GetStatus(ctx context.Context, exchangeId string) (*models.ExchangeState, error) {
	var resp exchangeStatusResponse
	if err := getJson(ctx, &c.client, c.baseUrl+"/exchanges/"+exchangeId, &resp); err != nil {
		return nil, fmt.Errorf("exchange status lookup failed: %w", err)
	}

	state := &models.ExchangeState{
		Status:        resp.Status,
		OutboundTxRef: resp.PayoutHash,
	}
	if resp.AmountReceived != "" {
		received, err := parseAmount(resp.AmountReceived)
		if err != nil {
			return nil, fmt.Errorf("bridge gateway returned invalid amount %q: %w", resp.AmountReceived, err)
		}
		state.AmountReceived = received
	}
	return state, nil
}
