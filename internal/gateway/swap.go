package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"veilswap/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SwapGateway quotes and executes on-chain swaps. Execute must return a
// settlement reference that uniquely identifies the submitted transaction.
type SwapGateway interface {
	Quote(ctx context.Context, params QuoteParams) (*models.Quote, error)
	Execute(ctx context.Context, payload string) (string, error)
}

type QuoteParams struct {
	InputAsset  string
	OutputAsset string
	InputMint   string
	OutputMint  string
	// Amount is denominated in the input asset. The gateway speaks atomic
	// units, so both mint precisions are needed for conversion.
	Amount         decimal.Decimal
	InputDecimals  int64
	OutputDecimals int64
}

type SwapClient struct {
	baseUrl        string
	maxSlippageBps int
	client         http.Client
}

func NewSwapClient(cfg models.GatewayConfig) (*SwapClient, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}
	return &SwapClient{
		baseUrl:        cfg.SwapBaseUrl,
		maxSlippageBps: cfg.MaxSlippageBps,
		client:         httpClient,
	}, nil
}

type quoteResponse struct {
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePayload   string `json:"routePayload"`
	QuoteId        string `json:"quoteId"`
}

// Quote requests a direct-route quote. Direct routes only: multi-hop routes
// trade marginally better prices for a much larger failure surface, and a
// failed settlement costs more than the spread.
func (c *SwapClient) Quote(ctx context.Context, params QuoteParams) (*models.Quote, error) {
	atomicAmount := params.Amount.Shift(int32(params.InputDecimals)).Truncate(0)

	query := url.Values{}
	query.Set("inputMint", params.InputMint)
	query.Set("outputMint", params.OutputMint)
	query.Set("amount", atomicAmount.String())
	query.Set("slippageBps", fmt.Sprintf("%d", c.maxSlippageBps))
	query.Set("onlyDirectRoutes", "true")

	var resp quoteResponse
	if err := getJson(ctx, &c.client, c.baseUrl+"/quote?"+query.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("swap quote failed: %w", err)
	}

	outAmount, err := decimal.NewFromString(resp.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("swap gateway returned invalid output amount %q: %w", resp.OutAmount, err)
	}
	priceImpact, err := decimal.NewFromString(resp.PriceImpactPct)
	if err != nil {
		return nil, fmt.Errorf("swap gateway returned invalid price impact %q: %w", resp.PriceImpactPct, err)
	}

	quote := &models.Quote{
		InputAsset:     params.InputAsset,
		OutputAsset:    params.OutputAsset,
		InputAmount:    params.Amount,
		OutputAmount:   outAmount.Shift(-int32(params.OutputDecimals)),
		PriceImpactBps: priceImpact.Mul(decimal.NewFromInt(100)),
		Payload:        resp.RoutePayload,
		ReferenceId:    resp.QuoteId,
	}

	zap.L().Debug("Swap quote received",
		zap.String("input_asset", quote.InputAsset),
		zap.String("output_asset", quote.OutputAsset),
		zap.String("input_amount", quote.InputAmount.String()),
		zap.String("output_amount", quote.OutputAmount.String()),
		zap.String("price_impact_bps", quote.PriceImpactBps.String()))
	return quote, nil
}

type executeResponse struct {
	Signature string `json:"signature"`
}

// Execute submits the pre-quoted route payload and returns the transaction
// signature. The caller records the signature before settling so a crash
// after submission never re-executes.
func (c *SwapClient) Execute(ctx context.Context, payload string) (string, error) {
	request := map[string]string{"routePayload": payload}

	var resp executeResponse
	if err := postJson(ctx, &c.client, c.baseUrl+"/swap", request, &resp); err != nil {
		return "", fmt.Errorf("swap execution failed: %w", err)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("swap gateway returned empty signature")
	}
	return resp.Signature, nil
}
