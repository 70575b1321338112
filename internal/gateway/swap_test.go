package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSwapClient_QuoteShiftsAtomicAmounts(t *testing.T) {
	var gotAmount, gotSlippage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAmount = r.URL.Query().Get("amount")
		gotSlippage = r.URL.Query().Get("slippageBps")
		json.NewEncoder(w).Encode(map[string]string{
			"outAmount":      "120000000",
			"priceImpactPct": "0.05",
			"routePayload":   `{"route":"direct"}`,
			"quoteId":        "quote-1",
		})
	}))
	defer server.Close()

	client := &SwapClient{baseUrl: server.URL, maxSlippageBps: 100}

	quote, err := client.Quote(context.Background(), QuoteParams{
		InputAsset:     "SOL",
		OutputAsset:    "PRIVY",
		InputMint:      "mint-sol",
		OutputMint:     "mint-privy",
		Amount:         decimal.RequireFromString("1.5"),
		InputDecimals:  9,
		OutputDecimals: 6,
	})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}

	// 1.5 SOL at 9 decimals is 1500000000 atomic units.
	if gotAmount != "1500000000" {
		t.Errorf("Expected atomic amount 1500000000, got %s", gotAmount)
	}
	if gotSlippage != "100" {
		t.Errorf("Expected slippageBps 100, got %s", gotSlippage)
	}

	// 120000000 atomic units at 6 decimals is 120 tokens.
	if !quote.OutputAmount.Equal(decimal.RequireFromString("120")) {
		t.Errorf("Expected output 120, got %s", quote.OutputAmount.String())
	}
	if !quote.PriceImpactBps.Equal(decimal.RequireFromString("5")) {
		t.Errorf("Expected price impact 5 bps, got %s", quote.PriceImpactBps.String())
	}
	if quote.Payload != `{"route":"direct"}` {
		t.Errorf("Unexpected payload %q", quote.Payload)
	}
}

func TestSwapClient_ExecuteReturnsSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/swap" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["routePayload"] != `{"route":"direct"}` {
			t.Errorf("Unexpected payload %q", body["routePayload"])
		}
		json.NewEncoder(w).Encode(map[string]string{"signature": "sig-1"})
	}))
	defer server.Close()

	client := &SwapClient{baseUrl: server.URL}

	signature, err := client.Execute(context.Background(), `{"route":"direct"}`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if signature != "sig-1" {
		t.Errorf("Expected sig-1, got %s", signature)
	}
}

func TestSwapClient_ExecuteRejectsEmptySignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"signature": ""})
	}))
	defer server.Close()

	client := &SwapClient{baseUrl: server.URL}

	if _, err := client.Execute(context.Background(), "payload"); err == nil {
		t.Fatal("Expected error for empty signature")
	}
}
