package models

import (
	"github.com/shopspring/decimal"
)

// Quote is a swap gateway quote snapshot. Payload is the executable,
// pre-signed route returned by the gateway; it is stored on the swap job so
// a crashed worker never has to re-quote.
type Quote struct {
	InputAsset     string          `json:"input_asset"`
	OutputAsset    string          `json:"output_asset"`
	InputAmount    decimal.Decimal `json:"input_amount"`
	OutputAmount   decimal.Decimal `json:"output_amount"`
	PriceImpactBps decimal.Decimal `json:"price_impact_bps"`
	Payload        string          `json:"payload"`
	ReferenceId    string          `json:"reference_id"`
}

// Bridge gateway exchange statuses
const (
	ExchangeWaiting    = "waiting"
	ExchangeConfirming = "confirming"
	ExchangeExchanging = "exchanging"
	ExchangeSending    = "sending"
	ExchangeFinished   = "finished"
	ExchangeFailed     = "failed"
	ExchangeRefunded   = "refunded"
	ExchangeExpired    = "expired"
)

// Exchange is a created two-party exchange on the bridge gateway
type Exchange struct {
	Id             string `json:"id"`
	DepositAddress string `json:"deposit_address"`
}

// ExchangeState is the gateway-reported lifecycle state of an exchange
type ExchangeState struct {
	Status         string          `json:"status"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	OutboundTxRef  string          `json:"outbound_tx_ref"`
}

// IsTerminalFailure reports whether a gateway status means the exchange
// will never complete.
func IsTerminalFailure(status string) bool {
	switch status {
	case ExchangeFailed, ExchangeRefunded, ExchangeExpired:
		return true
	}
	return false
}
