package notify

import (
	"context"

	"veilswap/internal/models"

	"go.uber.org/zap"
)

// Notifier delivers user-facing settlement outcomes. Delivery is best
// effort: a failed notification never fails or retries the settlement that
// triggered it.
type Notifier interface {
	SwapSettled(ctx context.Context, job models.SwapJob)
	SwapFailed(ctx context.Context, job models.SwapJob, reason string)
	BridgeFinished(ctx context.Context, op models.BridgeOperation)
	BridgeFailed(ctx context.Context, op models.BridgeOperation, reason string)
}

// LogNotifier writes notifications to the structured log. Stands in for a
// push channel; swap in a real transport behind the same interface.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SwapSettled(_ context.Context, job models.SwapJob) {
	zap.L().Info("Notification: swap settled",
		zap.String("wallet_id", job.WalletId),
		zap.String("side", job.Side),
		zap.String("asset", job.Asset),
		zap.String("amount_in", job.AmountIn.String()),
		zap.String("received", job.QuoteOutput.String()))
}

func (n *LogNotifier) SwapFailed(_ context.Context, job models.SwapJob, reason string) {
	zap.L().Info("Notification: swap failed, funds restored",
		zap.String("wallet_id", job.WalletId),
		zap.String("side", job.Side),
		zap.String("asset", job.Asset),
		zap.String("reason", reason))
}

func (n *LogNotifier) BridgeFinished(_ context.Context, op models.BridgeOperation) {
	zap.L().Info("Notification: bridge operation finished",
		zap.String("wallet_id", op.WalletId),
		zap.String("direction", op.Direction),
		zap.String("received", op.ReceivedAmount.String()))
}

func (n *LogNotifier) BridgeFailed(_ context.Context, op models.BridgeOperation, reason string) {
	zap.L().Info("Notification: bridge operation failed",
		zap.String("wallet_id", op.WalletId),
		zap.String("direction", op.Direction),
		zap.String("reason", reason))
}
