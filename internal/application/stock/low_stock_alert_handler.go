package stock

import (
	"context"

	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/mallstock/backend/internal/domain/stock"
	"go.uber.org/zap"
)

// LowStockNotifier is the interface for pushing low-stock alerts to an
// external channel (in-app message, email, webhook)
type LowStockNotifier interface {
	Notify(ctx context.Context, event *stock.StockBelowThresholdEvent) error
}

// LowStockAlertHandler reacts to StockBelowThreshold events. Without a
// notifier it still logs the alert so operators see it in the log stream.
type LowStockAlertHandler struct {
	logger   *zap.Logger
	notifier LowStockNotifier
}

// NewLowStockAlertHandler creates a new alert handler
func NewLowStockAlertHandler(logger *zap.Logger) *LowStockAlertHandler {
	return &LowStockAlertHandler{logger: logger}
}

// WithNotifier sets the notifier for pushing alerts
func (h *LowStockAlertHandler) WithNotifier(notifier LowStockNotifier) *LowStockAlertHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *LowStockAlertHandler) EventTypes() []string {
	return []string{stock.EventTypeStockBelowThreshold}
}

// Handle processes a StockBelowThreshold event
func (h *LowStockAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	alert, ok := event.(*stock.StockBelowThresholdEvent)
	if !ok {
		return nil
	}

	h.logger.Warn("stock below warning threshold",
		zap.Int64("product_id", alert.ProductID),
		zap.Int64("sku_id", alert.SkuID),
		zap.Int64("quantity", alert.Quantity),
		zap.Int64("warn_threshold", alert.WarnThreshold),
	)

	if h.notifier != nil {
		return h.notifier.Notify(ctx, alert)
	}
	return nil
}

// Ensure LowStockAlertHandler implements EventHandler
var _ shared.EventHandler = (*LowStockAlertHandler)(nil)
