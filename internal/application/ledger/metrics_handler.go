package ledger

import (
	"context"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// MetricsEventHandler feeds ledger business metrics from domain events.
// Recording is best-effort and never fails the event.
type MetricsEventHandler struct {
	metrics *telemetry.LedgerMetrics
	logger  *zap.Logger
}

// NewMetricsEventHandler creates a new MetricsEventHandler
func NewMetricsEventHandler(metrics *telemetry.LedgerMetrics, logger *zap.Logger) *MetricsEventHandler {
	return &MetricsEventHandler{
		metrics: metrics,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler subscribes to
func (h *MetricsEventHandler) EventTypes() []string {
	return []string{
		"InvoiceCreated",
		"PaymentRecorded",
		"CreditNoteIssued",
		"InvoiceDunned",
	}
}

// Handle records the metric matching the event type
func (h *MetricsEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *ledger.InvoiceCreatedEvent:
		h.metrics.RecordInvoiceCreated(ctx, e.TenantID())
	case *ledger.PaymentRecordedEvent:
		h.metrics.RecordPayment(ctx, e.TenantID(), e.Amount)
	case *ledger.CreditNoteIssuedEvent:
		h.metrics.RecordCreditNote(ctx, e.TenantID())
	case *ledger.InvoiceDunnedEvent:
		h.metrics.RecordDunningNotice(ctx, e.TenantID(), e.DunningLevel)
	default:
		h.logger.Debug("unhandled event type for metrics", zap.String("event_type", event.EventType()))
	}
	return nil
}

// Ensure MetricsEventHandler implements EventHandler
var _ shared.EventHandler = (*MetricsEventHandler)(nil)
