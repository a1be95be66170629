// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics tracks business activity in the open-item ledger: documents
// entering the ledger, money being settled and dunning escalations.
type LedgerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	invoiceCreatedTotal *Counter
	paymentTotal        *Counter
	paymentAmountCents  *Counter
	creditNoteTotal     *Counter
	dunningNoticeTotal  *Counter

	openAmountCents *FloatGauge
	openItemCount   *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	openItemsProvider OpenItemsMetricsProvider
}

// OpenItemsMetricsProvider provides ledger totals for periodic gauge
// collection without coupling the telemetry layer to the domain.
type OpenItemsMetricsProvider interface {
	// GetOpenItemTotals returns the open invoice count and the summed open
	// amount for a tenant
	GetOpenItemTotals(ctx context.Context, tenantID uuid.UUID) (count int64, total decimal.Decimal, err error)
}

// TenantProvider provides tenant IDs for periodic metrics collection.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter             metric.Meter
	Logger            *zap.Logger
	CollectInterval   time.Duration // Default: 5 minutes
	OpenItemsProvider OpenItemsMetricsProvider
}

// NewLedgerMetrics creates a new LedgerMetrics instance.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		meter:             cfg.Meter,
		logger:            logger,
		stopChan:          make(chan struct{}),
		openItemsProvider: cfg.OpenItemsProvider,
	}

	var err error

	lm.invoiceCreatedTotal, err = NewCounter(
		cfg.Meter,
		"rcv_invoice_created_total",
		"Total number of invoices entered into the ledger",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	lm.paymentTotal, err = NewCounter(
		cfg.Meter,
		"rcv_payment_total",
		"Total number of payments recorded",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	lm.paymentAmountCents, err = NewCounter(
		cfg.Meter,
		"rcv_payment_amount_total",
		"Total payment amount in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	lm.creditNoteTotal, err = NewCounter(
		cfg.Meter,
		"rcv_credit_note_total",
		"Total number of credit notes issued",
		"{credit_notes}",
	)
	if err != nil {
		return nil, err
	}

	lm.dunningNoticeTotal, err = NewCounter(
		cfg.Meter,
		"rcv_dunning_notice_total",
		"Total number of dunning notices issued",
		"{notices}",
	)
	if err != nil {
		return nil, err
	}

	lm.openAmountCents, err = NewFloatGauge(
		cfg.Meter,
		"rcv_open_amount",
		"Summed open amount across all open invoices, in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	lm.openItemCount, err = NewGauge(
		cfg.Meter,
		"rcv_open_item_count",
		"Number of invoices with an open balance",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordInvoiceCreated records an invoice entering the ledger.
func (lm *LedgerMetrics) RecordInvoiceCreated(ctx context.Context, tenantID uuid.UUID) {
	lm.invoiceCreatedTotal.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// RecordPayment records a payment with its amount.
func (lm *LedgerMetrics) RecordPayment(ctx context.Context, tenantID uuid.UUID, amount decimal.Decimal) {
	lm.paymentTotal.Inc(ctx, AttrTenantID.String(tenantID.String()))
	lm.paymentAmountCents.Add(ctx, amount.Mul(decimal.NewFromInt(100)).IntPart(),
		AttrTenantID.String(tenantID.String()))
}

// RecordCreditNote records a credit note being issued.
func (lm *LedgerMetrics) RecordCreditNote(ctx context.Context, tenantID uuid.UUID) {
	lm.creditNoteTotal.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// RecordDunningNotice records one dunning escalation.
func (lm *LedgerMetrics) RecordDunningNotice(ctx context.Context, tenantID uuid.UUID, level int) {
	lm.dunningNoticeTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrDunningLevel.Int(level),
	)
}

// StartPeriodicCollection starts periodic collection of the open-item gauges.
// Non-blocking; use Stop() to stop collection.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go lm.runPeriodicCollection(ctx, tenantProvider, interval)
	})
}

func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lm.collectOpenItemMetrics(ctx, tenantProvider)

	for {
		select {
		case <-lm.stopChan:
			lm.logger.Info("Stopping periodic ledger metrics collection")
			return
		case <-ctx.Done():
			lm.logger.Info("Context cancelled, stopping periodic ledger metrics collection")
			return
		case <-ticker.C:
			lm.collectOpenItemMetrics(ctx, tenantProvider)
		}
	}
}

func (lm *LedgerMetrics) collectOpenItemMetrics(ctx context.Context, tenantProvider TenantProvider) {
	if lm.openItemsProvider == nil {
		lm.logger.Debug("No open items provider configured, skipping ledger metrics collection")
		return
	}

	tenantIDs, err := tenantProvider.GetActiveTenantIDs(ctx)
	if err != nil {
		lm.logger.Error("Failed to get tenant IDs for metrics collection", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		count, total, err := lm.openItemsProvider.GetOpenItemTotals(ctx, tenantID)
		if err != nil {
			lm.logger.Warn("Failed to get open item totals for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		lm.openItemCount.Record(ctx, count, AttrTenantID.String(tenantID.String()))
		lm.openAmountCents.Record(ctx, total.Mul(decimal.NewFromInt(100)).InexactFloat64(),
			AttrTenantID.String(tenantID.String()))
	}
}

// Stop stops the periodic collection.
func (lm *LedgerMetrics) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
