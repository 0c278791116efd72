// Package reconcile confirms invoice-sent status in the target system and
// closes out the originating legacy orders.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alis-tech/crm-invoice-sync/internal/models"
)

// InvoiceReader re-fetches invoices from the target CRM.
type InvoiceReader interface {
	GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error)
}

// OrderFinisher writes the terminal status back to the legacy CRM.
type OrderFinisher interface {
	MarkFinished(ctx context.Context, order *models.SalesOrder) error
}

// Reconciler checks, after a settling delay, whether created invoices have
// been picked up by the accounting export, and marks the matching legacy
// orders Finished.
type Reconciler struct {
	invoices InvoiceReader
	orders   OrderFinisher
	delay    time.Duration
	logger   *zap.Logger
}

// New creates a reconciler. The delay gives the target system's accounting
// export time to run before the first read-back.
func New(invoices InvoiceReader, orders OrderFinisher, delay time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{invoices: invoices, orders: orders, delay: delay, logger: logger}
}

// Result counts reconciliation outcomes for one pass.
type Result struct {
	Finished int
	Pending  int
	Failed   int
}

// Reconcile waits the settling delay, then checks each order's linked
// invoice. An invoice observed with its processed flag set triggers exactly
// one Finished update on the order; unsent invoices are left alone for the
// next full cycle. Orders without an invoice id are skipped. Per-order
// failures are logged and do not stop the pass.
func (r *Reconciler) Reconcile(ctx context.Context, orders []models.SalesOrder) (Result, error) {
	if len(orders) == 0 {
		return Result{}, nil
	}

	r.logger.Info("Waiting for accounting export before reconciliation",
		zap.Duration("delay", r.delay),
		zap.Int("orders", len(orders)))

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(r.delay):
	}

	var result Result
	for i := range orders {
		order := &orders[i]
		if order.InvoiceID == "" {
			continue
		}

		invoice, err := r.invoices.GetInvoice(ctx, order.InvoiceID)
		if err != nil {
			result.Failed++
			r.logger.Error("Failed to re-fetch invoice",
				zap.String("order_id", order.ID),
				zap.String("invoice_id", order.InvoiceID),
				zap.Error(err))
			continue
		}

		if !invoice.Processed {
			result.Pending++
			r.logger.Debug("Invoice not yet sent to accounting",
				zap.String("order_id", order.ID),
				zap.String("invoice_id", order.InvoiceID))
			continue
		}

		if err := r.orders.MarkFinished(ctx, order); err != nil {
			result.Failed++
			r.logger.Error("Failed to finish order",
				zap.String("order_id", order.ID),
				zap.Error(err))
			continue
		}
		result.Finished++
		r.logger.Info("Order finished",
			zap.String("order_id", order.ID),
			zap.String("invoice_id", order.InvoiceID))
	}

	return result, nil
}
