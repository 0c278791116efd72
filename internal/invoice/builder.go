// Package invoice constructs invoices in the target CRM from resolved
// sales orders.
package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alis-tech/crm-invoice-sync/internal/models"
	"github.com/alis-tech/crm-invoice-sync/internal/resolver"
)

// dueDays is the payment term applied to every invoice.
const dueDays = 14

// InvoiceWriter is the slice of the target CRM the builder needs.
type InvoiceWriter interface {
	CreateInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error)
	CreateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error
}

// Builder creates invoices and their line items.
type Builder struct {
	writer         InvoiceWriter
	assignedUserID string
	taxRates       map[string]decimal.Decimal
	now            func() time.Time
	logger         *zap.Logger
}

// NewBuilder creates a builder. taxRates maps a two-letter country code to
// a VAT percentage; countries absent from the table get no tax line rate.
func NewBuilder(writer InvoiceWriter, assignedUserID string, taxRates map[string]float64, logger *zap.Logger) *Builder {
	rates := make(map[string]decimal.Decimal, len(taxRates))
	for country, rate := range taxRates {
		rates[country] = decimal.NewFromFloat(rate)
	}
	return &Builder{
		writer:         writer,
		assignedUserID: assignedUserID,
		taxRates:       rates,
		now:            time.Now,
		logger:         logger,
	}
}

// Result reports what one Build call created.
type Result struct {
	Invoice      *models.Invoice
	ItemsCreated int
	ItemsFailed  int
}

// Build posts the invoice for one sales order, then posts each flattened
// line item tagged with the new invoice id. Item failures are logged and
// skipped, never retried, so a partial failure leaves an invoice with
// missing lines.
func (b *Builder) Build(ctx context.Context, order *models.SalesOrder, items []models.UseCaseItem, resolution *resolver.Resolution) (*Result, error) {
	today := b.now()
	payday := today.AddDate(0, 0, dueDays)

	draft := &models.Invoice{
		Name:           order.BONumber,
		DateInvoiced:   today.Format("2006-01-02"),
		Payday:         payday.Format("2006-01-02"),
		AssignedUserID: b.assignedUserID,
		AccountID:      resolution.Company.ID,

		BillingAddressCity:       order.BillingAddressCity,
		BillingAddressCountry:    order.BillingAddressCountry,
		BillingAddressPostalCode: order.BillingAddressPostalCode,
		BillingAddressStreet:     order.BillingAddressStreet,

		ShippingAddressCity:       order.ShippingAddressCity,
		ShippingAddressCountry:    order.ShippingAddressCountry,
		ShippingAddressPostalCode: order.ShippingAddressPostalCode,
		ShippingAddressStreet:     order.ShippingAddressStreet,
	}
	if resolution.BillingContact != nil {
		draft.BillingContactID = resolution.BillingContact.ID
	}

	created, err := b.writer.CreateInvoice(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}

	result := &Result{Invoice: created}
	taxRate := b.taxRate(resolution.Company)

	for _, item := range items {
		line := &models.InvoiceItem{
			InvoiceID: created.ID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.ListPrice,
			Discount:  item.Discount,
			TaxRate:   taxRate,
		}
		if err := b.writer.CreateInvoiceItem(ctx, line); err != nil {
			result.ItemsFailed++
			b.logger.Error("Failed to create invoice item",
				zap.String("invoice_id", created.ID),
				zap.String("item", item.Name),
				zap.Error(err))
			continue
		}
		result.ItemsCreated++
	}

	b.logger.Info("Invoice created",
		zap.String("order_id", order.ID),
		zap.String("invoice_id", created.ID),
		zap.String("invoice_number", created.Number),
		zap.Int("items_created", result.ItemsCreated),
		zap.Int("items_failed", result.ItemsFailed))

	return result, nil
}

// taxRate looks up the line tax rate for the company's country. Countries
// without a configured rate get zero, matching the legacy behavior of
// "21% for CZ, none otherwise" when the table holds only the default.
func (b *Builder) taxRate(company *models.Account) decimal.Decimal {
	if rate, ok := b.taxRates[company.CountryCode()]; ok {
		return rate
	}
	return decimal.Zero
}

// SetNow overrides the clock (for testing).
func (b *Builder) SetNow(now func() time.Time) {
	b.now = now
}
