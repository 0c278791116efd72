// Package sync runs the order-to-invoice migration cycle: fetch legacy
// orders, enrich them, resolve companies, build invoices, then reconcile
// sent status back into the legacy system.
package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alis-tech/crm-invoice-sync/internal/invoice"
	"github.com/alis-tech/crm-invoice-sync/internal/models"
	"github.com/alis-tech/crm-invoice-sync/internal/reconcile"
	"github.com/alis-tech/crm-invoice-sync/internal/resolver"
)

// OrderSource is the slice of the legacy CRM the pipeline reads from.
type OrderSource interface {
	FetchInvoiceOrders(ctx context.Context, createdAfter string) ([]models.SalesOrder, error)
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	ListContacts(ctx context.Context, accountID string) ([]models.Contact, error)
	ListUseCases(ctx context.Context, orderID string) ([]models.UseCase, error)
	ListUseCaseItems(ctx context.Context, useCaseID string) ([]models.UseCaseItem, error)
}

// CompanyResolver resolves or creates the target-system company.
type CompanyResolver interface {
	Resolve(ctx context.Context, account *models.Account, legacyContact *models.Contact) (*resolver.Resolution, error)
}

// InvoiceBuilder creates the invoice and its lines.
type InvoiceBuilder interface {
	Build(ctx context.Context, order *models.SalesOrder, items []models.UseCaseItem, res *resolver.Resolution) (*invoice.Result, error)
}

// StatusReconciler closes out orders whose invoices were sent.
type StatusReconciler interface {
	Reconcile(ctx context.Context, orders []models.SalesOrder) (reconcile.Result, error)
}

// Pipeline wires the stages of one sync cycle together. Execution is fully
// sequential: enrich before build, build before reconcile.
type Pipeline struct {
	source       OrderSource
	resolver     CompanyResolver
	builder      InvoiceBuilder
	reconciler   StatusReconciler
	createdAfter string
	urlTemplate  string
	logger       *zap.Logger
}

// NewPipeline assembles a pipeline from its stages.
func NewPipeline(
	source OrderSource,
	companyResolver CompanyResolver,
	builder InvoiceBuilder,
	reconciler StatusReconciler,
	createdAfter string,
	urlTemplate string,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		source:       source,
		resolver:     companyResolver,
		builder:      builder,
		reconciler:   reconciler,
		createdAfter: createdAfter,
		urlTemplate:  urlTemplate,
		logger:       logger,
	}
}

// Report summarizes one cycle.
type Report struct {
	CycleID         string
	OrdersFetched   int
	InvoicesCreated int
	ItemsCreated    int
	ItemsFailed     int
	Reconciled      reconcile.Result
}

// RunCycle executes one full migration cycle. Any stage error aborts the
// cycle and surfaces stage-tagged to the caller; the worker turns it into
// a backoff pause. Orders already carrying an invoiceId are NOT filtered
// out, so re-running a cycle against an unreconciled order creates a
// second invoice. That matches the legacy behavior and is pinned by test;
// fixing it would need an agreed already-synced contract with the target
// system first.
func (p *Pipeline) RunCycle(ctx context.Context) (*Report, error) {
	report := &Report{CycleID: uuid.NewString()}
	log := p.logger.With(zap.String("cycle_id", report.CycleID))

	orders, err := p.source.FetchInvoiceOrders(ctx, p.createdAfter)
	if err != nil {
		return report, stageErr(StageFetch, err)
	}
	report.OrdersFetched = len(orders)

	if len(orders) == 0 {
		log.Info("No sales orders awaiting invoicing")
		return report, nil
	}
	log.Info("Processing sales orders", zap.Int("count", len(orders)))

	for i := range orders {
		if err := p.processOrder(ctx, &orders[i], report, log); err != nil {
			return report, err
		}
	}

	reconciled, err := p.reconciler.Reconcile(ctx, orders)
	if err != nil {
		return report, stageErr(StageReconcile, err)
	}
	report.Reconciled = reconciled

	log.Info("Cycle completed",
		zap.Int("orders", report.OrdersFetched),
		zap.Int("invoices", report.InvoicesCreated),
		zap.Int("finished", reconciled.Finished),
		zap.Int("pending", reconciled.Pending))
	return report, nil
}

// processOrder enriches, resolves and invoices a single sales order.
func (p *Pipeline) processOrder(ctx context.Context, order *models.SalesOrder, report *Report, log *zap.Logger) error {
	account, err := p.source.GetAccount(ctx, order.AccountID)
	if err != nil {
		return stageErr(StageEnrich, fmt.Errorf("order %s: %w", order.ID, err))
	}

	contacts, err := p.source.ListContacts(ctx, order.AccountID)
	if err != nil {
		return stageErr(StageEnrich, fmt.Errorf("order %s: %w", order.ID, err))
	}
	// First contact in the result set is the billing contact.
	var billingContact *models.Contact
	if len(contacts) > 0 {
		billingContact = &contacts[0]
	}

	items, err := p.flattenItems(ctx, order.ID)
	if err != nil {
		return stageErr(StageEnrich, fmt.Errorf("order %s: %w", order.ID, err))
	}

	resolution, err := p.resolver.Resolve(ctx, account, billingContact)
	if err != nil {
		return stageErr(StageResolve, fmt.Errorf("order %s: %w", order.ID, err))
	}

	result, err := p.builder.Build(ctx, order, items, resolution)
	if err != nil {
		return stageErr(StageBuild, err)
	}

	order.InvoiceID = result.Invoice.ID
	order.InvoiceNumber = result.Invoice.Number
	order.InvoiceURL = fmt.Sprintf(p.urlTemplate, result.Invoice.ID)

	report.InvoicesCreated++
	report.ItemsCreated += result.ItemsCreated
	report.ItemsFailed += result.ItemsFailed

	log.Debug("Order invoiced",
		zap.String("order_id", order.ID),
		zap.String("invoice_id", order.InvoiceID),
		zap.String("match_rule", string(resolution.Rule)),
		zap.Int("items", result.ItemsCreated))
	return nil
}

// flattenItems collects every use-case line item of an order into one list.
func (p *Pipeline) flattenItems(ctx context.Context, orderID string) ([]models.UseCaseItem, error) {
	useCases, err := p.source.ListUseCases(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var items []models.UseCaseItem
	for _, uc := range useCases {
		ucItems, err := p.source.ListUseCaseItems(ctx, uc.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, ucItems...)
	}
	return items, nil
}
