// Package crm provides typed access to the two EspoCRM endpoints: the
// legacy system holding sales orders awaiting invoicing, and the target
// system where invoices are created.
package crm

import (
	"context"
	"fmt"

	"github.com/alis-tech/crm-invoice-sync/internal/espo"
	"github.com/alis-tech/crm-invoice-sync/internal/models"
)

// Legacy entity names.
const (
	entitySalesOrder  = "BusinessProject"
	entityAccount     = "Account"
	entityContact     = "Contact"
	entityUseCase     = "UseCase"
	entityUseCaseItem = "UseCaseItem"
)

// LegacyStore reads sales orders and their related records from the old
// CRM and writes the final status back.
type LegacyStore struct {
	client   *espo.Client
	pageSize int
}

// NewLegacyStore wraps an Espo client for the old CRM.
func NewLegacyStore(client *espo.Client, pageSize int) *LegacyStore {
	if pageSize <= 0 {
		pageSize = espo.DefaultPageSize
	}
	return &LegacyStore{client: client, pageSize: pageSize}
}

// FetchInvoiceOrders returns every non-deleted sales order flagged for
// invoicing and created at or after the cutoff, across all pages.
func (s *LegacyStore) FetchInvoiceOrders(ctx context.Context, createdAfter string) ([]models.SalesOrder, error) {
	where := []espo.Filter{
		espo.Equals("status", models.StatusInvoice),
		espo.NotDeleted(),
		espo.GreaterEqual("createdAt", createdAfter),
	}
	return espo.ListAll[models.SalesOrder](ctx, s.client, entitySalesOrder, where, s.pageSize)
}

// GetAccount fetches one account by id.
func (s *LegacyStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.client.GetOne(ctx, entityAccount, accountID, &account); err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return &account, nil
}

// ListContacts returns the account's contacts in server order.
func (s *LegacyStore) ListContacts(ctx context.Context, accountID string) ([]models.Contact, error) {
	where := []espo.Filter{
		espo.NotDeleted(),
		espo.Equals("accountId", accountID),
	}
	return espo.ListAll[models.Contact](ctx, s.client, entityContact, where, s.pageSize)
}

// ListUseCases returns the use cases attached to a sales order.
func (s *LegacyStore) ListUseCases(ctx context.Context, orderID string) ([]models.UseCase, error) {
	where := []espo.Filter{
		espo.Equals("businessProjectId", orderID),
		espo.NotDeleted(),
	}
	return espo.ListAll[models.UseCase](ctx, s.client, entityUseCase, where, s.pageSize)
}

// ListUseCaseItems returns the line items of one use case.
func (s *LegacyStore) ListUseCaseItems(ctx context.Context, useCaseID string) ([]models.UseCaseItem, error) {
	where := []espo.Filter{
		espo.Equals("useCaseId", useCaseID),
		espo.NotDeleted(),
	}
	return espo.ListAll[models.UseCaseItem](ctx, s.client, entityUseCaseItem, where, s.pageSize)
}

// MarkFinished updates a sales order to its terminal status, carrying the
// invoice linkage along. Exactly one call per confirmed order.
func (s *LegacyStore) MarkFinished(ctx context.Context, order *models.SalesOrder) error {
	payload := map[string]any{
		"status":        models.StatusFinished,
		"invoiceNumber": order.InvoiceNumber,
		"invoiceUrl":    order.InvoiceURL,
	}
	if err := s.client.Update(ctx, entitySalesOrder, order.ID, payload); err != nil {
		return fmt.Errorf("mark order %s finished: %w", order.ID, err)
	}
	return nil
}
