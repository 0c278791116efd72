package crm

import (
	"context"
	"fmt"

	"github.com/alis-tech/crm-invoice-sync/internal/espo"
	"github.com/alis-tech/crm-invoice-sync/internal/models"
)

const (
	entityInvoice     = "Invoice"
	entityInvoiceItem = "InvoiceItem"
)

// TargetStore manages companies, contacts and invoices in the new CRM.
type TargetStore struct {
	client   *espo.Client
	pageSize int
}

// NewTargetStore wraps an Espo client for the new CRM.
func NewTargetStore(client *espo.Client, pageSize int) *TargetStore {
	if pageSize <= 0 {
		pageSize = espo.DefaultPageSize
	}
	return &TargetStore{client: client, pageSize: pageSize}
}

// ListCompanies returns every non-deleted company in server order. The
// resolver depends on this order for its first-match-wins policy.
func (s *TargetStore) ListCompanies(ctx context.Context) ([]models.Account, error) {
	where := []espo.Filter{espo.NotDeleted()}
	return espo.ListAll[models.Account](ctx, s.client, entityAccount, where, s.pageSize)
}

// CreateCompany creates a company from a legacy account payload and
// returns the created record.
func (s *TargetStore) CreateCompany(ctx context.Context, account *models.Account) (*models.Account, error) {
	payload := *account
	payload.ID = ""
	var created models.Account
	if err := s.client.Create(ctx, entityAccount, &payload, &created); err != nil {
		return nil, fmt.Errorf("create company %q: %w", account.Name, err)
	}
	return &created, nil
}

// ListCompanyContacts returns the contacts linked to a company.
func (s *TargetStore) ListCompanyContacts(ctx context.Context, companyID string) ([]models.Contact, error) {
	where := []espo.Filter{
		espo.Equals("accountId", companyID),
		espo.NotDeleted(),
	}
	return espo.ListAll[models.Contact](ctx, s.client, entityContact, where, s.pageSize)
}

// CreateContact copies a legacy contact into the target system and links
// it to the given company.
func (s *TargetStore) CreateContact(ctx context.Context, contact *models.Contact, companyID string) (*models.Contact, error) {
	payload := *contact
	payload.ID = ""
	payload.AccountID = ""
	var created models.Contact
	if err := s.client.Create(ctx, entityContact, &payload, &created); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	link := map[string]any{"accountId": companyID}
	if err := s.client.Update(ctx, entityContact, created.ID, link); err != nil {
		return nil, fmt.Errorf("link contact %s to company %s: %w", created.ID, companyID, err)
	}
	created.AccountID = companyID
	return &created, nil
}

// CreateInvoice posts an invoice and returns the created record, including
// the server-assigned id and number.
func (s *TargetStore) CreateInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	var created models.Invoice
	if err := s.client.Create(ctx, entityInvoice, invoice, &created); err != nil {
		return nil, fmt.Errorf("create invoice %q: %w", invoice.Name, err)
	}
	return &created, nil
}

// CreateInvoiceItem posts one invoice line.
func (s *TargetStore) CreateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	if err := s.client.Create(ctx, entityInvoiceItem, item, nil); err != nil {
		return fmt.Errorf("create invoice item %q: %w", item.Name, err)
	}
	return nil
}

// GetInvoice re-fetches an invoice by id, including its sent indicator.
func (s *TargetStore) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.client.GetOne(ctx, entityInvoice, invoiceID, &invoice); err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", invoiceID, err)
	}
	return &invoice, nil
}
