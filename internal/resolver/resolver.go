// Package resolver matches legacy accounts to companies in the target CRM,
// creating them when no match exists.
package resolver

import (
	"context"
	"fmt"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"go.uber.org/zap"

	"github.com/alis-tech/crm-invoice-sync/internal/models"
)

// DefaultThreshold is the minimum partial-ratio similarity (exclusive) for
// a fuzzy name match, on the 0-100 scale.
const DefaultThreshold = 85

// MatchRule reports which rule produced a resolution.
type MatchRule string

const (
	MatchDIC     MatchRule = "dic"
	MatchSIC     MatchRule = "sic"
	MatchFuzzy   MatchRule = "fuzzy"
	MatchCreated MatchRule = "created"
)

// CompanyDirectory is the slice of the target CRM the resolver needs.
type CompanyDirectory interface {
	ListCompanies(ctx context.Context) ([]models.Account, error)
	CreateCompany(ctx context.Context, account *models.Account) (*models.Account, error)
	ListCompanyContacts(ctx context.Context, companyID string) ([]models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact, companyID string) (*models.Contact, error)
}

// Resolution is the outcome of resolving one legacy account.
type Resolution struct {
	Company *models.Account
	// BillingContact is the contact to reference on the invoice; nil when
	// neither the target company nor the legacy account has one.
	BillingContact *models.Contact
	Rule           MatchRule
	Similarity     int // set only for fuzzy matches
}

// Resolver finds or creates the target-system company for a legacy account.
type Resolver struct {
	directory CompanyDirectory
	threshold int
	logger    *zap.Logger
}

// New creates a resolver. A threshold outside (0,100] falls back to the
// default.
func New(directory CompanyDirectory, threshold int, logger *zap.Logger) *Resolver {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	return &Resolver{directory: directory, threshold: threshold, logger: logger}
}

// Resolve matches the legacy account against the target system's companies
// and returns the company to invoice plus the billing contact.
//
// Match order: exact DIC (VAT code), else exact SIC (registration code),
// else the first company whose name similarity is strictly above the
// threshold. Tie-break policy: first match in the directory's listing
// order wins; there is no best-of-N ranking, so reordering the listing
// would change which company is picked.
func (r *Resolver) Resolve(ctx context.Context, account *models.Account, legacyContact *models.Contact) (*Resolution, error) {
	companies, err := r.directory.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	if match, similarity := r.findMatch(account, companies); match.Company != nil {
		r.logger.Info("Company matched",
			zap.String("account_id", account.ID),
			zap.String("company_id", match.Company.ID),
			zap.String("rule", string(match.Rule)),
			zap.Int("similarity", similarity))

		contacts, err := r.directory.ListCompanyContacts(ctx, match.Company.ID)
		if err != nil {
			return nil, fmt.Errorf("list contacts for company %s: %w", match.Company.ID, err)
		}
		// First contact in the result set is the billing contact.
		if len(contacts) > 0 {
			match.BillingContact = &contacts[0]
		}
		return match, nil
	}

	return r.create(ctx, account, legacyContact)
}

// findMatch scans companies in listing order and returns the first hit.
func (r *Resolver) findMatch(account *models.Account, companies []models.Account) (*Resolution, int) {
	name := strings.ToLower(account.Name)
	for i := range companies {
		company := &companies[i]
		if account.DIC != "" && account.DIC == company.DIC {
			return &Resolution{Company: company, Rule: MatchDIC}, 0
		}
		if account.SICCode != "" && account.SICCode == company.SICCode {
			return &Resolution{Company: company, Rule: MatchSIC}, 0
		}
		if name == "" || company.Name == "" {
			continue
		}
		similarity := fuzzy.PartialRatio(name, strings.ToLower(company.Name))
		if similarity > r.threshold {
			return &Resolution{Company: company, Rule: MatchFuzzy, Similarity: similarity}, similarity
		}
	}
	return &Resolution{}, 0
}

// create copies the legacy account, and its billing contact when present,
// into the target system.
func (r *Resolver) create(ctx context.Context, account *models.Account, legacyContact *models.Contact) (*Resolution, error) {
	company, err := r.directory.CreateCompany(ctx, account)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Company created",
		zap.String("account_id", account.ID),
		zap.String("company_id", company.ID),
		zap.String("name", company.Name))

	resolution := &Resolution{Company: company, Rule: MatchCreated}
	if legacyContact != nil {
		contact, err := r.directory.CreateContact(ctx, legacyContact, company.ID)
		if err != nil {
			return nil, fmt.Errorf("migrate contact for company %s: %w", company.ID, err)
		}
		resolution.BillingContact = contact
	}
	return resolution, nil
}
