package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Sales order statuses in the legacy CRM. The job only ever moves an order
// from StatusInvoice to StatusFinished.
const (
	StatusInvoice  = "Invoice"
	StatusFinished = "Finished"
)

// SalesOrder is a BusinessProject record in the legacy CRM. The
// "billingAdress*" tags reproduce the misspelled field names of the legacy
// entity definition and must not be corrected here.
type SalesOrder struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	BONumber  string `json:"bOnumber"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
	AccountID string `json:"account1Id"`

	BillingAddressCity       string `json:"billingAdressCity,omitempty"`
	BillingAddressCountry    string `json:"billingAdressCountry,omitempty"`
	BillingAddressPostalCode string `json:"billingAdressPostalCode,omitempty"`
	BillingAddressStreet     string `json:"billingAdressStreet,omitempty"`

	ShippingAddressCity       string `json:"shippingAddressCity,omitempty"`
	ShippingAddressCountry    string `json:"shippingAddressCountry,omitempty"`
	ShippingAddressPostalCode string `json:"shippingAddressPostalCode,omitempty"`
	ShippingAddressStreet     string `json:"shippingAddressStreet,omitempty"`

	// Written back after invoice creation.
	InvoiceID     string `json:"invoiceId,omitempty"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	InvoiceURL    string `json:"invoiceUrl,omitempty"`
}

// Account is a customer record. The same entity shape backs both the legacy
// Account and the target-system Company, so one type serves both CRMs.
type Account struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	SICCode string `json:"sicCode"`
	DIC     string `json:"dic"`

	BillingAddressCity       string `json:"billingAddressCity,omitempty"`
	BillingAddressCountry    string `json:"billingAddressCountry,omitempty"`
	BillingAddressPostalCode string `json:"billingAddressPostalCode,omitempty"`
	BillingAddressStreet     string `json:"billingAddressStreet,omitempty"`

	EmailAddress string `json:"emailAddress,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

// CountryCode returns the account's two-letter country prefix, taken from
// the DIC when it carries one (e.g. "CZ12345678"), else from the billing
// address country. Empty when neither is usable.
func (a *Account) CountryCode() string {
	if len(a.DIC) >= 2 {
		prefix := a.DIC[:2]
		if isAlpha(prefix) {
			return strings.ToUpper(prefix)
		}
	}
	switch strings.ToLower(a.BillingAddressCountry) {
	case "czech republic", "czechia", "cz":
		return "CZ"
	case "slovakia", "sk":
		return "SK"
	}
	if len(a.BillingAddressCountry) == 2 {
		return strings.ToUpper(a.BillingAddressCountry)
	}
	return ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Contact belongs to one account. The first contact in a result set acts as
// the billing contact; there is no further disambiguation.
type Contact struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"emailAddress,omitempty"`
	Phone     string `json:"phoneNumber,omitempty"`
	AccountID string `json:"accountId,omitempty"`
}

// UseCase groups line items under a sales order.
type UseCase struct {
	ID                string `json:"id,omitempty"`
	Name              string `json:"name,omitempty"`
	BusinessProjectID string `json:"businessProjectId"`
}

// UseCaseItem is a single sellable line attached to a use case.
type UseCaseItem struct {
	ID        string          `json:"id,omitempty"`
	UseCaseID string          `json:"useCaseId"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	ListPrice decimal.Decimal `json:"listPrice"`
	Discount  decimal.Decimal `json:"discount,omitempty"`
}

// Invoice is the record created in the target CRM. Processed reports
// whether the accounting export (Pohoda) has picked the invoice up.
type Invoice struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name"`
	Number           string `json:"number,omitempty"`
	Processed        bool   `json:"processed,omitempty"`
	DateInvoiced     string `json:"dateInvoiced"`
	Payday           string `json:"payday"`
	AssignedUserID   string `json:"assignedUserId"`
	AccountID        string `json:"accountId"`
	BillingContactID string `json:"billingContactId,omitempty"`

	BillingAddressCity       string `json:"billingAddressCity,omitempty"`
	BillingAddressCountry    string `json:"billingAddressCountry,omitempty"`
	BillingAddressPostalCode string `json:"billingAddressPostalCode,omitempty"`
	BillingAddressStreet     string `json:"billingAddressStreet,omitempty"`

	ShippingAddressCity       string `json:"shippingAddressCity,omitempty"`
	ShippingAddressCountry    string `json:"shippingAddressCountry,omitempty"`
	ShippingAddressPostalCode string `json:"shippingAddressPostalCode,omitempty"`
	ShippingAddressStreet     string `json:"shippingAddressStreet,omitempty"`
}

// InvoiceItem is one invoice line, posted individually after the invoice.
type InvoiceItem struct {
	ID        string          `json:"id,omitempty"`
	InvoiceID string          `json:"invoiceId"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Discount  decimal.Decimal `json:"discount,omitempty"`
	TaxRate   decimal.Decimal `json:"taxRate,omitempty"`
}
