package core

import "strings"

type ProvisionPolicy string

const (
	PolicyDirectCreate ProvisionPolicy = "direct_create"
	PolicyMagicLink    ProvisionPolicy = "magic_link"
)

type ProfileKeyMode string

const (
	KeyByEmail      ProfileKeyMode = "email"
	KeyByProviderID ProfileKeyMode = "provider_id"
)

type NameFallback string

const (
	NameFallbackBilling  NameFallback = "billing"
	NameFallbackShipping NameFallback = "shipping"
)

// Customer is the canonical record derived from an order payload. Email is
// the only required field; everything else may be empty.
type Customer struct {
	Email         string
	FirstName     string
	LastName      string
	FullName      string
	SourceOrderID int64
}

func (c Customer) Valid() bool {
	return strings.TrimSpace(c.Email) != ""
}

// NormalizedOrder carries the customer record plus the ordered product ids,
// which the pipeline needs for allow-list filtering.
type NormalizedOrder struct {
	Customer   Customer
	ProductIDs []int64
}

type ProvisioningOutcome struct {
	UserID        string
	AlreadyExists bool
	Policy        ProvisionPolicy
}

// ProfileKey resolves the stable persistence key for a customer given the
// configured key mode. Provider-id keying falls back to the email when the
// identity service did not return an id (e.g. already-exists without a body).
func ProfileKey(mode ProfileKeyMode, outcome ProvisioningOutcome, customer Customer) string {
	if mode == KeyByProviderID {
		if id := strings.TrimSpace(outcome.UserID); id != "" {
			return id
		}
	}
	return strings.ToLower(strings.TrimSpace(customer.Email))
}

type Profile struct {
	ID            string
	Key           string
	UserID        string
	Email         string
	FirstName     string
	FullName      string
	SourceOrderID int64
}
