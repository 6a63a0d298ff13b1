package shopify

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-provision/core"
)

// Normalizer derives the canonical customer record from an order payload
// using fixed fallback order. It satisfies core.OrderNormalizer.
type Normalizer struct {
	// NameFallback selects which address backs the first/last name fallback
	// when the customer object carries none. Defaults to billing.
	NameFallback core.NameFallback
}

func NewNormalizer(fallback core.NameFallback) Normalizer {
	if fallback == "" {
		fallback = core.NameFallbackBilling
	}
	return Normalizer{NameFallback: fallback}
}

func (n Normalizer) Normalize(body []byte) (core.NormalizedOrder, error) {
	event, err := ParseOrderEvent(body)
	if err != nil {
		return core.NormalizedOrder{}, err
	}

	customer := core.Customer{
		Email:         resolveEmail(event),
		SourceOrderID: event.ID,
	}
	customer.FirstName, customer.LastName = n.resolveName(event)
	customer.FullName = resolveFullName(event, customer.FirstName, customer.LastName)

	if !customer.Valid() {
		return core.NormalizedOrder{}, goerrors.New(
			"shopify: order carries no customer email",
			goerrors.CategoryValidation,
		).
			WithCode(http.StatusUnprocessableEntity).
			WithTextCode(core.ErrorMissingEmail).
			WithMetadata(map[string]any{"order_id": event.ID})
	}

	return core.NormalizedOrder{
		Customer:   customer,
		ProductIDs: event.ProductIDs(),
	}, nil
}

// resolveEmail: top-level email, then customer.email, then the customer's
// default address. First non-empty wins.
func resolveEmail(event OrderEvent) string {
	if email := strings.TrimSpace(event.Email); email != "" {
		return email
	}
	if event.Customer == nil {
		return ""
	}
	if email := strings.TrimSpace(event.Customer.Email); email != "" {
		return email
	}
	if event.Customer.DefaultAddress != nil {
		return strings.TrimSpace(event.Customer.DefaultAddress.Email)
	}
	return ""
}

func (n Normalizer) resolveName(event OrderEvent) (string, string) {
	first, last := "", ""
	if event.Customer != nil {
		first = strings.TrimSpace(event.Customer.FirstName)
		last = strings.TrimSpace(event.Customer.LastName)
	}
	if first != "" || last != "" {
		return first, last
	}

	address := event.BillingAddress
	if n.NameFallback == core.NameFallbackShipping {
		address = event.ShippingAddress
	}
	if address == nil {
		return "", ""
	}
	return strings.TrimSpace(address.FirstName), strings.TrimSpace(address.LastName)
}

// resolveFullName prefers the shipping address display name; otherwise joins
// the non-empty name parts with a single space.
func resolveFullName(event OrderEvent, first string, last string) string {
	if event.ShippingAddress != nil {
		if name := strings.TrimSpace(event.ShippingAddress.Name); name != "" {
			return name
		}
	}
	return JoinName(first, last)
}

// JoinName joins the trimmed non-empty parts, never producing leading,
// trailing, or doubled spaces.
func JoinName(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}
