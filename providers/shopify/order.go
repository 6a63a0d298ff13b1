package shopify

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-provision/core"
)

// OrderEvent mirrors the subset of a Shopify order payload this service
// reads. Every field is optional; absent paths decode to zero values.
type OrderEvent struct {
	ID              int64          `json:"id"`
	Email           string         `json:"email"`
	Customer        *OrderCustomer `json:"customer"`
	BillingAddress  *OrderAddress  `json:"billing_address"`
	ShippingAddress *OrderAddress  `json:"shipping_address"`
	LineItems       []LineItem     `json:"line_items"`
}

type OrderCustomer struct {
	ID             int64         `json:"id"`
	Email          string        `json:"email"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	DefaultAddress *OrderAddress `json:"default_address"`
}

type OrderAddress struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type LineItem struct {
	ProductID int64 `json:"product_id"`
}

func ParseOrderEvent(body []byte) (OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return OrderEvent{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "shopify: parse order payload").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorBadPayload)
	}
	return event, nil
}

func (e OrderEvent) ProductIDs() []int64 {
	if len(e.LineItems) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(e.LineItems))
	for _, item := range e.LineItems {
		if item.ProductID != 0 {
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}
