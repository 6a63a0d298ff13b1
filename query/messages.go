package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetProfile  = "provision.query.profile.get"
	TypeGetDelivery = "provision.query.delivery.get"
)

type GetProfileMessage struct {
	Key string
}

func (GetProfileMessage) Type() string { return TypeGetProfile }

func (m GetProfileMessage) Validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return fmt.Errorf("query: profile key is required")
	}
	return nil
}

type GetDeliveryMessage struct {
	ProviderID string
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("query: delivery id is required")
	}
	return nil
}
