package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
)

const (
	TypeProcessDelivery = "provision.command.delivery.process"
	TypePurgeDeliveries = "provision.command.deliveries.purge"
)

type ProcessDeliveryMessage struct {
	Request core.InboundRequest
}

func (ProcessDeliveryMessage) Type() string { return TypeProcessDelivery }

func (m ProcessDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if len(m.Request.Body) == 0 {
		return fmt.Errorf("command: request body is required")
	}
	return nil
}

type PurgeDeliveriesMessage struct {
	OlderThan time.Time
}

func (PurgeDeliveriesMessage) Type() string { return TypePurgeDeliveries }

func (m PurgeDeliveriesMessage) Validate() error {
	if m.OlderThan.IsZero() {
		return fmt.Errorf("command: purge cutoff is required")
	}
	return nil
}
