package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-provision/core"
)

// DeliveryProcessor is the admission pipeline seam.
type DeliveryProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type DeliveryPurger interface {
	PurgeProcessed(ctx context.Context, olderThan time.Time) (int64, error)
}

type ProcessDeliveryCommand struct {
	processor DeliveryProcessor
}

func NewProcessDeliveryCommand(processor DeliveryProcessor) *ProcessDeliveryCommand {
	return &ProcessDeliveryCommand{processor: processor}
}

func (c *ProcessDeliveryCommand) Execute(ctx context.Context, msg ProcessDeliveryMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: delivery processor is required")
	}
	out, err := c.processor.Process(ctx, msg.Request)
	if err != nil {
		// Result still carries the status code for the transport layer.
		storeResult(ctx, out)
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeDeliveriesCommand struct {
	purger DeliveryPurger
}

func NewPurgeDeliveriesCommand(purger DeliveryPurger) *PurgeDeliveriesCommand {
	return &PurgeDeliveriesCommand{purger: purger}
}

func (c *PurgeDeliveriesCommand) Execute(ctx context.Context, msg PurgeDeliveriesMessage) error {
	if c == nil || c.purger == nil {
		return commandDependencyError("command: delivery purger is required")
	}
	purged, err := c.purger.PurgeProcessed(ctx, msg.OlderThan)
	if err != nil {
		return err
	}
	storeResult(ctx, purged)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
