package provision

import (
	"fmt"

	provisioncommand "github.com/goliatone/go-provision/command"
	provisionquery "github.com/goliatone/go-provision/query"
	"github.com/goliatone/go-provision/webhooks"
)

type Commands struct {
	ProcessDelivery *provisioncommand.ProcessDeliveryCommand
	PurgeDeliveries *provisioncommand.PurgeDeliveriesCommand
}

type Queries struct {
	GetProfile  *provisionquery.GetProfileQuery
	GetDelivery *provisionquery.GetDeliveryQuery
}

// Facade bundles the command and query handlers around a configured
// pipeline. Purge and delivery lookups are only wired when the
// corresponding collaborator is provided.
type Facade struct {
	pipeline *webhooks.Pipeline
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	profileReader  provisionquery.ProfileReader
	deliveryReader provisionquery.DeliveryReader
	purger         provisioncommand.DeliveryPurger
}

func WithProfileReader(reader provisionquery.ProfileReader) FacadeOption {
	return func(options *facadeOptions) {
		options.profileReader = reader
	}
}

func WithDeliveryReader(reader provisionquery.DeliveryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryReader = reader
	}
}

func WithDeliveryPurger(purger provisioncommand.DeliveryPurger) FacadeOption {
	return func(options *facadeOptions) {
		options.purger = purger
	}
}

func NewFacade(pipeline *webhooks.Pipeline, opts ...FacadeOption) (*Facade, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("provision: pipeline is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	profileReader := cfg.profileReader
	if profileReader == nil {
		profileReader = pipeline.Profiles
	}
	deliveryReader := cfg.deliveryReader
	if deliveryReader == nil {
		if reader, ok := pipeline.Ledger.(provisionquery.DeliveryReader); ok {
			deliveryReader = reader
		}
	}

	facade := &Facade{pipeline: pipeline}
	facade.commands = Commands{
		ProcessDelivery: provisioncommand.NewProcessDeliveryCommand(pipeline),
	}
	if cfg.purger != nil {
		facade.commands.PurgeDeliveries = provisioncommand.NewPurgeDeliveriesCommand(cfg.purger)
	}
	facade.queries = Queries{
		GetProfile: provisionquery.NewGetProfileQuery(profileReader),
	}
	if deliveryReader != nil {
		facade.queries.GetDelivery = provisionquery.NewGetDeliveryQuery(deliveryReader)
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Pipeline() *webhooks.Pipeline {
	if f == nil {
		return nil
	}
	return f.pipeline
}
