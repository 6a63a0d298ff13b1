package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/webhooks"
)

var (
	_ gocmd.Querier[GetProfileMessage, core.Profile]             = (*GetProfileQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, webhooks.DeliveryRecord] = (*GetDeliveryQuery)(nil)
)
