package query

import (
	"context"

	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/webhooks"
)

type ProfileReader interface {
	GetByKey(ctx context.Context, key string) (core.Profile, error)
}

type DeliveryReader interface {
	Get(ctx context.Context, providerID string, deliveryID string) (webhooks.DeliveryRecord, error)
}

type GetProfileQuery struct {
	reader ProfileReader
}

func NewGetProfileQuery(reader ProfileReader) *GetProfileQuery {
	return &GetProfileQuery{reader: reader}
}

func (q *GetProfileQuery) Query(ctx context.Context, msg GetProfileMessage) (core.Profile, error) {
	if q == nil || q.reader == nil {
		return core.Profile{}, queryDependencyError("query: profile reader is required")
	}
	return q.reader.GetByKey(ctx, msg.Key)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (webhooks.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return webhooks.DeliveryRecord{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.Get(ctx, msg.ProviderID, msg.DeliveryID)
}
