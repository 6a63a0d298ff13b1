package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type profileRecord struct {
	bun.BaseModel `bun:"table:provision_profiles,alias:pp"`

	ID            string    `bun:"id,pk"`
	ProfileKey    string    `bun:"profile_key,notnull,unique"`
	UserID        string    `bun:"user_id"`
	Email         string    `bun:"email,notnull"`
	FirstName     string    `bun:"first_name"`
	FullName      string    `bun:"full_name"`
	SourceOrderID int64     `bun:"source_order_id"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:provision_webhook_deliveries,alias:pwd"`

	ID             string     `bun:"id,pk"`
	ProviderID     string     `bun:"provider_id,notnull"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	ClaimID        string     `bun:"claim_id"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LastError      string     `bun:"last_error"`
	Payload        []byte     `bun:"payload"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
