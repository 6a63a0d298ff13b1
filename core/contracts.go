package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// InboundRequest is an immutable snapshot of a webhook delivery. Body holds
// the exact raw bytes the sender signed; re-serialized JSON must never be
// used for verification.
type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	ReceivedAt time.Time
	Metadata   map[string]any
}

// Header performs a case-insensitive lookup and trims the value.
func (r InboundRequest) Header(key string) string {
	for existing, value := range r.Headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type CreateUserInput struct {
	Email     string
	FirstName string
	FullName  string
	// Confirmed marks the account as email-verified at creation so no
	// separate verification step fires.
	Confirmed bool
}

type CreatedUser struct {
	ID    string
	Email string
}

type MagicLinkInput struct {
	Email      string
	RedirectTo string
	CreateUser bool
}

// IdentityProvisioner is the identity collaborator. Exactly one of the two
// operations fires per delivery, selected by the configured policy.
type IdentityProvisioner interface {
	CreateUser(ctx context.Context, in CreateUserInput) (CreatedUser, error)
	SendMagicLink(ctx context.Context, in MagicLinkInput) error
}

type UpsertProfileInput struct {
	Key           string
	UserID        string
	Email         string
	FirstName     string
	FullName      string
	SourceOrderID int64
}

// ProfileStore is the persistence collaborator. Upsert must be idempotent on
// Key: redelivery of the same event converges on a single row.
type ProfileStore interface {
	Upsert(ctx context.Context, in UpsertProfileInput) (Profile, error)
	GetByKey(ctx context.Context, key string) (Profile, error)
}

// OrderNormalizer parses verified raw payload bytes into the canonical order
// record. Parse failures and missing-email outcomes are reported as error
// envelopes so the pipeline can classify them without inspecting payloads.
type OrderNormalizer interface {
	Normalize(body []byte) (NormalizedOrder, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
