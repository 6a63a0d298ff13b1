package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

type DeliveryRecord struct {
	ID         string
	ClaimID    string
	ProviderID string
	DeliveryID string
	Status     string
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeliveryLedger provides at-least-once dedupe for webhook deliveries. Claim
// either reserves the delivery for processing (claimed=true) or reports it as
// already settled or in flight.
type DeliveryLedger interface {
	Claim(
		ctx context.Context,
		providerID string,
		deliveryID string,
		payload []byte,
		lease time.Duration,
	) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, maxAttempts int) error
}

type ledgerEntry struct {
	record         DeliveryRecord
	leaseExpiresAt time.Time
}

// InMemoryDeliveryLedger backs tests and single-node deployments; the SQL
// implementation lives in store/sql.
type InMemoryDeliveryLedger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	claims  map[string]string
	nextID  int
	Now     func() time.Time
}

func NewInMemoryDeliveryLedger() *InMemoryDeliveryLedger {
	return &InMemoryDeliveryLedger{
		entries: map[string]*ledgerEntry{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *InMemoryDeliveryLedger) Claim(
	_ context.Context,
	providerID string,
	deliveryID string,
	_ []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: delivery ledger is nil")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := l.now()
	key := providerID + ":" + deliveryID

	l.mu.Lock()
	defer l.mu.Unlock()
	entry, exists := l.entries[key]
	if !exists {
		claimID := l.nextClaimID()
		entry = &ledgerEntry{
			record: DeliveryRecord{
				ID:         claimID,
				ClaimID:    claimID,
				ProviderID: providerID,
				DeliveryID: deliveryID,
				Status:     DeliveryStatusProcessing,
				Attempts:   1,
				CreatedAt:  now,
				UpdatedAt:  now,
			},
			leaseExpiresAt: now.Add(lease),
		}
		l.entries[key] = entry
		l.claims[claimID] = key
		return entry.record, true, nil
	}

	switch entry.record.Status {
	case DeliveryStatusProcessed, DeliveryStatusDead:
		return entry.record, false, nil
	case DeliveryStatusProcessing:
		if now.Before(entry.leaseExpiresAt) {
			return entry.record, false, nil
		}
	}

	if entry.record.ClaimID != "" {
		delete(l.claims, entry.record.ClaimID)
	}
	claimID := l.nextClaimID()
	entry.record.ClaimID = claimID
	entry.record.Status = DeliveryStatusProcessing
	entry.record.Attempts++
	entry.record.UpdatedAt = now
	entry.leaseExpiresAt = now.Add(lease)
	l.claims[claimID] = key
	return entry.record, true, nil
}

func (l *InMemoryDeliveryLedger) Get(
	_ context.Context,
	providerID string,
	deliveryID string,
) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, exists := l.entries[strings.TrimSpace(providerID)+":"+strings.TrimSpace(deliveryID)]
	if !exists {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery not found")
	}
	return entry.record, nil
}

func (l *InMemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return fmt.Errorf("webhooks: delivery ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entryForClaimLocked(claimID)
	if entry == nil {
		return nil
	}
	entry.record.Status = DeliveryStatusProcessed
	entry.record.UpdatedAt = l.now()
	delete(l.claims, strings.TrimSpace(claimID))
	return nil
}

func (l *InMemoryDeliveryLedger) Fail(_ context.Context, claimID string, cause error, maxAttempts int) error {
	if l == nil {
		return fmt.Errorf("webhooks: delivery ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entryForClaimLocked(claimID)
	if entry == nil {
		return nil
	}
	entry.record.Status = DeliveryStatusRetryReady
	if maxAttempts > 0 && entry.record.Attempts >= maxAttempts {
		entry.record.Status = DeliveryStatusDead
	}
	if cause != nil {
		entry.record.LastError = cause.Error()
	}
	entry.record.UpdatedAt = l.now()
	entry.leaseExpiresAt = time.Time{}
	delete(l.claims, strings.TrimSpace(claimID))
	return nil
}

func (l *InMemoryDeliveryLedger) entryForClaimLocked(claimID string) *ledgerEntry {
	key, ok := l.claims[strings.TrimSpace(claimID)]
	if !ok {
		return nil
	}
	entry, exists := l.entries[key]
	if !exists || entry.record.ClaimID != strings.TrimSpace(claimID) {
		delete(l.claims, strings.TrimSpace(claimID))
		return nil
	}
	return entry
}

func (l *InMemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *InMemoryDeliveryLedger) nextClaimID() string {
	l.nextID++
	return fmt.Sprintf("claim_%d", l.nextID)
}
