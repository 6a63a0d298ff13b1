package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provision/webhooks"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeliveryStore is the SQL delivery ledger. The (provider_id, delivery_id)
// unique index makes the insert the claim: losers of the race read the
// winner's row and decide from its status and lease.
type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
	Now  func() time.Time
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *DeliveryStore) Claim(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := s.now()
	leaseExpiry := now.Add(lease)

	record := &deliveryRecord{
		ID:             uuid.NewString(),
		ProviderID:     providerID,
		DeliveryID:     deliveryID,
		ClaimID:        uuid.NewString(),
		Status:         webhooks.DeliveryStatusProcessing,
		Attempts:       1,
		Payload:        append([]byte(nil), payload...),
		LeaseExpiresAt: &leaseExpiry,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return webhooks.DeliveryRecord{}, false, err
		}
		return s.claimExisting(ctx, providerID, deliveryID, now, leaseExpiry)
	}
	return deliveryToDomain(record), true, nil
}

// claimExisting handles a delivery already on the ledger: settled rows are
// never reclaimed, in-lease rows stay with their owner, everything else is
// reclaimed with a conditional update so only one caller wins.
func (s *DeliveryStore) claimExisting(
	ctx context.Context,
	providerID string,
	deliveryID string,
	now time.Time,
	leaseExpiry time.Time,
) (webhooks.DeliveryRecord, bool, error) {
	existing := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(existing).
		Where("?TableAlias.provider_id = ?", providerID).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}

	switch existing.Status {
	case webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusDead:
		return deliveryToDomain(existing), false, nil
	case webhooks.DeliveryStatusProcessing:
		if existing.LeaseExpiresAt != nil && now.Before(*existing.LeaseExpiresAt) {
			return deliveryToDomain(existing), false, nil
		}
	}

	claimID := uuid.NewString()
	res, err := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", webhooks.DeliveryStatusProcessing).
		Set("attempts = attempts + 1").
		Set("lease_expires_at = ?", leaseExpiry).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Where("claim_id = ?", existing.ClaimID).
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	if affected == 0 {
		// Another worker reclaimed first.
		return deliveryToDomain(existing), false, nil
	}

	existing.ClaimID = claimID
	existing.Status = webhooks.DeliveryStatusProcessing
	existing.Attempts++
	existing.LeaseExpiresAt = &leaseExpiry
	existing.UpdatedAt = now
	return deliveryToDomain(existing), true, nil
}

func (s *DeliveryStore) Get(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return webhooks.DeliveryRecord{}, fmt.Errorf(
				"sqlstore: delivery not found for provider %q delivery %q",
				providerID,
				deliveryID,
			)
		}
		return webhooks.DeliveryRecord{}, err
	}
	return deliveryToDomain(record), nil
}

func (s *DeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", claimID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	return err
}

func (s *DeliveryStore) Fail(ctx context.Context, claimID string, cause error, maxAttempts int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}

	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.claim_id = ?", claimID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	status := webhooks.DeliveryStatusRetryReady
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		status = webhooks.DeliveryStatusDead
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err = s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", status).
		Set("last_error = ?", lastError).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", claimID).
		Exec(ctx)
	return err
}

// PurgeProcessed deletes settled deliveries older than the cutoff and returns
// the number of rows removed.
func (s *DeliveryStore) PurgeProcessed(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("status IN (?)", bun.In([]string{
			webhooks.DeliveryStatusProcessed,
			webhooks.DeliveryStatusDead,
		})).
		Where("updated_at < ?", olderThan.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DeliveryStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func deliveryToDomain(record *deliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	return webhooks.DeliveryRecord{
		ID:         record.ID,
		ClaimID:    record.ClaimID,
		ProviderID: record.ProviderID,
		DeliveryID: record.DeliveryID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		LastError:  record.LastError,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

var _ webhooks.DeliveryLedger = (*DeliveryStore)(nil)
