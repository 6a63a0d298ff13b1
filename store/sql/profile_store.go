package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileStore persists customer profiles keyed by profile_key. Upsert is
// transactional find-then-write; a concurrent insert losing the race falls
// back to an update so redeliveries converge on one row.
type ProfileStore struct {
	db   *bun.DB
	repo repository.Repository[*profileRecord]
}

func NewProfileStore(db *bun.DB) (*ProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*profileRecord](db, profileHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid profile repository wiring: %w", err)
		}
	}
	return &ProfileStore{db: db, repo: repo}, nil
}

func (s *ProfileStore) Upsert(ctx context.Context, in core.UpsertProfileInput) (core.Profile, error) {
	if s == nil || s.db == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: profile store is not configured")
	}
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return core.Profile{}, fmt.Errorf("sqlstore: profile key is required")
	}

	var result core.Profile
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &profileRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.profile_key = ?", key).
			Limit(1).
			Scan(ctx)
		now := time.Now().UTC()

		if err == nil {
			applyProfileInput(existing, in, now)
			if _, err := tx.NewUpdate().
				Model(existing).
				WherePK().
				Exec(ctx); err != nil {
				return err
			}
			result = profileToDomain(existing)
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		record := &profileRecord{
			ID:         uuid.NewString(),
			ProfileKey: key,
			CreatedAt:  now,
		}
		applyProfileInput(record, in, now)
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			if !isUniqueViolation(err) {
				return err
			}
			// Lost an insert race; the row exists now, update it instead.
			winner := &profileRecord{}
			if err := tx.NewSelect().
				Model(winner).
				Where("?TableAlias.profile_key = ?", key).
				Limit(1).
				Scan(ctx); err != nil {
				return err
			}
			applyProfileInput(winner, in, now)
			if _, err := tx.NewUpdate().
				Model(winner).
				WherePK().
				Exec(ctx); err != nil {
				return err
			}
			result = profileToDomain(winner)
			return nil
		}
		result = profileToDomain(record)
		return nil
	})
	if err != nil {
		return core.Profile{}, err
	}
	return result, nil
}

func (s *ProfileStore) GetByKey(ctx context.Context, key string) (core.Profile, error) {
	if s == nil || s.db == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: profile store is not configured")
	}
	record := &profileRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.profile_key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Profile{}, fmt.Errorf("sqlstore: profile not found for key %q", key)
		}
		return core.Profile{}, err
	}
	return profileToDomain(record), nil
}

func applyProfileInput(record *profileRecord, in core.UpsertProfileInput, now time.Time) {
	if userID := strings.TrimSpace(in.UserID); userID != "" {
		record.UserID = userID
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		record.Email = email
	}
	if first := strings.TrimSpace(in.FirstName); first != "" {
		record.FirstName = first
	}
	if full := strings.TrimSpace(in.FullName); full != "" {
		record.FullName = full
	}
	if in.SourceOrderID != 0 {
		record.SourceOrderID = in.SourceOrderID
	}
	record.UpdatedAt = now
}

func profileToDomain(record *profileRecord) core.Profile {
	if record == nil {
		return core.Profile{}
	}
	return core.Profile{
		ID:            record.ID,
		Key:           record.ProfileKey,
		UserID:        record.UserID,
		Email:         record.Email,
		FirstName:     record.FirstName,
		FullName:      record.FullName,
		SourceOrderID: record.SourceOrderID,
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.ProfileStore = (*ProfileStore)(nil)
