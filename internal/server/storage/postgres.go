package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/dbx"
)

// PostgresStore keeps metadata in PostgreSQL and snapshot payloads in a
// BlobStore. Rows and blobs are written metadata-last so a crash between
// the two leaves at worst an orphan blob, never a dangling row.
type PostgresStore struct {
	db    dbx.DBTX
	blobs BlobStore
	now   func() time.Time
}

func NewPostgresStore(db dbx.DBTX, blobs BlobStore) *PostgresStore {
	return &PostgresStore{db: db, blobs: blobs, now: time.Now}
}

func snapshotStorageKey(id string) string {
	return "snapshots/" + id
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, string, error) {
	query := `
		SELECT id, token_hash, storage_key, is_encrypted, salt, synced_at
		FROM snapshots WHERE id = $1
	`
	var snap Snapshot
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&snap.ID, &snap.TokenHash, &snap.StorageKey, &snap.IsEncrypted, &snap.Salt, &snap.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", common.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("db error: %w", err)
	}

	payload, err := s.blobs.GetObject(ctx, snap.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("blob fetch error: %w", err)
	}
	return &snap, string(payload), nil
}

func (s *PostgresStore) PutSnapshot(ctx context.Context, snap Snapshot, payload string) (time.Time, error) {
	snap.StorageKey = snapshotStorageKey(snap.ID)
	snap.SyncedAt = s.now().UTC()

	if err := s.blobs.PutObject(ctx, snap.StorageKey, []byte(payload)); err != nil {
		return time.Time{}, fmt.Errorf("blob put error: %w", err)
	}

	query := `
		INSERT INTO snapshots (id, token_hash, storage_key, is_encrypted, salt, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			storage_key = EXCLUDED.storage_key,
			is_encrypted = EXCLUDED.is_encrypted,
			salt = EXCLUDED.salt,
			synced_at = EXCLUDED.synced_at;
	`
	_, err := s.db.ExecContext(ctx, query,
		snap.ID, snap.TokenHash, snap.StorageKey, snap.IsEncrypted, snap.Salt, snap.SyncedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return snap.SyncedAt, nil
}

func (s *PostgresStore) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}

	if err := s.blobs.DeleteObject(ctx, snapshotStorageKey(id)); err != nil {
		return fmt.Errorf("blob delete error: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, id string) (*Device, error) {
	var d Device
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token_hash, created_at FROM devices WHERE id = $1`, id).
		Scan(&d.ID, &d.TokenHash, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) PutDevice(ctx context.Context, d Device) error {
	query := `
		INSERT INTO devices (id, token_hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET token_hash = EXCLUDED.token_hash;
	`
	if _, err := s.db.ExecContext(ctx, query, d.ID, d.TokenHash, d.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertRule(ctx context.Context, r Rule) error {
	chain, err := json.Marshal(r.PriorityChain)
	if err != nil {
		return fmt.Errorf("chain marshal error: %w", err)
	}
	addons := r.Addons
	if addons == nil {
		addons = json.RawMessage("[]")
	}

	query := `
		INSERT INTO autopilot_rules (id, device_id, account_id, priority_chain, is_active, is_automatic, addons, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			device_id = EXCLUDED.device_id,
			account_id = EXCLUDED.account_id,
			priority_chain = EXCLUDED.priority_chain,
			is_active = EXCLUDED.is_active,
			is_automatic = EXCLUDED.is_automatic,
			addons = EXCLUDED.addons,
			updated_at = EXCLUDED.updated_at;
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.DeviceID, r.AccountID, chain, r.IsActive, r.IsAutomatic, []byte(addons), s.now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) RulesForAccount(ctx context.Context, accountID string) ([]Rule, error) {
	return s.selectRules(ctx,
		`SELECT id, device_id, account_id, priority_chain, is_active, is_automatic, addons, updated_at
		 FROM autopilot_rules WHERE account_id = $1`, accountID)
}

func (s *PostgresStore) ListRules(ctx context.Context) ([]Rule, error) {
	return s.selectRules(ctx,
		`SELECT id, device_id, account_id, priority_chain, is_active, is_automatic, addons, updated_at
		 FROM autopilot_rules`)
}

func (s *PostgresStore) selectRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select rules: %w", err)
	}
	defer rows.Close()

	var result []Rule
	for rows.Next() {
		var r Rule
		var chain, addons []byte
		if err := rows.Scan(
			&r.ID, &r.DeviceID, &r.AccountID, &chain, &r.IsActive, &r.IsAutomatic, &addons, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(chain, &r.PriorityChain); err != nil {
			return nil, fmt.Errorf("chain unmarshal error: %w", err)
		}
		r.Addons = json.RawMessage(addons)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM autopilot_rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAccountRules(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM autopilot_rules WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
