package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/unclebandit/crm-mailer/internal/model"
)

// EventDeduper records which (provider message id, event kind) pairs were already counted.
type EventDeduper interface {
	// Claim returns true the first time a pair is seen.
	Claim(ctx context.Context, providerMessageID string, kind model.EventKind) (bool, error)
	// Release forgets a claim so a failed apply can be retried.
	Release(ctx context.Context, providerMessageID string, kind model.EventKind) error
}

// NoopEventDeduper claims every event, so duplicates are counted again.
type NoopEventDeduper struct{}

func (NoopEventDeduper) Claim(context.Context, string, model.EventKind) (bool, error) { return true, nil }
func (NoopEventDeduper) Release(context.Context, string, model.EventKind) error       { return nil }

// PostgresEventDeduper relies on the primary key of email_event_receipts.
type PostgresEventDeduper struct {
	DB *sql.DB
}

func (d *PostgresEventDeduper) Claim(ctx context.Context, providerMessageID string, kind model.EventKind) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
        INSERT INTO email_event_receipts (provider_message_id, kind, received_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (provider_message_id, kind) DO NOTHING
    `, providerMessageID, kind)
	if err != nil {
		return false, fmt.Errorf("claim event receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *PostgresEventDeduper) Release(ctx context.Context, providerMessageID string, kind model.EventKind) error {
	_, err := d.DB.ExecContext(ctx,
		`DELETE FROM email_event_receipts WHERE provider_message_id=$1 AND kind=$2`, providerMessageID, kind)
	return err
}

// RedisEventDeduper uses SET NX with a TTL; claims expire after TTL.
type RedisEventDeduper struct {
	Client *redis.Client
	TTL    time.Duration
}

func (d *RedisEventDeduper) key(providerMessageID string, kind model.EventKind) string {
	return fmt.Sprintf("email_event:%s:%s", providerMessageID, kind)
}

func (d *RedisEventDeduper) Claim(ctx context.Context, providerMessageID string, kind model.EventKind) (bool, error) {
	ok, err := d.Client.SetNX(ctx, d.key(providerMessageID, kind), 1, d.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim event receipt: %w", err)
	}
	return ok, nil
}

func (d *RedisEventDeduper) Release(ctx context.Context, providerMessageID string, kind model.EventKind) error {
	return d.Client.Del(ctx, d.key(providerMessageID, kind)).Err()
}

var (
	_ EventDeduper = NoopEventDeduper{}
	_ EventDeduper = (*PostgresEventDeduper)(nil)
	_ EventDeduper = (*RedisEventDeduper)(nil)
)
