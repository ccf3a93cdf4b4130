package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// Schema is the SQL DDL for the chat_histories table. Execute it via
// [PostgresBackend.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_histories (
    channel_id TEXT PRIMARY KEY,
    turns      JSONB NOT NULL DEFAULT '[]',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresBackend]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Backend = (*PostgresBackend)(nil)

// PostgresBackend is a [Backend] backed by a PostgreSQL database. Each
// channel's turn log is stored as one JSONB array in the same wire format
// the file backend uses.
type PostgresBackend struct {
	db DB
}

// NewPostgresBackend creates a PostgresBackend using the given connection
// or pool. Call [PostgresBackend.Migrate] before issuing queries.
func NewPostgresBackend(db DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Migrate executes the [Schema] DDL, creating the chat_histories table if
// it does not already exist.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Load implements [Backend]. Rows whose turn arrays fail to parse
// contribute nothing; rows left with zero valid turns are omitted.
func (b *PostgresBackend) Load(ctx context.Context) (map[string][]*model.Turn, error) {
	rows, err := b.db.Query(ctx, `SELECT channel_id, turns FROM chat_histories`)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*model.Turn)
	for rows.Next() {
		var channelID string
		var turnsJSON []byte
		if err := rows.Scan(&channelID, &turnsJSON); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		var raws []json.RawMessage
		if err := json.Unmarshal(turnsJSON, &raws); err != nil {
			slog.Warn("skipping unparseable history row", "channel", channelID, "err", err)
			continue
		}
		turns := decodeConversation(raws)
		if len(turns) == 0 {
			continue
		}
		out[channelID] = turns
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// Persist implements [Backend]. Channels present in the snapshot are
// upserted; channels no longer present are deleted so storage converges to
// exactly the snapshot state.
func (b *PostgresBackend) Persist(ctx context.Context, snapshot map[string][]*model.Turn) error {
	encoded := encodeSnapshot(snapshot)

	keep := make([]string, 0, len(encoded))
	for channelID, turns := range encoded {
		turnsJSON, err := json.Marshal(turns)
		if err != nil {
			return fmt.Errorf("history: encode channel %s: %w", channelID, err)
		}
		const query = `
			INSERT INTO chat_histories (channel_id, turns, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (channel_id) DO UPDATE
			SET turns = EXCLUDED.turns, updated_at = now()`
		if _, err := b.db.Exec(ctx, query, channelID, turnsJSON); err != nil {
			return fmt.Errorf("history: upsert channel %s: %w", channelID, err)
		}
		keep = append(keep, channelID)
	}

	if len(keep) == 0 {
		if _, err := b.db.Exec(ctx, `DELETE FROM chat_histories`); err != nil {
			return fmt.Errorf("history: clear: %w", err)
		}
		return nil
	}
	if _, err := b.db.Exec(ctx, `DELETE FROM chat_histories WHERE NOT (channel_id = ANY($1))`, keep); err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return nil
}
