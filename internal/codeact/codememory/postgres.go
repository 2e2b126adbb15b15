package codememory

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"codeact/internal/codeact"
)

// PostgresStore is the optional StoreConfig.Backend="postgres" persister:
// the same JSON array FileStore writes, stored in a table keyed by
// (conversation_prefix, task_key) instead of the filesystem. Used when
// the memory directory must be shared across stateless workers.
type PostgresStore struct {
	pool       *pgxpool.Pool
	convPrefix string
	taskKey    string
}

// NewPostgresStore opens a pool against dsn and ensures the backing table
// exists.
func NewPostgresStore(ctx context.Context, dsn, convPrefix, taskKey string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS codeact_task_messages (
		conv_prefix TEXT NOT NULL,
		task_key    TEXT NOT NULL,
		messages    JSONB NOT NULL,
		PRIMARY KEY (conv_prefix, task_key)
	)`)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, convPrefix: convPrefix, taskKey: taskKey}, nil
}

func (p *PostgresStore) Close() { p.pool.Close() }

func (p *PostgresStore) Load() ([]codeact.Message, error) {
	ctx := context.Background()
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT messages FROM codeact_task_messages WHERE conv_prefix=$1 AND task_key=$2`,
		p.convPrefix, p.taskKey,
	).Scan(&raw)
	if err != nil {
		return nil, nil // not found: fresh task
	}
	var msgs []codeact.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (p *PostgresStore) Save(messages []codeact.Message) error {
	b, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO codeact_task_messages (conv_prefix, task_key, messages)
		VALUES ($1, $2, $3)
		ON CONFLICT (conv_prefix, task_key) DO UPDATE SET messages = EXCLUDED.messages
	`, p.convPrefix, p.taskKey, b)
	return err
}
