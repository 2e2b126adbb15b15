package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"codeact/internal/config"
)

const iterationsTable = "codeact_iterations"

// clickhouseWriter async-inserts iteration events, following the teacher's
// pattern of parsing the DSN once at startup and pinging before use.
type clickhouseWriter struct {
	conn    clickhouse.Conn
	timeout time.Duration
}

func newClickhouseWriter(ctx context.Context, cfg config.ObsConfig) (*clickhouseWriter, error) {
	dsn := strings.TrimSpace(cfg.ClickHouseDSN)
	if dsn == "" {
		return nil, nil
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	timeout := 5 * time.Second
	ctxPing, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(ctxPing); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	if err := ensureIterationsTable(ctxPing, conn); err != nil {
		return nil, fmt.Errorf("ensure iterations table: %w", err)
	}

	return &clickhouseWriter{conn: conn, timeout: timeout}, nil
}

func ensureIterationsTable(ctx context.Context, conn clickhouse.Conn) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	Timestamp DateTime64(3),
	ConversationID String,
	TaskKey String,
	Iteration UInt32,
	PromptMode LowCardinality(String),
	ActionType LowCardinality(String),
	Status LowCardinality(String),
	RetryCount UInt32,
	TotalRetries UInt32,
	DurationMs Float64
) ENGINE = MergeTree
ORDER BY (ConversationID, Timestamp)
TTL toDateTime(Timestamp) + INTERVAL 30 DAY
`, iterationsTable)
	return conn.Exec(ctx, sql)
}

// write is fire-and-forget: ClickHouse being slow or unreachable must never
// stall the control loop, so failures are logged and swallowed.
func (w *clickhouseWriter) write(ctx context.Context, event IterationEvent) {
	execCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s
		(Timestamp, ConversationID, TaskKey, Iteration, PromptMode, ActionType, Status, RetryCount, TotalRetries, DurationMs)
		VALUES (now64(3), ?, ?, ?, ?, ?, ?, ?, ?, ?)`, iterationsTable)
	err := w.conn.AsyncInsert(execCtx, query, false,
		event.ConversationID, event.TaskKey, event.Iteration, event.PromptMode, event.ActionType,
		event.Status, event.RetryCount, event.TotalRetries, float64(event.Duration.Microseconds())/1000.0)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry: clickhouse async insert failed")
	}
}

func (w *clickhouseWriter) close() error {
	return w.conn.Close()
}
