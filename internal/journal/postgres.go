package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent appends across processes sharing a
// database.
const advisoryLockKey = int64(1_262_019_447)

const selectColumns = `idx, timestamp, operation_id, tx_hash, method, account, status, data_hash, prev_hash, hash`

// PostgresJournal persists the journal to PostgreSQL. The settlement_journal
// table and its genesis row are created by migrations/001_settlement_journal.up.sql.
type PostgresJournal struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresJournal backed by pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresJournal {
	return &PostgresJournal{pool: pool, logger: logger}
}

// Append implements Journal. The tail read and insert run in one transaction
// under an advisory lock.
func (j *PostgresJournal) Append(ctx context.Context, rec Record) (*Entry, error) {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM settlement_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read journal tail: %w", err)
	}

	entry := &Entry{
		Index:       prevIdx + 1,
		Timestamp:   time.Now().UTC(),
		OperationID: rec.OperationID,
		TxHash:      rec.TxHash,
		Method:      rec.Method,
		Account:     rec.Account,
		Status:      rec.Status,
		DataHash:    sha256Sum(payloadJSON),
		PrevHash:    prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.Exec(ctx,
		`INSERT INTO settlement_journal (`+selectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Index, entry.Timestamp, entry.OperationID, entry.TxHash,
		entry.Method, entry.Account, entry.Status,
		entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit journal tx: %w", err)
	}

	j.logger.Debug("journal entry appended",
		zap.Int("idx", entry.Index),
		zap.String("method", entry.Method),
		zap.String("tx", entry.TxHash),
	)
	return entry, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(
		&e.Index, &e.Timestamp, &e.OperationID, &e.TxHash,
		&e.Method, &e.Account, &e.Status,
		&e.DataHash, &e.PrevHash, &e.Hash,
	)
	return e, err
}

// Get implements Journal.
func (j *PostgresJournal) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(j.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM settlement_journal WHERE idx = $1`, index))
	if err != nil {
		return nil, fmt.Errorf("get journal entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Journal.
func (j *PostgresJournal) Len(ctx context.Context) (int, error) {
	var n int
	if err := j.pool.QueryRow(ctx, "SELECT COUNT(*) FROM settlement_journal").Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

// Verify implements Journal. It streams rows in index order.
func (j *PostgresJournal) Verify(ctx context.Context) error {
	rows, err := j.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM settlement_journal ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan journal row: %w", err)
		}
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Journal.
func (j *PostgresJournal) Root(ctx context.Context) (string, error) {
	var hash string
	if err := j.pool.QueryRow(ctx,
		"SELECT hash FROM settlement_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get journal root: %w", err)
	}
	return hash, nil
}
