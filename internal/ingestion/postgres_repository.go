package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresRepository is the durable intake store. History rows carry a serial
// position so insertion order survives equal timestamps.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByDedupeKey(ctx context.Context, dedupeKey string) (*IngestedInvoice, error) {
	query := `
		SELECT dedupe_key, invoice_number, supplier, amount, invoice_date, file_hash
		FROM intake_invoices
		WHERE dedupe_key = $1
	`

	row := r.db.QueryRowContext(ctx, query, dedupeKey)

	invoice, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	histories, err := r.loadHistories(ctx, []string{dedupeKey})
	if err != nil {
		return nil, err
	}
	invoice.History = histories[dedupeKey]

	return invoice, nil
}

func (r *PostgresRepository) SaveNew(ctx context.Context, invoice *IngestedInvoice) (*IngestedInvoice, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertInvoice := `
		INSERT INTO intake_invoices (dedupe_key, invoice_number, supplier, amount, invoice_date, file_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = tx.ExecContext(ctx, insertInvoice,
		invoice.DedupeKey,
		invoice.Metadata.InvoiceNumber,
		invoice.Metadata.Supplier,
		invoice.Metadata.Amount,
		invoice.Metadata.InvoiceDate,
		nullString(invoice.FileHash),
		time.Now().UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceExists, invoice.DedupeKey)
		}
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	insertHistory := `
		INSERT INTO intake_history (dedupe_key, source, ingested_at, status)
		VALUES ($1, $2, $3, $4)
	`

	for _, entry := range invoice.History {
		if _, err := tx.ExecContext(ctx, insertHistory,
			invoice.DedupeKey, string(entry.Source), entry.IngestedAt, entry.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to insert history entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}

	return r.FindByDedupeKey(ctx, invoice.DedupeKey)
}

func (r *PostgresRepository) AppendHistory(ctx context.Context, dedupeKey string, source Source, ingestedAt time.Time, status string) (*IngestedInvoice, error) {
	query := `
		INSERT INTO intake_history (dedupe_key, source, ingested_at, status)
		SELECT dedupe_key, $2, $3, $4 FROM intake_invoices WHERE dedupe_key = $1
	`

	result, err := r.db.ExecContext(ctx, query, dedupeKey, string(source), ingestedAt, status)
	if err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, dedupeKey)
	}

	return r.FindByDedupeKey(ctx, dedupeKey)
}

func (r *PostgresRepository) ListBySource(ctx context.Context, source *Source, newestFirst bool) ([]IngestedInvoice, error) {
	direction := "DESC"
	if !newestFirst {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT i.dedupe_key, i.invoice_number, i.supplier, i.amount, i.invoice_date, i.file_hash
		FROM intake_invoices i
		JOIN (
			SELECT dedupe_key, MAX(ingested_at) AS last_seen
			FROM intake_history
			GROUP BY dedupe_key
		) h ON h.dedupe_key = i.dedupe_key
		WHERE $1::text IS NULL OR EXISTS (
			SELECT 1 FROM intake_history s
			WHERE s.dedupe_key = i.dedupe_key AND s.source = $1
		)
		ORDER BY h.last_seen %s, i.dedupe_key ASC
	`, direction)

	var sourceArg sql.NullString
	if source != nil {
		sourceArg = sql.NullString{String: string(*source), Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, query, sourceArg)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []IngestedInvoice
	var keys []string
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *invoice)
		keys = append(keys, invoice.DedupeKey)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	histories, err := r.loadHistories(ctx, keys)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].History = histories[invoices[i].DedupeKey]
	}

	return invoices, nil
}

func (r *PostgresRepository) loadHistories(ctx context.Context, dedupeKeys []string) (map[string][]HistoryEntry, error) {
	histories := make(map[string][]HistoryEntry, len(dedupeKeys))
	if len(dedupeKeys) == 0 {
		return histories, nil
	}

	query := `
		SELECT dedupe_key, source, ingested_at, status
		FROM intake_history
		WHERE dedupe_key = ANY($1)
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(dedupeKeys))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dedupeKey, source string
		var entry HistoryEntry
		if err := rows.Scan(&dedupeKey, &source, &entry.IngestedAt, &entry.Status); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Source = Source(source)
		histories[dedupeKey] = append(histories[dedupeKey], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return histories, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*IngestedInvoice, error) {
	var invoice IngestedInvoice
	var fileHash sql.NullString

	err := row.Scan(
		&invoice.DedupeKey,
		&invoice.Metadata.InvoiceNumber,
		&invoice.Metadata.Supplier,
		&invoice.Metadata.Amount,
		&invoice.Metadata.InvoiceDate,
		&fileHash,
	)
	if err != nil {
		return nil, err
	}

	invoice.FileHash = fileHash.String
	return &invoice, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
