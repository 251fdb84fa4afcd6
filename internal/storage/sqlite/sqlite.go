package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS history_records (
	category   TEXT    NOT NULL,
	secid      TEXT    NOT NULL,
	row_number INTEGER NOT NULL,
	trade_date TEXT    NOT NULL,
	open       TEXT,
	low        TEXT,
	high       TEXT,
	close      TEXT,
	value      TEXT,
	PRIMARY KEY (category, secid, trade_date)
);
`

// Store is a local file export of normalized tables. Numbers are kept as
// decimal text so nothing is lost to float conversion.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir banco sqlite: %w", err)
	}

	// one writer at a time keeps sqlite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao configurar sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao criar schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Name() string {
	return "sqlite"
}

func (s *Store) SaveHistory(ctx context.Context, table *domain.HistoryTable) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("sqlite_upsert"))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM history_records WHERE category = ? AND secid = ? AND trade_date BETWEEN ? AND ?`,
		string(table.Category), table.Code,
		table.From.Format(domain.DateLayout), table.Till.Format(domain.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("erro ao limpar intervalo: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO history_records
			(category, secid, row_number, trade_date, open, low, high, close, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("erro ao preparar insert: %w", err)
	}
	defer stmt.Close()

	var count int64
	for _, r := range table.Records {
		_, err := stmt.ExecContext(ctx,
			string(table.Category),
			table.Code,
			r.Number,
			r.TradeDate.Format(domain.DateLayout),
			r.Open, r.Low, r.High, r.Close, r.Value,
		)
		if err != nil {
			return count, fmt.Errorf("erro ao inserir linha %d: %w", r.Number, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("erro no commit: %w", err)
	}

	return count, nil
}

// CountRecords returns how many rows are stored for an instrument.
func (s *Store) CountRecords(ctx context.Context, category domain.Category, code string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_records WHERE category = ? AND secid = ?`,
		string(category), code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("erro ao contar registros: %w", err)
	}
	return n, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
