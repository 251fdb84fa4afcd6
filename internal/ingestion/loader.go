package ingestion

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/pkg/metrics"
)

var historyColumns = []string{
	"category",
	"secid",
	"row_number",
	"trade_date",
	"open",
	"low",
	"high",
	"close",
	"value",
}

// BulkLoader copies normalized tables into history_records. A load
// replaces whatever was stored for the same instrument and date range.
type BulkLoader struct {
	pool *pgxpool.Pool
}

func NewBulkLoader(pool *pgxpool.Pool) *BulkLoader {
	return &BulkLoader{
		pool: pool,
	}
}

func (l *BulkLoader) Name() string {
	return "postgres"
}

func (l *BulkLoader) SaveHistory(ctx context.Context, table *domain.HistoryTable) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("copy_history"))

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM history_records
		WHERE category = $1 AND secid = $2 AND trade_date BETWEEN $3 AND $4`,
		string(table.Category), table.Code, table.From, table.Till)
	if err != nil {
		return 0, fmt.Errorf("erro ao limpar intervalo: %w", err)
	}

	if table.Len() == 0 {
		return 0, tx.Commit(ctx)
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"history_records"},
		historyColumns,
		newHistorySource(table),
	)
	if err != nil {
		return 0, fmt.Errorf("erro no COPY: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("erro no commit: %w", err)
	}

	return copyCount, nil
}

type historySource struct {
	table *domain.HistoryTable
	index int
}

func newHistorySource(table *domain.HistoryTable) *historySource {
	return &historySource{table: table}
}

func (hs *historySource) Next() bool {
	hs.index++
	return hs.index <= len(hs.table.Records)
}

func (hs *historySource) Values() ([]interface{}, error) {
	if hs.index > len(hs.table.Records) {
		return nil, nil
	}

	r := hs.table.Records[hs.index-1]
	return []interface{}{
		string(hs.table.Category),
		hs.table.Code,
		r.Number,
		r.TradeDate,
		numeric(r.Open),
		numeric(r.Low),
		numeric(r.High),
		numeric(r.Close),
		numeric(r.Value),
	}, nil
}

// numeric keeps the exact decimal for the binary COPY protocol.
func numeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{
		Int:   d.Decimal.Coefficient(),
		Exp:   d.Decimal.Exponent(),
		Valid: true,
	}
}

func (hs *historySource) Err() error {
	return nil
}
