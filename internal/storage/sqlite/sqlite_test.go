package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/pkg/metrics"
)

func sampleTable(days int) *domain.HistoryTable {
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	table := &domain.HistoryTable{
		Category: domain.CategoryShare,
		Code:     "GAZP",
		From:     from,
		Till:     from.AddDate(0, 0, 30),
	}

	for i := 0; i < days; i++ {
		table.Records = append(table.Records, domain.HistoryRecord{
			Number:    i,
			TradeDate: from.AddDate(0, 0, i),
			Open:      decimal.NewNullDecimal(decimal.RequireFromString("160.12")),
			Close:     decimal.NewNullDecimal(decimal.NewFromInt(int64(160 + i))),
			Value:     decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		})
	}
	return table
}

func TestStoreSaveHistory(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	n, err := store.SaveHistory(ctx, sampleTable(10))
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	// re-exporting the same range replaces it
	n, err = store.SaveHistory(ctx, sampleTable(4))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	count, err := store.CountRecords(ctx, domain.CategoryShare, "GAZP")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	var open string
	var low *string
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT open, low FROM history_records WHERE secid = 'GAZP' AND row_number = 0`).Scan(&open, &low))
	assert.Equal(t, "160.12", open)
	assert.Nil(t, low)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestStoreSaveHistoryObservesDuration(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	before := upsertSamples(t)
	_, err = store.SaveHistory(ctx, sampleTable(3))
	require.NoError(t, err)
	assert.Equal(t, before+1, upsertSamples(t))
}

func upsertSamples(t *testing.T) uint64 {
	t.Helper()

	var m dto.Metric
	observer := metrics.DatabaseQueryDuration.WithLabelValues("sqlite_upsert")
	require.NoError(t, observer.(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}
