package chart

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

func testTable(category domain.Category, days int) *domain.HistoryTable {
	from := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	table := &domain.HistoryTable{
		Category:  category,
		Code:      "SU26238RMFS4",
		ShortName: "ОФЗ 26238",
		From:      from,
		Till:      from.AddDate(0, 0, days),
	}
	for i := 0; i < days; i++ {
		rec := domain.HistoryRecord{
			Number:    i,
			TradeDate: from.AddDate(0, 0, i),
			Close:     decimal.NewNullDecimal(decimal.NewFromFloat(70.5 + float64(i))),
			Value:     decimal.NewNullDecimal(decimal.NewFromInt(int64(i+1) * 2_500_000)),
		}
		if i == 1 {
			rec.Close = decimal.NullDecimal{}
			rec.Value = decimal.NullDecimal{}
		}
		table.Records = append(table.Records, rec)
	}
	return table
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Price ")
	require.NoError(t, err)
	assert.Equal(t, KindPrice, k)

	k, err = ParseKind("volume")
	require.NoError(t, err)
	assert.Equal(t, KindVolume, k)

	_, err = ParseKind("candles")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestPriceSeries(t *testing.T) {
	s := PriceSeries(testTable(domain.CategoryGovernmentBond, 5))

	assert.Equal(t, "ОФЗ 26238", s.Title)
	assert.Equal(t, "Data", s.XLabel)
	assert.Equal(t, "Preço, % do valor nominal", s.YLabel)
	require.Len(t, s.Points, 4, "null close is skipped")
	assert.Equal(t, 70.5, s.Points[0].Value)
	assert.Equal(t, 72.5, s.Points[1].Value)

	shares := PriceSeries(testTable(domain.CategoryShare, 2))
	assert.Equal(t, "Preço, RUB", shares.YLabel)
}

func TestVolumeSeries(t *testing.T) {
	s := VolumeSeries(testTable(domain.CategoryShare, 3))

	assert.Equal(t, "Volume, milhões RUB", s.YLabel)
	require.Len(t, s.Points, 3)
	assert.Equal(t, 2.5, s.Points[0].Value)
	assert.Equal(t, 0.0, s.Points[1].Value)
	assert.Equal(t, 7.5, s.Points[2].Value)
}

func TestRender(t *testing.T) {
	table := testTable(domain.CategoryShare, 30)

	t.Run("price png", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, KindPrice, table, FormatPNG))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
	})

	t.Run("volume svg", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, KindVolume, table, FormatSVG))
		assert.Contains(t, buf.String(), "<svg")
	})

	t.Run("empty table", func(t *testing.T) {
		var buf bytes.Buffer
		err := Render(&buf, KindPrice, &domain.HistoryTable{Code: "SBER"}, "")
		assert.ErrorIs(t, err, domain.ErrNoData)
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		err := Render(&buf, KindPrice, table, "gif")
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})
}

func TestDateTicks(t *testing.T) {
	dates := make(dateTicks, 40)
	for i := range dates {
		dates[i] = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}

	ticks := dates.Ticks(0, 39)
	assert.LessOrEqual(t, len(ticks), 9)
	assert.Equal(t, "2024-01-01", ticks[0].Label)
	assert.Empty(t, dateTicks(nil).Ticks(0, 1))
}
