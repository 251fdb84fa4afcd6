package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

var issColumns = []string{
	"BOARDID", "TRADEDATE", "SHORTNAME", "SECID", "NUMTRADES", "VALUE",
	"OPEN", "LOW", "HIGH", "LEGALCLOSEPRICE", "WAPRICE", "CLOSE", "VOLUME",
}

// fakeService serves pages of the given sizes keyed by the start offset.
type fakeService struct {
	sizes   []int
	cursor  []any
	fail    map[int]error
	visited []string
}

func (s *fakeService) FetchPage(ctx context.Context, url string) (*domain.RawPage, error) {
	s.visited = append(s.visited, url)

	n := 0
	if i := strings.Index(url, "&start="); i >= 0 {
		var offset int
		fmt.Sscanf(url[i+len("&start="):], "%d", &offset)
		n = offset / domain.PageSize
	}

	if err, ok := s.fail[n]; ok {
		return nil, err
	}

	page := &domain.RawPage{Columns: issColumns}
	if n < len(s.sizes) {
		page.Rows = issRows(n*domain.PageSize, s.sizes[n])
	}
	if n == 0 {
		page.Cursor = s.cursor
	}
	return page, nil
}

func issRows(offset, count int) [][]any {
	start := time.Date(2015, 1, 5, 0, 0, 0, 0, time.UTC)
	rows := make([][]any, count)

	for i := range rows {
		k := offset + i
		price := json.Number(fmt.Sprintf("%d.%02d", 100+k%40, k%100))
		rows[i] = []any{
			"TQBR",
			start.AddDate(0, 0, k).Format(domain.DateLayout),
			"Сбербанк",
			"SBER",
			json.Number("1234"),
			json.Number(fmt.Sprintf("%d", 1000000+k)),
			price, price, price, price, price, price,
			json.Number("10"),
		}
	}
	return rows
}

func newTestFetcher(svc PageFetcher) *Fetcher {
	return NewFetcher(NewRequestBuilder(nil), svc, 0)
}

func TestFetcherConcatenatesPages(t *testing.T) {
	svc := &fakeService{
		sizes:  []int{100, 100, 37},
		cursor: []any{json.Number("0"), json.Number("237"), json.Number("100")},
	}

	table, err := newTestFetcher(svc).Fetch(context.Background(), testCriteria(domain.CategoryShare, "SBER"))
	require.NoError(t, err)

	require.Equal(t, 237, table.Len())
	assert.Equal(t, 3, table.Pages)
	assert.Equal(t, "Сбербанк", table.ShortName)
	assert.Equal(t, "SBER", table.Code)

	for i, r := range table.Records {
		assert.Equal(t, i, r.Number)
	}

	// row order is concatenation order
	assert.Equal(t, "2015-01-05", table.Records[0].TradeDate.Format(domain.DateLayout))
	assert.Equal(t, time.Date(2015, 1, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 236), table.Records[236].TradeDate)
	assert.Equal(t, "1000100", table.Records[100].Value.Decimal.String())

	require.Len(t, svc.visited, 3)
	assert.NotContains(t, svc.visited[0], "start=")
	assert.True(t, strings.HasSuffix(svc.visited[1], "&start=100"))
	assert.True(t, strings.HasSuffix(svc.visited[2], "&start=200"))
}

func TestFetcherStopsOnEmptyPageAfterFullPage(t *testing.T) {
	svc := &fakeService{sizes: []int{100, 0}}

	table, err := newTestFetcher(svc).Fetch(context.Background(), testCriteria(domain.CategoryShare, "SBER"))
	require.NoError(t, err)
	assert.Equal(t, 100, table.Len())
	assert.Len(t, svc.visited, 2)
}

func TestFetcherEmptyFirstPage(t *testing.T) {
	svc := &fakeService{sizes: []int{0}}

	table, err := newTestFetcher(svc).Fetch(context.Background(), testCriteria(domain.CategoryGovernmentBond, "SU26238RMFS4"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.NotNil(t, table.Records)
	assert.Len(t, svc.visited, 1)
}

func TestFetcherInvalidInstrument(t *testing.T) {
	svc := &fakeService{
		sizes:  []int{0},
		cursor: []any{json.Number("0"), json.Number("0"), json.Number("100")},
	}

	table, err := newTestFetcher(svc).Fetch(context.Background(), testCriteria(domain.CategoryShare, "NOPE"))
	assert.Nil(t, table)

	var invalid *domain.InvalidInstrumentError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "NOPE", invalid.Code)
	assert.Len(t, svc.visited, 1)
}

func TestFetcherConnectivityErrorOnFirstPage(t *testing.T) {
	svc := &fakeService{
		sizes: []int{100},
		fail:  map[int]error{0: errors.New("dial tcp: connection refused")},
	}

	table, err := newTestFetcher(svc).Fetch(context.Background(), testCriteria(domain.CategoryShare, "SBER"))
	assert.Nil(t, table)
	assert.Equal(t, domain.KindConnectivity, domain.KindOf(err))
}

func TestFetcherDiscardsTableOnLaterPageFailure(t *testing.T) {
	svc := &fakeService{
		sizes: []int{100, 100, 100},
		fail:  map[int]error{2: &domain.ConnectivityError{URL: "x", StatusCode: 503}},
	}

	table, err := newTestFetcher(svc).Fetch(context.Background(), testCriteria(domain.CategoryShare, "SBER"))
	assert.Nil(t, table)

	var conn *domain.ConnectivityError
	require.True(t, errors.As(err, &conn))
	assert.Equal(t, 2, conn.Page)
	assert.Equal(t, 503, conn.StatusCode)
}

func TestFetcherPageLimit(t *testing.T) {
	svc := &fakeService{sizes: []int{100, 100, 100, 100, 100}}

	_, err := NewFetcher(NewRequestBuilder(nil), svc, 3).Fetch(context.Background(), testCriteria(domain.CategoryShare, "SBER"))
	assert.True(t, errors.Is(err, domain.ErrPageLimit))
	assert.Equal(t, domain.KindResponse, domain.KindOf(err))
	assert.Len(t, svc.visited, 3)
}

func TestFetcherValidatesBeforeRequest(t *testing.T) {
	svc := &fakeService{sizes: []int{10}}

	c := testCriteria(domain.CategoryShare, "")
	_, err := newTestFetcher(svc).Fetch(context.Background(), c)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, svc.visited)
}

func TestFetcherIsIdempotent(t *testing.T) {
	svc := &fakeService{sizes: []int{100, 55}}
	fetcher := newTestFetcher(svc)
	c := testCriteria(domain.CategoryShare, "SBER")

	render := func() []byte {
		table, err := fetcher.Fetch(context.Background(), c)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, WriteTable(&buf, table))
		return buf.Bytes()
	}

	assert.Equal(t, render(), render())
}

func TestFetcherAcceptsPageFetcherFunc(t *testing.T) {
	calls := 0
	fn := PageFetcherFunc(func(ctx context.Context, url string) (*domain.RawPage, error) {
		calls++
		return &domain.RawPage{Columns: issColumns, Rows: issRows(0, 3)}, nil
	})

	table, err := newTestFetcher(fn).Fetch(context.Background(), testCriteria(domain.CategoryCorporateBond, "RU000A0JX0J2"))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 1, calls)
}

func TestNormalizeProjection(t *testing.T) {
	columns := []string{"CLOSE", "EXTRA", "VALUE", "TRADEDATE", "HIGH", "LOW", "OPEN", "MORE"}
	rows := [][]any{
		{json.Number("10.5"), "x", json.Number("999"), "2024-02-01", json.Number("11"), json.Number("9.75"), json.Number("10"), nil},
		{nil, "y", nil, "2024-02-02", nil, nil, nil, nil},
	}

	table, err := Normalize(columns, rows)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	r := table.Records[0]
	assert.Equal(t, "10", r.Open.Decimal.String())
	assert.Equal(t, "9.75", r.Low.Decimal.String())
	assert.Equal(t, "11", r.High.Decimal.String())
	assert.Equal(t, "10.5", r.Close.Decimal.String())
	assert.Equal(t, "999", r.Value.Decimal.String())

	assert.False(t, table.Records[1].Close.Valid)
	assert.Equal(t, 1, table.Records[1].Number)
}

func TestNormalizeErrors(t *testing.T) {
	_, err := Normalize([]string{"TRADEDATE", "OPEN"}, [][]any{{"2024-01-01", json.Number("1")}})
	assert.Equal(t, domain.KindResponse, domain.KindOf(err))

	_, err = Normalize(domain.ProjectedColumns, [][]any{{"2024-01-01", json.Number("1")}})
	assert.Equal(t, domain.KindResponse, domain.KindOf(err))

	_, err = Normalize(domain.ProjectedColumns, [][]any{{"01.01.2024", nil, nil, nil, nil, nil}})
	assert.Equal(t, domain.KindResponse, domain.KindOf(err))

	_, err = Normalize(domain.ProjectedColumns, [][]any{{"2024-01-01", true, nil, nil, nil, nil}})
	assert.Equal(t, domain.KindResponse, domain.KindOf(err))

	table, err := Normalize(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}
