package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/pkg/logger"
	"github.com/jeovahfialho/moex-history/pkg/metrics"
)

const DefaultMaxPages = 500

// Fetcher walks every page of a history query and returns the
// normalized table. Pages are requested strictly one after another since
// the total is only known once a short page arrives.
type Fetcher struct {
	builder  *RequestBuilder
	pages    PageFetcher
	maxPages int
}

func NewFetcher(builder *RequestBuilder, pages PageFetcher, maxPages int) *Fetcher {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	return &Fetcher{
		builder:  builder,
		pages:    pages,
		maxPages: maxPages,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, c domain.SearchCriteria) (*domain.HistoryTable, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	first, err := f.fetchPage(ctx, c, 0)
	if err != nil {
		return nil, err
	}

	if first.UnknownInstrument() {
		return nil, &domain.InvalidInstrumentError{Category: c.Category, Code: c.Code}
	}

	columns := first.Columns
	rows := make([][]any, 0, first.Len())
	rows = append(rows, first.Rows...)

	pages := 1
	last := first.Len()

	for last == domain.PageSize {
		if pages >= f.maxPages {
			url, _ := f.builder.PageURL(c, pages)
			return nil, &domain.ResponseError{
				URL:    url,
				Page:   pages,
				Reason: fmt.Sprintf("paginação não terminou após %d páginas", f.maxPages),
				Err:    domain.ErrPageLimit,
			}
		}

		page, err := f.fetchPage(ctx, c, pages)
		if err != nil {
			return nil, err
		}

		rows = append(rows, page.Rows...)
		last = page.Len()
		pages++
	}

	table, err := Normalize(columns, rows)
	if err != nil {
		return nil, err
	}

	table.Category = c.Category
	table.Code = c.Code
	table.From = c.From
	table.Till = c.Till
	table.Pages = pages

	logger.Debug("histórico paginado",
		zap.String("criteria", c.String()),
		zap.Int("pages", pages),
		zap.Int("rows", table.Len()))

	return table, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, c domain.SearchCriteria, n int) (*domain.RawPage, error) {
	url, err := f.builder.PageURL(c, n)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &domain.ConnectivityError{URL: url, Page: n, Err: err}
	}

	timer := metrics.NewTimer()
	page, err := f.pages.FetchPage(ctx, url)
	timer.ObserveDuration(metrics.PageFetchDuration.WithLabelValues(string(c.Category)))

	if err != nil {
		metrics.RecordPageFetched(string(c.Category), "error")
		return nil, tagPage(err, url, n)
	}
	if page == nil {
		metrics.RecordPageFetched(string(c.Category), "error")
		return nil, &domain.ResponseError{URL: url, Page: n, Reason: "resposta vazia"}
	}

	metrics.RecordPageFetched(string(c.Category), "success")
	return page, nil
}

// tagPage records the page index on taxonomy errors and classifies
// anything else a PageFetcher returns as a connectivity failure.
func tagPage(err error, url string, n int) error {
	var (
		connectivity *domain.ConnectivityError
		response     *domain.ResponseError
	)

	switch {
	case errors.As(err, &connectivity):
		connectivity.Page = n
		return connectivity
	case errors.As(err, &response):
		response.Page = n
		return response
	default:
		return &domain.ConnectivityError{URL: url, Page: n, Err: err}
	}
}

// Normalize projects raw rows onto the canonical columns and numbers
// them by their final position.
func Normalize(columns []string, rows [][]any) (*domain.HistoryTable, error) {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[strings.ToUpper(name)] = i
	}

	positions := make([]int, len(domain.ProjectedColumns))
	for i, name := range domain.ProjectedColumns {
		pos, ok := index[name]
		if !ok {
			if len(rows) == 0 {
				// an empty result may come without column metadata
				return &domain.HistoryTable{Records: []domain.HistoryRecord{}}, nil
			}
			return nil, &domain.ResponseError{Reason: fmt.Sprintf("coluna %s ausente", name)}
		}
		positions[i] = pos
	}

	table := &domain.HistoryTable{
		Records: make([]domain.HistoryRecord, 0, len(rows)),
	}

	if pos, ok := index[domain.ColumnShortName]; ok && len(rows) > 0 && pos < len(rows[0]) {
		if name, ok := rows[0][pos].(string); ok {
			table.ShortName = name
		}
	}

	for i, row := range rows {
		record, err := projectRow(row, positions)
		if err != nil {
			return nil, &domain.ResponseError{Reason: fmt.Sprintf("linha %d inválida", i), Err: err}
		}
		record.Number = i
		table.Records = append(table.Records, record)
	}

	return table, nil
}

func projectRow(row []any, positions []int) (domain.HistoryRecord, error) {
	var record domain.HistoryRecord

	for _, pos := range positions {
		if pos >= len(row) {
			return record, fmt.Errorf("esperadas ao menos %d colunas, recebidas %d", pos+1, len(row))
		}
	}

	dateStr, ok := row[positions[0]].(string)
	if !ok {
		return record, fmt.Errorf("TRADEDATE não é texto: %v", row[positions[0]])
	}
	tradeDate, err := time.Parse(domain.DateLayout, dateStr)
	if err != nil {
		return record, fmt.Errorf("TRADEDATE inválida: %w", err)
	}
	record.TradeDate = tradeDate

	targets := []*decimal.NullDecimal{&record.Open, &record.Low, &record.High, &record.Close, &record.Value}
	for i, target := range targets {
		value, err := toDecimal(row[positions[i+1]])
		if err != nil {
			return record, fmt.Errorf("%s: %w", domain.ProjectedColumns[i+1], err)
		}
		*target = value
	}

	return record, nil
}

func toDecimal(v any) (decimal.NullDecimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(n)), nil
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(n))), nil
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(n)), nil
	case string:
		if n == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("valor numérico inesperado: %v (%T)", v, v)
	}
}
