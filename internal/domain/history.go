package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PageSize is the fixed number of rows the ISS returns per page.
const PageSize = 100

// Canonical column names of the history block.
const (
	ColumnTradeDate = "TRADEDATE"
	ColumnOpen      = "OPEN"
	ColumnLow       = "LOW"
	ColumnHigh      = "HIGH"
	ColumnClose     = "CLOSE"
	ColumnValue     = "VALUE"
	ColumnShortName = "SHORTNAME"
)

// ProjectedColumns is the order of the normalized table.
var ProjectedColumns = []string{
	ColumnTradeDate,
	ColumnOpen,
	ColumnLow,
	ColumnHigh,
	ColumnClose,
	ColumnValue,
}

// RawPage is one decoded response body.
type RawPage struct {
	Columns []string
	Rows    [][]any
	// Cursor is the first row of the history.cursor block (INDEX, TOTAL,
	// PAGESIZE), nil when the block is absent.
	Cursor []any
}

func (p *RawPage) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Rows)
}

// UnknownInstrument reports the zero sentinel the service uses for codes
// it does not know.
func (p *RawPage) UnknownInstrument() bool {
	if p == nil || len(p.Cursor) < 2 {
		return false
	}
	return isZero(p.Cursor[1])
}

func isZero(v any) bool {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return err == nil && f == 0
	case float64:
		return n == 0
	case int:
		return n == 0
	case int64:
		return n == 0
	case string:
		return n == "0"
	default:
		return false
	}
}

type HistoryRecord struct {
	Number    int                 `json:"number"`
	TradeDate time.Time           `json:"trade_date"`
	Open      decimal.NullDecimal `json:"open"`
	Low       decimal.NullDecimal `json:"low"`
	High      decimal.NullDecimal `json:"high"`
	Close     decimal.NullDecimal `json:"close"`
	Value     decimal.NullDecimal `json:"value"`
}

// HistoryTable is the normalized result of one query.
type HistoryTable struct {
	Category  Category        `json:"category"`
	Code      string          `json:"code"`
	ShortName string          `json:"short_name,omitempty"`
	From      time.Time       `json:"from"`
	Till      time.Time       `json:"till"`
	Pages     int             `json:"pages"`
	Records   []HistoryRecord `json:"records"`
}

func (t *HistoryTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Title is what the UI shows above the table.
func (t *HistoryTable) Title() string {
	if t.ShortName != "" {
		return t.ShortName
	}
	return t.Code
}
