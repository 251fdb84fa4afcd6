package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates one normalized table. Null cells are ignored.
type Summary struct {
	TradingDays   int                 `json:"trading_days"`
	FirstDate     *time.Time          `json:"first_date,omitempty"`
	LastDate      *time.Time          `json:"last_date,omitempty"`
	FirstClose    decimal.NullDecimal `json:"first_close"`
	LastClose     decimal.NullDecimal `json:"last_close"`
	MinClose      decimal.NullDecimal `json:"min_close"`
	MaxClose      decimal.NullDecimal `json:"max_close"`
	MaxHigh       decimal.NullDecimal `json:"max_high"`
	MinLow        decimal.NullDecimal `json:"min_low"`
	TotalValue    decimal.Decimal     `json:"total_value"`
	MaxDailyValue decimal.NullDecimal `json:"max_daily_value"`
	// ChangePercent is LastClose over FirstClose, rounded to two places.
	ChangePercent decimal.NullDecimal `json:"change_percent"`
}

var hundred = decimal.NewFromInt(100)

func Summarize(table *HistoryTable) Summary {
	var s Summary
	if table.Len() == 0 {
		return s
	}

	first := table.Records[0].TradeDate
	last := table.Records[table.Len()-1].TradeDate
	s.TradingDays = table.Len()
	s.FirstDate = &first
	s.LastDate = &last

	for _, r := range table.Records {
		if r.Close.Valid {
			if !s.FirstClose.Valid {
				s.FirstClose = r.Close
			}
			s.LastClose = r.Close
			s.MinClose = minNull(s.MinClose, r.Close)
			s.MaxClose = maxNull(s.MaxClose, r.Close)
		}
		if r.High.Valid {
			s.MaxHigh = maxNull(s.MaxHigh, r.High)
		}
		if r.Low.Valid {
			s.MinLow = minNull(s.MinLow, r.Low)
		}
		if r.Value.Valid {
			s.TotalValue = s.TotalValue.Add(r.Value.Decimal)
			s.MaxDailyValue = maxNull(s.MaxDailyValue, r.Value)
		}
	}

	if s.FirstClose.Valid && s.LastClose.Valid && !s.FirstClose.Decimal.IsZero() {
		change := s.LastClose.Decimal.Sub(s.FirstClose.Decimal).
			Div(s.FirstClose.Decimal).
			Mul(hundred).
			Round(2)
		s.ChangePercent = decimal.NewNullDecimal(change)
	}

	return s
}

func minNull(acc, v decimal.NullDecimal) decimal.NullDecimal {
	if !acc.Valid || v.Decimal.LessThan(acc.Decimal) {
		return v
	}
	return acc
}

func maxNull(acc, v decimal.NullDecimal) decimal.NullDecimal {
	if !acc.Valid || v.Decimal.GreaterThan(acc.Decimal) {
		return v
	}
	return acc
}
