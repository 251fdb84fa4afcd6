package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeovahfialho/moex-history/internal/chart"
	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/internal/service"
)

type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

type ServiceHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error     string    `json:"error"`
	Kind      string    `json:"kind,omitempty"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CategoryDTO struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	BaseURL string `json:"base_url"`
}

// SearchRequest is the body of a session search; dates are YYYY-MM-DD.
type SearchRequest struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	From     string `json:"from"`
	Till     string `json:"till"`
}

type CriteriaDTO struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	From     string `json:"from"`
	Till     string `json:"till"`
}

// HistoryRowDTO keeps numbers as decimal strings; null cells are null.
type HistoryRowDTO struct {
	Number    int     `json:"number"`
	TradeDate string  `json:"trade_date"`
	Open      *string `json:"open"`
	Low       *string `json:"low"`
	High      *string `json:"high"`
	Close     *string `json:"close"`
	Value     *string `json:"value"`
}

type HistoryResponse struct {
	Category  string          `json:"category"`
	Code      string          `json:"code"`
	ShortName string          `json:"short_name,omitempty"`
	From      string          `json:"from"`
	Till      string          `json:"till"`
	Pages     int             `json:"pages"`
	Count     int             `json:"count"`
	Summary   domain.Summary  `json:"summary"`
	Rows      []HistoryRowDTO `json:"rows"`
}

type SessionErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type SessionResponse struct {
	ID        string           `json:"id"`
	Criteria  *CriteriaDTO     `json:"criteria,omitempty"`
	Table     *HistoryResponse `json:"table,omitempty"`
	Charts    []chart.Kind     `json:"charts"`
	Error     *SessionErrorDTO `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func newCriteriaDTO(c domain.SearchCriteria) *CriteriaDTO {
	return &CriteriaDTO{
		Category: string(c.Category),
		Code:     c.Code,
		From:     c.From.Format(domain.DateLayout),
		Till:     c.Till.Format(domain.DateLayout),
	}
}

func newHistoryResponse(table *domain.HistoryTable) *HistoryResponse {
	resp := &HistoryResponse{
		Category:  string(table.Category),
		Code:      table.Code,
		ShortName: table.ShortName,
		From:      table.From.Format(domain.DateLayout),
		Till:      table.Till.Format(domain.DateLayout),
		Pages:     table.Pages,
		Count:     table.Len(),
		Summary:   domain.Summarize(table),
		Rows:      make([]HistoryRowDTO, 0, table.Len()),
	}

	for _, r := range table.Records {
		resp.Rows = append(resp.Rows, HistoryRowDTO{
			Number:    r.Number,
			TradeDate: r.TradeDate.Format(domain.DateLayout),
			Open:      decimalString(r.Open),
			Low:       decimalString(r.Low),
			High:      decimalString(r.High),
			Close:     decimalString(r.Close),
			Value:     decimalString(r.Value),
		})
	}
	return resp
}

func newSessionResponse(s service.Session) SessionResponse {
	resp := SessionResponse{
		ID:        s.ID,
		Charts:    s.Charts,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if resp.Charts == nil {
		resp.Charts = []chart.Kind{}
	}
	if s.Criteria != nil {
		resp.Criteria = newCriteriaDTO(*s.Criteria)
	}
	if s.Table != nil {
		resp.Table = newHistoryResponse(s.Table)
	}
	if s.Error != nil {
		resp.Error = &SessionErrorDTO{Kind: string(s.Error.Kind), Message: s.Error.Message}
	}
	return resp
}

func decimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
