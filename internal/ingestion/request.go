package ingestion

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

// DefaultEndpoints maps each category to its board on the ISS history API.
var DefaultEndpoints = map[domain.Category]string{
	domain.CategoryShare:          "https://iss.moex.com/iss/history/engines/stock/markets/shares/boards/TQBR/securities",
	domain.CategoryCorporateBond:  "https://iss.moex.com/iss/history/engines/stock/markets/bonds/boards/TQCB/securities",
	domain.CategoryGovernmentBond: "https://iss.moex.com/iss/history/engines/stock/markets/bonds/boards/TQOB/securities",
}

// RequestBuilder turns search criteria into ISS history URLs.
type RequestBuilder struct {
	endpoints map[domain.Category]string
}

func NewRequestBuilder(endpoints map[domain.Category]string) *RequestBuilder {
	merged := make(map[domain.Category]string, len(DefaultEndpoints))
	for category, base := range DefaultEndpoints {
		merged[category] = base
	}
	for category, base := range endpoints {
		if base != "" {
			merged[category] = strings.TrimRight(base, "/")
		}
	}

	return &RequestBuilder{endpoints: merged}
}

func (b *RequestBuilder) BaseURL(category domain.Category) (string, error) {
	base, ok := b.endpoints[category]
	if !ok || !category.Valid() {
		return "", &domain.ValidationError{Field: "category", Message: fmt.Sprintf("categoria desconhecida: %s", category)}
	}
	return base, nil
}

// URL is the first page of the query.
func (b *RequestBuilder) URL(c domain.SearchCriteria) (string, error) {
	base, err := b.BaseURL(c.Category)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s.json?from=%s&till=%s",
		base,
		url.PathEscape(c.Code),
		c.From.Format(domain.DateLayout),
		c.Till.Format(domain.DateLayout),
	), nil
}

// PageURL is page n of the query; rows are offset by n*PageSize.
func (b *RequestBuilder) PageURL(c domain.SearchCriteria, page int) (string, error) {
	first, err := b.URL(c)
	if err != nil {
		return "", err
	}
	if page <= 0 {
		return first, nil
	}

	return fmt.Sprintf("%s&start=%d", first, page*domain.PageSize), nil
}
