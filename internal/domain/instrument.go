package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category identifies the market board an instrument is traded on.
type Category string

const (
	CategoryShare          Category = "shares"
	CategoryCorporateBond  Category = "corporate_bonds"
	CategoryGovernmentBond Category = "government_bonds"
)

// DateLayout is the date format used by the ISS and by the exported table.
const DateLayout = "2006-01-02"

// FirstTradingDate is the earliest date the exchange history goes back to.
var FirstTradingDate = time.Date(1992, time.January, 1, 0, 0, 0, 0, time.UTC)

var categoryAliases = map[string]Category{
	"shares":          CategoryShare,
	"share":           CategoryShare,
	"stock":           CategoryShare,
	"акции":           CategoryShare,
	"corporate_bonds": CategoryCorporateBond,
	"corporate_bond":  CategoryCorporateBond,
	"corp":            CategoryCorporateBond,
	"корпоративные облигации": CategoryCorporateBond,
	"government_bonds": CategoryGovernmentBond,
	"government_bond":  CategoryGovernmentBond,
	"ofz":              CategoryGovernmentBond,
	"офз":              CategoryGovernmentBond,
}

var categoryLabels = map[Category]string{
	CategoryShare:          "Ações",
	CategoryCorporateBond:  "Títulos corporativos",
	CategoryGovernmentBond: "Títulos do governo (OFZ)",
}

// Categories returns the supported categories in display order.
func Categories() []Category {
	return []Category{CategoryShare, CategoryCorporateBond, CategoryGovernmentBond}
}

// ParseCategory accepts the wire name, a short alias or the exchange's own
// dropdown label, case-insensitively.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", &ValidationError{Field: "category", Message: "categoria é obrigatória"}
	}
	if c, ok := categoryAliases[key]; ok {
		return c, nil
	}
	return "", &ValidationError{Field: "category", Message: fmt.Sprintf("categoria desconhecida: %s", s)}
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// IsBond reports whether prices are quoted in percent of face value.
func (c Category) IsBond() bool {
	return c == CategoryCorporateBond || c == CategoryGovernmentBond
}

// SearchCriteria is one user query against the history service.
type SearchCriteria struct {
	Category Category  `json:"category"`
	Code     string    `json:"code"`
	From     time.Time `json:"from"`
	Till     time.Time `json:"till"`
}

// NewSearchCriteria parses raw user input into validated criteria.
func NewSearchCriteria(category, code, from, till string) (SearchCriteria, error) {
	cat, err := ParseCategory(category)
	if err != nil {
		return SearchCriteria{}, err
	}

	fromDate, err := ParseDate("from", from)
	if err != nil {
		return SearchCriteria{}, err
	}

	tillDate, err := ParseDate("till", till)
	if err != nil {
		return SearchCriteria{}, err
	}

	c := SearchCriteria{
		Category: cat,
		Code:     strings.TrimSpace(code),
		From:     fromDate,
		Till:     tillDate,
	}
	if err := c.Validate(); err != nil {
		return SearchCriteria{}, err
	}
	return c, nil
}

func ParseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: field, Message: "data é obrigatória"}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Message: "formato de data inválido (use YYYY-MM-DD)"}
	}
	return t, nil
}

// LatestDate is the calendar date at now in the easternmost time zone
// (UTC+14), as a UTC midnight like the parsed criteria dates. Any client's
// local today is at or before it.
func LatestDate(now time.Time) time.Time {
	return now.UTC().Add(14 * time.Hour).Truncate(24 * time.Hour)
}

// Validate checks the criteria before any network call is made.
func (c SearchCriteria) Validate() error {
	if !c.Category.Valid() {
		if c.Category == "" {
			return &ValidationError{Field: "category", Message: "categoria é obrigatória"}
		}
		return &ValidationError{Field: "category", Message: fmt.Sprintf("categoria desconhecida: %s", c.Category)}
	}
	if strings.TrimSpace(c.Code) == "" {
		return &ValidationError{Field: "code", Message: "código do papel é obrigatório"}
	}
	if c.From.IsZero() {
		return &ValidationError{Field: "from", Message: "data inicial é obrigatória"}
	}
	if c.Till.IsZero() {
		return &ValidationError{Field: "till", Message: "data final é obrigatória"}
	}
	if c.From.After(c.Till) {
		return &ValidationError{Field: "from", Message: "data inicial posterior à data final"}
	}
	if c.From.Before(FirstTradingDate) {
		return &ValidationError{Field: "from", Message: "data inicial anterior a 1992-01-01"}
	}
	if c.Till.After(LatestDate(time.Now())) {
		return &ValidationError{Field: "till", Message: "data final no futuro"}
	}
	return nil
}

func (c SearchCriteria) String() string {
	return fmt.Sprintf("%s/%s [%s..%s]", c.Category, c.Code, c.From.Format(DateLayout), c.Till.Format(DateLayout))
}
