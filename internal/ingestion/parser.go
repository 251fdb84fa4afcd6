package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

// TableHeader is the header of the exported table file.
var TableHeader = []string{"NUMBER", "TRADEDATE", "OPEN", "LOW", "HIGH", "CLOSE", "VALUE"}

// WriteTable writes the table semicolon separated; null numbers are left
// empty.
func WriteTable(w io.Writer, table *domain.HistoryTable) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = ';'

	if err := csvWriter.Write(TableHeader); err != nil {
		return fmt.Errorf("erro ao escrever cabeçalho: %w", err)
	}

	for _, r := range table.Records {
		record := []string{
			strconv.Itoa(r.Number),
			r.TradeDate.Format(domain.DateLayout),
			formatDecimal(r.Open),
			formatDecimal(r.Low),
			formatDecimal(r.High),
			formatDecimal(r.Close),
			formatDecimal(r.Value),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("erro ao escrever linha %d: %w", r.Number, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteTableFile replaces path atomically with the table contents.
func WriteTableFile(path string, table *domain.HistoryTable) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("erro ao criar diretório: %w", err)
		}
	}

	tempFile := path + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("erro ao criar arquivo: %w", err)
	}

	err = WriteTable(file, table)
	file.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("erro ao salvar arquivo: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("erro ao renomear arquivo: %w", err)
	}

	return nil
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

type ParseResult struct {
	Records []domain.HistoryRecord
	Errors  []error
}

// Table wraps the parsed records; the file carries no category, so the
// caller names it.
func (r *ParseResult) Table(category domain.Category) *domain.HistoryTable {
	return &domain.HistoryTable{Category: category, Records: r.Records}
}

// ParseTable reads an exported table. Malformed lines are skipped and
// reported in Errors; a missing or foreign header fails the whole read.
func (p *Parser) ParseTable(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	csvReader := csv.NewReader(reader)
	csvReader.Comma = ';'
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("arquivo vazio")
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao ler cabeçalho: %w", err)
	}
	if strings.Join(header, ";") != strings.Join(TableHeader, ";") {
		return nil, fmt.Errorf("cabeçalho inesperado: %s", strings.Join(header, ";"))
	}

	result := &ParseResult{
		Records: make([]domain.HistoryRecord, 0),
		Errors:  make([]error, 0),
	}

	line := 1
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		record, err := csvReader.Read()
		if err == io.EOF {
			return result, nil
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("linha %d: %w", line, err))
			continue
		}

		r, err := p.parseRecord(record)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("linha %d: %w", line, err))
			continue
		}
		result.Records = append(result.Records, *r)
	}
}

// ReadTableFile parses an exported file from disk.
func (p *Parser) ReadTableFile(ctx context.Context, path string) (*ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir arquivo: %w", err)
	}
	defer file.Close()

	return p.ParseTable(ctx, file)
}

func (p *Parser) parseRecord(record []string) (*domain.HistoryRecord, error) {
	if len(record) != len(TableHeader) {
		return nil, fmt.Errorf("registro inválido: %v", record)
	}

	number, err := strconv.Atoi(record[0])
	if err != nil {
		return nil, fmt.Errorf("número inválido: %w", err)
	}

	tradeDate, err := time.Parse(domain.DateLayout, record[1])
	if err != nil {
		return nil, fmt.Errorf("data inválida: %w", err)
	}

	r := &domain.HistoryRecord{Number: number, TradeDate: tradeDate}
	targets := []*decimal.NullDecimal{&r.Open, &r.Low, &r.High, &r.Close, &r.Value}
	for i, target := range targets {
		value, err := parseDecimal(record[i+2])
		if err != nil {
			return nil, fmt.Errorf("%s inválido: %w", TableHeader[i+2], err)
		}
		*target = value
	}

	return r, nil
}

func parseDecimal(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", -1))
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
