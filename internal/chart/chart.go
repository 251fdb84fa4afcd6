// Package chart turns a normalized history table into the two charts the
// UI offers: closing price over time and traded value per day.
package chart

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

type Kind string

const (
	KindPrice  Kind = "price"
	KindVolume Kind = "volume"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPrice:
		return KindPrice, nil
	case KindVolume:
		return KindVolume, nil
	default:
		return "", &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("tipo de gráfico desconhecido: %s", s)}
	}
}

const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

var (
	width  = 20 * vg.Centimeter
	height = 10 * vg.Centimeter

	million = decimal.NewFromInt(1_000_000)
)

type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is the data behind one chart, ready for any renderer.
type Series struct {
	Kind   Kind    `json:"kind"`
	Title  string  `json:"title"`
	XLabel string  `json:"x_label"`
	YLabel string  `json:"y_label"`
	Points []Point `json:"points"`
}

// PriceSeries plots CLOSE per trade date; days without a close are left out.
func PriceSeries(table *domain.HistoryTable) Series {
	s := Series{
		Kind:   KindPrice,
		Title:  table.Title(),
		XLabel: "Data",
		YLabel: "Preço, RUB",
		Points: make([]Point, 0, table.Len()),
	}
	if table.Category.IsBond() {
		s.YLabel = "Preço, % do valor nominal"
	}

	for _, r := range table.Records {
		if !r.Close.Valid {
			continue
		}
		v, _ := r.Close.Decimal.Float64()
		s.Points = append(s.Points, Point{Date: r.TradeDate, Value: v})
	}
	return s
}

// VolumeSeries plots VALUE in millions of RUB per trade date.
func VolumeSeries(table *domain.HistoryTable) Series {
	s := Series{
		Kind:   KindVolume,
		Title:  table.Title(),
		XLabel: "Data",
		YLabel: "Volume, milhões RUB",
		Points: make([]Point, 0, table.Len()),
	}

	for _, r := range table.Records {
		var v float64
		if r.Value.Valid {
			v, _ = r.Value.Decimal.Div(million).Float64()
		}
		s.Points = append(s.Points, Point{Date: r.TradeDate, Value: v})
	}
	return s
}

func SeriesFor(kind Kind, table *domain.HistoryTable) Series {
	if kind == KindVolume {
		return VolumeSeries(table)
	}
	return PriceSeries(table)
}

// Render draws the chart of the given kind as png or svg.
func Render(w io.Writer, kind Kind, table *domain.HistoryTable, format string) error {
	if format == "" {
		format = FormatPNG
	}
	if format != FormatPNG && format != FormatSVG {
		return &domain.ValidationError{Field: "format", Message: fmt.Sprintf("formato não suportado: %s", format)}
	}
	if table.Len() == 0 {
		return domain.ErrNoData
	}

	series := SeriesFor(kind, table)

	var (
		p   *plot.Plot
		err error
	)
	switch kind {
	case KindPrice:
		p, err = linePlot(series)
	case KindVolume:
		p, err = barPlot(series)
	default:
		return &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("tipo de gráfico desconhecido: %s", kind)}
	}
	if err != nil {
		return fmt.Errorf("erro ao montar gráfico: %w", err)
	}

	writer, err := p.WriterTo(width, height, format)
	if err != nil {
		return fmt.Errorf("erro ao renderizar gráfico: %w", err)
	}
	if _, err := writer.WriteTo(w); err != nil {
		return fmt.Errorf("erro ao escrever gráfico: %w", err)
	}
	return nil
}

func newPlot(s Series) *plot.Plot {
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.XLabel
	p.Y.Label.Text = s.YLabel
	p.Add(plotter.NewGrid())
	return p
}

func linePlot(s Series) (*plot.Plot, error) {
	if len(s.Points) == 0 {
		return nil, domain.ErrNoData
	}

	p := newPlot(s)
	p.X.Tick.Marker = plot.TimeTicks{Format: domain.DateLayout}

	xys := make(plotter.XYs, len(s.Points))
	for i, pt := range s.Points {
		xys[i].X = float64(pt.Date.Unix())
		xys[i].Y = pt.Value
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	p.Add(line)
	return p, nil
}

func barPlot(s Series) (*plot.Plot, error) {
	p := newPlot(s)

	values := make(plotter.Values, len(s.Points))
	dates := make([]time.Time, len(s.Points))
	for i, pt := range s.Points {
		values[i] = pt.Value
		dates[i] = pt.Date
	}

	barWidth := width * 0.8 / vg.Length(len(values))
	if barWidth < 0.5 {
		barWidth = 0.5
	}

	bars, err := plotter.NewBarChart(values, barWidth)
	if err != nil {
		return nil, err
	}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.X.Tick.Marker = dateTicks(dates)
	return p, nil
}

// dateTicks labels bar positions (one per trade day) with their dates,
// thinned out to at most eight labels.
type dateTicks []time.Time

func (d dateTicks) Ticks(min, max float64) []plot.Tick {
	if len(d) == 0 {
		return nil
	}

	step := len(d) / 8
	if step < 1 {
		step = 1
	}

	ticks := make([]plot.Tick, 0, 9)
	for i := 0; i < len(d); i += step {
		ticks = append(ticks, plot.Tick{Value: float64(i), Label: d[i].Format(domain.DateLayout)})
	}
	return ticks
}
