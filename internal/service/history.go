package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/internal/ingestion"
	"github.com/jeovahfialho/moex-history/pkg/logger"
	"github.com/jeovahfialho/moex-history/pkg/metrics"
)

// HistorySink receives every successfully fetched table. Sinks are
// write-only; queries never read back from them.
type HistorySink interface {
	Name() string
	SaveHistory(ctx context.Context, table *domain.HistoryTable) (int64, error)
}

type HistoryService struct {
	fetcher ingestion.HistoryFetcher
	sinks   []HistorySink
}

func NewHistoryService(fetcher ingestion.HistoryFetcher, sinks ...HistorySink) *HistoryService {
	return &HistoryService{
		fetcher: fetcher,
		sinks:   sinks,
	}
}

// Search runs one paginated query. A failing sink is logged and does not
// fail the query.
func (s *HistoryService) Search(ctx context.Context, c domain.SearchCriteria) (*domain.HistoryTable, error) {
	log := logger.WithContext(ctx)
	category := string(c.Category)

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HistoryDuration.WithLabelValues(category))

	table, err := s.fetcher.Fetch(ctx, c)
	if err != nil {
		kind := domain.KindOf(err)
		metrics.RecordHistoryRequest(category, string(kind))
		log.Warn("consulta de histórico falhou",
			zap.String("criteria", c.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, err
	}

	metrics.RecordHistoryRequest(category, "success")
	metrics.RecordRowsNormalized(category, table.Len())

	log.Info("histórico carregado",
		zap.String("criteria", c.String()),
		zap.Int("pages", table.Pages),
		zap.Int("rows", table.Len()),
		zap.Duration("duration", timer.Elapsed()))

	s.export(ctx, table)

	return table, nil
}

func (s *HistoryService) export(ctx context.Context, table *domain.HistoryTable) {
	for _, sink := range s.sinks {
		n, err := sink.SaveHistory(ctx, table)
		metrics.RecordExport(sink.Name(), n, err)
		if err != nil {
			logger.WithContext(ctx).Error("erro ao exportar histórico",
				zap.String("sink", sink.Name()),
				zap.String("code", table.Code),
				zap.Error(err))
		}
	}
}

// Export writes the table file used as the hand-off between query and
// chart.
func (s *HistoryService) Export(ctx context.Context, table *domain.HistoryTable, path string) error {
	if table == nil {
		return domain.ErrNoData
	}

	err := ingestion.WriteTableFile(path, table)
	metrics.RecordExport("file", int64(table.Len()), err)
	if err != nil {
		return fmt.Errorf("erro ao exportar tabela: %w", err)
	}

	logger.WithContext(ctx).Debug("tabela exportada",
		zap.String("path", path),
		zap.Int("rows", table.Len()))
	return nil
}
