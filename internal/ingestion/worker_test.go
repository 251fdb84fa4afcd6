package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

type countingFetcher struct {
	mu    sync.Mutex
	codes []string
}

func (f *countingFetcher) Fetch(ctx context.Context, c domain.SearchCriteria) (*domain.HistoryTable, error) {
	f.mu.Lock()
	f.codes = append(f.codes, c.Code)
	f.mu.Unlock()

	if c.Code == "FAIL" {
		return nil, &domain.InvalidInstrumentError{Category: c.Category, Code: c.Code}
	}
	return &domain.HistoryTable{Code: c.Code, Records: generateTestRecords(len(c.Code))}, nil
}

func TestWorkerPool(t *testing.T) {
	fetcher := &countingFetcher{}
	pool := NewWorkerPool(3, fetcher)
	pool.Start(context.Background())

	codes := []string{"SBER", "GAZP", "FAIL", "LKOH", "YDEX"}
	results := make(chan JobResult, len(codes))

	for _, code := range codes {
		pool.Submit(Job{Criteria: testCriteria(domain.CategoryShare, code), Result: results})
	}

	byCode := make(map[string]JobResult)
	for range codes {
		r := <-results
		byCode[r.Criteria.Code] = r
	}
	pool.Stop()

	require.Len(t, byCode, len(codes))
	assert.Len(t, fetcher.codes, len(codes))

	var invalid *domain.InvalidInstrumentError
	assert.True(t, errors.As(byCode["FAIL"].Error, &invalid))
	assert.Nil(t, byCode["FAIL"].Table)

	// every job owns its table
	assert.Equal(t, "SBER", byCode["SBER"].Table.Code)
	assert.Equal(t, 4, byCode["GAZP"].Table.Len())
	assert.NotSame(t, byCode["SBER"].Table, byCode["GAZP"].Table)
}

func TestWorkerPoolWithFetcherFunc(t *testing.T) {
	var calls atomic.Int32
	pool := NewWorkerPool(0, HistoryFetcherFunc(func(ctx context.Context, c domain.SearchCriteria) (*domain.HistoryTable, error) {
		calls.Add(1)
		return &domain.HistoryTable{Code: c.Code}, nil
	}))
	pool.Start(context.Background())

	results := make(chan JobResult, 2)
	pool.Submit(Job{Criteria: testCriteria(domain.CategoryShare, "SBER"), Result: results})
	pool.Submit(Job{Criteria: testCriteria(domain.CategoryShare, "GAZP"), Result: results})

	<-results
	<-results
	pool.Stop()

	assert.EqualValues(t, 2, calls.Load())
}
