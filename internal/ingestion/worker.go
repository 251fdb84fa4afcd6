package ingestion

import (
	"context"
	"sync"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

// HistoryFetcher runs one complete query.
type HistoryFetcher interface {
	Fetch(ctx context.Context, c domain.SearchCriteria) (*domain.HistoryTable, error)
}

type HistoryFetcherFunc func(ctx context.Context, c domain.SearchCriteria) (*domain.HistoryTable, error)

func (f HistoryFetcherFunc) Fetch(ctx context.Context, c domain.SearchCriteria) (*domain.HistoryTable, error) {
	return f(ctx, c)
}

// WorkerPool runs independent queries side by side. Pagination inside a
// query stays sequential; each job builds its own table.
type WorkerPool struct {
	workers  int
	fetcher  HistoryFetcher
	jobQueue chan Job
	wg       sync.WaitGroup
}

type Job struct {
	Criteria domain.SearchCriteria
	Result   chan<- JobResult
}

type JobResult struct {
	Criteria domain.SearchCriteria
	Table    *domain.HistoryTable
	Error    error
}

func NewWorkerPool(workers int, fetcher HistoryFetcher) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	return &WorkerPool{
		workers:  workers,
		fetcher:  fetcher,
		jobQueue: make(chan Job, workers*2),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx)
	}
}

func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
}

func (wp *WorkerPool) Submit(job Job) {
	wp.jobQueue <- job
}

func (wp *WorkerPool) worker(ctx context.Context) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}

			table, err := wp.fetcher.Fetch(ctx, job.Criteria)
			job.Result <- JobResult{
				Criteria: job.Criteria,
				Table:    table,
				Error:    err,
			}
		}
	}
}
