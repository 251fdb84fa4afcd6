package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jeovahfialho/moex-history/internal/domain"
)

// PageFetcher retrieves and decodes one page of history.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*domain.RawPage, error)
}

// PageFetcherFunc adapts a plain function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, url string) (*domain.RawPage, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, url string) (*domain.RawPage, error) {
	return f(ctx, url)
}

// maxBodySize caps a single page; 100 rows are a few tens of KB.
const maxBodySize = 10 << 20

type issBlock struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

type issResponse struct {
	History *issBlock `json:"history"`
	Cursor  *issBlock `json:"history.cursor"`
}

// Downloader is the ISS HTTP client.
type Downloader struct {
	httpClient *http.Client
}

func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Downloader{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewDownloaderWithClient is used when the caller owns the transport.
func NewDownloaderWithClient(client *http.Client) *Downloader {
	return &Downloader{httpClient: client}
}

func (d *Downloader) FetchPage(ctx context.Context, url string) (*domain.RawPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.ConnectivityError{URL: url, Err: fmt.Errorf("erro ao criar request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ConnectivityError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &domain.ConnectivityError{URL: url, StatusCode: resp.StatusCode}
	}

	return decodePage(url, io.LimitReader(resp.Body, maxBodySize))
}

func decodePage(url string, body io.Reader) (*domain.RawPage, error) {
	decoder := json.NewDecoder(body)
	decoder.UseNumber()

	var payload issResponse
	if err := decoder.Decode(&payload); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &domain.ConnectivityError{URL: url, Err: err}
		}
		return nil, &domain.ResponseError{URL: url, Reason: "erro ao decodificar JSON", Err: err}
	}

	if payload.History == nil {
		return nil, &domain.ResponseError{URL: url, Reason: "bloco history ausente na resposta"}
	}

	page := &domain.RawPage{
		Columns: payload.History.Columns,
		Rows:    payload.History.Data,
	}

	if payload.Cursor != nil && len(payload.Cursor.Data) > 0 {
		page.Cursor = payload.Cursor.Data[0]
	}

	return page, nil
}
