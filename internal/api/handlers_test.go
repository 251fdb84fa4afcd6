package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/internal/ingestion"
	"github.com/jeovahfialho/moex-history/internal/service"
	"github.com/jeovahfialho/moex-history/internal/storage/cache"
)

var pageColumns = []string{"BOARDID", "TRADEDATE", "SHORTNAME", "SECID", "VALUE", "OPEN", "LOW", "HIGH", "CLOSE"}

// fakeISS answers like the exchange: three rows for any code, the zero
// sentinel for XXXX and a transport error for DOWN.
func fakeISS(ctx context.Context, url string) (*domain.RawPage, error) {
	switch {
	case strings.Contains(url, "/DOWN.json"):
		return nil, errors.New("connection refused")
	case strings.Contains(url, "/XXXX.json"):
		return &domain.RawPage{
			Columns: pageColumns,
			Cursor:  []any{json.Number("0"), json.Number("0"), json.Number("100")},
		}, nil
	}

	page := &domain.RawPage{
		Columns: pageColumns,
		Cursor:  []any{json.Number("0"), json.Number("3"), json.Number("100")},
	}
	for i, day := range []string{"2024-01-09", "2024-01-10", "2024-01-11"} {
		var low any = json.Number("269.1")
		if i == 1 {
			low = nil
		}
		page.Rows = append(page.Rows, []any{
			"TQBR", day, "Сбербанк", "SBER",
			json.Number("1500000000"), json.Number("270.5"), low, json.Number("272"), json.Number("271.25"),
		})
	}
	return page, nil
}

type healthyCheck struct{ err error }

func (h healthyCheck) HealthCheck(ctx context.Context) error { return h.err }

func setupTestApp(checks map[string]HealthChecker) *fiber.App {
	builder := ingestion.NewRequestBuilder(nil)
	fetcher := ingestion.NewFetcher(builder, ingestion.PageFetcherFunc(fakeISS), 0)
	history := service.NewHistoryService(fetcher)
	sessions := service.NewSessionService(history, service.NewSessionStore(cache.NewMemoryCache(10, time.Minute)))

	app := fiber.New()
	SetupRoutes(app, NewHandler(history, sessions, builder, checks), RouteOptions{RateLimit: 1000})
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthAndReadiness(t *testing.T) {
	app := setupTestApp(map[string]HealthChecker{"sessions": healthyCheck{}})

	resp, _ := doRequest(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = doRequest(t, app, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	broken := setupTestApp(map[string]HealthChecker{"database": healthyCheck{err: errors.New("down")}})
	resp, body := doRequest(t, broken, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "unhealthy", health.Services["database"].Status)
}

func TestListCategories(t *testing.T) {
	app := setupTestApp(nil)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var categories []CategoryDTO
	require.NoError(t, json.Unmarshal(body, &categories))
	require.Len(t, categories, 3)
	assert.Equal(t, "shares", categories[0].ID)
	assert.Contains(t, categories[2].BaseURL, "/boards/TQOB/")
}

func TestGetHistory(t *testing.T) {
	app := setupTestApp(nil)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/history/shares/SBER?from=2024-01-09&till=2024-01-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var history HistoryResponse
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Equal(t, "Сбербанк", history.ShortName)
	assert.Equal(t, 3, history.Count)
	require.Len(t, history.Rows, 3)
	assert.Equal(t, "2024-01-09", history.Rows[0].TradeDate)
	require.NotNil(t, history.Rows[0].Close)
	assert.Equal(t, "271.25", *history.Rows[0].Close)
	assert.Nil(t, history.Rows[1].Low)
}

func TestGetHistoryErrors(t *testing.T) {
	app := setupTestApp(nil)

	tests := []struct {
		name   string
		path   string
		status int
		kind   string
	}{
		{"reversed range", "/api/v1/history/shares/SBER?from=2024-02-01&till=2024-01-01", http.StatusBadRequest, "validation"},
		{"bad date", "/api/v1/history/shares/SBER?from=01.02.2024&till=2024-03-01", http.StatusBadRequest, "validation"},
		{"unknown category", "/api/v1/history/futures/SiH4?from=2024-01-01&till=2024-01-31", http.StatusBadRequest, "validation"},
		{"unknown code", "/api/v1/history/shares/XXXX?from=2024-01-01&till=2024-01-31", http.StatusNotFound, "invalid_instrument"},
		{"exchange down", "/api/v1/history/shares/DOWN?from=2024-01-01&till=2024-01-31", http.StatusBadGateway, "connectivity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, app, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, resp.StatusCode)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, tt.kind, errResp.Kind)
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestGetHistoryCSV(t *testing.T) {
	app := setupTestApp(nil)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/history/shares/SBER/csv?from=2024-01-09&till=2024-01-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NUMBER;TRADEDATE;OPEN;LOW;HIGH;CLOSE;VALUE", lines[0])
	assert.Equal(t, "1;2024-01-10;270.5;;272;271.25;1500000000", lines[2])

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "SBER.csv", params["filename"])
}

func TestAttachmentFilename(t *testing.T) {
	for _, name := range []string{`SB"ER.csv`, `a\b.csv`, "ОФЗ 26238.csv"} {
		disposition, params, err := mime.ParseMediaType(attachment(name))
		require.NoError(t, err, name)
		assert.Equal(t, "attachment", disposition)
		assert.Equal(t, name, params["filename"])
	}
}

func TestGetHistoryChart(t *testing.T) {
	app := setupTestApp(nil)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/history/shares/SBER/chart/price?from=2024-01-09&till=2024-01-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/history/shares/SBER/chart/candles?from=2024-01-09&till=2024-01-31", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	app := setupTestApp(nil)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session SessionResponse
	require.NoError(t, json.Unmarshal(body, &session))
	require.NotEmpty(t, session.ID)
	base := "/api/v1/sessions/" + session.ID

	// no table yet
	resp, _ = doRequest(t, app, http.MethodPost, base+"/charts/price", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodPost, base+"/search", SearchRequest{
		Category: "Акции", Code: "SBER", From: "2024-01-09", Till: "2024-01-31",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &session))
	require.NotNil(t, session.Table)
	assert.Equal(t, 3, session.Table.Count)

	resp, body = doRequest(t, app, http.MethodPost, base+"/charts/volume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Len(t, session.Charts, 1)

	resp, body = doRequest(t, app, http.MethodGet, base+"/charts/volume?format=svg", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "<svg")

	resp, _ = doRequest(t, app, http.MethodPost, base+"/reset", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionSearchFailureKeepsSession(t *testing.T) {
	app := setupTestApp(nil)

	_, body := doRequest(t, app, http.MethodPost, "/api/v1/sessions", nil)
	var session SessionResponse
	require.NoError(t, json.Unmarshal(body, &session))
	base := "/api/v1/sessions/" + session.ID

	resp, body := doRequest(t, app, http.MethodPost, base+"/search", SearchRequest{
		Category: "shares", Code: "SBER", From: "2024-01-09", Till: "2024-01-31",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodPost, base+"/search", SearchRequest{
		Category: "shares", Code: "XXXX", From: "2024-01-09", Till: "2024-01-31",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Nil(t, session.Table)
	require.NotNil(t, session.Error)
	assert.Equal(t, "invalid_instrument", session.Error.Kind)
	assert.Equal(t, "Código do papel inválido", session.Error.Message)

	resp, body = doRequest(t, app, http.MethodPost, base+"/search", SearchRequest{
		Category: "shares", Code: "SBER", From: "2024-01-31", Till: "2024-01-09",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, "validation", session.Error.Kind)
}

func TestUnknownSession(t *testing.T) {
	app := setupTestApp(nil)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/sessions/missing/search", SearchRequest{
		Category: "shares", Code: "SBER", From: "2024-01-09", Till: "2024-01-31",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "sessão não encontrada", errResp.Error)
}

func TestGetHistorySummary(t *testing.T) {
	app := setupTestApp(nil)

	_, body := doRequest(t, app, http.MethodGet, "/api/v1/history/shares/SBER?from=2024-01-09&till=2024-01-31", nil)

	var history HistoryResponse
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Equal(t, 3, history.Summary.TradingDays)
	assert.Equal(t, "4500000000", history.Summary.TotalValue.String())
	assert.Equal(t, "269.1", history.Summary.MinLow.Decimal.String())
}
