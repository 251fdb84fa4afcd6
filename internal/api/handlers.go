package api

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/jeovahfialho/moex-history/internal/chart"
	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/internal/ingestion"
	"github.com/jeovahfialho/moex-history/internal/service"
	"github.com/jeovahfialho/moex-history/pkg/logger"
)

const version = "1.0.0"

// HealthChecker is any dependency /ready should probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handler struct {
	history  *service.HistoryService
	sessions *service.SessionService
	builder  *ingestion.RequestBuilder
	checks   map[string]HealthChecker
}

func NewHandler(
	history *service.HistoryService,
	sessions *service.SessionService,
	builder *ingestion.RequestBuilder,
	checks map[string]HealthChecker,
) *Handler {
	return &Handler{
		history:  history,
		sessions: sessions,
		builder:  builder,
		checks:   checks,
	}
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Version:   version,
		Timestamp: time.Now(),
	})
}

func (h *Handler) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	services := make(map[string]ServiceHealth, len(h.checks))
	status := "ready"

	for name, check := range h.checks {
		start := time.Now()
		if err := check.HealthCheck(ctx); err != nil {
			services[name] = ServiceHealth{Status: "unhealthy", Error: err.Error()}
			status = "not_ready"
			continue
		}
		services[name] = ServiceHealth{Status: "healthy", Latency: time.Since(start).String()}
	}

	response := HealthResponse{
		Status:    status,
		Version:   version,
		Timestamp: time.Now(),
		Services:  services,
	}

	if status != "ready" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}

func (h *Handler) ListCategories(c *fiber.Ctx) error {
	categories := make([]CategoryDTO, 0, len(domain.Categories()))
	for _, cat := range domain.Categories() {
		baseURL, err := h.builder.BaseURL(cat)
		if err != nil {
			return h.respondError(c, err)
		}
		categories = append(categories, CategoryDTO{
			ID:      string(cat),
			Label:   cat.Label(),
			BaseURL: baseURL,
		})
	}
	return c.JSON(categories)
}

// GetHistory runs a one-off query without a session.
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	table, err := h.search(c)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(newHistoryResponse(table))
}

// GetHistoryCSV returns the same table in the exported file format.
func (h *Handler) GetHistoryCSV(c *fiber.Ctx) error {
	table, err := h.search(c)
	if err != nil {
		return h.respondError(c, err)
	}

	var buf bytes.Buffer
	if err := ingestion.WriteTable(&buf, table); err != nil {
		return h.respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, attachment(table.Code+".csv"))
	return c.Send(buf.Bytes())
}

// attachment quotes or encodes the name so codes taken from the path
// cannot break the header.
func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func (h *Handler) GetHistoryChart(c *fiber.Ctx) error {
	kind, err := chart.ParseKind(c.Params("kind"))
	if err != nil {
		return h.respondError(c, err)
	}

	table, err := h.search(c)
	if err != nil {
		return h.respondError(c, err)
	}

	return h.sendChart(c, kind, table)
}

func (h *Handler) search(c *fiber.Ctx) (*domain.HistoryTable, error) {
	criteria, err := domain.NewSearchCriteria(c.Params("category"), c.Params("code"), c.Query("from"), c.Query("till"))
	if err != nil {
		return nil, err
	}

	logger.WithContext(c.UserContext()).Info("buscando histórico", zap.String("criteria", criteria.String()))
	return h.history.Search(c.UserContext(), criteria)
}

func (h *Handler) CreateSession(c *fiber.Ctx) error {
	session, err := h.sessions.Create(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newSessionResponse(session))
}

func (h *Handler) GetSession(c *fiber.Ctx) error {
	session, err := h.sessions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(newSessionResponse(session))
}

// SearchSession replaces the session table with a new query result. A
// failed query still answers with the session, now carrying the error.
func (h *Handler) SearchSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")

	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, &domain.ValidationError{Field: "body", Message: "corpo da requisição inválido"})
	}

	var (
		session service.Session
		err     error
	)

	criteria, parseErr := domain.NewSearchCriteria(req.Category, req.Code, req.From, req.Till)
	if parseErr != nil {
		session, err = h.sessions.Fail(ctx, id, parseErr)
	} else {
		session, err = h.sessions.Search(ctx, id, criteria)
	}

	if session.ID == "" {
		return h.respondError(c, err)
	}
	if err != nil {
		h.logError(c, err)
		return c.Status(statusFor(err)).JSON(newSessionResponse(session))
	}
	return c.JSON(newSessionResponse(session))
}

func (h *Handler) AddSessionChart(c *fiber.Ctx) error {
	kind, err := chart.ParseKind(c.Params("kind"))
	if err != nil {
		return h.respondError(c, err)
	}

	session, err := h.sessions.AddChart(c.UserContext(), c.Params("id"), kind)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(newSessionResponse(session))
}

func (h *Handler) GetSessionChart(c *fiber.Ctx) error {
	kind, err := chart.ParseKind(c.Params("kind"))
	if err != nil {
		return h.respondError(c, err)
	}

	session, err := h.sessions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	if session.Table == nil {
		return h.respondError(c, domain.ErrNoData)
	}

	return h.sendChart(c, kind, session.Table)
}

func (h *Handler) ResetSession(c *fiber.Ctx) error {
	session, err := h.sessions.Reset(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(newSessionResponse(session))
}

func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Close(c.UserContext(), c.Params("id")); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// sendChart answers with the rendered image, or with the plotted series
// when format=json.
func (h *Handler) sendChart(c *fiber.Ctx, kind chart.Kind, table *domain.HistoryTable) error {
	format := c.Query("format", chart.FormatPNG)
	if format == "json" {
		return c.JSON(chart.SeriesFor(kind, table))
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, kind, table, format); err != nil {
		return h.respondError(c, err)
	}

	contentType := "image/png"
	if format == chart.FormatSVG {
		contentType = "image/svg+xml"
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(buf.Bytes())
}

func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	h.logError(c, err)

	code := statusFor(err)
	resp := ErrorResponse{
		Error:     errorMessage(err),
		Kind:      string(domain.KindOf(err)),
		Code:      code,
		RequestID: getRequestID(c),
		Timestamp: time.Now(),
	}
	if errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, domain.ErrNoData) {
		resp.Kind = ""
	}
	return c.Status(code).JSON(resp)
}

func (h *Handler) logError(c *fiber.Ctx, err error) {
	log := logger.WithContext(c.UserContext())
	fields := []zap.Field{
		zap.String("path", c.Path()),
		zap.String("kind", string(domain.KindOf(err))),
		zap.Error(err),
	}

	if statusFor(err) >= fiber.StatusInternalServerError {
		log.Error("erro ao processar requisição", fields...)
		return
	}
	log.Warn("requisição rejeitada", fields...)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, service.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrNoData):
		return fiber.StatusConflict
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return fiber.StatusBadRequest
	case domain.KindInvalidInstrument:
		return fiber.StatusNotFound
	case domain.KindConnectivity, domain.KindResponse:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, domain.ErrNoData) {
		return err.Error()
	}
	return domain.UserMessage(err)
}
