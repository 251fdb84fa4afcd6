package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeovahfialho/moex-history/internal/chart"
	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/internal/storage/cache"
	"github.com/jeovahfialho/moex-history/pkg/logger"
	"github.com/jeovahfialho/moex-history/pkg/metrics"
)

var ErrSessionNotFound = errors.New("sessão não encontrada")

type SessionError struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Session is everything one user has on screen: the last criteria, the
// table it produced (or the error it failed with) and the charts opened
// from that table. Transitions return a new value and leave the receiver
// untouched.
type Session struct {
	ID        string                 `json:"id"`
	Criteria  *domain.SearchCriteria `json:"criteria,omitempty"`
	Table     *domain.HistoryTable   `json:"table,omitempty"`
	Charts    []chart.Kind           `json:"charts"`
	Error     *SessionError          `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		Charts:    []chart.Kind{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithResult replaces the table; charts of the previous table are closed.
func (s Session) WithResult(c domain.SearchCriteria, table *domain.HistoryTable, now time.Time) Session {
	s.Criteria = &c
	s.Table = table
	s.Charts = []chart.Kind{}
	s.Error = nil
	s.UpdatedAt = now
	return s
}

// WithError clears the table and its charts and records the failure.
func (s Session) WithError(c *domain.SearchCriteria, err error, now time.Time) Session {
	s.Criteria = c
	s.Table = nil
	s.Charts = []chart.Kind{}
	s.Error = &SessionError{Kind: domain.KindOf(err), Message: domain.UserMessage(err)}
	s.UpdatedAt = now
	return s
}

// WithChart opens a chart of the current table. Opening the same kind
// twice is a no-op.
func (s Session) WithChart(kind chart.Kind, now time.Time) (Session, error) {
	if s.Table == nil {
		return s, domain.ErrNoData
	}

	for _, k := range s.Charts {
		if k == kind {
			return s, nil
		}
	}

	charts := make([]chart.Kind, 0, len(s.Charts)+1)
	charts = append(charts, s.Charts...)
	s.Charts = append(charts, kind)
	s.UpdatedAt = now
	return s, nil
}

// Reset clears criteria, table, charts and error, keeping the id.
func (s Session) Reset(now time.Time) Session {
	cleared := NewSession(s.ID, s.CreatedAt)
	cleared.UpdatedAt = now
	return cleared
}

// KeyValueStore is what sessions are persisted in: Redis when configured,
// an in-process cache otherwise.
type KeyValueStore interface {
	Name() string
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error
	Delete(ctx context.Context, key string) error
}

type SessionStore struct {
	store KeyValueStore
}

func NewSessionStore(store KeyValueStore) *SessionStore {
	return &SessionStore{store: store}
}

func (s *SessionStore) Load(ctx context.Context, id string) (Session, error) {
	var session Session
	err := s.store.Get(ctx, id, &session)
	metrics.RecordSessionOperation("load", ignoreNotFound(err))

	if errors.Is(err, cache.ErrNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("erro ao carregar sessão: %w", err)
	}
	return session, nil
}

func (s *SessionStore) Save(ctx context.Context, session Session) error {
	err := s.store.Set(ctx, session.ID, session)
	metrics.RecordSessionOperation("save", err)
	if err != nil {
		return fmt.Errorf("erro ao salvar sessão: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	metrics.RecordSessionOperation("delete", err)
	if err != nil {
		return fmt.Errorf("erro ao remover sessão: %w", err)
	}
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}

type SessionService struct {
	history *HistoryService
	store   *SessionStore
	now     func() time.Time
}

func NewSessionService(history *HistoryService, store *SessionStore) *SessionService {
	return &SessionService{
		history: history,
		store:   store,
		now:     time.Now,
	}
}

func (s *SessionService) Create(ctx context.Context) (Session, error) {
	session := NewSession(uuid.NewString(), s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return Session{}, err
	}

	logger.WithContext(ctx).Debug("sessão criada", zap.String("session_id", session.ID))
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (Session, error) {
	return s.store.Load(ctx, id)
}

// Search runs a query inside a session. The returned session always
// reflects the outcome; err is the query error, if any, so callers can
// map it to a status.
func (s *SessionService) Search(ctx context.Context, id string, c domain.SearchCriteria) (Session, error) {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	table, queryErr := s.history.Search(ctx, c)
	if queryErr != nil {
		session = session.WithError(&c, queryErr, s.now())
	} else {
		session = session.WithResult(c, table, s.now())
	}

	if err := s.store.Save(ctx, session); err != nil {
		return Session{}, err
	}
	return session, queryErr
}

// Fail records an error that happened before a query could start, such as
// unparseable input.
func (s *SessionService) Fail(ctx context.Context, id string, cause error) (Session, error) {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	session = session.WithError(nil, cause, s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return Session{}, err
	}
	return session, cause
}

func (s *SessionService) AddChart(ctx context.Context, id string, kind chart.Kind) (Session, error) {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	session, err = session.WithChart(kind, s.now())
	if err != nil {
		return session, err
	}

	if err := s.store.Save(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Chart renders a chart of the session table into w.
func (s *SessionService) Chart(ctx context.Context, id string, kind chart.Kind, format string, w io.Writer) error {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if session.Table == nil {
		return domain.ErrNoData
	}
	return chart.Render(w, kind, session.Table, format)
}

func (s *SessionService) Reset(ctx context.Context, id string) (Session, error) {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	session = session.Reset(s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Close drops the session from the store.
func (s *SessionService) Close(ctx context.Context, id string) error {
	if _, err := s.store.Load(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}
