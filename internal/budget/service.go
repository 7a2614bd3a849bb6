package budget

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Recorder receives ledger observations for metrics.
type Recorder interface {
	ObserveLedgerMutation(division, operation string, err error)
	ObserveImportRows(division string, processed, skipped, failed int)
}

// Service implements the budget ledger engine shared by every division.
type Service struct {
	repo     Repository
	cache    *SummaryCache
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	schemaMu    sync.Mutex
	schemaReady map[string]bool
}

// NewService constructs the ledger service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		schemaReady: make(map[string]bool),
	}
}

// SetCache attaches the summary cache.
func (s *Service) SetCache(cache *SummaryCache) {
	s.cache = cache
}

// SetRecorder attaches the metrics recorder.
func (s *Service) SetRecorder(recorder Recorder) {
	s.recorder = recorder
}

// Divisions lists the configured divisions.
func (s *Service) Divisions() []Division {
	return Divisions()
}

// EnsureSchema creates the division tables once per process. A failed attempt
// is retried on the next call.
func (s *Service) EnsureSchema(ctx context.Context, div Division) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady[div.Slug] {
		return nil
	}
	if err := div.Validate(); err != nil {
		return err
	}
	if err := s.repo.EnsureSchema(ctx, div); err != nil {
		return err
	}
	s.schemaReady[div.Slug] = true
	return nil
}

// mutate runs fn in one ledger transaction and handles the bookkeeping that
// follows every write.
func (s *Service) mutate(ctx context.Context, div Division, op string, fn func(context.Context, TxRepository) error) error {
	if err := s.EnsureSchema(ctx, div); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, fn)
	if s.recorder != nil {
		s.recorder.ObserveLedgerMutation(div.Slug, op, err)
	}
	if err != nil {
		return err
	}
	if s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx, div); cacheErr != nil {
			s.logger.Warn("invalidate summary cache",
				slog.String("division", div.Slug),
				slog.Any("error", cacheErr))
		}
	}
	return nil
}

// recordHistory appends a history row. Failures are logged and swallowed.
func (s *Service) recordHistory(ctx context.Context, tx TxRepository, div Division, rec HistoryRecord) {
	if err := tx.InsertHistory(ctx, div, rec); err != nil {
		s.logger.Warn("append budget history",
			slog.String("division", div.Slug),
			slog.String("entity_type", string(rec.EntityType)),
			slog.Int64("entity_id", rec.EntityID),
			slog.String("field", rec.FieldChanged),
			slog.Any("error", err))
	}
}

func valueChange(entity EntityType, id int64, field, oldValue, newValue, actor string, at time.Time) HistoryRecord {
	return HistoryRecord{
		EntityType:   entity,
		EntityID:     id,
		FieldChanged: field,
		OldValue:     &oldValue,
		NewValue:     &newValue,
		ChangedBy:    actor,
		ChangedAt:    at,
	}
}

// deletion logs the full prior row as JSON with no new value.
func deletion(entity EntityType, id int64, prior any, actor string, at time.Time) HistoryRecord {
	rec := HistoryRecord{
		EntityType:   entity,
		EntityID:     id,
		FieldChanged: FieldDeleted,
		ChangedBy:    actor,
		ChangedAt:    at,
	}
	if raw, err := json.Marshal(prior); err == nil {
		old := string(raw)
		rec.OldValue = &old
	}
	return rec
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
