package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/planward/planward/internal/planning/domain"
	"github.com/planward/planward/pkg/observability"
)

// CalendarSource provides busy/free information for the planning window.
type CalendarSource interface {
	Events(ctx context.Context, window domain.TimeRange) ([]domain.CalendarEvent, error)
}

// TaskSource provides the upstream task list.
type TaskSource interface {
	Tasks(ctx context.Context) ([]domain.ExternalTask, error)
}

// WeatherSource provides current weather conditions.
type WeatherSource interface {
	Current(ctx context.Context) (*domain.WeatherConditions, error)
}

// FingerprintCache remembers the fingerprint of the last snapshot that was
// planned, so unchanged external state does not trigger a replan.
type FingerprintCache interface {
	LastFingerprint(ctx context.Context) (string, error)
	StoreFingerprint(ctx context.Context, fingerprint string) error
}

// Service gathers external state from all configured sources into a
// point-in-time snapshot. A failing source degrades the snapshot instead of
// aborting the run; only the loss of every source is an error.
type Service struct {
	calendar CalendarSource
	tasks    TaskSource
	weather  WeatherSource
	cache    FingerprintCache
	timeout  time.Duration
	logger   *slog.Logger
	metrics  observability.Metrics
}

// Option configures the collector service.
type Option func(*Service)

// WithCache enables snapshot fingerprint caching.
func WithCache(cache FingerprintCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithTimeout bounds one collection cycle.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.timeout = timeout }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates a collector over the given sources. A nil source is
// treated as unconfigured and skipped.
func NewService(calendar CalendarSource, tasks TaskSource, weather WeatherSource, opts ...Option) *Service {
	s := &Service{
		calendar: calendar,
		tasks:    tasks,
		weather:  weather,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collect queries all configured sources concurrently and assembles a
// snapshot for the given window. Source failures are recorded as stale
// source state; the snapshot still carries whatever was gathered. When
// every configured source fails, Collect returns the joined errors.
func (s *Service) Collect(ctx context.Context, window domain.TimeRange) (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	timer := observability.StartTimer("collector.collect").
		WithLogger(s.logger).
		WithMetrics(s.metrics)

	var (
		wg      sync.WaitGroup
		events  []domain.CalendarEvent
		tasks   []domain.ExternalTask
		weather *domain.WeatherConditions

		calendarErr error
		tasksErr    error
		weatherErr  error
	)

	if s.calendar != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, calendarErr = s.calendar.Events(ctx, window)
		}()
	}
	if s.tasks != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, tasksErr = s.tasks.Tasks(ctx)
		}()
	}
	if s.weather != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			weather, weatherErr = s.weather.Current(ctx)
		}()
	}
	wg.Wait()

	sources := make(map[domain.Source]domain.SourceState)
	var failures []error

	record := func(src domain.Source, err error) {
		if err != nil {
			sources[src] = domain.SourceState{Fresh: false, Error: err.Error()}
			failures = append(failures, &domain.SourceUnavailableError{Source: src, Err: err})
			s.metrics.Counter(observability.MetricSourceFailures, 1, observability.T("source", string(src)))
			s.logger.Warn("source unavailable",
				"source", string(src),
				"error", err,
			)
			return
		}
		sources[src] = domain.SourceState{Fresh: true}
	}

	configured := 0
	if s.calendar != nil {
		configured++
		record(domain.SourceCalendar, calendarErr)
	}
	if s.tasks != nil {
		configured++
		record(domain.SourceTasks, tasksErr)
	}
	if s.weather != nil {
		configured++
		record(domain.SourceWeather, weatherErr)
	}

	if configured > 0 && len(failures) == configured {
		err := errors.Join(failures...)
		timer.StopWithError(err)
		return nil, err
	}

	snapshot := domain.NewSnapshot(window, events, tasks, weather, sources)
	s.metrics.Counter(observability.MetricSnapshotsTaken, 1)
	timer.Stop()

	s.logger.Info("snapshot taken",
		"events", len(events),
		"tasks", len(tasks),
		"weather", weather != nil,
		"stale_sources", len(snapshot.StaleSources()),
	)

	return snapshot, nil
}

// Changed reports whether the snapshot differs from the last planned one.
// Without a cache every snapshot counts as changed. Cache failures degrade
// to "changed" so a broken cache never suppresses planning.
func (s *Service) Changed(ctx context.Context, snapshot *domain.Snapshot) bool {
	if s.cache == nil {
		return true
	}

	last, err := s.cache.LastFingerprint(ctx)
	if err != nil {
		s.logger.Warn("fingerprint cache read failed", "error", err)
		return true
	}
	if last != "" && last == snapshot.Fingerprint() {
		s.metrics.Counter(observability.MetricSnapshotsCached, 1)
		return false
	}
	return true
}

// Remember stores the snapshot fingerprint after a successful planning run.
func (s *Service) Remember(ctx context.Context, snapshot *domain.Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.StoreFingerprint(ctx, snapshot.Fingerprint()); err != nil {
		s.logger.Warn("fingerprint cache write failed", "error", err)
	}
}
