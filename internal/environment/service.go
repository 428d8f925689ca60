package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"vitalproof/internal/environment/providers"
	"vitalproof/internal/platform/metrics"
	dErrors "vitalproof/pkg/domain-errors"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/platform/circuit"
	"vitalproof/pkg/platform/retry"
	"vitalproof/pkg/platform/sentinel"
	"vitalproof/pkg/requestcontext"
)

// ContextStore is the authoritative record of resolved contexts.
type ContextStore interface {
	Save(ctx context.Context, c *Context) error
	FindByID(ctx context.Context, id uuid.UUID) (*Context, error)
	FindByHash(ctx context.Context, hash string) (*Context, error)
}

// Cache is a best-effort lookaside keyed by CacheKey. Misses return sentinel.ErrNotFound.
type Cache interface {
	Get(ctx context.Context, key string) (*Context, error)
	Set(ctx context.Context, key string, c *Context, ttl time.Duration) error
}

// OpsTracker receives non-blocking operational audit events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.Event)
}

var tracer = otel.Tracer("vitalproof/environment")

// Service resolves coordinates into environmental contexts.
type Service struct {
	weather   providers.WeatherProvider
	elevation providers.ElevationProvider
	store     ContextStore
	cache     Cache

	weatherBreaker   *circuit.Breaker
	elevationBreaker *circuit.Breaker
	retryPolicy      retry.Policy
	staleness        time.Duration
	bucket           time.Duration
	group            singleflight.Group

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracker OpsTracker
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) { s.tracker = t }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.retryPolicy = p }
}

// WithStaleness sets how long a resolved context may be reused.
func WithStaleness(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleness = d
		}
	}
}

// WithCacheBucket sets the time window component of the cache key.
func WithCacheBucket(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.bucket = d
		}
	}
}

// WithBreakers replaces the default per-provider circuit breakers.
func WithBreakers(weather, elevation *circuit.Breaker) Option {
	return func(s *Service) {
		if weather != nil {
			s.weatherBreaker = weather
		}
		if elevation != nil {
			s.elevationBreaker = elevation
		}
	}
}

func NewService(weather providers.WeatherProvider, elevation providers.ElevationProvider, store ContextStore, cache Cache, opts ...Option) *Service {
	s := &Service{
		weather:          weather,
		elevation:        elevation,
		store:            store,
		cache:            cache,
		weatherBreaker:   circuit.New(weather.ID()),
		elevationBreaker: circuit.New(elevation.ID()),
		retryPolicy:      retry.DefaultPolicy(),
		staleness:        time.Hour,
		bucket:           time.Hour,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Staleness is the reuse window applied by Get.
func (s *Service) Staleness() time.Duration {
	return s.staleness
}

// Resolve returns a fresh context for the coordinate, reusing a cached one
// from the same bucket when possible. Upstream failure never produces a context.
func (s *Service) Resolve(ctx context.Context, lat, lon float64) (*Context, error) {
	if err := ValidateCoordinate(lat, lon); err != nil {
		s.metrics.IncrementResolution("invalid_coordinate")
		return nil, err
	}
	now := requestcontext.Now(ctx)
	key := CacheKey(lat, lon, now, s.bucket)

	if cached := s.lookup(ctx, key, now); cached != nil {
		return cached, nil
	}

	// The shared lookup outlives any single caller; each caller waits on its own ctx.
	ch := s.group.DoChan(key, func() (any, error) {
		sharedCtx, cancel := s.detach(ctx)
		defer cancel()
		return s.resolveUpstream(sharedCtx, key, lat, lon, now)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			s.metrics.IncrementResolution("upstream_unavailable")
			return nil, res.Err
		}
		resolved := *res.Val.(*Context)
		s.metrics.IncrementResolution("resolved")
		return &resolved, nil
	case <-ctx.Done():
		s.metrics.IncrementResolution("abandoned")
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUpstreamUnavailable, "environment lookup abandoned")
	}
}

// detach keeps ctx values but drops its cancellation, bounding the result by
// the retry budget instead.
func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	shared := context.WithoutCancel(ctx)
	if budget := s.retryPolicy.Budget(); budget > 0 {
		return context.WithTimeout(shared, budget)
	}
	return context.WithCancel(shared)
}

func (s *Service) lookup(ctx context.Context, key string, now time.Time) *Context {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil && cached.IsFreshAt(now, s.staleness):
		s.metrics.IncrementCache("hit")
		return cached
	case err == nil, errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncrementCache("miss")
	default:
		s.metrics.IncrementCache("error")
		s.logger.WarnContext(ctx, "environment cache lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	return nil
}

func (s *Service) resolveUpstream(ctx context.Context, key string, lat, lon float64, now time.Time) (*Context, error) {
	var (
		weather   providers.Weather
		elevation float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := callProvider(gctx, s, s.weather.ID(), s.weatherBreaker, func(ctx context.Context) (providers.Weather, error) {
			return s.weather.Weather(ctx, lat, lon)
		})
		weather = w
		return err
	})
	g.Go(func() error {
		e, err := callProvider(gctx, s, s.elevation.ID(), s.elevationBreaker, func(ctx context.Context) (float64, error) {
			return s.elevation.Elevation(ctx, lat, lon)
		})
		elevation = e
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolved, err := NewContext(uuid.New(), lat, lon, Readings{
		AltitudeMeters: elevation,
		TemperatureC:   weather.TemperatureC,
		HumidityPct:    weather.HumidityPct,
		PressureHPa:    weather.PressureHPa,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, resolved); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save environmental context")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resolved, s.bucket); err != nil {
			s.logger.WarnContext(ctx, "environment cache write failed",
				"request_id", requestcontext.RequestID(ctx),
				"context_id", resolved.ID,
				"error", err,
			)
		}
	}

	s.logger.InfoContext(ctx, "environmental context resolved",
		"request_id", requestcontext.RequestID(ctx),
		"context_id", resolved.ID,
		"altitude_m", resolved.AltitudeMeters,
		"temperature_c", resolved.TemperatureC,
	)
	if s.tracker != nil {
		s.tracker.Track(ctx, audit.Event{
			Timestamp: now,
			UserID:    requestcontext.UserID(ctx),
			Subject:   resolved.ID.String(),
			Action:    string(audit.EventContextResolved),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return resolved, nil
}

// callProvider runs one upstream lookup under the breaker and retry budget.
// Every failure surfaces as UpstreamUnavailable naming the provider.
func callProvider[T any](ctx context.Context, s *Service, providerID string, breaker *circuit.Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, span := tracer.Start(ctx, "environment.upstream", trace.WithAttributes(attribute.String("provider", providerID)))
	defer span.End()

	if !breaker.Allow() {
		span.SetStatus(codes.Error, "circuit open")
		s.metrics.ObserveUpstream(providerID, "circuit_open", 0)
		return zero, dErrors.New(dErrors.CodeUpstreamUnavailable, fmt.Sprintf("%s provider unavailable: circuit open", providerID))
	}

	start := time.Now()
	var result T
	err := retry.Do(ctx, s.retryPolicy, providers.IsRetryable, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil && ctx.Err() != nil {
		// Cancelled by the caller or by the sibling lookup failing; not the provider's fault.
		return zero, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, fmt.Sprintf("%s lookup cancelled", providerID))
	}
	if err != nil {
		if _, change := breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "upstream circuit opened", "provider", providerID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(providers.GetCategory(err)))
		s.metrics.ObserveUpstream(providerID, "error", time.Since(start))
		s.logger.ErrorContext(ctx, "upstream provider failed",
			"request_id", requestcontext.RequestID(ctx),
			"provider", providerID,
			"category", providers.GetCategory(err),
			"error", err,
		)
		return zero, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, fmt.Sprintf("%s provider unavailable", providerID))
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "upstream circuit closed", "provider", providerID)
	}
	s.metrics.ObserveUpstream(providerID, "ok", time.Since(start))
	return result, nil
}

// Get returns a context by id, refusing one past its staleness window.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Context, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeContextExpired, "environmental context not found or expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load environmental context")
	}
	if !c.IsFreshAt(requestcontext.Now(ctx), s.staleness) {
		return nil, dErrors.New(dErrors.CodeContextExpired, "environmental context is stale; resolve again")
	}
	return c, nil
}

// FindByHash returns a context by content hash without a staleness check.
// Verification uses it long after the context has gone stale.
func (s *Service) FindByHash(ctx context.Context, hash string) (*Context, error) {
	c, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "environmental context not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load environmental context")
	}
	return c, nil
}
