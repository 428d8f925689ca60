package constraints_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vitalproof/internal/constraints"
	"vitalproof/internal/constraints/store"
	"vitalproof/internal/environment"
	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/requestcontext"
)

// contextSource mimics the resolver's Get: unknown or stale ids are expired.
type contextSource struct {
	mu       sync.Mutex
	contexts map[uuid.UUID]*environment.Context
}

func (c *contextSource) Get(ctx context.Context, id uuid.UUID) (*environment.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	env, ok := c.contexts[id]
	if !ok || !env.IsFreshAt(requestcontext.Now(ctx), c.Staleness()) {
		return nil, dErrors.New(dErrors.CodeContextExpired, "environmental context not found or expired")
	}
	return env, nil
}

func (c *contextSource) Staleness() time.Duration { return time.Hour }

type DeriveSuite struct {
	suite.Suite
	now      time.Time
	denver   *environment.Context
	contexts *contextSource
	store    *store.InMemoryStore
	service  *constraints.Service
}

func TestDeriveSuite(t *testing.T) {
	suite.Run(t, new(DeriveSuite))
}

func (s *DeriveSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	denver, err := environment.NewContext(uuid.New(), 39.7392, -104.9903,
		environment.Readings{AltitudeMeters: 1609, TemperatureC: 15, HumidityPct: 30, PressureHPa: 835}, s.now)
	s.Require().NoError(err)
	s.denver = denver
	s.contexts = &contextSource{contexts: map[uuid.UUID]*environment.Context{denver.ID: denver}}
	s.store = store.NewInMemoryStore()
	s.service = constraints.NewService(constraints.DefaultPolicy(), s.contexts, s.store)
}

func (s *DeriveSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *DeriveSuite) TestDeriveConstraints() {
	s.Run("records a set tied to the context", func() {
		s.SetupTest()
		set, err := s.service.DeriveConstraints(s.ctxAt(s.now.Add(time.Minute)), "user-1", "oxygen_saturation", s.denver.ID, nil)
		s.Require().NoError(err)

		s.Equal(93.0, set.MinValue)
		s.Equal(99.0, set.MaxValue)
		s.True(set.EnvironmentallyAdjusted)
		s.Equal(s.denver.ID, set.DerivedFromContextID)
		s.Equal(s.denver.Hash, set.ContextHash)
		s.Equal(s.now.Add(time.Minute), set.ValidFrom)
		s.Equal(s.now.Add(time.Hour), set.ValidUntil)

		active, err := s.service.Active(s.ctxAt(s.now), "user-1", "oxygen_saturation")
		s.Require().NoError(err)
		s.Equal(set.ID, active.ID)
	})

	s.Run("empty demographics are treated as absent", func() {
		s.SetupTest()
		set, err := s.service.DeriveConstraints(s.ctxAt(s.now), "user-1", "heart_rate", s.denver.ID, &constraints.Demographics{})
		s.Require().NoError(err)
		s.Nil(set.Demographics)
	})

	s.Run("unsupported metric", func() {
		s.SetupTest()
		_, err := s.service.DeriveConstraints(s.ctxAt(s.now), "user-1", "glucose", s.denver.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedMetric))
	})

	s.Run("stale context refuses to derive", func() {
		s.SetupTest()
		_, err := s.service.DeriveConstraints(s.ctxAt(s.now.Add(2*time.Hour)), "user-1", "oxygen_saturation", s.denver.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeContextExpired))

		history, err := s.service.History(s.ctxAt(s.now), "user-1", "oxygen_saturation")
		s.Require().NoError(err)
		s.Empty(history, "no set is created after a failed lookup")
	})

	s.Run("missing context refuses to derive", func() {
		s.SetupTest()
		_, err := s.service.DeriveConstraints(s.ctxAt(s.now), "user-1", "oxygen_saturation", uuid.New(), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeContextExpired))
	})

	s.Run("anonymous caller is rejected", func() {
		s.SetupTest()
		_, err := s.service.DeriveConstraints(s.ctxAt(s.now), "", "oxygen_saturation", s.denver.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *DeriveSuite) TestValidFromStrictlyIncreases() {
	s.Run("with a frozen clock", func() {
		s.SetupTest()
		ctx := s.ctxAt(s.now)
		var previous time.Time
		for range 5 {
			set, err := s.service.DeriveConstraints(ctx, "user-1", "oxygen_saturation", s.denver.ID, nil)
			s.Require().NoError(err)
			s.True(set.ValidFrom.After(previous))
			previous = set.ValidFrom
		}
	})

	s.Run("with concurrent writers", func() {
		s.SetupTest()
		ctx := s.ctxAt(s.now)
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.service.DeriveConstraints(ctx, "user-1", "oxygen_saturation", s.denver.ID, nil)
				s.NoError(err)
			}()
		}
		wg.Wait()

		history, err := s.service.History(ctx, "user-1", "oxygen_saturation")
		s.Require().NoError(err)
		s.Len(history, 20)
		seen := map[time.Time]bool{}
		for i, set := range history {
			s.False(seen[set.ValidFrom], "duplicate validFrom")
			seen[set.ValidFrom] = true
			if i > 0 {
				s.True(set.ValidFrom.After(history[i-1].ValidFrom))
			}
		}
	})
}

func (s *DeriveSuite) TestGetIsOwnerScoped() {
	s.SetupTest()
	set, err := s.service.DeriveConstraints(s.ctxAt(s.now), "user-1", "heart_rate", s.denver.ID, nil)
	s.Require().NoError(err)

	got, err := s.service.Get(context.Background(), "user-1", set.ID)
	s.Require().NoError(err)
	s.Equal(set.ID, got.ID)

	_, err = s.service.Get(context.Background(), "user-2", set.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Lookup(context.Background(), uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Active(context.Background(), "user-2", "heart_rate")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
