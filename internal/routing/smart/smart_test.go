package smart_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/routing/smart"
)

func TestSelectBest_PrefersHigherSuccessRate(t *testing.T) {
	s := smart.NewSelector([]string{"good", "bad"})

	for i := 0; i < 10; i++ {
		s.RecordResult("good", true, 10*time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		s.RecordResult("bad", i%2 == 0, 10*time.Millisecond)
	}

	require.Equal(t, "good", s.SelectBest(nil))
	require.Equal(t, smart.HealthHealthy, s.Health("good"))
}

func TestSelectBest_ExcludesUnhealthy(t *testing.T) {
	s := smart.NewSelector([]string{"flaky"})
	for i := 0; i < 10; i++ {
		s.RecordResult("flaky", false, 0)
	}
	require.Equal(t, smart.HealthUnhealthy, s.Health("flaky"))
	require.Empty(t, s.SelectBest(nil))
}

func TestSelectBest_ExcludeSetNarrowsCandidates(t *testing.T) {
	s := smart.NewSelector([]string{"a", "b"})
	s.RecordResult("a", true, time.Millisecond)
	s.RecordResult("b", true, time.Millisecond)

	best := s.SelectBest(map[string]struct{}{"a": {}})
	require.Equal(t, "b", best)
}

func TestHealth_UnknownForUntracked(t *testing.T) {
	s := smart.NewSelector(nil)
	require.Equal(t, smart.HealthUnknown, s.Health("nope"))
}

func TestHealth_DegradedWhenLatencyExceedsCeilingDespiteHighSuccessRate(t *testing.T) {
	s := smart.NewSelector([]string{"slow"})
	for i := 0; i < 10; i++ {
		s.RecordResult("slow", true, 6*time.Second)
	}
	require.Equal(t, smart.HealthDegraded, s.Health("slow"))
}

func TestSelectBest_EnableHealthRoutingFalseKeepsUnhealthyEligible(t *testing.T) {
	s := smart.NewSelectorWithOptions([]string{"flaky", "ok"}, smart.Options{EnableLatencyRouting: true})
	for i := 0; i < 10; i++ {
		s.RecordResult("flaky", false, time.Millisecond)
	}
	// "ok" is never recorded, so it stays Unknown (score 0.1); "flaky" is
	// Unhealthy (score 0) but remains a candidate since health routing is
	// disabled, and still loses to "ok" on score.
	require.Equal(t, "ok", s.SelectBest(nil))
}

func TestSelectBest_BelowMinMeasurementsScoresNeutral(t *testing.T) {
	s := smart.NewSelectorWithOptions([]string{"new", "proven"}, smart.Options{
		EnableHealthRouting:  true,
		EnableLatencyRouting: true,
		MinMeasurements:      5,
	})
	// "new" has a single sample, below MinMeasurements, so it scores a
	// neutral 0.5 regardless of its (perfect) outcome.
	s.RecordResult("new", true, time.Millisecond)
	// "proven" has 10 samples (>= MinMeasurements): successRate 0.5,
	// avgLatency 5s -> Degraded, score (0.5 + 1/6)/2 halved ~= 0.167,
	// well below the neutral floor.
	for i := 0; i < 10; i++ {
		s.RecordResult("proven", i%2 == 0, 5*time.Second)
	}
	require.Equal(t, "new", s.SelectBest(nil))
}
