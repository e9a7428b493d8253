/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package smart implements the upstream health/latency scorer: a rolling
// window of probe results per upstream, a health classification, and a
// selection function that picks the best-scoring healthy upstream.
package smart

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health is the derived status of an upstream.
type Health uint8

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

const windowSize = 10

// healthyLatencyCeiling is the avgLatency above which an otherwise
// high-success-rate upstream is held back from Healthy.
const healthyLatencyCeiling = 5 * time.Second

// Options gates the routing knobs a Selector is built with.
type Options struct {
	// EnableHealthRouting, when true, excludes Unhealthy upstreams from
	// SelectBest entirely. When false, Unhealthy upstreams remain eligible
	// (still scored last, since their score is lowest).
	EnableHealthRouting bool
	// EnableLatencyRouting, when true, factors average latency into the
	// score. When false, only success rate drives scoring. The Healthy
	// classification applies healthyLatencyCeiling either way.
	EnableLatencyRouting bool
	// MinMeasurements is the sample count below which an upstream's score
	// is held at a neutral 0.5 instead of its computed value, so a newly
	// tracked upstream isn't penalized or favored before enough probes
	// have run.
	MinMeasurements int
}

// DefaultOptions enables both health and latency routing with no minimum
// sample floor.
func DefaultOptions() Options {
	return Options{EnableHealthRouting: true, EnableLatencyRouting: true}
}

// ProxyMetrics is the rolling window of recent probe/usage results for one
// upstream.
type ProxyMetrics struct {
	mu sync.Mutex

	latencies []time.Duration // most recent windowSize samples
	results   []bool          // true = success, most recent windowSize flags
}

func newProxyMetrics() *ProxyMetrics {
	return &ProxyMetrics{}
}

func (m *ProxyMetrics) recordResult(success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results = append(m.results, success)
	if len(m.results) > windowSize {
		m.results = m.results[len(m.results)-windowSize:]
	}
	if success {
		m.latencies = append(m.latencies, latency)
		if len(m.latencies) > windowSize {
			m.latencies = m.latencies[len(m.latencies)-windowSize:]
		}
	}
}

func (m *ProxyMetrics) snapshot() (successRate float64, avgLatency time.Duration, samples int, health Health) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples = len(m.results)
	if samples == 0 {
		return 0, 0, 0, HealthUnknown
	}

	var ok int
	for _, r := range m.results {
		if r {
			ok++
		}
	}
	successRate = float64(ok) / float64(samples)

	if len(m.latencies) > 0 {
		var sum time.Duration
		for _, l := range m.latencies {
			sum += l
		}
		avgLatency = sum / time.Duration(len(m.latencies))
	}

	switch {
	case successRate >= 0.8 && avgLatency <= healthyLatencyCeiling:
		health = HealthHealthy
	case successRate < 0.5:
		health = HealthUnhealthy
	default:
		health = HealthDegraded
	}
	return
}

// score combines success rate and latency into a single comparable value in
// [0, 1]; higher is better. Unhealthy upstreams score 0; Unknown upstreams
// (zero samples) score 0.1 so a tracked-but-never-probed upstream still
// ranks below any proxy with at least one real result. When latency
// routing is enabled, upstreams below minMeasurements samples score a
// neutral 0.5 instead of their computed value, so a freshly tracked
// upstream is neither favored nor penalized before enough probes have run.
func score(successRate float64, avgLatency time.Duration, samples int, health Health, opts Options) float64 {
	if samples == 0 {
		return 0.1
	}
	if health == HealthUnhealthy {
		return 0
	}
	if opts.EnableLatencyRouting && samples < opts.MinMeasurements {
		return 0.5
	}

	latencyTerm := 1.0
	if opts.EnableLatencyRouting {
		latencyTerm = 1 / (1 + avgLatency.Seconds())
	}
	s := (successRate + latencyTerm) / 2
	if health == HealthDegraded {
		s /= 2
	}
	return s
}

// Selector tracks metrics for a fixed set of upstream ids and periodically
// probes each one.
type Selector struct {
	mu      sync.RWMutex
	metrics map[string]*ProxyMetrics

	opts          Options
	probeInterval time.Duration
	probeTimeout  time.Duration
	dialer        *net.Dialer
}

// NewSelector builds a Selector for upstreams using DefaultOptions, with
// probe defaults of a 30s interval and a 5s per-probe timeout.
func NewSelector(upstreams []string) *Selector {
	return NewSelectorWithOptions(upstreams, DefaultOptions())
}

// NewSelectorWithOptions builds a Selector gated by the given routing
// options.
func NewSelectorWithOptions(upstreams []string, opts Options) *Selector {
	s := &Selector{
		metrics:       make(map[string]*ProxyMetrics, len(upstreams)),
		opts:          opts,
		probeInterval: 30 * time.Second,
		probeTimeout:  5 * time.Second,
		dialer:        &net.Dialer{},
	}
	for _, id := range upstreams {
		s.metrics[id] = newProxyMetrics()
	}
	return s
}

// RecordResult feeds a real connection attempt's outcome back into the
// rolling window, alongside probe results.
func (s *Selector) RecordResult(upstream string, success bool, latency time.Duration) {
	s.mu.RLock()
	m, ok := s.metrics[upstream]
	s.mu.RUnlock()
	if !ok {
		return
	}
	m.recordResult(success, latency)
}

// Health returns the derived health of an upstream, or HealthUnknown if it
// is not tracked.
func (s *Selector) Health(upstream string) Health {
	s.mu.RLock()
	m, ok := s.metrics[upstream]
	s.mu.RUnlock()
	if !ok {
		return HealthUnknown
	}
	_, _, _, h := m.snapshot()
	return h
}

// candidate pairs an upstream id with its current score, for sorting.
type candidate struct {
	id    string
	score float64
}

// SelectBest returns the highest-scoring upstream not present in exclude,
// or "" if every tracked upstream is excluded.
func (s *Selector) SelectBest(exclude map[string]struct{}) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []candidate
	for id, m := range s.metrics {
		if _, skip := exclude[id]; skip {
			continue
		}
		rate, lat, samples, health := m.snapshot()
		if health == HealthUnhealthy && s.opts.EnableHealthRouting {
			continue
		}
		candidates = append(candidates, candidate{id: id, score: score(rate, lat, samples, health, s.opts)})
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return candidates[0].id
}

// probeAddrs maps upstream ids to the host:port address the probe should
// dial. AddrFor adapts an external upstream registry to this.
type AddrFor func(upstream string) (address string, ok bool)

// RunProbes dials every tracked upstream once, concurrently, recording
// success/failure and latency. It returns when every probe has completed
// or ctx is done.
func (s *Selector) RunProbes(ctx context.Context, addrFor AddrFor) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.metrics))
	for id := range s.metrics {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			addr, ok := addrFor(id)
			if !ok {
				return nil
			}
			probeCtx, cancel := context.WithTimeout(gctx, s.probeTimeout)
			defer cancel()

			start := time.Now()
			conn, err := s.dialer.DialContext(probeCtx, "tcp", addr)
			latency := time.Since(start)
			if err != nil {
				s.RecordResult(id, false, latency)
				return nil
			}
			_ = conn.Close()
			s.RecordResult(id, true, latency)
			return nil
		})
	}
	return g.Wait()
}

// ProbeInterval reports the configured interval between probe rounds.
func (s *Selector) ProbeInterval() time.Duration { return s.probeInterval }
