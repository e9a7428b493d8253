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

package metrics

import "github.com/prometheus/client_golang/prometheus"

// promCollectors exports the Registry's counters to Prometheus via a
// custom collector, so scrapes always read the live atomic values rather
// than a separately-maintained duplicate set of prometheus.Counter calls.
type promCollectors struct {
	reg *Registry

	totalConnections  *prometheus.Desc
	activeConnections *prometheus.Desc
	bytesIn           *prometheus.Desc
	bytesOut          *prometheus.Desc
	authAttempts      *prometheus.Desc
	authSuccesses     *prometheus.Desc
	blockedRequests   *prometheus.Desc
}

func newPromCollectors(registerer prometheus.Registerer, r *Registry) *promCollectors {
	c := &promCollectors{
		reg:               r,
		totalConnections:  prometheus.NewDesc("socks5gw_connections_total", "Total connections accepted.", nil, nil),
		activeConnections: prometheus.NewDesc("socks5gw_connections_active", "Currently active connections.", nil, nil),
		bytesIn:           prometheus.NewDesc("socks5gw_bytes_in_total", "Total bytes received from clients.", nil, nil),
		bytesOut:          prometheus.NewDesc("socks5gw_bytes_out_total", "Total bytes sent to clients.", nil, nil),
		authAttempts:      prometheus.NewDesc("socks5gw_auth_attempts_total", "Total authentication attempts.", nil, nil),
		authSuccesses:     prometheus.NewDesc("socks5gw_auth_successes_total", "Total successful authentications.", nil, nil),
		blockedRequests:   prometheus.NewDesc("socks5gw_blocked_requests_total", "Total requests blocked by admission control.", nil, nil),
	}
	if registerer != nil {
		registerer.MustRegister(c)
	}
	return c
}

func (c *promCollectors) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConnections
	ch <- c.activeConnections
	ch <- c.bytesIn
	ch <- c.bytesOut
	ch <- c.authAttempts
	ch <- c.authSuccesses
	ch <- c.blockedRequests
}

func (c *promCollectors) Collect(ch chan<- prometheus.Metric) {
	s := c.reg.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.totalConnections, prometheus.CounterValue, float64(s.TotalConnections))
	ch <- prometheus.MustNewConstMetric(c.activeConnections, prometheus.GaugeValue, float64(s.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.bytesIn, prometheus.CounterValue, float64(s.TotalBytesIn))
	ch <- prometheus.MustNewConstMetric(c.bytesOut, prometheus.CounterValue, float64(s.TotalBytesOut))
	ch <- prometheus.MustNewConstMetric(c.authAttempts, prometheus.CounterValue, float64(s.AuthAttempts))
	ch <- prometheus.MustNewConstMetric(c.authSuccesses, prometheus.CounterValue, float64(s.AuthSuccesses))
	ch <- prometheus.MustNewConstMetric(c.blockedRequests, prometheus.CounterValue, float64(s.BlockedRequests))
}
