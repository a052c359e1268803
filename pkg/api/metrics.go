// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsAPI holds Prometheus metrics for the HTTP surface.
type metricsAPI struct {
	once sync.Once

	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

var apiMetrics metricsAPI

func (m *metricsAPI) init() {
	m.once.Do(func() {
		m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codequal_api_requests_total",
			Help: "Peticiones HTTP atendidas",
		}, []string{"method", "status"})

		m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codequal_api_request_seconds",
			Help:    "Duración de peticiones HTTP",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})

		prometheus.MustRegister(m.requests, m.duration)
	})
}

func (m *metricsAPI) observe(method, path string, status int, elapsed time.Duration) {
	// path is deliberately not a label; ids would explode cardinality.
	_ = path
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
}
