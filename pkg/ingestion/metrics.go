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

package ingestion

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for the ingestion subsystem.
type metricsIngestion struct {
	once sync.Once

	filesDiscovered  prometheus.Counter
	parseErrors      prometheus.Counter
	symbolsExtracted prometheus.Counter

	parseDuration   prometheus.Histogram
	persistDuration prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.filesDiscovered = prometheus.NewCounter(prometheus.CounterOpts{Name: "codequal_ing_files_discovered_total", Help: "Archivos fuente descubiertos"})
		m.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "codequal_ing_parse_errors_total", Help: "Archivos que fallaron al parsear"})
		m.symbolsExtracted = prometheus.NewCounter(prometheus.CounterOpts{Name: "codequal_ing_symbols_extracted_total", Help: "Símbolos extraídos"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codequal_ing_parse_seconds", Help: "Duración de parseo", Buckets: buckets})
		m.persistDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codequal_ing_persist_seconds", Help: "Duración de escrituras", Buckets: buckets})

		prometheus.MustRegister(
			m.filesDiscovered, m.parseErrors, m.symbolsExtracted,
			m.parseDuration, m.persistDuration,
		)
	})
}
