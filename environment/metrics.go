/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package environment

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "relay_environment"

// Metrics are the prometheus collectors of an Environment.
type Metrics struct {
	Publishes                  prometheus.Counter
	Notifications              prometheus.Counter
	OptimisticLayers           prometheus.Gauge
	DroppedIncrementalPayloads prometheus.Counter
	MutationsCommitted         prometheus.Counter
	MutationsRolledBack        prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publishes_total",
			Help:      "Number of publishes that found changed records.",
		}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_total",
			Help:      "Number of subscriber callbacks.",
		}),
		OptimisticLayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "optimistic_layers",
			Help:      "Number of optimistic mutations currently applied.",
		}),
		DroppedIncrementalPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_incremental_payloads_total",
			Help:      "Number of deferred or streamed payloads without a known placeholder.",
		}),
		MutationsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mutations_committed_total",
			Help:      "Number of mutations whose response was committed.",
		}),
		MutationsRolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mutations_rolled_back_total",
			Help:      "Number of optimistic mutations disposed without commit.",
		}),
	}
}

func (metrics *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		metrics.Publishes,
		metrics.Notifications,
		metrics.OptimisticLayers,
		metrics.DroppedIncrementalPayloads,
		metrics.MutationsCommitted,
		metrics.MutationsRolledBack,
	}
}

func (metrics *Metrics) register(registerer prometheus.Registerer) error {
	for _, collector := range metrics.collectors() {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
