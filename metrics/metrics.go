/*
Package metrics exposes ledger activity as Prometheus collectors.

PURPOSE:
  The ledgers report every operation outcome and every fresh stock figure
  through circulation.Observer. Collector turns those callbacks into a
  counter and a handful of gauges served on /metrics.

METRICS:
  crates_operations_total{op,outcome}   counter
  crates_cd_stock_boxes                 gauge, clamped reconciled stock
  crates_cd_flow_boxes{flow}            gauge, one series per stock input

SEE ALSO:
  - circulation/options.go: Observer interface and Outcome labels
  - api/server.go: mounts Handler()
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/crate-ledger/circulation"
)

const namespace = "crates"

// Collector implements circulation.Observer. Each Collector owns its
// registry so tests and multiple servers in one process do not collide.
type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	stock      prometheus.Gauge
	flows      *prometheus.GaugeVec
}

var _ circulation.Observer = (*Collector)(nil)

// NewCollector builds a Collector. When withRuntime is set the Go runtime
// and process collectors are registered too.
func NewCollector(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"op", "outcome"}),
		stock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cd_stock_boxes",
			Help:      "Boxes currently held at the distribution center.",
		}),
		flows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cd_flow_boxes",
			Help:      "Cumulative boxes per distribution center flow.",
		}, []string{"flow"}),
	}
	c.registry.MustRegister(c.operations, c.stock, c.flows)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

func (c *Collector) ObserveOperation(op string, err error) {
	c.operations.WithLabelValues(op, circulation.Outcome(err)).Inc()
}

func (c *Collector) ObserveStock(t circulation.Totals) {
	c.stock.Set(float64(t.Stock))
	c.flows.WithLabelValues("received_from_trips").Set(float64(t.ReceivedFromTrips))
	c.flows.WithLabelValues("dispatched").Set(float64(t.Dispatched))
	c.flows.WithLabelValues("dispatch_returns").Set(float64(t.DispatchReturns))
	c.flows.WithLabelValues("forwarded_to_origin").Set(float64(t.ForwardedToOrigin))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
