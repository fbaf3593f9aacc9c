package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bfx_lend_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry        *prometheus.Registry
	offersSubmitted prometheus.Counter
	offersCanceled  prometheus.Counter
	offersRejected  prometheus.Counter
	tickFailures    prometheus.Counter
	idleAlerts      prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	offersSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "offers_submitted_total",
		Help:      "Total number of funding offers submitted.",
	})
	offersCanceled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "offers_canceled_total",
		Help:      "Total number of funding offers canceled.",
	})
	offersRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "offers_rejected_total",
		Help:      "Total number of offer submissions rejected below the exchange minimum.",
	})
	tickFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "tick_failures_total",
		Help:      "Total number of per-currency tick failures.",
	})
	idleAlerts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "idle_alerts_total",
		Help:      "Total number of idle balance alerts published.",
	})

	registry.MustRegister(offersSubmitted, offersCanceled, offersRejected, tickFailures, idleAlerts)

	m := &Metrics{
		OffersSubmitted: promCounter{offersSubmitted},
		OffersCanceled:  promCounter{offersCanceled},
		OffersRejected:  promCounter{offersRejected},
		TickFailures:    promCounter{tickFailures},
		IdleAlerts:      promCounter{idleAlerts},
	}

	return &Prometheus{
		Metrics:         m,
		registry:        registry,
		offersSubmitted: offersSubmitted,
		offersCanceled:  offersCanceled,
		offersRejected:  offersRejected,
		tickFailures:    tickFailures,
		idleAlerts:      idleAlerts,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
