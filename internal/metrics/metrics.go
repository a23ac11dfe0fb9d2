package metrics

import (
	"net/http"

	"tycoon/internal/clock"
	"tycoon/internal/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tycoon"

type Collectors struct {
	registry *prometheus.Registry

	Ticks         prometheus.Counter
	FailedTicks   prometheus.Counter
	TickDuration  prometheus.Histogram
	ModalDepth    prometheus.Gauge
	EventsApplied *prometheus.CounterVec
	NetWorth      prometheus.Gauge
	Level         prometheus.Gauge
	FeedDropped   prometheus.GaugeFunc
}

// New registers the simulation collectors on a private registry. feed may be
// nil; when set its drop counter is exported.
func New(feed *notify.Feed) *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Simulation hours advanced.",
		}),
		FailedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_failed_total", Help: "Ticks in which a phase returned an error or panicked.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds", Help: "Wall time spent running one tick.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		ModalDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "modal_queue_depth", Help: "Outstanding modal requests, active included.",
		}),
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_applied_total", Help: "Random and manual events applied, by effect.",
		}, []string{"effect"}),
		NetWorth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "net_worth", Help: "Cash minus debt.",
		}),
		Level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "level", Help: "Current progression level.",
		}),
	}
	reg.MustRegister(c.Ticks, c.FailedTicks, c.TickDuration, c.ModalDepth, c.EventsApplied, c.NetWorth, c.Level)
	if feed != nil {
		c.watchFeed(feed)
	}
	reg.MustRegister(collectors.NewGoCollector())
	c.Level.Set(1)
	return c
}

func (c *Collectors) watchFeed(feed *notify.Feed) {
	c.FeedDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "feed_dropped_total", Help: "Notifications dropped because a subscriber fell behind.",
	}, func() float64 { return float64(feed.Dropped()) })
	c.registry.MustRegister(c.FeedDropped)
}

func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) ObserveTick(r clock.TickReport) {
	c.Ticks.Inc()
	if r.Err != nil {
		c.FailedTicks.Inc()
	}
	c.TickDuration.Observe(r.Duration.Seconds())
}

func (c *Collectors) SetModalDepth(n int) {
	c.ModalDepth.Set(float64(n))
}

// Attach subscribes the notification-driven collectors to bus and, when New
// was given no feed, watches the bus feed for drops.
func (c *Collectors) Attach(bus *notify.Bus) {
	if c.FeedDropped == nil {
		c.watchFeed(bus.Feed())
	}
	bus.EventApplied.Subscribe(func(n notify.EventApplied) {
		c.EventsApplied.WithLabelValues(n.Effect).Inc()
	})
	bus.NetWorthChanged.Subscribe(func(n notify.NetWorthChanged) {
		c.NetWorth.Set(float64(n.Current))
	})
	bus.LevelUp.Subscribe(func(n notify.LevelUp) {
		c.Level.Set(float64(n.Level))
	})
}
