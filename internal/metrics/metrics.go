// Package metrics exposes run counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yoyakudash"

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_started_total",
		Help:      "Booking runs started.",
	})
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_finished_total",
		Help:      "Booking runs finished, by outcome.",
	}, []string{"status"})
	runActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_active",
		Help:      "1 while a booking run is in progress.",
	})
	dashReloads = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dash_reloads",
		Help:      "Page reloads before the reserve button appeared.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 40, 80, 120, 160},
	})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time from start to end of a run.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
	screenshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "screenshots_total",
		Help:      "Screenshots captured, by caption.",
	}, []string{"caption"})
)

func RunStarted() {
	runsStarted.Inc()
	runActive.Set(1)
}

// RunFinished records the end of a run. reloads is only observed for runs
// that reached the dash.
func RunFinished(status string, elapsed time.Duration, reloads int, dashed bool) {
	runActive.Set(0)
	runsFinished.WithLabelValues(status).Inc()
	runDuration.Observe(elapsed.Seconds())
	if dashed {
		dashReloads.Observe(float64(reloads))
	}
}

func ScreenshotCaptured(caption string) {
	screenshots.WithLabelValues(caption).Inc()
}

func Handler() http.Handler { return promhttp.Handler() }
