package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xharvest_command_runs_total",
		Help: "Total CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xharvest_command_errors_total",
		Help: "Total CLI command errors",
	}, []string{"command"})
	Lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xharvest_lookups_total",
		Help: "Post lookups by pass and outcome",
	}, []string{"pass", "outcome"})
	CaptureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "xharvest_capture_duration_seconds",
		Help:    "Browser capture duration seconds",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21},
	})
	RowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xharvest_rows_written_total",
		Help: "Rows written per output table",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(CommandRuns, CommandErrors, Lookups, CaptureDuration, RowsWritten)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveCaptureDuration records one capture's duration.
func ObserveCaptureDuration(start time.Time) {
	CaptureDuration.Observe(time.Since(start).Seconds())
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }

// IncLookup counts a lookup outcome ("ok" or a failure reason) for a pass.
func IncLookup(pass, outcome string) { Lookups.WithLabelValues(pass, outcome).Inc() }

func AddRows(table string, n int) { RowsWritten.WithLabelValues(table).Add(float64(n)) }
