package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipam_dns_records_total",
		Help: "Address records handled by the sync, by zone and outcome (created, unchanged, deleted, failed, skipped).",
	}, []string{"zone", "outcome"})

	labelsNormalizedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipam_dns_labels_normalized_total",
		Help: "Rendered labels the normalizer had to correct, by zone.",
	}, []string{"zone"})

	zoneRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipam_dns_zone_runs_total",
		Help: "Zone runs by nameserver and result (success, skipped, error).",
	}, []string{"nameserver", "result"})

	zoneRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ipam_dns_zone_run_duration_seconds",
		Help:    "Duration of one zone run, from selection to the end of the sweep.",
		Buckets: prometheus.DefBuckets,
	}, []string{"zone"})
)

func init() {
	metrics.Registry.MustRegister(recordsTotal, labelsNormalizedTotal, zoneRunsTotal, zoneRunDuration)
}

func (r Result) observe(zone string) {
	for outcome, n := range map[string]int{
		"created":   r.Created,
		"unchanged": r.Unchanged,
		"deleted":   r.Deleted,
		"failed":    r.Failed,
		"skipped":   r.Skipped,
	} {
		if n > 0 {
			recordsTotal.WithLabelValues(zone, outcome).Add(float64(n))
		}
	}
}
