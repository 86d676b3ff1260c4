// Package metrics exposes the Prometheus series for the queue, pipeline and
// HTTP surface. Grounded on the teacher's pkg/ingestion/metrics.go: a
// lazily-initialized, sync.Once-guarded metrics struct registered once
// against the default registry, generalized from ingestion-specific series
// (delta/embeddings/batches) to this service's job/pipeline/HTTP series.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	once sync.Once

	jobsEnqueued  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsRetried   prometheus.Counter
	jobsCancelled prometheus.Counter

	filesParsed    prometheus.Counter
	filesTruncated prometheus.Counter
	filesSkipped   prometheus.Counter

	pipelineDuration   prometheus.Histogram
	fetchDuration      prometheus.Histogram
	cloneDuration      prometheus.Histogram
	walkDuration       prometheus.Histogram
	parseDuration      prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var m metrics

func (mm *metrics) init() {
	mm.once.Do(func() {
		mm.jobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_jobs_enqueued_total", Help: "Analyses enqueued"})
		mm.jobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_jobs_completed_total", Help: "Analyses completed"})
		mm.jobsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_jobs_failed_total", Help: "Analyses failed after attempt exhaustion"})
		mm.jobsRetried = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_jobs_retried_total", Help: "Analysis attempts retried"})
		mm.jobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_jobs_cancelled_total", Help: "Analyses cancelled while queued"})

		mm.filesParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_files_parsed_total", Help: "Files successfully parsed"})
		mm.filesTruncated = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_files_truncated_total", Help: "Files skipped for exceeding the parse size cap"})
		mm.filesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "repoanalyzer_files_skipped_total", Help: "Parseable files dropped by the per-job parse bound"})

		buckets := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}
		mm.pipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repoanalyzer_pipeline_seconds", Help: "End-to-end pipeline duration", Buckets: buckets})
		mm.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repoanalyzer_fetch_seconds", Help: "Metadata fetch duration", Buckets: buckets})
		mm.cloneDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repoanalyzer_clone_seconds", Help: "Clone duration", Buckets: buckets})
		mm.walkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repoanalyzer_walk_seconds", Help: "Tree walk duration", Buckets: buckets})
		mm.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repoanalyzer_parse_seconds", Help: "File parsing step duration", Buckets: buckets})

		mm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repoanalyzer_http_requests_total", Help: "HTTP requests by route and status"}, []string{"route", "status"})
		mm.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "repoanalyzer_http_request_seconds", Help: "HTTP request duration by route", Buckets: prometheus.DefBuckets}, []string{"route"})

		prometheus.MustRegister(
			mm.jobsEnqueued, mm.jobsCompleted, mm.jobsFailed, mm.jobsRetried, mm.jobsCancelled,
			mm.filesParsed, mm.filesTruncated, mm.filesSkipped,
			mm.pipelineDuration, mm.fetchDuration, mm.cloneDuration, mm.walkDuration, mm.parseDuration,
			mm.httpRequests, mm.httpDuration,
		)
	})
}

func JobEnqueued()  { m.init(); m.jobsEnqueued.Inc() }
func JobCompleted() { m.init(); m.jobsCompleted.Inc() }
func JobFailed()    { m.init(); m.jobsFailed.Inc() }
func JobRetried()   { m.init(); m.jobsRetried.Inc() }
func JobCancelled() { m.init(); m.jobsCancelled.Inc() }

func FilesParsed(n int)    { m.init(); m.filesParsed.Add(float64(n)) }
func FilesTruncated(n int) { m.init(); m.filesTruncated.Add(float64(n)) }
func FilesSkipped(n int)   { m.init(); m.filesSkipped.Add(float64(n)) }

func ObservePipelineDuration(seconds float64) { m.init(); m.pipelineDuration.Observe(seconds) }
func ObserveFetchDuration(seconds float64)    { m.init(); m.fetchDuration.Observe(seconds) }
func ObserveCloneDuration(seconds float64)    { m.init(); m.cloneDuration.Observe(seconds) }
func ObserveWalkDuration(seconds float64)     { m.init(); m.walkDuration.Observe(seconds) }
func ObserveParseDuration(seconds float64)    { m.init(); m.parseDuration.Observe(seconds) }

func ObserveHTTPRequest(route, status string, seconds float64) {
	m.init()
	m.httpRequests.WithLabelValues(route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(seconds)
}
