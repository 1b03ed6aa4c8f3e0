package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Registry metrics
var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guild_operations_total",
			Help: "Registry operations by name and result.",
		},
		[]string{"op", "result"},
	)

	votesCast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guild_votes_cast_total",
			Help: "Votes cast on proposals by direction.",
		},
		[]string{"direction"},
	)

	votingWeight = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "guild_vote_weight",
		Help:    "Voting power captured per cast vote.",
		Buckets: []float64{1, 11, 21, 31, 50, 100, 250, 1000},
	})

	proposalsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guild_proposals_finalized_total",
			Help: "Finalized proposals by outcome.",
		},
		[]string{"outcome"},
	)

	guildsRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guild_registry_guilds",
		Help: "Guilds registered so far.",
	})

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guild_ready",
		Help: "1 when the storage backend answered the last readiness probe.",
	})
)

// Event stream metrics
var (
	streamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guild_event_subscribers",
		Help: "Open event stream subscriptions.",
	})

	streamDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guild_events_dropped_total",
		Help: "Events dropped because a subscriber fell behind.",
	})
)

var registerOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			operationsTotal, votesCast, votingWeight, proposalsFinalized,
			guildsRegistered, ready,
			streamSubscribers, streamDropped,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation counts one registry operation.
func RecordOperation(op, result string) {
	operationsTotal.WithLabelValues(op, result).Inc()
}

// RecordVote counts a vote and its frozen weight.
func RecordVote(support bool, weight uint64) {
	direction := "no"
	if support {
		direction = "yes"
	}
	votesCast.WithLabelValues(direction).Inc()
	votingWeight.Observe(float64(weight))
}

// RecordFinalized counts a finalized proposal.
func RecordFinalized(outcome string) {
	proposalsFinalized.WithLabelValues(outcome).Inc()
}

// SetGuildCount mirrors the global guild counter.
func SetGuildCount(n uint64) {
	guildsRegistered.Set(float64(n))
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// StreamSubscribed adjusts the open subscription gauge by delta.
func StreamSubscribed(delta int) {
	streamSubscribers.Add(float64(delta))
}

// RecordStreamDrop counts one event lost to a slow subscriber.
func RecordStreamDrop() {
	streamDropped.Inc()
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifiers in API paths so metric label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	segs := strings.Split(p, "/")
	for i := 1; i < len(segs); i++ {
		switch segs[i-1] {
		case "guilds", "proposals", "assets":
			if segs[i] != "count" && segs[i] != "" {
				segs[i] = ":id"
			}
		case "members", "votes":
			if segs[i] != "" {
				segs[i] = ":principal"
			}
		case "permissions":
			if segs[i] != "" {
				segs[i] = ":role"
			}
		}
	}
	return strings.Join(segs, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
