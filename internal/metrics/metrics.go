// Package metrics exports crawl progress as Prometheus collectors. The
// Recorder consumes the same progress-event stream the queue adapter
// publishes, tracking per-session state to derive counters.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/commonground/newscrawler/internal/crawl"
)

// Recorder owns all collectors for session and article telemetry. It
// implements crawl.Emitter.
type Recorder struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	sessionDuration   *prometheus.HistogramVec
	articlesProcessed *prometheus.CounterVec
	linksCollected    prometheus.Counter

	tracker *sessionTracker
}

// NewRecorder registers the collectors against reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_sessions_started_total",
			Help: "Total crawl sessions that have started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_sessions_completed_total",
			Help: "Total crawl sessions finished, partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_sessions_running",
			Help: "Current number of running crawl sessions.",
		}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_session_duration_seconds",
			Help:    "Wall time per finished crawl session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		articlesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_articles_processed_total",
			Help: "Article extraction attempts, partitioned by result.",
		}, []string{"result"}),
		linksCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_links_collected_total",
			Help: "Article links discovered on listing pages.",
		}),
		tracker: newSessionTracker(),
	}
	for _, c := range []prometheus.Collector{
		r.sessionsStarted,
		r.sessionsCompleted,
		r.sessionsRunning,
		r.sessionDuration,
		r.articlesProcessed,
		r.linksCollected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Emit updates the collectors from one progress event.
func (r *Recorder) Emit(_ context.Context, evt crawl.ProgressEvent) error {
	state, known := r.tracker.get(evt.SessionID)
	if !known {
		// A terminal event for an untracked session was already counted.
		if evt.Status.Terminal() {
			return nil
		}
		state = r.tracker.create(evt.SessionID)
		r.sessionsStarted.Inc()
		r.sessionsRunning.Inc()
	}
	if d := evt.SuccessCount - state.success; d > 0 {
		r.articlesProcessed.WithLabelValues("success").Add(float64(d))
	}
	if d := evt.FailCount - state.fail; d > 0 {
		r.articlesProcessed.WithLabelValues("fail").Add(float64(d))
	}
	if d := evt.TotalArticles - state.found; d > 0 {
		r.linksCollected.Add(float64(d))
	}
	r.tracker.update(evt)

	if evt.Status.Terminal() {
		if done := r.tracker.finish(evt.SessionID); done != nil {
			result := string(evt.Status)
			r.sessionsCompleted.WithLabelValues(result).Inc()
			r.sessionsRunning.Dec()
			r.sessionDuration.WithLabelValues(result).Observe(time.Since(done.started).Seconds())
		}
	}
	return nil
}

type sessionState struct {
	started time.Time
	success int
	fail    int
	found   int
}

type sessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{sessions: make(map[string]*sessionState)}
}

// get returns a copy of the session's state and whether it is tracked.
func (t *sessionTracker) get(sessionID string) (sessionState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.sessions[sessionID]
	if !ok {
		return sessionState{}, false
	}
	return *state, true
}

// create starts tracking a session and returns its zero state.
func (t *sessionTracker) create(sessionID string) sessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := &sessionState{started: time.Now()}
	t.sessions[sessionID] = state
	return *state
}

func (t *sessionTracker) update(evt crawl.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.sessions[evt.SessionID]; ok {
		if evt.SuccessCount > state.success {
			state.success = evt.SuccessCount
		}
		if evt.FailCount > state.fail {
			state.fail = evt.FailCount
		}
		if evt.TotalArticles > state.found {
			state.found = evt.TotalArticles
		}
	}
}

// finish removes and returns the session's state, nil when already gone.
func (t *sessionTracker) finish(sessionID string) *sessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(t.sessions, sessionID)
	return state
}
