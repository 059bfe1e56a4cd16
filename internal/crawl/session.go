package crawl

import (
	"fmt"
	"sync"
	"time"
)

// Status is a crawl session's lifecycle state. Transitions are strictly
// forward in the order declared below; completed and failed are terminal.
type Status string

// Session statuses.
const (
	StatusCreated            Status = "created"
	StatusCollectingLinks    Status = "collecting_links"
	StatusExtractingArticles Status = "extracting_articles"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

var statusRank = map[Status]int{
	StatusCreated:            0,
	StatusCollectingLinks:    1,
	StatusExtractingArticles: 2,
	StatusCompleted:          3,
	StatusFailed:             3,
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is one crawl request's full lifecycle and accumulated state. It is
// created by a delivery adapter, mutated only by the Orchestrator while
// running, and read-only once terminal. All methods are safe for concurrent
// use so pollers can snapshot a session mid-crawl.
type Session struct {
	mu sync.RWMutex

	id             string
	request        Request
	status         Status
	progress       int
	totalRequested int
	totalFound     int
	totalProcessed int
	successCount   int
	failCount      int
	results        []Article
	errors         []string
	startTime      time.Time
	endTime        *time.Time

	clock Clock
}

// NewSession creates a session in the created state.
func NewSession(req Request, clock Clock) *Session {
	return &Session{
		id:             req.SessionID,
		request:        req,
		status:         StatusCreated,
		totalRequested: req.MaxArticles,
		results:        []Article{},
		errors:         []string{},
		startTime:      clock.Now(),
		clock:          clock,
	}
}

// ID returns the session's unique key.
func (s *Session) ID() string {
	return s.id
}

// Request returns the immutable request this session was created for.
func (s *Session) Request() Request {
	return s.request
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Advance moves the session forward to next. Backward or repeated
// transitions are rejected, as is any transition out of a terminal state.
// Reaching a terminal state stamps the end time; completion forces progress
// to 100.
func (s *Session) Advance(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nextRank, ok := statusRank[next]
	if !ok {
		return fmt.Errorf("unknown status %q", next)
	}
	if s.status.Terminal() {
		return fmt.Errorf("session %s is already terminal (%s)", s.id, s.status)
	}
	if nextRank <= statusRank[s.status] {
		return fmt.Errorf("cannot transition %s -> %s", s.status, next)
	}
	s.status = next
	if next == StatusCompleted {
		s.progress = 100
	}
	if next.Terminal() {
		now := s.clock.Now()
		s.endTime = &now
	}
	return nil
}

// Fail records err and moves the session to failed from any non-terminal
// state. Calling Fail on an already-terminal session only appends the error.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors = append(s.errors, err.Error())
	}
	if s.status.Terminal() {
		return
	}
	s.status = StatusFailed
	now := s.clock.Now()
	s.endTime = &now
}

// SetProgress raises the progress percentage. Values below the current
// progress or outside 0..100 are clamped; progress never decreases.
func (s *Session) SetProgress(pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pct > 100 {
		pct = 100
	}
	if pct > s.progress {
		s.progress = pct
	}
}

// SetTotalFound records the number of links discovered so far.
func (s *Session) SetTotalFound(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.totalFound {
		s.totalFound = n
	}
}

// RecordSuccess appends one extracted article and bumps the counters.
func (s *Session) RecordSuccess(a Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, a)
	s.totalProcessed++
	s.successCount++
}

// RecordFailure counts one article that could not be extracted.
func (s *Session) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalProcessed++
	s.failCount++
}

// Snapshot is the serialized view of a session. Field names match the wire
// contract shared with the backend.
type Snapshot struct {
	SessionID       string     `json:"sessionId"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	TotalRequested  int        `json:"totalRequested"`
	TotalFound      int        `json:"totalFound"`
	TotalProcessed  int        `json:"totalProcessed"`
	SuccessCount    int        `json:"successCount"`
	FailCount       int        `json:"failCount"`
	Data            []Article  `json:"data"`
	Errors          []string   `json:"errors"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	DurationSeconds float64    `json:"durationSeconds"`
}

// Snapshot returns a deep copy of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		SessionID:      s.id,
		Status:         s.status,
		Progress:       s.progress,
		TotalRequested: s.totalRequested,
		TotalFound:     s.totalFound,
		TotalProcessed: s.totalProcessed,
		SuccessCount:   s.successCount,
		FailCount:      s.failCount,
		Data:           make([]Article, len(s.results)),
		Errors:         make([]string, len(s.errors)),
		StartTime:      s.startTime,
	}
	copy(snap.Data, s.results)
	copy(snap.Errors, s.errors)
	if s.endTime != nil {
		end := *s.endTime
		snap.EndTime = &end
		snap.DurationSeconds = end.Sub(s.startTime).Seconds()
	}
	return snap
}

// ProgressEvent is a point-in-time notification emitted during orchestration.
// Field names match the queue progress message.
type ProgressEvent struct {
	SessionID         string `json:"sessionId"`
	Status            Status `json:"status"`
	Progress          int    `json:"progress"`
	Message           string `json:"message"`
	TotalArticles     int    `json:"totalArticles"`
	ProcessedArticles int    `json:"processedArticles"`
	SuccessCount      int    `json:"successCount"`
	FailCount         int    `json:"failCount"`
}

// Progress builds a ProgressEvent from the session's current counters.
func (s *Session) Progress(message string) ProgressEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ProgressEvent{
		SessionID:         s.id,
		Status:            s.status,
		Progress:          s.progress,
		Message:           message,
		TotalArticles:     s.totalFound,
		ProcessedArticles: s.totalProcessed,
		SuccessCount:      s.successCount,
		FailCount:         s.failCount,
	}
}
