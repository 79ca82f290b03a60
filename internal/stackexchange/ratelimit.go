package stackexchange

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// timeNow is a package-level var to allow clock injection in tests.
var timeNow = time.Now

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 300 * time.Second

	// requestWindow is the sliding window used for the
	// requests-this-window counter in status reports.
	requestWindow = time.Minute
)

// RateLimitState tracks server-advertised throttling and the client's
// exponential backoff. It is mutated by every HTTP response and read
// before every outbound call, so all access goes through the mutex.
type RateLimitState struct {
	mu sync.Mutex

	rateLimited    bool
	backoffUntil   time.Time
	currentBackoff time.Duration

	remaining *int
	resetTime *time.Time

	windowStart  time.Time
	windowEvents int
}

// RateLimitStatus is a read-only projection of RateLimitState.
type RateLimitStatus struct {
	IsRateLimited      bool       `json:"is_rate_limited"`
	BackoffUntil       time.Time  `json:"backoff_until"`
	CurrentBackoff     float64    `json:"current_backoff"`
	RemainingRequests  *int       `json:"remaining_requests"`
	ResetTime          *time.Time `json:"reset_time"`
	RequestsThisWindow int        `json:"requests_this_window"`
	WindowStart        time.Time  `json:"window_start"`
}

// NewRateLimitState returns a state with backoff at its floor.
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{
		currentBackoff: initialBackoff,
		windowStart:    timeNow(),
	}
}

// UpdateFromHeaders parses x-ratelimit-remaining and x-ratelimit-reset.
// Malformed values are ignored: the corresponding field keeps its
// previous value and no error is raised.
func (s *RateLimitState) UpdateFromHeaders(h http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v := h.Get("x-ratelimit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.remaining = &n
		}
	}
	if v := h.Get("x-ratelimit-reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.Unix(unix, 0)
			s.resetTime = &t
		}
	}
}

// SetRateLimited marks the client throttled. A positive retryAfter is
// the server's own hint and overrides the doubling — the server knows
// better than our guess. With no hint, the backoff doubles up to the
// cap before being applied.
func (s *RateLimitState) SetRateLimited(retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retryAfter > 0 {
		s.currentBackoff = retryAfter
	} else {
		s.currentBackoff *= 2
		if s.currentBackoff > maxBackoff {
			s.currentBackoff = maxBackoff
		}
	}
	s.rateLimited = true
	s.backoffUntil = timeNow().Add(s.currentBackoff)
}

// CheckRecovery clears the rate-limited flag once the backoff deadline
// has passed and reports whether the client may send again.
func (s *RateLimitState) CheckRecovery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rateLimited {
		return true
	}
	if !timeNow().Before(s.backoffUntil) {
		s.rateLimited = false
		return true
	}
	return false
}

// IsRateLimited reports the flag without clearing it.
func (s *RateLimitState) IsRateLimited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimited
}

// RecordRequest counts an outbound call against the current window,
// rolling the window over when a minute has elapsed.
func (s *RateLimitState) RecordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timeNow()
	if now.Sub(s.windowStart) >= requestWindow {
		s.windowStart = now
		s.windowEvents = 0
	}
	s.windowEvents++
}

// PacingDelay returns an extra pre-dispatch delay when the server
// reports the quota is nearly gone: (10 - remaining) * 500ms, zero
// otherwise. Spreading the last few requests out avoids tripping the
// server-side limiter right at the edge.
func (s *RateLimitState) PacingDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remaining == nil || *s.remaining >= 10 {
		return 0
	}
	return time.Duration(10-*s.remaining) * 500 * time.Millisecond
}

// Status returns a snapshot for external reporting. No side effects.
func (s *RateLimitState) Status() RateLimitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := RateLimitStatus{
		IsRateLimited:      s.rateLimited,
		BackoffUntil:       s.backoffUntil,
		CurrentBackoff:     s.currentBackoff.Seconds(),
		RequestsThisWindow: s.windowEvents,
		WindowStart:        s.windowStart,
	}
	if s.remaining != nil {
		n := *s.remaining
		st.RemainingRequests = &n
	}
	if s.resetTime != nil {
		t := *s.resetTime
		st.ResetTime = &t
	}
	return st
}
