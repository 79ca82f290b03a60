package stackexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL = "https://api.stackexchange.com/2.3"
	siteParam      = "stackoverflow"
	bodyFilter     = "withbody"

	// Below this many remaining daily requests, auto mode stops
	// spending the key's quota and falls back to anonymous access.
	authQuotaThreshold = 50

	// Flat backoff applied when the API itself is failing rather than
	// throttling us.
	serverErrorBackoff = 30 * time.Second

	maxResponseBody = 10 << 20
)

// API error_id values that matter for classification. The full table
// is at api.stackexchange.com/docs/error-handling.
const (
	apiErrBadParameter   = 400
	apiErrAccessDenied   = 401
	apiErrInvalidKey     = 403
	apiErrThrottle       = 502
	apiErrTemporarilyOff = 503
)

// Options configures a Client. Zero values fall back to sensible
// defaults; only fields that differ from them need to be set.
type Options struct {
	APIKey        string
	BaseURL       string
	Mode          AccessMode
	MaxConcurrent int
	RetryDelay    time.Duration
	CacheTTL      time.Duration
	CacheSize     int
	HTTPClient    *http.Client
	Logger        *logrus.Logger
	Registry      prometheus.Registerer
}

// Client is the orchestration layer over the Stack Exchange API:
// every operation flows through the shared queue, cache, rate-limit
// and auth state.
type Client struct {
	baseURL    string
	apiKey     string
	mode       AccessMode
	httpClient *http.Client

	rateLimit *RateLimitState
	auth      *AuthState
	cache     *Cache
	queue     *RequestQueue
	metrics   *Metrics
	log       *logrus.Entry
}

// New builds a Client. It does not touch the network; call
// ValidateAPIKey to probe the configured key.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Mode == "" {
		opts.Mode = AccessAuto
	}
	switch opts.Mode {
	case AccessAuto, AccessAuthenticated, AccessUnauthenticated:
	default:
		return nil, newError(KindValidation, "unknown access mode %q", opts.Mode)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 100
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	cache, err := NewCache(opts.CacheSize, opts.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("initializing response cache: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		mode:       opts.Mode,
		httpClient: opts.HTTPClient,
		rateLimit:  NewRateLimitState(),
		auth:       NewAuthState(),
		cache:      cache,
		metrics:    NewMetrics(opts.Registry),
		log:        opts.Logger.WithField("component", "stackexchange"),
	}
	c.queue = newRequestQueue(opts.MaxConcurrent, opts.RetryDelay, cache, c.rateLimit, c.executeRequest, c.metrics, c.log)
	return c, nil
}

// SearchQuestions finds questions whose titles match query.
func (c *Client) SearchQuestions(ctx context.Context, query, sort string, page, limit int) (*SearchPage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, newError(KindValidation, "search query must not be empty")
	}
	if sort == "" {
		sort = "relevance"
	}
	params := map[string]string{
		"intitle":  query,
		"sort":     sort,
		"order":    "desc",
		"page":     strconv.Itoa(clampPage(page)),
		"pagesize": strconv.Itoa(clampLimit(limit)),
	}
	req := NewRequest("search/advanced", params, PriorityNormal, c.mode)
	return c.fetchQuestions(ctx, req)
}

// SearchByTags finds questions carrying all of the given tags.
func (c *Client) SearchByTags(ctx context.Context, tags []string, sort string, page, limit int) (*SearchPage, error) {
	if len(tags) == 0 {
		return nil, newError(KindValidation, "at least one tag is required")
	}
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			return nil, newError(KindValidation, "tags must not be empty")
		}
	}
	if sort == "" {
		sort = "activity"
	}
	params := map[string]string{
		"tagged":   strings.Join(tags, ";"),
		"sort":     sort,
		"order":    "desc",
		"page":     strconv.Itoa(clampPage(page)),
		"pagesize": strconv.Itoa(clampLimit(limit)),
	}
	req := NewRequest("questions", params, PriorityNormal, c.mode)
	return c.fetchQuestions(ctx, req)
}

// GetQuestionDetails fetches one question by id, optionally with its
// answers. Detail lookups jump ahead of pending searches.
func (c *Client) GetQuestionDetails(ctx context.Context, questionID int, includeAnswers bool) (*QuestionWithAnswers, error) {
	if questionID <= 0 {
		return nil, newError(KindValidation, "question id must be positive")
	}
	endpoint := fmt.Sprintf("questions/%d", questionID)
	req := NewRequest(endpoint, nil, PriorityHigh, c.mode)
	page, err := c.fetchQuestions(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(page.Questions) == 0 {
		return nil, newError(KindNotFound, "question %d not found", questionID)
	}
	result := &QuestionWithAnswers{Question: page.Questions[0]}

	if includeAnswers {
		ansReq := NewRequest(endpoint+"/answers", map[string]string{
			"sort":  "votes",
			"order": "desc",
		}, PriorityHigh, c.mode)
		raw, err := c.queue.Enqueue(ctx, ansReq)
		if err != nil {
			return nil, err
		}
		var envelope apiResponse
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, wrapError(KindInternal, err, "decoding answers response")
		}
		if len(envelope.Items) > 0 {
			if err := json.Unmarshal(envelope.Items, &result.Answers); err != nil {
				return nil, wrapError(KindInternal, err, "decoding answer items")
			}
		}
	}
	return result, nil
}

func (c *Client) fetchQuestions(ctx context.Context, req *QueuedRequest) (*SearchPage, error) {
	raw, err := c.queue.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, wrapError(KindInternal, err, "decoding questions response")
	}
	page := &SearchPage{Total: envelope.Total, HasMore: envelope.HasMore}
	if len(envelope.Items) > 0 {
		if err := json.Unmarshal(envelope.Items, &page.Questions); err != nil {
			return nil, wrapError(KindInternal, err, "decoding question items")
		}
	}
	return page, nil
}

// ValidateAPIKey probes the API with the configured key and records
// the result in the auth state. A missing key is not an error; it just
// leaves the client unauthenticated.
func (c *Client) ValidateAPIKey(ctx context.Context) (bool, error) {
	if c.apiKey == "" {
		c.auth.SetStatus(false, "No API key configured")
		return false, nil
	}
	req := NewRequest("questions", map[string]string{"pagesize": "1"}, PriorityHigh, AccessAuthenticated)
	if _, err := c.executeRequest(ctx, req); err != nil {
		var cerr *Error
		if errors.As(err, &cerr) && cerr.Kind == KindAuth {
			c.auth.SetStatus(false, cerr.Message)
			return false, nil
		}
		return false, err
	}
	c.auth.SetStatus(true, "")
	c.log.Info("api key validated")
	return true, nil
}

// shouldUseAuthenticatedAccess resolves the effective access for one
// dispatch. Forced authenticated mode always answers true, even with
// no key configured, so the upstream call carries the credential and
// fails there rather than silently degrading to anonymous access.
// Auto mode spends the key only while it is known good, the daily
// quota has headroom and the client is not backing off.
func (c *Client) shouldUseAuthenticatedAccess(mode AccessMode) bool {
	switch mode {
	case AccessAuthenticated:
		return true
	case AccessUnauthenticated:
		return false
	default:
		return c.apiKey != "" &&
			c.auth.IsAuthenticated() &&
			c.auth.QuotaRemainingAbove(authQuotaThreshold) &&
			!c.rateLimit.IsRateLimited()
	}
}

// executeRequest is the queue's execution function: one upstream HTTP
// call with classification of every failure mode into the error
// taxonomy. Retry scheduling stays in the queue.
func (c *Client) executeRequest(ctx context.Context, req *QueuedRequest) (json.RawMessage, error) {
	if !c.rateLimit.CheckRecovery() {
		status := c.rateLimit.Status()
		c.metrics.recordRateLimit()
		return nil, newError(KindRateLimit, "rate limited, backing off until %s", status.BackoffUntil)
	}

	authenticated := c.shouldUseAuthenticatedAccess(req.Mode)

	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(req.Endpoint, "/"))
	if err != nil {
		return nil, wrapError(KindInternal, err, "building request url")
	}
	values := u.Query()
	values.Set("site", siteParam)
	values.Set("filter", bodyFilter)
	for k, v := range req.Params {
		values.Set(k, v)
	}
	if authenticated {
		values.Set("key", c.apiKey)
	}
	u.RawQuery = values.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, wrapError(KindInternal, err, "building http request")
	}

	start := timeNow()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.recordRequest(req.Endpoint, 0, timeNow().Sub(start))
		return nil, wrapError(KindTransient, err, "calling %s", req.Endpoint)
	}
	defer resp.Body.Close()

	c.rateLimit.UpdateFromHeaders(resp.Header)
	c.rateLimit.RecordRequest()
	c.metrics.recordRequest(req.Endpoint, resp.StatusCode, timeNow().Sub(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, wrapError(KindTransient, err, "reading response from %s", req.Endpoint)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.rateLimit.SetRateLimited(retryAfter)
		c.metrics.recordRateLimit()
		return nil, &Error{Kind: KindRateLimit, Message: "throttled by api", StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500:
		c.rateLimit.SetRateLimited(serverErrorBackoff)
		return nil, &Error{Kind: KindTransient, Message: "api server error", StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuth, Message: "access denied by api", StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, Message: "endpoint not found: " + req.Endpoint, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindValidation, Message: "unexpected api response", StatusCode: resp.StatusCode}
	}

	if err := c.classifyBodyError(body); err != nil {
		return nil, err
	}

	if quotaMax := gjson.GetBytes(body, "quota_max"); quotaMax.Exists() {
		c.auth.UpdateQuota(int(quotaMax.Int()), int(gjson.GetBytes(body, "quota_remaining").Int()))
	}
	if backoff := gjson.GetBytes(body, "backoff"); backoff.Exists() && backoff.Int() > 0 {
		c.rateLimit.SetRateLimited(time.Duration(backoff.Int()) * time.Second)
		c.log.WithField("seconds", backoff.Int()).Warn("api requested backoff")
	}

	return json.RawMessage(body), nil
}

// classifyBodyError maps the error envelope the API returns inside
// HTTP 200 responses onto the error taxonomy.
func (c *Client) classifyBodyError(body []byte) error {
	errorID := gjson.GetBytes(body, "error_id")
	if !errorID.Exists() {
		return nil
	}
	message := gjson.GetBytes(body, "error_message").String()
	if message == "" {
		message = gjson.GetBytes(body, "error_name").String()
	}
	switch int(errorID.Int()) {
	case apiErrThrottle, apiErrTemporarilyOff:
		c.rateLimit.SetRateLimited(0)
		c.metrics.recordRateLimit()
		return newError(KindRateLimit, "api throttle violation: %s", message)
	case apiErrAccessDenied, apiErrInvalidKey:
		c.auth.SetStatus(false, message)
		return newError(KindAuth, "api rejected credentials: %s", message)
	case apiErrBadParameter:
		return newError(KindValidation, "api rejected request: %s", message)
	default:
		return newError(KindInternal, "api error %d: %s", int(errorID.Int()), message)
	}
}

// GetRateLimitStatus reports the current throttling state.
func (c *Client) GetRateLimitStatus() RateLimitStatus {
	return c.rateLimit.Status()
}

// GetAuthenticationStatus reports key and quota state.
func (c *Client) GetAuthenticationStatus() AuthStatus {
	status := c.auth.Status()
	status.APIKeyConfigured = c.apiKey != ""
	return status
}

// GetQueueStatus reports queue depth and concurrency counters, plus
// the access mode the queue dispatches under. Auto switching between
// authenticated and anonymous access is active only in auto mode.
func (c *Client) GetQueueStatus() QueueStatus {
	status := c.queue.Status()
	status.AccessMode = c.mode
	status.AutoSwitchEnabled = c.mode == AccessAuto
	return status
}

// CacheStats reports response cache occupancy.
func (c *Client) CacheStats() CacheStats {
	return c.cache.Stats()
}

// Close shuts down the queue and releases the cache.
func (c *Client) Close() error {
	c.queue.Close()
	return c.cache.Close()
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
