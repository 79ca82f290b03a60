package stackexchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptyEnvelope = `{"items":[],"has_more":false,"quota_max":300,"quota_remaining":295}`

// recordingServer captures every request the client sends.
type recordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*url.URL
	handler  http.HandlerFunc
}

func newRecordingServer(t *testing.T, handler http.HandlerFunc) *recordingServer {
	t.Helper()
	rs := &recordingServer{handler: handler}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		u := *r.URL
		rs.requests = append(rs.requests, &u)
		rs.mu.Unlock()
		rs.handler(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) lastQuery() url.Values {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.requests) == 0 {
		return nil
	}
	return rs.requests[len(rs.requests)-1].Query()
}

func (rs *recordingServer) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.requests)
}

func newTestClient(t *testing.T, baseURL string, opts Options) *Client {
	t.Helper()
	opts.BaseURL = baseURL
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	log := logrus.New()
	log.SetOutput(testWriter{t})
	opts.Logger = log
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestNew_RejectsUnknownAccessMode(t *testing.T) {
	_, err := New(Options{Mode: AccessMode("yolo")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSearchQuestions_EmptyQuery(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchQuestions(context.Background(), "   ", "", 1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 0, srv.count(), "validation failures must not reach the network")
}

func TestSearchQuestions_BuildsExpectedQuery(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/advanced", r.URL.Path)
		fmt.Fprint(w, `{"items":[{"question_id":7,"title":"goroutine leak","tags":["go"],"score":12,"is_answered":true,"owner":{"display_name":"gopher"}}],"total":38,"has_more":true,"quota_max":300,"quota_remaining":280}`)
	})
	c := newTestClient(t, srv.URL, Options{})

	result, err := c.SearchQuestions(context.Background(), "goroutine leak", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Questions, 1)
	assert.Equal(t, 7, result.Questions[0].QuestionID)
	assert.Equal(t, "goroutine leak", result.Questions[0].Title)
	assert.Equal(t, 38, result.Total)
	assert.True(t, result.HasMore)

	q := srv.lastQuery()
	assert.Equal(t, "goroutine leak", q.Get("intitle"))
	assert.Equal(t, "relevance", q.Get("sort"))
	assert.Equal(t, "desc", q.Get("order"))
	assert.Equal(t, "1", q.Get("page"), "page below 1 is normalized")
	assert.Equal(t, "10", q.Get("pagesize"))
	assert.Equal(t, "stackoverflow", q.Get("site"))
	assert.Equal(t, "withbody", q.Get("filter"))
	assert.Empty(t, q.Get("key"), "no api key configured")
}

func TestSearchByTags_JoinsTagsWithSemicolon(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/questions", r.URL.Path)
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchByTags(context.Background(), []string{"go", "concurrency"}, "", 2, 5)
	require.NoError(t, err)

	q := srv.lastQuery()
	assert.Equal(t, "go;concurrency", q.Get("tagged"))
	assert.Equal(t, "activity", q.Get("sort"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "5", q.Get("pagesize"))
}

func TestSearchByTags_RequiresTags(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchByTags(context.Background(), nil, "", 1, 5)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = c.SearchByTags(context.Background(), []string{"go", " "}, "", 1, 5)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestGetQuestionDetails_WithAnswers(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/questions/42":
			fmt.Fprint(w, `{"items":[{"question_id":42,"title":"how do channels work","body":"<p>body</p>","tags":["go"],"owner":{"display_name":"gopher"}}],"quota_max":300,"quota_remaining":290}`)
		case "/questions/42/answers":
			fmt.Fprint(w, `{"items":[{"answer_id":101,"question_id":42,"body":"<p>like queues</p>","score":9,"is_accepted":true,"owner":{"display_name":"rob"}}],"quota_max":300,"quota_remaining":289}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	c := newTestClient(t, srv.URL, Options{})

	qa, err := c.GetQuestionDetails(context.Background(), 42, true)
	require.NoError(t, err)
	assert.Equal(t, 42, qa.Question.QuestionID)
	require.Len(t, qa.Answers, 1)
	assert.True(t, qa.Answers[0].IsAccepted)
	assert.Equal(t, 2, srv.count())

	q := srv.lastQuery()
	assert.Equal(t, "votes", q.Get("sort"))
}

func TestGetQuestionDetails_NotFound(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.GetQuestionDetails(context.Background(), 99999999, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetQuestionDetails_InvalidID(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.GetQuestionDetails(context.Background(), 0, false)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 0, srv.count())
}

func TestClient_Http429SetsBackoffFromRetryAfter(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchQuestions(context.Background(), "anything", "", 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimit))

	st := c.GetRateLimitStatus()
	assert.True(t, st.IsRateLimited)
	assert.Equal(t, 30.0, st.CurrentBackoff)
	// Retries hit the local gate instead of the server while the
	// backoff deadline is in the future.
	assert.Equal(t, 1, srv.count())
}

func TestClient_ServerErrorsGetFlatBackoff(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchQuestions(context.Background(), "anything", "", 1, 1)
	require.Error(t, err)

	st := c.GetRateLimitStatus()
	assert.True(t, st.IsRateLimited)
	assert.Equal(t, 30.0, st.CurrentBackoff)
	assert.Equal(t, 1, srv.count(), "retries stop at the local gate while backing off")
}

func TestClient_BodyErrorThrottleViolation(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error_id":502,"error_name":"throttle_violation","error_message":"too many requests from this IP"}`)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchQuestions(context.Background(), "anything", "", 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimit))
	assert.True(t, c.GetRateLimitStatus().IsRateLimited)
}

func TestClient_BodyErrorBadParameter(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error_id":400,"error_message":"sort does not exist"}`)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchQuestions(context.Background(), "anything", "weird", 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "sort does not exist")
	assert.Equal(t, 1, srv.count(), "validation errors are not retried")
}

func TestClient_QuotaUpdatedFromResponse(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[],"quota_max":10000,"quota_remaining":9871}`)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchQuestions(context.Background(), "anything", "", 1, 1)
	require.NoError(t, err)

	st := c.GetAuthenticationStatus()
	require.NotNil(t, st.DailyQuota)
	assert.Equal(t, 10000, *st.DailyQuota)
	require.NotNil(t, st.DailyQuotaRemaining)
	assert.Equal(t, 9871, *st.DailyQuotaRemaining)
}

func TestValidateAPIKey_NoKeyConfigured(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{})

	ok, err := c.ValidateAPIKey(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, srv.count())

	st := c.GetAuthenticationStatus()
	assert.False(t, st.APIKeyConfigured)
	assert.Equal(t, "No API key configured", st.AuthenticationError)
}

func TestValidateAPIKey_ValidKey(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sekret", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{"items":[],"quota_max":10000,"quota_remaining":9999}`)
	})
	c := newTestClient(t, srv.URL, Options{APIKey: "sekret"})

	ok, err := c.ValidateAPIKey(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	st := c.GetAuthenticationStatus()
	assert.True(t, st.APIKeyConfigured)
	assert.True(t, st.IsAuthenticated)
	assert.True(t, st.AuthenticationTested)
}

func TestValidateAPIKey_RejectedKey(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error_id":403,"error_message":"key is not valid"}`)
	})
	c := newTestClient(t, srv.URL, Options{APIKey: "bogus"})

	ok, err := c.ValidateAPIKey(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	st := c.GetAuthenticationStatus()
	assert.False(t, st.IsAuthenticated)
	assert.Contains(t, st.AuthenticationError, "key is not valid")
}

func TestAutoMode_UsesKeyOnlyWhileQuotaHasHeadroom(t *testing.T) {
	quotaRemaining := 1000
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items":[],"quota_max":10000,"quota_remaining":%d}`, quotaRemaining)
	})
	c := newTestClient(t, srv.URL, Options{APIKey: "sekret", Mode: AccessAuto})

	// Before validation auto mode stays anonymous.
	_, err := c.SearchQuestions(context.Background(), "first", "", 1, 1)
	require.NoError(t, err)
	assert.Empty(t, srv.lastQuery().Get("key"))

	ok, err := c.ValidateAPIKey(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.SearchQuestions(context.Background(), "second", "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "sekret", srv.lastQuery().Get("key"))

	// The server reports the quota nearly spent; auto mode stops
	// attaching the key.
	quotaRemaining = 30
	_, err = c.SearchQuestions(context.Background(), "third", "", 1, 1)
	require.NoError(t, err)

	_, err = c.SearchQuestions(context.Background(), "fourth", "", 1, 1)
	require.NoError(t, err)
	assert.Empty(t, srv.lastQuery().Get("key"))
}

func TestUnauthenticatedMode_NeverSendsKey(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{APIKey: "sekret", Mode: AccessUnauthenticated})

	_, err := c.SearchQuestions(context.Background(), "anything", "", 1, 1)
	require.NoError(t, err)
	assert.Empty(t, srv.lastQuery().Get("key"))
}

func TestAuthenticatedMode_AlwaysSendsKey(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{APIKey: "sekret", Mode: AccessAuthenticated})

	_, err := c.SearchQuestions(context.Background(), "anything", "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "sekret", srv.lastQuery().Get("key"))
}

func TestAuthenticatedMode_ForcedWithoutKey(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{Mode: AccessAuthenticated})

	// Forced authenticated mode never degrades to anonymous access; the
	// credential is attached as-is and the API decides its fate.
	assert.True(t, c.shouldUseAuthenticatedAccess(AccessAuthenticated))

	_, err := c.SearchQuestions(context.Background(), "anything", "", 1, 1)
	require.NoError(t, err)
	_, sent := srv.lastQuery()["key"]
	assert.True(t, sent, "key parameter is sent even when empty")
}

func TestGetQueueStatus_ReportsAccessMode(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})

	auto := newTestClient(t, srv.URL, Options{})
	st := auto.GetQueueStatus()
	assert.Equal(t, AccessAuto, st.AccessMode)
	assert.True(t, st.AutoSwitchEnabled)

	forced := newTestClient(t, srv.URL, Options{APIKey: "sekret", Mode: AccessAuthenticated})
	st = forced.GetQueueStatus()
	assert.Equal(t, AccessAuthenticated, st.AccessMode)
	assert.False(t, st.AutoSwitchEnabled)
}

func TestClient_ResponsesAreCached(t *testing.T) {
	srv := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyEnvelope)
	})
	c := newTestClient(t, srv.URL, Options{})

	_, err := c.SearchQuestions(context.Background(), "cached", "", 1, 1)
	require.NoError(t, err)
	_, err = c.SearchQuestions(context.Background(), "cached", "", 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.count())
	assert.Equal(t, 1, c.CacheStats().ValidEntries)
}
