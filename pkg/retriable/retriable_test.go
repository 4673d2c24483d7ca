package retriable_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/gateway/pkg/retriable"
	"github.com/fitpulse/gateway/xhttp/httperror"
)

func TestPolicyShouldRetry(t *testing.T) {
	p := retriable.DefaultPolicy()

	req, err := http.NewRequest(http.MethodGet, "http://user-service/v1/users/u-1", nil)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		retry, _, reason := p.ShouldRetry(req, &http.Response{StatusCode: 200}, nil, 0)
		assert.False(t, retry)
		assert.Equal(t, retriable.Success, reason)
	})

	t.Run("not_found_terminal", func(t *testing.T) {
		retry, _, reason := p.ShouldRetry(req, &http.Response{StatusCode: 404}, nil, 0)
		assert.False(t, retry)
		assert.Equal(t, retriable.NotFound, reason)
	})

	t.Run("client_error_terminal", func(t *testing.T) {
		retry, _, reason := p.ShouldRetry(req, &http.Response{StatusCode: 400}, nil, 0)
		assert.False(t, retry)
		assert.Equal(t, retriable.NonRetriableError, reason)
	})

	t.Run("server_error_terminal", func(t *testing.T) {
		retry, _, reason := p.ShouldRetry(req, &http.Response{StatusCode: 500}, nil, 0)
		assert.False(t, retry)
		assert.Equal(t, retriable.NonRetriableError, reason)
	})

	t.Run("gateway_statuses_retryable", func(t *testing.T) {
		for _, sc := range []int{502, 503, 504} {
			retry, sleep, _ := p.ShouldRetry(req, &http.Response{StatusCode: sc}, nil, 0)
			assert.True(t, retry, "status %d", sc)
			assert.Positive(t, sleep)
		}
	})

	t.Run("retry_limit", func(t *testing.T) {
		retry, _, reason := p.ShouldRetry(req, &http.Response{StatusCode: 503}, nil, p.TotalRetryLimit)
		assert.False(t, retry)
		assert.Equal(t, retriable.LimitExceeded, reason)
	})

	t.Run("non_retriable_error_string", func(t *testing.T) {
		retry, _, reason := p.ShouldRetry(req, nil, assert.AnError, 0)
		// generic errors go through the connection class
		assert.True(t, retry)
		_ = reason

		retry, _, reason = p.ShouldRetry(req, nil, &hostErr{}, 0)
		assert.False(t, retry)
		assert.Equal(t, retriable.NonRetriableError, reason)
	})
}

type hostErr struct{}

func (*hostErr) Error() string { return "dial tcp: lookup user-service: no such host" }

func TestBackoffShouldRetryFactory(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 500 * time.Millisecond
	fn := retriable.BackoffShouldRetryFactory(4, initial, max, 0.2, "unavailable")

	prev := time.Duration(0)
	for retries := 0; retries < 4; retries++ {
		retry, sleep, reason := fn(nil, nil, nil, retries)
		assert.True(t, retry)
		assert.Equal(t, "unavailable", reason)

		base := initial << uint(retries)
		if base > max {
			base = max
		}
		assert.GreaterOrEqual(t, sleep, base)
		assert.LessOrEqual(t, sleep, base+time.Duration(0.2*float64(base)))
		assert.GreaterOrEqual(t, sleep, prev/2, "backoff should not collapse")
		prev = sleep
	}

	retry, _, _ := fn(nil, nil, nil, 4)
	assert.False(t, retry)
}

func TestClientRetriesUntilSuccess(t *testing.T) {
	var count int32
	h := func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&count, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u-1001","status":"active"}`))
	}
	server := httptest.NewServer(http.HandlerFunc(h))
	defer server.Close()

	policy := retriable.DefaultPolicy()
	policy.Retries[http.StatusServiceUnavailable] =
		retriable.BackoffShouldRetryFactory(3, time.Millisecond, 5*time.Millisecond, 0, "unavailable")

	client := retriable.New(
		retriable.WithName("userclient"),
		retriable.WithHosts([]string{server.URL}),
		retriable.WithPolicy(policy),
	)

	var res struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	_, sc, err := client.Get(context.Background(), "/v1/users/u-1001", &res)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, sc)
	assert.Equal(t, "u-1001", res.ID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&count))
}

func TestClientDecodesStructuredError(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","message":"user u-missing not found"}`))
	}
	server := httptest.NewServer(http.HandlerFunc(h))
	defer server.Close()

	client := retriable.New(retriable.WithHosts([]string{server.URL}))

	var res map[string]any
	_, sc, err := client.Get(context.Background(), "/v1/users/u-missing", &res)
	assert.Equal(t, http.StatusNotFound, sc)
	require.Error(t, err)

	var herr *httperror.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, httperror.CodeNotFound, herr.Code)
}

func TestClientPost(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"u-2001"}`))
	}
	server := httptest.NewServer(http.HandlerFunc(h))
	defer server.Close()

	client := retriable.New(retriable.WithHosts([]string{server.URL}))

	req := map[string]string{"email": "denis@fitpulse.dev"}
	var res struct {
		ID string `json:"id"`
	}
	_, sc, err := client.Post(context.Background(), "/v1/users", req, &res)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, sc)
	assert.Equal(t, "u-2001", res.ID)
}
