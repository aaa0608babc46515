package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(url string) *APIClient {
	return NewAPIClient(url, time.Second, 2, time.Millisecond)
}

func TestUnlock_SendsBodyAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lockers/7/unlock", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"duration_ms": float64(900)}, body)

		w.Write([]byte(`{"sent":true,"topic":"locker/7/cmd","payload":{"cmd_id":"1","action":"unlock","duration_ms":900}}`))
	}))
	defer srv.Close()

	d := 900
	res, err := newClient(srv.URL).Unlock(context.Background(), "7", &d, "")

	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "locker/7/cmd", res.Topic)
	assert.Equal(t, 900, res.Payload.DurationMs)
}

func TestUnlock_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"duration_ms must be between 50 and 10000"}`))
	}))
	defer srv.Close()

	d := 10
	_, err := newClient(srv.URL).Unlock(context.Background(), "7", &d, "")

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "duration_ms must be between")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnlock_RetriesServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"MQTT not connected"}`))
			return
		}
		w.Write([]byte(`{"sent":true,"topic":"locker/7/cmd","payload":{"cmd_id":"x","action":"unlock","duration_ms":1500}}`))
	}))
	defer srv.Close()

	res, err := newClient(srv.URL).Unlock(context.Background(), "7", nil, "x")

	require.NoError(t, err)
	assert.Equal(t, "x", res.Payload.CmdID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnlock_ServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal error"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Unlock(context.Background(), "7", nil, "x")

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnlock_TimeoutIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewAPIClient(srv.URL, 50*time.Millisecond, 2, time.Millisecond)
	_, err := c.Unlock(context.Background(), "7", nil, "x")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"lockers":["1"]}`))
	}))
	defer srv.Close()

	ids, err := newClient(srv.URL).ListLockers(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).ListLockers(context.Background())

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestLockerState_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lockers/a%2Fb/state", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"locker not found"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).LockerState(context.Background(), "a/b")
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestQueries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lockers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lockers":["a","b"]}`))
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"messages":[{"id":3,"ts_ingest":10,"topic":"locker/a/event","payload":"{}","kind":"event","locker_id":"a"}]}`))
	})
	mux.HandleFunc("/lockers/a/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"events":[]}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"connected":false}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newClient(srv.URL + "/")
	ctx := context.Background()

	ids, err := c.ListLockers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	msgs, err := c.RecentMessages(ctx, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(3), msgs[0].ID)
	assert.Equal(t, "a", *msgs[0].LockerID)

	events, err := c.LockerEvents(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.False(t, h.Connected)
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, 10*time.Second)
	cb.now = func() time.Time { return now }

	cb.onFailure()
	assert.True(t, cb.canExecute())
	cb.onFailure()
	assert.False(t, cb.canExecute())
	assert.Equal(t, "open", cb.Status()["state"])

	now = now.Add(11 * time.Second)
	assert.True(t, cb.canExecute())
	assert.Equal(t, "half-open", cb.Status()["state"])

	cb.onFailure()
	assert.False(t, cb.canExecute(), "a failed trial reopens the breaker")

	now = now.Add(11 * time.Second)
	require.True(t, cb.canExecute())
	cb.onSuccess()
	assert.Equal(t, "closed", cb.Status()["state"])
	assert.Equal(t, 0, cb.Status()["failure_count"])
}

func TestCircuitOpenShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, time.Second, 0, time.Millisecond)
	for i := 0; i < 5; i++ {
		_, _ = c.ListLockers(context.Background())
	}

	_, err := c.ListLockers(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}
