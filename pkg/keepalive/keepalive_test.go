package keepalive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing_OK(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("Bot is running!"))
	}))
	defer srv.Close()

	p := New(srv.URL, 0, srv.Client())
	require.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestPing_RetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New(srv.URL, time.Minute, srv.Client())
	p.retryWait = time.Millisecond

	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(pingRetries+1), hits.Load())
}

func TestPing_RecoversOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, time.Minute, srv.Client())
	p.retryWait = time.Millisecond

	require.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, int32(2), hits.Load())
}

func TestJob(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	job := New(srv.URL, 0, srv.Client()).Job()
	assert.Equal(t, "keepalive", job.Name)
	assert.Equal(t, DefaultInterval, job.Interval)

	job.Action(context.Background())
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewLeavesSharedClientsAlone(t *testing.T) {
	before := http.DefaultClient.Timeout
	shared := &http.Client{}

	New("https://bot.example", 0, nil)
	New("https://bot.example", 0, shared)

	assert.Equal(t, before, http.DefaultClient.Timeout)
	assert.Zero(t, shared.Timeout)
}
