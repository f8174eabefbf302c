package health

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/speedrun-hq/bridgerunner/pkg/bridge"
	"github.com/speedrun-hq/bridgerunner/pkg/circuitbreaker"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	mu       sync.Mutex
	snap     bridge.Snapshot
	subs     map[int]func(bridge.Snapshot)
	next     int
	resets   int
	onSubbed chan struct{}
}

func newStubSession() *stubSession {
	return &stubSession{
		snap:     bridge.Snapshot{SessionID: "s1", Version: 1, Status: bridge.StateReady},
		subs:     make(map[int]func(bridge.Snapshot)),
		onSubbed: make(chan struct{}, 1),
	}
}

func (s *stubSession) Snapshot() bridge.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSession) Subscribe(fn func(bridge.Snapshot)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	select {
	case s.onSubbed <- struct{}{}:
	default:
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *stubSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.snap = bridge.Snapshot{SessionID: "s2", Version: s.snap.Version + 1, Status: bridge.StateIdle}
}

func (s *stubSession) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *stubSession) emit(snap bridge.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	subs := make([]func(bridge.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *stubSession, *circuitbreaker.CircuitBreaker) {
	t.Helper()
	session := newStubSession()
	breaker := circuitbreaker.NewCircuitBreaker("relay", true, 1, time.Minute, time.Minute, &logger.EmptyLogger{})
	srv := NewServer("0", apiKey, session, breaker, &logger.EmptyLogger{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, session, breaker
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthAndReady(t *testing.T) {
	ts, _, breaker := newTestServer(t, "")

	code, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, _ = get(t, ts.URL+"/ready")
	assert.Equal(t, http.StatusOK, code)

	breaker.RecordFailure()
	code, body = get(t, ts.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Relay circuit open", body)
}

func TestStatus(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	code, body := get(t, ts.URL+"/status")
	require.Equal(t, http.StatusOK, code)

	var status struct {
		Session bridge.Snapshot `json:"session"`
		Relay   struct {
			Breaker   string `json:"breaker"`
			Circuit   string `json:"circuit"`
			Threshold int    `json:"threshold"`
		} `json:"relay"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "s1", status.Session.SessionID)
	assert.Equal(t, bridge.StateReady, status.Session.Status)
	assert.Equal(t, "relay", status.Relay.Breaker)
	assert.Equal(t, "closed", status.Relay.Circuit)
	assert.Equal(t, 1, status.Relay.Threshold)
}

func TestAdminEndpointsRequireKey(t *testing.T) {
	ts, session, breaker := newTestServer(t, "secret")
	breaker.RecordFailure()
	require.True(t, breaker.IsOpen())

	post := func(path, auth string) int {
		req, err := http.NewRequest(http.MethodPost, ts.URL+path, nil)
		require.NoError(t, err)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post("/circuit/reset", ""))
	assert.Equal(t, http.StatusUnauthorized, post("/circuit/reset", "Basic secret"))
	assert.Equal(t, http.StatusUnauthorized, post("/circuit/reset", "Bearer wrong"))
	assert.True(t, breaker.IsOpen())

	assert.Equal(t, http.StatusOK, post("/circuit/reset", "Bearer secret"))
	assert.False(t, breaker.IsOpen())

	assert.Equal(t, http.StatusOK, post("/session/reset", "Bearer secret"))
	assert.Equal(t, 1, session.Resets())

	code, _ := get(t, ts.URL+"/session/reset")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMetricsWithoutKey(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	code, _ := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	ts, session, _ := newTestServer(t, "")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first bridge.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, bridge.StateReady, first.Status)

	<-session.onSubbed
	session.emit(bridge.Snapshot{SessionID: "s1", Version: 2, Status: bridge.StateConfirming})

	var next bridge.Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, uint64(2), next.Version)
	assert.Equal(t, bridge.StateConfirming, next.Status)
}
