package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Conference/internal/adapters/loopback"
	"github.com/dkeye/Conference/internal/app/orch"
	"github.com/dkeye/Conference/internal/app/session"
	"github.com/dkeye/Conference/internal/config"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/core/coretest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	hub    *loopback.Hub
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Mode:           "test",
		StaticPath:     t.TempDir(),
		ReadLimit:      4096,
		PingPeriod:     time.Second,
		Secret:         "secret",
		UserName:       "guest",
		RoomKind:       "mesh",
		ActionLimit:    100,
		ActionInterval: time.Minute,
		EventBuffer:    8,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := loopback.NewHub(ctx, "")
	registry := session.NewRegistry(ctx, func(context.Context, core.SessionID) (*orch.Coordinator, func()) {
		return orch.New(hub.Transport(), &coretest.Microphone{}, coretest.FrontBack(), &coretest.AudioRouter{}, orch.Options{}), nil
	})
	t.Cleanup(func() {
		registry.Close()
		hub.Close()
		cancel()
	})
	return &testServer{t: t, router: SetupRouter(ctx, cfg, hub, registry), hub: hub}
}

// do sends a request as client sid, carrying any extra cookies.
func (s *testServer) do(method, path, sid, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "ct", Value: sid})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "ConferenceSessions" {
			return c
		}
	}
	return nil
}

func TestConnectFlow(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	w := s.do(http.MethodPost, "/api/connect", "alice", `{"room":"Test-1","userName":"alice","speaker":"loud"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["connected"])
	streams := body["streams"].([]any)
	require.Len(t, streams, 1)
	me := streams[0].(map[string]any)
	assert.Equal(t, true, me["is_me"])
	assert.Equal(t, "alice", me["user_name"])
	assert.Equal(t, false, me["has_video"])

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)

	w = s.do(http.MethodPost, "/api/connect", "alice", `{"room":"Test-1","userName":"alice"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/streams", "alice", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "Test-1", body["last_room"])
	assert.Equal(t, "speaker", body["speaker"])

	w = s.do(http.MethodPost, "/api/mute", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, true, body["muted"])

	w = s.do(http.MethodPost, "/api/speaker", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "receiver", decode(t, w)["speaker"])

	w = s.do(http.MethodGet, "/api/rooms", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	rooms := decode(t, w)["rooms"].([]any)
	require.Len(t, rooms, 1)
	room := rooms[0].(map[string]any)
	assert.Equal(t, "Test-1", room["name"])
	assert.Equal(t, "mesh", room["kind"])
	assert.EqualValues(t, 1, room["members"])

	w = s.do(http.MethodPost, "/api/disconnect", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["connected"])

	w = s.do(http.MethodPost, "/api/disconnect", "alice", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTwoClientsSeeEachOther(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/connect", "alice", `{"room":"Test-1","userName":"alice"}`).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/connect", "bob", `{"room":"Test-1","userName":"bob"}`).Code)

	require.Eventually(t, func() bool {
		w := s.do(http.MethodGet, "/api/streams", "alice", "")
		return len(decode(t, w)["streams"].([]any)) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectRejectsBadInput(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/connect", "a", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/connect", "a", `{"room":"r","kind":"star"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/connect", "a", `{"room":"r","speaker":"tv"}`).Code)

	long := strings.Repeat("x", 40)
	w := s.do(http.MethodPost, "/api/connect", "a", `{"room":"r","userName":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.hub.List())
}

func TestSwitchesWhileDisconnected(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	w := s.do(http.MethodPost, "/api/mute", "a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["changed"])

	w = s.do(http.MethodPost, "/api/speaker", "a", `{"speaker":"loud"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["changed"])

	w = s.do(http.MethodPost, "/api/video", "a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["changed"])
}

func TestCloseRoom(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/rooms/none", "a", "").Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/connect", "a", `{"room":"Test-1","userName":"a"}`).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/rooms/Test-1", "b", "").Code)

	require.Eventually(t, func() bool {
		w := s.do(http.MethodGet, "/api/streams", "a", "")
		return decode(t, w)["connected"] == false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchUnknownSession(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	w := s.do(http.MethodPost, "/api/watch/peer", "nobody", `{"type":"offer","sdp":"v=0"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.ActionLimit = 2
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/mute", "a", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/mute", "a", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/mute", "a", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/mute", "b", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/streams", "a", "").Code)
}
