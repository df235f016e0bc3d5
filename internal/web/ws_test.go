package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratemysite/backend/internal/analysis"
	"github.com/ratemysite/backend/internal/scoring"
	"github.com/ratemysite/backend/internal/session"
)

func dialStream(t *testing.T, base string, urls ...string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(streamURL(base, urls...), "http")
	u = strings.Replace(u, "/stream?", "/ws/stream?", 1)
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type rawWSMessage struct {
	Type    analysis.Kind   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readUntilClose(t *testing.T, conn *websocket.Conn) []rawWSMessage {
	t.Helper()
	var out []rawWSMessage
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			return out
		}
		var msg rawWSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		out = append(out, msg)
	}
}

func TestWSStream(t *testing.T) {
	env := newTestEnv(t, scoring.ScorerFunc(instantScorer))
	conn := dialStream(t, env.srv.URL, "https://a.example", "https://b.example")

	msgs := readUntilClose(t, conn)
	require.NotEmpty(t, msgs)
	assert.Equal(t, analysis.KindInit, msgs[0].Type)
	assert.Equal(t, analysis.KindDone, msgs[len(msgs)-1].Type)

	results := 0
	for _, m := range msgs {
		if m.Type == analysis.KindResult {
			results++
		}
	}
	assert.Equal(t, 2, results)
}

func TestWSStreamCancelMessage(t *testing.T) {
	scorer := newGatedScorer()
	env := newTestEnv(t, scorer)
	conn := dialStream(t, env.srv.URL, "https://a.example", "https://b.example")

	var first rawWSMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, analysis.KindInit, first.Type)
	var init analysis.InitPayload
	require.NoError(t, json.Unmarshal(first.Payload, &init))

	<-scorer.started
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgCancel}))
	require.Eventually(t, func() bool {
		snap, err := env.store.Get(init.SessionID)
		return err == nil && snap.Cancelled
	}, 2*time.Second, 5*time.Millisecond)
	scorer.release()

	msgs := readUntilClose(t, conn)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	require.Equal(t, analysis.KindDone, last.Type)
	var done analysis.DonePayload
	require.NoError(t, json.Unmarshal(last.Payload, &done))
	assert.Equal(t, "cancelled", done.Status)

	snap, err := env.store.Get(init.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.Cancelled, snap.Status)
	assert.Len(t, snap.Results, 1)
}

func TestWSStreamRejectsInvalidInputBeforeUpgrade(t *testing.T) {
	env := newTestEnv(t, scoring.ScorerFunc(instantScorer))
	resp, err := http.Get(env.srv.URL + "/ws/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, env.store.Len())
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://example.com", "example.com", true},
		{"http://localhost:5173", "example.com", true},
		{"http://127.0.0.1", "example.com", true},
		{"http://[::1]:3000", "example.com", true},
		{"http://evil.test", "example.com", false},
		{"::bad", "example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws/stream", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, checkOrigin(req), "origin %q", tt.origin)
	}
}
