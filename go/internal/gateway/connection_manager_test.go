package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

type streamFixture struct {
	ctrl   *fakeController
	server *Server
	http   *httptest.Server
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	ctrl := newFakeController()
	srv := NewServer(ServerConfig{Connection: DefaultConnectionConfig()}, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Connections().Start(ctx)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		hs.Close()
	})
	return &streamFixture{ctrl: ctrl, server: srv, http: hs}
}

func (f *streamFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/status?client_id=test"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) StatusMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg StatusMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageTypeStatus, msg.Type)
	return msg
}

func TestStatusStreamSendsInitialSnapshot(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t)

	msg := readStatus(t, conn)
	assert.Equal(t, models.FlagGreen, msg.Data.Flag)
	assert.Equal(t, 5, msg.Data.DelaySeconds)
}

func TestStatusStreamBroadcasts(t *testing.T) {
	f := newStreamFixture(t)
	first := f.dial(t)
	second := f.dial(t)
	readStatus(t, first)
	readStatus(t, second)

	require.Eventually(t, func() bool {
		return f.server.Connections().Stats().TotalConnections == 2
	}, 2*time.Second, 10*time.Millisecond)

	f.server.Broadcast(trackstatus.Snapshot{Flag: models.FlagRed, PendingFlag: models.FlagRed, DelaySeconds: 7})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readStatus(t, conn)
		assert.Equal(t, models.FlagRed, msg.Data.Flag)
		assert.Equal(t, 7, msg.Data.DelaySeconds)
	}

	require.Eventually(t, func() bool {
		return f.server.Connections().Stats().Broadcasts == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatusStreamRefresh(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t)
	readStatus(t, conn)

	f.ctrl.setSnapshot(func(s *trackstatus.Snapshot) { s.Flag = models.FlagYellow })
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"refresh"}`)))

	msg := readStatus(t, conn)
	assert.Equal(t, models.FlagYellow, msg.Data.Flag)
}

func TestStatusStreamUnregistersOnClose(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t)
	readStatus(t, conn)

	require.Eventually(t, func() bool {
		return f.server.Connections().Stats().TotalConnections == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool {
		return f.server.Connections().Stats().TotalConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSlowConnectionIsDropped(t *testing.T) {
	upgrader := websocket.Upgrader{}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := upgrader.Upgrade(w, r, nil); err == nil {
			defer c.Close()
			_, _, _ = c.ReadMessage()
		}
	}))
	defer hs.Close()

	ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()

	cm := NewConnectionManager(ConnectionConfig{SendBuffer: 1}, newFakeController())
	conn := &Connection{ID: "slow", Conn: ws, Send: make(chan []byte, 1), Manager: cm}
	cm.registerConnection(conn)
	conn.Send <- []byte("backlog")

	cm.handleBroadcast([]byte("frame"))

	stats := cm.Stats()
	assert.Equal(t, 0, stats.TotalConnections)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, uint64(1), stats.Broadcasts)
}
