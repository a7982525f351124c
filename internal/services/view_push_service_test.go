package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bridge-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *PushConnection) []PushMessage {
	var out []PushMessage
	for {
		select {
		case data := <-c.Send:
			var msg PushMessage
			if err := json.Unmarshal(data, &msg); err == nil {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func TestBroadcastHonoursChainFilter(t *testing.T) {
	push := NewViewPushService(testLogger())
	all := NewPushConnection(nil)
	bsc := NewPushConnection(nil, 97)
	other := NewPushConnection(nil, 1)
	for _, c := range []*PushConnection{all, bsc, other} {
		push.Register(c)
	}
	assert.Equal(t, 3, push.ActiveConnections())

	push.ViewRefreshed(97, QueryWithdrawView)

	require.Len(t, drain(all), 1)
	msgs := drain(bsc)
	require.Len(t, msgs, 1)
	assert.Equal(t, PushTypeViewRefreshed, msgs[0].Type)
	assert.Equal(t, uint64(97), msgs[0].ChainID)
	assert.Equal(t, QueryWithdrawView, msgs[0].Query)
	assert.NotEmpty(t, msgs[0].MessageID)
	assert.Empty(t, drain(other))
}

func TestActionConfirmedReachesSourceChainSubscribers(t *testing.T) {
	push := NewViewPushService(testLogger())
	src := NewPushConnection(nil, 5611)
	push.Register(src)

	push.ActionConfirmed(models.ActionResult{Action: ActionApproveWithdraw, ChainID: 97, SourceChainID: 5611})

	msgs := drain(src)
	require.Len(t, msgs, 1)
	assert.Equal(t, PushTypeActionConfirmed, msgs[0].Type)
}

func TestFullBufferDropsWithoutBlocking(t *testing.T) {
	push := NewViewPushService(testLogger())
	slow := NewPushConnection(nil)
	push.Register(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < pushSendBuffer+10; i++ {
			push.ViewRefreshed(97, QueryDepositView)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Len(t, slow.Send, pushSendBuffer)
}

func TestUnregisterClosesSend(t *testing.T) {
	push := NewViewPushService(testLogger())
	c := NewPushConnection(nil)
	push.Register(c)
	push.Unregister(c)
	push.Unregister(c)

	_, open := <-c.Send
	assert.False(t, open)
	assert.Zero(t, push.ActiveConnections())
}

func TestServeOverWebsocket(t *testing.T) {
	push := NewViewPushService(testLogger())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		push.Serve(NewPushConnection(conn))
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() PushMessage {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg PushMessage
		require.NoError(t, ws.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, PushTypeConnected, read().Type)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"action": "subscribe", "chainIds": []uint64{97}}))
	assert.Equal(t, PushTypeSubscribed, read().Type)

	require.NoError(t, ws.WriteJSON(map[string]string{"action": "ping"}))
	assert.Equal(t, PushTypePong, read().Type)

	push.ViewRefreshed(56, QueryDepositView)
	push.ViewRefreshed(97, QueryWithdrawView)
	msg := read()
	assert.Equal(t, PushTypeViewRefreshed, msg.Type)
	assert.Equal(t, uint64(97), msg.ChainID)

	ws.Close()
	require.Eventually(t, func() bool { return push.ActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
