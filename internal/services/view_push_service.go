package services

import (
	"encoding/json"
	"sync"
	"time"

	"bridge-backend/internal/metrics"
	"bridge-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Push message types
const (
	PushTypeConnected       = "connected"
	PushTypeViewRefreshed   = "view_refreshed"
	PushTypeActionConfirmed = "action_confirmed"
	PushTypeSubscribed      = "subscribed"
	PushTypePong            = "pong"
)

const (
	pushWriteWait  = 10 * time.Second
	pushPongWait   = 60 * time.Second
	pushPingPeriod = (pushPongWait * 9) / 10
	pushSendBuffer = 64
)

// PushMessage one frame sent to websocket clients
type PushMessage struct {
	Type      string      `json:"type"`
	MessageID string      `json:"message_id"`
	Timestamp time.Time   `json:"timestamp"`
	ChainID   uint64      `json:"chainId,omitempty"`
	Query     string      `json:"query,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// PushConnection a subscribed client. An empty chain set receives every chain.
type PushConnection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu     sync.RWMutex
	chains map[uint64]struct{}
}

// NewPushConnection wraps conn with a fresh id, subscribed to chains
func NewPushConnection(conn *websocket.Conn, chains ...uint64) *PushConnection {
	c := &PushConnection{
		ID:     uuid.NewString(),
		Conn:   conn,
		Send:   make(chan []byte, pushSendBuffer),
		chains: make(map[uint64]struct{}),
	}
	c.Subscribe(chains...)
	return c
}

// Subscribe adds chains to the connection's filter
func (c *PushConnection) Subscribe(chains ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range chains {
		c.chains[id] = struct{}{}
	}
}

// Unsubscribe removes chains from the filter
func (c *PushConnection) Unsubscribe(chains ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range chains {
		delete(c.chains, id)
	}
}

// Wants reports whether a message about any of chainIDs should reach c
func (c *PushConnection) Wants(chainIDs ...uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.chains) == 0 {
		return true
	}
	for _, id := range chainIDs {
		if _, ok := c.chains[id]; ok {
			return true
		}
	}
	return false
}

// clientCommand a frame sent by the client
type clientCommand struct {
	Action   string   `json:"action"` // subscribe, unsubscribe, ping
	ChainIDs []uint64 `json:"chainIds"`
}

// ViewPushService fans refresh and action notifications out to websocket clients
type ViewPushService struct {
	mu          sync.RWMutex
	connections map[string]*PushConnection
	logger      *logrus.Entry
	now         func() time.Time
}

// NewViewPushService creates the push hub
func NewViewPushService(logger *logrus.Logger) *ViewPushService {
	return &ViewPushService{
		connections: make(map[string]*PushConnection),
		logger:      logger.WithField("component", "view_push"),
		now:         time.Now,
	}
}

// Register adds conn to the hub
func (s *ViewPushService) Register(conn *PushConnection) {
	s.mu.Lock()
	s.connections[conn.ID] = conn
	total := len(s.connections)
	s.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(total))
	s.logger.WithFields(logrus.Fields{"client": conn.ID, "total": total}).Info("📡 Push client connected")
}

// Unregister removes conn and closes its send channel
func (s *ViewPushService) Unregister(conn *PushConnection) {
	s.mu.Lock()
	if _, ok := s.connections[conn.ID]; ok {
		delete(s.connections, conn.ID)
		close(conn.Send)
	}
	total := len(s.connections)
	s.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(total))
	s.logger.WithFields(logrus.Fields{"client": conn.ID, "total": total}).Info("📡 Push client disconnected")
}

// ActiveConnections number of registered clients
func (s *ViewPushService) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// ViewRefreshed notifies clients watching chainID. Matches the scheduler listener.
func (s *ViewPushService) ViewRefreshed(chainID uint64, query string) {
	s.broadcast(PushMessage{Type: PushTypeViewRefreshed, ChainID: chainID, Query: query}, chainID)
}

// ActionConfirmed notifies clients of both chains an action touched
func (s *ViewPushService) ActionConfirmed(result models.ActionResult) {
	chains := []uint64{result.ChainID}
	if result.SourceChainID != 0 {
		chains = append(chains, result.SourceChainID)
	}
	s.broadcast(PushMessage{Type: PushTypeActionConfirmed, ChainID: result.ChainID, Data: result}, chains...)
}

func (s *ViewPushService) stamp(msg PushMessage) ([]byte, error) {
	msg.MessageID = uuid.NewString()
	msg.Timestamp = s.now()
	return json.Marshal(msg)
}

// broadcast queues msg for every interested client. Slow clients drop frames.
func (s *ViewPushService) broadcast(msg PushMessage, chainIDs ...uint64) {
	data, err := s.stamp(msg)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode push message")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.connections {
		if !conn.Wants(chainIDs...) {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			s.logger.WithField("client", conn.ID).Warn("push buffer full, dropping message")
		}
	}
}

// send queues msg for one client
func (s *ViewPushService) send(conn *PushConnection, msg PushMessage) {
	data, err := s.stamp(msg)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.connections[conn.ID]; !ok {
		return
	}
	select {
	case conn.Send <- data:
	default:
	}
}

// Serve registers conn and pumps frames until the client goes away
func (s *ViewPushService) Serve(conn *PushConnection) {
	s.Register(conn)
	s.send(conn, PushMessage{Type: PushTypeConnected, Data: map[string]string{"client_id": conn.ID}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readPump(conn)
	}()
	s.writePump(conn, done)
}

func (s *ViewPushService) readPump(conn *PushConnection) {
	defer s.Unregister(conn)

	conn.Conn.SetReadLimit(4096)
	_ = conn.Conn.SetReadDeadline(time.Now().Add(pushPongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pushPongWait))
	})

	for {
		var cmd clientCommand
		if err := conn.Conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).WithField("client", conn.ID).Debug("push client read failed")
			}
			return
		}
		_ = conn.Conn.SetReadDeadline(time.Now().Add(pushPongWait))

		switch cmd.Action {
		case "subscribe":
			conn.Subscribe(cmd.ChainIDs...)
			s.send(conn, PushMessage{Type: PushTypeSubscribed, Data: cmd.ChainIDs})
		case "unsubscribe":
			conn.Unsubscribe(cmd.ChainIDs...)
			s.send(conn, PushMessage{Type: PushTypeSubscribed, Data: cmd.ChainIDs})
		case "ping":
			s.send(conn, PushMessage{Type: PushTypePong})
		}
	}
}

func (s *ViewPushService) writePump(conn *PushConnection, done <-chan struct{}) {
	ticker := time.NewTicker(pushPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
			if !ok {
				_ = conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
