package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/retro-board/internal/pubsub"
	"github.com/npezzotti/retro-board/pkg/wire"
	"go.uber.org/zap"
)

// Client is one websocket connection and the subscriptions opened on it.
// Events for all of its subscriptions share one queue so they reach the
// connection in publish order.
type Client struct {
	id       string
	conn     *websocket.Conn
	srv      *SubscriptionServer
	log      *zap.Logger
	codec    wire.Codec
	send     chan *wire.ServerMessage
	events   chan pubsub.Delivery
	subs     map[string]*subscription
	routes   map[*pubsub.Subscription]*subscription
	subsLock sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

type subscription struct {
	id     string
	filter *wire.Subscribe
	events *pubsub.Subscription
}

func NewClient(conn *websocket.Conn, ss *SubscriptionServer) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		conn:   conn,
		srv:    ss,
		log:    ss.log.With(zap.String("client", id)),
		codec:  wire.ForSubprotocol(conn.Subprotocol()),
		send:   make(chan *wire.ServerMessage, sendBuffer),
		events: make(chan pubsub.Delivery, sendBuffer),
		subs:   make(map[string]*subscription),
		routes: make(map[*pubsub.Subscription]*subscription),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(c.srv.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := c.codec.Marshal(msg)
			if err != nil {
				c.log.Error("failed to serialize message", zap.Error(err))
				continue
			}

			if !c.sendMessage(c.codec.MessageType(), bytes) {
				return
			}
		case <-c.stop:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(c.srv.writeWait))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.srv.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.srv.pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("ws: read", zap.Error(err))
			}
			return
		}

		var msg wire.ClientMessage
		if err := c.codec.Unmarshal(raw, &msg); err != nil {
			c.log.Debug("error parsing message", zap.Error(err))
			c.queueMessage(wire.ErrInvalidMessage(0))
			continue
		}

		if err := msg.Validate(); err != nil {
			c.queueMessage(wire.ErrBadRequest(msg.Id, err))
			continue
		}

		switch {
		case msg.Subscribe != nil:
			c.subscribe(msg.Id, msg.Subscribe)
		case msg.Unsubscribe != nil:
			c.unsubscribe(msg.Id, msg.Unsubscribe.SubId)
		}
	}
}

func (c *Client) queueMessage(msg *wire.ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(c.srv.writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn("write message", zap.Error(err))
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.unsubscribeAll()
	c.stopClient()
	c.srv.removeClient(c)
}

func (c *Client) subscribe(msgId int, req *wire.Subscribe) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	if _, ok := c.subs[req.SubId]; ok {
		c.queueMessage(wire.ErrSubscriptionExists(msgId))
		return
	}

	events, err := c.srv.pub.SubscribeShared(req.Entity, c.events)
	if err != nil {
		c.log.Warn("subscribe failed", zap.String("sub_id", req.SubId), zap.Error(err))
		c.queueMessage(wire.ErrServiceUnavailable(msgId))
		return
	}

	// route cannot see the subscription before its ack is queued
	if !c.queueMessage(wire.NoErrOK(msgId)) {
		events.Unsubscribe()
		c.log.Warn("closing client, subscribe acknowledgement dropped", zap.String("sub_id", req.SubId))
		c.stopClient()
		return
	}

	s := &subscription{id: req.SubId, filter: req, events: events}
	c.subs[s.id] = s
	c.routes[events] = s

	c.log.Debug("subscribed", zap.String("sub_id", s.id), zap.String("entity", string(req.Entity)))
}

func (c *Client) unsubscribe(msgId int, subId string) {
	c.subsLock.Lock()
	s, ok := c.subs[subId]
	if ok {
		delete(c.subs, subId)
		delete(c.routes, s.events)
	}
	c.subsLock.Unlock()

	if !ok {
		c.queueMessage(wire.ErrSubscriptionNotFound(msgId))
		return
	}

	s.events.Unsubscribe()
	c.queueMessage(wire.NoErrOK(msgId))
	c.log.Debug("unsubscribed", zap.String("sub_id", subId))
}

func (c *Client) unsubscribeAll() {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	for id, s := range c.subs {
		s.events.Unsubscribe()
		delete(c.subs, id)
		delete(c.routes, s.events)
	}
}

// forward moves events from the shared queue to the send queue in the order
// they were published. Events of released subscriptions, including those
// already queued, are dropped. It returns when the client stops.
func (c *Client) forward() {
	for {
		select {
		case d := <-c.events:
			msg := c.route(d)
			if msg == nil {
				continue
			}

			select {
			case c.send <- msg:
			case <-c.stop:
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Client) route(d pubsub.Delivery) *wire.ServerMessage {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	s, ok := c.routes[d.Sub]
	if !ok || !s.filter.Accepts(d.Event.Mutation) {
		return nil
	}
	return wire.EventMessage(s.id, d.Event)
}
