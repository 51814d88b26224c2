package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/npezzotti/retro-board/pkg/wire"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

const (
	eventBuffer = 256
	writeWait   = 10 * time.Second
)

var ErrSubscriberClosed = errors.New("subscriber closed")

// Subscriber is one websocket connection to the board server carrying any
// number of subscriptions.
type Subscriber struct {
	conn    *websocket.Conn
	codec   wire.Codec
	log     *zap.Logger
	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*Subscription
	pending map[int]chan *wire.Response
	nextId  int
	err     error

	done chan struct{}
}

// Subscription receives the events of one entity type.
type Subscription struct {
	id     string
	entity domain.EntityType
	events chan domain.MutationEvent
	shared bool
	s      *Subscriber
	once   sync.Once
	err    error
}

func (sub *Subscription) Id() string {
	return sub.id
}

// Events yields the subscription's events in delivery order. The channel is
// closed by Unsubscribe or when the connection drops, unless it was passed to
// SubscribeTo, in which case it is never closed.
func (sub *Subscription) Events() <-chan domain.MutationEvent {
	return sub.events
}

func (sub *Subscription) closeEvents() {
	if !sub.shared {
		close(sub.events)
	}
}

// Err returns domain.ErrChannelDisconnected once Events was closed because the
// connection dropped, nil otherwise.
func (sub *Subscription) Err() error {
	sub.s.mu.Lock()
	defer sub.s.mu.Unlock()

	return sub.err
}

// Unsubscribe stops delivery. It is safe to call more than once and after the
// connection dropped.
func (sub *Subscription) Unsubscribe(ctx context.Context) error {
	var err error
	sub.once.Do(func() {
		sub.s.mu.Lock()
		_, live := sub.s.subs[sub.id]
		if live {
			delete(sub.s.subs, sub.id)
			sub.closeEvents()
		}
		sub.s.mu.Unlock()

		if !live {
			return
		}

		err = sub.s.request(ctx, &wire.ClientMessage{Unsubscribe: &wire.Unsubscribe{SubId: sub.id}})
		if errors.Is(err, domain.ErrChannelDisconnected) || errors.Is(err, ErrSubscriberClosed) {
			err = nil
		}
	})
	return err
}

// Dial opens a subscription connection to the server.
func (c *Client) Dial(ctx context.Context) (*Subscriber, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{c.subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("client.Dial: %w", &HTTPError{StatusCode: resp.StatusCode, Message: err.Error()})
		}
		return nil, fmt.Errorf("client.Dial: %w", err)
	}

	s := &Subscriber{
		conn:    conn,
		codec:   wire.ForSubprotocol(conn.Subprotocol()),
		log:     c.log,
		subs:    make(map[string]*Subscription),
		pending: make(map[int]chan *wire.Response),
		done:    make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

// Done is closed once the connection is gone.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Subscribe opens a subscription for entity, optionally restricted to the
// given mutation kinds. Events published before the server acknowledged the
// request are not delivered.
func (s *Subscriber) Subscribe(ctx context.Context, entity domain.EntityType, kinds ...domain.MutationKind) (*Subscription, error) {
	return s.subscribe(ctx, make(chan domain.MutationEvent, eventBuffer), false, entity, kinds)
}

// SubscribeTo is Subscribe delivering into out. Subscriptions sharing out
// receive their events in the order the server sent them, across entity
// types. out is never closed; watch Done to learn that the connection is gone.
func (s *Subscriber) SubscribeTo(ctx context.Context, out chan domain.MutationEvent, entity domain.EntityType, kinds ...domain.MutationKind) (*Subscription, error) {
	if out == nil {
		return nil, errors.New("subscribe: nil event channel")
	}
	return s.subscribe(ctx, out, true, entity, kinds)
}

func (s *Subscriber) subscribe(ctx context.Context, events chan domain.MutationEvent, shared bool, entity domain.EntityType, kinds []domain.MutationKind) (*Subscription, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate subscription id: %w", err)
	}

	sub := &Subscription{
		id:     id,
		entity: entity,
		events: events,
		shared: shared,
		s:      s,
	}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	s.subs[id] = sub
	s.mu.Unlock()

	err = s.request(ctx, &wire.ClientMessage{
		Subscribe: &wire.Subscribe{SubId: id, Entity: entity, MutationIn: kinds},
	})
	if err != nil {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			sub.closeEvents()
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", entity, err)
	}

	return sub, nil
}

// request sends msg and waits for the server's acknowledgement.
func (s *Subscriber) request(ctx context.Context, msg *wire.ClientMessage) error {
	reply := make(chan *wire.Response, 1)

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.nextId++
	msg.Id = s.nextId
	msg.Timestamp = wire.Now()
	s.pending[msg.Id] = reply
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.Id)
		s.mu.Unlock()
	}()

	if err := s.write(msg); err != nil {
		return err
	}

	select {
	case resp := <-reply:
		if resp.ResponseCode != http.StatusOK {
			return &ResponseError{Code: resp.ResponseCode, Message: resp.Error}
		}
		return nil
	case <-s.done:
		return s.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscriber) write(msg *wire.ClientMessage) error {
	data, err := s.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(s.codec.MessageType(), data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (s *Subscriber) closeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Subscriber) readLoop() {
	defer func() {
		s.shutdown(domain.ErrChannelDisconnected)
		s.conn.Close()
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if s.closeErr() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				s.log.Warn("subscription connection lost", zap.Error(err))
			}
			return
		}

		var msg wire.ServerMessage
		if err := s.codec.Unmarshal(raw, &msg); err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch {
		case msg.Response != nil:
			s.mu.Lock()
			reply, ok := s.pending[msg.Id]
			s.mu.Unlock()
			if ok {
				reply <- msg.Response
			} else if msg.Response.ResponseCode != http.StatusOK {
				s.log.Warn("server rejected message", zap.Int("code", msg.Response.ResponseCode), zap.String("error", msg.Response.Error))
			}
		case msg.Event != nil:
			s.deliver(msg.Event)
		}
	}
}

func (s *Subscriber) deliver(ev *wire.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[ev.SubId]
	if !ok {
		// unsubscribed while the event was in flight
		return
	}

	select {
	case sub.events <- ev.Event:
	default:
		s.log.Warn("subscription buffer full, dropping event",
			zap.String("sub_id", sub.id),
			zap.Stringer("event", ev.Event),
		)
	}
}

// shutdown closes every subscription, recording reason as their error.
func (s *Subscriber) shutdown(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}
	s.err = reason

	for id, sub := range s.subs {
		sub.err = reason
		delete(s.subs, id)
		sub.closeEvents()
	}
	close(s.done)
}

// Close closes the connection. Open subscriptions end with
// ErrSubscriberClosed.
func (s *Subscriber) Close() error {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))

	s.shutdown(ErrSubscriberClosed)
	return s.conn.Close()
}
