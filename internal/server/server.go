// Package server multiplexes subscription streams over websocket
// connections. Each connection carries any number of logical subscriptions
// registered with the process-wide pubsub.Publisher.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/retro-board/internal/pubsub"
	"github.com/npezzotti/retro-board/internal/stats"
	"github.com/npezzotti/retro-board/pkg/domain"
	"go.uber.org/zap"
)

var ErrServerClosed = errors.New("subscription server closed")

const (
	defaultWriteWait = 10 * time.Second
	defaultPongWait  = 60 * time.Second
	maxMessageSize   = 4096
	sendBuffer       = 256
)

// Subscriber is the part of the publisher a connection needs.
type Subscriber interface {
	SubscribeShared(entity domain.EntityType, out chan<- pubsub.Delivery) (*pubsub.Subscription, error)
}

type SubscriptionServer struct {
	log          *zap.Logger
	pub          Subscriber
	stats        stats.StatsProvider
	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
	clients      map[*Client]struct{}
	clientsLock  sync.Mutex
	closed       bool
	wg           sync.WaitGroup
}

// NewSubscriptionServer creates a server. Zero keepalive durations fall back
// to the defaults.
func NewSubscriptionServer(logger *zap.Logger, pub Subscriber, sp stats.StatsProvider, writeWait, pongWait time.Duration) *SubscriptionServer {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}

	sp.RegisterMetric(stats.NumClients)

	return &SubscriptionServer{
		log:          logger,
		pub:          pub,
		stats:        sp,
		writeWait:    writeWait,
		pongWait:     pongWait,
		pingInterval: (pongWait * 9) / 10,
		clients:      make(map[*Client]struct{}),
	}
}

// Serve takes ownership of an upgraded connection and starts its pumps.
func (ss *SubscriptionServer) Serve(conn *websocket.Conn) error {
	c := NewClient(conn, ss)
	if !ss.addClient(c) {
		conn.Close()
		return ErrServerClosed
	}

	go c.Write()
	go c.Read()
	go c.forward()
	return nil
}

func (ss *SubscriptionServer) addClient(c *Client) bool {
	ss.clientsLock.Lock()
	defer ss.clientsLock.Unlock()

	if ss.closed {
		return false
	}

	ss.clients[c] = struct{}{}
	ss.wg.Add(1)
	ss.stats.Incr(stats.NumClients)
	ss.log.Info("client connected", zap.String("client", c.id), zap.String("codec", c.codec.Subprotocol()))
	return true
}

func (ss *SubscriptionServer) removeClient(c *Client) {
	ss.clientsLock.Lock()
	defer ss.clientsLock.Unlock()

	if _, ok := ss.clients[c]; !ok {
		return
	}

	delete(ss.clients, c)
	ss.wg.Done()
	ss.stats.Decr(stats.NumClients)
	ss.log.Info("client disconnected", zap.String("client", c.id))
}

// NumClients returns the number of connected clients.
func (ss *SubscriptionServer) NumClients() int {
	ss.clientsLock.Lock()
	defer ss.clientsLock.Unlock()

	return len(ss.clients)
}

// Shutdown stops accepting connections, closes every connected client and
// waits until their subscriptions are released or ctx is done.
func (ss *SubscriptionServer) Shutdown(ctx context.Context) error {
	ss.log.Info("shutting down subscription server")

	ss.clientsLock.Lock()
	ss.closed = true
	clients := make([]*Client, 0, len(ss.clients))
	for c := range ss.clients {
		clients = append(clients, c)
	}
	ss.clientsLock.Unlock()

	for _, c := range clients {
		c.stopClient()
	}

	done := make(chan struct{})
	go func() {
		ss.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
