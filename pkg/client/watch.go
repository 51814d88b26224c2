package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/npezzotti/retro-board/pkg/roomsync"
	"go.uber.org/zap"
)

const DefaultRetryDelay = time.Second

// RoomWatcher keeps a live snapshot of one room. Every applied event yields a
// new *domain.Room; snapshots handed out are never modified.
type RoomWatcher struct {
	client     *Client
	roomId     int
	retryDelay time.Duration
	log        *zap.Logger

	current atomic.Pointer[domain.Room]
	updates chan *domain.Room

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WatchOption func(*RoomWatcher)

// WithRetryDelay sets the pause between reconnect attempts.
func WithRetryDelay(d time.Duration) WatchOption {
	return func(w *RoomWatcher) {
		w.retryDelay = d
	}
}

// feed is one connection's worth of subscriptions. All of them deliver into
// events, which keeps the order the server sent them in: a comment on a new
// topic is always applied after the topic.
type feed struct {
	sub      *Subscriber
	events   chan domain.MutationEvent
	comments *Subscription
	topics   *Subscription
	rooms    *Subscription
}

func (f *feed) close() {
	f.sub.Close()
}

// WatchRoom subscribes to mutation events, then fetches the room, so that no
// event published after the fetch is missed. Events that arrived before the
// fetch completed are folded into the fetched snapshot. When the connection
// drops the watcher reconnects and refetches; events published in the gap
// are covered by the new snapshot.
//
// ctx bounds the initial connect only; the watcher runs until Close.
func (c *Client) WatchRoom(ctx context.Context, roomId int, opts ...WatchOption) (*RoomWatcher, error) {
	w := &RoomWatcher{
		client:     c,
		roomId:     roomId,
		retryDelay: DefaultRetryDelay,
		log:        c.log.With(zap.Int("room", roomId)),
		updates:    make(chan *domain.Room, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	f, err := w.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("client.WatchRoom: %w", err)
	}

	ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)
	go w.run(ctx, f)

	return w, nil
}

// Current returns the latest snapshot.
func (w *RoomWatcher) Current() *domain.Room {
	return w.current.Load()
}

// Updates yields new snapshots. Only the latest unread snapshot is kept, so a
// slow reader skips intermediate states. The channel is closed by Close.
func (w *RoomWatcher) Updates() <-chan *domain.Room {
	return w.updates
}

func (w *RoomWatcher) Close() {
	w.cancel()
	w.wg.Wait()
}

func (w *RoomWatcher) publish(room *domain.Room) {
	w.current.Store(room)
	for {
		select {
		case w.updates <- room:
			return
		default:
		}
		// replace the stale unread snapshot
		select {
		case <-w.updates:
		default:
		}
	}
}

func (w *RoomWatcher) connect(ctx context.Context) (*feed, error) {
	sub, err := w.client.Dial(ctx)
	if err != nil {
		return nil, err
	}

	f := &feed{sub: sub, events: make(chan domain.MutationEvent, eventBuffer)}
	if f.topics, err = sub.SubscribeTo(ctx, f.events, domain.EntityTopic); err != nil {
		sub.Close()
		return nil, err
	}
	if f.comments, err = sub.SubscribeTo(ctx, f.events, domain.EntityComment); err != nil {
		sub.Close()
		return nil, err
	}
	if f.rooms, err = sub.SubscribeTo(ctx, f.events, domain.EntityRoom, domain.MutationUpdated); err != nil {
		sub.Close()
		return nil, err
	}

	room, err := w.client.Room(ctx, w.roomId)
	if err != nil {
		sub.Close()
		return nil, err
	}
	room = roomsync.Clone(room)

	w.publish(w.drain(f, room))
	return f, nil
}

// drain folds the events already buffered on f into room.
func (w *RoomWatcher) drain(f *feed, room *domain.Room) *domain.Room {
	for {
		select {
		case ev := <-f.events:
			room = w.apply(room, ev)
		default:
			return room
		}
	}
}

func (w *RoomWatcher) apply(room *domain.Room, ev domain.MutationEvent) *domain.Room {
	next, err := roomsync.Merge(room, ev)
	if err != nil {
		var unsupported *domain.UnsupportedOperationError
		if errors.As(err, &unsupported) {
			w.log.Warn("ignoring unsupported event", zap.Stringer("event", ev))
		} else {
			w.log.Error("failed to merge event", zap.Stringer("event", ev), zap.Error(err))
		}
		return room
	}
	return next
}

func (w *RoomWatcher) run(ctx context.Context, f *feed) {
	defer func() {
		if f != nil {
			f.close()
		}
		close(w.updates)
		w.wg.Done()
	}()

	for {
		if f == nil {
			var err error
			if f, err = w.reconnect(ctx); err != nil {
				return
			}
		}

		if !w.follow(ctx, f) {
			return
		}

		w.log.Warn("subscription channel disconnected, reconnecting")
		f.close()
		f = nil
	}
}

// follow applies events from f until ctx is done (false) or the connection
// drops (true).
func (w *RoomWatcher) follow(ctx context.Context, f *feed) bool {
	room := w.Current()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-f.sub.Done():
			return true
		case ev := <-f.events:
			room = w.apply(room, ev)
			w.publish(room)
		}
	}
}

// reconnect retries connect until it succeeds or ctx is done.
func (w *RoomWatcher) reconnect(ctx context.Context) (*feed, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.retryDelay):
		}

		f, err := w.connect(ctx)
		if err == nil {
			w.log.Info("reconnected")
			return f, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		w.log.Warn("reconnect failed", zap.Error(err))
	}
}
