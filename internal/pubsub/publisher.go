// Package pubsub fans mutation events out to in-process listeners.
package pubsub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/npezzotti/retro-board/internal/stats"
	"github.com/npezzotti/retro-board/pkg/domain"
	"go.uber.org/zap"
)

var ErrPublisherClosed = errors.New("publisher closed")

const DefaultBuffer = 256

// Publisher delivers every published event to each current subscription of
// the event's entity type. Delivery is at most once and never blocks the
// publisher: a subscription whose buffer is full loses the event.
type Publisher struct {
	mu     sync.Mutex
	subs   map[domain.EntityType]map[uint64]*Subscription
	nextId uint64
	buffer int
	closed bool
	log    *zap.Logger
	stats  stats.StatsProvider
}

type Subscription struct {
	id     uint64
	entity domain.EntityType
	c      chan domain.MutationEvent
	out    chan<- Delivery
	pub    *Publisher
	once   sync.Once
}

// Delivery is an event handed to a shared channel, tagged with the
// subscription it was published to.
type Delivery struct {
	Sub   *Subscription
	Event domain.MutationEvent
}

// C yields the subscription's events in publish order. It is closed by
// Unsubscribe or when the publisher shuts down. It is nil for subscriptions
// created with SubscribeShared.
func (s *Subscription) C() <-chan domain.MutationEvent {
	return s.c
}

func (s *Subscription) Entity() domain.EntityType {
	return s.entity
}

// Unsubscribe removes the subscription. Calling it more than once is safe.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.pub.remove(s)
	})
}

func New(buffer int, log *zap.Logger, sp stats.StatsProvider) *Publisher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	sp.RegisterMetric(stats.NumSubscriptions)
	sp.RegisterMetric(stats.EventsPublished)
	sp.RegisterMetric(stats.EventsDropped)

	return &Publisher{
		subs: map[domain.EntityType]map[uint64]*Subscription{
			domain.EntityRoom:    {},
			domain.EntityTopic:   {},
			domain.EntityComment: {},
		},
		buffer: buffer,
		log:    log,
		stats:  sp,
	}
}

// Subscribe registers a listener for events of the given entity type. Events
// published before the call are not replayed.
func (p *Publisher) Subscribe(entity domain.EntityType) (*Subscription, error) {
	return p.add(&Subscription{
		entity: entity,
		c:      make(chan domain.MutationEvent, p.buffer),
	})
}

// SubscribeShared registers a listener that delivers into out. Several
// subscriptions may share out; their events arrive in publish order across
// all of them. The publisher never closes out.
func (p *Publisher) SubscribeShared(entity domain.EntityType, out chan<- Delivery) (*Subscription, error) {
	if out == nil {
		return nil, errors.New("subscribe: nil delivery channel")
	}
	return p.add(&Subscription{entity: entity, out: out})
}

func (p *Publisher) add(s *Subscription) (*Subscription, error) {
	if !s.entity.Valid() {
		return nil, fmt.Errorf("subscribe: invalid entity type %q", s.entity)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPublisherClosed
	}
	p.nextId++
	s.id = p.nextId
	s.pub = p
	p.subs[s.entity][s.id] = s
	p.mu.Unlock()

	p.stats.Incr(stats.NumSubscriptions)
	p.log.Debug("subscribed", zap.String("entity", string(s.entity)), zap.Uint64("sub", s.id))
	return s, nil
}

func (p *Publisher) remove(s *Subscription) {
	p.mu.Lock()
	if _, ok := p.subs[s.entity][s.id]; !ok {
		// already released by Close
		p.mu.Unlock()
		return
	}
	delete(p.subs[s.entity], s.id)
	s.closeChan()
	p.mu.Unlock()

	p.stats.Decr(stats.NumSubscriptions)
	p.log.Debug("unsubscribed", zap.String("entity", string(s.entity)), zap.Uint64("sub", s.id))
}

// offer hands ev to the subscription without blocking.
func (s *Subscription) offer(ev domain.MutationEvent) bool {
	if s.out != nil {
		select {
		case s.out <- Delivery{Sub: s, Event: ev}:
			return true
		default:
			return false
		}
	}

	select {
	case s.c <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) closeChan() {
	if s.c != nil {
		close(s.c)
	}
}

// Publish validates ev and hands it to every subscription of its entity type.
func (p *Publisher) Publish(ev domain.MutationEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}

	var dropped int
	for _, s := range p.subs[ev.Entity] {
		if !s.offer(ev) {
			dropped++
			p.log.Warn("subscription buffer full, dropping event",
				zap.Uint64("sub", s.id),
				zap.Stringer("event", ev),
			)
		}
	}
	p.mu.Unlock()

	p.stats.Incr(stats.EventsPublished)
	for range dropped {
		p.stats.Incr(stats.EventsDropped)
	}

	return nil
}

// Subscribers returns the number of live subscriptions for entity.
func (p *Publisher) Subscribers(entity domain.EntityType) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.subs[entity])
}

// Close releases every subscription. Further Publish and Subscribe calls fail
// with ErrPublisherClosed.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	var released int
	for _, byId := range p.subs {
		for id, s := range byId {
			delete(byId, id)
			s.closeChan()
			released++
		}
	}
	p.mu.Unlock()

	for range released {
		p.stats.Decr(stats.NumSubscriptions)
	}
	p.log.Info("publisher closed")
}
