package pubsub

import (
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/retro-board/internal/stats"
	"github.com/npezzotti/retro-board/internal/testutil"
	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublisher(t *testing.T, buffer int) (*Publisher, *stats.MockStatsUpdater) {
	t.Helper()
	sp := stats.NewPermissiveMock()
	p := New(buffer, testutil.TestLogger(t), sp)
	t.Cleanup(p.Close)
	return p, sp
}

func countCalls(sp *stats.MockStatsUpdater, method, metric string) int {
	var n int
	for _, c := range sp.Calls {
		if c.Method == method && len(c.Arguments) == 1 && c.Arguments[0] == metric {
			n++
		}
	}
	return n
}

func drain(s *Subscription) []domain.MutationEvent {
	var got []domain.MutationEvent
	for {
		select {
		case ev, ok := <-s.C():
			if !ok {
				return got
			}
			got = append(got, ev)
		default:
			return got
		}
	}
}

func commentEvent(kind domain.MutationKind, id int) domain.MutationEvent {
	return domain.CommentEvent(kind, domain.Comment{Id: id, TopicId: 1})
}

func TestPublisher_FanOutInOrder(t *testing.T) {
	p, _ := newPublisher(t, 16)

	a, err := p.Subscribe(domain.EntityComment)
	require.NoError(t, err)
	b, err := p.Subscribe(domain.EntityComment)
	require.NoError(t, err)
	topics, err := p.Subscribe(domain.EntityTopic)
	require.NoError(t, err)

	want := []domain.MutationEvent{
		commentEvent(domain.MutationCreated, 1),
		commentEvent(domain.MutationUpdated, 1),
		commentEvent(domain.MutationCreated, 2),
		commentEvent(domain.MutationDeleted, 1),
	}
	for _, ev := range want {
		require.NoError(t, p.Publish(ev))
	}

	assert.Equal(t, want, drain(a), "expected every event exactly once, in order")
	assert.Equal(t, want, drain(b), "expected every event exactly once, in order")
	assert.Empty(t, drain(topics), "expected no cross delivery to other entity types")
}

func TestPublisher_NoBacklog(t *testing.T) {
	p, _ := newPublisher(t, 16)

	require.NoError(t, p.Publish(commentEvent(domain.MutationCreated, 1)))

	s, err := p.Subscribe(domain.EntityComment)
	require.NoError(t, err)
	assert.Empty(t, drain(s))
}

func TestPublisher_Unsubscribe(t *testing.T) {
	p, sp := newPublisher(t, 16)

	s, err := p.Subscribe(domain.EntityComment)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Subscribers(domain.EntityComment))

	s.Unsubscribe()
	s.Unsubscribe()
	assert.Equal(t, 0, p.Subscribers(domain.EntityComment))

	_, open := <-s.C()
	assert.False(t, open, "expected channel to be closed")

	assert.NoError(t, p.Publish(commentEvent(domain.MutationCreated, 1)), "publish after unsubscribe must be a no-op")
	assert.Equal(t, 1, countCalls(sp, "Decr", stats.NumSubscriptions), "expected a single release")
}

func TestPublisher_DropWhenFull(t *testing.T) {
	p, sp := newPublisher(t, 2)

	slow, err := p.Subscribe(domain.EntityComment)
	require.NoError(t, err)
	fast, err := p.Subscribe(domain.EntityComment)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, p.Publish(commentEvent(domain.MutationCreated, i)))
		if i == 1 {
			<-fast.C()
		}
	}

	got := drain(slow)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Comment.Id)
	assert.Equal(t, 2, got[1].Comment.Id)

	assert.Len(t, drain(fast), 2)
	assert.Equal(t, 1, countCalls(sp, "Incr", stats.EventsDropped))
	assert.Equal(t, 3, countCalls(sp, "Incr", stats.EventsPublished))
}

func TestPublisher_InvalidEvents(t *testing.T) {
	p, _ := newPublisher(t, 16)

	tcases := []struct {
		name string
		ev   domain.MutationEvent
	}{
		{"missing payload", domain.MutationEvent{Entity: domain.EntityComment, Mutation: domain.MutationCreated}},
		{"payload does not match tag", domain.MutationEvent{Entity: domain.EntityTopic, Mutation: domain.MutationCreated, Comment: &domain.Comment{Id: 1}}},
		{"unknown mutation", domain.MutationEvent{Entity: domain.EntityRoom, Mutation: "MOVED", Room: &domain.Room{Id: 1}}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, p.Publish(tc.ev))
		})
	}

	_, err := p.Subscribe("Board")
	assert.Error(t, err)
}

func TestPublisher_Close(t *testing.T) {
	p, _ := newPublisher(t, 16)

	s, err := p.Subscribe(domain.EntityRoom)
	require.NoError(t, err)

	p.Close()
	p.Close()

	_, open := <-s.C()
	assert.False(t, open)
	s.Unsubscribe()

	_, err = p.Subscribe(domain.EntityRoom)
	assert.ErrorIs(t, err, ErrPublisherClosed)
	assert.ErrorIs(t, p.Publish(domain.RoomEvent(domain.MutationCreated, domain.Room{Id: 1})), ErrPublisherClosed)
}

func TestPublisher_Concurrent(t *testing.T) {
	p, _ := newPublisher(t, 1024)

	s, err := p.Subscribe(domain.EntityComment)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.Publish(commentEvent(domain.MutationCreated, i*100+j))
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			extra, err := p.Subscribe(domain.EntityComment)
			if err == nil {
				extra.Unsubscribe()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, drain(s), 400)
}

func TestPublisher_SubscribeShared(t *testing.T) {
	p, sp := newPublisher(t, 16)
	out := make(chan Delivery, 8)

	topics, err := p.SubscribeShared(domain.EntityTopic, out)
	require.NoError(t, err)
	comments, err := p.SubscribeShared(domain.EntityComment, out)
	require.NoError(t, err)
	assert.Nil(t, topics.C())

	want := []Delivery{
		{Sub: topics, Event: domain.TopicEvent(domain.MutationCreated, domain.Topic{Id: 10, RoomId: 1})},
		{Sub: comments, Event: domain.CommentEvent(domain.MutationCreated, domain.Comment{Id: 5, TopicId: 10})},
		{Sub: topics, Event: domain.TopicEvent(domain.MutationDeleted, domain.Topic{Id: 10, RoomId: 1})},
		{Sub: comments, Event: domain.CommentEvent(domain.MutationDeleted, domain.Comment{Id: 5, TopicId: 10})},
	}
	for _, d := range want {
		require.NoError(t, p.Publish(d.Event))
	}

	got := make([]Delivery, 0, len(want))
	for range want {
		got = append(got, <-out)
	}
	assert.Equal(t, want, got, "expected publish order across entity types")

	comments.Unsubscribe()
	topics.Unsubscribe()
	require.NoError(t, p.Publish(commentEvent(domain.MutationCreated, 6)))
	assert.Empty(t, out, "expected no delivery after unsubscribe")
	assert.Equal(t, 2, countCalls(sp, "Decr", stats.NumSubscriptions))

	select {
	case out <- Delivery{}:
	default:
		t.Fatal("expected the shared channel to stay open")
	}

	_, err = p.SubscribeShared(domain.EntityRoom, nil)
	assert.Error(t, err)
}

func TestPublisher_SharedDropWhenFull(t *testing.T) {
	p, sp := newPublisher(t, 16)
	out := make(chan Delivery, 1)

	_, err := p.SubscribeShared(domain.EntityComment, out)
	require.NoError(t, err)

	require.NoError(t, p.Publish(commentEvent(domain.MutationCreated, 1)))
	require.NoError(t, p.Publish(commentEvent(domain.MutationCreated, 2)))

	assert.Equal(t, 1, (<-out).Event.Comment.Id)
	assert.Equal(t, 1, countCalls(sp, "Incr", stats.EventsDropped))
}

// lockingStats calls back into the publisher on every update, which
// deadlocks if the publisher still holds its lock.
type lockingStats struct {
	p *Publisher
}

func (s *lockingStats) Incr(string)           { s.p.Subscribers(domain.EntityComment) }
func (s *lockingStats) Decr(string)           { s.p.Subscribers(domain.EntityComment) }
func (s *lockingStats) RegisterMetric(string) {}
func (s *lockingStats) Run()                  {}

func TestPublisher_StatsOutsideLock(t *testing.T) {
	sp := &lockingStats{}
	p := New(1, testutil.TestLogger(t), sp)
	sp.p = p

	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := p.Subscribe(domain.EntityComment)
		if err != nil {
			return
		}
		p.Publish(commentEvent(domain.MutationCreated, 1))
		p.Publish(commentEvent(domain.MutationCreated, 2))
		s.Unsubscribe()
		p.Subscribe(domain.EntityComment)
		p.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected stats updates to happen without the publisher lock")
	}
}
