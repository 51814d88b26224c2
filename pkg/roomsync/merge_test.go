package roomsync

import (
	"testing"

	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *domain.Room {
	return &domain.Room{
		Id:    1,
		Title: "test room",
		Topics: []domain.Topic{
			{
				Id:     1,
				Name:   "What went well",
				RoomId: 1,
				Comments: []domain.Comment{
					{Id: 1, Value: "hello", TopicId: 1},
					{Id: 2, Value: "second", TopicId: 1},
					{Id: 3, Value: "third", TopicId: 1},
				},
			},
			{
				Id:       2,
				Name:     "What didn't go well",
				RoomId:   1,
				Comments: []domain.Comment{{Id: 4, Value: "slow builds", TopicId: 2}},
			},
		},
	}
}

func TestMerge_CommentCreated(t *testing.T) {
	t.Run("appends to the owning topic", func(t *testing.T) {
		snap := testSnapshot()
		before := Clone(snap)
		node := domain.Comment{Id: 9, Value: "new", TopicId: 2}

		next, err := Merge(snap, domain.CommentEvent(domain.MutationCreated, node))
		require.NoError(t, err)

		assert.Len(t, next.Topics[1].Comments, 2, "expected exactly one more comment")
		assert.Equal(t, node, next.Topics[1].Comments[1], "expected event node appended last")
		assert.Equal(t, before, snap, "expected previous snapshot to be untouched")
		assert.NotSame(t, snap, next, "expected a new snapshot value")
	})

	t.Run("shares untouched topics", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.CommentEvent(domain.MutationCreated, domain.Comment{Id: 9, TopicId: 2}))
		require.NoError(t, err)

		assert.Same(t, &snap.Topics[0].Comments[0], &next.Topics[0].Comments[0],
			"expected unaffected comment slice to be shared")
	})

	t.Run("does not duplicate an existing id", func(t *testing.T) {
		snap := testSnapshot()
		node := domain.Comment{Id: 2, Value: "redelivered", TopicId: 1}

		next, err := Merge(snap, domain.CommentEvent(domain.MutationCreated, node))
		require.NoError(t, err)

		assert.Len(t, next.Topics[0].Comments, 3)
		assert.Equal(t, node, next.Topics[0].Comments[1])
		assert.Equal(t, "second", snap.Topics[0].Comments[1].Value, "expected old snapshot to keep its value")
	})

	t.Run("unknown topic is a no-op", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.CommentEvent(domain.MutationCreated, domain.Comment{Id: 9, TopicId: 42}))
		require.NoError(t, err)
		assert.Equal(t, snap, next)
	})
}

func TestMerge_CommentUpdated(t *testing.T) {
	t.Run("replaces at the same position", func(t *testing.T) {
		snap := testSnapshot()
		node := domain.Comment{Id: 2, Value: "edited", Votes: 3, TopicId: 1}

		next, err := Merge(snap, domain.CommentEvent(domain.MutationUpdated, node))
		require.NoError(t, err)

		require.Len(t, next.Topics[0].Comments, 3, "expected length unchanged")
		assert.Equal(t, node, next.Topics[0].Comments[1])
		assert.Equal(t, snap.Topics[0].Comments[0], next.Topics[0].Comments[0])
		assert.Equal(t, snap.Topics[0].Comments[2], next.Topics[0].Comments[2])
		assert.Equal(t, "second", snap.Topics[0].Comments[1].Value, "expected old snapshot to be untouched")
	})

	t.Run("unknown comment is not inserted", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.CommentEvent(domain.MutationUpdated, domain.Comment{Id: 99, TopicId: 1}))
		require.NoError(t, err)
		assert.Equal(t, snap, next)
	})
}

func TestMerge_CommentDeleted(t *testing.T) {
	t.Run("removes the comment", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.CommentEvent(domain.MutationDeleted, domain.Comment{Id: 2, TopicId: 1}))
		require.NoError(t, err)

		assert.Equal(t, []domain.Comment{
			{Id: 1, Value: "hello", TopicId: 1},
			{Id: 3, Value: "third", TopicId: 1},
		}, next.Topics[0].Comments)
		assert.Len(t, snap.Topics[0].Comments, 3, "expected old snapshot to keep the comment")
	})

	t.Run("unknown comment is a no-op", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.CommentEvent(domain.MutationDeleted, domain.Comment{Id: 99, TopicId: 1}))
		require.NoError(t, err)
		assert.Equal(t, snap, next)
	})
}

func TestMerge_Topic(t *testing.T) {
	t.Run("created topics keep publish order", func(t *testing.T) {
		snap := &domain.Room{Id: 1, Topics: []domain.Topic{}}

		next, err := MergeAll(snap,
			domain.TopicEvent(domain.MutationCreated, domain.Topic{Id: 10, Name: "ten", RoomId: 1}),
			domain.TopicEvent(domain.MutationCreated, domain.Topic{Id: 11, Name: "eleven", RoomId: 1}),
		)
		require.NoError(t, err)

		require.Len(t, next.Topics, 2)
		assert.Equal(t, 10, next.Topics[0].Id)
		assert.Equal(t, 11, next.Topics[1].Id)
		assert.NotNil(t, next.Topics[0].Comments, "expected an empty comment sequence")
		assert.Empty(t, next.Topics[0].Comments)
		assert.Empty(t, snap.Topics)
	})

	t.Run("created for another room is ignored", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.TopicEvent(domain.MutationCreated, domain.Topic{Id: 10, RoomId: 2}))
		require.NoError(t, err)
		assert.Equal(t, snap, next)
	})

	t.Run("created twice is not duplicated", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.TopicEvent(domain.MutationCreated, domain.Topic{Id: 2, RoomId: 1}))
		require.NoError(t, err)
		assert.Equal(t, snap, next)
	})

	t.Run("deleted removes the topic", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.TopicEvent(domain.MutationDeleted, domain.Topic{Id: 1, RoomId: 1}))
		require.NoError(t, err)

		require.Len(t, next.Topics, 1)
		assert.Equal(t, 2, next.Topics[0].Id)
		assert.Len(t, snap.Topics, 2)
	})

	t.Run("deleted unknown topic is a no-op", func(t *testing.T) {
		snap := testSnapshot()
		next, err := Merge(snap, domain.TopicEvent(domain.MutationDeleted, domain.Topic{Id: 77, RoomId: 1}))
		require.NoError(t, err)
		assert.Equal(t, snap, next)
	})

	tcases := []struct {
		name  string
		topic domain.Topic
	}{
		{name: "known topic", topic: domain.Topic{Id: 1, RoomId: 1, Name: "renamed"}},
		{name: "unknown topic", topic: domain.Topic{Id: 50, RoomId: 1}},
		{name: "other room", topic: domain.Topic{Id: 1, RoomId: 2}},
		{name: "zero value", topic: domain.Topic{}},
	}

	for _, tc := range tcases {
		t.Run("updated is unsupported: "+tc.name, func(t *testing.T) {
			next, err := Merge(testSnapshot(), domain.TopicEvent(domain.MutationUpdated, tc.topic))
			assert.Nil(t, next)

			var unsupported *domain.UnsupportedOperationError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, domain.EntityTopic, unsupported.Entity)
			assert.Equal(t, domain.MutationUpdated, unsupported.Mutation)
		})
	}
}

func TestMerge_TopicUpdatedWithoutNode(t *testing.T) {
	tcases := []struct {
		name string
		ev   domain.MutationEvent
	}{
		{name: "no node", ev: domain.MutationEvent{Entity: domain.EntityTopic, Mutation: domain.MutationUpdated}},
		{
			name: "comment node",
			ev: domain.MutationEvent{
				Entity:   domain.EntityTopic,
				Mutation: domain.MutationUpdated,
				Comment:  &domain.Comment{Id: 1, TopicId: 1},
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Merge(testSnapshot(), tc.ev)
			assert.Nil(t, next)

			var unsupported *domain.UnsupportedOperationError
			assert.ErrorAs(t, err, &unsupported)
		})
	}
}

func TestMerge_Room(t *testing.T) {
	snap := testSnapshot()

	next, err := Merge(snap, domain.RoomEvent(domain.MutationUpdated, domain.Room{Id: 1, Title: "renamed"}))
	require.NoError(t, err)
	assert.Equal(t, "renamed", next.Title)
	assert.Equal(t, "test room", snap.Title)
	assert.Equal(t, snap.Topics, next.Topics)

	other, err := Merge(snap, domain.RoomEvent(domain.MutationUpdated, domain.Room{Id: 2, Title: "other"}))
	require.NoError(t, err)
	assert.Equal(t, snap, other)
}

func TestMerge_Scenario(t *testing.T) {
	snap := &domain.Room{Id: 1, Topics: []domain.Topic{{Id: 1, RoomId: 1, Comments: []domain.Comment{}}}}
	node := domain.Comment{Id: 5, TopicId: 1, Value: "hi", Votes: 0, Exposed: false}

	created, err := Merge(snap, domain.CommentEvent(domain.MutationCreated, node))
	require.NoError(t, err)
	assert.Equal(t, &domain.Room{
		Id:     1,
		Topics: []domain.Topic{{Id: 1, RoomId: 1, Comments: []domain.Comment{node}}},
	}, created)

	deleted, err := Merge(created, domain.CommentEvent(domain.MutationDeleted, node))
	require.NoError(t, err)
	assert.Equal(t, []domain.Comment{}, deleted.Topics[0].Comments)
	assert.Len(t, created.Topics[0].Comments, 1, "expected intermediate snapshot to be untouched")
}

func TestMerge_InvalidInput(t *testing.T) {
	_, err := Merge(nil, domain.CommentEvent(domain.MutationCreated, domain.Comment{}))
	assert.ErrorIs(t, err, ErrNilSnapshot)

	_, err = Merge(testSnapshot(), domain.MutationEvent{Entity: domain.EntityComment, Mutation: domain.MutationCreated})
	assert.Error(t, err, "expected error for event without node")

	_, err = Merge(testSnapshot(), domain.MutationEvent{
		Entity:   domain.EntityTopic,
		Mutation: domain.MutationCreated,
		Comment:  &domain.Comment{},
	})
	assert.Error(t, err, "expected error for mismatched payload")
}

func TestMergeAll_StopsAtError(t *testing.T) {
	snap := testSnapshot()
	out, err := MergeAll(snap,
		domain.CommentEvent(domain.MutationDeleted, domain.Comment{Id: 1, TopicId: 1}),
		domain.TopicEvent(domain.MutationUpdated, domain.Topic{Id: 1, RoomId: 1}),
		domain.CommentEvent(domain.MutationDeleted, domain.Comment{Id: 2, TopicId: 1}),
	)

	assert.Error(t, err)
	assert.Len(t, out.Topics[0].Comments, 2, "expected only the first event applied")
}

func TestClone(t *testing.T) {
	snap := testSnapshot()
	cp := Clone(snap)
	assert.Equal(t, snap, cp)

	cp.Topics[0].Comments[0].Value = "changed"
	assert.Equal(t, "hello", snap.Topics[0].Comments[0].Value)

	assert.Nil(t, Clone(nil))
	assert.Equal(t, []domain.Comment{}, Clone(&domain.Room{Topics: []domain.Topic{{Id: 1}}}).Topics[0].Comments)
}
