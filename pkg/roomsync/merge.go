// Package roomsync folds mutation events into a client-held room snapshot.
//
// A snapshot is a *domain.Room resolved with its topics and their comments.
// Merge never modifies the snapshot it is given: every call returns a new
// *domain.Room, re-allocating only the topic or comment slice that changed and
// sharing everything else with the previous snapshot. Holders of an older
// snapshot therefore never observe a change, and a pointer comparison is
// enough to tell that new data arrived.
//
// Events that reference entities missing from the snapshot are not errors.
// The snapshot may legitimately lag behind the event stream, so such events
// leave the content unchanged.
package roomsync

import (
	"errors"
	"fmt"
	"slices"

	"github.com/npezzotti/retro-board/pkg/domain"
)

var ErrNilSnapshot = errors.New("nil snapshot")

// Merge applies ev to snapshot and returns the resulting snapshot.
func Merge(snapshot *domain.Room, ev domain.MutationEvent) (*domain.Room, error) {
	if snapshot == nil {
		return nil, ErrNilSnapshot
	}

	// topic updates are rejected whatever the payload
	if ev.Entity == domain.EntityTopic && ev.Mutation == domain.MutationUpdated {
		return nil, &domain.UnsupportedOperationError{
			Entity:   domain.EntityTopic,
			Mutation: domain.MutationUpdated,
		}
	}

	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	switch ev.Entity {
	case domain.EntityComment:
		return mergeComment(snapshot, ev.Mutation, *ev.Comment), nil
	case domain.EntityTopic:
		return mergeTopic(snapshot, ev.Mutation, *ev.Topic), nil
	case domain.EntityRoom:
		return mergeRoom(snapshot, ev.Mutation, *ev.Room), nil
	}

	return unchanged(snapshot), nil
}

// MergeAll folds events in order. It stops at the first error and returns the
// snapshot built so far along with it.
func MergeAll(snapshot *domain.Room, events ...domain.MutationEvent) (*domain.Room, error) {
	cur := snapshot
	for _, ev := range events {
		next, err := Merge(cur, ev)
		if err != nil {
			return cur, err
		}
		cur = next
	}

	return cur, nil
}

func mergeComment(s *domain.Room, kind domain.MutationKind, c domain.Comment) *domain.Room {
	ti := topicIndex(s.Topics, c.TopicId)
	if ti < 0 {
		return unchanged(s)
	}

	comments := s.Topics[ti].Comments
	ci := commentIndex(comments, c.Id)

	var next []domain.Comment
	switch kind {
	case domain.MutationCreated:
		if ci >= 0 {
			// redelivered or already present from the initial fetch
			next = slices.Clone(comments)
			next[ci] = c
		} else {
			next = make([]domain.Comment, len(comments), len(comments)+1)
			copy(next, comments)
			next = append(next, c)
		}
	case domain.MutationUpdated:
		if ci < 0 {
			return unchanged(s)
		}
		next = slices.Clone(comments)
		next[ci] = c
	case domain.MutationDeleted:
		if ci < 0 {
			return unchanged(s)
		}
		next = make([]domain.Comment, 0, len(comments)-1)
		next = append(next, comments[:ci]...)
		next = append(next, comments[ci+1:]...)
	default:
		return unchanged(s)
	}

	out := unchanged(s)
	out.Topics = slices.Clone(s.Topics)
	out.Topics[ti].Comments = next

	return out
}

func mergeTopic(s *domain.Room, kind domain.MutationKind, t domain.Topic) *domain.Room {
	if t.RoomId != s.Id {
		return unchanged(s)
	}

	ti := topicIndex(s.Topics, t.Id)

	out := unchanged(s)
	switch kind {
	case domain.MutationCreated:
		if ti >= 0 {
			return out
		}
		t.Comments = []domain.Comment{}
		out.Topics = make([]domain.Topic, len(s.Topics), len(s.Topics)+1)
		copy(out.Topics, s.Topics)
		out.Topics = append(out.Topics, t)
	case domain.MutationDeleted:
		if ti < 0 {
			return out
		}
		out.Topics = make([]domain.Topic, 0, len(s.Topics)-1)
		out.Topics = append(out.Topics, s.Topics[:ti]...)
		out.Topics = append(out.Topics, s.Topics[ti+1:]...)
	}

	return out
}

func mergeRoom(s *domain.Room, kind domain.MutationKind, r domain.Room) *domain.Room {
	out := unchanged(s)
	if kind == domain.MutationUpdated && r.Id == s.Id {
		out.Title = r.Title
	}

	return out
}

// unchanged returns a shallow copy of s. Its slices still alias s.
func unchanged(s *domain.Room) *domain.Room {
	out := *s
	return &out
}

func topicIndex(topics []domain.Topic, id int) int {
	return slices.IndexFunc(topics, func(t domain.Topic) bool { return t.Id == id })
}

func commentIndex(comments []domain.Comment, id int) int {
	return slices.IndexFunc(comments, func(c domain.Comment) bool { return c.Id == id })
}

// Clone returns a deep copy of r, used to take ownership of a freshly fetched
// room before it becomes a snapshot.
func Clone(r *domain.Room) *domain.Room {
	if r == nil {
		return nil
	}

	out := *r
	out.Topics = make([]domain.Topic, len(r.Topics))
	for i, t := range r.Topics {
		t.Comments = slices.Clone(t.Comments)
		if t.Comments == nil {
			t.Comments = []domain.Comment{}
		}
		out.Topics[i] = t
	}

	return &out
}
