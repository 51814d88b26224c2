package domain

import "fmt"

type EntityType string

const (
	EntityRoom    EntityType = "Room"
	EntityTopic   EntityType = "Topic"
	EntityComment EntityType = "Comment"
)

func (et EntityType) Valid() bool {
	switch et {
	case EntityRoom, EntityTopic, EntityComment:
		return true
	}
	return false
}

type MutationKind string

const (
	MutationCreated MutationKind = "CREATED"
	MutationUpdated MutationKind = "UPDATED"
	MutationDeleted MutationKind = "DELETED"
)

func (mk MutationKind) Valid() bool {
	switch mk {
	case MutationCreated, MutationUpdated, MutationDeleted:
		return true
	}
	return false
}

// MutationEvent announces a change to a single entity. Entity selects which of
// Room, Topic or Comment carries the node; the other two are nil.
type MutationEvent struct {
	Entity   EntityType   `json:"entity" msgpack:"entity"`
	Mutation MutationKind `json:"mutation" msgpack:"mutation"`
	Room     *Room        `json:"room,omitempty" msgpack:"room,omitempty"`
	Topic    *Topic       `json:"topic,omitempty" msgpack:"topic,omitempty"`
	Comment  *Comment     `json:"comment,omitempty" msgpack:"comment,omitempty"`
}

func RoomEvent(kind MutationKind, r Room) MutationEvent {
	return MutationEvent{Entity: EntityRoom, Mutation: kind, Room: &r}
}

func TopicEvent(kind MutationKind, t Topic) MutationEvent {
	return MutationEvent{Entity: EntityTopic, Mutation: kind, Topic: &t}
}

func CommentEvent(kind MutationKind, c Comment) MutationEvent {
	return MutationEvent{Entity: EntityComment, Mutation: kind, Comment: &c}
}

// Node returns the entity value carried by the event.
func (e MutationEvent) Node() any {
	switch e.Entity {
	case EntityRoom:
		return e.Room
	case EntityTopic:
		return e.Topic
	case EntityComment:
		return e.Comment
	}
	return nil
}

// Validate checks that the payload matches the entity tag.
func (e MutationEvent) Validate() error {
	if !e.Entity.Valid() {
		return fmt.Errorf("invalid entity type %q", e.Entity)
	}
	if !e.Mutation.Valid() {
		return fmt.Errorf("invalid mutation kind %q", e.Mutation)
	}

	var set int
	for _, present := range []bool{e.Room != nil, e.Topic != nil, e.Comment != nil} {
		if present {
			set++
		}
	}

	var tagged bool
	switch e.Entity {
	case EntityRoom:
		tagged = e.Room != nil
	case EntityTopic:
		tagged = e.Topic != nil
	case EntityComment:
		tagged = e.Comment != nil
	}

	if !tagged || set != 1 {
		return fmt.Errorf("%s event must carry exactly one %s node", e.Mutation, e.Entity)
	}

	return nil
}

func (e MutationEvent) String() string {
	switch n := e.Node().(type) {
	case *Room:
		if n != nil {
			return fmt.Sprintf("%s %s %d", e.Entity, e.Mutation, n.Id)
		}
	case *Topic:
		if n != nil {
			return fmt.Sprintf("%s %s %d", e.Entity, e.Mutation, n.Id)
		}
	case *Comment:
		if n != nil {
			return fmt.Sprintf("%s %s %d", e.Entity, e.Mutation, n.Id)
		}
	}
	return fmt.Sprintf("%s %s", e.Entity, e.Mutation)
}
