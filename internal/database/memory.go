package database

import (
	"slices"
	"sync"

	"github.com/npezzotti/retro-board/pkg/domain"
)

// MemoryRepository keeps each entity type in a flat slice in insertion order.
// New ids are max(existing)+1, so the id of a deleted maximum is handed out
// again by the next insert.
type MemoryRepository struct {
	mu       sync.RWMutex
	rooms    []Room
	topics   []Topic
	comments []Comment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Ping() error  { return nil }
func (m *MemoryRepository) Close() error { return nil }

func nextId[T any](items []T, id func(T) int) int {
	var max int
	for _, it := range items {
		if v := id(it); v > max {
			max = v
		}
	}
	return max + 1
}

func indexOf[T any](items []T, id int, getId func(T) int) int {
	return slices.IndexFunc(items, func(it T) bool { return getId(it) == id })
}

func roomId(r Room) int       { return r.Id }
func topicId(t Topic) int     { return t.Id }
func commentId(c Comment) int { return c.Id }

func (m *MemoryRepository) InsertRoom(title string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Room{Id: nextId(m.rooms, roomId), Title: title}
	m.rooms = append(m.rooms, r)
	return r, nil
}

func (m *MemoryRepository) GetRoom(id int) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := indexOf(m.rooms, id, roomId)
	if i < 0 {
		return Room{}, domain.NewNotFoundError(domain.EntityRoom, id)
	}
	return m.rooms[i], nil
}

func (m *MemoryRepository) ListRooms() ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append(make([]Room, 0, len(m.rooms)), m.rooms...), nil
}

func (m *MemoryRepository) UpdateRoom(id int, title string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.rooms, id, roomId)
	if i < 0 {
		return Room{}, domain.NewNotFoundError(domain.EntityRoom, id)
	}
	m.rooms[i].Title = title
	return m.rooms[i], nil
}

func (m *MemoryRepository) InsertTopic(roomId int, name string) (Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := Topic{Id: nextId(m.topics, topicId), Name: name, RoomId: roomId}
	m.topics = append(m.topics, t)
	return t, nil
}

func (m *MemoryRepository) GetTopic(id int) (Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := indexOf(m.topics, id, topicId)
	if i < 0 {
		return Topic{}, domain.NewNotFoundError(domain.EntityTopic, id)
	}
	return m.topics[i], nil
}

func (m *MemoryRepository) ListTopics() ([]Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append(make([]Topic, 0, len(m.topics)), m.topics...), nil
}

func (m *MemoryRepository) ListTopicsByRoom(roomId int) ([]Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topics := make([]Topic, 0)
	for _, t := range m.topics {
		if t.RoomId == roomId {
			topics = append(topics, t)
		}
	}
	return topics, nil
}

// DeleteTopic leaves the topic's comments in place.
func (m *MemoryRepository) DeleteTopic(id int) (Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.topics, id, topicId)
	if i < 0 {
		return Topic{}, domain.NewNotFoundError(domain.EntityTopic, id)
	}
	t := m.topics[i]
	m.topics = slices.Delete(m.topics, i, i+1)
	return t, nil
}

func (m *MemoryRepository) InsertComment(topicId int) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Comment{Id: nextId(m.comments, commentId), TopicId: topicId}
	m.comments = append(m.comments, c)
	return c, nil
}

func (m *MemoryRepository) GetComment(id int) (Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := indexOf(m.comments, id, commentId)
	if i < 0 {
		return Comment{}, domain.NewNotFoundError(domain.EntityComment, id)
	}
	return m.comments[i], nil
}

func (m *MemoryRepository) ListComments() ([]Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append(make([]Comment, 0, len(m.comments)), m.comments...), nil
}

func (m *MemoryRepository) ListCommentsByTopic(topicId int) ([]Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	comments := make([]Comment, 0)
	for _, c := range m.comments {
		if c.TopicId == topicId {
			comments = append(comments, c)
		}
	}
	return comments, nil
}

func (m *MemoryRepository) UpdateComment(id int, patch CommentPatch) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.comments, id, commentId)
	if i < 0 {
		return Comment{}, domain.NewNotFoundError(domain.EntityComment, id)
	}
	m.comments[i] = patch.apply(m.comments[i])
	return m.comments[i], nil
}

func (m *MemoryRepository) DeleteComment(id int) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.comments, id, commentId)
	if i < 0 {
		return Comment{}, domain.NewNotFoundError(domain.EntityComment, id)
	}
	c := m.comments[i]
	m.comments = slices.Delete(m.comments, i, i+1)
	return c, nil
}
