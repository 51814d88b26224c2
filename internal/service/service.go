// Package service implements the board's queries and mutations on top of a
// database.Repository, announcing every mutation to a Publisher.
package service

import (
	"fmt"
	"sync"

	"github.com/npezzotti/retro-board/internal/database"
	"github.com/npezzotti/retro-board/pkg/domain"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ev domain.MutationEvent) error
}

// BoardService serializes mutations so that each store write and the event
// announcing it happen as one step. Reads do not take the lock.
type BoardService struct {
	mu   sync.Mutex
	repo database.Repository
	pub  Publisher
	log  *zap.Logger
}

func NewBoardService(repo database.Repository, pub Publisher, log *zap.Logger) *BoardService {
	return &BoardService{
		repo: repo,
		pub:  pub,
		log:  log,
	}
}

func (s *BoardService) Ping() error {
	return s.repo.Ping()
}

func toRoom(r database.Room) domain.Room {
	return domain.Room{Id: r.Id, Title: r.Title}
}

func toTopic(t database.Topic) domain.Topic {
	return domain.Topic{Id: t.Id, Name: t.Name, RoomId: t.RoomId}
}

func toComment(c database.Comment) domain.Comment {
	return domain.Comment{
		Id:      c.Id,
		Exposed: c.Exposed,
		Value:   c.Value,
		Votes:   c.Votes,
		TopicId: c.TopicId,
	}
}

// Room resolves the room with its topics and their comments.
func (s *BoardService) Room(id int) (domain.Room, error) {
	r, err := s.repo.GetRoom(id)
	if err != nil {
		return domain.Room{}, err
	}
	return s.resolveRoom(r)
}

func (s *BoardService) resolveRoom(r database.Room) (domain.Room, error) {
	topics, err := s.repo.ListTopicsByRoom(r.Id)
	if err != nil {
		return domain.Room{}, fmt.Errorf("list topics of room %d: %w", r.Id, err)
	}

	room := toRoom(r)
	room.Topics = make([]domain.Topic, 0, len(topics))
	for _, t := range topics {
		topic, err := s.resolveTopic(t)
		if err != nil {
			return domain.Room{}, err
		}
		room.Topics = append(room.Topics, topic)
	}

	return room, nil
}

func (s *BoardService) resolveTopic(t database.Topic) (domain.Topic, error) {
	comments, err := s.repo.ListCommentsByTopic(t.Id)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("list comments of topic %d: %w", t.Id, err)
	}

	topic := toTopic(t)
	topic.Comments = make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		topic.Comments = append(topic.Comments, toComment(c))
	}

	return topic, nil
}

// Rooms lists every room without its topics.
func (s *BoardService) Rooms() ([]domain.Room, error) {
	rooms, err := s.repo.ListRooms()
	if err != nil {
		return nil, err
	}

	res := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		res = append(res, toRoom(r))
	}
	return res, nil
}

// Topics lists every topic of every room without comments.
func (s *BoardService) Topics() ([]domain.Topic, error) {
	topics, err := s.repo.ListTopics()
	if err != nil {
		return nil, err
	}

	res := make([]domain.Topic, 0, len(topics))
	for _, t := range topics {
		res = append(res, toTopic(t))
	}
	return res, nil
}

func (s *BoardService) Comments() ([]domain.Comment, error) {
	comments, err := s.repo.ListComments()
	if err != nil {
		return nil, err
	}

	res := make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		res = append(res, toComment(c))
	}
	return res, nil
}

func (s *BoardService) Comment(id int) (domain.Comment, error) {
	c, err := s.repo.GetComment(id)
	if err != nil {
		return domain.Comment{}, err
	}
	return toComment(c), nil
}

// publish is called with s.mu held, after the store write succeeded. A failed
// publish does not undo the write.
func (s *BoardService) publish(ev domain.MutationEvent) {
	if err := s.pub.Publish(ev); err != nil {
		s.log.Error("failed to publish event", zap.Stringer("event", ev), zap.Error(err))
		return
	}
	s.log.Debug("published event", zap.Stringer("event", ev))
}

// AddComment creates an empty comment under an existing topic.
func (s *BoardService) AddComment(topicId int) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.GetTopic(topicId); err != nil {
		return domain.Comment{}, err
	}

	c, err := s.repo.InsertComment(topicId)
	if err != nil {
		return domain.Comment{}, err
	}

	comment := toComment(c)
	s.publish(domain.CommentEvent(domain.MutationCreated, comment))
	return comment, nil
}

func (s *BoardService) UpdateComment(id int, patch database.CommentPatch) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.repo.UpdateComment(id, patch)
	if err != nil {
		return domain.Comment{}, err
	}

	comment := toComment(c)
	s.publish(domain.CommentEvent(domain.MutationUpdated, comment))
	return comment, nil
}

// DeleteComment removes the comment and returns its topic. The topic is nil
// when the comment outlived it.
func (s *BoardService) DeleteComment(id int) (*domain.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.repo.DeleteComment(id)
	if err != nil {
		return nil, err
	}
	s.publish(domain.CommentEvent(domain.MutationDeleted, toComment(c)))

	t, err := s.repo.GetTopic(c.TopicId)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	topic, err := s.resolveTopic(t)
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// AddTopic creates a topic in an existing room.
func (s *BoardService) AddTopic(roomId int, name string) (domain.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.GetRoom(roomId); err != nil {
		return domain.Topic{}, err
	}

	t, err := s.repo.InsertTopic(roomId, name)
	if err != nil {
		return domain.Topic{}, err
	}

	topic := toTopic(t)
	topic.Comments = []domain.Comment{}
	s.publish(domain.TopicEvent(domain.MutationCreated, topic))
	return topic, nil
}

// DeleteTopic removes the topic, leaving its comments in the store, and
// returns the room it belonged to.
func (s *BoardService) DeleteTopic(id int) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.DeleteTopic(id)
	if err != nil {
		return nil, err
	}
	s.publish(domain.TopicEvent(domain.MutationDeleted, toTopic(t)))

	r, err := s.repo.GetRoom(t.RoomId)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	room, err := s.resolveRoom(r)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *BoardService) AddRoom(title string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.repo.InsertRoom(title)
	if err != nil {
		return domain.Room{}, err
	}

	room := toRoom(r)
	room.Topics = []domain.Topic{}
	s.publish(domain.RoomEvent(domain.MutationCreated, room))
	return room, nil
}

func (s *BoardService) UpdateRoom(id int, title string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.repo.UpdateRoom(id, title)
	if err != nil {
		return domain.Room{}, err
	}

	room := toRoom(r)
	s.publish(domain.RoomEvent(domain.MutationUpdated, room))
	return room, nil
}
