package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) InsertRoom(title string) (Room, error) {
	args := m.Called(title)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoom(id int) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRepository) UpdateRoom(id int, title string) (Room, error) {
	args := m.Called(id, title)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) InsertTopic(roomId int, name string) (Topic, error) {
	args := m.Called(roomId, name)
	return args.Get(0).(Topic), args.Error(1)
}
func (m *MockRepository) GetTopic(id int) (Topic, error) {
	args := m.Called(id)
	return args.Get(0).(Topic), args.Error(1)
}
func (m *MockRepository) ListTopics() ([]Topic, error) {
	args := m.Called()
	return args.Get(0).([]Topic), args.Error(1)
}
func (m *MockRepository) ListTopicsByRoom(roomId int) ([]Topic, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Topic), args.Error(1)
}
func (m *MockRepository) DeleteTopic(id int) (Topic, error) {
	args := m.Called(id)
	return args.Get(0).(Topic), args.Error(1)
}
func (m *MockRepository) InsertComment(topicId int) (Comment, error) {
	args := m.Called(topicId)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockRepository) GetComment(id int) (Comment, error) {
	args := m.Called(id)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockRepository) ListComments() ([]Comment, error) {
	args := m.Called()
	return args.Get(0).([]Comment), args.Error(1)
}
func (m *MockRepository) ListCommentsByTopic(topicId int) ([]Comment, error) {
	args := m.Called(topicId)
	return args.Get(0).([]Comment), args.Error(1)
}
func (m *MockRepository) UpdateComment(id int, patch CommentPatch) (Comment, error) {
	args := m.Called(id, patch)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockRepository) DeleteComment(id int) (Comment, error) {
	args := m.Called(id)
	return args.Get(0).(Comment), args.Error(1)
}
