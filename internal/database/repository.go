package database

// Repository is the entity store. Every method returns copies of the stored
// values; lookups of missing ids fail with a *domain.NotFoundError.
type Repository interface {
	Ping() error
	Close() error

	InsertRoom(title string) (Room, error)
	GetRoom(id int) (Room, error)
	ListRooms() ([]Room, error)
	UpdateRoom(id int, title string) (Room, error)

	InsertTopic(roomId int, name string) (Topic, error)
	GetTopic(id int) (Topic, error)
	ListTopics() ([]Topic, error)
	ListTopicsByRoom(roomId int) ([]Topic, error)
	DeleteTopic(id int) (Topic, error)

	InsertComment(topicId int) (Comment, error)
	GetComment(id int) (Comment, error)
	ListComments() ([]Comment, error)
	ListCommentsByTopic(topicId int) ([]Comment, error)
	UpdateComment(id int, patch CommentPatch) (Comment, error)
	DeleteComment(id int) (Comment, error)
}
