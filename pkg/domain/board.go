// Package domain holds the entities shared by the board server and its
// clients: rooms, topics, comments and the mutation events announced for them.
package domain

// Room is a retrospective session. Topics is only populated when the room is
// resolved as a nested graph.
type Room struct {
	Id     int     `json:"id" msgpack:"id"`
	Title  string  `json:"title" msgpack:"title"`
	Topics []Topic `json:"topics" msgpack:"topics"`
}

// Topic is a discussion category inside a room.
type Topic struct {
	Id       int       `json:"id" msgpack:"id"`
	Name     string    `json:"name" msgpack:"name"`
	RoomId   int       `json:"room_id" msgpack:"room_id"`
	Comments []Comment `json:"comments" msgpack:"comments"`
}

// Comment is a single contribution to a topic.
type Comment struct {
	Id      int    `json:"id" msgpack:"id"`
	Exposed bool   `json:"exposed" msgpack:"exposed"`
	Value   string `json:"value" msgpack:"value"`
	Votes   int    `json:"votes" msgpack:"votes"`
	TopicId int    `json:"topic_id" msgpack:"topic_id"`
}
