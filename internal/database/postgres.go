package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/npezzotti/retro-board/pkg/domain"
	"go.uber.org/zap"
)

// Ids are allocated as max(id)+1 inside the INSERT. Two writers racing on
// the same table can collide on the primary key; callers serialize writes.
const (
	commentColumns = "id, exposed, value, votes, topic_id"

	insertRoomQuery = "INSERT INTO rooms (id, title) SELECT COALESCE(MAX(id), 0) + 1, $1 FROM rooms RETURNING id, title"
	getRoomQuery    = "SELECT id, title FROM rooms WHERE id = $1"
	listRoomsQuery  = "SELECT id, title FROM rooms ORDER BY id"
	updateRoomQuery = "UPDATE rooms SET title = $2 WHERE id = $1 RETURNING id, title"

	insertTopicQuery      = "INSERT INTO topics (id, name, room_id) SELECT COALESCE(MAX(id), 0) + 1, $1, $2 FROM topics RETURNING id, name, room_id"
	getTopicQuery         = "SELECT id, name, room_id FROM topics WHERE id = $1"
	listTopicsQuery       = "SELECT id, name, room_id FROM topics ORDER BY id"
	listTopicsByRoomQuery = "SELECT id, name, room_id FROM topics WHERE room_id = $1 ORDER BY id"
	deleteTopicQuery      = "DELETE FROM topics WHERE id = $1 RETURNING id, name, room_id"

	insertCommentQuery       = "INSERT INTO comments (id, topic_id) SELECT COALESCE(MAX(id), 0) + 1, $1 FROM comments RETURNING " + commentColumns
	getCommentQuery          = "SELECT " + commentColumns + " FROM comments WHERE id = $1"
	listCommentsQuery        = "SELECT " + commentColumns + " FROM comments ORDER BY id"
	listCommentsByTopicQuery = "SELECT " + commentColumns + " FROM comments WHERE topic_id = $1 ORDER BY id"
	updateCommentQuery       = "UPDATE comments SET value = COALESCE($2, value), exposed = COALESCE($3, exposed), votes = COALESCE($4, votes) WHERE id = $1 RETURNING " + commentColumns
	deleteCommentQuery       = "DELETE FROM comments WHERE id = $1 RETURNING " + commentColumns
)

type PgRepository struct {
	conn *sql.DB
	log  *zap.Logger
}

func NewPgRepository(dsn string, log *zap.Logger) (*PgRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return NewPgRepositoryFromDB(db, log), nil
}

// NewPgRepositoryFromDB wraps an already opened connection pool.
func NewPgRepositoryFromDB(db *sql.DB, log *zap.Logger) *PgRepository {
	return &PgRepository{conn: db, log: log}
}

func (db *PgRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (Room, error) {
	var r Room
	err := s.Scan(&r.Id, &r.Title)
	return r, err
}

func scanTopic(s scanner) (Topic, error) {
	var t Topic
	err := s.Scan(&t.Id, &t.Name, &t.RoomId)
	return t, err
}

func scanComment(s scanner) (Comment, error) {
	var c Comment
	err := s.Scan(&c.Id, &c.Exposed, &c.Value, &c.Votes, &c.TopicId)
	return c, err
}

// notFound maps sql.ErrNoRows onto the domain error for entity/id.
func notFound(err error, entity domain.EntityType, id int) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(entity, id)
	}
	return err
}

func queryAll[T any](db *PgRepository, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		it, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func (db *PgRepository) InsertRoom(title string) (Room, error) {
	r, err := scanRoom(db.conn.QueryRow(insertRoomQuery, title))
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}

	db.log.Debug("inserted room", zap.Int("id", r.Id))
	return r, nil
}

func (db *PgRepository) GetRoom(id int) (Room, error) {
	r, err := scanRoom(db.conn.QueryRow(getRoomQuery, id))
	return r, notFound(err, domain.EntityRoom, id)
}

func (db *PgRepository) ListRooms() ([]Room, error) {
	return queryAll(db, scanRoom, listRoomsQuery)
}

func (db *PgRepository) UpdateRoom(id int, title string) (Room, error) {
	r, err := scanRoom(db.conn.QueryRow(updateRoomQuery, id, title))
	return r, notFound(err, domain.EntityRoom, id)
}

func (db *PgRepository) InsertTopic(roomId int, name string) (Topic, error) {
	t, err := scanTopic(db.conn.QueryRow(insertTopicQuery, name, roomId))
	if err != nil {
		return Topic{}, fmt.Errorf("insert topic: %w", err)
	}

	db.log.Debug("inserted topic", zap.Int("id", t.Id), zap.Int("room_id", roomId))
	return t, nil
}

func (db *PgRepository) GetTopic(id int) (Topic, error) {
	t, err := scanTopic(db.conn.QueryRow(getTopicQuery, id))
	return t, notFound(err, domain.EntityTopic, id)
}

func (db *PgRepository) ListTopics() ([]Topic, error) {
	return queryAll(db, scanTopic, listTopicsQuery)
}

func (db *PgRepository) ListTopicsByRoom(roomId int) ([]Topic, error) {
	return queryAll(db, scanTopic, listTopicsByRoomQuery, roomId)
}

func (db *PgRepository) DeleteTopic(id int) (Topic, error) {
	t, err := scanTopic(db.conn.QueryRow(deleteTopicQuery, id))
	return t, notFound(err, domain.EntityTopic, id)
}

func (db *PgRepository) InsertComment(topicId int) (Comment, error) {
	c, err := scanComment(db.conn.QueryRow(insertCommentQuery, topicId))
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	db.log.Debug("inserted comment", zap.Int("id", c.Id), zap.Int("topic_id", topicId))
	return c, nil
}

func (db *PgRepository) GetComment(id int) (Comment, error) {
	c, err := scanComment(db.conn.QueryRow(getCommentQuery, id))
	return c, notFound(err, domain.EntityComment, id)
}

func (db *PgRepository) ListComments() ([]Comment, error) {
	return queryAll(db, scanComment, listCommentsQuery)
}

func (db *PgRepository) ListCommentsByTopic(topicId int) ([]Comment, error) {
	return queryAll(db, scanComment, listCommentsByTopicQuery, topicId)
}

func (db *PgRepository) UpdateComment(id int, patch CommentPatch) (Comment, error) {
	c, err := scanComment(db.conn.QueryRow(updateCommentQuery, id, patch.Value, patch.Exposed, patch.Votes))
	return c, notFound(err, domain.EntityComment, id)
}

func (db *PgRepository) DeleteComment(id int) (Comment, error) {
	c, err := scanComment(db.conn.QueryRow(deleteCommentQuery, id))
	return c, notFound(err, domain.EntityComment, id)
}
