package database

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/npezzotti/retro-board/internal/testutil"
	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPg(t *testing.T) (*PgRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPgRepositoryFromDB(db, testutil.TestLogger(t)), mock
}

var commentCols = []string{"id", "exposed", "value", "votes", "topic_id"}

func TestPgRepository_InsertRoom(t *testing.T) {
	repo, mock := newMockPg(t)

	mock.ExpectQuery(insertRoomQuery).
		WithArgs("retro").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(3, "retro"))

	r, err := repo.InsertRoom("retro")
	require.NoError(t, err)
	assert.Equal(t, Room{Id: 3, Title: "retro"}, r)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_InsertRoomError(t *testing.T) {
	repo, mock := newMockPg(t)

	mock.ExpectQuery(insertRoomQuery).
		WithArgs("retro").
		WillReturnError(errors.New("duplicate key"))

	_, err := repo.InsertRoom("retro")
	assert.ErrorContains(t, err, "insert room: duplicate key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_NotFound(t *testing.T) {
	tcases := []struct {
		name   string
		query  string
		call   func(*PgRepository) error
		entity domain.EntityType
	}{
		{
			name:   "get room",
			query:  getRoomQuery,
			call:   func(r *PgRepository) error { _, err := r.GetRoom(9); return err },
			entity: domain.EntityRoom,
		},
		{
			name:   "delete topic",
			query:  deleteTopicQuery,
			call:   func(r *PgRepository) error { _, err := r.DeleteTopic(9); return err },
			entity: domain.EntityTopic,
		},
		{
			name:   "get comment",
			query:  getCommentQuery,
			call:   func(r *PgRepository) error { _, err := r.GetComment(9); return err },
			entity: domain.EntityComment,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockPg(t)
			mock.ExpectQuery(tc.query).WithArgs(9).WillReturnError(sql.ErrNoRows)

			err := tc.call(repo)
			var nf *domain.NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tc.entity, nf.Entity)
			assert.Equal(t, 9, nf.Id)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgRepository_ListTopicsByRoom(t *testing.T) {
	repo, mock := newMockPg(t)

	mock.ExpectQuery(listTopicsByRoomQuery).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "room_id"}).
			AddRow(1, "What went well", 1).
			AddRow(2, "Kudos/thanks", 1))

	topics, err := repo.ListTopicsByRoom(1)
	require.NoError(t, err)
	assert.Equal(t, []Topic{
		{Id: 1, Name: "What went well", RoomId: 1},
		{Id: 2, Name: "Kudos/thanks", RoomId: 1},
	}, topics)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_ListCommentsEmpty(t *testing.T) {
	repo, mock := newMockPg(t)

	mock.ExpectQuery(listCommentsQuery).WillReturnRows(sqlmock.NewRows(commentCols))

	comments, err := repo.ListComments()
	require.NoError(t, err)
	assert.NotNil(t, comments)
	assert.Empty(t, comments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_UpdateComment(t *testing.T) {
	repo, mock := newMockPg(t)

	value := "edited"
	mock.ExpectQuery(updateCommentQuery).
		WithArgs(4, "edited", nil, nil).
		WillReturnRows(sqlmock.NewRows(commentCols).AddRow(4, false, "edited", 2, 1))

	c, err := repo.UpdateComment(4, CommentPatch{Value: &value})
	require.NoError(t, err)
	assert.Equal(t, Comment{Id: 4, Value: "edited", Votes: 2, TopicId: 1}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_DeleteComment(t *testing.T) {
	repo, mock := newMockPg(t)

	mock.ExpectQuery(deleteCommentQuery).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows(commentCols).AddRow(4, true, "bye", 0, 2))

	c, err := repo.DeleteComment(4)
	require.NoError(t, err)
	assert.Equal(t, Comment{Id: 4, Exposed: true, Value: "bye", TopicId: 2}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}
