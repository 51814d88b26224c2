package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/rooms/1" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(domain.Room{ //nolint:errcheck
			Id:     1,
			Title:  "test room",
			Topics: []domain.Topic{{Id: 1, RoomId: 1, Name: "What went well", Comments: []domain.Comment{}}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	room, err := c.Room(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "test room", room.Title)
	require.Len(t, room.Topics, 1)
	assert.Equal(t, "What went well", room.Topics[0].Name)
}

func TestRoom_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"status_code": 404, "message": "room with id 9 not found"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Room(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "client.Room: HTTP 404: room with id 9 not found")
}

func TestErrorWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("request timed out")) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := New(srv.URL).Comments(context.Background())
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Contains(t, err.Error(), "request timed out")
}

func TestUpdateComment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/comments/4", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"value":"hi","votes":0}`, string(body))

		json.NewEncoder(w).Encode(domain.Comment{Id: 4, Value: "hi", TopicId: 1}) //nolint:errcheck
	}))
	defer srv.Close()

	value, votes := "hi", 0
	c, err := New(srv.URL).UpdateComment(context.Background(), 4, CommentUpdate{Value: &value, Votes: &votes})
	require.NoError(t, err)
	assert.Equal(t, &domain.Comment{Id: 4, Value: "hi", TopicId: 1}, c)
}

func TestDeleteComment_OrphanReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("null\n")) //nolint:errcheck
	}))
	defer srv.Close()

	topic, err := New(srv.URL).DeleteComment(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, topic)
}

func Test_wsURL(t *testing.T) {
	tcases := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws"},
		{"https://retro.example.com/", "wss://retro.example.com/ws"},
		{"ws://localhost:8000", "ws://localhost:8000/ws"},
	}

	for _, tc := range tcases {
		t.Run(tc.base, func(t *testing.T) {
			assert.Equal(t, tc.want, New(tc.base).wsURL())
		})
	}
}
