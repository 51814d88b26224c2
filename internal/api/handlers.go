package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/npezzotti/retro-board/internal/database"
	"go.uber.org/zap"
)

type RoomRequest struct {
	Title string `json:"title"`
}

type CreateTopicRequest struct {
	Name string `json:"name"`
}

// UpdateCommentRequest changes only the fields that are present.
type UpdateCommentRequest struct {
	Value   *string `json:"value"`
	Exposed *bool   `json:"exposed"`
	Votes   *int    `json:"votes"`
}

func (s *BoardApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

func (s *BoardApp) writeError(w http.ResponseWriter, err error) {
	errResp := errorFor(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *BoardApp) badRequest(w http.ResponseWriter) {
	errResp := NewBadRequestError()
	s.writeJson(w, errResp.StatusCode, errResp)
}

func pathId(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *BoardApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Ping(); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *BoardApp) getRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.board.Rooms()
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *BoardApp) getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	room, err := s.board.Room(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *BoardApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w)
		return
	}

	room, err := s.board.AddRoom(req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *BoardApp) updateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	var req RoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w)
		return
	}

	room, err := s.board.UpdateRoom(id, req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *BoardApp) createTopic(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	var req CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.badRequest(w)
		return
	}

	topic, err := s.board.AddTopic(roomId, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, topic)
}

func (s *BoardApp) getTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.board.Topics()
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, topics)
}

// deleteTopic responds with the topic's room.
func (s *BoardApp) deleteTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	room, err := s.board.DeleteTopic(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *BoardApp) createComment(w http.ResponseWriter, r *http.Request) {
	topicId, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	comment, err := s.board.AddComment(topicId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, comment)
}

func (s *BoardApp) getComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.board.Comments()
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, comments)
}

func (s *BoardApp) getComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	comment, err := s.board.Comment(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, comment)
}

func (s *BoardApp) updateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	var req UpdateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w)
		return
	}

	if req.Value == nil && req.Exposed == nil && req.Votes == nil {
		s.badRequest(w)
		return
	}

	comment, err := s.board.UpdateComment(id, database.CommentPatch{
		Value:   req.Value,
		Exposed: req.Exposed,
		Votes:   req.Votes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, comment)
}

// deleteComment responds with the comment's topic, or null when the topic no
// longer exists.
func (s *BoardApp) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(r)
	if !ok {
		s.badRequest(w)
		return
	}

	topic, err := s.board.DeleteComment(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, topic)
}

func (s *BoardApp) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("error upgrading connection", zap.Error(err))
		return
	}

	if err := s.ss.Serve(conn); err != nil {
		s.log.Warn("rejected websocket connection", zap.Error(err))
	}
}
