// Package client talks to a board server: typed calls for the query and
// mutation API, a websocket Subscriber for mutation events and a RoomWatcher
// that keeps a live copy of one room.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/npezzotti/retro-board/pkg/wire"
	"go.uber.org/zap"
)

// CommentUpdate changes the non-nil fields of a comment.
type CommentUpdate struct {
	Value   *string `json:"value,omitempty"`
	Exposed *bool   `json:"exposed,omitempty"`
	Votes   *int    `json:"votes,omitempty"`
}

type roomRequest struct {
	Title string `json:"title"`
}

type topicRequest struct {
	Name string `json:"name"`
}

// Client is the board API client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	log         *zap.Logger
	subprotocol string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithSubprotocol selects the websocket encoding, wire.SubprotocolJSON or
// wire.SubprotocolMsgpack.
func WithSubprotocol(name string) Option {
	return func(c *Client) {
		c.subprotocol = name
	}
}

// New creates a new API client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:         zap.NewNop(),
		subprotocol: wire.SubprotocolJSON,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rooms lists every room without topics.
func (c *Client) Rooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := c.get(ctx, "/api/rooms", &rooms); err != nil {
		return nil, fmt.Errorf("client.Rooms: %w", err)
	}
	return rooms, nil
}

// Room fetches a room with its topics and comments.
func (c *Client) Room(ctx context.Context, id int) (*domain.Room, error) {
	var room domain.Room
	if err := c.get(ctx, "/api/rooms/"+strconv.Itoa(id), &room); err != nil {
		return nil, fmt.Errorf("client.Room: %w", err)
	}
	return &room, nil
}

func (c *Client) AddRoom(ctx context.Context, title string) (*domain.Room, error) {
	var room domain.Room
	if err := c.post(ctx, "/api/rooms", roomRequest{Title: title}, &room); err != nil {
		return nil, fmt.Errorf("client.AddRoom: %w", err)
	}
	return &room, nil
}

func (c *Client) UpdateRoom(ctx context.Context, id int, title string) (*domain.Room, error) {
	var room domain.Room
	if err := c.doRequest(ctx, http.MethodPut, "/api/rooms/"+strconv.Itoa(id), roomRequest{Title: title}, &room); err != nil {
		return nil, fmt.Errorf("client.UpdateRoom: %w", err)
	}
	return &room, nil
}

func (c *Client) Topics(ctx context.Context) ([]domain.Topic, error) {
	var topics []domain.Topic
	if err := c.get(ctx, "/api/topics", &topics); err != nil {
		return nil, fmt.Errorf("client.Topics: %w", err)
	}
	return topics, nil
}

func (c *Client) AddTopic(ctx context.Context, roomId int, name string) (*domain.Topic, error) {
	var topic domain.Topic
	if err := c.post(ctx, "/api/rooms/"+strconv.Itoa(roomId)+"/topics", topicRequest{Name: name}, &topic); err != nil {
		return nil, fmt.Errorf("client.AddTopic: %w", err)
	}
	return &topic, nil
}

// DeleteTopic deletes a topic and returns the room it belonged to.
func (c *Client) DeleteTopic(ctx context.Context, id int) (*domain.Room, error) {
	var room *domain.Room
	if err := c.doRequest(ctx, http.MethodDelete, "/api/topics/"+strconv.Itoa(id), nil, &room); err != nil {
		return nil, fmt.Errorf("client.DeleteTopic: %w", err)
	}
	return room, nil
}

func (c *Client) Comments(ctx context.Context) ([]domain.Comment, error) {
	var comments []domain.Comment
	if err := c.get(ctx, "/api/comments", &comments); err != nil {
		return nil, fmt.Errorf("client.Comments: %w", err)
	}
	return comments, nil
}

func (c *Client) Comment(ctx context.Context, id int) (*domain.Comment, error) {
	var comment domain.Comment
	if err := c.get(ctx, "/api/comments/"+strconv.Itoa(id), &comment); err != nil {
		return nil, fmt.Errorf("client.Comment: %w", err)
	}
	return &comment, nil
}

// AddComment creates an empty comment under a topic.
func (c *Client) AddComment(ctx context.Context, topicId int) (*domain.Comment, error) {
	var comment domain.Comment
	if err := c.post(ctx, "/api/topics/"+strconv.Itoa(topicId)+"/comments", nil, &comment); err != nil {
		return nil, fmt.Errorf("client.AddComment: %w", err)
	}
	return &comment, nil
}

func (c *Client) UpdateComment(ctx context.Context, id int, update CommentUpdate) (*domain.Comment, error) {
	var comment domain.Comment
	if err := c.doRequest(ctx, http.MethodPatch, "/api/comments/"+strconv.Itoa(id), update, &comment); err != nil {
		return nil, fmt.Errorf("client.UpdateComment: %w", err)
	}
	return &comment, nil
}

// DeleteComment deletes a comment and returns its topic, nil when the topic
// no longer exists.
func (c *Client) DeleteComment(ctx context.Context, id int) (*domain.Topic, error) {
	var topic *domain.Topic
	if err := c.doRequest(ctx, http.MethodDelete, "/api/comments/"+strconv.Itoa(id), nil, &topic); err != nil {
		return nil, fmt.Errorf("client.DeleteComment: %w", err)
	}
	return topic, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Message}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

// wsURL maps the API base URL onto the subscription endpoint.
func (c *Client) wsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
