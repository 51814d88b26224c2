// Package wire defines the frames exchanged over the subscription websocket
// and the codecs used to encode them.
package wire

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/npezzotti/retro-board/pkg/domain"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty" msgpack:"id,omitempty"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Subscribe   *Subscribe   `json:"subscribe,omitempty" msgpack:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty" msgpack:"unsubscribe,omitempty"`
}

// Subscribe opens a logical subscription named SubId on the connection.
// An empty MutationIn accepts every mutation kind.
type Subscribe struct {
	SubId      string                `json:"sub_id" msgpack:"sub_id"`
	Entity     domain.EntityType     `json:"entity" msgpack:"entity"`
	MutationIn []domain.MutationKind `json:"mutation_in,omitempty" msgpack:"mutation_in,omitempty"`
}

type Unsubscribe struct {
	SubId string `json:"sub_id" msgpack:"sub_id"`
}

type ServerMessage struct {
	BaseMessage
	Response *Response `json:"response,omitempty" msgpack:"response,omitempty"`
	Event    *Event    `json:"event,omitempty" msgpack:"event,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code" msgpack:"response_code"`
	Error        string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Event delivers one mutation to the subscription named SubId.
type Event struct {
	SubId string               `json:"sub_id" msgpack:"sub_id"`
	Event domain.MutationEvent `json:"event" msgpack:"event"`
}

var (
	ErrEmptyMessage    = errors.New("message has no subscribe or unsubscribe")
	ErrAmbiguous       = errors.New("message has both subscribe and unsubscribe")
	ErrMissingSubId    = errors.New("sub_id is required")
	ErrInvalidEntity   = errors.New("invalid entity type")
	ErrInvalidMutation = errors.New("invalid mutation kind in mutation_in")
)

func (m *ClientMessage) Validate() error {
	switch {
	case m.Subscribe == nil && m.Unsubscribe == nil:
		return ErrEmptyMessage
	case m.Subscribe != nil && m.Unsubscribe != nil:
		return ErrAmbiguous
	case m.Subscribe != nil:
		return m.Subscribe.Validate()
	}

	if m.Unsubscribe.SubId == "" {
		return ErrMissingSubId
	}
	return nil
}

func (s *Subscribe) Validate() error {
	if s.SubId == "" {
		return ErrMissingSubId
	}
	if !s.Entity.Valid() {
		return ErrInvalidEntity
	}
	for _, k := range s.MutationIn {
		if !k.Valid() {
			return ErrInvalidMutation
		}
	}
	return nil
}

// Accepts reports whether an event of the given kind passes the filter.
func (s *Subscribe) Accepts(kind domain.MutationKind) bool {
	return len(s.MutationIn) == 0 || slices.Contains(s.MutationIn, kind)
}

func NoErrOK(id int) *ServerMessage {
	return response(id, http.StatusOK, "")
}

func ErrBadRequest(id int, err error) *ServerMessage {
	return response(id, http.StatusBadRequest, err.Error())
}

func ErrSubscriptionNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "subscription not found")
}

func ErrSubscriptionExists(id int) *ServerMessage {
	return response(id, http.StatusConflict, "subscription id already in use")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return response(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	return response(id, http.StatusBadRequest, "invalid message format")
}

func response(id, code int, errMsg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
		},
	}
}

func EventMessage(subId string, ev domain.MutationEvent) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Event: &Event{
			SubId: subId,
			Event: ev,
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
