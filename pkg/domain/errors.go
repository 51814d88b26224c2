package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrChannelDisconnected is reported by a subscription whose transport dropped.
// Events published while disconnected are lost.
var ErrChannelDisconnected = errors.New("subscription channel disconnected")

type NotFoundError struct {
	Entity EntityType
	Id     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", lower(string(e.Entity)), e.Id)
}

func NewNotFoundError(entity EntityType, id int) *NotFoundError {
	return &NotFoundError{Entity: entity, Id: id}
}

// IsNotFound reports whether err or anything it wraps is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type UnsupportedOperationError struct {
	Entity   EntityType
	Mutation MutationKind
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s %s is not supported", lower(string(e.Entity)), e.Mutation)
}

func lower(s string) string {
	return strings.ToLower(s)
}
