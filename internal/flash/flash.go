// Package flash carries a one-time status message from a mutating request
// to the next rendered page through the session.
package flash

import (
	"context"

	"github.com/sujalbistaa/quill/internal/session"
)

// Key is the session key the message lives under until it is read.
const Key = "infoFromPrevious"

// Presentation classes understood by the layout.
const (
	ClassSuccess = "success"
	ClassDanger  = "danger"
)

// Message is a status line and the CSS class it is rendered with.
type Message struct {
	Info      string `json:"info"`
	ClassFlag string `json:"classFlag"`
}

// Success builds a success message.
func Success(info string) Message {
	return Message{Info: info, ClassFlag: ClassSuccess}
}

// Danger builds a failure message.
func Danger(info string) Message {
	return Message{Info: info, ClassFlag: ClassDanger}
}

// Put stores m for the next request of the same session, replacing any
// unread message.
func Put(ctx context.Context, s *session.Session, m Message) error {
	return s.Put(ctx, Key, m)
}

// Pop returns the pending message, if any, and clears it.
func Pop(ctx context.Context, s *session.Session) (*Message, error) {
	var m Message
	ok, err := s.Pop(ctx, Key, &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}
