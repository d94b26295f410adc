package dto

import (
	"time"

	"github.com/your-org/facesessions/internal/models"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionCreatedEvent is published on NATS after a session is persisted.
type SessionCreatedEvent struct {
	Session   models.Session `json:"session"`
	FileCount int            `json:"file_count"`
	Failed    int            `json:"failed"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewSessionCreatedEvent(sess *models.Session, at time.Time) SessionCreatedEvent {
	failed := 0
	for _, r := range sess.Summary {
		if _, ok := r.Reason(); ok {
			failed++
		}
	}
	return SessionCreatedEvent{
		Session:   *sess,
		FileCount: len(sess.Summary),
		Failed:    failed,
		CreatedAt: at.UTC(),
	}
}

// WSEvent is a WebSocket message pushed to the session owner.
type WSEvent struct {
	Type string         `json:"type"` // session_created
	Data models.Session `json:"data"`
}

const WSEventSessionCreated = "session_created"
