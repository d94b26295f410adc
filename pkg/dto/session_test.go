package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/facesessions/internal/models"
)

func TestNewSessionCreatedEventCountsFailures(t *testing.T) {
	sess := &models.Session{
		ID:     "id1",
		UserID: "u1",
		Summary: []models.FileResult{
			models.Succeeded("a.jpg", nil),
			models.Failed("b.jpg", "HTTP error! status: 500"),
			models.Failed("c.jpg", "invalid encoder response"),
		},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	evt := NewSessionCreatedEvent(sess, at)

	assert.Equal(t, 3, evt.FileCount)
	assert.Equal(t, 2, evt.Failed)
	assert.Equal(t, "id1", evt.Session.ID)
	assert.Equal(t, time.UTC, evt.CreatedAt.Location())
}
