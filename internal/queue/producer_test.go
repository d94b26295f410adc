package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facesessions/internal/models"
	"github.com/your-org/facesessions/pkg/dto"
)

type published struct {
	subject string
	payload []byte
	opts    int
}

type fakePublisher struct {
	got []published
	err error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = append(f.got, published{subject: subject, payload: payload, opts: len(opts)})
	return &jetstream.PubAck{Stream: SessionsStreamName}, nil
}

func TestCreatedSubject(t *testing.T) {
	assert.Equal(t, "sessions.created.u1", CreatedSubject("u1"))
	assert.Equal(t, "sessions.created.a_b_c_d", CreatedSubject("a.b*c>d"))
	assert.Equal(t, "sessions.created.john_doe", CreatedSubject("john doe"))
}

func TestSessionCreatedPublishes(t *testing.T) {
	pub := &fakePublisher{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Producer{pub: pub, now: func() time.Time { return at }}

	sess := &models.Session{
		ID:      "0190-abc",
		UserID:  "u1",
		Summary: []models.FileResult{models.Failed("x.jpg", "boom")},
	}
	require.NoError(t, p.SessionCreated(context.Background(), sess))

	require.Len(t, pub.got, 1)
	assert.Equal(t, "sessions.created.u1", pub.got[0].subject)
	assert.Equal(t, 1, pub.got[0].opts)

	var evt dto.SessionCreatedEvent
	require.NoError(t, json.Unmarshal(pub.got[0].payload, &evt))
	assert.Equal(t, "0190-abc", evt.Session.ID)
	assert.Equal(t, 1, evt.FileCount)
	assert.Equal(t, 1, evt.Failed)
	assert.True(t, evt.CreatedAt.Equal(at))
}

func TestSessionCreatedPublishError(t *testing.T) {
	p := &Producer{pub: &fakePublisher{err: errors.New("no responders")}, now: time.Now}

	err := p.SessionCreated(context.Background(), &models.Session{ID: "1", UserID: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish session event")
}
