package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facesessions/internal/models"
	"github.com/your-org/facesessions/pkg/dto"
)

const (
	SessionsStreamName  = "SESSIONS"
	SessionsSubjectBase = "sessions"
	createdSubject      = SessionsSubjectBase + ".created"
)

var ErrNotConnected = errors.New("nats not connected")

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type Producer struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	pub publisher
	now func() time.Time
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("facesessions"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js, pub: js, now: time.Now}, nil
}

// EnsureStreams creates the SESSIONS stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        SessionsStreamName,
		Subjects:    []string{SessionsSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  2 * time.Minute,
		Description: "Face encoding session lifecycle events",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// SessionCreated publishes a dto.SessionCreatedEvent on sessions.created.<userId>.
// The session id is the dedup key.
func (p *Producer) SessionCreated(ctx context.Context, sess *models.Session) error {
	payload, err := json.Marshal(dto.NewSessionCreatedEvent(sess, p.now()))
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	_, err = p.pub.Publish(ctx, CreatedSubject(sess.UserID), payload, jetstream.WithMsgID(sess.ID))
	if err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// CreatedSubject maps a user id to a single subject token.
func CreatedSubject(userID string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>', r <= ' ':
			return '_'
		}
		return r
	}, userID)
	return createdSubject + "." + token
}

func (p *Producer) Ping(_ context.Context) error {
	if !p.nc.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
