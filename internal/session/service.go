// Package session creates, lists and fetches face encoding sessions.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/facesessions/internal/faceenc"
	"github.com/your-org/facesessions/internal/models"
	"github.com/your-org/facesessions/internal/observability"
	"github.com/your-org/facesessions/internal/storage"
)

// RawFile is one uploaded file part.
type RawFile = faceenc.File

type Repository interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, userID string, page models.Pagination) ([]models.Session, int, error)
	UpdateSession(ctx context.Context, id string, summary []models.FileResult) error
	DeleteSession(ctx context.Context, id string) error
}

type Encoder interface {
	Encode(ctx context.Context, file faceenc.File) ([]models.Encoding, error)
}

// Notifier is told about every persisted session.
type Notifier interface {
	SessionCreated(ctx context.Context, sess *models.Session) error
}

// Archiver keeps a copy of the original uploads.
type Archiver interface {
	ArchiveUpload(ctx context.Context, sessionID string, index int, fileName, contentType string, data []byte) error
}

type Options struct {
	// MaxConcurrency caps in-flight encode calls per CreateSession. Zero means unbounded.
	MaxConcurrency int
	Archiver       Archiver
	Notifiers      []Notifier
	// NewID overrides session id generation. Defaults to UUIDv7.
	NewID func() (string, error)
}

type Service struct {
	repo    Repository
	encoder Encoder
	opts    Options
}

func NewService(repo Repository, encoder Encoder, opts Options) *Service {
	if opts.NewID == nil {
		opts.NewID = newSessionID
	}
	return &Service{repo: repo, encoder: encoder, opts: opts}
}

func newSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CreateSession encodes every file concurrently, waits for all of them, and
// persists one session whose summary follows the input order. A failed encode
// becomes that file's error entry and never fails the call.
func (s *Service) CreateSession(ctx context.Context, userID string, files []RawFile) (*models.Session, error) {
	summary := make([]models.FileResult, len(files))

	var g errgroup.Group
	if s.opts.MaxConcurrency > 0 {
		g.SetLimit(s.opts.MaxConcurrency)
	}
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			summary[i] = s.processFile(ctx, file)
			return nil
		})
	}
	_ = g.Wait()

	id, err := s.opts.NewID()
	if err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	sess := &models.Session{
		ID:      id,
		UserID:  userID,
		Summary: summary,
	}

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		slog.Error("persist session", "session_id", id, "user_id", userID, "error", err)
		return nil, &PersistenceError{Op: "create", Err: err}
	}
	observability.SessionsCreated.Inc()

	s.afterCreate(ctx, sess, files)
	return sess, nil
}

func (s *Service) processFile(ctx context.Context, file RawFile) models.FileResult {
	faces, err := s.encoder.Encode(ctx, file)
	if err != nil {
		slog.Warn("encode file", "file", file.FileName, "error", err)
		observability.FileEncodings.WithLabelValues(observability.OutcomeFailure).Inc()
		return models.Failed(file.FileName, err.Error())
	}
	observability.FileEncodings.WithLabelValues(observability.OutcomeSuccess).Inc()
	return models.Succeeded(file.FileName, faces)
}

// afterCreate runs best-effort side effects; their failures are only logged.
func (s *Service) afterCreate(ctx context.Context, sess *models.Session, files []RawFile) {
	if s.opts.Archiver != nil {
		for i, f := range files {
			if err := s.opts.Archiver.ArchiveUpload(ctx, sess.ID, i, f.FileName, f.ContentType, f.Content); err != nil {
				slog.Warn("archive upload", "session_id", sess.ID, "file", f.FileName, "error", err)
			}
		}
	}
	for _, n := range s.opts.Notifiers {
		if err := n.SessionCreated(ctx, sess); err != nil {
			slog.Warn("notify session created", "session_id", sess.ID, "error", err)
		}
	}
}

// ListSessions returns the user's sessions newest first with page metadata. A
// page past the end has empty data and the real totals.
func (s *Service) ListSessions(ctx context.Context, userID string, page models.Pagination) (*models.SessionPage, error) {
	page = page.Normalize()

	rows, total, err := s.repo.ListSessions(ctx, userID, page)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	if rows == nil {
		rows = []models.Session{}
	}

	return &models.SessionPage{
		Data: rows,
		Metadata: models.PageMetadata{
			CurrentPage:  page.Page,
			TotalPages:   models.TotalPages(total, page.Limit),
			TotalItems:   total,
			ItemsPerPage: page.Limit,
		},
	}, nil
}

// GetSessionByID returns ErrNotFound unless the session exists and belongs to userID.
func (s *Service) GetSessionByID(ctx context.Context, id, userID string) (*models.Session, error) {
	sess, err := s.repo.GetSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	if sess == nil || sess.UserID != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}
