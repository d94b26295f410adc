package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facesessions/internal/faceenc"
	"github.com/your-org/facesessions/internal/models"
	"github.com/your-org/facesessions/internal/storage"
)

// fakeEncoder answers per file name; delays let later files finish first.
type fakeEncoder struct {
	delays   map[string]time.Duration
	failures map[string]error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (e *fakeEncoder) Encode(ctx context.Context, file faceenc.File) ([]models.Encoding, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		cur := e.maxInFlight.Load()
		if n <= cur || e.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	select {
	case <-time.After(e.delays[file.FileName]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := e.failures[file.FileName]; err != nil {
		return nil, err
	}
	var enc models.Encoding
	enc[0] = float64(len(file.FileName))
	return []models.Encoding{enc}, nil
}

// barrierEncoder blocks until n calls are in flight at once.
type barrierEncoder struct {
	wg sync.WaitGroup
}

func (e *barrierEncoder) Encode(ctx context.Context, _ faceenc.File) ([]models.Encoding, error) {
	e.wg.Done()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return []models.Encoding{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateSession(ctx context.Context, sess *models.Session) error {
	return m.Called(ctx, sess).Error(0)
}

func (m *MockRepository) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockRepository) ListSessions(ctx context.Context, userID string, page models.Pagination) ([]models.Session, int, error) {
	args := m.Called(ctx, userID, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.Session), args.Int(1), args.Error(2)
}

func (m *MockRepository) UpdateSession(ctx context.Context, id string, summary []models.FileResult) error {
	return m.Called(ctx, id, summary).Error(0)
}

func (m *MockRepository) DeleteSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (n *recordingNotifier) SessionCreated(_ context.Context, sess *models.Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, sess.ID)
	return n.err
}

type recordingArchiver struct {
	keys []string
}

func (a *recordingArchiver) ArchiveUpload(_ context.Context, sessionID string, index int, fileName, _ string, _ []byte) error {
	a.keys = append(a.keys, storage.UploadKey(sessionID, index, fileName))
	return errors.New("bucket offline")
}

func files(names ...string) []RawFile {
	out := make([]RawFile, len(names))
	for i, n := range names {
		out[i] = RawFile{FileName: n, ContentType: "image/jpeg", Content: []byte(n)}
	}
	return out
}

func TestCreateSessionPreservesInputOrder(t *testing.T) {
	enc := &fakeEncoder{delays: map[string]time.Duration{
		"a.jpg": 60 * time.Millisecond,
		"b.jpg": 30 * time.Millisecond,
		"c.jpg": 0,
	}}
	svc := NewService(storage.NewMemoryStore(), enc, Options{})

	sess, err := svc.CreateSession(context.Background(), "u1", files("a.jpg", "b.jpg", "c.jpg"))
	require.NoError(t, err)

	require.Len(t, sess.Summary, 3)
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		assert.Equal(t, name, sess.Summary[i].FileName())
		faces, ok := sess.Summary[i].Faces()
		require.True(t, ok)
		require.Len(t, faces, 1)
	}
	assert.Equal(t, "u1", sess.UserID)
	assert.NotEmpty(t, sess.ID)
}

func TestCreateSessionEncodesConcurrently(t *testing.T) {
	enc := &barrierEncoder{}
	enc.wg.Add(4)
	svc := NewService(storage.NewMemoryStore(), enc, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := svc.CreateSession(ctx, "u1", files("1", "2", "3", "4"))
	require.NoError(t, err)
	for _, r := range sess.Summary {
		_, ok := r.Faces()
		assert.True(t, ok, "all encodes should have met at the barrier")
	}
}

func TestCreateSessionRespectsConcurrencyLimit(t *testing.T) {
	enc := &fakeEncoder{delays: map[string]time.Duration{}}
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
		enc.delays[names[i]] = 10 * time.Millisecond
	}
	svc := NewService(storage.NewMemoryStore(), enc, Options{MaxConcurrency: 2})

	sess, err := svc.CreateSession(context.Background(), "u1", files(names...))
	require.NoError(t, err)
	assert.Len(t, sess.Summary, 8)
	assert.LessOrEqual(t, enc.maxInFlight.Load(), int32(2))
}

func TestCreateSessionContainsPartialFailure(t *testing.T) {
	enc := &fakeEncoder{
		delays:   map[string]time.Duration{},
		failures: map[string]error{"bad.jpg": &faceenc.RemoteEncodingError{StatusCode: 500, Msg: "HTTP error! status: 500"}},
	}
	svc := NewService(storage.NewMemoryStore(), enc, Options{})

	sess, err := svc.CreateSession(context.Background(), "u1", files("ok1.jpg", "bad.jpg", "ok2.jpg"))
	require.NoError(t, err)
	require.Len(t, sess.Summary, 3)

	_, ok := sess.Summary[0].Faces()
	assert.True(t, ok)
	reason, failed := sess.Summary[1].Reason()
	assert.True(t, failed)
	assert.Equal(t, "HTTP error! status: 500", reason)
	_, ok = sess.Summary[2].Faces()
	assert.True(t, ok)
}

func TestCreateSessionWithNoFiles(t *testing.T) {
	repo := storage.NewMemoryStore()
	svc := NewService(repo, &fakeEncoder{}, Options{})

	sess, err := svc.CreateSession(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.NotNil(t, sess.Summary)
	assert.Empty(t, sess.Summary)

	stored, err := repo.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Summary)
}

func TestCreateSessionPersistenceFailure(t *testing.T) {
	repo := new(MockRepository)
	repo.On("CreateSession", mock.Anything, mock.AnythingOfType("*models.Session")).
		Return(errors.New("disk full"))
	notifier := &recordingNotifier{}
	svc := NewService(repo, &fakeEncoder{}, Options{Notifiers: []Notifier{notifier}})

	sess, err := svc.CreateSession(context.Background(), "u1", files("a.jpg"))
	assert.Nil(t, sess)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create", perr.Op)
	assert.Empty(t, notifier.seen)
	repo.AssertExpectations(t)
}

func TestCreateSessionIDsAreUniqueAndTimeOrdered(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), &fakeEncoder{}, Options{})

	first, err := svc.CreateSession(context.Background(), "u1", nil)
	require.NoError(t, err)
	second, err := svc.CreateSession(context.Background(), "u1", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.ID, second.ID)
}

func TestCreateSessionSideEffectsAreBestEffort(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("nats down")}
	archiver := &recordingArchiver{}
	svc := NewService(storage.NewMemoryStore(), &fakeEncoder{}, Options{
		Archiver:  archiver,
		Notifiers: []Notifier{notifier},
	})

	sess, err := svc.CreateSession(context.Background(), "u1", files("a.jpg", "a.jpg"))
	require.NoError(t, err)

	assert.Equal(t, []string{sess.ID}, notifier.seen)
	assert.Equal(t, []string{
		storage.UploadKey(sess.ID, 0, "a.jpg"),
		storage.UploadKey(sess.ID, 1, "a.jpg"),
	}, archiver.keys)
}

func TestListSessionsIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore(), &fakeEncoder{}, Options{})

	for i := 0; i < 3; i++ {
		_, err := svc.CreateSession(ctx, "u1", nil)
		require.NoError(t, err)
	}
	_, err := svc.CreateSession(ctx, "u2", nil)
	require.NoError(t, err)

	page, err := svc.ListSessions(ctx, "u1", models.DefaultPagination())
	require.NoError(t, err)
	assert.Len(t, page.Data, 3)
	for _, s := range page.Data {
		assert.Equal(t, "u1", s.UserID)
	}
	assert.Equal(t, models.PageMetadata{CurrentPage: 1, TotalPages: 1, TotalItems: 3, ItemsPerPage: 10}, page.Metadata)
	assert.Greater(t, page.Data[0].ID, page.Data[1].ID)
}

func TestListSessionsPaginationMath(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore(), &fakeEncoder{}, Options{})
	for i := 0; i < 7; i++ {
		_, err := svc.CreateSession(ctx, "u1", nil)
		require.NoError(t, err)
	}

	page, err := svc.ListSessions(ctx, "u1", models.Pagination{Page: 3, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, models.PageMetadata{CurrentPage: 3, TotalPages: 3, TotalItems: 7, ItemsPerPage: 3}, page.Metadata)

	page, err = svc.ListSessions(ctx, "u1", models.Pagination{Page: 4, Limit: 3})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, 7, page.Metadata.TotalItems)
	assert.Equal(t, 3, page.Metadata.TotalPages)

	page, err = svc.ListSessions(ctx, "u1", models.Pagination{Page: 0, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Metadata.CurrentPage)
	assert.Equal(t, 100, page.Metadata.ItemsPerPage)

	page, err = svc.ListSessions(ctx, "u1", models.Pagination{Page: 2, Limit: 0})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, models.PageMetadata{CurrentPage: 2, TotalPages: 7, TotalItems: 7, ItemsPerPage: 1}, page.Metadata)

	page, err = svc.ListSessions(ctx, "u1", models.Pagination{Page: 1e18, Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, models.PageMetadata{CurrentPage: 1e18, TotalPages: 1, TotalItems: 7, ItemsPerPage: 10}, page.Metadata)
}

func TestListSessionsStorageFailure(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListSessions", mock.Anything, "u1", models.Pagination{Page: 1, Limit: 10}).
		Return(nil, 0, errors.New("connection reset"))
	svc := NewService(repo, &fakeEncoder{}, Options{})

	_, err := svc.ListSessions(context.Background(), "u1", models.DefaultPagination())

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "list", perr.Op)
	repo.AssertExpectations(t)
}

func TestGetSessionByIDEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore(), &fakeEncoder{}, Options{})

	created, err := svc.CreateSession(ctx, "userB", files("a.jpg"))
	require.NoError(t, err)

	got, err := svc.GetSessionByID(ctx, created.ID, "userB")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetSessionByID(ctx, created.ID, "userA")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetSessionByID(ctx, "does-not-exist", "userB")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSessionByIDStorageFailure(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetSessionByID", mock.Anything, "x").Return(nil, errors.New("timeout"))
	svc := NewService(repo, &fakeEncoder{}, Options{})

	_, err := svc.GetSessionByID(context.Background(), "x", "u1")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.NotErrorIs(t, err, ErrNotFound)
}
