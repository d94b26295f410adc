package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesessions/internal/auth"
	"github.com/your-org/facesessions/internal/models"
	"github.com/your-org/facesessions/internal/session"
	"github.com/your-org/facesessions/pkg/dto"
)

// multipartOverhead is the slack allowed on top of the raw file bytes for
// part headers, boundaries and ignored form fields.
const multipartOverhead = 1 << 20

type SessionService interface {
	CreateSession(ctx context.Context, userID string, files []session.RawFile) (*models.Session, error)
	ListSessions(ctx context.Context, userID string, page models.Pagination) (*models.SessionPage, error)
	GetSessionByID(ctx context.Context, id, userID string) (*models.Session, error)
}

type UploadLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

type SessionHandler struct {
	svc    SessionService
	limits UploadLimits
}

func NewSessionHandler(svc SessionService, limits UploadLimits) *SessionHandler {
	return &SessionHandler{svc: svc, limits: limits}
}

func (h *SessionHandler) List(c *gin.Context) {
	result, err := h.svc.ListSessions(c.Request.Context(), auth.UserID(c), models.Pagination{
		Page:  queryInt(c, "page", models.DefaultPage),
		Limit: queryInt(c, "limit", models.DefaultLimit),
	})
	if err != nil {
		internalError(c, "list sessions", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// queryInt returns def when key is absent, empty or not an integer. An
// explicit out-of-range value is passed through for the service to clamp.
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.svc.GetSessionByID(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Session not found"})
			return
		}
		internalError(c, "get session", err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) Create(c *gin.Context) {
	if h.limits.MaxFiles > 0 && h.limits.MaxFileSize > 0 {
		maxBody := int64(h.limits.MaxFiles)*h.limits.MaxFileSize + multipartOverhead
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	}

	files, status, err := h.readFiles(c)
	if err != nil {
		c.JSON(status, dto.ErrorResponse{Error: err.Error()})
		return
	}

	sess, err := h.svc.CreateSession(c.Request.Context(), auth.UserID(c), files)
	if err != nil {
		internalError(c, "create session", err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

// readFiles collects file parts in arrival order. Form fields without a
// filename are skipped.
func (h *SessionHandler) readFiles(c *gin.Context) ([]session.RawFile, int, error) {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("request must be multipart/form-data")
	}

	files := []session.RawFile{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, bodyErrorStatus(err), fmt.Errorf("read multipart body: %w", err)
		}

		if !isFilePart(part.Header.Get("Content-Disposition")) {
			part.Close()
			continue
		}

		if h.limits.MaxFiles > 0 && len(files) >= h.limits.MaxFiles {
			part.Close()
			return nil, http.StatusRequestEntityTooLarge,
				fmt.Errorf("too many files: at most %d allowed", h.limits.MaxFiles)
		}

		data, err := h.readPart(part)
		part.Close()
		if err != nil {
			return nil, bodyErrorStatus(err), err
		}

		files = append(files, session.RawFile{
			Content:     data,
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
		})
	}

	return files, http.StatusOK, nil
}

var errFileTooLarge = errors.New("file too large")

func (h *SessionHandler) readPart(r io.Reader) ([]byte, error) {
	if h.limits.MaxFileSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, h.limits.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file part: %w", err)
	}
	if int64(len(data)) > h.limits.MaxFileSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, h.limits.MaxFileSize)
	}
	return data, nil
}

func isFilePart(disposition string) bool {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func bodyErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.Is(err, errFileTooLarge) || errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func internalError(c *gin.Context, op string, err error) {
	slog.Error(op, "user_id", auth.UserID(c), "error", err)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
}
