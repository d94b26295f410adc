// Package faceenc talks to the remote face encoding endpoint.
package faceenc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/your-org/facesessions/internal/models"
	"github.com/your-org/facesessions/internal/observability"
)

// File is one uploaded image as handed to the encoder.
type File struct {
	Content     []byte
	FileName    string
	ContentType string
}

// RemoteEncodingError reports a failed encode call. StatusCode is set when the
// endpoint answered with a non-success status.
type RemoteEncodingError struct {
	StatusCode int
	Msg        string
	Cause      error
}

func (e *RemoteEncodingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *RemoteEncodingError) Unwrap() error { return e.Cause }

var errSchema = errors.New("response is not an array of 128-length numeric arrays")

type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Encode posts a single file and returns the face encodings found in it. It never
// retries.
func (c *Client) Encode(ctx context.Context, file File) ([]models.Encoding, error) {
	start := time.Now()
	defer func() {
		observability.EncodeDuration.Observe(time.Since(start).Seconds())
	}()

	body, contentType, err := buildMultipart(file)
	if err != nil {
		return nil, &RemoteEncodingError{Msg: fmt.Sprintf("failed to append file %s", file.FileName), Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &RemoteEncodingError{Msg: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteEncodingError{Msg: "send request", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &RemoteEncodingError{
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("HTTP error! status: %d", resp.StatusCode),
		}
	}

	faces, err := decodeEncodings(resp.Body)
	if err != nil {
		return nil, &RemoteEncodingError{Msg: "invalid encoder response", Cause: err}
	}
	return faces, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildMultipart(file File) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// CreateFormFile hardcodes application/octet-stream, so the header is built by hand.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.FileName)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// decodeEncodings accepts only a JSON array of arrays holding exactly
// EncodingSize finite numbers each.
func decodeEncodings(r io.Reader) ([]models.Encoding, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	outer, ok := raw.([]any)
	if !ok {
		return nil, errSchema
	}

	faces := make([]models.Encoding, len(outer))
	for i, item := range outer {
		inner, ok := item.([]any)
		if !ok || len(inner) != models.EncodingSize {
			return nil, fmt.Errorf("%w: face %d", errSchema, i)
		}
		for j, v := range inner {
			num, ok := v.(json.Number)
			if !ok {
				return nil, fmt.Errorf("%w: face %d element %d is not a number", errSchema, i, j)
			}
			f, err := num.Float64()
			if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, fmt.Errorf("%w: face %d element %d out of range", errSchema, i, j)
			}
			faces[i][j] = f
		}
	}
	return faces, nil
}
