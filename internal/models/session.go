package models

import (
	"encoding/json"
	"errors"
	"math"
)

// EncodingSize is the width of one face encoding vector.
const EncodingSize = 128

// Encoding is a single face encoding produced by the remote encoder.
type Encoding [EncodingSize]float64

// Session is one upload's aggregated encoding outcomes. Summary order matches the
// order in which files were supplied.
type Session struct {
	ID      string       `json:"id"`
	UserID  string       `json:"userId"`
	Summary []FileResult `json:"summary"`
}

// FileResult is either a success carrying faces or a failure carrying a reason.
// Build one with Succeeded or Failed.
type FileResult struct {
	fileName string
	faces    []Encoding
	reason   string
	failed   bool
}

func Succeeded(fileName string, faces []Encoding) FileResult {
	if faces == nil {
		faces = []Encoding{}
	}
	return FileResult{fileName: fileName, faces: faces}
}

func Failed(fileName, reason string) FileResult {
	return FileResult{fileName: fileName, reason: reason, failed: true}
}

func (r FileResult) FileName() string { return r.fileName }

// Faces returns the encodings and true for a successful result.
func (r FileResult) Faces() ([]Encoding, bool) {
	if r.failed {
		return nil, false
	}
	return r.faces, true
}

// Reason returns the failure description and true for a failed result.
func (r FileResult) Reason() (string, bool) {
	return r.reason, r.failed
}

type fileResultJSON struct {
	FileName string      `json:"fileName"`
	Faces    *[]Encoding `json:"faces,omitempty"`
	Error    *string     `json:"error,omitempty"`
}

func (r FileResult) MarshalJSON() ([]byte, error) {
	out := fileResultJSON{FileName: r.fileName}
	if r.failed {
		reason := r.reason
		out.Error = &reason
	} else {
		faces := r.faces
		if faces == nil {
			faces = []Encoding{}
		}
		out.Faces = &faces
	}
	return json.Marshal(out)
}

var errAmbiguousResult = errors.New("file result must carry exactly one of faces or error")

func (r *FileResult) UnmarshalJSON(data []byte) error {
	var in fileResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Error != nil && in.Faces == nil:
		*r = Failed(in.FileName, *in.Error)
	case in.Faces != nil && in.Error == nil:
		*r = Succeeded(in.FileName, *in.Faces)
	default:
		return errAmbiguousResult
	}
	return nil
}

// Pagination is the caller-supplied page request. Absent query values are
// resolved to DefaultPage and DefaultLimit before it is built.
type Pagination struct {
	Page  int
	Limit int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// DefaultPagination is the first page at the default size.
func DefaultPagination() Pagination {
	return Pagination{Page: DefaultPage, Limit: DefaultLimit}
}

// Normalize clamps page to >= 1 and limit to [1, MaxLimit].
func (p Pagination) Normalize() Pagination {
	return Pagination{
		Page:  max(1, p.Page),
		Limit: max(1, min(MaxLimit, p.Limit)),
	}
}

// Offset is the number of rows skipped before the requested page. It
// saturates so that Offset()+Limit never overflows int.
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	maxSkip := (math.MaxInt - p.Limit) / p.Limit
	return min(p.Page-1, maxSkip) * p.Limit
}

type PageMetadata struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

type SessionPage struct {
	Data     []Session    `json:"data"`
	Metadata PageMetadata `json:"metadata"`
}

// TotalPages is ceil(totalItems / limit).
func TotalPages(totalItems, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (totalItems + limit - 1) / limit
}
