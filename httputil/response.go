// Package httputil owns the JSON response envelope and the single point
// where application errors become HTTP error responses.
package httputil

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/Surya1712/VideoTubes/apperror"
)

// DefaultBodyLimit is the default maximum request body size (1 MB).
const DefaultBodyLimit int64 = 1 << 20

// Envelope is the uniform response wrapper every endpoint returns.
type Envelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

// WriteData sends a success envelope with the given status code.
func WriteData(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

// WriteError translates an application error into the error envelope.
// Errors without a recognized category become a generic 500 so internal
// details (SQL, file paths) never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := apperror.Status(err)
		writeJSON(w, status, Envelope{
			StatusCode: status,
			Message:    appErr.Message,
			Success:    false,
		})
		return
	}
	log.Printf("unhandled error: %v", err)
	writeJSON(w, 500, Envelope{
		StatusCode: 500,
		Message:    "Internal server error",
		Success:    false,
	})
}

// WriteFailure sends an error envelope with an explicit status, for
// middleware that rejects a request before any handler runs.
func WriteFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{
		StatusCode: status,
		Message:    message,
		Success:    false,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// MaxBody wraps r.Body with a size limit to prevent oversized payloads.
func MaxBody(r *http.Request, n int64) {
	r.Body = http.MaxBytesReader(nil, r.Body, n)
}

// Page is the pagination payload shape the frontend consumes. Field
// names follow the aggregate-paginate convention the clients expect.
type Page struct {
	Docs        interface{} `json:"docs"`
	TotalDocs   int         `json:"totalDocs"`
	Limit       int         `json:"limit"`
	Page        int         `json:"page"`
	TotalPages  int         `json:"totalPages"`
	HasNextPage bool        `json:"hasNextPage"`
	HasPrevPage bool        `json:"hasPrevPage"`
}

// NewPage assembles pagination metadata around one page of docs.
func NewPage(docs interface{}, totalDocs, page, limit int) Page {
	totalPages := 0
	if limit > 0 {
		totalPages = (totalDocs + limit - 1) / limit
	}
	return Page{
		Docs:        docs,
		TotalDocs:   totalDocs,
		Limit:       limit,
		Page:        page,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && totalDocs > 0,
	}
}

// MaxPageLimit caps the page size a caller may request.
const MaxPageLimit = 100

// PageParams reads page/limit query parameters with the given default
// limit. Out-of-range values fall back to sane bounds rather than erroring.
func PageParams(r *http.Request, defaultLimit int) (page, limit, offset int) {
	page = 1
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit, (page - 1) * limit
}
