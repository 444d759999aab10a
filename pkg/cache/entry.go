package cache

import (
	"net/http"
	"time"
)

// Entry is a stored response inside a generation.
// Entries are never modified after they are written.
type Entry struct {
	// URL is the absolute URL the response was fetched from
	URL string `json:"url"`

	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the stored response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// CachedAt is when the entry was written
	CachedAt time.Time `json:"cached_at"`
}

// Size returns the body size in bytes.
func (e *Entry) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Data)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	data := make([]byte, len(e.Data))
	copy(data, e.Data)
	return &Entry{
		URL:        e.URL,
		Data:       data,
		StatusCode: e.StatusCode,
		Headers:    e.Headers.Clone(),
		CachedAt:   e.CachedAt,
	}
}
