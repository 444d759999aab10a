package cache

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestResponseToEntry(t *testing.T) {
	req, _ := http.NewRequest("GET", "https://app.example.com/index.html", nil)

	tests := []struct {
		name    string
		resp    *http.Response
		wantURL string
		wantErr bool
	}{
		{
			name: "response with request",
			resp: &http.Response{
				StatusCode: 200,
				Header: http.Header{
					"Content-Type": []string{"text/html"},
					"ETag":         []string{`"abc123"`},
				},
				Body:    io.NopCloser(bytes.NewReader([]byte("<html>v1</html>"))),
				Request: req,
			},
			wantURL: "https://app.example.com/index.html",
		},
		{
			name: "response without request",
			resp: &http.Response{
				StatusCode: 200,
				Header:     http.Header{},
				Body:       io.NopCloser(bytes.NewReader([]byte("body"))),
			},
		},
		{
			name:    "nil response",
			resp:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := ResponseToEntry(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResponseToEntry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			// Verify body was read and restored
			body, _ := io.ReadAll(tt.resp.Body)
			if !bytes.Equal(body, entry.Data) {
				t.Errorf("restored body = %q, entry data = %q", body, entry.Data)
			}
			if entry.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %d, want %d", entry.StatusCode, tt.resp.StatusCode)
			}
			if entry.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", entry.URL, tt.wantURL)
			}
			if entry.CachedAt.IsZero() {
				t.Error("CachedAt was not set")
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	req, _ := http.NewRequest("GET", "https://app.example.com/style.css", nil)
	entry := &Entry{
		URL:        "https://app.example.com/style.css",
		Data:       []byte("body { margin: 0 }"),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/css"}},
		CachedAt:   time.Now(),
	}

	resp := EntryToResponse(entry, req)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(body, entry.Data) {
		t.Errorf("body = %q, want %q", body, entry.Data)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Status != "200 OK" {
		t.Errorf("Status = %q, want %q", resp.Status, "200 OK")
	}
	if resp.Header.Get("Content-Type") != "text/css" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if resp.ContentLength != int64(len(entry.Data)) {
		t.Errorf("ContentLength = %d, want %d", resp.ContentLength, len(entry.Data))
	}
	if resp.Request != req {
		t.Error("Request not attached to response")
	}

	// Rebuilding must not alias the stored headers
	resp.Header.Set("Content-Type", "text/plain")
	if entry.Headers.Get("Content-Type") != "text/css" {
		t.Error("EntryToResponse aliased the stored headers")
	}
}

func TestEntryToResponse_NilHeaders(t *testing.T) {
	resp := EntryToResponse(&Entry{StatusCode: http.StatusNoContent}, nil)
	if resp.Header == nil {
		t.Fatal("Header should never be nil")
	}
	if resp.Header.Get("Content-Length") != "0" {
		t.Errorf("Content-Length = %q, want 0", resp.Header.Get("Content-Length"))
	}
}
