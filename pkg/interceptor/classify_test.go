package interceptor

import (
	"io"
	"net/http"
	"testing"
)

func TestClassifyResult(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ResultClass
	}{
		{
			name:     "transport error",
			err:      io.EOF,
			expected: ResultClassNetwork,
		},
		{
			name:       "success 200",
			statusCode: 200,
			expected:   ResultClassSuccess,
		},
		{
			name:       "redirect 304",
			statusCode: 304,
			expected:   ResultClassSuccess,
		},
		{
			name:       "client error 404",
			statusCode: 404,
			expected:   ResultClassClient,
		},
		{
			name:       "server error 503",
			statusCode: 503,
			expected:   ResultClassServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			if got := classifyResult(resp, tt.err); got != tt.expected {
				t.Errorf("classifyResult() = %q, want %q", got, tt.expected)
			}
		})
	}
}
