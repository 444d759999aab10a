package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// Key identifies a cached response: request method plus absolute URL.
type Key struct {
	// Method is the upper-cased HTTP method
	Method string

	// URL is the request URL without fragment
	URL string
}

// NewKey builds the key for an outgoing request.
func NewKey(req *http.Request) Key {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return KeyFor(method, req.URL)
}

// KeyFor builds a key from a method and URL.
// Fragments never reach the network and are dropped.
func KeyFor(method string, u *url.URL) Key {
	k := Key{Method: strings.ToUpper(method)}
	if u != nil {
		stripped := *u
		stripped.Fragment = ""
		stripped.RawFragment = ""
		k.URL = stripped.String()
	}
	return k
}

// Cacheable reports whether responses for this key may be stored.
// Only GET is cache-eligible.
func (k Key) Cacheable() bool {
	return k.Method == http.MethodGet
}

// String generates the storage field for the key.
// Format: METHOD URL
//
// Example:
//
//	GET https://app.example.com/index.html
func (k Key) String() string {
	return k.Method + " " + k.URL
}
