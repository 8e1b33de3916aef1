package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopHandler(req *Request, resp *Response) error { return nil }

func TestRegistryFindMatchesParamSegments(t *testing.T) {
	r := NewRegistry()
	r.Add("GET", "/api/v1/posts/:id", noopHandler)

	entry, params, found := r.Find("GET", "/api/v1/posts/abc123")
	assert.True(t, found)
	assert.NotNil(t, entry.Handler)
	assert.Equal(t, "abc123", params["id"])
}

func TestRegistryFindRejectsWrongSegmentCount(t *testing.T) {
	r := NewRegistry()
	r.Add("GET", "/api/v1/posts/:id", noopHandler)

	_, _, found := r.Find("GET", "/api/v1/posts")
	assert.False(t, found)

	_, _, found = r.Find("GET", "/api/v1/posts/abc/extra")
	assert.False(t, found)
}

func TestRegistryFindRequiresMethodMatch(t *testing.T) {
	r := NewRegistry()
	r.Add("GET", "/api/v1/posts", noopHandler)

	_, _, found := r.Find("POST", "/api/v1/posts")
	assert.False(t, found)
}

func TestRegistryRemoveAllWithdrawsFullRouteSet(t *testing.T) {
	r := NewRegistry()
	r.Add("GET", "/api/v1/posts", noopHandler)
	r.Add("GET", "/api/v1/posts/:id", noopHandler)
	r.Add("POST", "/api/v1/posts", noopHandler)

	r.RemoveAll([][2]string{
		{"GET", "/api/v1/posts"},
		{"GET", "/api/v1/posts/:id"},
		{"POST", "/api/v1/posts"},
		{"PATCH", "/api/v1/posts/:id"},
		{"DELETE", "/api/v1/posts/:id"},
	})

	_, _, found := r.Find("GET", "/api/v1/posts")
	assert.False(t, found)
	_, _, found = r.Find("GET", "/api/v1/posts/abc")
	assert.False(t, found)
	_, _, found = r.Find("POST", "/api/v1/posts")
	assert.False(t, found)
}

func TestRegistryAddReplacesExistingEntry(t *testing.T) {
	r := NewRegistry()
	called := false

	r.Add("GET", "/api/v1/posts", noopHandler)
	r.Add("GET", "/api/v1/posts", func(req *Request, resp *Response) error {
		called = true
		return nil
	})

	entry, _, found := r.Find("GET", "/api/v1/posts")
	assert.True(t, found)

	_ = entry.Handler(nil, nil)
	assert.True(t, called, "re-adding the same (method, path) must replace the handler")
}
