package router

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
)

// Request wraps the raw HTTP request with the method/path/headers/query/
// path-params/body/context-map surface.
type Request struct {
	Ctx    *fiber.Ctx
	Params map[string]string

	mu   sync.Mutex
	data map[string]any
}

// NewRequest builds a Request over a fiber context and path params.
func NewRequest(c *fiber.Ctx, params map[string]string) *Request {
	return &Request{Ctx: c, Params: params, data: make(map[string]any)}
}

func (r *Request) Method() string { return r.Ctx.Method() }
func (r *Request) Path() string   { return r.Ctx.Path() }
func (r *Request) Header(name string) string {
	return r.Ctx.Get(name)
}

func (r *Request) Query(name string) string { return r.Ctx.Query(name) }
func (r *Request) Param(name string) string { return r.Params[name] }
func (r *Request) Body() []byte             { return r.Ctx.Body() }

// RemoteAddr returns the caller's IP. The port is always reported as 0.
func (r *Request) RemoteAddr() (string, int) {
	ip := r.Ctx.IP()
	return ip, 0
}

// LocalAddr returns the server's local address as a host:port string. The
// separate port value is always reported as 0.
func (r *Request) LocalAddr() (string, int) {
	return r.Ctx.Context().LocalAddr().String(), 0
}

// Set stores a value in the per-request context map.
func (r *Request) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
}

// Get retrieves a value from the per-request context map.
func (r *Request) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	return v, ok
}

// GetOr retrieves a value or returns def if absent.
func (r *Request) GetOr(key string, def any) any {
	if v, ok := r.Get(key); ok {
		return v
	}
	return def
}

// IsMultipartFormData reports whether the request body is multipart/form-data.
func (r *Request) IsMultipartFormData() bool {
	return strings.HasPrefix(r.Header("Content-Type"), "multipart/form-data")
}

// GetBearerTokenAuth extracts the bearer token from the Authorization
// header, if present.
func (r *Request) GetBearerTokenAuth() (string, bool) {
	auth := r.Header("Authorization")
	const prefix = "Bearer "

	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}

	return strings.TrimPrefix(auth, prefix), true
}

// QueryInt parses a query parameter as int, returning def on absence or
// parse failure.
func (r *Request) QueryInt(name string, def int) int {
	raw := r.Query(name)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}

	return v
}

// QueryBool parses a query parameter as bool, returning def on absence or
// parse failure.
func (r *Request) QueryBool(name string, def bool) bool {
	raw := r.Query(name)
	if raw == "" {
		return def
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}

	return v
}
